// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// Action is the verb dispatched to a tool. The set is finite; tools receive
// the action string verbatim.
type Action string

const (
	ActionList           Action = "list"
	ActionSearch         Action = "search"
	ActionCreate         Action = "create"
	ActionUpdate         Action = "update"
	ActionDelete         Action = "delete"
	ActionComplete       Action = "complete"
	ActionAnalyze        Action = "analyze"
	ActionSend           Action = "send"
	ActionCreatePage     Action = "create_page"
	ActionFindFreeTime   Action = "find_free_time"
	ActionCheckConflicts Action = "check_conflicts"

	// ActionReject is the sentinel a tool parser returns when it believes
	// the query does not belong to its tool. It is informative, not an
	// error: selectors drop the tool from candidacy, executors use it to
	// trigger the alternate-tool retry.
	ActionReject Action = "reject"
)

// retryableActions holds the actions safe to retry without coordination
// with the tool implementer. Mutating actions (create/update/delete/send)
// must be idempotent on the tool side to be retried; the conservative
// default is to not retry them.
var retryableActions = map[Action]bool{
	ActionList:           true,
	ActionSearch:         true,
	ActionFindFreeTime:   true,
	ActionCheckConflicts: true,
	ActionAnalyze:        true,
}

// Retryable reports whether a failed step with this action may be retried.
func (a Action) Retryable() bool { return retryableActions[a] }

// Valid reports whether a is a member of the action vocabulary.
func (a Action) Valid() bool {
	switch a {
	case ActionList, ActionSearch, ActionCreate, ActionUpdate, ActionDelete,
		ActionComplete, ActionAnalyze, ActionSend, ActionCreatePage,
		ActionFindFreeTime, ActionCheckConflicts, ActionReject:
		return true
	}
	return false
}
