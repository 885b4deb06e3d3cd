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

import (
	"sync"
	"time"
)

// EventType identifies a workflow event on the push stream.
type EventType string

const (
	EventReasoningStart   EventType = "reasoning_start"
	EventToolCallStart    EventType = "tool_call_start"
	EventToolComplete     EventType = "tool_complete"
	EventActionExecuting  EventType = "action_executing"
	EventActionComplete   EventType = "action_complete"
	EventError            EventType = "error"
	EventWorkflowComplete EventType = "workflow_complete"
)

// WorkflowEvent is one entry on the event stream. Data is a free-form bag;
// subscribers must tolerate missing events and unknown keys.
type WorkflowEvent struct {
	Type      EventType      `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// subscriberBuffer is the per-subscriber channel depth. When a subscriber
// falls behind, the oldest buffered event is dropped to make room: the
// stream is best-effort by contract.
const subscriberBuffer = 64

// EventBus fans workflow events out to subscribers.
//
// # Thread Safety
//
// Safe for concurrent use. Publish never blocks on slow subscribers.
type EventBus struct {
	mu   sync.RWMutex
	subs map[int]chan WorkflowEvent
	next int
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan WorkflowEvent)}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *EventBus) Subscribe() (<-chan WorkflowEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan WorkflowEvent, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber, dropping the oldest
// buffered event for subscribers that are full.
func (b *EventBus) Publish(typ EventType, message string, data map[string]any) {
	ev := WorkflowEvent{
		Type:      typ,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
