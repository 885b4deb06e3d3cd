// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analytics

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
)

const schema = `
CREATE TABLE IF NOT EXISTS routing_decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	query TEXT NOT NULL,
	query_length INTEGER NOT NULL,
	detected_domain TEXT NOT NULL,
	routed_tool TEXT NOT NULL,
	confidence REAL NOT NULL,
	parser_used INTEGER NOT NULL DEFAULT 0,
	validator_used INTEGER NOT NULL DEFAULT 0,
	cross_domain INTEGER NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL,
	execution_time_ms INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_routing_timestamp ON routing_decisions(timestamp);
CREATE INDEX IF NOT EXISTS idx_routing_outcome ON routing_decisions(outcome);
CREATE INDEX IF NOT EXISTS idx_routing_domain ON routing_decisions(detected_domain);
CREATE INDEX IF NOT EXISTS idx_routing_tool ON routing_decisions(routed_tool);

CREATE TABLE IF NOT EXISTS corrections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	routing_decision_id INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	original_tool TEXT NOT NULL,
	corrected_tool TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	validator_confidence REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_corrections_decision ON corrections(routing_decision_id);

CREATE TABLE IF NOT EXISTS misrouting_patterns (
	pattern_hash TEXT PRIMARY KEY,
	query_pattern TEXT NOT NULL,
	wrong_tool TEXT NOT NULL,
	correct_tool TEXT NOT NULL,
	occurrences INTEGER NOT NULL DEFAULT 1,
	first_seen TEXT NOT NULL,
	last_seen TEXT NOT NULL,
	avg_confidence REAL NOT NULL DEFAULT 0,
	resolved INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore is the durable Recorder plus the read-side reporting queries.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the analytics database at path.
// Use ":memory:" for an in-process ephemeral store.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening analytics db: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent step recording.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring analytics db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating analytics schema: %w", err)
	}
	logger.Info("analytics store ready", slog.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// RecordRouting implements Recorder.
func (s *SQLiteStore) RecordRouting(ctx context.Context, rec *datatypes.RoutingRecord) (int64, error) {
	if rec == nil {
		return 0, datatypes.ErrInvalidInput
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO routing_decisions
		(timestamp, query, query_length, detected_domain, routed_tool, confidence,
		 parser_used, validator_used, cross_domain, outcome, execution_time_ms,
		 error_message, user_id, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.Format(time.RFC3339Nano), rec.Query, len(rec.Query),
		string(rec.DetectedDomain), rec.RoutedTool, rec.Confidence,
		boolInt(rec.ParserUsed), boolInt(rec.ValidatorUsed), boolInt(rec.CrossDomain),
		string(rec.Outcome), rec.ExecutionTimeMS,
		rec.ErrorMessage, rec.UserID, rec.SessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("recording routing decision: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("routing decision id: %w", err)
	}
	rec.ID = id
	return id, nil
}

// RecordDomainValidation records a standalone validator verdict as a routing
// decision row. Thin wrapper over RecordRouting: valid verdicts land as
// success, invalid ones as uncertain.
func (s *SQLiteStore) RecordDomainValidation(ctx context.Context, query string, detected datatypes.Domain, targetTool string, valid bool, confidence float64) (int64, error) {
	outcome := datatypes.OutcomeSuccess
	if !valid {
		outcome = datatypes.OutcomeUncertain
	}
	return s.RecordRouting(ctx, &datatypes.RoutingRecord{
		Timestamp:      time.Now().UTC(),
		Query:          query,
		DetectedDomain: detected,
		RoutedTool:     targetTool,
		Confidence:     confidence,
		ValidatorUsed:  true,
		Outcome:        outcome,
	})
}

// RecordCorrection implements Recorder.
func (s *SQLiteStore) RecordCorrection(ctx context.Context, rec *datatypes.CorrectionRecord) error {
	if rec == nil {
		return datatypes.ErrInvalidInput
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO corrections
		(routing_decision_id, timestamp, original_tool, corrected_tool, reason, validator_confidence)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RoutingDecisionID, ts.Format(time.RFC3339Nano),
		rec.OriginalTool, rec.CorrectedTool, rec.Reason, rec.ValidatorConfidence,
	)
	if err != nil {
		return fmt.Errorf("recording correction: %w", err)
	}
	return nil
}

// RecordMisrouting implements Recorder. The row is keyed by the hash of
// (pattern, wrong tool, correct tool): repeat sightings increment the
// occurrence count and fold the confidence into a running average.
func (s *SQLiteStore) RecordMisrouting(ctx context.Context, queryPattern, wrongTool, correctTool string, confidence float64) error {
	hash := MisroutingHash(queryPattern, wrongTool, correctTool)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO misrouting_patterns
		(pattern_hash, query_pattern, wrong_tool, correct_tool, occurrences, first_seen, last_seen, avg_confidence, resolved)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?, 0)
		ON CONFLICT(pattern_hash) DO UPDATE SET
			occurrences = occurrences + 1,
			last_seen = excluded.last_seen,
			avg_confidence = (misrouting_patterns.avg_confidence * misrouting_patterns.occurrences + excluded.avg_confidence)
				/ (misrouting_patterns.occurrences + 1)`,
		hash, queryPattern, wrongTool, correctTool, now, now, confidence,
	)
	if err != nil {
		return fmt.Errorf("recording misrouting pattern: %w", err)
	}
	return nil
}

// MisroutingHash is the stable aggregation key for a misrouting pattern.
func MisroutingHash(queryPattern, wrongTool, correctTool string) string {
	h := sha256.Sum256([]byte(queryPattern + "\x00" + wrongTool + "\x00" + correctTool))
	return hex.EncodeToString(h[:16])
}

// whereFilter builds the shared routing_decisions WHERE clause: the time
// cutoff plus any domain/tool narrowing from the filter.
func whereFilter(since time.Time, f MetricsFilter) (string, []any) {
	clause := "timestamp >= ?"
	args := []any{since.UTC().Format(time.RFC3339Nano)}
	if f.Domain != "" {
		clause += " AND detected_domain = ?"
		args = append(args, f.Domain)
	}
	if f.Tool != "" {
		clause += " AND routed_tool = ?"
		args = append(args, f.Tool)
	}
	return clause, args
}

// GetMetrics computes the aggregate view since the given time, optionally
// narrowed to one detected domain and/or routed tool.
func (s *SQLiteStore) GetMetrics(ctx context.Context, since time.Time, filter MetricsFilter) (*Metrics, error) {
	m := &Metrics{
		Since:             since,
		OutcomeCounts:     make(map[string]int64),
		DomainAccuracy:    make(map[string]float64),
		ToolUsage:         make(map[string]int64),
		ConfidenceBuckets: make(map[string]int64),
	}
	where, args := whereFilter(since, filter)

	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*), AVG(confidence), AVG(execution_time_ms)
		FROM routing_decisions WHERE `+where+` GROUP BY outcome`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying outcome counts: %w", err)
	}
	defer rows.Close()

	var confSum, execSum float64
	for rows.Next() {
		var outcome string
		var count int64
		var avgConf, avgExec float64
		if err := rows.Scan(&outcome, &count, &avgConf, &avgExec); err != nil {
			return nil, fmt.Errorf("scanning outcome row: %w", err)
		}
		m.OutcomeCounts[outcome] = count
		m.TotalDecisions += count
		confSum += avgConf * float64(count)
		execSum += avgExec * float64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if m.TotalDecisions > 0 {
		m.SuccessRate = float64(m.OutcomeCounts[string(datatypes.OutcomeSuccess)]) / float64(m.TotalDecisions)
		m.AvgConfidence = confSum / float64(m.TotalDecisions)
		m.AvgExecutionMS = execSum / float64(m.TotalDecisions)
	}

	// Corrections live in their own table; a filtered view joins back to the
	// routing row each correction is keyed to.
	correctionsQuery := `SELECT COUNT(*) FROM corrections WHERE timestamp >= ?`
	correctionsArgs := []any{since.UTC().Format(time.RFC3339Nano)}
	if filter.Domain != "" || filter.Tool != "" {
		correctionsQuery = `
			SELECT COUNT(*) FROM corrections c
			JOIN routing_decisions r ON r.id = c.routing_decision_id
			WHERE c.timestamp >= ?`
		if filter.Domain != "" {
			correctionsQuery += " AND r.detected_domain = ?"
			correctionsArgs = append(correctionsArgs, filter.Domain)
		}
		if filter.Tool != "" {
			correctionsQuery += " AND r.routed_tool = ?"
			correctionsArgs = append(correctionsArgs, filter.Tool)
		}
	}
	if err := s.db.QueryRowContext(ctx, correctionsQuery, correctionsArgs...).
		Scan(&m.CorrectionCount); err != nil {
		return nil, fmt.Errorf("counting corrections: %w", err)
	}

	var qerr error
	m.DomainAccuracy, qerr = s.domainAccuracy(ctx, since, filter)
	if qerr != nil {
		return nil, qerr
	}
	m.ToolUsage, qerr = s.toolUsage(ctx, since, filter)
	if qerr != nil {
		return nil, qerr
	}
	m.ConfidenceBuckets, qerr = s.confidenceDistribution(ctx, since, filter)
	if qerr != nil {
		return nil, qerr
	}
	m.TopMisroutings, qerr = s.GetMisroutingPatterns(ctx, 5)
	if qerr != nil {
		return nil, qerr
	}
	return m, nil
}

// GetDomainAccuracy returns per-domain success rate since the given time.
func (s *SQLiteStore) GetDomainAccuracy(ctx context.Context, since time.Time) (map[string]float64, error) {
	return s.domainAccuracy(ctx, since, MetricsFilter{})
}

func (s *SQLiteStore) domainAccuracy(ctx context.Context, since time.Time, filter MetricsFilter) (map[string]float64, error) {
	where, args := whereFilter(since, filter)
	rows, err := s.db.QueryContext(ctx, `
		SELECT detected_domain,
		       SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END),
		       COUNT(*)
		FROM routing_decisions WHERE `+where+`
		GROUP BY detected_domain`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying domain accuracy: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var domain string
		var ok, total int64
		if err := rows.Scan(&domain, &ok, &total); err != nil {
			return nil, err
		}
		if total > 0 {
			out[domain] = float64(ok) / float64(total)
		}
	}
	return out, rows.Err()
}

// GetToolUsage returns decision counts per routed tool since the given time.
func (s *SQLiteStore) GetToolUsage(ctx context.Context, since time.Time) (map[string]int64, error) {
	return s.toolUsage(ctx, since, MetricsFilter{})
}

func (s *SQLiteStore) toolUsage(ctx context.Context, since time.Time, filter MetricsFilter) (map[string]int64, error) {
	where, args := whereFilter(since, filter)
	rows, err := s.db.QueryContext(ctx, `
		SELECT routed_tool, COUNT(*)
		FROM routing_decisions WHERE `+where+`
		GROUP BY routed_tool`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tool usage: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var tool string
		var count int64
		if err := rows.Scan(&tool, &count); err != nil {
			return nil, err
		}
		out[tool] = count
	}
	return out, rows.Err()
}

// GetConfidenceDistribution buckets decisions by confidence in 0.2 bands.
func (s *SQLiteStore) GetConfidenceDistribution(ctx context.Context, since time.Time) (map[string]int64, error) {
	return s.confidenceDistribution(ctx, since, MetricsFilter{})
}

func (s *SQLiteStore) confidenceDistribution(ctx context.Context, since time.Time, filter MetricsFilter) (map[string]int64, error) {
	where, args := whereFilter(since, filter)
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			CASE
				WHEN confidence < 0.2 THEN '0.0-0.2'
				WHEN confidence < 0.4 THEN '0.2-0.4'
				WHEN confidence < 0.6 THEN '0.4-0.6'
				WHEN confidence < 0.8 THEN '0.6-0.8'
				ELSE '0.8-1.0'
			END AS bucket,
			COUNT(*)
		FROM routing_decisions WHERE `+where+`
		GROUP BY bucket`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying confidence distribution: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, err
		}
		out[bucket] = count
	}
	return out, rows.Err()
}

// GetMisroutingPatterns returns the unresolved patterns with the most
// occurrences, most frequent first.
func (s *SQLiteStore) GetMisroutingPatterns(ctx context.Context, limit int) ([]datatypes.MisroutingPattern, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern_hash, query_pattern, wrong_tool, correct_tool,
		       occurrences, first_seen, last_seen, avg_confidence, resolved
		FROM misrouting_patterns WHERE resolved = 0
		ORDER BY occurrences DESC, last_seen DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying misrouting patterns: %w", err)
	}
	defer rows.Close()

	var out []datatypes.MisroutingPattern
	for rows.Next() {
		var p datatypes.MisroutingPattern
		var first, last string
		var resolved int
		if err := rows.Scan(&p.PatternHash, &p.QueryPattern, &p.WrongTool, &p.CorrectTool,
			&p.Occurrences, &first, &last, &p.AvgConfidence, &resolved); err != nil {
			return nil, err
		}
		p.FirstSeen, _ = time.Parse(time.RFC3339Nano, first)
		p.LastSeen, _ = time.Parse(time.RFC3339Nano, last)
		p.Resolved = resolved != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResolveMisrouting marks a pattern resolved so it drops out of reports.
func (s *SQLiteStore) ResolveMisrouting(ctx context.Context, patternHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE misrouting_patterns SET resolved = 1 WHERE pattern_hash = ?`, patternHash)
	if err != nil {
		return fmt.Errorf("resolving misrouting pattern: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
