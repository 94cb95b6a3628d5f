// Package store archives policy traces in SQLite so the analysis engines can
// query history across runs. The archive is insert-only; traces are never
// rewritten once captured.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"warden/internal/logging"
	"warden/internal/policy"
)

// TraceStore persists evaluation traces for later analysis.
type TraceStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*TraceStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ts := &TraceStore{db: db, dbPath: path}
	if err := ts.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure trace schema: %w", err)
	}

	logging.Store("TraceStore initialized at %s", path)
	return ts, nil
}

// Close closes the underlying database.
func (ts *TraceStore) Close() error {
	return ts.db.Close()
}

func (ts *TraceStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policy_traces (
		action_id TEXT PRIMARY KEY,
		action_type TEXT NOT NULL,
		target TEXT,
		final_decision TEXT NOT NULL,
		final_rule_id TEXT,
		override_applied BOOLEAN NOT NULL,
		summary TEXT,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_traces_action_type ON policy_traces(action_type);
	CREATE INDEX IF NOT EXISTS idx_traces_decision ON policy_traces(final_decision);
	CREATE INDEX IF NOT EXISTS idx_traces_created ON policy_traces(created_at);
	`

	_, err := ts.db.Exec(schema)
	return err
}

// Archive persists one trace. The full trace is stored as JSON alongside the
// indexed columns, so queries return it losslessly.
func (ts *TraceStore) Archive(trace policy.PolicyTrace) error {
	timer := logging.StartTimer(logging.CategoryStore, "Archive")
	defer timer.Stop()

	ts.mu.Lock()
	defer ts.mu.Unlock()

	payload, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	_, err = ts.db.Exec(`
		INSERT INTO policy_traces
		(action_id, action_type, target, final_decision, final_rule_id,
		 override_applied, summary, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trace.ActionID, string(trace.ActionType), trace.Target,
		string(trace.FinalDecision), trace.FinalRuleID,
		trace.OverrideApplied, trace.Summary, string(payload),
		trace.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to archive trace %s: %v", trace.ActionID, err)
		return fmt.Errorf("failed to archive trace: %w", err)
	}

	logging.StoreDebug("Archived trace %s (%s -> %s)", trace.ActionID, trace.ActionType, trace.FinalDecision)
	return nil
}

// Recent returns the most recent traces, newest first.
func (ts *TraceStore) Recent(limit int) ([]policy.PolicyTrace, error) {
	if limit <= 0 {
		limit = 50
	}
	return ts.query(`
		SELECT payload FROM policy_traces
		ORDER BY created_at DESC
		LIMIT ?`, limit)
}

// ByActionType returns traces for one action type, newest first.
func (ts *TraceStore) ByActionType(t policy.ActionType, limit int) ([]policy.PolicyTrace, error) {
	if limit <= 0 {
		limit = 50
	}
	return ts.query(`
		SELECT payload FROM policy_traces
		WHERE action_type = ?
		ORDER BY created_at DESC
		LIMIT ?`, string(t), limit)
}

// ByDecision returns traces that resolved to one decision, newest first.
func (ts *TraceStore) ByDecision(d policy.Decision, limit int) ([]policy.PolicyTrace, error) {
	if limit <= 0 {
		limit = 50
	}
	return ts.query(`
		SELECT payload FROM policy_traces
		WHERE final_decision = ?
		ORDER BY created_at DESC
		LIMIT ?`, string(d), limit)
}

// Since returns every trace captured at or after the cutoff, oldest first.
// This is the shape the analysis engines consume.
func (ts *TraceStore) Since(cutoff time.Time) ([]policy.PolicyTrace, error) {
	return ts.query(`
		SELECT payload FROM policy_traces
		WHERE created_at >= ?
		ORDER BY created_at ASC`, cutoff.UTC().Format(time.RFC3339Nano))
}

// Count returns the number of archived traces.
func (ts *TraceStore) Count() (int, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var n int
	err := ts.db.QueryRow(`SELECT COUNT(*) FROM policy_traces`).Scan(&n)
	return n, err
}

func (ts *TraceStore) query(q string, args ...interface{}) ([]policy.PolicyTrace, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	rows, err := ts.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("trace query failed: %w", err)
	}
	defer rows.Close()

	var traces []policy.PolicyTrace
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("trace scan failed: %w", err)
		}
		var tr policy.PolicyTrace
		if err := json.Unmarshal([]byte(payload), &tr); err != nil {
			return nil, fmt.Errorf("trace payload corrupt: %w", err)
		}
		traces = append(traces, tr)
	}
	return traces, rows.Err()
}
