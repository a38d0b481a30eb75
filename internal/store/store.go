// Package store persists the append-only activity log of analyses.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

// DefaultLimit bounds Recent when no limit is given.
const DefaultLimit = 100

// Modes of an analysis.
const (
	ModeCandidate = "Candidate"
	ModeRecruiter = "Recruiter"
)

// Record is one completed analysis, successful or degraded.
type Record struct {
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    string          `json:"user_id"`
	Mode      string          `json:"mode"`
	Action    string          `json:"action"`
	Score     int             `json:"score"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// Store is an append-only activity log. Records are never updated; they are
// only removed in bulk by Prune.
type Store interface {
	Append(ctx context.Context, rec Record) (Record, error)
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	// Prune deletes records older than before and returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close()
}

func validate(rec Record) error {
	if strings.TrimSpace(rec.Mode) == "" {
		return errors.New("record mode is required")
	}
	if strings.TrimSpace(rec.Action) == "" {
		return errors.New("record action is required")
	}
	return nil
}

func prepare(rec Record, now func() time.Time) Record {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now()
	}
	rec.Timestamp = rec.Timestamp.UTC()
	if len(rec.Details) == 0 {
		rec.Details = json.RawMessage("{}")
	}
	return rec
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// Memory keeps records in process memory. It is used when no database is
// configured and in tests.
type Memory struct {
	mu      sync.Mutex
	records []Record
	seq     int64
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) Append(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := validate(rec); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec = prepare(rec, m.now)
	m.seq++
	rec.Seq = m.seq
	rec.Details = append(json.RawMessage(nil), rec.Details...)
	m.records = append(m.records, rec)

	return rec, nil
}

func (m *Memory) Recent(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0, min(limit, len(m.records)))
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *Memory) Prune(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	for _, rec := range m.records {
		if !rec.Timestamp.Before(before) {
			kept = append(kept, rec)
		}
	}
	removed := int64(len(m.records) - len(kept))
	clear(m.records[len(kept):])
	m.records = kept

	return removed, nil
}

func (m *Memory) Close() {}
