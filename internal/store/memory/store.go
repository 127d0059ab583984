// Package memory provides in-process event and rollup stores, used when
// the server runs without a database and by the test suites.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/pulseboard/internal/filter"
	"github.com/pulseboard/pulseboard/internal/record"
)

// Store keeps events and rollup rows in memory. Rollups are unique per
// (date, product, region); upserts replace the existing row.
type Store struct {
	mu      sync.RWMutex
	events  []record.Event
	rollups map[string]record.RollupRow
}

func NewStore() *Store {
	return &Store{rollups: make(map[string]record.RollupRow)}
}

func (s *Store) QueryEvents(ctx context.Context, scope string, f filter.Filter) ([]record.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []record.Event
	for _, ev := range s.events {
		if ev.Scope != scope {
			continue
		}
		if f.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *Store) QueryRollups(ctx context.Context, f filter.Filter) ([]record.RollupRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []record.RollupRow
	for _, row := range s.rollups {
		if f.Matches(row) {
			out = append(out, row)
		}
	}
	return out, nil
}

// AppendEvents records new events, assigning ids where absent.
func (s *Store) AppendEvents(ctx context.Context, events []record.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		s.events = append(s.events, ev)
	}
	return nil
}

// UpsertRollup stores one daily row, replacing any previous row for the
// same (date, product, region).
func (s *Store) UpsertRollup(ctx context.Context, row record.RollupRow) error {
	row.Date = midnightUTC(row.Date)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollups[rollupKey(row)] = row
	return nil
}

func rollupKey(r record.RollupRow) string {
	return fmt.Sprintf("%s|%s|%s", r.Date.Format("2006-01-02"), r.Product, r.Region)
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
