package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pulseboard/pulseboard/internal/errs"
	"github.com/pulseboard/pulseboard/internal/widget"
)

// Memory is the in-process cache store. Entries are stored by value, so a
// Put replaces payload and timestamp in one step under the lock.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(ctx context.Context, widgetID string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[widgetID]
	if !ok {
		return Entry{}, fmt.Errorf("cache entry %s: %w", widgetID, errs.ErrNotFound)
	}
	return entry, nil
}

func (m *Memory) Put(ctx context.Context, widgetID string, payload widget.Payload, updatedAt time.Time) error {
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("cache put %s: %w", widgetID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[widgetID] = Entry{WidgetID: widgetID, Payload: payload, UpdatedAt: updatedAt}
	return nil
}

func (m *Memory) Delete(ctx context.Context, widgetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, widgetID)
	return nil
}

// Len reports the number of cached entries (metrics and tests).
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
