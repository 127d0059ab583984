package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulseboard/pulseboard/internal/errs"
	"github.com/pulseboard/pulseboard/internal/widget"
)

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Get(ctx, "w1"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	t1 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if err := m.Put(ctx, "w1", widget.ScalarPayload{Value: 42}, t1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := m.Get(ctx, "w1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Payload.(widget.ScalarPayload).Value != 42 || !entry.UpdatedAt.Equal(t1) {
		t.Errorf("entry = %+v", entry)
	}

	// Put fully overwrites: payload and timestamp move together.
	t2 := t1.Add(time.Minute)
	if err := m.Put(ctx, "w1", widget.ScalarPayload{Value: 43}, t2); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, _ = m.Get(ctx, "w1")
	if entry.Payload.(widget.ScalarPayload).Value != 43 || !entry.UpdatedAt.Equal(t2) {
		t.Errorf("overwritten entry = %+v", entry)
	}
}

func TestMemoryPutRejectsInvalidPayload(t *testing.T) {
	m := NewMemory()
	bad := widget.SeriesPayload{Labels: []string{"a"}, Series: []float64{}}
	if err := m.Put(context.Background(), "w1", bad, time.Now()); err == nil {
		t.Fatal("expected validation failure")
	}
	if m.Len() != 0 {
		t.Errorf("invalid payload was stored")
	}
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Put(ctx, "w1", widget.ScalarPayload{Value: 1}, time.Now())
	if err := m.Delete(ctx, "w1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "w1"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting a missing entry is a no-op.
	if err := m.Delete(ctx, "w1"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestGetOrCreateEmpty(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	entry, err := GetOrCreateEmpty(ctx, m, "w1", widget.TimeSeries)
	if err != nil {
		t.Fatalf("GetOrCreateEmpty: %v", err)
	}
	if !entry.UpdatedAt.IsZero() {
		t.Errorf("expected zero timestamp, got %v", entry.UpdatedAt)
	}
	series, ok := entry.Payload.(widget.SeriesPayload)
	if !ok {
		t.Fatalf("payload type %T", entry.Payload)
	}
	if len(series.Labels) != 0 || len(series.Series) != 0 {
		t.Errorf("expected empty sequences, got %+v", series)
	}

	// With an entry present the cached value wins.
	now := time.Now()
	_ = m.Put(ctx, "w1", widget.NewSeriesPayload(widget.TimeSeries, []string{"Jan 01"}, []float64{5}), now)
	entry, err = GetOrCreateEmpty(ctx, m, "w1", widget.TimeSeries)
	if err != nil {
		t.Fatalf("GetOrCreateEmpty: %v", err)
	}
	if len(entry.Payload.(widget.SeriesPayload).Labels) != 1 {
		t.Errorf("expected cached payload, got %+v", entry.Payload)
	}
}
