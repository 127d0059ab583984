package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pulseboard/pulseboard/internal/filter"
	"github.com/pulseboard/pulseboard/internal/record"
)

func TestAppendEventsAssignsIDs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.AppendEvents(ctx, []record.Event{
		{Scope: "org_a", OccurredAt: time.Now(), AmountVal: decimal.NewFromInt(10), Product: "Gadget"},
		{ID: "fixed", Scope: "org_a", OccurredAt: time.Now(), AmountVal: decimal.NewFromInt(20), Product: "Widget"},
	})
	if err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	events, err := s.QueryEvents(ctx, "org_a", filter.Filter{})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d", len(events))
	}
	if events[0].ID == "" {
		t.Error("missing id was not assigned")
	}
	if events[1].ID != "fixed" {
		t.Errorf("explicit id overwritten: %q", events[1].ID)
	}
}

func TestQueryEventsScopeIsolation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.AppendEvents(ctx, []record.Event{
		{Scope: "org_a", OccurredAt: time.Now(), AmountVal: decimal.NewFromInt(1), Product: "p"},
		{Scope: "org_b", OccurredAt: time.Now(), AmountVal: decimal.NewFromInt(2), Product: "p"},
	})

	events, _ := s.QueryEvents(ctx, "org_b", filter.Filter{})
	if len(events) != 1 || events[0].Scope != "org_b" {
		t.Errorf("events = %+v", events)
	}
}

func TestUpsertRollupReplaces(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	row := record.RollupRow{Date: day, Product: "Gadget", Region: "EU", Revenue: decimal.NewFromInt(100), Users: 10, Orders: 3}
	if err := s.UpsertRollup(ctx, row); err != nil {
		t.Fatalf("UpsertRollup: %v", err)
	}

	// Same key with a non-midnight timestamp must replace, not duplicate.
	row.Date = day.Add(9 * time.Hour)
	row.Revenue = decimal.NewFromInt(250)
	if err := s.UpsertRollup(ctx, row); err != nil {
		t.Fatalf("UpsertRollup: %v", err)
	}

	rows, err := s.QueryRollups(ctx, filter.Filter{})
	if err != nil {
		t.Fatalf("QueryRollups: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	if !rows[0].Revenue.Equal(decimal.NewFromInt(250)) {
		t.Errorf("revenue = %s, want replaced 250", rows[0].Revenue)
	}
	if !rows[0].Date.Equal(day) {
		t.Errorf("date = %v, want normalized midnight", rows[0].Date)
	}
}
