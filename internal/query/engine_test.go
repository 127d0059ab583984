package query_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pulseboard/pulseboard/internal/errs"
	"github.com/pulseboard/pulseboard/internal/filter"
	"github.com/pulseboard/pulseboard/internal/query"
	"github.com/pulseboard/pulseboard/internal/record"
	"github.com/pulseboard/pulseboard/internal/store/memory"
	"github.com/pulseboard/pulseboard/internal/widget"
)

const scope = "org_test"

func seededEngine(t *testing.T) *query.Engine {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	events := []record.Event{
		saleAt("2024-01-01T10:00:00Z", 100, "Gadget", "web", "EU"),
		saleAt("2024-01-01T11:00:00Z", 300, "Widget", "retail", "US"),
		saleAt("2024-01-02T09:00:00Z", 50, "Gadget", "web", "EU"),
	}
	if err := store.AppendEvents(ctx, events); err != nil {
		t.Fatalf("seed events: %v", err)
	}

	rollups := []record.RollupRow{
		rollup("2024-01-01", "Gadget", "EU", 1000, 100, 20),
		rollup("2024-01-01", "Widget", "US", 500, 50, 17),
		rollup("2024-01-02", "Gadget", "EU", 250, 50, 0),
	}
	for _, row := range rollups {
		if err := store.UpsertRollup(ctx, row); err != nil {
			t.Fatalf("seed rollups: %v", err)
		}
	}
	return query.New(store, store)
}

func saleAt(ts string, amount int64, product, channel, region string) record.Event {
	at, _ := time.Parse(time.RFC3339, ts)
	return record.Event{
		Scope:      scope,
		OccurredAt: at,
		AmountVal:  decimal.NewFromInt(amount),
		Product:    product,
		Channel:    channel,
		Region:     region,
	}
}

func rollup(day, product, region string, revenue int64, users, orders int64) record.RollupRow {
	date, _ := time.Parse("2006-01-02", day)
	return record.RollupRow{
		Date:    date,
		Product: product,
		Region:  region,
		Revenue: decimal.NewFromInt(revenue),
		Users:   users,
		Orders:  orders,
	}
}

func spec(typ widget.Type, cfg map[string]any) widget.Spec {
	return widget.Spec{ID: "w1", Type: typ, Scope: scope, RefreshSeconds: 60, Config: cfg}
}

func TestEvaluateKPI(t *testing.T) {
	eng := seededEngine(t)
	ctx := context.Background()

	cases := []struct {
		metric string
		want   float64
	}{
		{"sum_amount", 450},
		{"avg_amount", 150},
		{"count", 3},
	}
	for _, tc := range cases {
		t.Run(tc.metric, func(t *testing.T) {
			p, err := eng.Evaluate(ctx, spec(widget.KPI, map[string]any{"metric": tc.metric}))
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			scalar, ok := p.(widget.ScalarPayload)
			if !ok {
				t.Fatalf("payload type %T", p)
			}
			if scalar.Value != tc.want {
				t.Errorf("value = %v, want %v", scalar.Value, tc.want)
			}
		})
	}
}

func TestEvaluateKPIUnknownMetric(t *testing.T) {
	eng := seededEngine(t)
	_, err := eng.Evaluate(context.Background(), spec(widget.KPI, map[string]any{"metric": "median_amount"}))
	if !errors.Is(err, errs.ErrUnsupportedMetric) {
		t.Fatalf("err = %v, want ErrUnsupportedMetric", err)
	}
}

func TestEvaluateUnknownSource(t *testing.T) {
	eng := seededEngine(t)
	_, err := eng.Evaluate(context.Background(), spec(widget.KPI, map[string]any{"source": "warehouse"}))
	if !errs.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestEvaluateTimeSeries(t *testing.T) {
	eng := seededEngine(t)
	p, err := eng.Evaluate(context.Background(), spec(widget.TimeSeries, map[string]any{}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	series := p.(widget.SeriesPayload)
	if !reflect.DeepEqual(series.Labels, []string{"Jan 01", "Jan 02"}) {
		t.Errorf("labels = %v", series.Labels)
	}
	if !reflect.DeepEqual(series.Series, []float64{400, 50}) {
		t.Errorf("series = %v", series.Series)
	}
}

func TestEvaluateBarDefaultsToProduct(t *testing.T) {
	eng := seededEngine(t)
	p, err := eng.Evaluate(context.Background(), spec(widget.Bar, map[string]any{}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	series := p.(widget.SeriesPayload)
	if !reflect.DeepEqual(series.Labels, []string{"Widget", "Gadget"}) {
		t.Errorf("labels = %v", series.Labels)
	}
}

func TestEvaluatePieOverRollup(t *testing.T) {
	eng := seededEngine(t)
	p, err := eng.Evaluate(context.Background(), spec(widget.Pie, map[string]any{"source": "rollup"}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	series := p.(widget.SeriesPayload)
	// Default group-by for the rollup source is region.
	if !reflect.DeepEqual(series.Labels, []string{"EU", "US"}) {
		t.Errorf("labels = %v", series.Labels)
	}
	if !reflect.DeepEqual(series.Series, []float64{1250, 500}) {
		t.Errorf("series = %v", series.Series)
	}
}

func TestEvaluateTable(t *testing.T) {
	eng := seededEngine(t)
	p, err := eng.Evaluate(context.Background(), spec(widget.Table, map[string]any{}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	table := p.(widget.TablePayload)
	if len(table.Rows) != 3 {
		t.Fatalf("rows = %d", len(table.Rows))
	}
	if table.Rows[0].Product != "Gadget" || table.Rows[0].Amount != 50 {
		t.Errorf("newest row = %+v", table.Rows[0])
	}
}

func TestEvaluateWithFilter(t *testing.T) {
	eng := seededEngine(t)
	p, err := eng.Evaluate(context.Background(), spec(widget.KPI, map[string]any{
		"metric":   "sum_amount",
		"channels": []any{"web"},
	}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := p.(widget.ScalarPayload).Value; got != 150 {
		t.Errorf("filtered sum = %v, want 150", got)
	}
}

func TestEvaluateEmptyScope(t *testing.T) {
	eng := seededEngine(t)
	s := spec(widget.TimeSeries, map[string]any{})
	s.Scope = "org_empty"
	p, err := eng.Evaluate(context.Background(), s)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	series := p.(widget.SeriesPayload)
	if len(series.Labels) != 0 || len(series.Series) != 0 {
		t.Errorf("expected empty sequences, got %v/%v", series.Labels, series.Series)
	}
}

func TestKPISummary(t *testing.T) {
	eng := seededEngine(t)
	set, err := eng.KPISummary(context.Background(), filter.Filter{})
	if err != nil {
		t.Fatalf("KPISummary: %v", err)
	}
	if set.Revenue != 1750 {
		t.Errorf("revenue = %v", set.Revenue)
	}
	if set.ActiveUsers != 200 {
		t.Errorf("users = %v", set.ActiveUsers)
	}
	// 37 orders over 200 users.
	if set.ConversionRate != 18.5 {
		t.Errorf("conversion = %v", set.ConversionRate)
	}
}

func TestTrend(t *testing.T) {
	eng := seededEngine(t)
	points, err := eng.Trend(context.Background(), filter.Filter{})
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("points = %v", points)
	}
	if points[0].Label != "Jan 01" || points[0].Value != 1500 {
		t.Errorf("first point = %+v", points[0])
	}
	if points[1].Label != "Jan 02" || points[1].Value != 250 {
		t.Errorf("second point = %+v", points[1])
	}
}

func TestTopGroups(t *testing.T) {
	eng := seededEngine(t)
	groups, err := eng.TopGroups(context.Background(), filter.Filter{}, "product", 0)
	if err != nil {
		t.Fatalf("TopGroups: %v", err)
	}
	if len(groups) != 2 || groups[0].Label != "Gadget" || groups[0].Value != 1250 {
		t.Errorf("groups = %v", groups)
	}

	if _, err := eng.TopGroups(context.Background(), filter.Filter{}, "channel", 0); !errs.IsValidation(err) {
		t.Errorf("expected validation error for non-rollup dimension, got %v", err)
	}
}

func TestDistribution(t *testing.T) {
	eng := seededEngine(t)
	groups, err := eng.Distribution(context.Background(), filter.Filter{}, "region")
	if err != nil {
		t.Fatalf("Distribution: %v", err)
	}
	if len(groups) != 2 || groups[0].Label != "EU" {
		t.Errorf("groups = %v", groups)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	eng := seededEngine(t)
	s := spec(widget.Bar, map[string]any{})
	first, err := eng.Evaluate(context.Background(), s)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	second, err := eng.Evaluate(context.Background(), s)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("payloads differ: %v vs %v", first, second)
	}
}
