// Package query evaluates widget specs and stateless analytics queries
// against the two data sources.
package query

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pulseboard/pulseboard/internal/aggregate"
	"github.com/pulseboard/pulseboard/internal/errs"
	"github.com/pulseboard/pulseboard/internal/filter"
	"github.com/pulseboard/pulseboard/internal/record"
	"github.com/pulseboard/pulseboard/internal/widget"
)

// Truncation limits matching the dashboard widget contracts.
const (
	barGroupLimit  = 10
	tableRowLimit  = 50
	topGroupsLimit = 5
)

// EventStore produces raw events matching a filter within one scope.
type EventStore interface {
	QueryEvents(ctx context.Context, scope string, f filter.Filter) ([]record.Event, error)
}

// RollupStore produces pre-aggregated daily rows matching a filter.
type RollupStore interface {
	QueryRollups(ctx context.Context, f filter.Filter) ([]record.RollupRow, error)
}

// Engine dispatches widget evaluations to the aggregation function
// matching the widget type, reading from either data source through the
// common record contract.
type Engine struct {
	events  EventStore
	rollups RollupStore
}

// New creates an Engine over the two data sources.
func New(events EventStore, rollups RollupStore) *Engine {
	return &Engine{events: events, rollups: rollups}
}

// Evaluate computes the payload for one widget spec. Configuration errors
// (malformed filter, unknown metric or source) are surfaced as such;
// data-source failures are wrapped as transient.
func (e *Engine) Evaluate(ctx context.Context, spec widget.Spec) (widget.Payload, error) {
	f, err := filter.Build(spec.Config)
	if err != nil {
		return nil, err
	}

	source := configString(spec.Config, "source", "events")
	records, err := e.read(ctx, source, spec.Scope, f)
	if err != nil {
		return nil, err
	}

	var payload widget.Payload
	switch spec.Type {
	case widget.KPI:
		payload, err = kpiPayload(spec.Config, records)
	case widget.TimeSeries:
		labels, values := aggregate.DailyBuckets(records)
		payload = widget.NewSeriesPayload(widget.TimeSeries, labels, values)
	case widget.Bar:
		field := configString(spec.Config, "group_by", "product")
		payload = seriesFromGroups(widget.Bar, aggregate.GroupSums(records, field, barGroupLimit))
	case widget.Pie:
		field := configString(spec.Config, "group_by", pieDefaultField(source))
		payload = seriesFromGroups(widget.Pie, aggregate.GroupSums(records, field, 0))
	case widget.Table:
		payload = widget.TablePayload{Rows: aggregate.RecentRows(records, tableRowLimit)}
	default:
		return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedWidgetType, spec.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

// KPISet is the combined KPI summary served by the stateless read path.
type KPISet struct {
	Revenue        float64 `json:"revenue"`
	ActiveUsers    int64   `json:"active_users"`
	ConversionRate float64 `json:"conversion_rate"`
}

// KPISummary sums revenue, users, and orders over the rollup source and
// derives the conversion rate.
func (e *Engine) KPISummary(ctx context.Context, f filter.Filter) (KPISet, error) {
	rows, err := e.queryRollups(ctx, f)
	if err != nil {
		return KPISet{}, err
	}
	var revenue decimal.Decimal
	var users, orders int64
	for _, r := range rows {
		revenue = revenue.Add(r.Revenue)
		users += r.Users
		orders += r.Orders
	}
	return KPISet{
		Revenue:        revenue.Round(2).InexactFloat64(),
		ActiveUsers:    users,
		ConversionRate: aggregate.ConversionRate(orders, users),
	}, nil
}

// Trend buckets rollup revenue by calendar day, ascending.
func (e *Engine) Trend(ctx context.Context, f filter.Filter) ([]aggregate.Group, error) {
	rows, err := e.queryRollups(ctx, f)
	if err != nil {
		return nil, err
	}
	labels, values := aggregate.DailyBuckets(rollupRecords(rows))
	points := make([]aggregate.Group, len(labels))
	for i := range labels {
		points[i] = aggregate.Group{Label: labels[i], Value: values[i]}
	}
	return points, nil
}

// TopGroups returns the highest-revenue groups for a rollup dimension.
// limit <= 0 falls back to the top-products default of 5.
func (e *Engine) TopGroups(ctx context.Context, f filter.Filter, field string, limit int) ([]aggregate.Group, error) {
	if err := rollupField(field); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = topGroupsLimit
	}
	rows, err := e.queryRollups(ctx, f)
	if err != nil {
		return nil, err
	}
	return aggregate.GroupSums(rollupRecords(rows), field, limit), nil
}

// Distribution returns revenue per group across all groups of a rollup
// dimension.
func (e *Engine) Distribution(ctx context.Context, f filter.Filter, field string) ([]aggregate.Group, error) {
	if err := rollupField(field); err != nil {
		return nil, err
	}
	rows, err := e.queryRollups(ctx, f)
	if err != nil {
		return nil, err
	}
	return aggregate.GroupSums(rollupRecords(rows), field, 0), nil
}

func (e *Engine) read(ctx context.Context, source, scope string, f filter.Filter) ([]record.Record, error) {
	switch source {
	case "events":
		events, err := e.events.QueryEvents(ctx, scope, f)
		if err != nil {
			return nil, fmt.Errorf("query events: %w", err)
		}
		return eventRecords(events), nil
	case "rollup":
		rows, err := e.queryRollups(ctx, f)
		if err != nil {
			return nil, err
		}
		return rollupRecords(rows), nil
	}
	return nil, errs.Validation("source", fmt.Sprintf("unknown source %q", source))
}

func (e *Engine) queryRollups(ctx context.Context, f filter.Filter) ([]record.RollupRow, error) {
	rows, err := e.rollups.QueryRollups(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query rollups: %w", err)
	}
	return rows, nil
}

func kpiPayload(cfg map[string]any, records []record.Record) (widget.Payload, error) {
	metric := configString(cfg, "metric", "sum_amount")
	switch metric {
	case "sum_amount":
		return widget.ScalarPayload{Value: aggregate.Sum(records)}, nil
	case "avg_amount":
		return widget.ScalarPayload{Value: aggregate.Avg(records)}, nil
	case "count":
		return widget.ScalarPayload{Value: float64(aggregate.Count(records))}, nil
	}
	return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedMetric, metric)
}

// pieDefaultField picks the group-by default for pie widgets: channel for
// raw events, region for the denormalized rollup rows.
func pieDefaultField(source string) string {
	if source == "rollup" {
		return "region"
	}
	return "channel"
}

func rollupField(field string) error {
	if field != "product" && field != "region" {
		return errs.Validation("field", fmt.Sprintf("unknown rollup dimension %q", field))
	}
	return nil
}

func seriesFromGroups(kind widget.Type, groups []aggregate.Group) widget.SeriesPayload {
	labels := make([]string, len(groups))
	values := make([]float64, len(groups))
	for i, g := range groups {
		labels[i] = g.Label
		values[i] = g.Value
	}
	return widget.NewSeriesPayload(kind, labels, values)
}

func configString(cfg map[string]any, key, fallback string) string {
	if raw, ok := cfg[key]; ok {
		if s, ok := raw.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func eventRecords(events []record.Event) []record.Record {
	out := make([]record.Record, len(events))
	for i, ev := range events {
		out[i] = ev
	}
	return out
}

func rollupRecords(rows []record.RollupRow) []record.Record {
	out := make([]record.Record, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
