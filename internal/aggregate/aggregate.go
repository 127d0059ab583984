// Package aggregate implements the pure aggregation functions. Every
// function operates on a finite record sequence already narrowed by a
// filter, and yields well-defined zero values for empty input.
package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pulseboard/pulseboard/internal/record"
	"github.com/pulseboard/pulseboard/internal/widget"
)

// dayKey is the sortable bucket key; dayLabel the human-readable form.
const (
	dayKey   = "2006-01-02"
	dayLabel = "Jan 02"
)

// Sum totals the amount field, rounded to 2 decimal places.
func Sum(records []record.Record) float64 {
	return sumDecimal(records).Round(2).InexactFloat64()
}

// Avg is the mean amount, rounded to 2 decimal places. Zero records yield
// 0, not NaN.
func Avg(records []record.Record) float64 {
	if len(records) == 0 {
		return 0
	}
	n := decimal.NewFromInt(int64(len(records)))
	return sumDecimal(records).Div(n).Round(2).InexactFloat64()
}

// Count is the number of matching records.
func Count(records []record.Record) int {
	return len(records)
}

// ConversionRate is orders/users as a percentage rounded to 2 decimal
// places, 0 when there are no users.
func ConversionRate(orders, users int64) float64 {
	if users <= 0 {
		return 0
	}
	return decimal.NewFromInt(orders).
		Div(decimal.NewFromInt(users)).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		InexactFloat64()
}

// DailyBuckets groups records by UTC calendar day, sums the amount per
// bucket, and emits buckets in ascending date order. Labels are short
// date strings ("Jan 05"); values are rounded to 2 decimal places.
func DailyBuckets(records []record.Record) ([]string, []float64) {
	sums := make(map[string]decimal.Decimal)
	for _, r := range records {
		key := r.At().UTC().Format(dayKey)
		sums[key] = sums[key].Add(r.Amount())
	}

	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	labels := make([]string, 0, len(keys))
	values := make([]float64, 0, len(keys))
	for _, k := range keys {
		day, _ := time.Parse(dayKey, k)
		labels = append(labels, day.Format(dayLabel))
		values = append(values, sums[k].Round(2).InexactFloat64())
	}
	return labels, values
}

// Group is one aggregated group-by bucket.
type Group struct {
	Label string
	Value float64
}

// GroupSums groups records by a dimension, sums the amount per group, and
// sorts descending by sum with ties broken by ascending label. A positive
// limit truncates to the top groups; limit <= 0 returns all of them.
func GroupSums(records []record.Record, field string, limit int) []Group {
	sums := make(map[string]decimal.Decimal)
	for _, r := range records {
		label := r.Dimension(field)
		sums[label] = sums[label].Add(r.Amount())
	}

	groups := make([]Group, 0, len(sums))
	for label, sum := range sums {
		groups = append(groups, Group{Label: label, Value: sum.Round(2).InexactFloat64()})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Value != groups[j].Value {
			return groups[i].Value > groups[j].Value
		}
		return groups[i].Label < groups[j].Label
	})

	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups
}

// RecentRows orders records by timestamp descending, takes the first limit
// rows, and projects them to the fixed table field set.
func RecentRows(records []record.Record, limit int) []widget.TableRow {
	sorted := make([]record.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At().After(sorted[j].At())
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	rows := make([]widget.TableRow, 0, len(sorted))
	for _, r := range sorted {
		rows = append(rows, widget.TableRow{
			OccurredAt: r.At(),
			Product:    r.Dimension("product"),
			Channel:    r.Dimension("channel"),
			Region:     r.Dimension("region"),
			Amount:     r.Amount().Round(2).InexactFloat64(),
		})
	}
	return rows
}

func sumDecimal(records []record.Record) decimal.Decimal {
	var total decimal.Decimal
	for _, r := range records {
		total = total.Add(r.Amount())
	}
	return total
}
