// Package record holds the two source data models (raw sales events and
// pre-aggregated daily rollups) and the unified read contract the
// aggregation layer consumes.
package record

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is the uniform view the aggregation functions operate on,
// regardless of whether the data came from raw events or rollup rows.
type Record interface {
	// At returns the record's timestamp. For rollup rows this is the
	// calendar date at midnight UTC.
	At() time.Time
	// Amount returns the record's primary measure: event amount for raw
	// events, revenue for rollup rows.
	Amount() decimal.Decimal
	// Dimension returns the value of a named grouping field ("product",
	// "region", "channel"). Unknown fields resolve to "".
	Dimension(name string) string
}

// Event is a single raw sales event. Immutable once recorded.
type Event struct {
	ID         string          `json:"id"`
	Scope      string          `json:"scope"` // owning organization
	OccurredAt time.Time       `json:"occurred_at"`
	AmountVal  decimal.Decimal `json:"amount"`
	Cost       decimal.Decimal `json:"cost"`
	Product    string          `json:"product"`
	Channel    string          `json:"channel,omitempty"`
	Region     string          `json:"region,omitempty"`
}

func (e Event) At() time.Time           { return e.OccurredAt }
func (e Event) Amount() decimal.Decimal { return e.AmountVal }

func (e Event) Dimension(name string) string {
	switch name {
	case "product":
		return e.Product
	case "channel":
		return e.Channel
	case "region":
		return e.Region
	}
	return ""
}

// RollupRow is one pre-aggregated daily row, unique per
// (date, product, region). Immutable once recorded.
type RollupRow struct {
	Date    time.Time       `json:"date"`
	Product string          `json:"product"`
	Region  string          `json:"region"`
	Revenue decimal.Decimal `json:"revenue"`
	Users   int64           `json:"users"`
	Orders  int64           `json:"orders"`
}

func (r RollupRow) At() time.Time           { return r.Date }
func (r RollupRow) Amount() decimal.Decimal { return r.Revenue }

func (r RollupRow) Dimension(name string) string {
	switch name {
	case "product":
		return r.Product
	case "region":
		return r.Region
	}
	return ""
}
