package postgres

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pulseboard/pulseboard/internal/record"
)

type salesEventModel struct {
	ID         string          `gorm:"primaryKey;size:36"`
	Scope      string          `gorm:"size:64;index:idx_events_scope_at,priority:1"`
	OccurredAt time.Time       `gorm:"index:idx_events_scope_at,priority:2"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2)"`
	Cost       decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	Product    string          `gorm:"size:80"`
	Channel    string          `gorm:"size:50"`
	Region     string          `gorm:"size:50"`
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
}

func (salesEventModel) TableName() string { return "sales_events" }

func (m salesEventModel) toRecord() record.Event {
	return record.Event{
		ID:         m.ID,
		Scope:      m.Scope,
		OccurredAt: m.OccurredAt.UTC(),
		AmountVal:  m.Amount,
		Cost:       m.Cost,
		Product:    m.Product,
		Channel:    m.Channel,
		Region:     m.Region,
	}
}

func eventModelFromRecord(ev record.Event) salesEventModel {
	return salesEventModel{
		ID:         ev.ID,
		Scope:      ev.Scope,
		OccurredAt: ev.OccurredAt.UTC(),
		Amount:     ev.AmountVal,
		Cost:       ev.Cost,
		Product:    ev.Product,
		Channel:    ev.Channel,
		Region:     ev.Region,
	}
}

type metricPointModel struct {
	Date    time.Time       `gorm:"primaryKey"`
	Product string          `gorm:"primaryKey;size:100"`
	Region  string          `gorm:"primaryKey;size:20"`
	Revenue decimal.Decimal `gorm:"type:decimal(12,2)"`
	Users   int64           `gorm:"not null"`
	Orders  int64           `gorm:"not null"`
}

func (metricPointModel) TableName() string { return "metric_points" }

func (m metricPointModel) toRecord() record.RollupRow {
	return record.RollupRow{
		Date:    m.Date.UTC(),
		Product: m.Product,
		Region:  m.Region,
		Revenue: m.Revenue,
		Users:   m.Users,
		Orders:  m.Orders,
	}
}

func rollupModelFromRecord(row record.RollupRow) metricPointModel {
	return metricPointModel{
		Date:    row.Date.UTC(),
		Product: row.Product,
		Region:  row.Region,
		Revenue: row.Revenue,
		Users:   row.Users,
		Orders:  row.Orders,
	}
}

type widgetCacheModel struct {
	WidgetID  string    `gorm:"primaryKey;size:80"`
	Payload   []byte    `gorm:"type:jsonb"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (widgetCacheModel) TableName() string { return "widget_cache" }
