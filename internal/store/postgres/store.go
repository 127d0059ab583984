// Package postgres backs the event, rollup, and cache stores with a
// Postgres database through GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pulseboard/pulseboard/internal/cache"
	"github.com/pulseboard/pulseboard/internal/errs"
	"github.com/pulseboard/pulseboard/internal/filter"
	"github.com/pulseboard/pulseboard/internal/record"
	"github.com/pulseboard/pulseboard/internal/widget"
)

// Store implements the event, rollup, and cache store contracts over one
// database handle.
type Store struct {
	db *gorm.DB
}

// Connect opens the database, verifies connectivity, and migrates the
// schema.
func Connect(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := db.AutoMigrate(&salesEventModel{}, &metricPointModel{}, &widgetCacheModel{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) QueryEvents(ctx context.Context, scope string, f filter.Filter) ([]record.Event, error) {
	tx := s.db.WithContext(ctx).Model(&salesEventModel{}).Where("scope = ?", scope)
	tx = applyDateRange(tx, "occurred_at", f)
	if f.Product != "" {
		tx = tx.Where("LOWER(product) = LOWER(?)", f.Product)
	}
	if f.Region != "" {
		tx = tx.Where("LOWER(region) = LOWER(?)", f.Region)
	}
	if len(f.Channels) > 0 {
		tx = tx.Where("channel IN ?", f.Channels)
	}

	var rows []salesEventModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, sourceErr("query events", err)
	}
	out := make([]record.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

func (s *Store) QueryRollups(ctx context.Context, f filter.Filter) ([]record.RollupRow, error) {
	tx := s.db.WithContext(ctx).Model(&metricPointModel{})
	tx = applyDateRange(tx, "date", f)
	// The rollup schema is denormalized, so product/region equality pushes
	// down directly.
	if f.Product != "" {
		tx = tx.Where("LOWER(product) = LOWER(?)", f.Product)
	}
	if f.Region != "" {
		tx = tx.Where("LOWER(region) = LOWER(?)", f.Region)
	}

	var rows []metricPointModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, sourceErr("query rollups", err)
	}
	out := make([]record.RollupRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// AppendEvents inserts new events, assigning ids where absent.
func (s *Store) AppendEvents(ctx context.Context, events []record.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]salesEventModel, 0, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		rows = append(rows, eventModelFromRecord(ev))
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return sourceErr("append events", err)
	}
	return nil
}

// UpsertRollup writes one daily row, replacing any previous row for the
// same (date, product, region).
func (s *Store) UpsertRollup(ctx context.Context, row record.RollupRow) error {
	model := rollupModelFromRecord(row)
	model.Date = midnightUTC(model.Date)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "product"}, {Name: "region"}},
			UpdateAll: true,
		}).
		Create(&model).Error
	if err != nil {
		return sourceErr("upsert rollup", err)
	}
	return nil
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, widgetID string) (cache.Entry, error) {
	var row widgetCacheModel
	err := s.db.WithContext(ctx).Where("widget_id = ?", widgetID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cache.Entry{}, fmt.Errorf("cache entry %s: %w", widgetID, errs.ErrNotFound)
		}
		return cache.Entry{}, sourceErr("cache get", err)
	}
	payload, err := widget.DecodePayload(row.Payload)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("cache entry %s: %w", widgetID, err)
	}
	return cache.Entry{WidgetID: row.WidgetID, Payload: payload, UpdatedAt: row.UpdatedAt.UTC()}, nil
}

// Put implements cache.Store. The upsert replaces payload and timestamp in
// one statement, so readers never see them from different computations.
func (s *Store) Put(ctx context.Context, widgetID string, payload widget.Payload, updatedAt time.Time) error {
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("cache put %s: %w", widgetID, err)
	}
	raw, err := widget.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("cache put %s: %w", widgetID, err)
	}
	row := widgetCacheModel{WidgetID: widgetID, Payload: raw, UpdatedAt: updatedAt.UTC()}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "widget_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return sourceErr("cache put", err)
	}
	return nil
}

// Delete implements cache.Store.
func (s *Store) Delete(ctx context.Context, widgetID string) error {
	err := s.db.WithContext(ctx).Where("widget_id = ?", widgetID).Delete(&widgetCacheModel{}).Error
	if err != nil {
		return sourceErr("cache delete", err)
	}
	return nil
}

func applyDateRange(tx *gorm.DB, column string, f filter.Filter) *gorm.DB {
	if f.From != nil {
		tx = tx.Where(column+" >= ?", *f.From)
	}
	if f.To != nil {
		tx = tx.Where(column+" < ?", *f.To)
	}
	return tx
}

// sourceErr classifies database failures as transient so the scheduler
// retries them with backoff.
func sourceErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, errs.ErrSourceUnavailable, err)
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
