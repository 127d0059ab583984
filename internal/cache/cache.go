// Package cache stores computed widget payloads keyed by widget id.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/pulseboard/pulseboard/internal/errs"
	"github.com/pulseboard/pulseboard/internal/widget"
)

// Entry is one cached computation result. An entry is always written as a
// whole: payload and timestamp come from the same refresh.
type Entry struct {
	WidgetID  string
	Payload   widget.Payload
	UpdatedAt time.Time
}

// Store is the cache contract. Put overwrites atomically; readers never
// observe a payload and timestamp from different computations. Get returns
// errs.ErrNotFound for unknown widgets.
type Store interface {
	Get(ctx context.Context, widgetID string) (Entry, error)
	Put(ctx context.Context, widgetID string, payload widget.Payload, updatedAt time.Time) error
	Delete(ctx context.Context, widgetID string) error
}

// GetOrCreateEmpty returns the cached entry for a widget, or a zero-valued
// entry of the widget's payload shape with a zero timestamp when none
// exists. Read paths that must always return something use this.
func GetOrCreateEmpty(ctx context.Context, s Store, widgetID string, t widget.Type) (Entry, error) {
	entry, err := s.Get(ctx, widgetID)
	if err == nil {
		return entry, nil
	}
	if errors.Is(err, errs.ErrNotFound) {
		return Entry{WidgetID: widgetID, Payload: widget.EmptyPayload(t)}, nil
	}
	return Entry{}, err
}
