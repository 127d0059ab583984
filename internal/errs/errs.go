// Package errs defines the error taxonomy shared by the query engine,
// cache store, and refresh scheduler.
package errs

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks an unknown widget or a missing cache entry.
	ErrNotFound = errors.New("not found")

	// ErrSourceUnavailable marks a transient data-source failure; the
	// scheduler retries these with backoff.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrUnsupportedMetric marks a KPI metric name outside the known set.
	ErrUnsupportedMetric = errors.New("unsupported metric")

	// ErrUnsupportedWidgetType marks a widget type outside the known set.
	ErrUnsupportedWidgetType = errors.New("unsupported widget type")

	// ErrRefreshInFlight is returned by a manual trigger when the widget's
	// refresh lock is already held.
	ErrRefreshInFlight = errors.New("refresh already in flight")
)

// ValidationError reports malformed filter or widget configuration input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for a config field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Retryable reports whether a refresh failure is transient: source outages
// and deadline overruns are retried with backoff, everything else is not.
func Retryable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ConfigError reports whether a refresh failure is caused by the widget's
// configuration. Retrying these is pointless until the config changes.
func ConfigError(err error) bool {
	return errors.Is(err, ErrUnsupportedMetric) ||
		errors.Is(err, ErrUnsupportedWidgetType) ||
		IsValidation(err)
}
