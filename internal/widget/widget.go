// Package widget defines widget specifications, the closed set of widget
// types, and the typed payload variants the cache stores.
package widget

import (
	"fmt"

	"github.com/pulseboard/pulseboard/internal/errs"
)

// Type enumerates the supported widget kinds. The set is closed: the query
// engine switches over it exhaustively.
type Type string

const (
	KPI        Type = "kpi"
	TimeSeries Type = "timeseries"
	Bar        Type = "bar"
	Pie        Type = "pie"
	Table      Type = "table"
)

// Types lists every valid widget type.
var Types = []Type{KPI, TimeSeries, Bar, Pie, Table}

// ParseType validates a widget type string.
func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", errs.ErrUnsupportedWidgetType, s)
}

// Spec is a widget definition. Specs are owned by the management layer
// (here: the YAML config file) and are read-only to the engine.
type Spec struct {
	ID             string         `yaml:"id" json:"id"`
	Type           Type           `yaml:"type" json:"type"`
	Title          string         `yaml:"title" json:"title,omitempty"`
	Scope          string         `yaml:"scope" json:"scope"`
	RefreshSeconds int            `yaml:"refresh_seconds" json:"refresh_seconds"`
	Config         map[string]any `yaml:"config" json:"config,omitempty"`
}

// Repository is the read contract the scheduler and API consume.
type Repository interface {
	List() []Spec
	Get(id string) (Spec, error)
}
