package widget

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/pulseboard/pulseboard/internal/errs"
)

// Payload is the computed, cacheable result for a widget. Each widget type
// has exactly one concrete payload shape; payloads are validated before
// they reach the cache so downstream consumers never see partial data.
type Payload interface {
	Kind() Type
	Validate() error
}

// ScalarPayload is the KPI result: a single numeric value.
type ScalarPayload struct {
	Value float64 `json:"value"`
}

func (p ScalarPayload) Kind() Type { return KPI }

func (p ScalarPayload) Validate() error {
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
		return fmt.Errorf("scalar payload: non-finite value")
	}
	return nil
}

// SeriesPayload is the result for timeseries, bar, and pie widgets:
// parallel label and value sequences.
type SeriesPayload struct {
	Labels []string  `json:"labels"`
	Series []float64 `json:"series"`

	kind Type
}

// NewSeriesPayload builds a SeriesPayload tagged with the widget type that
// produced it. Labels and series are never nil.
func NewSeriesPayload(kind Type, labels []string, series []float64) SeriesPayload {
	if labels == nil {
		labels = []string{}
	}
	if series == nil {
		series = []float64{}
	}
	return SeriesPayload{Labels: labels, Series: series, kind: kind}
}

func (p SeriesPayload) Kind() Type { return p.kind }

func (p SeriesPayload) Validate() error {
	if p.Labels == nil || p.Series == nil {
		return fmt.Errorf("series payload: nil sequences")
	}
	if len(p.Labels) != len(p.Series) {
		return fmt.Errorf("series payload: %d labels vs %d values", len(p.Labels), len(p.Series))
	}
	return nil
}

// TableRow is one projected event row in a table payload.
type TableRow struct {
	OccurredAt time.Time `json:"occurred_at"`
	Product    string    `json:"product"`
	Channel    string    `json:"channel"`
	Region     string    `json:"region"`
	Amount     float64   `json:"amount"`
}

// TablePayload is the table widget result: the most recent matching rows.
type TablePayload struct {
	Rows []TableRow `json:"rows"`
}

func (p TablePayload) Kind() Type { return Table }

func (p TablePayload) Validate() error {
	if p.Rows == nil {
		return fmt.Errorf("table payload: nil rows")
	}
	return nil
}

// EmptyPayload returns the zero-valued payload for a widget type, used by
// read paths that must always return a well-formed shape.
func EmptyPayload(t Type) Payload {
	switch t {
	case KPI:
		return ScalarPayload{}
	case TimeSeries, Bar, Pie:
		return NewSeriesPayload(t, nil, nil)
	case Table:
		return TablePayload{Rows: []TableRow{}}
	}
	return nil
}

// payloadEnvelope tags serialized payloads with their widget type so the
// persistent cache can decode them back into the right concrete shape.
type payloadEnvelope struct {
	Kind Type            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodePayload serializes a payload for persistent storage.
func EncodePayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return json.Marshal(payloadEnvelope{Kind: p.Kind(), Data: data})
}

// DecodePayload reverses EncodePayload.
func DecodePayload(raw []byte) (Payload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	switch env.Kind {
	case KPI:
		var p ScalarPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode kpi payload: %w", err)
		}
		return p, nil
	case TimeSeries, Bar, Pie:
		var p SeriesPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode series payload: %w", err)
		}
		return NewSeriesPayload(env.Kind, p.Labels, p.Series), nil
	case Table:
		var p TablePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode table payload: %w", err)
		}
		if p.Rows == nil {
			p.Rows = []TableRow{}
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedWidgetType, env.Kind)
}
