// Package filter implements the predicate model: a widget or query
// configuration is normalized into a Filter that both data sources
// understand.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/internal/errs"
	"github.com/pulseboard/pulseboard/internal/record"
)

// Filter narrows a record set by date range, product, region, and channel.
// Zero-valued fields place no restriction on their dimension.
type Filter struct {
	From     *time.Time // inclusive
	To       *time.Time // exclusive
	Product  string     // case-insensitive equality
	Region   string     // case-insensitive equality
	Channels []string   // whitelist; empty = all channels
}

// Build normalizes a configuration mapping into a Filter. Recognized keys:
// date_from, date_to, product, region, channels. Unrecognized keys are
// ignored. date_from and date_to only restrict when both are present;
// a malformed date string is a validation error, not a silent no-op.
func Build(cfg map[string]any) (Filter, error) {
	var f Filter

	fromRaw, hasFrom := stringKey(cfg, "date_from")
	toRaw, hasTo := stringKey(cfg, "date_to")
	if hasFrom && hasTo {
		from, err := parseDate("date_from", fromRaw)
		if err != nil {
			return Filter{}, err
		}
		to, err := parseDate("date_to", toRaw)
		if err != nil {
			return Filter{}, err
		}
		f.From = &from
		f.To = &to
	}

	if v, ok := stringKey(cfg, "product"); ok {
		f.Product = v
	}
	if v, ok := stringKey(cfg, "region"); ok {
		f.Region = v
	}

	if raw, ok := cfg["channels"]; ok && raw != nil {
		channels, err := stringSlice(raw)
		if err != nil {
			return Filter{}, errs.Validation("channels", err.Error())
		}
		f.Channels = channels
	}

	return f, nil
}

// Matches reports whether r passes every restriction in f.
func (f Filter) Matches(r record.Record) bool {
	at := r.At()
	if f.From != nil && at.Before(*f.From) {
		return false
	}
	if f.To != nil && !at.Before(*f.To) {
		return false
	}
	if f.Product != "" && !strings.EqualFold(f.Product, r.Dimension("product")) {
		return false
	}
	if f.Region != "" && !strings.EqualFold(f.Region, r.Dimension("region")) {
		return false
	}
	if len(f.Channels) > 0 {
		ch := r.Dimension("channel")
		found := false
		for _, want := range f.Channels {
			if want == ch {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// dateLayouts are accepted for date_from/date_to, most specific first.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDate(field, raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errs.Validation(field, fmt.Sprintf("unparseable date %q", raw))
}

func stringKey(cfg map[string]any, key string) (string, bool) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return "", false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func stringSlice(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string list, got %T element", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", raw)
	}
}
