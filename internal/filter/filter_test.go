package filter

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pulseboard/pulseboard/internal/errs"
	"github.com/pulseboard/pulseboard/internal/record"
)

func TestBuild(t *testing.T) {
	cases := []struct {
		name    string
		cfg     map[string]any
		check   func(t *testing.T, f Filter)
		wantErr bool
	}{
		{
			name: "full config",
			cfg: map[string]any{
				"date_from": "2024-01-01",
				"date_to":   "2024-02-01",
				"product":   "Gadget",
				"region":    "EU",
				"channels":  []any{"web", "retail"},
			},
			check: func(t *testing.T, f Filter) {
				if f.From == nil || f.To == nil {
					t.Fatal("expected date range to be set")
				}
				if !f.From.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
					t.Errorf("From = %v", f.From)
				}
				if f.Product != "Gadget" || f.Region != "EU" {
					t.Errorf("product/region = %q/%q", f.Product, f.Region)
				}
				if len(f.Channels) != 2 {
					t.Errorf("channels = %v", f.Channels)
				}
			},
		},
		{
			name: "date_from without date_to is no restriction",
			cfg:  map[string]any{"date_from": "2024-01-01"},
			check: func(t *testing.T, f Filter) {
				if f.From != nil || f.To != nil {
					t.Errorf("expected no date range, got %v..%v", f.From, f.To)
				}
			},
		},
		{
			name: "unrecognized keys ignored",
			cfg:  map[string]any{"metric": "sum_amount", "group_by": "product"},
			check: func(t *testing.T, f Filter) {
				if f.From != nil || f.Product != "" || f.Region != "" || len(f.Channels) != 0 {
					t.Errorf("expected empty filter, got %+v", f)
				}
			},
		},
		{
			name:    "malformed date fails",
			cfg:     map[string]any{"date_from": "not-a-date", "date_to": "2024-02-01"},
			wantErr: true,
		},
		{
			name:    "non-string channel entry fails",
			cfg:     map[string]any{"channels": []any{"web", 7}},
			wantErr: true,
		},
		{
			name: "rfc3339 dates accepted",
			cfg: map[string]any{
				"date_from": "2024-01-01T12:30:00Z",
				"date_to":   "2024-01-02T00:00:00Z",
			},
			check: func(t *testing.T, f Filter) {
				if f.From == nil || f.From.Hour() != 12 {
					t.Errorf("From = %v", f.From)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Build(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errs.IsValidation(err) {
					t.Errorf("expected ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.check(t, f)
		})
	}
}

func makeEvent(day, product, region, channel string, amount int64) record.Event {
	at, _ := time.Parse("2006-01-02", day)
	return record.Event{
		OccurredAt: at,
		AmountVal:  decimal.NewFromInt(amount),
		Product:    product,
		Region:     region,
		Channel:    channel,
	}
}

func TestMatches(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		f    Filter
		r    record.Record
		want bool
	}{
		{
			name: "empty filter matches everything",
			f:    Filter{},
			r:    makeEvent("2020-06-15", "X", "", "", 1),
			want: true,
		},
		{
			name: "in range",
			f:    Filter{From: &from, To: &to},
			r:    makeEvent("2024-01-15", "X", "", "", 1),
			want: true,
		},
		{
			name: "to is exclusive",
			f:    Filter{From: &from, To: &to},
			r:    makeEvent("2024-02-01", "X", "", "", 1),
			want: false,
		},
		{
			name: "from is inclusive",
			f:    Filter{From: &from, To: &to},
			r:    makeEvent("2024-01-01", "X", "", "", 1),
			want: true,
		},
		{
			name: "product equality is case-insensitive",
			f:    Filter{Product: "gadget"},
			r:    makeEvent("2024-01-15", "GADGET", "", "", 1),
			want: true,
		},
		{
			name: "region mismatch",
			f:    Filter{Region: "EU"},
			r:    makeEvent("2024-01-15", "X", "US", "", 1),
			want: false,
		},
		{
			name: "channel whitelist hit",
			f:    Filter{Channels: []string{"web", "retail"}},
			r:    makeEvent("2024-01-15", "X", "", "retail", 1),
			want: true,
		},
		{
			name: "channel whitelist miss",
			f:    Filter{Channels: []string{"web"}},
			r:    makeEvent("2024-01-15", "X", "", "partner", 1),
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.f.Matches(tc.r); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}
