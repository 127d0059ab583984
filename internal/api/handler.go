// Package api is the thin HTTP layer over the engine: it parses requests,
// maps domain errors to status codes, and serves cached payloads. All
// computation lives behind it.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulseboard/pulseboard/internal/aggregate"
	"github.com/pulseboard/pulseboard/internal/cache"
	"github.com/pulseboard/pulseboard/internal/errs"
	"github.com/pulseboard/pulseboard/internal/filter"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/query"
	"github.com/pulseboard/pulseboard/internal/record"
	"github.com/pulseboard/pulseboard/internal/scheduler"
	"github.com/pulseboard/pulseboard/internal/widget"
)

const maxBatchSize = 500

// EventWriter is the ingestion contract for raw events.
type EventWriter interface {
	AppendEvents(ctx context.Context, events []record.Event) error
}

// RollupWriter is the ingestion contract for daily rollup rows.
type RollupWriter interface {
	UpsertRollup(ctx context.Context, row record.RollupRow) error
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	widgets widget.Repository
	sched   *scheduler.Scheduler
	engine  *query.Engine
	store   cache.Store
	events  EventWriter
	rollups RollupWriter
	mux     *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(widgets widget.Repository, sched *scheduler.Scheduler, engine *query.Engine, store cache.Store, events EventWriter, rollups RollupWriter) http.Handler {
	h := &Handler{
		widgets: widgets,
		sched:   sched,
		engine:  engine,
		store:   store,
		events:  events,
		rollups: rollups,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /v1/widgets", h.listWidgets)
	h.mux.HandleFunc("GET /v1/widgets/{id}/payload", h.widgetPayload)
	h.mux.HandleFunc("POST /v1/widgets/{id}/refresh", h.refreshWidget)

	h.mux.HandleFunc("GET /v1/analytics/kpis", h.kpis)
	h.mux.HandleFunc("GET /v1/analytics/trend", h.trend)
	h.mux.HandleFunc("GET /v1/analytics/top-products", h.topProducts)
	h.mux.HandleFunc("GET /v1/analytics/distribution", h.distribution)

	h.mux.HandleFunc("POST /v1/events", h.ingestEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.ingestBatch)
	h.mux.HandleFunc("POST /v1/rollups", h.ingestRollup)

	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

type widgetView struct {
	widget.Spec
	Status statusView `json:"status"`
}

type statusView struct {
	State     string     `json:"state"`
	RetryAt   *time.Time `json:"retry_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

func statusViewFrom(st scheduler.Status) statusView {
	v := statusView{State: st.State.String(), LastError: st.LastError}
	if !st.RetryAt.IsZero() {
		t := st.RetryAt
		v.RetryAt = &t
	}
	return v
}

// GET /v1/widgets — definitions plus refresh status.
func (h *Handler) listWidgets(w http.ResponseWriter, r *http.Request) {
	specs := h.widgets.List()
	out := make([]widgetView, 0, len(specs))
	for _, spec := range specs {
		out = append(out, widgetView{Spec: spec, Status: statusViewFrom(h.sched.Status(spec.ID))})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"widgets": out})
}

// GET /v1/widgets/{id}/payload — last computed payload, zero-valued if the
// widget has never been refreshed.
func (h *Handler) widgetPayload(w http.ResponseWriter, r *http.Request) {
	spec, err := h.widgets.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	entry, err := cache.GetOrCreateEmpty(r.Context(), h.store, spec.ID, spec.Type)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	var updatedAt *time.Time
	if !entry.UpdatedAt.IsZero() {
		t := entry.UpdatedAt
		updatedAt = &t
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"widget_id":  spec.ID,
		"type":       spec.Type,
		"payload":    entry.Payload,
		"updated_at": updatedAt,
	})
}

// POST /v1/widgets/{id}/refresh — synchronous manual refresh.
func (h *Handler) refreshWidget(w http.ResponseWriter, r *http.Request) {
	res, err := h.sched.Refresh(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /v1/analytics/kpis — revenue, active users, conversion rate.
func (h *Handler) kpis(w http.ResponseWriter, r *http.Request) {
	f, ok := h.queryFilter(w, r)
	if !ok {
		return
	}
	set, err := h.engine.KPISummary(r.Context(), f)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	metrics.QueriesTotal.WithLabelValues("kpis").Inc()
	writeJSON(w, http.StatusOK, set)
}

// GET /v1/analytics/trend — daily revenue, ascending.
func (h *Handler) trend(w http.ResponseWriter, r *http.Request) {
	f, ok := h.queryFilter(w, r)
	if !ok {
		return
	}
	points, err := h.engine.Trend(r.Context(), f)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	metrics.QueriesTotal.WithLabelValues("trend").Inc()
	writeJSON(w, http.StatusOK, groupsToPoints(points))
}

// GET /v1/analytics/top-products — top revenue products (default 5).
func (h *Handler) topProducts(w http.ResponseWriter, r *http.Request) {
	f, ok := h.queryFilter(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	groups, err := h.engine.TopGroups(r.Context(), f, "product", limit)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	metrics.QueriesTotal.WithLabelValues("top_products").Inc()
	writeJSON(w, http.StatusOK, groupsToPoints(groups))
}

// GET /v1/analytics/distribution — revenue per group, all groups.
func (h *Handler) distribution(w http.ResponseWriter, r *http.Request) {
	f, ok := h.queryFilter(w, r)
	if !ok {
		return
	}
	field := r.URL.Query().Get("field")
	if field == "" {
		field = "region"
	}
	groups, err := h.engine.Distribution(r.Context(), f, field)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	metrics.QueriesTotal.WithLabelValues("distribution").Inc()
	writeJSON(w, http.StatusOK, groupsToPoints(groups))
}

// POST /v1/events — single event ingestion.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var ev record.Event
	if err := decodeBody(r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateEvent(&ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.events.AppendEvents(r.Context(), []record.Event{ev}); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": ev.ID})
}

// POST /v1/events/batch — bulk ingestion (up to 500 events).
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var events []record.Event
	if err := decodeBody(r, &events); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(events) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(events), maxBatchSize))
		return
	}
	for i := range events {
		if err := validateEvent(&events[i]); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("events[%d]: %s", i, err))
			return
		}
	}
	if err := h.events.AppendEvents(r.Context(), events); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": uuid.New().String(),
		"total":  len(events),
	})
}

// POST /v1/rollups — upsert one daily rollup row.
func (h *Handler) ingestRollup(w http.ResponseWriter, r *http.Request) {
	var row record.RollupRow
	if err := decodeBody(r, &row); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if row.Date.IsZero() || row.Product == "" || row.Region == "" {
		writeError(w, http.StatusBadRequest, "date, product, and region are required")
		return
	}
	if row.Users < 0 || row.Orders < 0 {
		writeError(w, http.StatusBadRequest, "users and orders must be >= 0")
		return
	}
	if err := h.rollups.UpsertRollup(r.Context(), row); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "stored"})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the refresh queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.sched.QueueUtilization()
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}

// queryFilter builds a Filter from URL query parameters; it writes a 400
// and returns ok=false on malformed input.
func (h *Handler) queryFilter(w http.ResponseWriter, r *http.Request) (filter.Filter, bool) {
	q := r.URL.Query()
	cfg := make(map[string]any)
	for _, key := range []string{"date_from", "date_to", "product", "region"} {
		if v := q.Get(key); v != "" {
			cfg[key] = v
		}
	}
	if v := q.Get("channels"); v != "" {
		parts := strings.Split(v, ",")
		channels := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				channels = append(channels, p)
			}
		}
		cfg["channels"] = channels
	}
	f, err := filter.Build(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return filter.Filter{}, false
	}
	return f, true
}

type point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

func groupsToPoints(groups []aggregate.Group) []point {
	out := make([]point, len(groups))
	for i, g := range groups {
		out[i] = point{Label: g.Label, Value: g.Value}
	}
	return out
}

func validateEvent(ev *record.Event) error {
	if ev.Product == "" {
		return fmt.Errorf("product is required")
	}
	if ev.Scope == "" {
		return fmt.Errorf("scope is required")
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if ev.AmountVal.IsNegative() || ev.Cost.IsNegative() {
		return fmt.Errorf("amount and cost must be >= 0")
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrRefreshInFlight):
		return http.StatusConflict
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errs.ConfigError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errs.ErrSourceUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
