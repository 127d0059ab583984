// Package scheduler drives widget refreshes: it detects stale cache
// entries, recomputes payloads through the query engine, and enforces
// at-most-one in-flight refresh per widget.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pulseboard/pulseboard/internal/cache"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/errs"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/query"
	"github.com/pulseboard/pulseboard/internal/widget"
)

// State is a widget's position in the refresh state machine.
type State int

const (
	Idle State = iota
	Running
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MarshalJSON renders the state as its lowercase name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Status is the externally visible refresh state of one widget.
type Status struct {
	State     State     `json:"state"`
	Attempts  int       `json:"attempts,omitempty"`
	RetryAt   time.Time `json:"retry_at"`
	LastError string    `json:"last_error,omitempty"`
}

// RefreshResult reports a completed refresh.
type RefreshResult struct {
	WidgetID    string    `json:"widget_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Conf holds the scheduler's tunables, derived from config.EngineConf.
type Conf struct {
	Workers        int
	QueueDepth     int
	RefreshTimeout time.Duration
	ScanInterval   time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

// ConfFrom converts the YAML engine section into scheduler tunables.
func ConfFrom(ec config.EngineConf) Conf {
	return Conf{
		Workers:        ec.RefreshWorkers,
		QueueDepth:     ec.QueueDepth,
		RefreshTimeout: time.Duration(ec.RefreshTimeoutMs) * time.Millisecond,
		ScanInterval:   time.Duration(ec.ScanIntervalMs) * time.Millisecond,
		BackoffBase:    time.Duration(ec.BackoffBaseMs) * time.Millisecond,
		BackoffMax:     time.Duration(ec.BackoffMaxMs) * time.Millisecond,
	}
}

// widgetState is the per-widget registry entry. The running flag is the
// exclusive refresh lock; mu guards the bookkeeping fields.
type widgetState struct {
	running atomic.Bool

	mu       sync.Mutex
	state    State
	attempts int
	retryAt  time.Time
	lastErr  string
}

func (st *widgetState) status() Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	return Status{
		State:     st.state,
		Attempts:  st.attempts,
		RetryAt:   st.retryAt,
		LastError: st.lastErr,
	}
}

// Scheduler owns the cache-entry lifecycle and the per-widget locks.
type Scheduler struct {
	widgets widget.Repository
	engine  *query.Engine
	cache   cache.Store
	clock   clockwork.Clock
	conf    Conf
	pool    *refreshPool

	mu     sync.Mutex
	states map[string]*widgetState
}

// New creates a Scheduler and starts its worker pool.
func New(ctx context.Context, widgets widget.Repository, engine *query.Engine, store cache.Store, clock clockwork.Clock, conf Conf) *Scheduler {
	s := &Scheduler{
		widgets: widgets,
		engine:  engine,
		cache:   store,
		clock:   clock,
		conf:    conf,
		states:  make(map[string]*widgetState),
	}
	s.pool = newRefreshPool(ctx, conf.Workers, conf.QueueDepth, func(ctx context.Context, spec widget.Spec) {
		// Staleness is re-checked under the lock; a queued job that lost
		// the race with a manual trigger becomes a no-op.
		if _, err := s.refresh(ctx, spec, false); err != nil && !expectedRefreshErr(err) {
			slog.Error("refresh failed", "widget", spec.ID, "err", err)
		}
	})
	return s
}

// Run scans for stale widgets until ctx is cancelled. It owns the
// lifecycle of per-widget state: entries for deleted widgets are dropped
// together with their cache entries.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.conf.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Scan(ctx)
		}
	}
}

// Scan enqueues a refresh for every widget that is due. Exposed for tests
// and for the initial warm-up pass at startup.
func (s *Scheduler) Scan(ctx context.Context) {
	specs := s.widgets.List()
	s.dropDeleted(ctx, specs)
	metrics.WidgetsTracked.Set(float64(len(specs)))
	metrics.QueueUtilization.Set(s.QueueUtilization())

	for _, spec := range specs {
		if !s.due(ctx, spec) {
			continue
		}
		if !s.pool.Submit(spec) {
			metrics.RefreshesDropped.Inc()
		}
	}
}

// Refresh runs one synchronous, manually triggered refresh. It funnels
// through the same per-widget lock as scheduled refreshes: if one is
// already in flight the trigger returns errs.ErrRefreshInFlight.
func (s *Scheduler) Refresh(ctx context.Context, widgetID string) (RefreshResult, error) {
	spec, err := s.widgets.Get(widgetID)
	if err != nil {
		return RefreshResult{}, err
	}
	return s.refresh(ctx, spec, true)
}

// Status reports the refresh state of one widget.
func (s *Scheduler) Status(widgetID string) Status {
	s.mu.Lock()
	st, ok := s.states[widgetID]
	s.mu.Unlock()
	if !ok {
		return Status{State: Idle}
	}
	return st.status()
}

// ResetFailures clears Failed states so widgets whose configuration was
// just reloaded become immediately eligible again.
func (s *Scheduler) ResetFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		st.mu.Lock()
		if st.state == Failed {
			st.state = Idle
			st.attempts = 0
			st.retryAt = time.Time{}
		}
		st.mu.Unlock()
	}
}

// QueueUtilization returns queue used / capacity (0–1).
func (s *Scheduler) QueueUtilization() float64 {
	if s.pool.QueueCap() == 0 {
		return 0
	}
	return float64(s.pool.QueueLen()) / float64(s.pool.QueueCap())
}

// Shutdown drains the worker pool.
func (s *Scheduler) Shutdown() {
	s.pool.Drain()
}

// refresh is the single funnel for both trigger kinds. It acquires the
// per-widget lock, re-checks eligibility (unless forced), computes the
// payload under a deadline, and writes the cache entry as one unit. On
// failure the previous cache entry is left untouched.
func (s *Scheduler) refresh(ctx context.Context, spec widget.Spec, force bool) (RefreshResult, error) {
	st := s.state(spec.ID)
	if !st.running.CompareAndSwap(false, true) {
		metrics.RefreshesSkipped.Inc()
		return RefreshResult{}, errs.ErrRefreshInFlight
	}
	defer st.running.Store(false)

	if !force && !s.eligible(ctx, spec, st) {
		return RefreshResult{}, errs.ErrRefreshInFlight
	}

	st.mu.Lock()
	st.state = Running
	st.mu.Unlock()

	start := s.clock.Now()
	rctx, cancel := context.WithTimeout(ctx, s.conf.RefreshTimeout)
	defer cancel()

	payload, err := s.engine.Evaluate(rctx, spec)
	if err == nil {
		err = s.cache.Put(rctx, spec.ID, payload, s.clock.Now())
	}
	metrics.RefreshDuration.Observe(float64(s.clock.Since(start).Milliseconds()))

	if err != nil {
		s.fail(st, spec, err)
		return RefreshResult{}, err
	}

	st.mu.Lock()
	st.state = Idle
	st.attempts = 0
	st.retryAt = time.Time{}
	st.lastErr = ""
	st.mu.Unlock()

	metrics.RefreshesTotal.WithLabelValues(string(spec.Type), "success").Inc()
	return RefreshResult{WidgetID: spec.ID, CompletedAt: s.clock.Now()}, nil
}

// fail transitions a widget to Failed. Transient errors schedule a retry
// with exponential backoff capped at BackoffMax; configuration errors get
// no retry since retrying cannot help until the config changes.
func (s *Scheduler) fail(st *widgetState, spec widget.Spec, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = Failed
	st.lastErr = err.Error()

	if errs.Retryable(err) {
		st.attempts++
		st.retryAt = s.clock.Now().Add(s.backoff(st.attempts))
		metrics.RefreshesTotal.WithLabelValues(string(spec.Type), "retry").Inc()
		return
	}
	// Config errors park the widget until ResetFailures.
	st.attempts++
	st.retryAt = time.Time{}
	if errs.ConfigError(err) {
		metrics.RefreshesTotal.WithLabelValues(string(spec.Type), "config_error").Inc()
	} else {
		metrics.RefreshesTotal.WithLabelValues(string(spec.Type), "error").Inc()
	}
}

// backoff doubles per attempt starting from BackoffBase, capped.
func (s *Scheduler) backoff(attempts int) time.Duration {
	d := s.conf.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= s.conf.BackoffMax {
			return s.conf.BackoffMax
		}
	}
	if d > s.conf.BackoffMax {
		return s.conf.BackoffMax
	}
	return d
}

// due is the scan-side eligibility check, done without holding the lock.
func (s *Scheduler) due(ctx context.Context, spec widget.Spec) bool {
	st := s.state(spec.ID)
	if st.running.Load() {
		return false
	}
	return s.eligible(ctx, spec, st)
}

// eligible applies the staleness rule and, for failed widgets, the retry
// schedule: now-updatedAt >= refresh_seconds, and now >= retryAt.
func (s *Scheduler) eligible(ctx context.Context, spec widget.Spec, st *widgetState) bool {
	now := s.clock.Now()

	st.mu.Lock()
	failed := st.state == Failed
	retryAt := st.retryAt
	st.mu.Unlock()
	if failed {
		if retryAt.IsZero() || now.Before(retryAt) {
			return false
		}
	}

	entry, err := s.cache.Get(ctx, spec.ID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return true // never computed
		}
		slog.Warn("cache read failed during scan", "widget", spec.ID, "err", err)
		return false
	}
	return now.Sub(entry.UpdatedAt) >= time.Duration(spec.RefreshSeconds)*time.Second
}

func (s *Scheduler) state(widgetID string) *widgetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[widgetID]
	if !ok {
		st = &widgetState{}
		s.states[widgetID] = st
	}
	return st
}

// dropDeleted removes per-widget locks and cache entries for widgets that
// no longer exist in the repository.
func (s *Scheduler) dropDeleted(ctx context.Context, specs []widget.Spec) {
	live := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		live[spec.ID] = struct{}{}
	}
	s.mu.Lock()
	var gone []string
	for id := range s.states {
		if _, ok := live[id]; !ok {
			gone = append(gone, id)
			delete(s.states, id)
		}
	}
	s.mu.Unlock()
	for _, id := range gone {
		if err := s.cache.Delete(ctx, id); err != nil {
			slog.Warn("cache delete failed for removed widget", "widget", id, "err", err)
		}
	}
}

// expectedRefreshErr filters log noise: lock contention is normal, and
// failed refreshes already recorded their state transition.
func expectedRefreshErr(err error) bool {
	return errors.Is(err, errs.ErrRefreshInFlight)
}
