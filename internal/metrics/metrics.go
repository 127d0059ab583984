package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseboard_refreshes_total",
		Help: "Total widget refreshes, labelled by widget type and outcome.",
	}, []string{"widget_type", "status"})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulseboard_refresh_duration_ms",
		Help:    "End-to-end widget refresh latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	RefreshesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulseboard_refreshes_skipped_total",
		Help: "Refresh triggers skipped because the widget lock was held.",
	})

	RefreshesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulseboard_refreshes_dropped_total",
		Help: "Refresh jobs rejected due to a full scheduler queue.",
	})

	WidgetsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulseboard_widgets_tracked",
		Help: "Number of widgets currently managed by the scheduler.",
	})

	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseboard_queries_total",
		Help: "Stateless analytics queries served, labelled by kind.",
	}, []string{"kind"})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulseboard_refresh_queue_utilization_ratio",
		Help: "Current refresh queue utilization (0–1).",
	})
)
