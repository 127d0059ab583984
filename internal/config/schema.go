package config

import "github.com/pulseboard/pulseboard/internal/widget"

// Config is the top-level YAML structure: engine tuning plus the widget
// definitions the scheduler keeps fresh.
type Config struct {
	Version string        `yaml:"version"`
	Engine  EngineConf    `yaml:"engine"`
	Widgets []widget.Spec `yaml:"widgets"`
}

// EngineConf holds tunable scheduler settings.
type EngineConf struct {
	RefreshWorkers   int `yaml:"refresh_workers"`
	QueueDepth       int `yaml:"queue_depth"`
	RefreshTimeoutMs int `yaml:"refresh_timeout_ms"`
	ScanIntervalMs   int `yaml:"scan_interval_ms"`
	BackoffBaseMs    int `yaml:"backoff_base_ms"`
	BackoffMaxMs     int `yaml:"backoff_max_ms"`
}
