package app

import (
	"net/http"

	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/sigparse/internal/intelligence/common"
)

// Metrics bundles the collector and the metric families built on it. When
// metrics are disabled Collector and App are nil and Intelligence is a
// no-op.
type Metrics struct {
	Collector    prometheus.MetricsCollector
	App          *prometheus.AppMetrics
	Intelligence common.IntelligenceMetrics
}

// NewMetrics registers every metric family on a private registry.
func NewMetrics(cfg config.MetricsConfig, logger logging.Logger) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{Intelligence: common.NewNoopIntelligenceMetrics()}, nil
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Namespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return nil, err
	}
	intel, err := common.NewPrometheusIntelligenceMetrics(collector.Registerer())
	if err != nil {
		return nil, err
	}
	return &Metrics{
		Collector:    collector,
		App:          prometheus.NewAppMetrics(collector),
		Intelligence: intel,
	}, nil
}

// Handler serves the registry, or nil when metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.Collector == nil {
		return nil
	}
	return m.Collector.Handler()
}

// NewLogger builds the process logger from cfg. The controller changes its
// level after a configuration reload.
func NewLogger(cfg config.LogConfig) (logging.Logger, *logging.LevelController, error) {
	lc := logging.LogConfig{
		Level:  logging.Level(cfg.Level),
		Format: cfg.Format,
	}
	if cfg.Output != "" {
		lc.OutputPaths = []string{cfg.Output}
	}
	return logging.NewLoggerWithLevel(lc)
}
