package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/turtacn/sigparse/internal/infrastructure/messaging/kafka"
)

// registerConsumerMetrics exports the consumer counters as Prometheus
// counters read at scrape time.
func registerConsumerMetrics(reg prometheus.Registerer, m *kafka.ConsumerMetrics) error {
	counters := []struct {
		name string
		help string
		load func() int64
	}{
		{"consumed", "Messages fetched from the request topic", m.MessagesConsumed.Load},
		{"processed", "Messages handled successfully", m.MessagesProcessed.Load},
		{"failed", "Messages that exhausted their retries", m.MessagesFailed.Load},
		{"retried", "Handler retries", m.MessagesRetried.Load},
		{"dead_lettered", "Messages published to the dead-letter topic", m.MessagesDeadLettered.Load},
	}
	for _, c := range counters {
		load := c.load
		err := reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "sigparse",
			Subsystem: "consumer",
			Name:      "messages_" + c.name + "_total",
			Help:      c.help,
		}, func() float64 { return float64(load()) }))
		if err != nil {
			return err
		}
	}
	return nil
}
