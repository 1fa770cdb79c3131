package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

var (
	ErrProducerClosed = errors.New(errors.ErrCodeProducerClosed, "producer closed")
	ErrPublishFailed  = errors.New(errors.ErrCodeMessagePublishFailed, "publish failed")
)

// ProducerConfig holds configuration for the Producer.
type ProducerConfig struct {
	Brokers          []string
	Acks             string
	MaxRetries       int
	BatchSize        int
	BatchTimeout     time.Duration
	MaxMessageBytes  int
	CompressionCodec string
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	Security         SecurityConfig

	AsyncErrorHandler func(err error, msg *ProducerMessage)
}

// ProducerMetrics holds producer counters.
type ProducerMetrics struct {
	MessagesSent   atomic.Int64
	MessagesFailed atomic.Int64
	BytesSent      atomic.Int64
	LastSentAt     atomic.Value // time.Time
	LastLatencyMs  atomic.Int64
}

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
	Stats() kafka.WriterStats
}

// Producer publishes messages through a single kafka.Writer.
type Producer struct {
	writer  WriterInterface
	config  ProducerConfig
	logger  logging.Logger
	closed  atomic.Bool
	metrics *ProducerMetrics
}

func (cfg *ProducerConfig) applyDefaults() {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.MaxMessageBytes == 0 {
		cfg.MaxMessageBytes = 1024 * 1024
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
}

// NewProducer creates a Producer writing to cfg.Brokers.
func NewProducer(cfg ProducerConfig, logger logging.Logger) (*Producer, error) {
	if err := ValidateProducerConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	cfg.applyDefaults()

	transport := &kafka.Transport{DialTimeout: 10 * time.Second}
	tlsCfg, err := cfg.Security.tlsConfig()
	if err != nil {
		return nil, err
	}
	transport.TLS = tlsCfg
	mech, err := cfg.Security.mechanism()
	if err != nil {
		return nil, err
	}
	transport.SASL = mech

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxRetries + 1,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		RequiredAcks: requiredAcks(cfg.Acks),
		Compression:  compression(cfg.CompressionCodec),
		Transport:    transport,
	}
	return newProducer(writer, cfg, logger), nil
}

func newProducer(w WriterInterface, cfg ProducerConfig, logger logging.Logger) *Producer {
	cfg.applyDefaults()
	return &Producer{
		writer:  w,
		config:  cfg,
		logger:  logger,
		metrics: &ProducerMetrics{},
	}
}

func requiredAcks(acks string) kafka.RequiredAcks {
	switch acks {
	case "none":
		return kafka.RequireNone
	case "all":
		return kafka.RequireAll
	default:
		return kafka.RequireOne
	}
}

func compression(codec string) kafka.Compression {
	switch codec {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// Publish writes a single message.
func (p *Producer) Publish(ctx context.Context, msg *ProducerMessage) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if err := p.check(msg); err != nil {
		return err
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, p.toKafkaMessage(msg)); err != nil {
		p.metrics.MessagesFailed.Add(1)
		return errors.Wrap(err, errors.ErrCodeMessagePublishFailed, ErrPublishFailed.Message)
	}

	latency := time.Since(start).Milliseconds()
	p.metrics.MessagesSent.Add(1)
	p.metrics.BytesSent.Add(int64(len(msg.Value)))
	p.metrics.LastSentAt.Store(time.Now())
	p.metrics.LastLatencyMs.Store(latency)

	p.logger.Debug("message published",
		logging.String("topic", msg.Topic),
		logging.Int64("latency_ms", latency))
	return nil
}

func (p *Producer) check(msg *ProducerMessage) error {
	if msg == nil || msg.Topic == "" {
		return errors.New(errors.ErrCodeValidation, "topic required")
	}
	if len(msg.Value) == 0 {
		return errors.New(errors.ErrCodeValidation, "value required")
	}
	if len(msg.Value) > p.config.MaxMessageBytes {
		return errors.New(errors.ErrCodeValidation, "message too large").
			WithDetail(msg.Topic)
	}
	return nil
}

// PublishBatch writes msgs in one call and reports per-message failures.
func (p *Producer) PublishBatch(ctx context.Context, msgs []*ProducerMessage) (*BatchPublishResult, error) {
	if p.closed.Load() {
		return nil, ErrProducerClosed
	}
	if len(msgs) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "messages empty")
	}

	kMsgs := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		if err := p.check(msg); err != nil {
			return nil, err
		}
		kMsgs[i] = p.toKafkaMessage(msg)
	}

	result := &BatchPublishResult{}
	err := p.writer.WriteMessages(ctx, kMsgs...)
	switch werr := err.(type) {
	case nil:
		result.Succeeded = len(msgs)
	case kafka.WriteErrors:
		for i, we := range werr {
			if we == nil {
				result.Succeeded++
				continue
			}
			result.Failed++
			result.Errors = append(result.Errors, BatchItemError{Index: i, Topic: msgs[i].Topic, Error: we})
		}
	default:
		result.Failed = len(msgs)
		result.Errors = append(result.Errors, BatchItemError{Index: -1, Error: err})
	}

	p.metrics.MessagesSent.Add(int64(result.Succeeded))
	p.metrics.MessagesFailed.Add(int64(result.Failed))

	p.logger.Info("batch published",
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed))
	return result, nil
}

// PublishAsync publishes in a goroutine. Failures go to
// ProducerConfig.AsyncErrorHandler.
func (p *Producer) PublishAsync(ctx context.Context, msg *ProducerMessage) {
	go func() {
		if err := p.Publish(ctx, msg); err != nil && p.config.AsyncErrorHandler != nil {
			p.config.AsyncErrorHandler(err, msg)
		}
	}()
}

// GetMetrics returns a snapshot of the counters.
func (p *Producer) GetMetrics() *ProducerMetrics {
	m := &ProducerMetrics{}
	m.MessagesSent.Store(p.metrics.MessagesSent.Load())
	m.MessagesFailed.Store(p.metrics.MessagesFailed.Load())
	m.BytesSent.Store(p.metrics.BytesSent.Load())
	m.LastLatencyMs.Store(p.metrics.LastLatencyMs.Load())
	if v := p.metrics.LastSentAt.Load(); v != nil {
		m.LastSentAt.Store(v)
	}
	return m
}

// Close is idempotent.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed", logging.Int64("sent", p.metrics.MessagesSent.Load()))
	return err
}

func (p *Producer) toKafkaMessage(msg *ProducerMessage) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return kafka.Message{
		Topic:     msg.Topic,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Time:      ts,
		Partition: msg.Partition,
	}
}

// ValidateProducerConfig checks cfg before a writer is built.
func ValidateProducerConfig(cfg ProducerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.MaxRetries < 0 {
		return errors.New(errors.ErrCodeValidation, "MaxRetries must be >= 0")
	}
	return cfg.Security.validate()
}
