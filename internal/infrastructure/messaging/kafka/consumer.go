package kafka

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")
	ErrConsumerClosed = errors.New(errors.ErrCodeInternal, "consumer closed")
)

// Dead-letter headers.
const (
	HeaderOriginalTopic = "original_topic"
	HeaderErrorMessage  = "error_message"
	HeaderAttempts      = "attempts"
)

// RetryConfig defines retry behaviour.
type RetryConfig struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	DeadLetterTopic string
}

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	Brokers           []string
	GroupID           string
	Topics            []string
	AutoOffsetReset   string
	CommitInterval    time.Duration
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	MaxWait           time.Duration
	FetchMinBytes     int
	FetchMaxBytes     int
	Security          SecurityConfig
	RetryConfig       RetryConfig
}

// ConsumerMetrics holds consumer counters.
type ConsumerMetrics struct {
	MessagesConsumed     atomic.Int64
	MessagesProcessed    atomic.Int64
	MessagesFailed       atomic.Int64
	MessagesRetried      atomic.Int64
	MessagesDeadLettered atomic.Int64
	LastConsumedAt       atomic.Value // time.Time
	Lag                  atomic.Int64
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
	Stats() kafka.ReaderStats
}

type publisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
	Close() error
}

// Consumer fetches messages, dispatches them to per-topic handlers with
// retry, and dead-letters messages that keep failing. Offsets are committed
// once a message is handled or dead-lettered.
type Consumer struct {
	reader ReaderInterface
	config ConsumerConfig
	logger logging.Logger

	handlers map[string]MessageHandler
	mu       sync.RWMutex

	running atomic.Bool
	closed  atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	deadLetter publisher
	metrics    *ConsumerMetrics
}

// NewConsumer creates a group consumer for cfg.Topics.
func NewConsumer(cfg ConsumerConfig, logger logging.Logger) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	cfg.applyDefaults()

	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	tlsCfg, err := cfg.Security.tlsConfig()
	if err != nil {
		return nil, err
	}
	dialer.TLS = tlsCfg
	mech, err := cfg.Security.mechanism()
	if err != nil {
		return nil, err
	}
	dialer.SASLMechanism = mech

	readerCfg := kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		GroupTopics:       cfg.Topics,
		MinBytes:          cfg.FetchMinBytes,
		MaxBytes:          cfg.FetchMaxBytes,
		MaxWait:           cfg.MaxWait,
		CommitInterval:    cfg.CommitInterval,
		SessionTimeout:    cfg.SessionTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		StartOffset:       kafka.FirstOffset,
		Dialer:            dialer,
	}
	if cfg.AutoOffsetReset == "latest" {
		readerCfg.StartOffset = kafka.LastOffset
	}

	var dlq publisher
	if cfg.RetryConfig.DeadLetterTopic != "" {
		p, err := NewProducer(ProducerConfig{Brokers: cfg.Brokers, Security: cfg.Security}, logger)
		if err != nil {
			return nil, err
		}
		dlq = p
	}

	return newConsumer(kafka.NewReader(readerCfg), cfg, logger, dlq), nil
}

func newConsumer(r ReaderInterface, cfg ConsumerConfig, logger logging.Logger, dlq publisher) *Consumer {
	cfg.applyDefaults()
	return &Consumer{
		reader:     r,
		config:     cfg,
		logger:     logger,
		handlers:   make(map[string]MessageHandler),
		deadLetter: dlq,
		metrics:    &ConsumerMetrics{},
	}
}

func (cfg *ConsumerConfig) applyDefaults() {
	if cfg.AutoOffsetReset == "" {
		cfg.AutoOffsetReset = "earliest"
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 3 * time.Second
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 10 * time.Second
	}
	if cfg.FetchMinBytes == 0 {
		cfg.FetchMinBytes = 1
	}
	if cfg.FetchMaxBytes == 0 {
		cfg.FetchMaxBytes = 10 * 1024 * 1024
	}
	if cfg.RetryConfig.RetryBackoff == 0 {
		cfg.RetryConfig.RetryBackoff = time.Second
	}
	if cfg.RetryConfig.MaxRetryBackoff == 0 {
		cfg.RetryConfig.MaxRetryBackoff = 30 * time.Second
	}
}

// Subscribe registers handler for topic.
func (c *Consumer) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" || handler == nil {
		return errors.New(errors.ErrCodeValidation, "topic and handler required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.logger.Info("subscribed to topic", logging.String("topic", topic))
	return nil
}

// Unsubscribe removes the handler for topic.
func (c *Consumer) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	c.logger.Info("unsubscribed from topic", logging.String("topic", topic))
}

// Start runs the consume loop in the background until ctx is cancelled or
// Close is called.
func (c *Consumer) Start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConsumerClosed
	}
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Info("kafka consumer started", logging.String("group", c.config.GroupID))
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for ctx.Err() == nil {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.metrics.MessagesConsumed.Add(1)
		c.metrics.LastConsumedAt.Store(time.Now())
		if m.HighWaterMark > 0 {
			c.metrics.Lag.Store(m.HighWaterMark - m.Offset - 1)
		}

		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()

		if !ok {
			c.logger.Warn("no handler for topic", logging.String("topic", m.Topic))
		} else if err := c.processMessage(ctx, fromKafkaMessage(m), handler); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.metrics.MessagesFailed.Add(1)
		} else {
			c.metrics.MessagesProcessed.Add(1)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", logging.Err(err), logging.Int64("offset", m.Offset))
		}
	}
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Time,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

// processMessage returns nil when the handler succeeded and an error when
// the message was given up on (and dead-lettered if configured).
func (c *Consumer) processMessage(ctx context.Context, msg *Message, handler MessageHandler) error {
	attempts := 1
	err := handler(ctx, msg)
	if err == nil {
		return nil
	}

	backoff := c.config.RetryConfig.RetryBackoff
	for i := 0; i < c.config.RetryConfig.MaxRetries && !IsPermanent(err); i++ {
		c.metrics.MessagesRetried.Add(1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		attempts++
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		backoff *= 2
		if backoff > c.config.RetryConfig.MaxRetryBackoff {
			backoff = c.config.RetryConfig.MaxRetryBackoff
		}
	}

	c.logger.Error("message processing failed",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Int("attempts", attempts),
		logging.Err(err))
	c.sendToDeadLetter(ctx, msg, err, attempts)
	return err
}

func (c *Consumer) sendToDeadLetter(ctx context.Context, msg *Message, cause error, attempts int) {
	if c.deadLetter == nil || c.config.RetryConfig.DeadLetterTopic == "" {
		return
	}
	headers := make(map[string]string, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderOriginalTopic] = msg.Topic
	headers[HeaderErrorMessage] = cause.Error()
	headers[HeaderAttempts] = strconv.Itoa(attempts)

	err := c.deadLetter.Publish(ctx, &ProducerMessage{
		Topic:   c.config.RetryConfig.DeadLetterTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		c.logger.Error("failed to send to dead letter topic", logging.Err(err))
		return
	}
	c.metrics.MessagesDeadLettered.Add(1)
}

// Permanent marks err so the consumer dead-letters the message without
// retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, errors.ErrCodeMessageDecodeFailed, "permanent failure")
}

// IsPermanent reports whether retrying err cannot help.
func IsPermanent(err error) bool {
	return errors.IsCode(err, errors.ErrCodeMessageDecodeFailed) || errors.IsCode(err, errors.ErrCodeValidation)
}

// GetMetrics returns a snapshot of the counters.
func (c *Consumer) GetMetrics() *ConsumerMetrics {
	m := &ConsumerMetrics{}
	m.MessagesConsumed.Store(c.metrics.MessagesConsumed.Load())
	m.MessagesProcessed.Store(c.metrics.MessagesProcessed.Load())
	m.MessagesFailed.Store(c.metrics.MessagesFailed.Load())
	m.MessagesRetried.Store(c.metrics.MessagesRetried.Load())
	m.MessagesDeadLettered.Store(c.metrics.MessagesDeadLettered.Load())
	m.Lag.Store(c.metrics.Lag.Load())
	if v := c.metrics.LastConsumedAt.Load(); v != nil {
		m.LastConsumedAt.Store(v)
	}
	return m
}

// Close stops the loop and closes the reader and dead-letter producer. It
// is idempotent.
func (c *Consumer) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.running.Load() && c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}
	if c.deadLetter != nil {
		_ = c.deadLetter.Close()
	}
	c.logger.Info("kafka consumer closed", logging.Int64("consumed", c.metrics.MessagesConsumed.Load()))
	return err
}

// ValidateConsumerConfig checks cfg before a reader is built.
func ValidateConsumerConfig(cfg ConsumerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.GroupID == "" {
		return errors.New(errors.ErrCodeValidation, "GroupID required")
	}
	if len(cfg.Topics) == 0 {
		return errors.New(errors.ErrCodeValidation, "at least one topic required")
	}
	if cfg.AutoOffsetReset != "" && cfg.AutoOffsetReset != "earliest" && cfg.AutoOffsetReset != "latest" {
		return errors.New(errors.ErrCodeValidation, "invalid AutoOffsetReset")
	}
	if cfg.RetryConfig.MaxRetries < 0 {
		return errors.New(errors.ErrCodeValidation, "MaxRetries must be >= 0")
	}
	return cfg.Security.validate()
}
