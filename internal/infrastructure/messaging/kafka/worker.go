package kafka

import (
	"context"
	"time"

	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

// Parser is the slice of parsing.Parser the worker needs.
type Parser interface {
	ParseWithID(ctx context.Context, id *string, text string) []*instruction.StructuredInstruction
}

type resultPublisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
}

// ParseWorker turns request-topic messages into result-topic envelopes.
type ParseWorker struct {
	parser      Parser
	producer    resultPublisher
	resultTopic string
	source      string
	logger      logging.Logger
	now         func() time.Time
}

// NewParseWorker builds a worker publishing to resultTopic.
func NewParseWorker(parser Parser, producer resultPublisher, resultTopic string, logger logging.Logger) (*ParseWorker, error) {
	if parser == nil || producer == nil {
		return nil, errors.InvalidParam("parser and producer are required")
	}
	if resultTopic == "" {
		return nil, errors.InvalidParam("result topic is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ParseWorker{
		parser:      parser,
		producer:    producer,
		resultTopic: resultTopic,
		source:      "sigparse-worker",
		logger:      logger.Named("parse_worker"),
		now:         time.Now,
	}, nil
}

// Handle is a MessageHandler. Malformed requests fail permanently; publish
// failures are retried by the consumer.
func (w *ParseWorker) Handle(ctx context.Context, msg *Message) error {
	req, err := DecodeParseRequest(msg)
	if err != nil {
		return err
	}

	results := w.parser.ParseWithID(ctx, req.ID, req.Text)
	env, err := NewEventEnvelope(EventTypeParsed, w.source, ParseResult{
		ID:       req.ID,
		Text:     req.Text,
		Results:  results,
		ParsedAt: w.now().UTC(),
	})
	if err != nil {
		return Permanent(err)
	}
	env.TraceID = msg.Headers["trace_id"]

	out, err := env.ToMessage(w.resultTopic, msg.Key)
	if err != nil {
		return Permanent(err)
	}
	if err := w.producer.Publish(ctx, out); err != nil {
		return err
	}
	w.logger.Debug("request parsed",
		logging.Int64("offset", msg.Offset),
		logging.Int("records", len(results)))
	return nil
}

// Worker wires a Consumer, a result Producer and a ParseWorker together.
type Worker struct {
	consumer *Consumer
	producer *Producer
	logger   logging.Logger
}

// NewWorker builds the streaming worker from cfg.
func NewWorker(cfg config.KafkaConfig, parser Parser, logger logging.Logger) (*Worker, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	producer, err := NewProducer(ProducerConfig{
		Brokers:    cfg.Brokers,
		Acks:       "all",
		MaxRetries: cfg.MaxRetries,
		BatchSize:  cfg.BatchSize,
	}, logger)
	if err != nil {
		return nil, err
	}
	pw, err := NewParseWorker(parser, producer, cfg.ResultTopic, logger)
	if err != nil {
		_ = producer.Close()
		return nil, err
	}
	consumer, err := NewConsumer(ConsumerConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topics:  []string{cfg.RequestTopic},
		RetryConfig: RetryConfig{
			MaxRetries:      cfg.MaxRetries,
			DeadLetterTopic: cfg.DLQTopic,
		},
	}, logger)
	if err != nil {
		_ = producer.Close()
		return nil, err
	}
	if err := consumer.Subscribe(cfg.RequestTopic, pw.Handle); err != nil {
		_ = producer.Close()
		_ = consumer.Close()
		return nil, err
	}
	return &Worker{consumer: consumer, producer: producer, logger: logger}, nil
}

// Run consumes until ctx is cancelled and then shuts down.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.consumer.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Close()
}

// Metrics exposes the consumer counters.
func (w *Worker) Metrics() *ConsumerMetrics {
	return w.consumer.GetMetrics()
}

// Close stops consuming before the result producer is closed.
func (w *Worker) Close() error {
	cerr := w.consumer.Close()
	perr := w.producer.Close()
	if cerr != nil {
		return cerr
	}
	return perr
}
