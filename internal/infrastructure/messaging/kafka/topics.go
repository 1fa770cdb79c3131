package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

// Event types carried in EventEnvelope.EventType.
const (
	EventTypeParsed = "sig.parsed"
	SchemaVersion   = "v1"
)

// EventEnvelope wraps every result published by the worker.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	TraceID       string            `json:"trace_id,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ParseRequest is the value of a request-topic message.
type ParseRequest struct {
	ID   *string `json:"id,omitempty"`
	Text string  `json:"text"`
}

// ParseResult is the payload of an EventTypeParsed envelope.
type ParseResult struct {
	ID       *string                              `json:"id,omitempty"`
	Text     string                               `json:"text"`
	Results  []*instruction.StructuredInstruction `json:"results"`
	ParsedAt time.Time                            `json:"parsedAt"`
}

// DecodeParseRequest validates and decodes a request message. Decode
// failures are permanent.
func DecodeParseRequest(msg *Message) (*ParseRequest, error) {
	if len(msg.Value) == 0 {
		return nil, Permanent(errors.New(errors.ErrCodeValidation, "empty message value"))
	}
	var req ParseRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return nil, Permanent(err)
	}
	if req.ID == nil && len(msg.Key) > 0 {
		id := string(msg.Key)
		req.ID = &id
	}
	return &req, nil
}

// NewEventEnvelope marshals payload into a fresh envelope.
func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target. An empty payload is a
// no-op.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// ToMessage builds a producer message for topic keyed by key.
func (e *EventEnvelope) ToMessage(topic string, key []byte) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	headers := map[string]string{
		"event_type":     e.EventType,
		"source_service": e.Source,
		"schema_version": e.SchemaVersion,
	}
	if e.TraceID != "" {
		headers["trace_id"] = e.TraceID
	}
	return &ProducerMessage{
		Topic:     topic,
		Key:       key,
		Value:     val,
		Headers:   headers,
		Timestamp: e.Timestamp,
	}, nil
}

// MessageToEventEnvelope decodes a result-topic message.
func MessageToEventEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	DeleteTopics(topics ...string) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates and inspects topics through the cluster controller.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

// NewTopicManager dials brokers[0] and then the controller it reports.
func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to dial kafka")
	}
	controller, err := conn.Controller()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to find kafka controller")
	}
	_ = conn.Close()

	cc, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to dial kafka controller")
	}
	return &TopicManager{conn: cc, logger: logger}, nil
}

// CreateTopic creates cfg.Name. An existing topic is not an error.
func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return errors.New(errors.ErrCodeValidation, "topic name required")
	}
	if cfg.NumPartitions <= 0 {
		return errors.New(errors.ErrCodeValidation, "NumPartitions must be > 0")
	}
	if cfg.ReplicationFactor <= 0 {
		return errors.New(errors.ErrCodeValidation, "ReplicationFactor must be > 0")
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: "retention.ms", ConfigValue: fmt.Sprintf("%d", cfg.RetentionMs)})
	}
	if cfg.CleanupPolicy != "" {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: "cleanup.policy", ConfigValue: cfg.CleanupPolicy})
	}
	if cfg.MaxMessageBytes > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: "max.message.bytes", ConfigValue: fmt.Sprintf("%d", cfg.MaxMessageBytes)})
	}
	for k, v := range cfg.Configs {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: k, ConfigValue: v})
	}

	if err := m.conn.CreateTopics(kCfg); err != nil {
		if errors.Is(err, kafka.TopicAlreadyExists) {
			return nil
		}
		if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create topic")
	}
	m.logger.Info("topic created", logging.String("topic", cfg.Name))
	return nil
}

// DeleteTopic removes name.
func (m *TopicManager) DeleteTopic(ctx context.Context, name string) error {
	if err := m.conn.DeleteTopics(name); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to delete topic")
	}
	m.logger.Warn("topic deleted", logging.String("topic", name))
	return nil
}

// TopicExists reports whether name has at least one partition.
func (m *TopicManager) TopicExists(ctx context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

// ListTopics returns every topic name once.
func (m *TopicManager) ListTopics(ctx context.Context) ([]string, error) {
	partitions, err := m.conn.ReadPartitions()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to read partitions")
	}
	seen := make(map[string]bool)
	var topics []string
	for _, p := range partitions {
		if !seen[p.Topic] {
			seen[p.Topic] = true
			topics = append(topics, p.Topic)
		}
	}
	return topics, nil
}

// EnsureTopics creates every topic in topics.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, topic := range topics {
		if err := m.CreateTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the controller connection.
func (m *TopicManager) Close() error {
	return m.conn.Close()
}

// DefaultTopics returns the request, result and dead-letter topics named
// in cfg.
func DefaultTopics(cfg config.KafkaConfig) []TopicConfig {
	const day = int64(24 * time.Hour / time.Millisecond)
	return []TopicConfig{
		{Name: cfg.RequestTopic, NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 3 * day},
		{Name: cfg.ResultTopic, NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 7 * day},
		{Name: cfg.DLQTopic, NumPartitions: 1, ReplicationFactor: 1, RetentionMs: 30 * day},
	}
}
