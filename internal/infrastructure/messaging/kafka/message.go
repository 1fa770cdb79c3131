// Package kafka carries parse requests and results over Kafka topics.
package kafka

import (
	"context"
	"time"
)

// Message is a record fetched from a topic.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ProducerMessage is a record to publish.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
	Partition int
}

// MessageHandler processes one message. A non-nil error triggers a retry
// unless the error is permanent (see IsPermanent).
type MessageHandler func(ctx context.Context, msg *Message) error

// BatchItemError reports one failed message of a batch publish. Index is -1
// when the whole batch failed.
type BatchItemError struct {
	Index int
	Topic string
	Error error
}

// BatchPublishResult summarises a batch publish.
type BatchPublishResult struct {
	Succeeded int
	Failed    int
	Errors    []BatchItemError
}

// TopicConfig describes a topic to create.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
	CleanupPolicy     string
	MaxMessageBytes   int
	Configs           map[string]string
}
