package kafka

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Default timeout values for the Kafka producer
const (
	DefaultFlushTimeout   = 15 * time.Second
	DefaultMessageTimeout = 30 * time.Second
)

// ProducerConfig holds the configuration for the score event producer
type ProducerConfig struct {
	BootstrapServers  string        `env:"KAFKA_BOOTSTRAP_SERVERS"   envDefault:"localhost:9092"` // Kafka broker addresses
	Topic             string        `env:"KAFKA_TOPIC"               envDefault:"score-events"`   // Topic score events are produced to
	ClientID          string        `env:"KAFKA_CLIENT_ID"           envDefault:"leaderboard-indexer"`
	Acks              string        `env:"KAFKA_ACKS"                envDefault:"all"`
	Compression       string        `env:"KAFKA_COMPRESSION"         envDefault:"lz4"`
	MessageTimeout    time.Duration `env:"KAFKA_MESSAGE_TIMEOUT"     envDefault:"30s"` // delivery.timeout for a single record
	FlushTimeout      time.Duration `env:"KAFKA_FLUSH_TIMEOUT"       envDefault:"15s"` // flush budget on Close
	EnableLogs        bool          `env:"KAFKA_ENABLE_LOGS"         envDefault:"false"` // forward librdkafka logs
	CreateTopic       bool          `env:"KAFKA_CREATE_TOPIC"        envDefault:"false"` // create the topic on startup if missing
	NumPartitions     int           `env:"KAFKA_NUM_PARTITIONS"      envDefault:"1"`
	ReplicationFactor int           `env:"KAFKA_REPLICATION_FACTOR"  envDefault:"1"`
	Retention         time.Duration `env:"KAFKA_RETENTION"           envDefault:"168h"` // retention.ms of a created topic, 0 keeps the broker default
}

// LoadProducerConfig loads producer configuration from environment variables
func LoadProducerConfig() (ProducerConfig, error) {
	var cfg ProducerConfig
	if err := env.Parse(&cfg); err != nil {
		return ProducerConfig{}, fmt.Errorf("failed to parse kafka producer config: %w", err)
	}
	return cfg, nil
}

// ConfigMap returns the librdkafka settings for the producer.
func (c ProducerConfig) ConfigMap() *kafka.ConfigMap {
	timeout := c.MessageTimeout
	if timeout <= 0 {
		timeout = DefaultMessageTimeout
	}
	return &kafka.ConfigMap{
		"bootstrap.servers":      c.BootstrapServers,
		"client.id":              c.ClientID,
		"acks":                   c.Acks,
		"compression.type":       c.Compression,
		"enable.idempotence":     c.Acks == "all",
		"message.timeout.ms":     int(timeout.Milliseconds()),
		"go.logs.channel.enable": c.EnableLogs,
	}
}

// TopicConfig returns the topic settings used when CreateTopic is set.
func (c ProducerConfig) TopicConfig() TopicConfig {
	return TopicConfig{
		Name:              c.Topic,
		NumPartitions:     c.NumPartitions,
		ReplicationFactor: c.ReplicationFactor,
		Retention:         c.Retention,
	}
}
