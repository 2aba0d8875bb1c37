package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const metadataTimeout = 10 * time.Second

// TopicAdmin is the part of *kafka.AdminClient the score topic check uses.
type TopicAdmin interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	CreateTopics(
		ctx context.Context,
		topics []kafka.TopicSpecification,
		options ...kafka.CreateTopicsAdminOption,
	) ([]kafka.TopicResult, error)
}

// TopicConfig describes the score topic. Retention of zero keeps the broker default.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	Retention         time.Duration
}

func (tc TopicConfig) Validate() error {
	if tc.Name == "" {
		return errors.New("topic name cannot be empty")
	}
	if tc.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be > 0, got %d", tc.NumPartitions)
	}
	if tc.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be > 0, got %d", tc.ReplicationFactor)
	}
	if tc.Retention < 0 {
		return fmt.Errorf("retention must be >= 0, got %s", tc.Retention)
	}
	return nil
}

func (tc TopicConfig) specification() kafka.TopicSpecification {
	settings := map[string]string{"cleanup.policy": "delete"}
	if tc.Retention > 0 {
		settings["retention.ms"] = strconv.FormatInt(tc.Retention.Milliseconds(), 10)
	}
	return kafka.TopicSpecification{
		Topic:             tc.Name,
		NumPartitions:     tc.NumPartitions,
		ReplicationFactor: tc.ReplicationFactor,
		Config:            settings,
	}
}

// EnsureTopic creates the score topic when it is missing. An existing topic is left as it is:
// records are keyed by wallet, and changing the partition count would move wallets to other
// partitions while older records of theirs are still unread. Layout differences are logged.
func EnsureTopic(ctx context.Context, admin TopicAdmin, cfg TopicConfig, log *zap.SugaredLogger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid topic config: %w", err)
	}

	existing, err := lookupTopic(admin, cfg.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		return createTopic(ctx, admin, cfg, log)
	}

	partitions := len(existing.Partitions)
	if partitions == 0 {
		return fmt.Errorf("topic %q reports no partitions", cfg.Name)
	}
	replicas := len(existing.Partitions[0].Replicas)
	if partitions != cfg.NumPartitions {
		log.Warnw("score topic partition count differs from config, leaving it unchanged",
			"topic", cfg.Name,
			"partitions", partitions,
			"configured", cfg.NumPartitions)
	}
	if replicas < cfg.ReplicationFactor {
		log.Warnw("score topic has fewer replicas than configured",
			"topic", cfg.Name,
			"replicas", replicas,
			"configured", cfg.ReplicationFactor)
	}
	log.Infow("score topic ready", "topic", cfg.Name, "partitions", partitions, "replicas", replicas)
	return nil
}

// lookupTopic returns the topic metadata, or nil when the broker does not know the topic.
func lookupTopic(admin TopicAdmin, name string) (*kafka.TopicMetadata, error) {
	md, err := admin.GetMetadata(&name, false, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for topic %q: %w", name, err)
	}

	tm, ok := md.Topics[name]
	if !ok || tm.Error.Code() == kafka.ErrUnknownTopicOrPart {
		return nil, nil
	}
	if tm.Error.Code() != kafka.ErrNoError {
		return nil, fmt.Errorf("topic %q has error: %w", name, tm.Error)
	}
	return &tm, nil
}

func createTopic(ctx context.Context, admin TopicAdmin, cfg TopicConfig, log *zap.SugaredLogger) error {
	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{cfg.specification()})
	if err != nil {
		return fmt.Errorf("failed to create topic %q: %w", cfg.Name, err)
	}

	for _, res := range results {
		switch res.Error.Code() {
		case kafka.ErrNoError:
			log.Infow("created score topic",
				"topic", res.Topic,
				"partitions", cfg.NumPartitions,
				"replicationFactor", cfg.ReplicationFactor,
				"retention", cfg.Retention)
		case kafka.ErrTopicAlreadyExists:
			// another instance created it between the lookup and here
			log.Infow("score topic already exists", "topic", res.Topic)
		default:
			return fmt.Errorf("failed to create topic %q: %w", res.Topic, res.Error)
		}
	}
	return nil
}

// EnsureScoreTopic opens a short-lived admin client and runs EnsureTopic for cfg.Topic.
func EnsureScoreTopic(ctx context.Context, cfg ProducerConfig, log *zap.SugaredLogger) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{"bootstrap.servers": cfg.BootstrapServers})
	if err != nil {
		return fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer admin.Close()

	return EnsureTopic(ctx, admin, cfg.TopicConfig(), log)
}
