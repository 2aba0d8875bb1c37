package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ava-labs/libevm/common"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/kafka/message"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/scores"
)

// RecordProducer is the part of Producer the publisher needs.
type RecordProducer interface {
	Produce(ctx context.Context, rec Record) error
}

// ScorePublisher forwards decoded score events to the score topic, keyed by wallet so each
// wallet's events stay on one partition in block order.
type ScorePublisher struct {
	producer RecordProducer
	contract string
	now      func() time.Time
}

func NewScorePublisher(producer RecordProducer, contract common.Address) *ScorePublisher {
	return &ScorePublisher{
		producer: producer,
		contract: strings.ToLower(contract.Hex()),
		now:      time.Now,
	}
}

func (*ScorePublisher) Name() string {
	return "kafka"
}

func (p *ScorePublisher) Publish(ctx context.Context, ev scores.ScoreSubmittedEvent) error {
	env, err := message.NewScoreEnvelope(ev, p.contract, p.now())
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return p.producer.Produce(ctx, Record{
		Key:   []byte(ev.Wallet()),
		Value: value,
		Headers: map[string]string{
			"type":    env.Type,
			"version": strconv.Itoa(env.Version),
			"block":   strconv.FormatUint(ev.BlockNumber, 10),
		},
	})
}
