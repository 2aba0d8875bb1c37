package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const queueFullBackoff = time.Second

// Record is one keyed record on the score topic.
type Record struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// deliverer is the part of *kafka.Producer the score stream drives.
type deliverer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Logs() chan kafka.LogEvent
	Flush(timeoutMs int) int
	Close()
}

// Producer writes records to the score topic and waits for the delivery report of each one,
// so the synchronizer only checkpoints events the broker has acknowledged.
//
// Close must be called to stop the event loop and flush what is still queued.
type Producer struct {
	kp      deliverer
	topic   string
	log     *zap.SugaredLogger
	flush   time.Duration
	backoff time.Duration

	fatal   chan error
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewProducer connects a producer for cfg.Topic. ctx bounds the background event loop.
func NewProducer(ctx context.Context, cfg ProducerConfig, log *zap.SugaredLogger) (*Producer, error) {
	kp, err := kafka.NewProducer(cfg.ConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newProducer(ctx, kp, cfg, log), nil
}

func newProducer(ctx context.Context, kp deliverer, cfg ProducerConfig, log *zap.SugaredLogger) *Producer {
	flush := cfg.FlushTimeout
	if flush <= 0 {
		flush = DefaultFlushTimeout
	}
	p := &Producer{
		kp:      kp,
		topic:   cfg.Topic,
		log:     log,
		flush:   flush,
		backoff: queueFullBackoff,
		fatal:   make(chan error, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go p.watch(ctx)
	return p
}

// Produce queues rec on the score topic and blocks until the broker acknowledges it.
// When ctx ends after the record was queued it may still be delivered; consumers drop
// duplicates by envelope id.
func (p *Producer) Produce(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            rec.Key,
		Value:          rec.Value,
		Headers:        toHeaders(rec.Headers),
	}
	report := make(chan kafka.Event, 1)
	if err := p.enqueue(ctx, msg, report); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-report:
		return p.delivered(msg, ev)
	}
}

// enqueue retries only while the local queue is full; every other error is final.
func (p *Producer) enqueue(ctx context.Context, msg *kafka.Message, report chan kafka.Event) error {
	for {
		err := p.kp.Produce(msg, report)
		if err == nil {
			return nil
		}

		var kErr kafka.Error
		if !errors.As(err, &kErr) || kErr.Code() != kafka.ErrQueueFull {
			return fmt.Errorf("failed to produce score record: %w", err)
		}

		p.log.Warnw("producer queue full, retrying", "topic", p.topic, "delay", p.backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff):
		}
	}
}

func (p *Producer) delivered(msg *kafka.Message, ev kafka.Event) error {
	m, ok := ev.(*kafka.Message)
	if !ok {
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}
	if err := m.TopicPartition.Error; err != nil {
		return fmt.Errorf("score record not delivered: %w", err)
	}

	p.log.Debugw("score record delivered",
		"topic", p.topic,
		"wallet", string(msg.Key),
		"partition", m.TopicPartition.Partition,
		"offset", m.TopicPartition.Offset,
	)
	return nil
}

// Errors receives at most one error after which the producer is unusable. It is closed by Close.
func (p *Producer) Errors() <-chan error {
	return p.fatal
}

// Close stops the event loop and flushes queued records for at most the configured flush
// timeout. Records still queued after that are lost. Later calls do nothing.
func (p *Producer) Close() {
	p.once.Do(func() {
		close(p.stop)
		<-p.stopped

		if pending := p.kp.Flush(int(p.flush.Milliseconds())); pending > 0 {
			p.log.Warnw("score records still queued after flush", "topic", p.topic, "pending", pending)
		}
		p.kp.Close()
		close(p.fatal)
		p.log.Infow("kafka producer closed", "topic", p.topic)
	})
}

// watch drains client events and, when enabled, librdkafka logs. A nil logs channel never fires.
func (p *Producer) watch(ctx context.Context) {
	defer close(p.stopped)

	events, logs := p.kp.Events(), p.kp.Logs()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case entry, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			p.log.Debugw("librdkafka", "level", entry.Level, "tag", entry.Tag, "message", entry.Message)
		case ev, ok := <-events:
			if !ok {
				p.fail(errors.New("kafka producer event channel closed"))
				return
			}
			kErr, isErr := ev.(kafka.Error)
			if !isErr {
				p.log.Debugw("kafka event", "event", ev.String())
				continue
			}
			if kErr.IsFatal() || kErr.Code() == kafka.ErrAllBrokersDown {
				p.fail(fmt.Errorf("score stream unavailable (%s): %w", kErr.Code(), kErr))
				return
			}
			p.log.Warnw("kafka error", "code", kErr.Code(), "error", kErr)
		}
	}
}

func (p *Producer) fail(err error) {
	select {
	case p.fatal <- err:
	default:
		p.log.Warnw("dropping producer error, one is already pending", "error", err)
	}
}

func toHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
