package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rivulet-io/rivulet/internal/logging"
)

// KafkaConfig holds connection settings for the Kafka-backed queue.
type KafkaConfig struct {
	// SeedBrokers are the bootstrap broker addresses.
	SeedBrokers []string

	// Topic is the controller event topic.
	Topic string

	// GroupID is the consumer group for dispatchers. All controller
	// instances share one group so each event is handled once.
	GroupID string
}

func (c KafkaConfig) validate() error {
	if len(c.SeedBrokers) == 0 {
		return errors.New("events: at least one seed broker is required")
	}
	if c.Topic == "" {
		return errors.New("events: event topic is required")
	}
	return nil
}

// KafkaQueue is a Queue backed by a Kafka topic. Events are keyed by
// stream so one stream's events land on one partition, keeping its
// retries ordered.
type KafkaQueue struct {
	client *kgo.Client
	topic  string
}

// NewKafkaQueue creates a producer for the controller event topic.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.SeedBrokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("events: create kafka producer: %w", err)
	}

	return &KafkaQueue{client: client, topic: cfg.Topic}, nil
}

// Write produces the event, suspending until the broker acknowledges it.
func (q *KafkaQueue) Write(ctx context.Context, event SealStreamEvent) error {
	data, err := event.Encode()
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Key:   []byte(event.Key()),
		Value: data,
	}
	if err := q.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("events: produce seal event: %w", err)
	}
	return nil
}

// Close shuts down the producer.
func (q *KafkaQueue) Close() error {
	q.client.Close()
	return nil
}

var _ Queue = (*KafkaQueue)(nil)

// EnsureTopic creates the controller event topic if it does not exist.
// Safe to call from every controller instance at startup.
func EnsureTopic(ctx context.Context, cfg KafkaConfig, partitions int32, replicationFactor int16) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(cfg.SeedBrokers...))
	if err != nil {
		return fmt.Errorf("events: create kafka admin client: %w", err)
	}
	defer client.Close()

	adm := kadm.NewClient(client)
	_, err = adm.CreateTopic(ctx, partitions, replicationFactor, nil, cfg.Topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("events: create topic %s: %w", cfg.Topic, err)
	}
	return nil
}

// Consumer runs the dispatcher against the Kafka event topic inside a
// consumer group. Offsets are committed only after Dispatch accepts a
// delivery, so a crash mid-run redelivers the event.
type Consumer struct {
	client     *kgo.Client
	dispatcher *Dispatcher
}

// NewConsumer creates a consumer-group member for the event topic.
func NewConsumer(cfg KafkaConfig, dispatcher *Dispatcher) (*Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.GroupID == "" {
		return nil, errors.New("events: consumer group id is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.SeedBrokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	)
	if err != nil {
		return nil, fmt.Errorf("events: create kafka consumer: %w", err)
	}

	return &Consumer{client: client, dispatcher: dispatcher}, nil
}

// Run polls and dispatches deliveries until ctx is canceled or the
// client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	logger := logging.FromCtx(ctx)

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			logger.Warnf("fetch error", map[string]any{
				"topic":     topic,
				"partition": partition,
				"error":     err.Error(),
			})
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()

			if err := c.dispatcher.DispatchRaw(ctx, record.Value); err != nil {
				// Leave the offset uncommitted; the delivery comes back.
				if ctx.Err() != nil {
					c.client.AllowRebalance()
					return ctx.Err()
				}
				logger.Warnf("delivery not committed", map[string]any{
					"partition": record.Partition,
					"offset":    record.Offset,
					"error":     err.Error(),
				})
				continue
			}

			if err := c.client.CommitRecords(ctx, record); err != nil {
				logger.Warnf("commit failed", map[string]any{
					"partition": record.Partition,
					"offset":    record.Offset,
					"error":     err.Error(),
				})
			}
		}
		c.client.AllowRebalance()
	}
}

// Close shuts down the consumer and leaves the group.
func (c *Consumer) Close() {
	c.client.Close()
}
