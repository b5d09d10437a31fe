package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/config"
	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is a match event sink that owns resources to release on shutdown.
type Publisher interface {
	Publish(ctx context.Context, event domain.MatchEvent) error
	Close() error
}

// NewPublisher picks the sink named by cfg.Driver. The redis driver needs a client.
func NewPublisher(cfg *config.EventsConfig, redisClient redis.UniversalClient, logger *zap.Logger) (Publisher, error) {
	switch cfg.Driver {
	case config.EventsDriverKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger), nil
	case config.EventsDriverRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis events driver needs a redis connection")
		}
		return NewRedisPublisher(redisClient, cfg.RedisChannel, logger), nil
	case config.EventsDriverNone, "":
		return NoopPublisher{}, nil
	}
	return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, domain.MatchEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each event as JSON, keyed by pair id so that the events
// of one pair stay ordered on a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(writer, topic, logger)
}

func newKafkaPublisher(writer messageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: writer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event domain.MatchEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal match event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Key()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
		Time: event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to kafka topic %s: %w", p.topic, err)
	}

	p.logger.Debug("match event published",
		zap.String("event_type", string(event.Type)),
		zap.String("topic", p.topic),
		zap.String("key", event.Key()),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type channelPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher fans events out over Redis pub/sub. Delivery is best effort:
// subscribers that are not connected miss the event.
type RedisPublisher struct {
	client  channelPublisher
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(client channelPublisher, channel string, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, event domain.MatchEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal match event: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", p.channel, err)
	}

	p.logger.Debug("match event published",
		zap.String("event_type", string(event.Type)),
		zap.String("channel", p.channel),
		zap.Int64("receivers", receivers),
	)
	return nil
}

// Close is a no-op; the redis client belongs to the container.
func (p *RedisPublisher) Close() error {
	return nil
}
