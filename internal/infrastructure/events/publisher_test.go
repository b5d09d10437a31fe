package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/config"
	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeChannel struct {
	channel string
	payload []byte
	err     error
}

func (f *fakeChannel) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.channel = channel
	f.payload, _ = message.([]byte)
	return redis.NewIntResult(2, nil)
}

func sampleEvent() domain.MatchEvent {
	question := "q-1"
	return domain.MatchEvent{
		Type:       domain.EventPairCreated,
		PairID:     "pair-1",
		TicketIDs:  []string{"t-1", "t-2"},
		UserIDs:    []string{"u-1", "u-2"},
		Mode:       domain.MatchModeStrict,
		QuestionID: &question,
		OccurredAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	writer := &fakeWriter{}
	p := newKafkaPublisher(writer, "match-events", nil)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "pair-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "pair.created", string(msg.Headers[0].Value))

	var decoded domain.MatchEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, sampleEvent().TicketIDs, decoded.TicketIDs)
	assert.Equal(t, domain.MatchModeStrict, decoded.Mode)

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisher_KeyFallsBackToTicket(t *testing.T) {
	writer := &fakeWriter{}
	p := newKafkaPublisher(writer, "match-events", nil)

	event := domain.MatchEvent{Type: domain.EventTicketRequeued, TicketIDs: []string{"t-9"}}
	require.NoError(t, p.Publish(context.Background(), event))
	assert.Equal(t, "t-9", string(writer.messages[0].Key))
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{err: errors.New("broker down")}, "match-events", nil)

	err := p.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "match-events")
}

func TestRedisPublisher_Publish(t *testing.T) {
	client := &fakeChannel{}
	p := NewRedisPublisher(client, "pairprep:match-events", nil)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, "pairprep:match-events", client.channel)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(client.payload, &decoded))
	assert.Equal(t, "pair.created", decoded["type"])
	assert.Equal(t, "pair-1", decoded["pair_id"])

	failing := NewRedisPublisher(&fakeChannel{err: errors.New("no route")}, "c", nil)
	assert.Error(t, failing.Publish(context.Background(), sampleEvent()))
}

func TestNewPublisher(t *testing.T) {
	p, err := NewPublisher(&config.EventsConfig{Driver: config.EventsDriverNone}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, p)

	_, err = NewPublisher(&config.EventsConfig{Driver: config.EventsDriverRedis}, nil, nil)
	assert.Error(t, err)

	p, err = NewPublisher(&config.EventsConfig{
		Driver:       config.EventsDriverKafka,
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "match-events",
	}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &KafkaPublisher{}, p)
	require.NoError(t, p.Close())

	_, err = NewPublisher(&config.EventsConfig{Driver: "nats"}, nil, nil)
	assert.Error(t, err)
}
