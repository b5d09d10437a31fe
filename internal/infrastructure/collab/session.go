package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "collab:session:"
	userKeyPrefix    = "collab:user:"
)

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func userSessionsKey(userID string) string {
	return userKeyPrefix + userID + ":sessions"
}

// RedisSessionCreator opens collaboration sessions as Redis hashes that expire
// after ttl. Each participant's session set is refreshed with the same ttl.
type RedisSessionCreator struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisSessionCreator(client redis.UniversalClient, ttl time.Duration) *RedisSessionCreator {
	return &RedisSessionCreator{
		client: client,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *RedisSessionCreator) CreateSession(ctx context.Context, userA, userB string, questionID *string) (string, error) {
	id := uuid.New().String()
	key := sessionKey(id)

	fields := map[string]any{
		"id":         id,
		"user_a":     userA,
		"user_b":     userB,
		"created_at": c.now().Format(time.RFC3339Nano),
	}
	if questionID != nil {
		fields["question_id"] = *questionID
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, c.ttl)
		for _, user := range []string{userA, userB} {
			pipe.SAdd(ctx, userSessionsKey(user), id)
			pipe.Expire(ctx, userSessionsKey(user), c.ttl)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store collaboration session: %w", err)
	}
	return id, nil
}
