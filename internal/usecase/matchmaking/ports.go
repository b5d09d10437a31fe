package matchmaking

import (
	"context"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
)

// SessionCreator opens a collaboration session for a freshly formed pair.
type SessionCreator interface {
	CreateSession(ctx context.Context, userA, userB string, questionID *string) (string, error)
}

// QuestionSelector proposes a question for a pair. A nil id with no error means
// nothing suitable is available.
type QuestionSelector interface {
	SelectQuestion(ctx context.Context, difficulty domain.Difficulty, topics []string, requesterKey string) (*string, error)
}

// EventPublisher announces pairing events to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.MatchEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.MatchEvent) error { return nil }
