package repository

import (
	"context"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
)

type PairRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Pair, error)
	AttachAssignment(ctx context.Context, pairID string, questionID, sessionID *string) error
}

// PairingRepository holds the multi-row transactions. Implementations lock ticket
// rows in ascending id order.
type PairingRepository interface {
	// PairTickets atomically moves both tickets to MATCHED and creates the pair.
	// Returns domain.ErrPairingConflict if either ticket is no longer QUEUED.
	PairTickets(ctx context.Context, ticketAID, ticketBID string, now time.Time) (*domain.Pair, error)
	CancelWithRecovery(ctx context.Context, ticketID string, now time.Time, grace time.Duration) (*domain.Recovery, error)
	// Unpair returns both MATCHED members of the pair to QUEUED and dissolves it.
	Unpair(ctx context.Context, pairID string, now time.Time) error
}

type QuestionRepository interface {
	SelectQuestion(ctx context.Context, difficulty domain.Difficulty, topics []string, requesterKey string) (*string, error)
}
