package repository

import (
	"context"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
)

// TicketRepository is the only way to read or mutate ticket rows. Operations that
// only apply to QUEUED tickets return a nil ticket (and no error) when the ticket
// is missing or has already left the queue.
type TicketRepository interface {
	// Create inserts a QUEUED ticket. If the user already owns a QUEUED ticket that
	// ticket is returned instead and created is false.
	Create(ctx context.Context, ticket *domain.Ticket) (stored *domain.Ticket, created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	FindActiveByUser(ctx context.Context, userID string) (*domain.Ticket, error)
	Heartbeat(ctx context.Context, id string, now time.Time) (*domain.Ticket, error)
	Cancel(ctx context.Context, id string, now time.Time) (*domain.Ticket, error)
	ExtendAndRelax(ctx context.Context, id string, extend time.Duration, flags domain.RelaxFlags, now time.Time) (*domain.Ticket, error)
	FindCandidates(ctx context.Context, anchor *domain.Ticket, mode domain.MatchMode, limit int) ([]*domain.Ticket, error)
	TimeoutOverdue(ctx context.Context, now time.Time) (int64, error)
	ExpireStale(ctx context.Context, staleBefore, now time.Time) (int64, error)
}
