package matchmaking

import (
	"context"
	"fmt"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"go.uber.org/zap"
)

// RelaxRequest widens a ticket's criteria. Flags already set stay set. A nil
// ExtendSeconds extends the deadline by the configured default.
type RelaxRequest struct {
	Topics        bool `json:"relax_topics"`
	Difficulty    bool `json:"relax_difficulty"`
	Skill         bool `json:"relax_skill"`
	ExtendSeconds *int `json:"extend_seconds" validate:"omitempty,min=0"`
}

// Relax extends the ticket's deadline, records the relax flags and tries to match
// again. Topic relaxation puts flexible matching first. strict_mode is never
// relaxed, so a strict ticket keeps matching strictly.
func (uc *MatchmakingUseCase) Relax(ctx context.Context, ticketID string, req *RelaxRequest) (*domain.MatchResult, error) {
	if err := uc.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCriteria, err)
	}
	extend := uc.opts.DefaultExtend
	if req.ExtendSeconds != nil {
		extend = time.Duration(*req.ExtendSeconds) * time.Second
	}
	if uc.opts.MaxExtend > 0 && extend > uc.opts.MaxExtend {
		return nil, fmt.Errorf("%w: extension must not exceed %s", domain.ErrInvalidCriteria, uc.opts.MaxExtend)
	}

	now := uc.now()
	uc.cleanup(ctx, now)

	flags := domain.RelaxFlags{Topics: req.Topics, Difficulty: req.Difficulty, Skill: req.Skill}
	ticket, err := uc.tickets.ExtendAndRelax(ctx, ticketID, extend, flags, now)
	if err != nil {
		return nil, fmt.Errorf("failed to relax ticket: %w", err)
	}
	if ticket == nil {
		return nil, nil
	}

	uc.logger.Info("ticket relaxed",
		zap.String("ticket_id", ticket.ID),
		zap.Bool("relax_topics", ticket.Relax.Topics),
		zap.Bool("relax_difficulty", ticket.Relax.Difficulty),
		zap.Bool("relax_skill", ticket.Relax.Skill),
		zap.Duration("extend", extend),
	)
	return uc.match(ctx, ticket)
}
