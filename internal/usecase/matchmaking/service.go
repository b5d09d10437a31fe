package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/gdugdh24/pairprep-backend/internal/infrastructure/metrics"
	"github.com/gdugdh24/pairprep-backend/internal/repository"
	"github.com/gdugdh24/pairprep-backend/internal/usecase/matching"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Options struct {
	DefaultTimeout     time.Duration
	StaleAfter         time.Duration
	RecoveryGrace      time.Duration
	DefaultExtend      time.Duration
	MaxExtend          time.Duration
	CandidateLimit     int
	MaxPairingAttempts int
}

func DefaultOptions() Options {
	return Options{
		DefaultTimeout:     5 * time.Minute,
		StaleAfter:         30 * time.Second,
		RecoveryGrace:      time.Minute,
		DefaultExtend:      time.Minute,
		MaxExtend:          10 * time.Minute,
		CandidateLimit:     50,
		MaxPairingAttempts: 3,
	}
}

// Option customises a MatchmakingUseCase, mostly for tests.
type Option func(*MatchmakingUseCase)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(uc *MatchmakingUseCase) {
		uc.now = now
	}
}

// WithSpawn replaces how fire-and-forget work (re-matching a recovered partner) is started.
func WithSpawn(spawn func(func())) Option {
	return func(uc *MatchmakingUseCase) {
		uc.spawn = spawn
	}
}

type MatchmakingUseCase struct {
	tickets   repository.TicketRepository
	pairs     repository.PairRepository
	pairing   repository.PairingRepository
	engine    *matching.Engine
	sessions  SessionCreator
	questions QuestionSelector
	events    EventPublisher
	logger    *zap.Logger
	validate  *validator.Validate
	opts      Options
	now       func() time.Time
	spawn     func(func())
}

func NewMatchmakingUseCase(
	tickets repository.TicketRepository,
	pairs repository.PairRepository,
	pairing repository.PairingRepository,
	engine *matching.Engine,
	sessions SessionCreator,
	questions QuestionSelector,
	events EventPublisher,
	logger *zap.Logger,
	opts Options,
	options ...Option,
) *MatchmakingUseCase {
	if events == nil {
		events = noopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxPairingAttempts < 1 {
		opts.MaxPairingAttempts = 1
	}
	uc := &MatchmakingUseCase{
		tickets:   tickets,
		pairs:     pairs,
		pairing:   pairing,
		engine:    engine,
		sessions:  sessions,
		questions: questions,
		events:    events,
		logger:    logger,
		validate:  validator.New(),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		spawn:     func(fn func()) { go fn() },
	}
	for _, option := range options {
		option(uc)
	}
	return uc
}

// EnqueueRequest carries the criteria of a new ticket. A nil TimeoutSeconds uses the
// configured default; zero means the ticket never times out.
type EnqueueRequest struct {
	UserID         string            `json:"-" validate:"required,max=128"`
	Difficulty     domain.Difficulty `json:"difficulty" validate:"required,oneof=EASY MEDIUM HARD"`
	Topics         []string          `json:"topics" validate:"max=32,dive,max=64"`
	SkillLevel     domain.SkillLevel `json:"skill_level" validate:"required,oneof=BEGINNER INTERMEDIATE ADVANCED"`
	StrictMode     bool              `json:"strict_mode"`
	TimeoutSeconds *int              `json:"timeout_seconds" validate:"omitempty,min=0,max=86400"`
}

func (req *EnqueueRequest) normalize() {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Difficulty = domain.Difficulty(strings.ToUpper(strings.TrimSpace(string(req.Difficulty))))
	req.SkillLevel = domain.SkillLevel(strings.ToUpper(strings.TrimSpace(string(req.SkillLevel))))
	req.Topics = domain.NormalizeTopics(req.Topics)
}

// Enqueue creates a QUEUED ticket, or returns the user's existing one with created
// set to false.
func (uc *MatchmakingUseCase) Enqueue(ctx context.Context, req *EnqueueRequest) (*domain.Ticket, bool, error) {
	req.normalize()
	if err := uc.validate.Struct(req); err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrInvalidCriteria, err)
	}

	now := uc.now()
	uc.cleanup(ctx, now)

	ticket := &domain.Ticket{
		UserID:     req.UserID,
		Difficulty: req.Difficulty,
		Topics:     req.Topics,
		SkillLevel: req.SkillLevel,
		StrictMode: req.StrictMode,
		EnqueuedAt: now,
		LastSeenAt: now,
	}
	timeout := uc.opts.DefaultTimeout
	if req.TimeoutSeconds != nil {
		timeout = time.Duration(*req.TimeoutSeconds) * time.Second
	}
	if timeout > 0 {
		deadline := now.Add(timeout)
		ticket.TimeoutAt = &deadline
	}

	stored, created, err := uc.tickets.Create(ctx, ticket)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create ticket: %w", err)
	}
	if created {
		metrics.TicketsEnqueued.Inc()
		uc.logger.Info("ticket enqueued",
			zap.String("ticket_id", stored.ID),
			zap.String("user_id", stored.UserID),
			zap.String("difficulty", string(stored.Difficulty)),
			zap.Strings("topics", stored.Topics),
			zap.Bool("strict_mode", stored.StrictMode),
		)
	}
	return stored, created, nil
}

// Heartbeat reports whether the ticket is still queued and was refreshed.
func (uc *MatchmakingUseCase) Heartbeat(ctx context.Context, ticketID string) (bool, error) {
	now := uc.now()
	uc.cleanup(ctx, now)

	ticket, err := uc.tickets.Heartbeat(ctx, ticketID, now)
	if err != nil {
		return false, fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return ticket != nil, nil
}

// TryMatch looks for a partner for a queued ticket. It returns nil when nobody fits
// yet. A ticket that is already matched gets its existing pair back.
func (uc *MatchmakingUseCase) TryMatch(ctx context.Context, ticketID string) (*domain.MatchResult, error) {
	uc.cleanup(ctx, uc.now())

	anchor, err := uc.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	switch anchor.Status {
	case domain.TicketStatusMatched:
		return uc.existingResult(ctx, anchor)
	case domain.TicketStatusQueued:
		return uc.match(ctx, anchor)
	}
	return nil, nil
}

// GetTicket returns nil when the ticket does not exist.
func (uc *MatchmakingUseCase) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := uc.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return ticket, nil
}

// GetPair returns nil when the pair does not exist.
func (uc *MatchmakingUseCase) GetPair(ctx context.Context, pairID string) (*domain.Pair, error) {
	pair, err := uc.pairs.GetByID(ctx, pairID)
	if err != nil {
		if errors.Is(err, domain.ErrPairNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pair: %w", err)
	}
	return pair, nil
}

func (uc *MatchmakingUseCase) publish(ctx context.Context, event domain.MatchEvent) {
	if err := uc.events.Publish(ctx, event); err != nil {
		uc.logger.Warn("failed to publish match event",
			zap.String("event_type", string(event.Type)),
			zap.String("pair_id", event.PairID),
			zap.Error(err),
		)
	}
}
