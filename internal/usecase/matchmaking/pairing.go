package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/gdugdh24/pairprep-backend/internal/infrastructure/metrics"
	"github.com/gdugdh24/pairprep-backend/internal/usecase/matching"
	"go.uber.org/zap"
)

// match runs the engine for anchor and commits the winning pairing. Losing a
// pairing race excludes that candidate and tries again, up to MaxPairingAttempts.
func (uc *MatchmakingUseCase) match(ctx context.Context, anchor *domain.Ticket) (*domain.MatchResult, error) {
	start := time.Now()
	excluded := make(map[string]struct{})

	for attempt := 0; attempt < uc.opts.MaxPairingAttempts; attempt++ {
		decision, err := uc.decide(ctx, anchor, excluded)
		if err != nil {
			metrics.MatchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
			return nil, err
		}
		if decision == nil {
			metrics.MatchDuration.WithLabelValues("no_match").Observe(time.Since(start).Seconds())
			return nil, nil
		}

		pair, err := uc.pairing.PairTickets(ctx, anchor.ID, decision.Candidate.ID, uc.now())
		if err == nil {
			result, err := uc.finalize(ctx, anchor, decision, pair)
			outcome := "matched"
			if err != nil {
				outcome = "error"
			}
			metrics.MatchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
			return result, err
		}
		if !errors.Is(err, domain.ErrPairingConflict) {
			metrics.MatchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
			return nil, fmt.Errorf("failed to pair tickets: %w", err)
		}

		metrics.PairingConflicts.Inc()
		uc.logger.Debug("pairing conflict",
			zap.String("ticket_id", anchor.ID),
			zap.String("candidate_id", decision.Candidate.ID),
			zap.Int("attempt", attempt+1),
		)
		excluded[decision.Candidate.ID] = struct{}{}

		current, err := uc.tickets.GetByID(ctx, anchor.ID)
		if err != nil {
			if errors.Is(err, domain.ErrTicketNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to reload ticket: %w", err)
		}
		if current.Status == domain.TicketStatusMatched {
			return uc.existingResult(ctx, current)
		}
		if !current.IsQueued() {
			return nil, nil
		}
		anchor = current
	}

	metrics.MatchDuration.WithLabelValues("no_match").Observe(time.Since(start).Seconds())
	return nil, nil
}

// decide walks the anchor's mode order and returns the first decision.
func (uc *MatchmakingUseCase) decide(ctx context.Context, anchor *domain.Ticket, excluded map[string]struct{}) (*matching.Decision, error) {
	for _, mode := range matching.ModeOrder(anchor) {
		candidates, err := uc.tickets.FindCandidates(ctx, anchor, mode, uc.opts.CandidateLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to find candidates: %w", err)
		}
		if len(excluded) > 0 {
			kept := candidates[:0]
			for _, c := range candidates {
				if _, skip := excluded[c.ID]; !skip {
					kept = append(kept, c)
				}
			}
			candidates = kept
		}
		if decision := uc.engine.Select(anchor, candidates, mode); decision != nil {
			return decision, nil
		}
	}
	return nil, nil
}

// finalize attaches a question and a collaboration session to a committed pair.
// If no session can be created the pairing is undone and ErrSessionCreation returned.
func (uc *MatchmakingUseCase) finalize(ctx context.Context, anchor *domain.Ticket, decision *matching.Decision, pair *domain.Pair) (*domain.MatchResult, error) {
	metrics.PairsCreated.WithLabelValues(string(decision.Mode)).Inc()
	log := uc.logger.With(
		zap.String("pair_id", pair.ID),
		zap.String("ticket_id", anchor.ID),
		zap.String("partner_ticket_id", decision.Candidate.ID),
		zap.String("mode", string(decision.Mode)),
	)

	questionID := uc.selectQuestion(ctx, anchor, decision.Candidate, pair, log)

	var sessionID *string
	if uc.sessions != nil {
		id, err := uc.sessions.CreateSession(ctx, pair.UserAID, pair.UserBID, questionID)
		if err != nil {
			metrics.SessionFailures.Inc()
			log.Error("failed to create collaboration session, unpairing", zap.Error(err))
			uc.unpair(ctx, pair, log)
			return nil, fmt.Errorf("%w: %v", domain.ErrSessionCreation, err)
		}
		sessionID = &id
	}

	if questionID != nil || sessionID != nil {
		if err := uc.pairs.AttachAssignment(ctx, pair.ID, questionID, sessionID); err != nil {
			// the session, if any, is left to expire
			log.Error("failed to attach assignment, unpairing", zap.Error(err))
			uc.unpair(ctx, pair, log)
			return nil, fmt.Errorf("failed to attach session to pair: %w", err)
		}
	}
	pair.QuestionID = questionID
	pair.SessionID = sessionID

	log.Info("pair created")
	uc.publish(ctx, domain.MatchEvent{
		Type:       domain.EventPairCreated,
		PairID:     pair.ID,
		TicketIDs:  []string{pair.TicketAID, pair.TicketBID},
		UserIDs:    []string{pair.UserAID, pair.UserBID},
		Mode:       decision.Mode,
		QuestionID: questionID,
		SessionID:  sessionID,
		OccurredAt: pair.MatchedAt,
	})

	result := resultFor(pair, anchor.ID)
	result.Mode = decision.Mode
	if decision.Mode == domain.MatchModeFlexible {
		score := decision.Score
		result.Score = &score
	}
	return result, nil
}

// unpair returns both tickets of a pair that could not be finalized to the queue.
func (uc *MatchmakingUseCase) unpair(ctx context.Context, pair *domain.Pair, log *zap.Logger) {
	if err := uc.pairing.Unpair(ctx, pair.ID, uc.now()); err != nil {
		log.Error("failed to unpair", zap.Error(err))
	}
}

// selectQuestion asks the catalog for a question the pair shares. Failures only
// cost the pair its question.
func (uc *MatchmakingUseCase) selectQuestion(ctx context.Context, anchor, partner *domain.Ticket, pair *domain.Pair, log *zap.Logger) *string {
	if uc.questions == nil {
		return nil
	}

	var difficulty domain.Difficulty
	if anchor.Difficulty == partner.Difficulty {
		difficulty = anchor.Difficulty
	}
	topics := sharedTopics(anchor.Topics, partner.Topics)
	if len(topics) == 0 {
		topics = domain.NormalizeTopics(append(append([]string{}, anchor.Topics...), partner.Topics...))
	}

	questionID, err := uc.questions.SelectQuestion(ctx, difficulty, topics, pair.ID)
	if err != nil {
		log.Warn("question selection failed, continuing without a question", zap.Error(err))
		return nil
	}
	return questionID
}

// existingResult describes the pair a MATCHED ticket already belongs to.
func (uc *MatchmakingUseCase) existingResult(ctx context.Context, ticket *domain.Ticket) (*domain.MatchResult, error) {
	if ticket.PairID == nil {
		return nil, nil
	}
	pair, err := uc.pairs.GetByID(ctx, *ticket.PairID)
	if err != nil {
		if errors.Is(err, domain.ErrPairNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pair: %w", err)
	}
	return resultFor(pair, ticket.ID), nil
}

func resultFor(pair *domain.Pair, ticketID string) *domain.MatchResult {
	partnerTicket, _ := pair.GetOtherTicketID(ticketID)
	partnerUser := pair.UserBID
	if partnerTicket == pair.TicketAID {
		partnerUser = pair.UserAID
	}
	return &domain.MatchResult{
		PairID:          pair.ID,
		TicketID:        ticketID,
		PartnerTicketID: partnerTicket,
		PartnerUserID:   partnerUser,
		Strict:          pair.Strict,
		QuestionID:      pair.QuestionID,
		SessionID:       pair.SessionID,
		MatchedAt:       pair.MatchedAt,
	}
}

func sharedTopics(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	var out []string
	for _, t := range a {
		if _, ok := set[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
