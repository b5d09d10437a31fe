package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/gdugdh24/pairprep-backend/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// cleanup retires queued tickets past their deadline, then those whose heartbeat
// went stale. It runs at the start of every operation; failures are only logged.
func (uc *MatchmakingUseCase) cleanup(ctx context.Context, now time.Time) {
	timedOut, err := uc.tickets.TimeoutOverdue(ctx, now)
	if err != nil {
		uc.logger.Warn("cleanup: timing out overdue tickets failed", zap.Error(err))
	} else if timedOut > 0 {
		metrics.TicketsRetired.WithLabelValues(string(domain.TicketStatusTimeout)).Add(float64(timedOut))
		uc.logger.Debug("cleanup: timed out tickets", zap.Int64("count", timedOut))
	}

	expired, err := uc.tickets.ExpireStale(ctx, now.Add(-uc.opts.StaleAfter), now)
	if err != nil {
		uc.logger.Warn("cleanup: expiring stale tickets failed", zap.Error(err))
	} else if expired > 0 {
		metrics.TicketsRetired.WithLabelValues(string(domain.TicketStatusExpired)).Add(float64(expired))
		uc.logger.Debug("cleanup: expired stale tickets", zap.Int64("count", expired))
	}
}

// Cancel withdraws a queued ticket. It reports false if the ticket was not queued.
func (uc *MatchmakingUseCase) Cancel(ctx context.Context, ticketID string) (bool, error) {
	now := uc.now()
	uc.cleanup(ctx, now)

	ticket, err := uc.tickets.Cancel(ctx, ticketID, now)
	if err != nil {
		return false, fmt.Errorf("failed to cancel ticket: %w", err)
	}
	if ticket == nil {
		return false, nil
	}
	metrics.TicketsRetired.WithLabelValues(string(domain.TicketStatusCancelled)).Inc()
	uc.logger.Info("ticket cancelled", zap.String("ticket_id", ticketID))
	return true, nil
}

// CancelWithRecovery cancels a ticket whether it is queued or already matched. For a
// matched ticket the partner goes back to the queue with a grace extension and is
// offered a new match in the background.
func (uc *MatchmakingUseCase) CancelWithRecovery(ctx context.Context, ticketID string) (*domain.Recovery, error) {
	now := uc.now()
	uc.cleanup(ctx, now)

	ticket, err := uc.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			return &domain.Recovery{}, nil
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	if ticket.IsQueued() {
		cancelled, err := uc.tickets.Cancel(ctx, ticketID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to cancel ticket: %w", err)
		}
		if cancelled != nil {
			metrics.TicketsRetired.WithLabelValues(string(domain.TicketStatusCancelled)).Inc()
			uc.logger.Info("ticket cancelled", zap.String("ticket_id", ticketID))
			return &domain.Recovery{Cancelled: true}, nil
		}
		// matched by someone else between the read and the cancel
	}
	return uc.recoverMatched(ctx, ticketID, now)
}

func (uc *MatchmakingUseCase) recoverMatched(ctx context.Context, ticketID string, now time.Time) (*domain.Recovery, error) {
	result, err := uc.pairing.CancelWithRecovery(ctx, ticketID, now, uc.opts.RecoveryGrace)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel matched ticket: %w", err)
	}
	if !result.Cancelled {
		return result, nil
	}

	partnerOutcome := "cancelled"
	if result.PartnerRequeuedTicketID != nil {
		partnerOutcome = "requeued"
	} else if result.PartnerUserID == nil {
		partnerOutcome = "gone"
	}
	metrics.Recoveries.WithLabelValues(partnerOutcome).Inc()
	metrics.TicketsRetired.WithLabelValues(string(domain.TicketStatusCancelled)).Inc()

	log := uc.logger.With(zap.String("ticket_id", ticketID))
	if result.DissolvedPairID != nil {
		log = log.With(zap.String("pair_id", *result.DissolvedPairID))
		event := domain.MatchEvent{
			Type:       domain.EventPairDissolved,
			PairID:     *result.DissolvedPairID,
			TicketIDs:  []string{ticketID},
			OccurredAt: now,
		}
		if result.PartnerUserID != nil {
			event.UserIDs = []string{*result.PartnerUserID}
		}
		uc.publish(ctx, event)
	}
	log.Info("matched ticket cancelled", zap.String("partner", partnerOutcome))

	if result.PartnerRequeuedTicketID != nil {
		partnerID := *result.PartnerRequeuedTicketID
		requeued := domain.MatchEvent{
			Type:       domain.EventTicketRequeued,
			TicketIDs:  []string{partnerID},
			OccurredAt: now,
		}
		if result.PartnerUserID != nil {
			requeued.UserIDs = []string{*result.PartnerUserID}
		}
		uc.publish(ctx, requeued)

		detached := context.WithoutCancel(ctx)
		uc.spawn(func() {
			if _, err := uc.TryMatch(detached, partnerID); err != nil {
				uc.logger.Warn("re-match of recovered partner failed",
					zap.String("ticket_id", partnerID),
					zap.Error(err),
				)
			}
		})
	}
	return result, nil
}
