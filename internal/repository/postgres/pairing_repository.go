package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/gdugdh24/pairprep-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// pairingRepository runs the multi-row transactions. Ticket rows are always locked
// in ascending id order so concurrent pairings and recoveries cannot deadlock.
type pairingRepository struct {
	db *sqlx.DB
}

func NewPairingRepository(db *sqlx.DB) repository.PairingRepository {
	return &pairingRepository{db: db}
}

func (r *pairingRepository) PairTickets(ctx context.Context, ticketAID, ticketBID string, now time.Time) (*domain.Pair, error) {
	if ticketAID == ticketBID {
		return nil, domain.ErrPairingConflict
	}
	firstID, secondID := domain.OrderedTicketIDs(ticketAID, ticketBID)

	var pair *domain.Pair
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		first, err := lockTicket(ctx, tx, firstID)
		if err != nil {
			return err
		}
		second, err := lockTicket(ctx, tx, secondID)
		if err != nil {
			return err
		}
		if first == nil || second == nil || !first.IsQueued() || !second.IsQueued() || first.UserID == second.UserID {
			return domain.ErrPairingConflict
		}

		pair = &domain.Pair{
			ID:        uuid.New().String(),
			TicketAID: first.ID,
			TicketBID: second.ID,
			UserAID:   first.UserID,
			UserBID:   second.UserID,
			Strict:    first.StrictMode && second.StrictMode,
			MatchedAt: now,
		}
		insert := `
			INSERT INTO pairs (id, ticket_a_id, ticket_b_id, user_a_id, user_b_id, strict, matched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.ExecContext(ctx, insert,
			pair.ID, pair.TicketAID, pair.TicketBID, pair.UserAID, pair.UserBID, pair.Strict, pair.MatchedAt,
		); err != nil {
			return fmt.Errorf("insert pair: %w", err)
		}

		update := `
			UPDATE tickets
			SET status = 'MATCHED', pair_id = $1, updated_at = $2
			WHERE id IN ($3, $4)
		`
		if _, err := tx.ExecContext(ctx, update, pair.ID, now, first.ID, second.ID); err != nil {
			return fmt.Errorf("mark tickets matched: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (r *pairingRepository) CancelWithRecovery(ctx context.Context, ticketID string, now time.Time, grace time.Duration) (*domain.Recovery, error) {
	result := &domain.Recovery{}
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var pairID sql.NullString
		err := tx.GetContext(ctx, &pairID, `SELECT pair_id FROM tickets WHERE id = $1 AND status = 'MATCHED'`, ticketID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		if !pairID.Valid {
			return nil
		}

		pair, err := lockPair(ctx, tx, pairID.String)
		if err != nil {
			return err
		}
		tickets, err := lockPairTickets(ctx, tx, pair)
		if err != nil {
			return err
		}

		target := tickets[ticketID]
		if target == nil || target.Status != domain.TicketStatusMatched || target.PairID == nil || *target.PairID != pair.ID {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tickets SET status = 'CANCELLED', pair_id = NULL, updated_at = $1 WHERE id = $2`,
			now, target.ID,
		); err != nil {
			return fmt.Errorf("cancel ticket: %w", err)
		}
		result.Cancelled = true
		dissolved := pair.ID
		result.DissolvedPairID = &dissolved

		partnerID, _ := pair.GetOtherTicketID(target.ID)
		partner := tickets[partnerID]
		if partner != nil && partner.Status == domain.TicketStatusMatched && partner.PairID != nil && *partner.PairID == pair.ID {
			partnerUser := partner.UserID
			result.PartnerUserID = &partnerUser
			requeued, err := releaseTicket(ctx, tx, partner, now, domain.RecoveryDeadline(partner.TimeoutAt, now, grace))
			if err != nil {
				return err
			}
			if requeued {
				id := partner.ID
				result.PartnerRequeuedTicketID = &id
			}
		}
		return dissolvePair(ctx, tx, pair.ID, now)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *pairingRepository) Unpair(ctx context.Context, pairID string, now time.Time) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		pair, err := lockPair(ctx, tx, pairID)
		if err != nil {
			return err
		}
		tickets, err := lockPairTickets(ctx, tx, pair)
		if err != nil {
			return err
		}
		for _, id := range []string{pair.TicketAID, pair.TicketBID} {
			t := tickets[id]
			if t == nil || t.Status != domain.TicketStatusMatched || t.PairID == nil || *t.PairID != pair.ID {
				continue
			}
			if _, err := releaseTicket(ctx, tx, t, now, t.TimeoutAt); err != nil {
				return err
			}
		}
		return dissolvePair(ctx, tx, pair.ID, now)
	})
}

// releaseTicket returns a MATCHED ticket to the queue, or cancels it when its user
// already queued again. It reports whether the ticket was requeued.
func releaseTicket(ctx context.Context, tx *sqlx.Tx, t *domain.Ticket, now time.Time, deadline *time.Time) (bool, error) {
	var queued bool
	err := tx.GetContext(ctx, &queued,
		`SELECT EXISTS(SELECT 1 FROM tickets WHERE user_id = $1 AND status = 'QUEUED')`, t.UserID)
	if err != nil {
		return false, err
	}
	if queued {
		_, err = tx.ExecContext(ctx,
			`UPDATE tickets SET status = 'CANCELLED', pair_id = NULL, updated_at = $1 WHERE id = $2`,
			now, t.ID)
		if err != nil {
			return false, fmt.Errorf("cancel ticket %s: %w", t.ID, err)
		}
		return false, nil
	}

	query := `
		UPDATE tickets
		SET status = 'QUEUED', pair_id = NULL, last_seen_at = $1, timeout_at = $2, updated_at = $1
		WHERE id = $3
	`
	if _, err := tx.ExecContext(ctx, query, now, deadline, t.ID); err != nil {
		return false, fmt.Errorf("requeue ticket %s: %w", t.ID, err)
	}
	return true, nil
}

func dissolvePair(ctx context.Context, tx *sqlx.Tx, pairID string, now time.Time) error {
	query := `UPDATE pairs SET question_id = NULL, session_id = NULL, dissolved_at = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, now, pairID); err != nil {
		return fmt.Errorf("dissolve pair: %w", err)
	}
	return nil
}

func lockPair(ctx context.Context, tx *sqlx.Tx, pairID string) (*domain.Pair, error) {
	var row pairRow
	err := tx.GetContext(ctx, &row, `SELECT `+pairSelect+` FROM pairs WHERE id = $1 FOR UPDATE`, pairID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPairNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// lockPairTickets locks both tickets of a pair. Pair rows store ticket_a_id < ticket_b_id,
// so iterating in column order keeps the global lock order.
func lockPairTickets(ctx context.Context, tx *sqlx.Tx, pair *domain.Pair) (map[string]*domain.Ticket, error) {
	tickets := make(map[string]*domain.Ticket, 2)
	firstID, secondID := domain.OrderedTicketIDs(pair.TicketAID, pair.TicketBID)
	for _, id := range []string{firstID, secondID} {
		t, err := lockTicket(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		tickets[id] = t
	}
	return tickets, nil
}

// lockTicket takes a row lock on the ticket. A missing ticket yields nil.
func lockTicket(ctx context.Context, tx *sqlx.Tx, id string) (*domain.Ticket, error) {
	var row ticketRow
	err := tx.GetContext(ctx, &row, `SELECT `+ticketSelect+` FROM tickets WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
