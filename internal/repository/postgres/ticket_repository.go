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
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// createAttempts bounds the insert/lookup loop when a concurrent enqueue holds the
// one-active-ticket slot and leaves the queue before we can read it back.
const createAttempts = 3

type ticketRepository struct {
	db *sqlx.DB
}

func NewTicketRepository(db *sqlx.DB) repository.TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, bool, error) {
	if ticket.ID == "" {
		ticket.ID = uuid.New().String()
	}
	if ticket.Topics == nil {
		ticket.Topics = []string{}
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("tickets")
	ib.Cols(
		"id", "user_id", "difficulty", "topics", "skill_level", "strict_mode",
		"enqueued_at", "last_seen_at", "timeout_at", "status", "updated_at",
	)
	ib.Values(
		ticket.ID, ticket.UserID, string(ticket.Difficulty), pq.Array(ticket.Topics),
		string(ticket.SkillLevel), ticket.StrictMode,
		ticket.EnqueuedAt, ticket.LastSeenAt, ticket.TimeoutAt,
		string(domain.TicketStatusQueued), ticket.EnqueuedAt,
	)
	query, args := ib.Build()
	query += " RETURNING " + ticketSelect

	for attempt := 0; attempt < createAttempts; attempt++ {
		var row ticketRow
		err := r.db.GetContext(ctx, &row, query, args...)
		if err == nil {
			return row.toDomain(), true, nil
		}
		if !isUniqueViolation(err) {
			return nil, false, fmt.Errorf("insert ticket: %w", err)
		}

		existing, err := r.FindActiveByUser(ctx, ticket.UserID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrTicketNotFound) {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("insert ticket: active ticket for user %s kept changing", ticket.UserID)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var row ticketRow
	query := `SELECT ` + ticketSelect + ` FROM tickets WHERE id = $1`
	err := r.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *ticketRepository) FindActiveByUser(ctx context.Context, userID string) (*domain.Ticket, error) {
	var row ticketRow
	query := `SELECT ` + ticketSelect + ` FROM tickets WHERE user_id = $1 AND status = 'QUEUED'`
	err := r.db.GetContext(ctx, &row, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *ticketRepository) Heartbeat(ctx context.Context, id string, now time.Time) (*domain.Ticket, error) {
	query := `
		UPDATE tickets
		SET last_seen_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'QUEUED'
		RETURNING ` + ticketSelect
	return r.updateQueued(ctx, query, now, id)
}

func (r *ticketRepository) Cancel(ctx context.Context, id string, now time.Time) (*domain.Ticket, error) {
	query := `
		UPDATE tickets
		SET status = 'CANCELLED', updated_at = $1
		WHERE id = $2 AND status = 'QUEUED'
		RETURNING ` + ticketSelect
	return r.updateQueued(ctx, query, now, id)
}

func (r *ticketRepository) ExtendAndRelax(ctx context.Context, id string, extend time.Duration, flags domain.RelaxFlags, now time.Time) (*domain.Ticket, error) {
	// NULL + interval stays NULL, so tickets without a deadline keep none.
	query := `
		UPDATE tickets
		SET timeout_at = timeout_at + ($1::double precision * interval '1 second'),
		    relax_topics = relax_topics OR $2,
		    relax_difficulty = relax_difficulty OR $3,
		    relax_skill = relax_skill OR $4,
		    updated_at = $5
		WHERE id = $6 AND status = 'QUEUED'
		RETURNING ` + ticketSelect
	return r.updateQueued(ctx, query, extend.Seconds(), flags.Topics, flags.Difficulty, flags.Skill, now, id)
}

func (r *ticketRepository) updateQueued(ctx context.Context, query string, args ...interface{}) (*domain.Ticket, error) {
	var row ticketRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *ticketRepository) FindCandidates(ctx context.Context, anchor *domain.Ticket, mode domain.MatchMode, limit int) ([]*domain.Ticket, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ticketColumns...)
	sb.From("tickets")

	where := []string{
		sb.Equal("status", string(domain.TicketStatusQueued)),
		sb.NotEqual("id", anchor.ID),
		sb.NotEqual("user_id", anchor.UserID),
	}
	if !anchor.Relax.Difficulty {
		where = append(where, sb.Equal("difficulty", string(anchor.Difficulty)))
	}
	if !anchor.Relax.Skill {
		where = append(where, sb.Equal("skill_level", string(anchor.SkillLevel)))
	}
	if mode == domain.MatchModeStrict {
		where = append(where, sb.Equal("strict_mode", anchor.StrictMode))
		if !anchor.Relax.Topics && len(anchor.Topics) > 0 {
			topics := pq.Array(anchor.Topics)
			where = append(where, sb.Or(
				"topics <@ "+sb.Var(topics)+"::text[]",
				"topics @> "+sb.Var(topics)+"::text[]",
			))
		}
	}
	sb.Where(where...)
	sb.OrderBy("enqueued_at", "id")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var rows []ticketRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}

	candidates := make([]*domain.Ticket, 0, len(rows))
	for i := range rows {
		candidates = append(candidates, rows[i].toDomain())
	}
	return candidates, nil
}

func (r *ticketRepository) TimeoutOverdue(ctx context.Context, now time.Time) (int64, error) {
	return r.execCount(ctx, timeoutOverdueQuery(now))
}

func (r *ticketRepository) ExpireStale(ctx context.Context, staleBefore, now time.Time) (int64, error) {
	return r.execCount(ctx, expireStaleQuery(staleBefore, now))
}

func timeoutOverdueQuery(now time.Time) *sqlbuilder.UpdateBuilder {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Where(
		sb.Equal("status", string(domain.TicketStatusQueued)),
		sb.IsNotNull("timeout_at"),
		sb.LessEqualThan("timeout_at", now),
	)
	return sweepQuery(sb, domain.TicketStatusTimeout, now)
}

func expireStaleQuery(staleBefore, now time.Time) *sqlbuilder.UpdateBuilder {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Where(
		sb.Equal("status", string(domain.TicketStatusQueued)),
		sb.LessThan("last_seen_at", staleBefore),
	)
	return sweepQuery(sb, domain.TicketStatusExpired, now)
}

// sweepQuery moves the tickets selected by sb to status. Rows are locked in id
// order, the same order PairTickets uses, and rows held by a pairing are skipped.
func sweepQuery(sb *sqlbuilder.SelectBuilder, status domain.TicketStatus, now time.Time) *sqlbuilder.UpdateBuilder {
	sb.Select("id").From("tickets").OrderBy("id").ForUpdate().SQL("SKIP LOCKED")

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("tickets")
	ub.Set(
		ub.Assign("status", string(status)),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.In("id", sb))
	return ub
}

func (r *ticketRepository) execCount(ctx context.Context, b sqlbuilder.Builder) (int64, error) {
	query, args := b.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
