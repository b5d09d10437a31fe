package postgres

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

var ticketColumns = []string{
	"id", "user_id", "difficulty", "topics", "skill_level", "strict_mode",
	"enqueued_at", "last_seen_at", "timeout_at",
	"relax_topics", "relax_difficulty", "relax_skill",
	"status", "pair_id", "updated_at",
}

var ticketSelect = strings.Join(ticketColumns, ", ")

type ticketRow struct {
	ID              string         `db:"id"`
	UserID          string         `db:"user_id"`
	Difficulty      string         `db:"difficulty"`
	Topics          pq.StringArray `db:"topics"`
	SkillLevel      string         `db:"skill_level"`
	StrictMode      bool           `db:"strict_mode"`
	EnqueuedAt      time.Time      `db:"enqueued_at"`
	LastSeenAt      time.Time      `db:"last_seen_at"`
	TimeoutAt       sql.NullTime   `db:"timeout_at"`
	RelaxTopics     bool           `db:"relax_topics"`
	RelaxDifficulty bool           `db:"relax_difficulty"`
	RelaxSkill      bool           `db:"relax_skill"`
	Status          string         `db:"status"`
	PairID          sql.NullString `db:"pair_id"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r *ticketRow) toDomain() *domain.Ticket {
	t := &domain.Ticket{
		ID:         r.ID,
		UserID:     r.UserID,
		Difficulty: domain.Difficulty(r.Difficulty),
		Topics:     []string(r.Topics),
		SkillLevel: domain.SkillLevel(r.SkillLevel),
		StrictMode: r.StrictMode,
		EnqueuedAt: r.EnqueuedAt.UTC(),
		LastSeenAt: r.LastSeenAt.UTC(),
		Relax: domain.RelaxFlags{
			Topics:     r.RelaxTopics,
			Difficulty: r.RelaxDifficulty,
			Skill:      r.RelaxSkill,
		},
		Status:    domain.TicketStatus(r.Status),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if t.Topics == nil {
		t.Topics = []string{}
	}
	if r.TimeoutAt.Valid {
		v := r.TimeoutAt.Time.UTC()
		t.TimeoutAt = &v
	}
	if r.PairID.Valid {
		v := r.PairID.String
		t.PairID = &v
	}
	return t
}

const pairSelect = `id, ticket_a_id, ticket_b_id, user_a_id, user_b_id, strict, matched_at, question_id, session_id, dissolved_at`

type pairRow struct {
	ID          string         `db:"id"`
	TicketAID   string         `db:"ticket_a_id"`
	TicketBID   string         `db:"ticket_b_id"`
	UserAID     string         `db:"user_a_id"`
	UserBID     string         `db:"user_b_id"`
	Strict      bool           `db:"strict"`
	MatchedAt   time.Time      `db:"matched_at"`
	QuestionID  sql.NullString `db:"question_id"`
	SessionID   sql.NullString `db:"session_id"`
	DissolvedAt sql.NullTime   `db:"dissolved_at"`
}

func (r *pairRow) toDomain() *domain.Pair {
	p := &domain.Pair{
		ID:         r.ID,
		TicketAID:  r.TicketAID,
		TicketBID:  r.TicketBID,
		UserAID:    r.UserAID,
		UserBID:    r.UserBID,
		Strict:     r.Strict,
		MatchedAt:  r.MatchedAt.UTC(),
		QuestionID: nullString(r.QuestionID),
		SessionID:  nullString(r.SessionID),
	}
	if r.DissolvedAt.Valid {
		v := r.DissolvedAt.Time.UTC()
		p.DissolvedAt = &v
	}
	return p
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
