package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/gdugdh24/pairprep-backend/internal/repository"
	"github.com/jmoiron/sqlx"
)

type pairRepository struct {
	db *sqlx.DB
}

func NewPairRepository(db *sqlx.DB) repository.PairRepository {
	return &pairRepository{db: db}
}

func (r *pairRepository) GetByID(ctx context.Context, id string) (*domain.Pair, error) {
	var row pairRow
	query := `SELECT ` + pairSelect + ` FROM pairs WHERE id = $1`
	err := r.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPairNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// AttachAssignment records the question and session of a live pair. A pair that was
// dissolved in the meantime is left untouched.
func (r *pairRepository) AttachAssignment(ctx context.Context, pairID string, questionID, sessionID *string) error {
	query := `
		UPDATE pairs
		SET question_id = $1, session_id = $2
		WHERE id = $3 AND dissolved_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, questionID, sessionID, pairID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM pairs WHERE id = $1)`, pairID); err != nil {
		return err
	}
	if !exists {
		return domain.ErrPairNotFound
	}
	return nil
}
