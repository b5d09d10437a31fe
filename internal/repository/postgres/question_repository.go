package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/gdugdh24/pairprep-backend/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type questionRepository struct {
	db *sqlx.DB
}

func NewQuestionRepository(db *sqlx.DB) repository.QuestionRepository {
	return &questionRepository{db: db}
}

// SelectQuestion picks a question of the given difficulty that shares a topic with
// the request. Ordering by md5(id || key) makes the choice stable per requester while
// spreading different requesters across the catalog.
func (r *questionRepository) SelectQuestion(ctx context.Context, difficulty domain.Difficulty, topics []string, requesterKey string) (*string, error) {
	query := `
		SELECT id FROM questions
		WHERE ($1 = '' OR difficulty = $1)
		  AND (cardinality($2::text[]) = 0 OR topics && $2::text[])
		ORDER BY md5(id || $3)
		LIMIT 1
	`
	if topics == nil {
		topics = []string{}
	}
	var id string
	err := r.db.GetContext(ctx, &id, query, string(difficulty), pq.Array(topics), requesterKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}
