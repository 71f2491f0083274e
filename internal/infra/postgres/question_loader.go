package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizprep-service/internal/domain"
)

// QuestionLoader loads a subject's raw question records from JSONB rows.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) Fetch(ctx context.Context, subject string) ([]domain.RawQuestion, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM questions WHERE subject=$1 ORDER BY position`, subject)
	if err != nil {
		return nil, &domain.FetchError{Subject: subject, Err: fmt.Errorf("load questions: %w", err)}
	}
	defer rows.Close()

	var raws []domain.RawQuestion
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, &domain.FetchError{Subject: subject, Err: fmt.Errorf("scan question: %w", err)}
		}
		var raw domain.RawQuestion
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &domain.FetchError{Subject: subject, Err: fmt.Errorf("unmarshal question: %w", err)}
		}
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.FetchError{Subject: subject, Err: err}
	}
	if len(raws) == 0 {
		return nil, &domain.FetchError{Subject: subject, Err: domain.ErrUnknownSubject}
	}
	return raws, nil
}

// SeedQuestions replaces the stored pool of subject.
func (l *QuestionLoader) SeedQuestions(ctx context.Context, subject string, raws []domain.RawQuestion) error {
	return l.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE subject=$1`, subject); err != nil {
			return err
		}
		for i, raw := range raws {
			data, err := json.Marshal(raw)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO questions (subject, position, data) VALUES ($1, $2, $3)`, subject, i, string(data)); err != nil {
				return fmt.Errorf("insert question %d: %w", i, err)
			}
		}
		return nil
	})
}
