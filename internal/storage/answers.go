package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
)

// UpsertAnswer creates or replaces the answer of a question.
func (db *DB) UpsertAnswer(ctx context.Context, answer domain.Answer) error {
	return upsertAnswer(ctx, db.Pool, answer)
}

func upsertAnswer(ctx context.Context, ex execer, answer domain.Answer) error {
	sources := answer.Sources
	if sources == nil {
		sources = []domain.AnswerSource{}
	}

	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal answer sources: %w", err)
	}

	_, err = ex.Exec(ctx, `
		INSERT INTO answers (question_id, summary, answer, sources, author_id)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (question_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			answer = EXCLUDED.answer,
			sources = EXCLUDED.sources,
			author_id = COALESCE(EXCLUDED.author_id, answers.author_id),
			updated_at = now()
	`, answer.QuestionID, SanitizeUTF8(answer.Summary), SanitizeUTF8(answer.Text), sourcesJSON, toInt8(answer.AuthorID))
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("question %d: %w", answer.QuestionID, coreerrors.ErrQuestionNotFound)
		}

		return fmt.Errorf("upsert answer: %w", err)
	}

	return nil
}

// GetAnswer returns the answer of a question, or nil when none was written.
func (db *DB) GetAnswer(ctx context.Context, questionID int64) (*domain.Answer, error) {
	var (
		a           domain.Answer
		sourcesJSON []byte
		authorID    pgtype.Int8
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT question_id, summary, answer, sources, author_id, published_to_telegram, created_at, updated_at
		FROM answers WHERE question_id = $1
	`, questionID).Scan(&a.QuestionID, &a.Summary, &a.Text, &sourcesJSON, &authorID,
		&a.PublishedToTelegram, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil means no answer yet
		}

		return nil, fmt.Errorf("get answer: %w", err)
	}

	a.AuthorID = fromInt8(authorID)

	if err := decodeSources(sourcesJSON, &a); err != nil {
		return nil, err
	}

	return &a, nil
}

func decodeSources(raw []byte, a *domain.Answer) error {
	if len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, &a.Sources); err != nil {
		return fmt.Errorf("decode answer sources: %w", err)
	}

	return nil
}
