package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
)

// GetEmbedding returns the stored embedding of a question, or nil.
func (db *DB) GetEmbedding(ctx context.Context, questionID int64) (*domain.Embedding, error) {
	var (
		e   domain.Embedding
		vec pgvector.Vector
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT question_id, embedding, source_text, updated_at
		FROM question_embeddings WHERE question_id = $1
	`, questionID).Scan(&e.QuestionID, &vec, &e.SourceText, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil means never embedded
		}

		return nil, fmt.Errorf("get question embedding: %w", err)
	}

	e.Vector = vec.Slice()

	return &e, nil
}

// SaveEmbedding stores the vector together with the exact text it was computed from.
func (db *DB) SaveEmbedding(ctx context.Context, emb domain.Embedding) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO question_embeddings (question_id, embedding, source_text, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (question_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			source_text = EXCLUDED.source_text,
			updated_at = now()
	`, emb.QuestionID, pgvector.NewVector(emb.Vector), SanitizeUTF8(emb.SourceText))
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("question %d: %w", emb.QuestionID, coreerrors.ErrQuestionNotFound)
		}

		return fmt.Errorf("save question embedding: %w", err)
	}

	return nil
}

// NearestQuestions returns the ids closest to the question by cosine distance, excluding itself.
func (db *DB) NearestQuestions(ctx context.Context, questionID int64, limit int) ([]int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT e.question_id
		FROM question_embeddings e,
			(SELECT embedding FROM question_embeddings WHERE question_id = $1) self
		WHERE e.question_id <> $1
		ORDER BY e.embedding <=> self.embedding
		LIMIT $2
	`, questionID, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest questions: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect nearest questions: %w", err)
	}

	return ids, nil
}

// QuestionsSharingModules returns other questions tagged with at least one of the question's modules.
func (db *DB) QuestionsSharingModules(ctx context.Context, questionID int64, limit int) ([]int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT other.question_id
		FROM question_modules own
		JOIN question_modules other
			ON other.module_id = own.module_id AND other.question_id <> own.question_id
		WHERE own.question_id = $1
		ORDER BY other.question_id
		LIMIT $2
	`, questionID, limit)
	if err != nil {
		return nil, fmt.Errorf("questions sharing modules: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect questions sharing modules: %w", err)
	}

	return ids, nil
}
