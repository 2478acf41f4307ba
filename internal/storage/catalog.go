package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/question-forum/internal/core/domain"
	"github.com/lueurxax/question-forum/internal/core/ports"
)

// ListQuestions returns questions ranked by votes_count desc, then newest first,
// with modules, answers and thread bindings attached.
func (db *DB) ListQuestions(ctx context.Context, filter ports.QuestionFilter) ([]ports.QuestionListItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+questionColumns+`
		FROM questions q
		WHERE ($1::bigint = 0 OR EXISTS (
				SELECT 1 FROM question_modules qm WHERE qm.question_id = q.id AND qm.module_id = $1))
			AND ($2::text = '' OR q.status = $2)
			AND ($3::timestamptz IS NULL OR q.created_at >= $3)
		ORDER BY q.votes_count DESC, q.created_at DESC, q.id DESC
		LIMIT $4
	`, filter.ModuleID, string(filter.Status), toTimestamptz(filter.Since), pgtype.Int8{
		Int64: int64(filter.Limit), Valid: filter.Limit > 0,
	})
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var (
		items []ports.QuestionListItem
		ids   []int64
	)

	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}

		items = append(items, ports.QuestionListItem{Question: *q})
		ids = append(ids, q.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	if len(items) == 0 {
		return items, nil
	}

	if err := db.attachListDetails(ctx, items, ids); err != nil {
		return nil, err
	}

	return items, nil
}

func (db *DB) attachListDetails(ctx context.Context, items []ports.QuestionListItem, ids []int64) error {
	modules, err := db.modulesFor(ctx, ids)
	if err != nil {
		return err
	}

	answers, err := db.answersFor(ctx, ids)
	if err != nil {
		return err
	}

	bindings, err := db.bindingsFor(ctx, ids)
	if err != nil {
		return err
	}

	for i := range items {
		id := items[i].Question.ID
		items[i].Question.Modules = modules[id]
		items[i].Answer = answers[id]
		items[i].Binding = bindings[id]
	}

	return nil
}

func (db *DB) answersFor(ctx context.Context, ids []int64) (map[int64]*domain.Answer, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT question_id, summary, answer, sources, published_to_telegram, updated_at
		FROM answers WHERE question_id = ANY($1::bigint[])
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]*domain.Answer)

	for rows.Next() {
		var (
			a           domain.Answer
			sourcesJSON []byte
			updatedAt   time.Time
		)

		if err := rows.Scan(&a.QuestionID, &a.Summary, &a.Text, &sourcesJSON, &a.PublishedToTelegram, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}

		a.UpdatedAt = updatedAt

		if err := decodeSources(sourcesJSON, &a); err != nil {
			return nil, err
		}

		result[a.QuestionID] = &a
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}

	return result, nil
}

func (db *DB) bindingsFor(ctx context.Context, ids []int64) (map[int64]*domain.DiscussionBinding, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+bindingColumns+` FROM discussion_bindings b WHERE b.question_id = ANY($1::bigint[])
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list discussion bindings: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]*domain.DiscussionBinding)

	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discussion binding: %w", err)
		}

		result[b.QuestionID] = b
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discussion bindings: %w", err)
	}

	return result, nil
}
