package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/question-forum/internal/core/domain"
	"github.com/lueurxax/question-forum/internal/core/ports"
)

// ListDueForClose returns POSTED questions whose open thread passed its close_at deadline.
func (db *DB) ListDueForClose(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT q.id
		FROM questions q
		JOIN discussion_bindings b ON b.question_id = q.id
		WHERE q.status = $1 AND b.closed_at IS NULL AND b.close_at <= $2
		ORDER BY b.close_at, q.id
	`, string(domain.StatusPosted), now)
	if err != nil {
		return nil, fmt.Errorf("list due discussions: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect due discussions: %w", err)
	}

	return ids, nil
}

// NextPublishCandidate picks the question the auto-publish sweep should post next.
// SCHEDULED questions go first; ties are broken by the policy and finally by id.
func (db *DB) NextPublishCandidate(ctx context.Context, policy ports.PublishPolicy) (*domain.Question, error) {
	order := `q.votes_count DESC, q.created_at ASC, q.id ASC`
	if policy == ports.PublishOldest {
		order = `q.created_at ASC, q.id ASC`
	}

	q, err := scanQuestion(db.Pool.QueryRow(ctx, `
		SELECT `+questionColumns+`
		FROM questions q
		WHERE q.status IN ($1, $2)
			AND NOT EXISTS (SELECT 1 FROM discussion_bindings b WHERE b.question_id = q.id)
		ORDER BY (q.status = $2) DESC, `+order+`
		LIMIT 1
	`, string(domain.StatusVoting), string(domain.StatusScheduled)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil means nothing to publish
		}

		return nil, fmt.Errorf("next publish candidate: %w", err)
	}

	return q, nil
}
