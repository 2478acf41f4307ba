package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
)

// ToggleVote flips the (question, voter) vote and recomputes votes_count from the
// vote rows in the same transaction. Concurrent toggles of one question serialize on
// the question row lock; an insert that still loses the uniqueness race is reported
// as "already voted".
func (db *DB) ToggleVote(ctx context.Context, questionID, voterID int64) (domain.VoteResult, error) {
	res, err := db.toggleVoteOnce(ctx, questionID, voterID)
	if err == nil {
		return res, nil
	}

	if !isUniqueViolation(err) {
		return domain.VoteResult{}, err
	}

	return alreadyVoted(ctx, toggleVoteRetries, func(ctx context.Context) (int, error) {
		return db.countVotes(ctx, questionID)
	})
}

// alreadyVoted reports the vote that won the insert race. Only the count is
// retried: toggling again would delete the winner's row.
func alreadyVoted(ctx context.Context, attempts int, count func(ctx context.Context) (int, error)) (domain.VoteResult, error) {
	var lastErr error

	for range attempts {
		n, err := count(ctx)
		if err == nil {
			return domain.VoteResult{Voted: true, VotesCount: n}, nil
		}

		lastErr = err
	}

	return domain.VoteResult{}, fmt.Errorf("toggle vote: %w", lastErr)
}

func (db *DB) toggleVoteOnce(ctx context.Context, questionID, voterID int64) (domain.VoteResult, error) {
	var res domain.VoteResult

	err := db.inTx(ctx, "toggle vote", func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, `SELECT id FROM questions WHERE id = $1 FOR UPDATE`, questionID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("question %d: %w", questionID, coreerrors.ErrQuestionNotFound)
			}

			return fmt.Errorf("lock question: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM votes WHERE question_id = $1 AND voter_id = $2`, questionID, voterID)
		if err != nil {
			return fmt.Errorf("delete vote: %w", err)
		}

		if tag.RowsAffected() == 0 {
			if _, err := tx.Exec(ctx, `INSERT INTO votes (question_id, voter_id) VALUES ($1, $2)`, questionID, voterID); err != nil {
				return fmt.Errorf("insert vote: %w", err)
			}

			res.Voted = true
		}

		if err := tx.QueryRow(ctx, `
			UPDATE questions
			SET votes_count = (SELECT COUNT(*) FROM votes WHERE question_id = $1)
			WHERE id = $1
			RETURNING votes_count
		`, questionID).Scan(&res.VotesCount); err != nil {
			return fmt.Errorf("recount votes: %w", err)
		}

		return nil
	})

	return res, err
}

func (db *DB) countVotes(ctx context.Context, questionID int64) (int, error) {
	var count int
	if err := db.Pool.QueryRow(ctx, `SELECT votes_count FROM questions WHERE id = $1`, questionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}

	return count, nil
}

// VotedQuestionIDs returns which of the given questions the voter has voted for.
func (db *DB) VotedQuestionIDs(ctx context.Context, voterID int64, questionIDs []int64) (map[int64]bool, error) {
	voted := make(map[int64]bool)
	if voterID == 0 || len(questionIDs) == 0 {
		return voted, nil
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT question_id FROM votes WHERE voter_id = $1 AND question_id = ANY($2::bigint[])
	`, voterID, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("get voted questions: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect voted questions: %w", err)
	}

	for _, id := range ids {
		voted[id] = true
	}

	return voted, nil
}

// RecountVotes repairs votes_count for every question whose counter drifted from its vote rows.
func (db *DB) RecountVotes(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE questions q
		SET votes_count = c.cnt
		FROM (
			SELECT q2.id, COUNT(v.voter_id)::int AS cnt
			FROM questions q2
			LEFT JOIN votes v ON v.question_id = q2.id
			GROUP BY q2.id
		) c
		WHERE q.id = c.id AND q.votes_count <> c.cnt
	`)
	if err != nil {
		return 0, fmt.Errorf("recount votes: %w", err)
	}

	return tag.RowsAffected(), nil
}
