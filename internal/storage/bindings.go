package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
)

const bindingColumns = `b.id, b.question_id, b.chat_id, b.thread_id, b.opening_message_id,
	b.closing_message_id, b.answer_message_id, b.messages_count, b.opened_at, b.close_at, b.closed_at`

func scanBinding(row pgx.Row) (*domain.DiscussionBinding, error) {
	var (
		b                        domain.DiscussionBinding
		opening, closing, answer pgtype.Int8
		closedAt                 pgtype.Timestamptz
	)

	if err := row.Scan(&b.ID, &b.QuestionID, &b.ChatID, &b.ThreadID, &opening, &closing, &answer,
		&b.MessagesCount, &b.OpenedAt, &b.CloseAt, &closedAt); err != nil {
		return nil, err
	}

	b.OpeningMessageID = fromInt8(opening)
	b.ClosingMessageID = fromInt8(closing)
	b.AnswerMessageID = fromInt8(answer)
	b.ClosedAt = fromTimestamptz(closedAt)

	return &b, nil
}

func (db *DB) getBinding(ctx context.Context, where string, args ...any) (*domain.DiscussionBinding, error) {
	b, err := scanBinding(db.Pool.QueryRow(ctx, `SELECT `+bindingColumns+` FROM discussion_bindings b WHERE `+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil means the question has no thread
		}

		return nil, fmt.Errorf("get discussion binding: %w", err)
	}

	return b, nil
}

// GetBinding returns the thread bound to a question, or nil.
func (db *DB) GetBinding(ctx context.Context, questionID int64) (*domain.DiscussionBinding, error) {
	return db.getBinding(ctx, `b.question_id = $1`, questionID)
}

// GetBindingByThread returns the binding of a forum thread, or nil when the thread is not tracked.
func (db *DB) GetBindingByThread(ctx context.Context, chatID, threadID int64) (*domain.DiscussionBinding, error) {
	return db.getBinding(ctx, `b.chat_id = $1 AND b.thread_id = $2`, chatID, threadID)
}

// GetBindingByMessage returns the binding owning an ingested message, or nil.
func (db *DB) GetBindingByMessage(ctx context.Context, chatID, messageID int64) (*domain.DiscussionBinding, error) {
	return db.getBinding(ctx, `(b.chat_id, b.thread_id) = (
		SELECT m.chat_id, m.thread_id FROM discussion_messages m WHERE m.chat_id = $1 AND m.message_id = $2)`,
		chatID, messageID)
}

// ListBindings returns every thread binding, oldest first.
func (db *DB) ListBindings(ctx context.Context) ([]domain.DiscussionBinding, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+bindingColumns+` FROM discussion_bindings b ORDER BY b.opened_at, b.id`)
	if err != nil {
		return nil, fmt.Errorf("list discussion bindings: %w", err)
	}
	defer rows.Close()

	var bindings []domain.DiscussionBinding

	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discussion binding: %w", err)
		}

		bindings = append(bindings, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discussion bindings: %w", err)
	}

	return bindings, nil
}

// SetStatus moves a question from one status to another when no side effects are involved.
func (db *DB) SetStatus(ctx context.Context, questionID int64, from, to domain.Status) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE questions SET status = $3, updated_at = now() WHERE id = $1 AND status = $2
	`, questionID, string(from), string(to))
	if err != nil {
		return fmt.Errorf("set question status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return db.missingOrConflict(ctx, db.Pool, questionID)
	}

	return nil
}

// MarkPublished records the thread binding and moves the question to POSTED atomically.
// posted_at is only set the first time.
func (db *DB) MarkPublished(ctx context.Context, from domain.Status, binding domain.DiscussionBinding) (*domain.DiscussionBinding, error) {
	err := db.inTx(ctx, "mark published", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE questions
			SET status = $3, posted_at = COALESCE(posted_at, $4), updated_at = now()
			WHERE id = $1 AND status = $2
		`, binding.QuestionID, string(from), string(domain.StatusPosted), binding.OpenedAt)
		if err != nil {
			return fmt.Errorf("mark question posted: %w", err)
		}

		if tag.RowsAffected() == 0 {
			return db.missingOrConflict(ctx, tx, binding.QuestionID)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO discussion_bindings (question_id, chat_id, thread_id, opening_message_id, opened_at, close_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, binding.QuestionID, binding.ChatID, binding.ThreadID, toInt8(binding.OpeningMessageID),
			binding.OpenedAt, binding.CloseAt).Scan(&binding.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("question %d: %w", binding.QuestionID, coreerrors.ErrAlreadyPublished)
			}

			return fmt.Errorf("insert discussion binding: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &binding, nil
}

// MarkClosed moves a POSTED question to CLOSED and stamps the binding's closed_at once.
func (db *DB) MarkClosed(ctx context.Context, questionID int64, closedAt time.Time, noticeMessageID int64) error {
	return db.inTx(ctx, "mark closed", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE questions
			SET status = $2, closed_at = COALESCE(closed_at, $3), updated_at = now()
			WHERE id = $1 AND status = $4
		`, questionID, string(domain.StatusClosed), closedAt, string(domain.StatusPosted))
		if err != nil {
			return fmt.Errorf("mark question closed: %w", err)
		}

		if tag.RowsAffected() == 0 {
			return db.missingOrConflict(ctx, tx, questionID)
		}

		tag, err = tx.Exec(ctx, `
			UPDATE discussion_bindings
			SET closed_at = $2, closing_message_id = COALESCE($3, closing_message_id)
			WHERE question_id = $1 AND closed_at IS NULL
		`, questionID, closedAt, toInt8(noticeMessageID))
		if err != nil {
			return fmt.Errorf("close discussion binding: %w", err)
		}

		if tag.RowsAffected() == 0 {
			return fmt.Errorf("question %d: %w", questionID, coreerrors.ErrNoOpenDiscussion)
		}

		return nil
	})
}

// MarkArchived moves a CLOSED question to ARCHIVED and flags its answer as published.
func (db *DB) MarkArchived(ctx context.Context, questionID int64, archivedAt time.Time, answerMessageID int64) error {
	return db.inTx(ctx, "mark archived", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE questions
			SET status = $2, archived_at = COALESCE(archived_at, $3), updated_at = now()
			WHERE id = $1 AND status = $4
		`, questionID, string(domain.StatusArchived), archivedAt, string(domain.StatusClosed))
		if err != nil {
			return fmt.Errorf("mark question archived: %w", err)
		}

		if tag.RowsAffected() == 0 {
			return db.missingOrConflict(ctx, tx, questionID)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE answers SET published_to_telegram = TRUE, updated_at = now() WHERE question_id = $1
		`, questionID); err != nil {
			return fmt.Errorf("mark answer published: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE discussion_bindings SET answer_message_id = COALESCE($2, answer_message_id) WHERE question_id = $1
		`, questionID, toInt8(answerMessageID)); err != nil {
			return fmt.Errorf("record answer message: %w", err)
		}

		return nil
	})
}
