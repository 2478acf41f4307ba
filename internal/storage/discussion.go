package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/question-forum/internal/core/domain"
)

// UpsertMessage stores a thread message keyed by (chat_id, message_id). The owning
// binding's messages_count is incremented only when the row is new, so replays are safe.
// A non-zero EditedAt is kept on insert, for messages backfilled after an edit.
func (db *DB) UpsertMessage(ctx context.Context, msg domain.DiscussionMessage) (bool, error) {
	var inserted bool

	err := db.inTx(ctx, "upsert discussion message", func(tx pgx.Tx) error {
		// xmax = 0 only for rows created by this statement.
		if err := tx.QueryRow(ctx, `
			INSERT INTO discussion_messages
				(chat_id, message_id, thread_id, author_id, author_name, text, reply_to_message_id, created_at, edited_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (chat_id, message_id) DO UPDATE SET
				text = CASE WHEN discussion_messages.edited_at IS NULL
					THEN EXCLUDED.text ELSE discussion_messages.text END,
				author_name = COALESCE(EXCLUDED.author_name, discussion_messages.author_name)
			RETURNING (xmax = 0)
		`, msg.ChatID, msg.MessageID, msg.ThreadID, toInt8(msg.AuthorID), toText(msg.AuthorName),
			SanitizeUTF8(msg.Text), toInt8(msg.ReplyToMessageID), msg.CreatedAt, toTimestamptz(msg.EditedAt)).Scan(&inserted); err != nil {
			return fmt.Errorf("upsert discussion message: %w", err)
		}

		if !inserted {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE discussion_bindings SET messages_count = messages_count + 1
			WHERE chat_id = $1 AND thread_id = $2
		`, msg.ChatID, msg.ThreadID); err != nil {
			return fmt.Errorf("increment messages count: %w", err)
		}

		return nil
	})

	return inserted, err
}

// UpdateMessageText applies an edit to an already ingested message.
func (db *DB) UpdateMessageText(ctx context.Context, chatID, messageID int64, text string, editedAt time.Time) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE discussion_messages SET text = $3, edited_at = $4
		WHERE chat_id = $1 AND message_id = $2
	`, chatID, messageID, SanitizeUTF8(text), toTimestamptz(editedAt))
	if err != nil {
		return false, fmt.Errorf("update discussion message: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// AddReactions adds delta to the stored reaction count, floored at zero.
func (db *DB) AddReactions(ctx context.Context, chatID, messageID int64, delta int) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE discussion_messages SET reaction_count = GREATEST(0, reaction_count + $3)
		WHERE chat_id = $1 AND message_id = $2
	`, chatID, messageID, delta)
	if err != nil {
		return false, fmt.Errorf("add reactions: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// SetReactions overwrites the stored reaction count, floored at zero.
func (db *DB) SetReactions(ctx context.Context, chatID, messageID int64, total int) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE discussion_messages SET reaction_count = GREATEST(0, $3::int)
		WHERE chat_id = $1 AND message_id = $2
	`, chatID, messageID, total)
	if err != nil {
		return false, fmt.Errorf("set reactions: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListThreadMessages returns a thread's messages in chronological order.
func (db *DB) ListThreadMessages(ctx context.Context, chatID, threadID int64) ([]domain.DiscussionMessage, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT chat_id, message_id, thread_id, author_id, author_name, text,
			reply_to_message_id, reaction_count, created_at, edited_at
		FROM discussion_messages
		WHERE chat_id = $1 AND thread_id = $2
		ORDER BY created_at, message_id
	`, chatID, threadID)
	if err != nil {
		return nil, fmt.Errorf("list discussion messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.DiscussionMessage

	for rows.Next() {
		var (
			m                 domain.DiscussionMessage
			authorID, replyTo pgtype.Int8
			authorName        pgtype.Text
			editedAt          pgtype.Timestamptz
		)

		if err := rows.Scan(&m.ChatID, &m.MessageID, &m.ThreadID, &authorID, &authorName, &m.Text,
			&replyTo, &m.ReactionCount, &m.CreatedAt, &editedAt); err != nil {
			return nil, fmt.Errorf("scan discussion message: %w", err)
		}

		m.AuthorID = fromInt8(authorID)
		m.AuthorName = fromText(authorName)
		m.ReplyToMessageID = fromInt8(replyTo)
		m.EditedAt = fromTimestamptz(editedAt)
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discussion messages: %w", err)
	}

	return messages, nil
}
