package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/question-forum/internal/core/domain"
	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
	"github.com/lueurxax/question-forum/internal/core/ports"
)

const questionColumns = `q.id, q.title, q.body, q.status, q.author_id, q.votes_count,
	q.created_at, q.posted_at, q.closed_at, q.archived_at`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func scanQuestion(row pgx.Row) (*domain.Question, error) {
	var (
		q                              domain.Question
		status                         string
		authorID                       pgtype.Int8
		postedAt, closedAt, archivedAt pgtype.Timestamptz
	)

	if err := row.Scan(&q.ID, &q.Title, &q.Body, &status, &authorID, &q.VotesCount,
		&q.CreatedAt, &postedAt, &closedAt, &archivedAt); err != nil {
		return nil, err
	}

	q.Status = domain.Status(status)
	q.AuthorID = fromInt8(authorID)
	q.PostedAt = fromTimestamptz(postedAt)
	q.ClosedAt = fromTimestamptz(closedAt)
	q.ArchivedAt = fromTimestamptz(archivedAt)

	return &q, nil
}

// CreateQuestion inserts a question, its module associations and the optional
// answer in one transaction.
func (db *DB) CreateQuestion(ctx context.Context, draft ports.QuestionDraft) (*domain.Question, error) {
	status := draft.Status
	if status == "" {
		status = domain.StatusVoting
	}

	var id int64

	err := db.inTx(ctx, "create question", func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO questions (title, body, status, author_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, SanitizeUTF8(draft.Title), SanitizeUTF8(draft.Body), string(status), toInt8(draft.AuthorID)).Scan(&id); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}

		if err := replaceModules(ctx, tx, id, draft.Modules); err != nil {
			return err
		}

		return writeDraftAnswer(ctx, tx, id, draft.Answer)
	})
	if err != nil {
		return nil, err
	}

	return db.GetQuestion(ctx, id)
}

// UpdateQuestion rewrites the authorable fields, replaces module associations and
// upserts the answer when the draft carries one.
// The write only applies while the stored status equals expected.
func (db *DB) UpdateQuestion(ctx context.Context, id int64, expected domain.Status, draft ports.QuestionDraft) (*domain.Question, error) {
	err := db.inTx(ctx, "update question", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE questions
			SET title = $3, body = $4, status = $5, updated_at = now()
			WHERE id = $1 AND status = $2
		`, id, string(expected), SanitizeUTF8(draft.Title), SanitizeUTF8(draft.Body), string(draft.Status))
		if err != nil {
			return fmt.Errorf("update question: %w", err)
		}

		if tag.RowsAffected() == 0 {
			return db.missingOrConflict(ctx, tx, id)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM question_modules WHERE question_id = $1`, id); err != nil {
			return fmt.Errorf("clear question modules: %w", err)
		}

		if err := replaceModules(ctx, tx, id, draft.Modules); err != nil {
			return err
		}

		return writeDraftAnswer(ctx, tx, id, draft.Answer)
	})
	if err != nil {
		return nil, err
	}

	return db.GetQuestion(ctx, id)
}

// missingOrConflict tells apart a vanished question from a status race after a conditional write.
func (db *DB) missingOrConflict(ctx context.Context, q querier, id int64) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM questions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check question: %w", err)
	}

	if !exists {
		return fmt.Errorf("question %d: %w", id, coreerrors.ErrQuestionNotFound)
	}

	return fmt.Errorf("question %d: %w", id, coreerrors.ErrStatusConflict)
}

func writeDraftAnswer(ctx context.Context, tx pgx.Tx, questionID int64, answer *domain.Answer) error {
	if answer == nil {
		return nil
	}

	a := *answer
	a.QuestionID = questionID

	return upsertAnswer(ctx, tx, a)
}

func replaceModules(ctx context.Context, tx pgx.Tx, questionID int64, refs []domain.ModuleRef) error {
	if len(refs) == 0 {
		return nil
	}

	ids := make([]int64, len(refs))
	primary := make([]bool, len(refs))

	for i, ref := range refs {
		ids[i] = ref.ModuleID
		primary[i] = ref.IsPrimary
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO question_modules (question_id, module_id, is_primary, position)
		SELECT $1, t.module_id, t.is_primary, t.ord - 1
		FROM unnest($2::bigint[], $3::bool[]) WITH ORDINALITY AS t(module_id, is_primary, ord)
		ON CONFLICT (question_id, module_id) DO NOTHING
	`, questionID, ids, primary)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("attach modules: %w", coreerrors.ErrUnknownModule)
		}

		return fmt.Errorf("attach modules: %w", err)
	}

	return nil
}

// GetQuestion loads a question with its modules, primary first.
func (db *DB) GetQuestion(ctx context.Context, id int64) (*domain.Question, error) {
	q, err := scanQuestion(db.Pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions q WHERE q.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("question %d: %w", id, coreerrors.ErrQuestionNotFound)
		}

		return nil, fmt.Errorf("get question: %w", err)
	}

	modules, err := db.modulesFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}

	q.Modules = modules[id]

	return q, nil
}

// modulesFor loads module associations for many questions at once.
func (db *DB) modulesFor(ctx context.Context, questionIDs []int64) (map[int64][]domain.Module, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT qm.question_id, m.id, m.title, m.short_title, m.forum_topic_icon, qm.is_primary
		FROM question_modules qm
		JOIN modules m ON m.id = qm.module_id
		WHERE qm.question_id = ANY($1::bigint[])
		ORDER BY qm.question_id, qm.is_primary DESC, qm.position, m.id
	`, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("get question modules: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]domain.Module, len(questionIDs))

	for rows.Next() {
		var (
			questionID       int64
			m                domain.Module
			shortTitle, icon pgtype.Text
		)

		if err := rows.Scan(&questionID, &m.ID, &m.Title, &shortTitle, &icon, &m.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan question module: %w", err)
		}

		m.ShortTitle = fromText(shortTitle)
		m.Icon = fromText(icon)
		result[questionID] = append(result[questionID], m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question modules: %w", err)
	}

	return result, nil
}

// ListQuestionIDs returns every question id in ascending order.
func (db *DB) ListQuestionIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list question ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect question ids: %w", err)
	}

	return ids, nil
}

// MissingModules returns the ids that do not reference an existing module.
func (db *DB) MissingModules(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT t.id
		FROM unnest($1::bigint[]) AS t(id)
		WHERE NOT EXISTS (SELECT 1 FROM modules m WHERE m.id = t.id)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("check modules: %w", err)
	}

	missing, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect missing modules: %w", err)
	}

	return missing, nil
}
