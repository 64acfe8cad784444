package messages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/societynet/societychat/internal/common/errors"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const messageColumns = `id, room, author, author_id, role, body, attachment, display_time, created_at, expires_at, hidden_by, reactions`

// notExpired guards every read path: an expired message must never be
// returned even if the reaper has not swept it yet.
const notExpired = `(expires_at IS NULL OR expires_at > NOW())`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	msg := &Message{}
	var attachment, reactions []byte

	err := row.Scan(
		&msg.ID, &msg.Room, &msg.Author, &msg.AuthorID, &msg.Role,
		&msg.Body, &attachment, &msg.DisplayTime,
		&msg.CreatedAt, &msg.ExpiresAt, &msg.HiddenBy, &reactions,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("message not found")
	}
	if err != nil {
		return nil, err
	}

	if len(attachment) > 0 {
		msg.Attachment = &Attachment{}
		if err := json.Unmarshal(attachment, msg.Attachment); err != nil {
			return nil, fmt.Errorf("decode attachment: %w", err)
		}
	}

	msg.Reactions = make(map[string]Reaction)
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
			return nil, fmt.Errorf("decode reactions: %w", err)
		}
	}

	return msg, nil
}

func (r *Repository) Insert(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Reactions == nil {
		msg.Reactions = make(map[string]Reaction)
	}

	var attachment []byte
	if msg.Attachment != nil {
		var err error
		attachment, err = json.Marshal(msg.Attachment)
		if err != nil {
			return fmt.Errorf("encode attachment: %w", err)
		}
	}

	query := `
		INSERT INTO messages (id, room, author, author_id, role, body, attachment, display_time, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	return r.pool.QueryRow(ctx, query,
		msg.ID, msg.Room, msg.Author, msg.AuthorID, msg.Role,
		msg.Body, attachment, msg.DisplayTime, msg.ExpiresAt,
	).Scan(&msg.CreatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1 AND ` + notExpired

	return scanMessage(r.pool.QueryRow(ctx, query, id))
}

// ListVisible returns the viewer's history: messages the viewer has not
// hidden and that have not expired, oldest first.
func (r *Repository) ListVisible(ctx context.Context, room string, viewer uuid.UUID) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room = $1
		  AND NOT (hidden_by @> ARRAY[$2]::uuid[])
		  AND ` + notExpired + `
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, room, viewer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	return msgs, rows.Err()
}

// ToggleReaction applies the single-reaction-per-user rule under a row lock:
// same emoji clears it, a different emoji replaces it, none adds it. Two
// concurrent toggles on the same message serialize on the lock instead of
// overwriting each other. Returns the updated message.
func (r *Repository) ToggleReaction(ctx context.Context, id, userID uuid.UUID, userName, emoji string) (*Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1 AND ` + notExpired + `
		FOR UPDATE
	`

	msg, err := scanMessage(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	key := userID.String()
	if existing, ok := msg.Reactions[key]; ok && existing.Emoji == emoji {
		delete(msg.Reactions, key)
	} else {
		msg.Reactions[key] = Reaction{UserName: userName, Emoji: emoji}
	}

	reactions, err := json.Marshal(msg.Reactions)
	if err != nil {
		return nil, fmt.Errorf("encode reactions: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE messages SET reactions = $2 WHERE id = $1`,
		id, reactions,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

// HideFor records a per-viewer soft delete. The guarded update keeps the
// append idempotent under concurrent calls.
func (r *Repository) HideFor(ctx context.Context, id, viewer uuid.UUID) error {
	query := `
		UPDATE messages
		SET hidden_by = array_append(hidden_by, $2)
		WHERE id = $1 AND NOT (hidden_by @> ARRAY[$2]::uuid[])
	`

	_, err := r.pool.Exec(ctx, query, id, viewer)
	return err
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("message not found")
	}
	return nil
}

// ReapExpired physically removes messages past their deadline. Reads already
// filter them out; this keeps the table from accumulating dead rows.
func (r *Repository) ReapExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM messages WHERE expires_at IS NOT NULL AND expires_at <= NOW()`,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
