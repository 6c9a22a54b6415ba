package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"makab-backend/internal/models"
)

const messageColumns = `id, seq, user_id, content, is_user, rating, timestamp`

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// CreateExchange stores a user turn and the assistant reply atomically so
// history never holds half an exchange.
func (r *MessageRepo) CreateExchange(ctx context.Context, userMsg, assistantMsg *models.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin exchange transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	for i, m := range []*models.Message{userMsg, assistantMsg} {
		m.ID = uuid.New()
		m.Timestamp = now.Add(time.Duration(i) * time.Millisecond)
		err := tx.QueryRow(ctx,
			`INSERT INTO chat_messages (id, user_id, content, is_user, rating, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING seq`,
			m.ID, m.UserID, m.Content, m.IsUser, m.Rating, m.Timestamp,
		).Scan(&m.Seq)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	m := &models.Message{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE id = $1`, id,
	).Scan(&m.ID, &m.Seq, &m.UserID, &m.Content, &m.IsUser, &m.Rating, &m.Timestamp)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListByUser returns up to limit messages, newest first or oldest first.
func (r *MessageRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int, newestFirst bool) ([]*models.Message, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE user_id = $1 ORDER BY seq `+order+` LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// ListRecent returns the last limit messages of a user in conversation order.
func (r *MessageRepo) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Message, error) {
	return r.ListBefore(ctx, userID, 0, limit)
}

// ListBefore returns, in conversation order, the last limit messages whose
// sequence is below beforeSeq. beforeSeq <= 0 means no upper bound.
func (r *MessageRepo) ListBefore(ctx context.Context, userID uuid.UUID, beforeSeq int64, limit int) ([]*models.Message, error) {
	query := `SELECT * FROM (
			SELECT ` + messageColumns + ` FROM chat_messages
			WHERE user_id = $1 AND ($2::bigint <= 0 OR seq < $2::bigint)
			ORDER BY seq DESC LIMIT $3
		) recent ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query, userID, beforeSeq, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// LatestUserBefore returns the newest user-authored message below beforeSeq,
// or pgx.ErrNoRows when there is none.
func (r *MessageRepo) LatestUserBefore(ctx context.Context, userID uuid.UUID, beforeSeq int64) (*models.Message, error) {
	m := &models.Message{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM chat_messages
		WHERE user_id = $1 AND is_user AND seq < $2
		ORDER BY seq DESC LIMIT 1`,
		userID, beforeSeq,
	).Scan(&m.ID, &m.Seq, &m.UserID, &m.Content, &m.IsUser, &m.Rating, &m.Timestamp)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateContent replaces a message body and clears its rating.
func (r *MessageRepo) UpdateContent(ctx context.Context, id uuid.UUID, content string) error {
	_, err := r.pool.Exec(ctx, "UPDATE chat_messages SET content = $1, rating = NULL WHERE id = $2", content, id)
	return err
}

func (r *MessageRepo) SetRating(ctx context.Context, id uuid.UUID, rating *string) error {
	_, err := r.pool.Exec(ctx, "UPDATE chat_messages SET rating = $1 WHERE id = $2", rating, id)
	return err
}

func (r *MessageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM chat_messages WHERE id = $1", id)
	return err
}

func (r *MessageRepo) DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM chat_messages WHERE user_id = $1", userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanMessages(rows pgx.Rows) ([]*models.Message, error) {
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.Seq, &m.UserID, &m.Content, &m.IsUser, &m.Rating, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
