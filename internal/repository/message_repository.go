package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// MessageRepositoryInterface is the message store. It is the only writer of
// messages and events.
type MessageRepositoryInterface interface {
	CreateMessage(ctx context.Context, campaignID, userID int) (*model.Message, error)
	MarkSent(ctx context.Context, messageID int) error
	MarkFailed(ctx context.Context, messageID int) error
	RequeueFailed(ctx context.Context, campaignID int) ([]int, error)
	ListWithRecipients(ctx context.Context, campaignID, limit int) ([]model.MessageWithRecipient, error)
	Outcomes(ctx context.Context, campaignID int) ([]model.MessageOutcome, error)
}

type MessageRepository struct {
	DB *sql.DB
}

// CreateMessage inserts a QUEUED message for the pair. When the pair (or its
// idempotency key) already has a message the insert is rolled back and
// appErrors.ErrAlreadyExists is returned. Uniqueness is left to the table
// constraints, so concurrent callers race safely and exactly one wins.
func (r *MessageRepository) CreateMessage(ctx context.Context, campaignID, userID int) (*model.Message, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create message: %w", err)
	}

	msg := model.Message{
		CampaignID:     campaignID,
		UserID:         userID,
		Status:         model.MessageStatusQueued,
		IdempotencyKey: model.IdempotencyKey(campaignID, userID),
	}
	query := `
        INSERT INTO messages (campaign_id, user_id, status, idempotency_key, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING id, created_at
    `
	err = tx.QueryRowContext(ctx, query, campaignID, userID, msg.Status, msg.IdempotencyKey).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return nil, appErrors.ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert message for campaign %d user %d: %w", campaignID, userID, err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.ErrAlreadyExists
		}
		return nil, fmt.Errorf("commit message: %w", err)
	}
	return &msg, nil
}

// MarkSent moves a message to SENT and records a SENT event. It does nothing
// when the message does not exist or is already SENT, so duplicate or stale
// worker deliveries are harmless.
func (r *MessageRepository) MarkSent(ctx context.Context, messageID int) error {
	return r.transition(ctx, messageID,
		`UPDATE messages SET status = $1 WHERE id = $2 AND status <> $1`,
		model.MessageStatusSent, model.EventTypeSent)
}

// MarkFailed moves a QUEUED message to FAILED and records a FAILED event.
// Unknown ids and messages in any other status are left alone.
func (r *MessageRepository) MarkFailed(ctx context.Context, messageID int) error {
	return r.transition(ctx, messageID,
		`UPDATE messages SET status = $1 WHERE id = $2 AND status = 'QUEUED'`,
		model.MessageStatusFailed, model.EventTypeFailed)
}

func (r *MessageRepository) transition(ctx context.Context, messageID int, update, status, eventType string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", eventType, err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, update, status, messageID)
	if err != nil {
		return fmt.Errorf("update message %d to %s: %w", messageID, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO events (message_id, type, ts) VALUES ($1, $2, NOW())`, messageID, eventType)
	if err != nil {
		return fmt.Errorf("insert %s event for message %d: %w", eventType, messageID, err)
	}

	return tx.Commit()
}

// RequeueFailed puts every FAILED message of a campaign back to QUEUED and
// returns their ids so the caller can enqueue them again.
func (r *MessageRepository) RequeueFailed(ctx context.Context, campaignID int) ([]int, error) {
	query := `UPDATE messages SET status = 'QUEUED' WHERE campaign_id = $1 AND status = 'FAILED' RETURNING id`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("requeue failed messages of campaign %d: %w", campaignID, err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListWithRecipients returns a campaign's messages joined with their users,
// most recent first.
func (r *MessageRepository) ListWithRecipients(ctx context.Context, campaignID, limit int) ([]model.MessageWithRecipient, error) {
	query := `
        SELECT m.id, m.campaign_id, m.user_id, m.status, m.idempotency_key, m.created_at,
               u.id, u.name, u.email, u.tags
        FROM messages m
        JOIN users u ON u.id = m.user_id
        WHERE m.campaign_id = $1
        ORDER BY m.id DESC
        LIMIT $2
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages of campaign %d: %w", campaignID, err)
	}
	defer rows.Close()

	out := []model.MessageWithRecipient{}
	for rows.Next() {
		var m model.MessageWithRecipient
		if err := rows.Scan(
			&m.ID, &m.CampaignID, &m.UserID, &m.Status, &m.IdempotencyKey, &m.CreatedAt,
			&m.User.ID, &m.User.Name, &m.User.Email, pq.Array(&m.User.Tags),
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Outcomes returns, in one query, every message of the campaign with its
// status and its send latency in milliseconds (first SENT event minus
// creation time). Latency is NULL for messages without a SENT event.
func (r *MessageRepository) Outcomes(ctx context.Context, campaignID int) ([]model.MessageOutcome, error) {
	query := `
        SELECT m.id, m.status,
               (EXTRACT(EPOCH FROM (MIN(e.ts) - m.created_at)) * 1000)::float8 AS latency_ms
        FROM messages m
        LEFT JOIN events e ON e.message_id = m.id AND e.type = 'SENT'
        WHERE m.campaign_id = $1
        GROUP BY m.id, m.status, m.created_at
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("message outcomes of campaign %d: %w", campaignID, err)
	}
	defer rows.Close()

	out := []model.MessageOutcome{}
	for rows.Next() {
		var (
			o       model.MessageOutcome
			latency sql.NullFloat64
		)
		if err := rows.Scan(&o.MessageID, &o.Status, &latency); err != nil {
			return nil, err
		}
		if latency.Valid {
			v := latency.Float64
			o.LatencyMs = &v
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
