package storage

import (
	"context"

	"github.com/eventflow-io/eventflow/libs/db"
	"github.com/eventflow-io/eventflow/services/notification-service/internal/model"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores the notification and reports whether a row was actually
// written. A unique violation on dedup_key means another delivery (or
// another consumer instance) got there first; that is not an error.
func (r *Repository) Insert(ctx context.Context, n *model.Notification) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, related_event_id, kind, message, read, dedup_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID, n.RecipientID, n.RelatedEventID, n.Kind, n.Message, n.Read, n.DedupKey, n.CreatedAt)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

func (r *Repository) ExistsByDedupKey(ctx context.Context, dedupKey string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM notifications WHERE dedup_key = $1)
	`, dedupKey).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// ListByRecipient returns the recipient's notifications plus broadcast rows
// (null recipient), newest first.
func (r *Repository) ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, recipient_id, related_event_id, kind, message, read, dedup_key, created_at
		FROM notifications
		WHERE recipient_id = $1 OR recipient_id IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.RelatedEventID, &n.Kind, &n.Message, &n.Read, &n.DedupKey, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND read = FALSE
	`, recipientID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead flips the read flag on one of the recipient's own notifications.
// It returns false when the id does not exist or belongs to someone else.
// Marking an already-read notification succeeds as a no-op.
func (r *Repository) MarkRead(ctx context.Context, id, recipientID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND recipient_id = $2
	`, id, recipientID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAllRead flips every unread notification owned by the recipient and
// returns how many rows changed.
func (r *Repository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE recipient_id = $1 AND read = FALSE
	`, recipientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
