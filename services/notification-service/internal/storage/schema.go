package storage

import (
	"context"

	"github.com/eventflow-io/eventflow/libs/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id               UUID PRIMARY KEY,
	recipient_id     UUID,
	related_event_id UUID,
	kind             VARCHAR(50) NOT NULL,
	message          TEXT NOT NULL,
	read             BOOLEAN NOT NULL DEFAULT FALSE,
	dedup_key        TEXT NOT NULL UNIQUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient_created
	ON notifications (recipient_id, created_at DESC);
`

// EnsureSchema creates the notifications table on startup. Concurrent
// instances race harmlessly on IF NOT EXISTS.
func EnsureSchema(ctx context.Context, pool *db.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
