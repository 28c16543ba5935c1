package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/eventflow-io/eventflow/services/notification-service/internal/email"
	"github.com/eventflow-io/eventflow/services/notification-service/internal/model"
	"github.com/google/uuid"
)

// Store is the slice of the notifications repository the processor needs.
type Store interface {
	ExistsByDedupKey(ctx context.Context, dedupKey string) (bool, error)
	Insert(ctx context.Context, n *model.Notification) (bool, error)
}

// Pusher delivers a freshly persisted notification to the recipient's live
// stream, if any. Implementations must never block and never fail the caller.
type Pusher interface {
	Push(recipientID string, n model.Notification)
}

type Processor struct {
	store  Store
	pusher Pusher
	mailer email.Sender
	logger *slog.Logger
}

func NewProcessor(store Store, pusher Pusher, mailer email.Sender, logger *slog.Logger) *Processor {
	return &Processor{
		store:  store,
		pusher: pusher,
		mailer: mailer,
		logger: logger,
	}
}

// Process handles one raw bus message end to end: decode, dedup check,
// persist, best-effort push. A nil return acknowledges the message; only
// transient storage failures are returned so the bus redelivers. Malformed
// input, unknown event types, duplicates and side-effect failures are all
// terminal for this delivery.
func (p *Processor) Process(ctx context.Context, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		p.logger.Warn("invalid event envelope", "err", err)
		return nil
	}
	if env.MessageID == "" || env.EventType == "" {
		p.logger.Warn("event envelope missing messageId or eventType")
		return nil
	}

	// Invitation email is a side channel: no notification record, and a
	// send failure must never requeue the message.
	if env.EventType == EventTypeInvitationRequested {
		p.handleInvitation(env)
		return nil
	}

	records, known, err := Build(env)
	if !known {
		p.logger.Warn("unknown event type", "event_type", env.EventType, "message_id", env.MessageID)
		return nil
	}
	if err != nil {
		p.logger.Warn("malformed event payload", "event_type", env.EventType, "message_id", env.MessageID, "err", err)
		return nil
	}

	for i := range records {
		rec := &records[i]

		exists, err := p.store.ExistsByDedupKey(ctx, rec.DedupKey)
		if err != nil {
			return err
		}
		if exists {
			p.logger.Info("message already processed, skipping", "dedup_key", rec.DedupKey)
			continue
		}

		rec.ID = uuid.NewString()
		rec.CreatedAt = time.Now().UTC()

		inserted, err := p.store.Insert(ctx, rec)
		if err != nil {
			return err
		}
		if !inserted {
			// Another consumer instance raced us on the same key.
			p.logger.Info("duplicate notification detected", "dedup_key", rec.DedupKey)
			continue
		}

		if rec.RecipientID != nil {
			p.pusher.Push(*rec.RecipientID, *rec)
		}
	}

	p.logger.Info("event processed", "event_type", env.EventType, "message_id", env.MessageID, "records", len(records))
	return nil
}

func (p *Processor) handleInvitation(env Envelope) {
	var inv email.Invitation
	if err := json.Unmarshal(env.Payload, &inv); err != nil {
		p.logger.Warn("invalid invitation payload", "message_id", env.MessageID, "err", err)
		return
	}
	if inv.InviteeEmail == "" || inv.Token == "" {
		p.logger.Warn("invitation payload missing inviteeEmail or token", "message_id", env.MessageID)
		return
	}
	if err := p.mailer.SendInvitation(inv); err != nil {
		p.logger.Error("failed to send invitation email", "invitee", inv.InviteeEmail, "err", err)
		return
	}
	p.logger.Info("sent invitation email", "invitee", inv.InviteeEmail, "event_title", inv.EventTitle)
}
