package notify

import (
	"encoding/json"
	"fmt"

	"github.com/eventflow-io/eventflow/services/notification-service/internal/model"
	"github.com/google/uuid"
)

// Event types published on the bus by the event service.
const (
	EventTypeEventCreated        = "EVENT_CREATED"
	EventTypeEventUpdated        = "EVENT_UPDATED"
	EventTypeEventDeleted        = "EVENT_DELETED"
	EventTypeUserRegistered      = "USER_REGISTERED"
	EventTypeUserUnregistered    = "USER_UNREGISTERED"
	EventTypeInvitationRequested = "INVITATION_REQUESTED"
)

// Envelope is the outer wrapper carried by every bus message.
type Envelope struct {
	MessageID  string          `json:"messageId"`
	EventType  string          `json:"eventType"`
	OccurredAt string          `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

type eventPayload struct {
	EventID     string   `json:"eventId"`
	Title       string   `json:"title"`
	EventTitle  string   `json:"eventTitle"`
	OrganizerID string   `json:"organizerId"`
	UserID      string   `json:"userId"`
	Recipients  []string `json:"recipients"`
}

type builderFunc func(messageID string, p eventPayload) ([]model.Notification, error)

// builders maps each known event type to its pure mapping rule.
// Builders fill recipient, kind, message, dedup key and related event id;
// identity and timestamps are stamped at persistence time.
var builders = map[string]builderFunc{
	EventTypeEventCreated:     buildEventCreated,
	EventTypeEventUpdated:     fanoutBuilder(model.KindEventUpdated, "Event %s has been updated"),
	EventTypeEventDeleted:     fanoutBuilder(model.KindEventDeleted, "Event %s has been deleted"),
	EventTypeUserRegistered:   pairedBuilder(model.KindRegistrationConfirmed, model.KindUserRegistered, "You have successfully registered to %s", "Someone registered for your event %s"),
	EventTypeUserUnregistered: pairedBuilder(model.KindRegistrationCancelled, model.KindUserUnregistered, "You have been unregistered from %s", "Someone cancelled their registration for your event %s"),
}

// Build maps an envelope to zero or more candidate notifications.
// known is false for event types this service does not handle; an error
// means the payload is malformed for its type and the message must be
// dropped without redelivery.
func Build(env Envelope) (records []model.Notification, known bool, err error) {
	fn, ok := builders[env.EventType]
	if !ok {
		return nil, false, nil
	}

	var p eventPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, true, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}

	records, err = fn(env.MessageID, p)
	if err != nil {
		return nil, true, err
	}
	return records, true, nil
}

func buildEventCreated(messageID string, p eventPayload) ([]model.Notification, error) {
	eventID, err := requireID("eventId", p.EventID)
	if err != nil {
		return nil, err
	}
	organizerID, err := requireID("organizerId", p.OrganizerID)
	if err != nil {
		return nil, err
	}
	return []model.Notification{{
		RecipientID:    &organizerID,
		RelatedEventID: &eventID,
		Kind:           model.KindEventCreated,
		Message:        fmt.Sprintf("Your event %s has been created successfully!", titleRef(p)),
		DedupKey:       messageID,
	}}, nil
}

// fanoutBuilder produces one record per recipient in the payload's
// recipients list plus the organizer (deduplicated), each keyed
// "{messageId}-{recipientId}". With no recipients at all, the result is a
// single broadcast record keyed by the bare message id.
func fanoutBuilder(kind, template string) builderFunc {
	return func(messageID string, p eventPayload) ([]model.Notification, error) {
		eventID, err := requireID("eventId", p.EventID)
		if err != nil {
			return nil, err
		}

		recipients := make([]string, 0, len(p.Recipients)+1)
		seen := make(map[string]struct{}, len(p.Recipients)+1)
		add := func(raw string) error {
			if raw == "" {
				return nil
			}
			id, err := requireID("recipient", raw)
			if err != nil {
				return err
			}
			if _, dup := seen[id]; dup {
				return nil
			}
			seen[id] = struct{}{}
			recipients = append(recipients, id)
			return nil
		}
		for _, raw := range p.Recipients {
			if err := add(raw); err != nil {
				return nil, err
			}
		}
		if err := add(p.OrganizerID); err != nil {
			return nil, err
		}

		message := fmt.Sprintf(template, titleRef(p))
		if len(recipients) == 0 {
			// Broadcast: no owning recipient, visible to all viewers.
			return []model.Notification{{
				RelatedEventID: &eventID,
				Kind:           kind,
				Message:        message,
				DedupKey:       messageID,
			}}, nil
		}

		records := make([]model.Notification, 0, len(recipients))
		for _, rid := range recipients {
			rid := rid
			records = append(records, model.Notification{
				RecipientID:    &rid,
				RelatedEventID: &eventID,
				Kind:           kind,
				Message:        message,
				DedupKey:       messageID + "-" + rid,
			})
		}
		return records, nil
	}
}

// pairedBuilder produces the registrant's copy keyed "{messageId}-user" and,
// when the payload names an organizer, the organizer's copy keyed
// "{messageId}-organizer".
func pairedBuilder(userKind, organizerKind, userTemplate, organizerTemplate string) builderFunc {
	return func(messageID string, p eventPayload) ([]model.Notification, error) {
		eventID, err := requireID("eventId", p.EventID)
		if err != nil {
			return nil, err
		}
		userID, err := requireID("userId", p.UserID)
		if err != nil {
			return nil, err
		}

		title := titleRef(p)
		records := []model.Notification{{
			RecipientID:    &userID,
			RelatedEventID: &eventID,
			Kind:           userKind,
			Message:        fmt.Sprintf(userTemplate, title),
			DedupKey:       messageID + "-user",
		}}

		if p.OrganizerID != "" {
			organizerID, err := requireID("organizerId", p.OrganizerID)
			if err != nil {
				return nil, err
			}
			records = append(records, model.Notification{
				RecipientID:    &organizerID,
				RelatedEventID: &eventID,
				Kind:           organizerKind,
				Message:        fmt.Sprintf(organizerTemplate, title),
				DedupKey:       messageID + "-organizer",
			})
		}
		return records, nil
	}
}

func requireID(field, raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("missing %s", field)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s %q", field, raw)
	}
	return id.String(), nil
}

// titleRef renders the event title for message templates, quoted when
// present and a generic placeholder when the payload omits it.
func titleRef(p eventPayload) string {
	title := p.Title
	if title == "" {
		title = p.EventTitle
	}
	if title == "" {
		return "an event"
	}
	return "'" + title + "'"
}
