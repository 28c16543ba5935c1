package model

import "time"

// Notification kinds. The builder only ever emits values from this set.
const (
	KindEventCreated          = "EVENT_CREATED"
	KindEventUpdated          = "EVENT_UPDATED"
	KindEventDeleted          = "EVENT_DELETED"
	KindRegistrationConfirmed = "REGISTRATION_CONFIRMED"
	KindUserRegistered        = "USER_REGISTERED"
	KindRegistrationCancelled = "REGISTRATION_CANCELLED"
	KindUserUnregistered      = "USER_UNREGISTERED"
)

// Notification is one durable, recipient-scoped notification record.
// RecipientID is nil for broadcast notifications visible to every viewer.
// DedupKey is unique across the table; re-delivery of the same upstream
// message maps onto the same key and is rejected by the store.
type Notification struct {
	ID             string    `json:"id"`
	RecipientID    *string   `json:"recipientId"`
	RelatedEventID *string   `json:"relatedEventId,omitempty"`
	Kind           string    `json:"kind"`
	Message        string    `json:"message"`
	Read           bool      `json:"read"`
	DedupKey       string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}
