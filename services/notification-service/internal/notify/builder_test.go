package notify

import (
	"encoding/json"
	"testing"

	"github.com/eventflow-io/eventflow/services/notification-service/internal/model"
)

const (
	testEventID     = "6b4ee1f0-1f9a-4bb4-9d4e-8b9a6e1c2d3f"
	testOrganizerID = "0f6a2c9e-5b1d-4f3a-8c2e-7d9b4a6e1f20"
	testUserID      = "9c8b7a6d-5e4f-4a3b-9c2d-1e0f9a8b7c6d"
	testRecipientA  = "11111111-1111-4111-8111-111111111111"
	testRecipientB  = "22222222-2222-4222-8222-222222222222"
)

func envelope(t *testing.T, eventType string, payload map[string]any) Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Envelope{
		MessageID:  "msg-1",
		EventType:  eventType,
		OccurredAt: "2026-09-01T10:00:00Z",
		Payload:    raw,
	}
}

func TestBuild_EventCreated(t *testing.T) {
	records, known, err := Build(envelope(t, EventTypeEventCreated, map[string]any{
		"eventId":     testEventID,
		"title":       "Go Meetup",
		"organizerId": testOrganizerID,
	}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !known {
		t.Fatal("expected event type to be known")
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.RecipientID == nil || *rec.RecipientID != testOrganizerID {
		t.Fatalf("expected organizer recipient, got %v", rec.RecipientID)
	}
	if rec.Kind != model.KindEventCreated {
		t.Fatalf("unexpected kind %q", rec.Kind)
	}
	if rec.DedupKey != "msg-1" {
		t.Fatalf("unexpected dedup key %q", rec.DedupKey)
	}
	if rec.Message != "Your event 'Go Meetup' has been created successfully!" {
		t.Fatalf("unexpected message %q", rec.Message)
	}
	if rec.RelatedEventID == nil || *rec.RelatedEventID != testEventID {
		t.Fatalf("expected related event id, got %v", rec.RelatedEventID)
	}
}

func TestBuild_EventUpdatedFanout(t *testing.T) {
	records, _, err := Build(envelope(t, EventTypeEventUpdated, map[string]any{
		"eventId":     testEventID,
		"title":       "Go Meetup",
		"organizerId": testOrganizerID,
		"recipients":  []string{testRecipientA, testRecipientB},
	}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	keys := make(map[string]string, len(records))
	for _, rec := range records {
		if rec.RecipientID == nil {
			t.Fatal("fanout record missing recipient")
		}
		if rec.Message != "Event 'Go Meetup' has been updated" {
			t.Fatalf("unexpected message %q", rec.Message)
		}
		keys[*rec.RecipientID] = rec.DedupKey
	}
	for _, rid := range []string{testRecipientA, testRecipientB, testOrganizerID} {
		want := "msg-1-" + rid
		if keys[rid] != want {
			t.Fatalf("recipient %s: expected key %q, got %q", rid, want, keys[rid])
		}
	}
}

func TestBuild_FanoutDeduplicatesOrganizer(t *testing.T) {
	records, _, err := Build(envelope(t, EventTypeEventDeleted, map[string]any{
		"eventId":     testEventID,
		"organizerId": testOrganizerID,
		"recipients":  []string{testRecipientA, testOrganizerID},
	}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestBuild_EventUpdatedBroadcast(t *testing.T) {
	records, _, err := Build(envelope(t, EventTypeEventUpdated, map[string]any{
		"eventId": testEventID,
		"title":   "Go Meetup",
	}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].RecipientID != nil {
		t.Fatalf("expected broadcast (nil recipient), got %v", *records[0].RecipientID)
	}
	if records[0].DedupKey != "msg-1" {
		t.Fatalf("unexpected dedup key %q", records[0].DedupKey)
	}
}

func TestBuild_UserRegisteredPair(t *testing.T) {
	records, _, err := Build(envelope(t, EventTypeUserRegistered, map[string]any{
		"eventId":     testEventID,
		"userId":      testUserID,
		"organizerId": testOrganizerID,
		"eventTitle":  "Conf",
	}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	user, organizer := records[0], records[1]
	if user.DedupKey != "msg-1-user" || organizer.DedupKey != "msg-1-organizer" {
		t.Fatalf("unexpected keys %q %q", user.DedupKey, organizer.DedupKey)
	}
	if *user.RecipientID != testUserID || *organizer.RecipientID != testOrganizerID {
		t.Fatal("recipients assigned to wrong roles")
	}
	if user.Message != "You have successfully registered to 'Conf'" {
		t.Fatalf("unexpected user message %q", user.Message)
	}
	if organizer.Message != "Someone registered for your event 'Conf'" {
		t.Fatalf("unexpected organizer message %q", organizer.Message)
	}
	if user.Kind != model.KindRegistrationConfirmed || organizer.Kind != model.KindUserRegistered {
		t.Fatalf("unexpected kinds %q %q", user.Kind, organizer.Kind)
	}
}

func TestBuild_UserUnregisteredWithoutOrganizer(t *testing.T) {
	records, _, err := Build(envelope(t, EventTypeUserUnregistered, map[string]any{
		"eventId": testEventID,
		"userId":  testUserID,
	}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Kind != model.KindRegistrationCancelled {
		t.Fatalf("unexpected kind %q", records[0].Kind)
	}
}

func TestBuild_MissingTitleUsesPlaceholder(t *testing.T) {
	records, _, err := Build(envelope(t, EventTypeUserRegistered, map[string]any{
		"eventId": testEventID,
		"userId":  testUserID,
	}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if records[0].Message != "You have successfully registered to an event" {
		t.Fatalf("unexpected message %q", records[0].Message)
	}
}

func TestBuild_UnknownEventType(t *testing.T) {
	records, known, err := Build(envelope(t, "SOMETHING_UNKNOWN", map[string]any{}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if known {
		t.Fatal("expected unknown event type")
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestBuild_MissingEventID(t *testing.T) {
	_, known, err := Build(envelope(t, EventTypeEventCreated, map[string]any{
		"organizerId": testOrganizerID,
	}))
	if !known {
		t.Fatal("expected known event type")
	}
	if err == nil {
		t.Fatal("expected error for missing eventId")
	}
}

func TestBuild_InvalidRecipientID(t *testing.T) {
	_, _, err := Build(envelope(t, EventTypeEventUpdated, map[string]any{
		"eventId":    testEventID,
		"recipients": []string{"not-a-uuid"},
	}))
	if err == nil {
		t.Fatal("expected error for invalid recipient id")
	}
}
