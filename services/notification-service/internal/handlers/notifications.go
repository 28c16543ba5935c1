package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/eventflow-io/eventflow/services/notification-service/internal/model"
	"github.com/eventflow-io/eventflow/services/notification-service/internal/stream"
	"github.com/google/uuid"
)

// NotificationStore is the read/mutation slice of the notifications
// repository used by the HTTP surface.
type NotificationStore interface {
	ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]model.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, id, recipientID string) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

type NotificationHandler struct {
	store    NotificationStore
	registry *stream.Registry
	logger   *slog.Logger
}

func NewNotificationHandler(store NotificationStore, registry *stream.Registry, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// Register attaches all notification routes to the mux.
func (h *NotificationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/notifications", h.List)
	mux.HandleFunc("GET /api/notifications/unread-count", h.UnreadCount)
	mux.HandleFunc("PUT /api/notifications/{id}/read", h.MarkRead)
	mux.HandleFunc("PUT /api/notifications/read-all", h.MarkAllRead)
	mux.HandleFunc("GET /api/notifications/stream", h.Stream)
}

const userIDHeader = "X-User-Id"

// maxPage bounds the page number so page*size can never overflow into a
// negative OFFSET.
const maxPage = 1_000_000

func recipientFromHeader(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get(userIDHeader))
	if raw == "" {
		return "", fmt.Errorf("%s header required", userIDHeader)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid user id %q", raw)
	}
	return id.String(), nil
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	recipientID, err := recipientFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxPage {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return
		}
		page = n
	}
	size := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			http.Error(w, "invalid size", http.StatusBadRequest)
			return
		}
		size = n
	}

	items, err := h.store.ListByRecipient(r.Context(), recipientID, size, page*size)
	if err != nil {
		h.logger.Error("failed to list notifications", "err", err)
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []model.Notification{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"page":  page,
		"size":  size,
	})
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	recipientID, err := recipientFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	count, err := h.store.CountUnread(r.Context(), recipientID)
	if err != nil {
		h.logger.Error("failed to count unread notifications", "err", err)
		http.Error(w, "failed to count unread notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	recipientID, err := recipientFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}

	ok, err := h.store.MarkRead(r.Context(), id, recipientID)
	if err != nil {
		h.logger.Error("failed to mark notification read", "err", err)
		http.Error(w, "failed to mark notification read", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	recipientID, err := recipientFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.store.MarkAllRead(r.Context(), recipientID)
	if err != nil {
		h.logger.Error("failed to mark all notifications read", "err", err)
		http.Error(w, "failed to mark all notifications read", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// Stream is the long-lived SSE endpoint. The recipient id comes from the
// X-User-Id header, falling back to the userId query parameter. The handler
// emits one "connect" event, then one "notification" event per pushed
// record, until the client disconnects or the registry drops the entry.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.Header.Get(userIDHeader))
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("userId"))
	}
	if raw == "" {
		http.Error(w, "user id required in header or query parameter", http.StatusBadRequest)
		return
	}
	recipient, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := h.registry.Register(recipient.String())
	defer h.registry.Unregister(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, "event: connect\ndata: Connected to notification stream\n\n"); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case n := <-sub.Events():
			body, err := json.Marshal(n)
			if err != nil {
				h.logger.Error("failed to serialize notification", "err", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: notification\ndata: %s\n\n", body); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
