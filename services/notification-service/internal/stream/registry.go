package stream

import (
	"sync"

	"github.com/eventflow-io/eventflow/services/notification-service/internal/model"
)

// Registry tracks at most one live subscription per recipient. Registering
// again replaces the entry (last connection wins); the superseded
// subscription keeps draining until its own request ends.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*Subscription)}
}

// Subscription is one recipient's live stream. Events carries pushed
// notifications; Done closes when the registry has given up on the stream.
type Subscription struct {
	recipientID string
	events      chan model.Notification
	done        chan struct{}
	closeOnce   sync.Once
}

func (s *Subscription) Events() <-chan model.Notification { return s.events }

func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (r *Registry) Register(recipientID string) *Subscription {
	sub := &Subscription{
		recipientID: recipientID,
		events:      make(chan model.Notification, 16),
		done:        make(chan struct{}),
	}
	r.mu.Lock()
	r.subs[recipientID] = sub
	r.mu.Unlock()
	return sub
}

// Push hands the record to the recipient's current stream, if any. The send
// never blocks: a full buffer means the client stopped reading, so the entry
// is evicted and the record dropped from the live path. The durable store
// remains the source of truth either way.
func (r *Registry) Push(recipientID string, n model.Notification) {
	r.mu.RLock()
	sub := r.subs[recipientID]
	r.mu.RUnlock()
	if sub == nil {
		return
	}

	select {
	case sub.events <- n:
	case <-sub.done:
	default:
		r.Unregister(sub)
	}
}

// Unregister removes the subscription if it is still the registry's current
// entry for its recipient, so a stale handler exiting cannot evict a newer
// connection. Idempotent.
func (r *Registry) Unregister(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	if cur := r.subs[sub.recipientID]; cur == sub {
		delete(r.subs, sub.recipientID)
	}
	r.mu.Unlock()
	sub.close()
}
