package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	commits []int64
	closed  bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.commits = append(r.commits, msg.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.commits...)
}

func newTestConsumer(reader *fakeReader, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		handler: handler,
		backoff: time.Millisecond,
	}
}

func msgAt(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "eventflow.domain-events", Offset: offset, Value: []byte(value)}
}

func runUntilCommits(t *testing.T, c *Consumer, reader *fakeReader, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for len(reader.committed()) < want {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("timed out waiting for %d commits, got %v", want, reader.committed())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestRun_CommitsEachHandledMessage(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{msgAt(4, "m1"), msgAt(5, "m2")}}
	var handled [][]byte
	var mu sync.Mutex
	c := newTestConsumer(reader, func(_ context.Context, value []byte) error {
		mu.Lock()
		handled = append(handled, value)
		mu.Unlock()
		return nil
	})

	runUntilCommits(t, c, reader, 2)

	if got := reader.committed(); len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Fatalf("expected commits [4 5], got %v", got)
	}
	if len(handled) != 2 {
		t.Fatalf("expected 2 handled messages, got %d", len(handled))
	}
	if !reader.closed {
		t.Fatal("expected reader to be closed on shutdown")
	}
}

func TestRun_RetriesFailedMessageBeforeAdvancing(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{msgAt(4, "m1"), msgAt(5, "m2")}}

	var mu sync.Mutex
	var order []string
	failures := 2
	c := newTestConsumer(reader, func(_ context.Context, value []byte) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, string(value))
		if string(value) == "m1" && failures > 0 {
			failures--
			return errors.New("connection refused")
		}
		return nil
	})

	runUntilCommits(t, c, reader, 2)

	if got := reader.committed(); len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Fatalf("expected commits [4 5] with no offset skipped, got %v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 4 {
		t.Fatalf("expected 4 handler calls (m1 x3, m2 x1), got %v", order)
	}
	for i, want := range []string{"m1", "m1", "m1", "m2"} {
		if order[i] != want {
			t.Fatalf("call %d: expected %s, got %v", i, want, order)
		}
	}
}

func TestRun_DoesNotCommitPastFailingMessage(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{msgAt(4, "m1"), msgAt(5, "m2")}}
	c := newTestConsumer(reader, func(_ context.Context, value []byte) error {
		if string(value) == "m1" {
			return errors.New("storage unavailable")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// Give the loop time to spin on the failing message.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop on context cancellation")
	}

	if got := reader.committed(); len(got) != 0 {
		t.Fatalf("expected no commits while first message keeps failing, got %v", got)
	}
}
