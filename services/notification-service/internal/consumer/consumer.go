package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/eventflow-io/eventflow/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one message body. Returning nil acknowledges the
// message; an error keeps the consumer on the same message.
type Handler func(ctx context.Context, value []byte) error

// messageReader is the slice of kafka.Reader the consume loop needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	logger  *slog.Logger
	handler Handler
	backoff time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, cfg Config, handler Handler) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		handler: handler,
		backoff: 1 * time.Second,
	}
}

// Run consumes messages until ctx is cancelled. The group offset is a
// single per-partition watermark, so the loop never advances past a failed
// message: committing a later offset would mark the failed one consumed and
// it would never be redelivered. A handler error keeps the loop on the same
// message, retrying with a backoff, until it succeeds or the context ends.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			time.Sleep(c.backoff)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractEventMeta(msg)

		if !c.process(ctxSpan, span, msg, meta) {
			span.End()
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("kafka commit error", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
		}
		span.End()
	}
}

// process runs the handler until it returns nil. It returns false when the
// context ended before the message could be handled.
func (c *Consumer) process(ctx context.Context, span trace.Span, msg kafka.Message, meta kafkax.EventMeta) bool {
	for {
		err := c.handler(ctx, msg.Value)
		if err == nil {
			return true
		}

		c.logger.Error("handler error, will retry", "err", err, "event_id", meta.EventID, "offset", msg.Offset)
		span.RecordError(err)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.backoff):
		}
	}
}
