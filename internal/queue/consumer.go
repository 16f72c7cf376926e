package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/segment-reservation/internal/logger"
)

// AuditConsumer reads reservation events from RabbitMQ and appends one
// human-readable line per event to an audit file.
type AuditConsumer struct {
	URL   string
	Queue string
	Path  string // audit file, e.g. logs/events.log
	Log   *logger.Logger
}

// Run keeps a consumer attached to the queue, reconnecting with backoff,
// until ctx is cancelled.
func (c *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("NOTIFY", fmt.Sprintf("audit consumer: dial failed: %v; retrying in %s", err, backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("NOTIFY", fmt.Sprintf("audit consumer: consume loop ended: %v; reconnecting", err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn("NOTIFY", fmt.Sprintf("audit consumer: set QoS failed: %v", err))
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(d.Body); err != nil {
				c.Log.Error("NOTIFY", fmt.Sprintf("audit consumer: handle message failed: %v", err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *AuditConsumer) handle(body []byte) error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit dir: %w", err)
	}
	f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()
	return WriteAuditLine(f, body)
}

// WriteAuditLine decodes one event and writes it to w as a single line.
func WriteAuditLine(w io.Writer, body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	_, err := io.WriteString(w, FormatAudit(ev)+"\n")
	return err
}

// FormatAudit renders ev as "[time] type | key=value | ..." with zero
// fields omitted.
func FormatAudit(ev Event) string {
	parts := []string{fmt.Sprintf("[%s] %s", ev.OccurredAt.Format(time.RFC3339), ev.Type)}
	add := func(k string, v any) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	if ev.TripID != 0 {
		add("trip_id", ev.TripID)
	}
	if ev.SeatNumber != "" {
		add("seat", ev.SeatNumber)
	}
	if ev.FromOrdinal != 0 || ev.ToOrdinal != 0 {
		add("segment", fmt.Sprintf("[%d,%d)", ev.FromOrdinal, ev.ToOrdinal))
	}
	if ev.HoldID != 0 {
		add("hold_id", ev.HoldID)
	}
	if ev.TicketID != 0 {
		add("ticket_id", ev.TicketID)
	}
	if ev.RequestID != 0 {
		add("request_id", ev.RequestID)
	}
	if ev.ParcelCode != "" {
		add("parcel", ev.ParcelCode)
	}
	if ev.Status != "" {
		add("status", ev.Status)
	}
	if ev.AmountCents != 0 {
		add("amount", fmt.Sprintf("%d cents", ev.AmountCents))
	}
	if ev.ActorID != 0 {
		add("actor_id", ev.ActorID)
	}
	if ev.Detail != "" {
		add("detail", fmt.Sprintf("%q", ev.Detail))
	}
	return strings.Join(parts, " | ")
}
