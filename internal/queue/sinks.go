package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"

	"github.com/iliyamo/segment-reservation/internal/config"
	"github.com/iliyamo/segment-reservation/internal/logger"
)

// NewSink builds the sink selected by cfg.Driver.
func NewSink(cfg config.NotifyConfig, log *logger.Logger) (Sink, error) {
	switch cfg.Driver {
	case config.NotifyLog, "":
		return LogSink{Log: log}, nil
	case config.NotifyRabbitMQ:
		return NewRabbitSink(cfg.RabbitURL, cfg.RabbitQueue), nil
	case config.NotifyKafka:
		return NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unknown NOTIFY_DRIVER %q", cfg.Driver)
	}
}

// LogSink writes every event to the application log.
type LogSink struct {
	Log *logger.Logger
}

func (s LogSink) Send(_ context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.Log.Info("NOTIFY", string(body))
	return nil
}

func (LogSink) Close() error { return nil }

// RabbitSink publishes persistent JSON messages to a durable queue on the
// default exchange. The connection is opened on first use and reopened
// after the broker drops it.
type RabbitSink struct {
	url   string
	queue string
	conn  *amqp.Connection
	ch    *amqp.Channel
}

func NewRabbitSink(url, queue string) *RabbitSink {
	return &RabbitSink{url: url, queue: queue}
}

func (s *RabbitSink) channel() (*amqp.Channel, error) {
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	s.reset()
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	s.conn, s.ch = conn, ch
	return ch, nil
}

func (s *RabbitSink) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ch, err := s.channel()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", s.queue, false, false, pub); err != nil {
		s.reset()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (s *RabbitSink) reset() {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.ch, s.conn = nil, nil
}

func (s *RabbitSink) Close() error {
	s.reset()
	return nil
}

// KafkaSink writes events keyed by Event.Key, so all events of one trip
// land on the same partition.
type KafkaSink struct {
	Writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{Writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

func (s *KafkaSink) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Key()),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
}

func (s *KafkaSink) Close() error { return s.Writer.Close() }
