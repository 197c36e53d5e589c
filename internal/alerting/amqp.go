package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQPNotifier publishes notifications as JSON to a topic exchange.
type AMQPNotifier struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     zerolog.Logger
}

// NewAMQPNotifier dials the broker and declares a durable topic exchange.
func NewAMQPNotifier(url, exchange, routingKey string, logger zerolog.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPNotifier{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger.With().Str("component", "alert_amqp").Logger(),
	}, nil
}

// Notify publishes the notification document.
func (n *AMQPNotifier) Notify(ctx context.Context, note Notification) error {
	body, err := encodeNotification(note)
	if err != nil {
		return err
	}

	err = n.channel.PublishWithContext(ctx,
		n.exchange,
		n.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    note.AnalysisID,
			Timestamp:    note.DetectedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish amqp notification: %w", err)
	}

	n.logger.Info().Str("analysis_id", note.AnalysisID).
		Str("exchange", n.exchange).
		Int("events", len(note.Events)).
		Msg("alert sent (amqp)")
	return nil
}

// Close releases the channel and connection.
func (n *AMQPNotifier) Close() error {
	if n == nil {
		return nil
	}
	if n.channel != nil {
		_ = n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

func encodeNotification(note Notification) ([]byte, error) {
	body, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("marshal amqp payload: %w", err)
	}
	return body, nil
}

var _ Notifier = (*AMQPNotifier)(nil)
