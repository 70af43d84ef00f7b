/**
 * @description
 * RabbitMQ producer for ledger events. The transfer coordinator publishes a
 * `transfer.completed` event for every committed transfer and a
 * `transaction.flagged` event when the fraud engine crosses the review
 * threshold. Publishing is best-effort: failures are logged by the caller
 * and never affect the transfer outcome.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: the RabbitMQ client library.
 */

package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Exchange is the topic exchange all ledger events are published to.
const Exchange = "ledger.events"

// Routing keys.
const (
	RouteTransferCompleted  = "transfer.completed"
	RouteTransactionFlagged = "transaction.flagged"
)

// TransferCompletedEvent is the payload for a committed transfer.
type TransferCompletedEvent struct {
	TransactionID   string    `json:"transaction_id"`
	SenderAccount   string    `json:"sender_account"`
	ReceiverAccount string    `json:"receiver_account"`
	Amount          string    `json:"amount"`
	Flagged         bool      `json:"flagged"`
	Timestamp       time.Time `json:"timestamp"`
}

// TransactionFlaggedEvent is the payload routed to the fraud review queue.
type TransactionFlaggedEvent struct {
	TransactionID string    `json:"transaction_id"`
	FraudScore    float64   `json:"fraud_score"`
	FraudReason   string    `json:"fraud_reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Close()
}

// Producer holds the RabbitMQ connection and channel for publishing.
type Producer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NoopPublisher is the fallback used when the broker is unavailable at
// startup; it logs skipped publishes and succeeds.
type NoopPublisher struct {
	Logger *zap.Logger
}

func (p *NoopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	if p.Logger != nil {
		p.Logger.Warn("event publish skipped, broker unavailable", zap.String("routing_key", routingKey))
	}
	return nil
}

func (p *NoopPublisher) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewProducer dials the broker with a bounded timeout and declares the
// ledger event exchange.
func NewProducer(amqpURL string) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Producer{conn: conn, channel: ch}, nil
}

// Publish marshals body as JSON and publishes it persistently.
func (p *Producer) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

// Close tears down the channel and connection.
func (p *Producer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
