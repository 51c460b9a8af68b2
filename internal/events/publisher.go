package events

import (
	"context"
	"encoding/json"
	"time"

	"deskbridge/internal/models"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher emits delivery receipts for downstream consumers (billing,
// analytics). Publishing is best effort: a broker outage never blocks
// message routing.
type Publisher interface {
	PublishReceipt(ctx context.Context, receipt *DeliveryReceipt) error
	Close() error
}

// DeliveryReceipt is the event body published after each routing operation.
type DeliveryReceipt struct {
	ReceiptID string    `json:"receipt_id"`
	RouteID   string    `json:"route_id"`
	EventID   string    `json:"event_id"`
	TenantID  string    `json:"tenant_id"`
	Origin    string    `json:"origin"`
	Delivered bool      `json:"delivered"`
	Replayed  bool      `json:"replayed"`
	Blocks    int       `json:"blocks"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReceipt builds a receipt from a settled route result.
func NewReceipt(result *models.RouteResult, origin models.Origin) *DeliveryReceipt {
	return &DeliveryReceipt{
		ReceiptID: uuid.NewString(),
		RouteID:   result.RouteID,
		EventID:   result.EventID,
		TenantID:  result.TenantID,
		Origin:    string(origin),
		Delivered: result.Delivered(),
		Replayed:  result.Replayed,
		Blocks:    len(result.Blocks),
		Timestamp: time.Now(),
	}
}

// AMQPPublisher publishes receipts to a durable topic exchange. Routing key
// is "receipt.<tenant_id>" so consumers can bind per tenant.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   *logrus.Logger
}

func NewAMQPPublisher(url, exchange string, logger *logrus.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQPPublisher{conn: conn, exchange: exchange, logger: logger}, nil
}

var _ Publisher = (*AMQPPublisher)(nil)

func (p *AMQPPublisher) PublishReceipt(ctx context.Context, receipt *DeliveryReceipt) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(receipt)
	if err != nil {
		return err
	}

	key := "receipt." + receipt.TenantID
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     receipt.ReceiptID,
			CorrelationId: receipt.RouteID,
			Timestamp:     receipt.Timestamp,
			Body:          body,
		},
	)
	if err == nil {
		p.logger.WithFields(logrus.Fields{
			"key":      key,
			"exchange": p.exchange,
		}).Debug("Published delivery receipt")
	}
	return err
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// NopPublisher is used when event publishing is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishReceipt(ctx context.Context, receipt *DeliveryReceipt) error { return nil }
func (NopPublisher) Close() error                                                       { return nil }
