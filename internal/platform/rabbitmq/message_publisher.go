package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"aichat-backend/internal/model"
)

// MessagePublisher enqueues finalized assistant messages for asynchronous
// persistence. One generation turn may produce several messages (one per
// tool step), so the wire format is a JSON array and each publish carries
// the whole turn in a single envelope.
type MessagePublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewMessagePublisher(conn *amqp.Connection, queueName string) *MessagePublisher {
	return &MessagePublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *MessagePublisher) Publish(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		p.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	payload, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshal message batch failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			Headers: amqp.Table{
				"x-chat-id":       msgs[0].ChatID,
				"x-message-count": int32(len(msgs)),
			},
		},
	); err != nil {
		return fmt.Errorf("publish message batch failed: %w", err)
	}
	return nil
}
