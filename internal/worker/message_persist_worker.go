package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"aichat-backend/internal/model"
	"aichat-backend/internal/repository"
)

// MessagePersistWorker drains the persist queue and writes assistant
// messages to MySQL. Each delivery carries one generation turn as a JSON
// array of messages; the batch is persisted message by message so a
// redelivered envelope only fails on rows that are genuinely broken.
type MessagePersistWorker struct {
	conn      *amqp.Connection
	repo      *repository.MessageRepository
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(conn *amqp.Connection, repo *repository.MessageRepository, queueName string) *MessagePersistWorker {
	return &MessagePersistWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := ch.Qos(8, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handleDelivery(d)
			}
		}
	}()

	return nil
}

func (w *MessagePersistWorker) handleDelivery(d amqp.Delivery) {
	var batch []model.Message
	if err := json.Unmarshal(d.Body, &batch); err != nil {
		log.Printf("worker decode message batch failed: %v", err)
		_ = d.Nack(false, false)
		return
	}

	failed := 0
	for i := range batch {
		if err := w.repo.Create(&batch[i]); err != nil {
			log.Printf("worker persist message %s for chat %s failed: %v", batch[i].ID, batch[i].ChatID, err)
			failed++
		}
	}
	if failed == len(batch) && len(batch) > 0 {
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
