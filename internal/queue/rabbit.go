package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/agent-jobs/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitBroker carries job messages over a RabbitMQ priority queue
type RabbitBroker struct {
	client *rabbitmq.Client
}

// NewRabbitBroker wraps an initialized RabbitMQ client
func NewRabbitBroker(client *rabbitmq.Client) *RabbitBroker {
	return &RabbitBroker{client: client}
}

// Publish sends msg with the job priority mapped to the AMQP priority
func (b *RabbitBroker) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	return b.client.Publish(ctx, rabbitmq.Message{
		Body:        body,
		ContentType: "application/json",
		Priority:    msg.Priority.Level(),
		MessageID:   msg.JobID,
	})
}

// Consume streams deliveries until ctx is canceled or the channel closes
func (b *RabbitBroker) Consume(ctx context.Context, consumer string, prefetch int) (<-chan Delivery, error) {
	msgs, err := b.client.Consume(consumer, prefetch)
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- rabbitDelivery{d: d}:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the underlying client
func (b *RabbitBroker) Close() error {
	return b.client.Close()
}

type rabbitDelivery struct {
	d amqp.Delivery
}

func (r rabbitDelivery) Body() []byte { return r.d.Body }

func (r rabbitDelivery) Ack() error { return r.d.Ack(false) }

func (r rabbitDelivery) Nack(requeue bool) error { return r.d.Nack(false, requeue) }
