package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"facemask-api/internal/model"
)

// EventPublisher sends prediction events to the event queue.
type EventPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewEventPublisher(conn *amqp.Connection, queueName string) *EventPublisher {
	return &EventPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, event model.PredictionEvent) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Transient,
			MessageId:    event.RequestID,
			Timestamp:    event.CreatedAt,
		},
	); err != nil {
		return fmt.Errorf("publish prediction event failed: %w", err)
	}
	return nil
}

func EncodeEvent(event model.PredictionEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal prediction event failed: %w", err)
	}
	return payload, nil
}

func DecodeEvent(body []byte) (model.PredictionEvent, error) {
	var event model.PredictionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return model.PredictionEvent{}, fmt.Errorf("unmarshal prediction event failed: %w", err)
	}
	return event, nil
}
