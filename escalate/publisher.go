package escalate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// Handoff is the payload pushed to the project pipeline for one hot
// lead. Fire and forget: the scheduler's responsibility ends at the
// publish. ID doubles as the AMQP message id so consumers can dedupe
// redeliveries.
type Handoff struct {
	ID          string    `json:"id"`
	LeadID      string    `json:"lead_id"`
	CampaignID  string    `json:"campaign_id"`
	Name        string    `json:"name"`
	Company     string    `json:"company"`
	Email       string    `json:"email"`
	Status      string    `json:"status"`
	EscalatedAt time.Time `json:"escalated_at"`
}

// Publisher hands hot leads off to the external project pipeline.
type Publisher interface {
	PublishHandoff(ctx context.Context, h Handoff) error
}

// AMQPPublisher publishes handoffs to a durable RabbitMQ queue.
type AMQPPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	idGen func() string
}

// Dial connects to the broker and declares the handoff queue.
func Dial(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("escalate: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("escalate: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("escalate: declare queue: %w", err)
	}
	return &AMQPPublisher{
		conn:  conn,
		ch:    ch,
		queue: queue,
		idGen: func() string { return uuid.NewString() },
	}, nil
}

func (p *AMQPPublisher) PublishHandoff(ctx context.Context, h Handoff) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("escalate: publish handoff: %w", err)
	}
	if h.ID == "" {
		h.ID = p.idGen()
	}
	body, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("escalate: encode handoff: %w", err)
	}
	err = p.ch.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   h.ID,
		Body:        body,
		Timestamp:   h.EscalatedAt,
	})
	if err != nil {
		return fmt.Errorf("escalate: publish handoff: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return fmt.Errorf("escalate: close channel: %w", err)
	}
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("escalate: close connection: %w", err)
	}
	return nil
}
