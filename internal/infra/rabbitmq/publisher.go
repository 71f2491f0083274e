// Package rabbitmq announces finished practice sessions on a durable queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"quizprep-service/internal/domain"
)

// ResultMessage is the body of every published message.
type ResultMessage struct {
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId"`
	Subject     string    `json:"subject"`
	Reason      string    `json:"reason"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Answered    int       `json:"answered"`
	Presented   int       `json:"presented"`
	Missed      []string  `json:"missedIds"`
	Elapsed     float64   `json:"elapsedSeconds"`
	CompletedAt time.Time `json:"completedAt"`
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	conn  *amqp.Connection
	queue string
	now   func() time.Time

	mu sync.Mutex
	ch publishChannel
}

// Dial connects to url and declares queue as durable.
func Dial(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return &Publisher{conn: conn, queue: queue, ch: ch, now: time.Now}, nil
}

func (p *Publisher) PublishResult(ctx context.Context, scope domain.Scope, result domain.SessionResult) error {
	body, err := json.Marshal(ResultMessage{
		SessionID:   result.SessionID,
		UserID:      scope.UserID,
		Subject:     scope.Subject,
		Reason:      string(result.Reason),
		Score:       result.Score,
		Total:       result.Total,
		Answered:    result.Answered,
		Presented:   result.Presented,
		Missed:      questionIDs(result.Missed),
		Elapsed:     result.Elapsed.Seconds(),
		CompletedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    p.now(),
		},
	)
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func questionIDs(qs []domain.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}
