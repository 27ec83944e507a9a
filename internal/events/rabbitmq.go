package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	eventsExchangeName = "clip.events"
	reconnectBackoff   = time.Second
	maxBackoff         = 30 * time.Second
	connectTimeout     = 15 * time.Second
)

// RabbitMQPublisher publishes batch events to a topic exchange, reconnecting
// with backoff when the broker connection drops.
type RabbitMQPublisher struct {
	url string

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        *amqp.Connection
}

var _ Publisher = (*RabbitMQPublisher)(nil)

func NewRabbitMQPublisher(url string) (*RabbitMQPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	p := &RabbitMQPublisher{url: url}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := p.ensureConnected(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitMQPublisher) PublishBatchEvent(ctx context.Context, evt BatchEvent) error {
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("invalid batch event: %w", err)
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode batch event: %w", err)
	}

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declareExchange(ch); err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, eventsExchangeName, evt.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    evt.OccurredAt,
		Body:         body,
	})
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

func (p *RabbitMQPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if err := p.ensureConnected(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		if err := p.reconnectWithBackoff(ctx); err != nil {
			return nil, err
		}
		p.mu.RLock()
		conn = p.conn
		p.mu.RUnlock()
	}

	ch, err := conn.Channel()
	if err != nil {
		if errReconnect := p.reconnectWithBackoff(ctx); errReconnect != nil {
			return nil, errReconnect
		}
		p.mu.RLock()
		conn = p.conn
		p.mu.RUnlock()
		return conn.Channel()
	}
	return ch, nil
}

func (p *RabbitMQPublisher) ensureConnected(ctx context.Context) error {
	p.mu.RLock()
	connected := p.conn != nil && !p.conn.IsClosed()
	p.mu.RUnlock()

	if connected {
		return nil
	}
	return p.reconnectWithBackoff(ctx)
}

func (p *RabbitMQPublisher) reconnectWithBackoff(ctx context.Context) error {
	p.reconnectMu.Lock()
	defer p.reconnectMu.Unlock()

	p.mu.RLock()
	connected := p.conn != nil && !p.conn.IsClosed()
	p.mu.RUnlock()
	if connected {
		return nil
	}

	backoff := reconnectBackoff
	for {
		conn, err := amqp.Dial(p.url)
		if err == nil {
			p.mu.Lock()
			p.conn = conn
			p.mu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq connect: %w (last error: %v)", ctx.Err(), err)
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func declareExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(eventsExchangeName, "topic", true, false, false, false, nil)
}
