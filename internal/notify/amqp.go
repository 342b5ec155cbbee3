package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
)

// publisher is the part of *amqp.Channel the sink needs.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes notifications as JSON to a topic exchange with the
// routing key "notification.<type>", e.g. notification.transaction.
type AMQPSink struct {
	conn     *amqp.Connection
	channel  publisher
	exchange string
	mu       sync.Mutex
}

// DialAMQP connects to RabbitMQ and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.WithField("exchange", exchange).Info("Connected to RabbitMQ")
	return &AMQPSink{conn: conn, channel: channel, exchange: exchange}, nil
}

func newAMQPSink(p publisher, exchange string) *AMQPSink {
	return &AMQPSink{channel: p, exchange: exchange}
}

func (s *AMQPSink) Name() string { return "amqp" }

// Notify publishes n. An amqp.Channel is not safe for concurrent publishes,
// so calls are serialised.
func (s *AMQPSink) Notify(_ context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.channel.Publish(
		s.exchange,
		RoutingKey(n.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (s *AMQPSink) Close() error {
	if c, ok := s.channel.(*amqp.Channel); ok {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("Failed to close RabbitMQ channel")
		}
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// RoutingKey returns the topic a notification type is published under.
func RoutingKey(t model.NotificationType) string {
	return "notification." + strings.ToLower(string(t))
}
