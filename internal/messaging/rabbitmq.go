package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	minReconnectDelay = 1 * time.Second
	maxReconnectDelay = 30 * time.Second
	publishTimeout    = 5 * time.Second
)

var (
	ErrBrokerUnavailable = errors.New("rabbitmq: channel not available")
	errNacked            = errors.New("rabbitmq: publish not confirmed")
)

// declareTopology creates the durable topic exchange and the event queue
// bound to every routing key.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeName, err)
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueName, err)
	}
	for _, key := range RoutingKeys {
		if err := ch.QueueBind(QueueName, key, ExchangeName, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// RabbitMQ is the outbox's broker. Channels run in confirm mode, so
// Publish returns only once the broker has taken the message.
type RabbitMQ struct {
	url string

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	done chan struct{}
	wg   sync.WaitGroup
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	r := &RabbitMQ{url: url, done: make(chan struct{})}

	closed, err := r.dial()
	if err != nil {
		return nil, err
	}

	r.wg.Add(1)
	go r.supervise(closed)
	return r, nil
}

// dial opens a connection and a confirming channel and swaps them in. The
// returned channel reports when the new connection drops.
func (r *RabbitMQ) dial() (chan *amqp.Error, error) {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: confirm mode: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	r.mu.Lock()
	r.conn, r.channel = conn, ch
	r.mu.Unlock()

	log.WithFields(log.Fields{"exchange": ExchangeName, "queue": QueueName}).Info("rabbitmq: connected")
	return closed, nil
}

// supervise redials with growing delays whenever the connection drops.
func (r *RabbitMQ) supervise(closed chan *amqp.Error) {
	defer r.wg.Done()

	for {
		select {
		case <-r.done:
			return
		case reason := <-closed:
			r.mu.Lock()
			r.channel = nil
			r.mu.Unlock()
			log.WithField("reason", reason).Warn("rabbitmq: connection lost")
		}

		delay := minReconnectDelay
		for {
			select {
			case <-r.done:
				return
			case <-time.After(delay):
			}

			var err error
			closed, err = r.dial()
			if err == nil {
				break
			}
			log.WithError(err).WithField("retry_in", delay).Warn("rabbitmq: reconnect")
			if delay *= 2; delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
		}
	}
}

// Publish sends one persistent JSON message and waits for the broker's
// confirm. messageID is the outbox id, so consumers can drop redeliveries.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	r.mu.RLock()
	ch := r.channel
	r.mu.RUnlock()
	if ch == nil {
		return ErrBrokerUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, ExchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", routingKey, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq: confirm %s: %w", routingKey, err)
	}
	if !acked {
		return errNacked
	}
	return nil
}

func (r *RabbitMQ) Close() {
	close(r.done)
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
	log.Info("rabbitmq: closed")
}
