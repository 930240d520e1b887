package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange receives notification events when none is configured.
const DefaultExchange = "laundry.notifications"

// confirmBuffer bounds late confirms held between publishes.
const confirmBuffer = 16

// AMQPNotifier publishes events to a topic exchange with publisher
// confirms. The routing key is the template id in lower case, e.g.
// "wa.laundry_ready".
//
// Thread-safety: Enqueue is serialized by a mutex because confirms arrive
// on a single channel. A confirm that lands after its publish timed out is
// skipped by the next Enqueue, which waits for its own delivery tag.
type AMQPNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	acks     <-chan amqp.Confirmation
	exchange string
	timeout  time.Duration

	mu sync.Mutex
}

// DialAMQP connects, declares the exchange and enables confirms.
func DialAMQP(url, exchange string, timeout time.Duration) (*AMQPNotifier, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))

	return &AMQPNotifier{conn: conn, ch: ch, acks: acks, exchange: exchange, timeout: timeout}, nil
}

// RoutingKey maps a template to its routing key.
func RoutingKey(t Template) string {
	return "wa." + strings.ToLower(strings.TrimPrefix(string(t), "WA_"))
}

// Enqueue publishes one persistent message and waits for the broker ack.
func (n *AMQPNotifier) Enqueue(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	tag := n.ch.GetNextPublishSeqNo()
	err = n.ch.PublishWithContext(ctx, n.exchange, RoutingKey(ev.Template), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    ev.IdempotencyKey,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"x-source": "laundrysync", "x-tenant-id": ev.TenantID},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Template, err)
	}

	return awaitConfirm(ctx, n.acks, tag)
}

// awaitConfirm waits for the broker confirm of the publish with delivery
// tag. Confirms for earlier tags belong to publishes that already gave up
// and are dropped.
func awaitConfirm(ctx context.Context, acks <-chan amqp.Confirmation, tag uint64) error {
	for {
		select {
		case conf, ok := <-acks:
			if !ok {
				return errors.New("confirm channel closed")
			}
			if conf.DeliveryTag < tag {
				continue
			}
			if conf.DeliveryTag > tag {
				return fmt.Errorf("confirm for delivery tag %d missing, got %d", tag, conf.DeliveryTag)
			}
			if !conf.Ack {
				return errors.New("publish nacked by broker")
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the channel and connection.
func (n *AMQPNotifier) Close() error {
	var errs []error
	if n.ch != nil {
		errs = append(errs, n.ch.Close())
	}
	if n.conn != nil {
		errs = append(errs, n.conn.Close())
	}
	return errors.Join(errs...)
}
