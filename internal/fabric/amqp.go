package fabric

import (
	"context"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP is the RabbitMQ-backed Fabric. Exchanges and queues are declared
// durable, publishes use persistent delivery mode, and each subscription
// gets its own channel with a prefetch limit bounding unacknowledged
// in-flight deliveries.
type AMQP struct {
	conn     *amqp.Connection
	prefetch int

	// amqp channels are not safe for concurrent publishes.
	pubMu sync.Mutex
	pubCh *amqp.Channel
}

// DialAMQP connects to the broker, retrying with exponential backoff until
// ctx is cancelled, and declares the pipeline topology.
func DialAMQP(ctx context.Context, url string, prefetch int) (*AMQP, error) {
	var conn *amqp.Connection
	dial := func() error {
		var err error
		conn, err = amqp.Dial(url)
		return err
	}
	if err := backoff.Retry(dial, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQP{conn: conn, prefetch: prefetch, pubCh: ch}, nil
}

// declareTopology declares the exchanges, queues, and bindings of the
// routing topology. Declarations are idempotent, so every process declares
// the full set at startup.
func declareTopology(ch *amqp.Channel) error {
	exchanges := []struct{ name, kind string }{
		{ExchangeOrders, "direct"},
		{ExchangeEvents, "direct"},
		{ExchangeTrades, "fanout"},
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	bindings := []struct{ queue, key, exchange string }{
		{QueueNewOrders, KeyNew, ExchangeOrders},
		{QueueAccepted, KeyAccepted, ExchangeEvents},
		{QueueRejected, KeyRejected, ExchangeEvents},
		{QueueSettle, "", ExchangeTrades},
	}
	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}

// Publish sends a persistent message to the exchange.
func (f *AMQP) Publish(ctx context.Context, exchange, key string, body []byte) error {
	f.pubMu.Lock()
	defer f.pubMu.Unlock()

	err := f.pubCh.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, key, err)
	}
	return nil
}

// Consume opens a dedicated channel on the queue with the configured
// prefetch as the in-flight bound: the broker stops sending once that many
// deliveries are unacknowledged.
func (f *AMQP) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if err := ch.Qos(f.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos on %s: %w", queue, err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- amqpDelivery{d}:
				case <-ctx.Done():
					// Unacked delivery; the broker redelivers
					// once the channel closes.
					return
				}
			}
		}
	}()
	return out, nil
}

// Close tears down the connection and all its channels.
func (f *AMQP) Close() error {
	return f.conn.Close()
}

type amqpDelivery struct {
	d amqp.Delivery
}

func (a amqpDelivery) Body() []byte { return a.d.Body }

func (a amqpDelivery) Ack() error { return a.d.Ack(false) }

func (a amqpDelivery) Requeue() error { return a.d.Nack(false, true) }
