package fabric

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrFabricClosed is returned by publishes after Close.
var ErrFabricClosed = errors.New("fabric closed")

const memQueueCapacity = 1024

type binding struct {
	key   string
	queue string
}

// MemFabric is an in-process Fabric with the same routing topology and
// redelivery semantics as the AMQP implementation: direct exchanges route by
// key, the trades exchange fans out to all bound queues, and Requeue puts a
// delivery back on its queue for redelivery. Used by tests and local runs
// without a broker.
type MemFabric struct {
	mu       sync.Mutex
	queues   map[string]chan []byte
	bindings map[string][]binding
	fanout   map[string]bool
	done     chan struct{}
	closed   bool
}

// NewMemFabric creates a MemFabric with the full pipeline topology declared.
func NewMemFabric() *MemFabric {
	f := &MemFabric{
		queues:   make(map[string]chan []byte),
		bindings: make(map[string][]binding),
		fanout:   map[string]bool{ExchangeTrades: true},
		done:     make(chan struct{}),
	}
	for _, q := range []string{QueueNewOrders, QueueAccepted, QueueRejected, QueueSettle} {
		f.queues[q] = make(chan []byte, memQueueCapacity)
	}
	f.bindings[ExchangeOrders] = []binding{{KeyNew, QueueNewOrders}}
	f.bindings[ExchangeEvents] = []binding{
		{KeyAccepted, QueueAccepted},
		{KeyRejected, QueueRejected},
	}
	f.bindings[ExchangeTrades] = []binding{{"", QueueSettle}}
	return f
}

// Bind adds a queue bound to an exchange, creating the queue if needed.
// Tests use it to attach extra subscribers to the trades fanout.
func (f *MemFabric) Bind(exchange, key, queue string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.queues[queue]; !ok {
		f.queues[queue] = make(chan []byte, memQueueCapacity)
	}
	f.bindings[exchange] = append(f.bindings[exchange], binding{key, queue})
}

// Publish routes the message to every matching bound queue.
func (f *MemFabric) Publish(ctx context.Context, exchange, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFabricClosed
	}

	for _, b := range f.bindings[exchange] {
		if !f.fanout[exchange] && b.key != key {
			continue
		}
		select {
		case f.queues[b.queue] <- body:
		default:
			return fmt.Errorf("queue %s full", b.queue)
		}
	}
	return nil
}

// Consume returns a delivery channel for the queue. Consumers on the same
// queue compete for deliveries.
func (f *MemFabric) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	f.mu.Lock()
	q, ok := f.queues[queue]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown queue %s", queue)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-f.done:
				return
			case body := <-q:
				d := &memDelivery{body: body, queue: q, done: f.done}
				select {
				case out <- d:
				case <-ctx.Done():
					d.Requeue()
					return
				case <-f.done:
					return
				}
			}
		}
	}()
	return out, nil
}

// Close shuts down all subscriptions.
func (f *MemFabric) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

type memDelivery struct {
	body  []byte
	queue chan []byte
	done  chan struct{}
}

func (d *memDelivery) Body() []byte { return d.body }

func (d *memDelivery) Ack() error { return nil }

func (d *memDelivery) Requeue() error {
	select {
	case d.queue <- d.body:
		return nil
	case <-d.done:
		return ErrFabricClosed
	}
}
