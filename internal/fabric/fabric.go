// Package fabric abstracts the message transport: a durable topic/queue
// broker with at-least-once delivery, per-consumer acknowledgement, and
// direct/fanout routing.
//
// The acknowledgement discipline is commit-then-acknowledge: a consumer may
// only Ack a delivery after its side effect (downstream publish or storage
// commit) has fully succeeded. Any failure before that point must leave the
// delivery unacknowledged (Requeue) so the fabric redelivers it. This is the
// mechanism that makes idempotent processing mandatory downstream.
package fabric

import "context"

// Exchange and queue names making up the pipeline's routing topology.
const (
	// ExchangeOrders is the direct-routed topic for new orders.
	ExchangeOrders = "orders.direct"
	// ExchangeEvents is the direct-routed topic for order dispositions.
	ExchangeEvents = "orders.events"
	// ExchangeTrades is the broadcast topic for trade fills; deliveries
	// fan out to every bound queue regardless of routing key.
	ExchangeTrades = "trades.fanout"

	QueueNewOrders = "orders.new"
	QueueAccepted  = "orders.accepted"
	QueueRejected  = "orders.rejected"
	QueueSettle    = "trades.to_settle"

	KeyNew      = "new"
	KeyAccepted = "accepted"
	KeyRejected = "rejected"
)

// Delivery is a single message received from a queue. Exactly one of Ack or
// Requeue must eventually be called.
type Delivery interface {
	// Body returns the message payload.
	Body() []byte
	// Ack acknowledges the delivery. Call only after the corresponding
	// side effect has committed.
	Ack() error
	// Requeue returns the delivery to its queue for redelivery.
	Requeue() error
}

// Fabric is the pub/sub transport used by every pipeline stage.
type Fabric interface {
	// Publish sends a message to an exchange with durable/persistent
	// delivery so it survives a broker restart. The routing key is
	// ignored by fanout exchanges.
	Publish(ctx context.Context, exchange, key string, body []byte) error

	// Consume opens a subscription on a queue. The returned channel is
	// closed when ctx is cancelled or the fabric shuts down. Multiple
	// consumers on the same queue compete for deliveries.
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)

	// Close tears down the transport.
	Close() error
}
