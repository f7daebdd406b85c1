package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/efreitasn/toyexchange/internal/fabric"
	"github.com/efreitasn/toyexchange/internal/msg"
)

// Worker consumes new-order events, validates each one, and publishes
// exactly one disposition per order.
type Worker struct {
	fabric      fabric.Fabric
	validator   *Validator
	logger      *slog.Logger
	concurrency int
}

// NewWorker creates a risk Worker running the given number of concurrent
// consumers over one subscription.
func NewWorker(f fabric.Fabric, v *Validator, logger *slog.Logger, concurrency int) *Worker {
	return &Worker{fabric: f, validator: v, logger: logger, concurrency: concurrency}
}

// Run consumes orders.new until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.fabric.Consume(ctx, fabric.QueueNewOrders)
	if err != nil {
		return fmt.Errorf("risk: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				w.handle(ctx, d)
			}
		}()
	}
	wg.Wait()
	return nil
}

// handle validates one delivery. The disposition publish is the side effect;
// the delivery is acknowledged only after it succeeds. Store or publish
// failures leave the message unacknowledged so the fabric redelivers it.
func (w *Worker) handle(ctx context.Context, d fabric.Delivery) {
	var disp msg.Disposition

	order, err := msg.DecodeOrder(d.Body())
	if err != nil {
		var derr *msg.DecodeError
		if !errors.As(err, &derr) {
			derr = &msg.DecodeError{Reason: msg.ReasonBadType}
		}
		disp = msg.RejectOrder(derr.OrderID, derr.Reason)
	} else {
		disp, err = w.validator.Validate(ctx, order)
		if err != nil {
			w.logger.Error("risk check failed, leaving for redelivery",
				slog.String("order_id", order.OrderID),
				slog.String("error", err.Error()),
			)
			w.requeue(d)
			return
		}
	}

	key := fabric.KeyRejected
	if disp.IsAccepted() {
		key = fabric.KeyAccepted
	}
	body, err := disp.Encode()
	if err != nil {
		w.logger.Error("encode disposition", slog.String("error", err.Error()))
		w.requeue(d)
		return
	}
	if err := w.fabric.Publish(ctx, fabric.ExchangeEvents, key, body); err != nil {
		w.logger.Error("publish disposition, leaving for redelivery",
			slog.String("error", err.Error()))
		w.requeue(d)
		return
	}
	if err := d.Ack(); err != nil {
		w.logger.Error("ack order", slog.String("error", err.Error()))
		return
	}

	if disp.IsAccepted() {
		w.logger.Info("order accepted",
			slog.String("order_id", disp.Accepted.OrderID),
			slog.String("user_id", disp.Accepted.UserID),
			slog.String("symbol", disp.Accepted.Symbol),
			slog.String("side", disp.Accepted.Side),
			slog.Int64("qty", disp.Accepted.Qty),
		)
	} else {
		w.logger.Info("order rejected",
			slog.String("order_id", disp.Rejected.OrderID),
			slog.String("reason", disp.Rejected.Reason),
		)
	}
}

func (w *Worker) requeue(d fabric.Delivery) {
	if err := d.Requeue(); err != nil {
		w.logger.Error("requeue order", slog.String("error", err.Error()))
	}
}
