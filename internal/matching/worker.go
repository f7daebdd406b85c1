package matching

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/efreitasn/toyexchange/internal/fabric"
	"github.com/efreitasn/toyexchange/internal/msg"
)

// Worker consumes accepted-order events and broadcasts one trade fill per
// order on the trades fanout.
type Worker struct {
	fabric      fabric.Fabric
	engine      *Engine
	logger      *slog.Logger
	concurrency int
}

// NewWorker creates a matching Worker running the given number of concurrent
// consumers over one subscription.
func NewWorker(f fabric.Fabric, e *Engine, logger *slog.Logger, concurrency int) *Worker {
	return &Worker{fabric: f, engine: e, logger: logger, concurrency: concurrency}
}

// Run consumes orders.accepted until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.fabric.Consume(ctx, fabric.QueueAccepted)
	if err != nil {
		return fmt.Errorf("matching: %w", err)
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

// handle matches one accepted order. Failures leave the delivery
// unacknowledged for redelivery, including an unconfigured symbol, which is
// a configuration error; the message is never dropped silently.
func (w *Worker) handle(ctx context.Context, d fabric.Delivery) {
	accepted, err := msg.DecodeAccepted(d.Body())
	if err != nil {
		w.logger.Error("decode accepted order, leaving for redelivery",
			slog.String("error", err.Error()))
		w.requeue(d)
		return
	}

	trade, err := w.engine.Match(accepted)
	if err != nil {
		w.logger.Error("match failed, leaving for redelivery",
			slog.String("order_id", accepted.OrderID),
			slog.String("error", err.Error()),
		)
		w.requeue(d)
		return
	}

	fill := msg.TradeFillV1{
		Type:     msg.TypeTradeFill,
		TradeID:  trade.TradeID,
		Symbol:   trade.Symbol,
		Qty:      trade.Qty,
		Price:    trade.Price.InexactFloat64(),
		BuyUser:  trade.BuyUser,
		SellUser: trade.SellUser,
	}
	body, err := msg.Encode(fill)
	if err != nil {
		w.logger.Error("encode trade fill", slog.String("error", err.Error()))
		w.requeue(d)
		return
	}
	if err := w.fabric.Publish(ctx, fabric.ExchangeTrades, "", body); err != nil {
		w.logger.Error("publish trade fill, leaving for redelivery",
			slog.String("error", err.Error()))
		w.requeue(d)
		return
	}
	if err := d.Ack(); err != nil {
		w.logger.Error("ack accepted order", slog.String("error", err.Error()))
		return
	}

	w.logger.Info("order filled",
		slog.String("trade_id", trade.TradeID),
		slog.String("symbol", trade.Symbol),
		slog.Int64("qty", trade.Qty),
		slog.String("price", trade.Price.String()),
		slog.String("buy_user", trade.BuyUser),
		slog.String("sell_user", trade.SellUser),
	)
}

func (w *Worker) requeue(d fabric.Delivery) {
	if err := d.Requeue(); err != nil {
		w.logger.Error("requeue accepted order", slog.String("error", err.Error()))
	}
}
