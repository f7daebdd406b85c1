package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/efreitasn/toyexchange/internal/domain"
	"github.com/efreitasn/toyexchange/internal/fabric"
	"github.com/efreitasn/toyexchange/internal/msg"
	"github.com/shopspring/decimal"
)

// Worker consumes trade-fill events and settles each one into the ledger
// store.
type Worker struct {
	fabric      fabric.Fabric
	ledger      *Ledger
	logger      *slog.Logger
	concurrency int
}

// NewWorker creates a settlement Worker running the given number of
// concurrent consumers over one subscription.
func NewWorker(f fabric.Fabric, l *Ledger, logger *slog.Logger, concurrency int) *Worker {
	return &Worker{fabric: f, ledger: l, logger: logger, concurrency: concurrency}
}

// Run consumes trades.to_settle until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.fabric.Consume(ctx, fabric.QueueSettle)
	if err != nil {
		return fmt.Errorf("settlement: %w", err)
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

// handle settles one fill. The delivery is acknowledged only after the
// settlement transaction commits; storage failures leave it unacknowledged
// for redelivery, which the idempotent apply absorbs.
func (w *Worker) handle(ctx context.Context, d fabric.Delivery) {
	fill, err := msg.DecodeTradeFill(d.Body())
	if err != nil {
		w.logger.Error("decode trade fill, leaving for redelivery",
			slog.String("error", err.Error()))
		w.requeue(d)
		return
	}

	trade := domain.Trade{
		TradeID:  fill.TradeID,
		Symbol:   fill.Symbol,
		Qty:      fill.Qty,
		Price:    decimal.NewFromFloat(fill.Price),
		BuyUser:  fill.BuyUser,
		SellUser: fill.SellUser,
	}

	res, err := w.ledger.Apply(ctx, trade)
	if err != nil {
		w.logger.Error("settlement failed, leaving for redelivery",
			slog.String("trade_id", trade.TradeID),
			slog.String("error", err.Error()),
		)
		w.requeue(d)
		return
	}
	if err := d.Ack(); err != nil {
		w.logger.Error("ack trade fill", slog.String("error", err.Error()))
		return
	}

	w.logger.Info("trade settled",
		slog.String("trade_id", res.TradeID),
		slog.String("symbol", trade.Symbol),
		slog.Int64("qty", trade.Qty),
		slog.String("price", trade.Price.String()),
		slog.String("buyer_cash_after", res.BuyerCash.String()),
		slog.Int64("buyer_pos_after", res.BuyerPosition),
		slog.String("seller_cash_after", res.SellerCash.String()),
		slog.Int64("seller_pos_after", res.SellerPosition),
	)
}

func (w *Worker) requeue(d fabric.Delivery) {
	if err := d.Requeue(); err != nil {
		w.logger.Error("requeue trade fill", slog.String("error", err.Error()))
	}
}
