// Package settlement implements the final pipeline stage: idempotently
// applying a trade's symmetric cash and position deltas to both
// counterparties and recording the immutable ledger rows.
package settlement

import (
	"context"

	"github.com/efreitasn/toyexchange/internal/domain"
	"github.com/efreitasn/toyexchange/internal/store"
	"github.com/shopspring/decimal"
)

// Ledger applies trades to the ledger store.
type Ledger struct {
	store store.LedgerStore
}

// NewLedger creates a Ledger backed by the given store.
func NewLedger(st store.LedgerStore) *Ledger {
	return &Ledger{store: st}
}

// Apply settles a trade in one atomic transaction: insert the trade row
// (first writer wins), then for each party insert the ledger entry keyed
// (trade_id, user) and increment cash/position only when that entry was
// actually inserted. The entry-key conflict-skip is the idempotence guard:
// applying the same trade twice yields state identical to applying it once,
// and concurrent retries converge instead of erroring.
//
// Either all writes commit or none do. On error the message must stay
// unacknowledged so the fabric redelivers; the apply is safe to retry. The
// returned post-state is for observability only.
func (l *Ledger) Apply(ctx context.Context, t domain.Trade) (domain.Settlement, error) {
	notional := t.Notional()
	res := domain.Settlement{TradeID: t.TradeID}

	err := l.store.InTx(ctx, func(tx store.LedgerTx) error {
		if _, err := tx.InsertTrade(ctx, t); err != nil {
			return err
		}

		// Buyer pays cash, receives the symbol.
		cash, pos, err := applyParty(ctx, tx, domain.LedgerEntry{
			UserID:    t.BuyUser,
			TradeID:   t.TradeID,
			Symbol:    t.Symbol,
			DeltaCash: notional.Neg(),
			DeltaQty:  t.Qty,
		})
		if err != nil {
			return err
		}
		res.BuyerCash, res.BuyerPosition = cash, pos

		// Seller receives cash, gives up the symbol.
		cash, pos, err = applyParty(ctx, tx, domain.LedgerEntry{
			UserID:    t.SellUser,
			TradeID:   t.TradeID,
			Symbol:    t.Symbol,
			DeltaCash: notional,
			DeltaQty:  -t.Qty,
		})
		if err != nil {
			return err
		}
		res.SellerCash, res.SellerPosition = cash, pos
		return nil
	})
	if err != nil {
		return domain.Settlement{}, err
	}
	return res, nil
}

// applyParty records one party's ledger entry and applies the matching
// increments. When the entry key already exists the deltas were applied by
// an earlier delivery, so the increment is skipped entirely and the current
// state is reported instead.
func applyParty(ctx context.Context, tx store.LedgerTx, e domain.LedgerEntry) (decimal.Decimal, int64, error) {
	inserted, err := tx.InsertEntry(ctx, e)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if !inserted {
		return tx.AccountState(ctx, e.UserID, e.Symbol)
	}
	return tx.Increment(ctx, e.UserID, e.Symbol, e.DeltaCash, e.DeltaQty)
}
