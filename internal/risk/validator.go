// Package risk implements the first pipeline stage: shape and
// balance/holdings validation of new orders.
//
// Validation is a read-only gate: it never mutates balances, and its reads
// are not serialized against concurrent orders from the same user or against
// settlement writes. Two orders from the same user can therefore both pass
// the funds check before either settles. This race is documented and
// deliberately left in place.
package risk

import (
	"context"
	"fmt"

	"github.com/efreitasn/toyexchange/internal/domain"
	"github.com/efreitasn/toyexchange/internal/msg"
	"github.com/efreitasn/toyexchange/internal/pricing"
	"github.com/efreitasn/toyexchange/internal/store"
	"github.com/shopspring/decimal"
)

// Order quantity bounds accepted by validation.
const (
	MinQty = 1
	MaxQty = 100
)

// Validator applies the risk checks to decoded orders.
type Validator struct {
	store  store.LedgerStore
	prices *pricing.Table
}

// NewValidator creates a Validator backed by the given store and reference
// price table.
func NewValidator(st store.LedgerStore, prices *pricing.Table) *Validator {
	return &Validator{store: st, prices: prices}
}

// Validate applies the checks in order, short-circuiting on the first
// failure, and returns exactly one disposition:
//
//  1. symbol in the allowed trading set → symbol_not_allowed
//  2. side ∈ {BUY, SELL}               → bad_side
//  3. qty an integer in [1, 100]       → bad_qty
//  4. BUY: cash ≥ price×qty            → insufficient_funds
//  5. SELL: held qty ≥ qty             → insufficient_shares
//
// (The bad_type schema check happens at the decode boundary before Validate
// is reached.) A non-nil error means a store read failed and the caller must
// leave the message unacknowledged for redelivery.
func (v *Validator) Validate(ctx context.Context, o msg.OrderV1) (msg.Disposition, error) {
	if !v.prices.Allowed(o.Symbol) {
		return msg.RejectOrder(o.OrderID, msg.ReasonSymbolNotAllowed), nil
	}
	if o.Side != string(domain.OrderSideBuy) && o.Side != string(domain.OrderSideSell) {
		return msg.RejectOrder(o.OrderID, msg.ReasonBadSide), nil
	}
	if o.Qty < MinQty || o.Qty > MaxQty {
		return msg.RejectOrder(o.OrderID, msg.ReasonBadQty), nil
	}

	if o.Side == string(domain.OrderSideBuy) {
		price, _ := v.prices.Lookup(o.Symbol)
		needed := price.Mul(decimal.NewFromInt(o.Qty))
		cash, err := v.store.CashBalance(ctx, o.UserID)
		if err != nil {
			return msg.Disposition{}, fmt.Errorf("funds check for %s: %w", o.UserID, err)
		}
		if cash.LessThan(needed) {
			return msg.RejectInsufficientFunds(o.OrderID, needed.InexactFloat64(), cash.InexactFloat64()), nil
		}
	}

	if o.Side == string(domain.OrderSideSell) {
		held, err := v.store.Position(ctx, o.UserID, o.Symbol)
		if err != nil {
			return msg.Disposition{}, fmt.Errorf("holdings check for %s/%s: %w", o.UserID, o.Symbol, err)
		}
		if held < o.Qty {
			return msg.RejectInsufficientShares(o.OrderID, held, o.Qty), nil
		}
	}

	return msg.AcceptOrder(o), nil
}
