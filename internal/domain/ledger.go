package domain

import "github.com/shopspring/decimal"

// LedgerEntry is an immutable record of one account's delta from one trade.
// Entries are uniquely keyed by (TradeID, UserID), insert-only, and are the
// system's source of truth: an account's cash and positions are defined as
// the sum of its entries' deltas.
type LedgerEntry struct {
	UserID    string
	TradeID   string
	Symbol    string
	DeltaCash decimal.Decimal
	DeltaQty  int64
}

// Account is the materialized cash balance and per-symbol positions for one
// user. It is an incrementally-updated cache of the ledger-entry aggregate
// and is mutated only through the atomic settlement apply.
type Account struct {
	UserID    string
	Cash      decimal.Decimal
	Positions map[string]int64
}

// Settlement reports the post-apply state of both counterparties. It is for
// observability only and never drives control flow.
type Settlement struct {
	TradeID        string
	BuyerCash      decimal.Decimal
	BuyerPosition  int64
	SellerCash     decimal.Decimal
	SellerPosition int64
}
