package domain

import "github.com/shopspring/decimal"

// MarketMakerID is the fixed counterparty standing on the opposite side of
// every order in lieu of a real order book.
const MarketMakerID = "mm"

// Trade represents a single matched fill between two counterparties.
// Trades are immutable once persisted; on redelivery the first write wins.
type Trade struct {
	TradeID  string
	Symbol   string
	Qty      int64
	Price    decimal.Decimal
	BuyUser  string
	SellUser string
}

// TradeIDFromOrder derives the trade id deterministically from the order id,
// so redelivery of the same accepted order yields the same trade identity.
// Downstream idempotence depends on this.
func TradeIDFromOrder(orderID string) string {
	return "t-" + orderID
}

// Notional returns price × qty, the cash value of the trade.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Qty))
}
