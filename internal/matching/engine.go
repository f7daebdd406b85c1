// Package matching implements the second pipeline stage: producing a
// deterministic trade for every accepted order against the fixed market
// maker at the symbol's static reference price.
package matching

import (
	"fmt"

	"github.com/efreitasn/toyexchange/internal/domain"
	"github.com/efreitasn/toyexchange/internal/msg"
	"github.com/efreitasn/toyexchange/internal/pricing"
)

// Engine matches accepted orders against the market maker.
type Engine struct {
	prices *pricing.Table
}

// NewEngine creates an Engine using the given reference price table.
func NewEngine(prices *pricing.Table) *Engine {
	return &Engine{prices: prices}
}

// Match produces the trade for an accepted order. The trade id is derived
// deterministically from the order id, so redelivery of the same accepted
// event yields the same trade identity. A symbol without a reference price
// returns domain.ErrUnknownSymbol: there is no valid fill to emit, and the
// caller must not acknowledge the message.
func (e *Engine) Match(o msg.OrderAcceptedV1) (domain.Trade, error) {
	price, ok := e.prices.Lookup(o.Symbol)
	if !ok {
		return domain.Trade{}, fmt.Errorf("match %s: %w: %s", o.OrderID, domain.ErrUnknownSymbol, o.Symbol)
	}

	buyUser, sellUser := o.UserID, domain.MarketMakerID
	if o.Side == string(domain.OrderSideSell) {
		buyUser, sellUser = domain.MarketMakerID, o.UserID
	}

	return domain.Trade{
		TradeID:  domain.TradeIDFromOrder(o.OrderID),
		Symbol:   o.Symbol,
		Qty:      o.Qty,
		Price:    price,
		BuyUser:  buyUser,
		SellUser: sellUser,
	}, nil
}
