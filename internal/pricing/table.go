// Package pricing provides the static reference price table. Prices are not
// derived from an order book; every fill executes at the table price for its
// symbol, and the table's key set doubles as the allowed trading set used by
// risk validation.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// defaultPrices is the built-in reference table.
var defaultPrices = map[string]decimal.Decimal{
	"AAPL": decimal.NewFromFloat(225.00),
	"MSFT": decimal.NewFromFloat(415.00),
	"GOOG": decimal.NewFromFloat(168.00),
	"AMZN": decimal.NewFromFloat(185.00),
	"META": decimal.NewFromFloat(510.00),
	"NVDA": decimal.NewFromFloat(115.00),
	"TSLA": decimal.NewFromFloat(205.00),
	"NFLX": decimal.NewFromFloat(620.00),
	"AVGO": decimal.NewFromFloat(1720.00),
	"AMD":  decimal.NewFromFloat(155.00),
}

// Table maps symbols to reference prices. Symbols are matched
// case-insensitively. A Table is immutable after construction and therefore
// safe for concurrent use.
type Table struct {
	prices map[string]decimal.Decimal
}

// NewTable creates a Table with the built-in reference prices.
func NewTable() *Table {
	return NewTableWith(defaultPrices)
}

// NewTableWith creates a Table from the given symbol→price map.
// Symbols are normalized to upper case.
func NewTableWith(prices map[string]decimal.Decimal) *Table {
	m := make(map[string]decimal.Decimal, len(prices))
	for sym, p := range prices {
		m[strings.ToUpper(sym)] = p
	}
	return &Table{prices: m}
}

// Lookup returns the reference price for a symbol and whether the symbol is
// configured.
func (t *Table) Lookup(symbol string) (decimal.Decimal, bool) {
	p, ok := t.prices[strings.ToUpper(symbol)]
	return p, ok
}

// Allowed returns true if the symbol is in the allowed trading set.
func (t *Table) Allowed(symbol string) bool {
	_, ok := t.Lookup(symbol)
	return ok
}
