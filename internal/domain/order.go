package domain

// OrderSide indicates whether an order buys or sells the symbol.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Order represents a validated order instruction submitted through intake.
// Orders are immutable: once a disposition (accepted or rejected) has been
// emitted for an order id, no field ever changes.
type Order struct {
	OrderID string
	UserID  string
	Symbol  string
	Side    OrderSide
	Qty     int64
}
