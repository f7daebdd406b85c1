// Package msg defines the versioned JSON wire messages exchanged over the
// fabric, one tagged struct per message version, plus the boundary codec
// that validates payloads before they enter business logic.
package msg

// Message type tags. Every payload carries its schema version in the
// `type` field.
const (
	TypeOrder         = "order.v1"
	TypeOrderAccepted = "order_accepted.v1"
	TypeOrderRejected = "order_rejected.v1"
	TypeTradeFill     = "trade_fill.v1"
)

// Rejection reason codes carried by order_rejected.v1.
const (
	ReasonBadType            = "bad_type"
	ReasonSymbolNotAllowed   = "symbol_not_allowed"
	ReasonBadSide            = "bad_side"
	ReasonBadQty             = "bad_qty"
	ReasonInsufficientFunds  = "insufficient_funds"
	ReasonInsufficientShares = "insufficient_shares"
)

// OrderV1 is a new-order event published by intake.
type OrderV1 struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	Qty     int64  `json:"qty"`
}

// OrderAcceptedV1 is emitted by risk validation when an order passes all
// checks. It carries the full order so matching needs no other lookup.
type OrderAcceptedV1 struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
	Symbol  string `json:"symbol"`
	Qty     int64  `json:"qty"`
	Side    string `json:"side"`
	UserID  string `json:"user_id"`
}

// OrderRejectedV1 is emitted by risk validation when an order fails a check.
// The reason-specific fields are only set for the reasons that define them:
// needed/cash for insufficient_funds, have/needed for insufficient_shares.
type OrderRejectedV1 struct {
	Type    string   `json:"type"`
	OrderID string   `json:"order_id"`
	Reason  string   `json:"reason"`
	Needed  *float64 `json:"needed,omitempty"`
	Cash    *float64 `json:"cash,omitempty"`
	Have    *int64   `json:"have,omitempty"`
}

// TradeFillV1 is emitted by matching and broadcast to all settlement-side
// subscribers.
type TradeFillV1 struct {
	Type     string  `json:"type"`
	TradeID  string  `json:"trade_id"`
	Symbol   string  `json:"symbol"`
	Qty      int64   `json:"qty"`
	Price    float64 `json:"price"`
	BuyUser  string  `json:"buy_user"`
	SellUser string  `json:"sell_user"`
}

// Disposition is the validated outcome of an order. Exactly one of Accepted
// or Rejected is set. Risk validation produces exactly one Disposition per
// order.
type Disposition struct {
	Accepted *OrderAcceptedV1
	Rejected *OrderRejectedV1
}

// IsAccepted reports whether the disposition accepted the order.
func (d Disposition) IsAccepted() bool {
	return d.Accepted != nil
}

// AcceptOrder builds an accepted disposition carrying the order's fields.
func AcceptOrder(o OrderV1) Disposition {
	return Disposition{Accepted: &OrderAcceptedV1{
		Type:    TypeOrderAccepted,
		OrderID: o.OrderID,
		Symbol:  o.Symbol,
		Qty:     o.Qty,
		Side:    o.Side,
		UserID:  o.UserID,
	}}
}

// RejectOrder builds a rejected disposition with the given reason code.
func RejectOrder(orderID, reason string) Disposition {
	return Disposition{Rejected: &OrderRejectedV1{
		Type:    TypeOrderRejected,
		OrderID: orderID,
		Reason:  reason,
	}}
}

// RejectInsufficientFunds builds an insufficient_funds rejection carrying
// the amount needed and the cash available.
func RejectInsufficientFunds(orderID string, needed, cash float64) Disposition {
	d := RejectOrder(orderID, ReasonInsufficientFunds)
	d.Rejected.Needed = &needed
	d.Rejected.Cash = &cash
	return d
}

// RejectInsufficientShares builds an insufficient_shares rejection carrying
// the quantity held and the quantity needed.
func RejectInsufficientShares(orderID string, have, needed int64) Disposition {
	d := RejectOrder(orderID, ReasonInsufficientShares)
	d.Rejected.Have = &have
	n := float64(needed)
	d.Rejected.Needed = &n
	return d
}
