package msg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QtyInvalid is the quantity sentinel assigned when order.v1 carries a qty
// that is present but not an integer. It is outside the valid [1,100] range,
// so the validator's range check rejects it with bad_qty while preserving
// the documented check order (symbol before qty).
const QtyInvalid = -1

// DecodeError reports a payload that does not match the expected schema
// version. OrderID is best-effort: set when the payload was valid JSON and
// carried an order_id, empty otherwise.
type DecodeError struct {
	OrderID string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message: %s (order_id=%q)", e.Reason, e.OrderID)
}

// rawOrder defers qty parsing so a non-integer qty does not fail the whole
// decode and lose the order_id.
type rawOrder struct {
	Type    string          `json:"type"`
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Symbol  string          `json:"symbol"`
	Side    string          `json:"side"`
	Qty     json.RawMessage `json:"qty"`
}

// DecodeOrder validates and decodes an order.v1 payload. Symbol and side are
// canonicalized to upper case. A wrong or missing type tag (or malformed
// JSON) yields a DecodeError with reason bad_type. A present but non-integer
// qty decodes to QtyInvalid.
func DecodeOrder(body []byte) (OrderV1, error) {
	var raw rawOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return OrderV1{}, &DecodeError{Reason: ReasonBadType}
	}
	if raw.Type != TypeOrder {
		return OrderV1{}, &DecodeError{OrderID: raw.OrderID, Reason: ReasonBadType}
	}

	// A missing or null qty stays 0 and fails the range check; anything
	// present that is not a JSON integer becomes QtyInvalid.
	qty := int64(0)
	if len(raw.Qty) > 0 && string(raw.Qty) != "null" {
		if err := json.Unmarshal(raw.Qty, &qty); err != nil {
			qty = QtyInvalid
		}
	}

	return OrderV1{
		Type:    raw.Type,
		OrderID: raw.OrderID,
		UserID:  raw.UserID,
		Symbol:  strings.ToUpper(raw.Symbol),
		Side:    strings.ToUpper(raw.Side),
		Qty:     qty,
	}, nil
}

// DecodeAccepted validates and decodes an order_accepted.v1 payload.
func DecodeAccepted(body []byte) (OrderAcceptedV1, error) {
	var m OrderAcceptedV1
	if err := json.Unmarshal(body, &m); err != nil {
		return OrderAcceptedV1{}, fmt.Errorf("decode %s: %w", TypeOrderAccepted, err)
	}
	if m.Type != TypeOrderAccepted {
		return OrderAcceptedV1{}, &DecodeError{OrderID: m.OrderID, Reason: ReasonBadType}
	}
	m.Symbol = strings.ToUpper(m.Symbol)
	m.Side = strings.ToUpper(m.Side)
	return m, nil
}

// DecodeTradeFill validates and decodes a trade_fill.v1 payload.
func DecodeTradeFill(body []byte) (TradeFillV1, error) {
	var m TradeFillV1
	if err := json.Unmarshal(body, &m); err != nil {
		return TradeFillV1{}, fmt.Errorf("decode %s: %w", TypeTradeFill, err)
	}
	if m.Type != TypeTradeFill {
		return TradeFillV1{}, &DecodeError{Reason: ReasonBadType}
	}
	return m, nil
}

// Encode marshals a wire message. The message's Type tag must already be
// set; Encode does not inspect it.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

// Encode marshals whichever variant of the disposition is set.
func (d Disposition) Encode() ([]byte, error) {
	if d.Accepted != nil {
		return Encode(d.Accepted)
	}
	return Encode(d.Rejected)
}
