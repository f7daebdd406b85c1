package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/efreitasn/toyexchange/internal/domain"
	"github.com/efreitasn/toyexchange/internal/msg"
	"github.com/efreitasn/toyexchange/internal/pricing"
	"github.com/efreitasn/toyexchange/internal/store"
	"github.com/shopspring/decimal"
)

func newValidator(seed func(*store.MemStore)) *Validator {
	st := store.NewMemStore()
	if seed != nil {
		seed(st)
	}
	return NewValidator(st, pricing.NewTable())
}

func order(symbol, side string, qty int64) msg.OrderV1 {
	return msg.OrderV1{
		Type:    msg.TypeOrder,
		OrderID: "o-1",
		UserID:  "u1",
		Symbol:  symbol,
		Side:    side,
		Qty:     qty,
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		order  msg.OrderV1
		reason string
	}{
		{"unknown symbol", order("DOGE", "BUY", 1), msg.ReasonSymbolNotAllowed},
		{"bad side", order("AAPL", "HOLD", 1), msg.ReasonBadSide},
		{"qty zero", order("AAPL", "BUY", 0), msg.ReasonBadQty},
		{"qty above max", order("AAPL", "BUY", 101), msg.ReasonBadQty},
		{"qty sentinel", order("AAPL", "BUY", msg.QtyInvalid), msg.ReasonBadQty},
	}

	v := newValidator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := v.Validate(context.Background(), tt.order)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if d.IsAccepted() {
				t.Fatal("Validate() accepted, want rejection")
			}
			if d.Rejected.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", d.Rejected.Reason, tt.reason)
			}
			if d.Rejected.OrderID != tt.order.OrderID {
				t.Errorf("OrderID = %q, want %q", d.Rejected.OrderID, tt.order.OrderID)
			}
		})
	}
}

// Symbol is checked before side and qty, so a bogus order with an unknown
// symbol always rejects with symbol_not_allowed.
func TestValidate_CheckOrder(t *testing.T) {
	v := newValidator(nil)

	d, err := v.Validate(context.Background(), order("DOGE", "HOLD", 9999))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if d.Rejected.Reason != msg.ReasonSymbolNotAllowed {
		t.Errorf("Reason = %q, want %q", d.Rejected.Reason, msg.ReasonSymbolNotAllowed)
	}

	d, err = v.Validate(context.Background(), order("AAPL", "HOLD", 9999))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if d.Rejected.Reason != msg.ReasonBadSide {
		t.Errorf("Reason = %q, want %q", d.Rejected.Reason, msg.ReasonBadSide)
	}
}

func TestValidate_BuyFundsCheck(t *testing.T) {
	v := newValidator(func(st *store.MemStore) {
		st.SeedCash("u1", decimal.NewFromInt(1000))
	})

	// 2 × 225 = 450 ≤ 1000: accepted, carrying the order's fields.
	d, err := v.Validate(context.Background(), order("AAPL", "BUY", 2))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !d.IsAccepted() {
		t.Fatalf("Validate() rejected with %q, want accepted", d.Rejected.Reason)
	}
	if d.Accepted.OrderID != "o-1" || d.Accepted.Symbol != "AAPL" || d.Accepted.Qty != 2 {
		t.Errorf("accepted = %+v", d.Accepted)
	}

	// 5 × 225 = 1125 > 1000: insufficient funds with needed and cash.
	d, err = v.Validate(context.Background(), order("AAPL", "BUY", 5))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if d.IsAccepted() {
		t.Fatal("Validate() accepted, want insufficient_funds")
	}
	if d.Rejected.Reason != msg.ReasonInsufficientFunds {
		t.Errorf("Reason = %q, want %q", d.Rejected.Reason, msg.ReasonInsufficientFunds)
	}
	if d.Rejected.Needed == nil || *d.Rejected.Needed != 1125 {
		t.Errorf("Needed = %v, want 1125", d.Rejected.Needed)
	}
	if d.Rejected.Cash == nil || *d.Rejected.Cash != 1000 {
		t.Errorf("Cash = %v, want 1000", d.Rejected.Cash)
	}
}

func TestValidate_BuyExactFundsAccepted(t *testing.T) {
	v := newValidator(func(st *store.MemStore) {
		st.SeedCash("u1", decimal.NewFromInt(450))
	})

	d, err := v.Validate(context.Background(), order("AAPL", "BUY", 2))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !d.IsAccepted() {
		t.Fatalf("Validate() rejected with %q, want accepted at exact cash", d.Rejected.Reason)
	}
}

func TestValidate_SellHoldingsCheck(t *testing.T) {
	v := newValidator(func(st *store.MemStore) {
		st.SeedPosition("u1", "AAPL", 2)
	})

	d, err := v.Validate(context.Background(), order("AAPL", "SELL", 2))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !d.IsAccepted() {
		t.Fatalf("Validate() rejected with %q, want accepted", d.Rejected.Reason)
	}

	d, err = v.Validate(context.Background(), order("AAPL", "SELL", 3))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if d.IsAccepted() {
		t.Fatal("Validate() accepted, want insufficient_shares")
	}
	if d.Rejected.Reason != msg.ReasonInsufficientShares {
		t.Errorf("Reason = %q, want %q", d.Rejected.Reason, msg.ReasonInsufficientShares)
	}
	if d.Rejected.Have == nil || *d.Rejected.Have != 2 {
		t.Errorf("Have = %v, want 2", d.Rejected.Have)
	}
	if d.Rejected.Needed == nil || *d.Rejected.Needed != 3 {
		t.Errorf("Needed = %v, want 3", d.Rejected.Needed)
	}
}

// errStore fails every read; Validate must surface the error instead of
// producing a disposition, so the caller leaves the message for redelivery.
type errStore struct {
	store.LedgerStore
}

var errRead = errors.New("store unavailable")

func (errStore) CashBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return decimal.Zero, errRead
}

func (errStore) Position(ctx context.Context, userID, symbol string) (int64, error) {
	return 0, errRead
}

func TestValidate_StoreErrorPropagates(t *testing.T) {
	v := NewValidator(errStore{}, pricing.NewTable())

	for _, side := range []string{"BUY", "SELL"} {
		_, err := v.Validate(context.Background(), order("AAPL", side, 1))
		if !errors.Is(err, errRead) {
			t.Errorf("Validate(%s) error = %v, want store error", side, err)
		}
	}
}

func TestValidate_SideConstantsMatchDomain(t *testing.T) {
	v := newValidator(func(st *store.MemStore) {
		st.SeedCash("u1", decimal.NewFromInt(100000))
		st.SeedPosition("u1", "AAPL", 100)
	})

	for _, side := range []domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell} {
		d, err := v.Validate(context.Background(), order("AAPL", string(side), 1))
		if err != nil {
			t.Fatalf("Validate(%s) error = %v", side, err)
		}
		if !d.IsAccepted() {
			t.Errorf("Validate(%s) rejected with %q, want accepted", side, d.Rejected.Reason)
		}
	}
}
