package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/efreitasn/toyexchange/internal/domain"
	"github.com/efreitasn/toyexchange/internal/store"
	"github.com/shopspring/decimal"
)

func aaplTrade() domain.Trade {
	return domain.Trade{
		TradeID:  "t-o-1",
		Symbol:   "AAPL",
		Qty:      2,
		Price:    decimal.NewFromInt(225),
		BuyUser:  "u1",
		SellUser: domain.MarketMakerID,
	}
}

func TestApply_TransfersCashAndPosition(t *testing.T) {
	st := store.NewMemStore()
	st.SeedCash("u1", decimal.NewFromInt(1000))
	l := NewLedger(st)
	ctx := context.Background()

	res, err := l.Apply(ctx, aaplTrade())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if res.TradeID != "t-o-1" {
		t.Errorf("TradeID = %q, want \"t-o-1\"", res.TradeID)
	}
	if !res.BuyerCash.Equal(decimal.NewFromInt(550)) {
		t.Errorf("BuyerCash = %s, want 550", res.BuyerCash)
	}
	if res.BuyerPosition != 2 {
		t.Errorf("BuyerPosition = %d, want 2", res.BuyerPosition)
	}
	if !res.SellerCash.Equal(decimal.NewFromInt(450)) {
		t.Errorf("SellerCash = %s, want 450", res.SellerCash)
	}
	if res.SellerPosition != -2 {
		t.Errorf("SellerPosition = %d, want -2", res.SellerPosition)
	}

	cash, _ := st.CashBalance(ctx, "u1")
	if !cash.Equal(decimal.NewFromInt(550)) {
		t.Errorf("CashBalance(u1) = %s, want 550", cash)
	}
	qty, _ := st.Position(ctx, "u1", "AAPL")
	if qty != 2 {
		t.Errorf("Position(u1, AAPL) = %d, want 2", qty)
	}
	mmCash, _ := st.CashBalance(ctx, domain.MarketMakerID)
	if !mmCash.Equal(decimal.NewFromInt(450)) {
		t.Errorf("CashBalance(mm) = %s, want 450", mmCash)
	}
	mmQty, _ := st.Position(ctx, domain.MarketMakerID, "AAPL")
	if mmQty != -2 {
		t.Errorf("Position(mm, AAPL) = %d, want -2", mmQty)
	}
}

// Applying the same trade twice leaves state identical to applying it once.
func TestApply_Idempotent(t *testing.T) {
	st := store.NewMemStore()
	st.SeedCash("u1", decimal.NewFromInt(1000))
	l := NewLedger(st)
	ctx := context.Background()

	tr := aaplTrade()
	first, err := l.Apply(ctx, tr)
	if err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	second, err := l.Apply(ctx, tr)
	if err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}

	// The replay reports the same post-state it would have after the first
	// apply, without moving anything.
	if !second.BuyerCash.Equal(first.BuyerCash) || second.BuyerPosition != first.BuyerPosition {
		t.Errorf("replay buyer state = %s/%d, want %s/%d",
			second.BuyerCash, second.BuyerPosition, first.BuyerCash, first.BuyerPosition)
	}
	if !second.SellerCash.Equal(first.SellerCash) || second.SellerPosition != first.SellerPosition {
		t.Errorf("replay seller state = %s/%d, want %s/%d",
			second.SellerCash, second.SellerPosition, first.SellerCash, first.SellerPosition)
	}

	cash, _ := st.CashBalance(ctx, "u1")
	if !cash.Equal(decimal.NewFromInt(550)) {
		t.Errorf("CashBalance(u1) = %s after replay, want 550", cash)
	}
	if n := len(st.Trades()); n != 1 {
		t.Errorf("Trades() count = %d, want 1", n)
	}
	if n := len(st.Entries("u1")); n != 1 {
		t.Errorf("Entries(u1) count = %d, want 1", n)
	}
	if n := len(st.Entries(domain.MarketMakerID)); n != 1 {
		t.Errorf("Entries(mm) count = %d, want 1", n)
	}
}

func TestApply_ConcurrentReplaysConverge(t *testing.T) {
	st := store.NewMemStore()
	st.SeedCash("u1", decimal.NewFromInt(1000))
	l := NewLedger(st)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Apply(ctx, aaplTrade()); err != nil {
				t.Errorf("Apply() error = %v", err)
			}
		}()
	}
	wg.Wait()

	cash, _ := st.CashBalance(ctx, "u1")
	if !cash.Equal(decimal.NewFromInt(550)) {
		t.Errorf("CashBalance(u1) = %s, want 550", cash)
	}
	qty, _ := st.Position(ctx, "u1", "AAPL")
	if qty != 2 {
		t.Errorf("Position(u1, AAPL) = %d, want 2", qty)
	}
}

// Distinct trades from the same user accumulate.
func TestApply_DistinctTradesAccumulate(t *testing.T) {
	st := store.NewMemStore()
	st.SeedCash("u1", decimal.NewFromInt(1000))
	l := NewLedger(st)
	ctx := context.Background()

	first := aaplTrade()
	second := aaplTrade()
	second.TradeID = "t-o-2"

	if _, err := l.Apply(ctx, first); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, err := l.Apply(ctx, second); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	cash, _ := st.CashBalance(ctx, "u1")
	if !cash.Equal(decimal.NewFromInt(100)) {
		t.Errorf("CashBalance(u1) = %s, want 100", cash)
	}
	qty, _ := st.Position(ctx, "u1", "AAPL")
	if qty != 4 {
		t.Errorf("Position(u1, AAPL) = %d, want 4", qty)
	}
}

// failStore wraps a MemStore and fails InTx; Apply must surface the error
// so the worker leaves the message unacknowledged.
type failStore struct {
	*store.MemStore
}

var errTx = errors.New("tx failed")

func (failStore) InTx(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	return errTx
}

func TestApply_TxErrorPropagates(t *testing.T) {
	l := NewLedger(failStore{store.NewMemStore()})

	_, err := l.Apply(context.Background(), aaplTrade())
	if !errors.Is(err, errTx) {
		t.Fatalf("Apply() error = %v, want tx error", err)
	}
}
