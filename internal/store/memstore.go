package store

import (
	"context"
	"sort"
	"sync"

	"github.com/efreitasn/toyexchange/internal/domain"
	"github.com/shopspring/decimal"
)

// MemStore is a thread-safe in-memory LedgerStore with the same conflict
// and atomicity semantics as the Postgres implementation: InTx either
// applies every write or none. Used by tests and local runs without a
// database.
type MemStore struct {
	mu        sync.Mutex
	cash      map[string]decimal.Decimal
	positions map[string]map[string]int64 // user_id → symbol → qty
	trades    map[string]domain.Trade
	entries   map[string]domain.LedgerEntry // trade_id|user_id → entry
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		cash:      make(map[string]decimal.Decimal),
		positions: make(map[string]map[string]int64),
		trades:    make(map[string]domain.Trade),
		entries:   make(map[string]domain.LedgerEntry),
	}
}

func entryKey(tradeID, userID string) string {
	return tradeID + "|" + userID
}

// SeedCash sets a user's cash balance directly, bypassing the ledger.
func (s *MemStore) SeedCash(userID string, cash decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cash[userID] = cash
}

// SeedPosition sets a user's position directly, bypassing the ledger.
func (s *MemStore) SeedPosition(userID, symbol string, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.positions[userID] == nil {
		s.positions[userID] = make(map[string]int64)
	}
	s.positions[userID][symbol] = qty
}

// CashBalance returns the user's cash balance, zero for unknown users.
func (s *MemStore) CashBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cash[userID]; ok {
		return c, nil
	}
	return decimal.Zero, nil
}

// Position returns the user's held quantity for a symbol, zero when absent.
func (s *MemStore) Position(ctx context.Context, userID, symbol string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[userID][symbol], nil
}

// Account returns the user's cash and a copy of all positions.
func (s *MemStore) Account(ctx context.Context, userID string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountLocked(userID), nil
}

func (s *MemStore) accountLocked(userID string) domain.Account {
	acct := domain.Account{UserID: userID, Cash: decimal.Zero, Positions: map[string]int64{}}
	if c, ok := s.cash[userID]; ok {
		acct.Cash = c
	}
	for sym, qty := range s.positions[userID] {
		acct.Positions[sym] = qty
	}
	return acct
}

// Accounts returns every account ordered by user id.
func (s *MemStore) Accounts(ctx context.Context) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]bool)
	for id := range s.cash {
		ids[id] = true
	}
	for id := range s.positions {
		ids[id] = true
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	accounts := make([]domain.Account, 0, len(sorted))
	for _, id := range sorted {
		accounts = append(accounts, s.accountLocked(id))
	}
	return accounts, nil
}

// Trades returns all persisted trades. Test helper.
func (s *MemStore) Trades() []domain.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Trade, 0, len(s.trades))
	for _, t := range s.trades {
		out = append(out, t)
	}
	return out
}

// Entries returns all ledger entries for a user. Test helper.
func (s *MemStore) Entries(userID string) []domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// InTx runs fn under the store lock. On error every write is rolled back by
// restoring a snapshot, so partial applies are never observable.
func (s *MemStore) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() {}

type memSnapshot struct {
	cash      map[string]decimal.Decimal
	positions map[string]map[string]int64
	trades    map[string]domain.Trade
	entries   map[string]domain.LedgerEntry
}

func (s *MemStore) snapshot() memSnapshot {
	snap := memSnapshot{
		cash:      make(map[string]decimal.Decimal, len(s.cash)),
		positions: make(map[string]map[string]int64, len(s.positions)),
		trades:    make(map[string]domain.Trade, len(s.trades)),
		entries:   make(map[string]domain.LedgerEntry, len(s.entries)),
	}
	for k, v := range s.cash {
		snap.cash[k] = v
	}
	for user, pos := range s.positions {
		cp := make(map[string]int64, len(pos))
		for sym, qty := range pos {
			cp[sym] = qty
		}
		snap.positions[user] = cp
	}
	for k, v := range s.trades {
		snap.trades[k] = v
	}
	for k, v := range s.entries {
		snap.entries[k] = v
	}
	return snap
}

func (s *MemStore) restore(snap memSnapshot) {
	s.cash = snap.cash
	s.positions = snap.positions
	s.trades = snap.trades
	s.entries = snap.entries
}

// memTx performs writes directly against the store maps; InTx holds the
// lock for the duration and restores a snapshot on error.
type memTx struct {
	s *MemStore
}

func (t *memTx) InsertTrade(ctx context.Context, tr domain.Trade) (bool, error) {
	if _, exists := t.s.trades[tr.TradeID]; exists {
		return false, nil
	}
	t.s.trades[tr.TradeID] = tr
	return true, nil
}

func (t *memTx) InsertEntry(ctx context.Context, e domain.LedgerEntry) (bool, error) {
	key := entryKey(e.TradeID, e.UserID)
	if _, exists := t.s.entries[key]; exists {
		return false, nil
	}
	t.s.entries[key] = e
	return true, nil
}

func (t *memTx) Increment(ctx context.Context, userID, symbol string, deltaCash decimal.Decimal, deltaQty int64) (decimal.Decimal, int64, error) {
	cash := t.s.cash[userID].Add(deltaCash)
	t.s.cash[userID] = cash

	if t.s.positions[userID] == nil {
		t.s.positions[userID] = make(map[string]int64)
	}
	qty := t.s.positions[userID][symbol] + deltaQty
	t.s.positions[userID][symbol] = qty
	return cash, qty, nil
}

func (t *memTx) AccountState(ctx context.Context, userID, symbol string) (decimal.Decimal, int64, error) {
	return t.s.cash[userID], t.s.positions[userID][symbol], nil
}
