// Package store provides the Ledger Store collaborator: durable accounts,
// positions, trades, and ledger entries behind atomic read-modify-write
// operations.
//
// Settlement composes the LedgerTx primitives inside one transaction. The
// conflict-skip semantics of InsertTrade and InsertEntry (first writer wins,
// replays report inserted=false) are what make the settlement apply
// idempotent under at-least-once delivery.
package store

import (
	"context"

	"github.com/efreitasn/toyexchange/internal/domain"
	"github.com/shopspring/decimal"
)

// LedgerStore is the durable store shared by risk validation (reads),
// settlement (transactional writes), and the balance query API.
type LedgerStore interface {
	// CashBalance returns the user's cash balance, zero for unknown users.
	CashBalance(ctx context.Context, userID string) (decimal.Decimal, error)

	// Position returns the user's held quantity for a symbol, zero when
	// no position exists.
	Position(ctx context.Context, userID, symbol string) (int64, error)

	// Account returns the user's cash and all positions. Unknown users
	// yield a zero account.
	Account(ctx context.Context, userID string) (domain.Account, error)

	// Accounts returns every account, ordered by user id.
	Accounts(ctx context.Context) ([]domain.Account, error)

	// InTx runs fn inside one atomic transaction: either every write fn
	// performs commits, or none do.
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// Close releases the underlying connections.
	Close()
}

// LedgerTx exposes the write primitives available inside a transaction.
type LedgerTx interface {
	// InsertTrade records the trade row. If the trade id already exists
	// the insert is a no-op and inserted is false (first writer wins).
	InsertTrade(ctx context.Context, t domain.Trade) (inserted bool, err error)

	// InsertEntry records a ledger entry keyed (trade_id, user_id). If
	// that key already exists the insert is skipped and inserted is
	// false. This conflict-skip is the idempotence guard for settlement.
	InsertEntry(ctx context.Context, e domain.LedgerEntry) (inserted bool, err error)

	// Increment atomically adds deltaCash to the user's cash balance and
	// deltaQty to the user's position in symbol, creating either row if
	// absent, and returns the new state.
	Increment(ctx context.Context, userID, symbol string, deltaCash decimal.Decimal, deltaQty int64) (cash decimal.Decimal, qty int64, err error)

	// AccountState reads the user's current cash and position in symbol
	// within the transaction, without modifying anything.
	AccountState(ctx context.Context, userID, symbol string) (cash decimal.Decimal, qty int64, err error)
}
