package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/efreitasn/toyexchange/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// schemaDDL is the settlement-side schema. Bootstrap splits and executes it
// statement by statement; every statement is idempotent.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  cash_balance NUMERIC NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS positions (
  user_id TEXT NOT NULL,
  symbol  TEXT NOT NULL,
  qty     INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (user_id, symbol)
);
CREATE TABLE IF NOT EXISTS trades (
  trade_id TEXT PRIMARY KEY,
  symbol   TEXT NOT NULL,
  qty      INTEGER NOT NULL,
  price    NUMERIC NOT NULL,
  buy_user TEXT NOT NULL,
  sell_user TEXT NOT NULL,
  ts TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS ledger_entries (
  id BIGSERIAL PRIMARY KEY,
  user_id TEXT NOT NULL,
  trade_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  delta_cash NUMERIC NOT NULL,
  delta_qty  INTEGER NOT NULL,
  ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  UNIQUE (trade_id, user_id)
);
`

const (
	upsertCashSQL = `
INSERT INTO users (id, cash_balance)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE
SET cash_balance = users.cash_balance + EXCLUDED.cash_balance
RETURNING cash_balance::text`

	upsertPositionSQL = `
INSERT INTO positions (user_id, symbol, qty)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, symbol) DO UPDATE
SET qty = positions.qty + EXCLUDED.qty
RETURNING qty`

	insertTradeSQL = `
INSERT INTO trades (trade_id, symbol, qty, price, buy_user, sell_user)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (trade_id) DO NOTHING`

	insertEntrySQL = `
INSERT INTO ledger_entries (user_id, trade_id, symbol, delta_cash, delta_qty)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (trade_id, user_id) DO NOTHING`
)

// Postgres is the pgx-backed LedgerStore.
type Postgres struct {
	pool *pgxpool.Pool
}

// DialPostgres opens a connection pool and verifies connectivity, retrying
// with exponential backoff until ctx is cancelled.
func DialPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	ping := func() error { return pool.Ping(ctx) }
	if err := backoff.Retry(ping, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Bootstrap creates the schema if it does not exist.
func (s *Postgres) Bootstrap(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaDDL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

// CashBalance returns the user's cash balance, zero for unknown users.
func (s *Postgres) CashBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var cashStr string
	err := s.pool.QueryRow(ctx,
		`SELECT cash_balance::text FROM users WHERE id = $1`, userID,
	).Scan(&cashStr)
	if err == pgx.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch cash for %s: %w", userID, err)
	}
	return parseDecimal(cashStr)
}

// Position returns the user's held quantity for a symbol, zero when absent.
func (s *Postgres) Position(ctx context.Context, userID, symbol string) (int64, error) {
	var qty int64
	err := s.pool.QueryRow(ctx,
		`SELECT qty FROM positions WHERE user_id = $1 AND symbol = $2`, userID, symbol,
	).Scan(&qty)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fetch position for %s/%s: %w", userID, symbol, err)
	}
	return qty, nil
}

// Account returns the user's cash and all positions sorted by symbol.
func (s *Postgres) Account(ctx context.Context, userID string) (domain.Account, error) {
	acct := domain.Account{UserID: userID, Cash: decimal.Zero, Positions: map[string]int64{}}

	cash, err := s.CashBalance(ctx, userID)
	if err != nil {
		return domain.Account{}, err
	}
	acct.Cash = cash

	rows, err := s.pool.Query(ctx,
		`SELECT symbol, qty FROM positions WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("fetch positions for %s: %w", userID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var sym string
		var qty int64
		if err := rows.Scan(&sym, &qty); err != nil {
			return domain.Account{}, fmt.Errorf("scan position: %w", err)
		}
		acct.Positions[sym] = qty
	}
	if err := rows.Err(); err != nil {
		return domain.Account{}, fmt.Errorf("fetch positions for %s: %w", userID, err)
	}
	return acct, nil
}

// Accounts returns every account ordered by user id.
func (s *Postgres) Accounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}

	accounts := make([]domain.Account, 0, len(ids))
	for _, id := range ids {
		acct, err := s.Account(ctx, id)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// InTx runs fn inside one database transaction.
func (s *Postgres) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// Close releases the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertTrade(ctx context.Context, tr domain.Trade) (bool, error) {
	tag, err := t.tx.Exec(ctx, insertTradeSQL,
		tr.TradeID, tr.Symbol, tr.Qty, tr.Price.String(), tr.BuyUser, tr.SellUser)
	if err != nil {
		return false, fmt.Errorf("insert trade %s: %w", tr.TradeID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) InsertEntry(ctx context.Context, e domain.LedgerEntry) (bool, error) {
	tag, err := t.tx.Exec(ctx, insertEntrySQL,
		e.UserID, e.TradeID, e.Symbol, e.DeltaCash.String(), e.DeltaQty)
	if err != nil {
		return false, fmt.Errorf("insert ledger entry %s/%s: %w", e.TradeID, e.UserID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) Increment(ctx context.Context, userID, symbol string, deltaCash decimal.Decimal, deltaQty int64) (decimal.Decimal, int64, error) {
	var cashStr string
	err := t.tx.QueryRow(ctx, upsertCashSQL, userID, deltaCash.String()).Scan(&cashStr)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("increment cash for %s: %w", userID, err)
	}
	cash, err := parseDecimal(cashStr)
	if err != nil {
		return decimal.Zero, 0, err
	}

	var qty int64
	err = t.tx.QueryRow(ctx, upsertPositionSQL, userID, symbol, deltaQty).Scan(&qty)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("increment position for %s/%s: %w", userID, symbol, err)
	}
	return cash, qty, nil
}

func (t *pgTx) AccountState(ctx context.Context, userID, symbol string) (decimal.Decimal, int64, error) {
	cash := decimal.Zero
	var cashStr string
	err := t.tx.QueryRow(ctx,
		`SELECT cash_balance::text FROM users WHERE id = $1`, userID,
	).Scan(&cashStr)
	if err != nil && err != pgx.ErrNoRows {
		return decimal.Zero, 0, fmt.Errorf("fetch cash for %s: %w", userID, err)
	}
	if err == nil {
		if cash, err = parseDecimal(cashStr); err != nil {
			return decimal.Zero, 0, err
		}
	}

	var qty int64
	err = t.tx.QueryRow(ctx,
		`SELECT qty FROM positions WHERE user_id = $1 AND symbol = $2`, userID, symbol,
	).Scan(&qty)
	if err != nil && err != pgx.ErrNoRows {
		return decimal.Zero, 0, fmt.Errorf("fetch position for %s/%s: %w", userID, symbol, err)
	}
	return cash, qty, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}
