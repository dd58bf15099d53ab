// Package sqlite implements domain.Store on an embedded SQLite database for
// single-node deployments and local development.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// Store implements domain.Store. The pool is limited to one connection, so
// every transaction runs alone and reads inside it need no row locks.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// migrate is safe to call repeatedly.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (1)`); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return nil
}

// InTx commits only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&tx{q: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit tx: %w", err)
	}
	return nil
}

func (s *Store) reader() *tx { return &tx{q: s.db} }

func (s *Store) GetFeeSchedule(ctx context.Context) (domain.FeeSchedule, error) {
	return s.reader().FeeSchedule(ctx)
}

func (s *Store) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	return s.reader().Market(ctx, id)
}

func (s *Store) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	return s.reader().ListMarkets(ctx, f)
}

func (s *Store) GetPosition(ctx context.Context, marketID uint64, user domain.Identity) (domain.Position, error) {
	return s.reader().Position(ctx, marketID, user)
}

func (s *Store) ListPositions(ctx context.Context, marketID uint64) ([]domain.Position, error) {
	return s.reader().Positions(ctx, marketID)
}

func (s *Store) Balance(ctx context.Context, account domain.Account) (domain.Amount, error) {
	return s.reader().Balance(ctx, account)
}

func (s *Store) Deposit(ctx context.Context, account domain.Account, amount domain.Amount) error {
	return s.InTx(ctx, func(t domain.Tx) error {
		return t.(*tx).credit(ctx, account, amount)
	})
}

func (s *Store) Close() error { return s.db.Close() }

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type tx struct {
	q querier
}

func (t *tx) FeeSchedule(ctx context.Context) (domain.FeeSchedule, error) {
	var fs domain.FeeSchedule
	err := t.getJSON(ctx, `SELECT data FROM fee_schedule WHERE id = 1`, &fs)
	if err != nil {
		return domain.FeeSchedule{}, notFound(err, domain.ErrNotInitialized)
	}
	return fs, nil
}

func (t *tx) CreateFeeSchedule(ctx context.Context, fs domain.FeeSchedule) error {
	data, err := json.Marshal(fs)
	if err != nil {
		return fmt.Errorf("sqlite: marshal fee schedule: %w", err)
	}
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO fee_schedule (id, data) VALUES (1, ?) ON CONFLICT (id) DO NOTHING`, string(data))
	if err != nil {
		return fmt.Errorf("sqlite: create fee schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: create fee schedule: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyInitialized
	}
	return nil
}

func (t *tx) SaveFeeSchedule(ctx context.Context, fs domain.FeeSchedule) error {
	data, err := json.Marshal(fs)
	if err != nil {
		return fmt.Errorf("sqlite: marshal fee schedule: %w", err)
	}
	_, err = t.q.ExecContext(ctx,
		`INSERT INTO fee_schedule (id, data) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data`, string(data))
	if err != nil {
		return fmt.Errorf("sqlite: save fee schedule: %w", err)
	}
	return nil
}

func (t *tx) Market(ctx context.Context, id uint64) (domain.Market, error) {
	var m domain.Market
	if err := t.getJSON(ctx, `SELECT data FROM markets WHERE id = ?`, &m, idKey(id)); err != nil {
		return domain.Market{}, notFound(err, domain.ErrMarketNotFound)
	}
	return m, nil
}

func (t *tx) SaveMarket(ctx context.Context, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("sqlite: marshal market %d: %w", m.ID, err)
	}
	_, err = t.q.ExecContext(ctx,
		`INSERT INTO markets (id, status, creator, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		idKey(m.ID), string(m.Status), m.Creator.Hex(), string(data))
	if err != nil {
		return fmt.Errorf("sqlite: save market %d: %w", m.ID, err)
	}
	return nil
}

func (t *tx) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	query := `SELECT data FROM markets WHERE 1=1`
	var args []any
	if len(f.Statuses) > 0 {
		query += " AND status IN (?" + strings.Repeat(", ?", len(f.Statuses)-1) + ")"
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.Creator != nil {
		query += " AND creator = ?"
		args = append(args, f.Creator.Hex())
	}
	query += " ORDER BY id"
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, f.Offset)
	}
	return listJSON[domain.Market](ctx, t.q, query, args...)
}

func (t *tx) Position(ctx context.Context, marketID uint64, user domain.Identity) (domain.Position, error) {
	var p domain.Position
	err := t.getJSON(ctx, `SELECT data FROM positions WHERE market_id = ? AND user_id = ?`,
		&p, idKey(marketID), user.Hex())
	if err != nil {
		return domain.Position{}, notFound(err, domain.ErrPositionNotFound)
	}
	return p, nil
}

func (t *tx) SavePosition(ctx context.Context, p domain.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("sqlite: marshal position: %w", err)
	}
	_, err = t.q.ExecContext(ctx,
		`INSERT INTO positions (market_id, user_id, created_at, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (market_id, user_id) DO UPDATE SET data = excluded.data`,
		idKey(p.MarketID), p.User.Hex(), p.CreatedAt.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("sqlite: save position %d/%s: %w", p.MarketID, p.User.Hex(), err)
	}
	return nil
}

func (t *tx) Positions(ctx context.Context, marketID uint64) ([]domain.Position, error) {
	return listJSON[domain.Position](ctx, t.q,
		`SELECT data FROM positions WHERE market_id = ? ORDER BY created_at, user_id`, idKey(marketID))
}

func (t *tx) Balance(ctx context.Context, account domain.Account) (domain.Amount, error) {
	var raw string
	err := t.q.QueryRowContext(ctx, `SELECT amount FROM balances WHERE account = ?`, account.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: balance of %s: %w", account, err)
	}
	return domain.ParseAmount(raw)
}

func (t *tx) Transfer(ctx context.Context, from, to domain.Account, amount domain.Amount) error {
	if amount == 0 || from == to {
		return nil
	}
	bal, err := t.Balance(ctx, from)
	if err != nil {
		return err
	}
	if bal < amount {
		return domain.ErrInsufficientFunds
	}
	if err := t.setBalance(ctx, from, bal-amount); err != nil {
		return err
	}
	return t.credit(ctx, to, amount)
}

func (t *tx) credit(ctx context.Context, account domain.Account, amount domain.Amount) error {
	bal, err := t.Balance(ctx, account)
	if err != nil {
		return err
	}
	next, err := bal.Add(amount)
	if err != nil {
		return err
	}
	return t.setBalance(ctx, account, next)
}

func (t *tx) setBalance(ctx context.Context, account domain.Account, amount domain.Amount) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO balances (account, amount) VALUES (?, ?)
		ON CONFLICT (account) DO UPDATE SET amount = excluded.amount`,
		account.String(), amount.String())
	if err != nil {
		return fmt.Errorf("sqlite: set balance of %s: %w", account, err)
	}
	return nil
}

func (t *tx) getJSON(ctx context.Context, query string, dst any, args ...any) error {
	var data string
	if err := t.q.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("sqlite: decode row: %w", err)
	}
	return nil
}

func listJSON[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("sqlite: decode row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return out, nil
}

func idKey(id uint64) string {
	s := strconv.FormatUint(id, 10)
	return strings.Repeat("0", 20-len(s)) + s
}

func notFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}
