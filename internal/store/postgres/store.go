package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// maxTxAttempts bounds reruns after deadlocks or serialization failures.
const maxTxAttempts = 3

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn in a READ COMMITTED transaction. Reads through the Tx take
// row locks; a transaction that loses a deadlock is rerun from scratch.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	var err error
	for range maxTxAttempts {
		err = s.inTx(ctx, fn)
		if !retryable(err) {
			break
		}
	}
	return mapError(err)
}

func (s *Store) inTx(ctx context.Context, fn func(tx domain.Tx) error) (err error) {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = pgTx.Rollback(ctx)
		}
	}()

	if err = fn(&tx{q: pgTx, lock: true}); err != nil {
		return err
	}
	if err = pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

func (s *Store) reader() *tx { return &tx{q: s.pool} }

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

// Deposit credits account with value minted outside the ledger.
func (s *Store) Deposit(ctx context.Context, account domain.Account, amount domain.Amount) error {
	if err := credit(ctx, s.pool, account, amount); err != nil {
		return mapError(err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the Client.
func (s *Store) Close() error { return nil }

// tx implements domain.Tx. When lock is set, single-row reads use
// SELECT ... FOR UPDATE.
type tx struct {
	q    querier
	lock bool
}

func (t *tx) forUpdate() string {
	if t.lock {
		return " FOR UPDATE"
	}
	return ""
}

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}
