package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries. Since
// and Until apply to time-ordered logs only.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Ledger moves value between accounts. Transfer is atomic and fails with
// ErrInsufficientFunds when from cannot cover amount; a zero amount is a no-op.
type Ledger interface {
	Balance(ctx context.Context, account Account) (Amount, error)
	Transfer(ctx context.Context, from, to Account, amount Amount) error
}

// Tx is the view of persistent state available inside one atomic operation.
// Reads of the fee schedule, a market or a position lock that record until
// the transaction ends.
type Tx interface {
	Ledger

	FeeSchedule(ctx context.Context) (FeeSchedule, error)
	// CreateFeeSchedule inserts the first fee schedule. It returns
	// ErrAlreadyInitialized when one exists, including one committed by a
	// concurrent transaction.
	CreateFeeSchedule(ctx context.Context, fs FeeSchedule) error
	SaveFeeSchedule(ctx context.Context, fs FeeSchedule) error

	Market(ctx context.Context, id uint64) (Market, error)
	SaveMarket(ctx context.Context, m Market) error
	ListMarkets(ctx context.Context, f MarketFilter) ([]Market, error)

	Position(ctx context.Context, marketID uint64, user Identity) (Position, error)
	SavePosition(ctx context.Context, p Position) error
	Positions(ctx context.Context, marketID uint64) ([]Position, error)
}

// Store owns markets, positions, the fee schedule and the ledger.
// InTx commits only when fn returns nil; any error rolls back every write,
// including transfers.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetFeeSchedule(ctx context.Context) (FeeSchedule, error)
	GetMarket(ctx context.Context, id uint64) (Market, error)
	ListMarkets(ctx context.Context, f MarketFilter) ([]Market, error)
	GetPosition(ctx context.Context, marketID uint64, user Identity) (Position, error)
	ListPositions(ctx context.Context, marketID uint64) ([]Position, error)
	Balance(ctx context.Context, account Account) (Amount, error)

	// Deposit credits value from outside the system (tests, dev faucet).
	Deposit(ctx context.Context, account Account, amount Amount) error
	Close() error
}

// Clock is a read-only time source.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// EventPublisher receives committed events.
type EventPublisher interface {
	Publish(ctx context.Context, events []Event) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Page applies opts to an already ordered slice.
func Page[T any](items []T, opts ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
