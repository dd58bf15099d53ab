package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "peerstake"})
	want := "postgres://u:p@db:5432/peerstake?sslmode=disable"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Errorf("explicit DSN = %q", got)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		code      string
		want      error
		retryable bool
	}{
		{codeCheckViolation, domain.ErrOverflow, false},
		{codeDeadlockDetected, domain.ErrLockHeld, true},
		{codeSerializationFailure, domain.ErrLockHeld, true},
	}
	for _, tt := range tests {
		err := fmt.Errorf("postgres: debit: %w", &pgconn.PgError{Code: tt.code})
		if got := mapError(err); !errors.Is(got, tt.want) {
			t.Errorf("mapError(%s) = %v, want %v", tt.code, got, tt.want)
		}
		if retryable(err) != tt.retryable {
			t.Errorf("retryable(%s) = %v", tt.code, !tt.retryable)
		}
	}
	plain := errors.New("other")
	if mapError(plain) != plain {
		t.Error("mapError changed a non-postgres error")
	}
}

// testStore connects to PEERSTAKE_TEST_POSTGRES_DSN, skipping when unset.
// Each test gets a fresh schema.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PEERSTAKE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PEERSTAKE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	client, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(client.Close)

	reset := []string{
		"DROP TABLE IF EXISTS audit_log, balances, positions, markets, fee_schedule, schema_migrations",
		"DROP DOMAIN IF EXISTS u64",
	}
	for _, q := range reset {
		if _, err := client.Pool().Exec(ctx, q); err != nil {
			t.Fatalf("reset: %v", err)
		}
	}
	if err := client.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return NewStore(client.Pool())
}

func TestStore_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()
	creator := domain.Identity{1}
	outcome := 1

	m := domain.Market{
		ID:                 7,
		Creator:            creator,
		Question:           "rain?",
		Options:            []string{"yes", "no"},
		OptionTotals:       []domain.Amount{18_446_744_073_709_551_000, 5},
		OptionParticipants: []uint32{1, 1},
		BetDeadline:        now.Add(time.Hour),
		ResolveTime:        now.Add(2 * time.Hour),
		ChallengeWindow:    10 * time.Minute,
		Resolution:         domain.ResolutionOptimistic,
		Status:             domain.MarketStatusProposed,
		ProposedOutcome:    &outcome,
		Proposer:           &creator,
		TotalPool:          18_446_744_073_709_551_005,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	p := domain.Position{MarketID: 7, User: creator, OptionIndex: 1, Amount: 5, BetCount: 1, CreatedAt: now, UpdatedAt: now}

	err := s.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.SaveMarket(ctx, m); err != nil {
			return err
		}
		return tx.SavePosition(ctx, p)
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	got, err := s.GetMarket(ctx, 7)
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if got.TotalPool != m.TotalPool || got.OptionTotals[0] != m.OptionTotals[0] {
		t.Errorf("amounts lost precision: %+v", got)
	}
	if got.ProposedOutcome == nil || *got.ProposedOutcome != 1 || got.FinalOutcome != nil {
		t.Errorf("outcomes = %v/%v", got.ProposedOutcome, got.FinalOutcome)
	}
	if got.Proposer == nil || *got.Proposer != creator || got.ChallengeWindow != m.ChallengeWindow {
		t.Errorf("market = %+v", got)
	}

	positions, err := s.ListPositions(ctx, 7)
	if err != nil || len(positions) != 1 || positions[0].Amount != 5 {
		t.Fatalf("ListPositions = %+v, %v", positions, err)
	}
	if _, err := s.GetMarket(ctx, 8); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("GetMarket(8) err = %v", err)
	}
}

func TestStore_TransferRollsBack(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	a, b := domain.UserAccount(domain.Identity{1}), domain.EscrowAccount(1)
	if err := s.Deposit(ctx, a, 100); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	err := s.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.Transfer(ctx, a, b, 60); err != nil {
			return err
		}
		return tx.Transfer(ctx, a, b, 60)
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("InTx err = %v, want insufficient funds", err)
	}
	if bal, _ := s.Balance(ctx, a); bal != 100 {
		t.Errorf("balance after rollback = %d", bal)
	}
	if bal, _ := s.Balance(ctx, b); bal != 0 {
		t.Errorf("escrow after rollback = %d", bal)
	}
}

// Both transactions see no schedule before either inserts; the primary key
// must still let only one of them create it.
func TestStore_ConcurrentFeeScheduleCreate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var read sync.WaitGroup
	read.Add(2)
	errs := make([]error, 2)
	var done sync.WaitGroup
	for i := range 2 {
		done.Add(1)
		go func() {
			defer done.Done()
			var once sync.Once
			errs[i] = s.InTx(ctx, func(tx domain.Tx) error {
				_, err := tx.FeeSchedule(ctx)
				once.Do(read.Done)
				if !errors.Is(err, domain.ErrNotInitialized) {
					return fmt.Errorf("read: %w", err)
				}
				read.Wait()
				return tx.CreateFeeSchedule(ctx, domain.FeeSchedule{
					Admin:        domain.Identity{byte(i + 1)},
					FeeSink:      domain.Identity{byte(i + 1)},
					NextMarketID: 1,
				})
			})
		}()
	}
	done.Wait()

	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			winner = i
		case !errors.Is(err, domain.ErrAlreadyInitialized):
			t.Fatalf("tx %d: %v", i, err)
		}
	}
	if winner < 0 || (errs[0] == nil && errs[1] == nil) {
		t.Fatalf("errs = %v, want exactly one success", errs)
	}

	fs, err := s.GetFeeSchedule(ctx)
	if err != nil {
		t.Fatalf("GetFeeSchedule: %v", err)
	}
	if fs.Admin != (domain.Identity{byte(winner + 1)}) {
		t.Errorf("admin = %s, want tx %d's", fs.Admin.Hex(), winner)
	}
}
