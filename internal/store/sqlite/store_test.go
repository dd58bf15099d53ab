package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
	"github.com/alanyoungcy/peerstake/internal/settlement"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesTables(t *testing.T) {
	s := openTest(t)
	for _, table := range []string{"schema_version", "fee_schedule", "markets", "positions", "balances"} {
		var count int
		row := s.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table)
		if err := row.Scan(&count); err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}
	if err := migrate(s.db); err != nil {
		t.Errorf("second migrate: %v", err)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "peerstake.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	acct := domain.UserAccount(domain.Identity{7})
	if err := s.Deposit(ctx, acct, 42); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if bal, _ := s.Balance(ctx, acct); bal != 42 {
		t.Errorf("balance after reopen = %d", bal)
	}
}

func TestLedger(t *testing.T) {
	s := openTest(t)
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
		t.Fatalf("InTx err = %v", err)
	}
	if bal, _ := s.Balance(ctx, a); bal != 100 {
		t.Errorf("balance after rollback = %d", bal)
	}

	if err := s.Deposit(ctx, b, math.MaxUint64); err != nil {
		t.Fatalf("Deposit max: %v", err)
	}
	err = s.InTx(ctx, func(tx domain.Tx) error { return tx.Transfer(ctx, a, b, 1) })
	if !errors.Is(err, domain.ErrOverflow) {
		t.Errorf("credit overflow err = %v", err)
	}
}

func TestMarkets_ListOrderAndFilter(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	creator := domain.Identity{3}
	ids := []uint64{10, 2, math.MaxUint64 - 1}
	err := s.InTx(ctx, func(tx domain.Tx) error {
		for _, id := range ids {
			status := domain.MarketStatusOpen
			if id == 2 {
				status = domain.MarketStatusCancelled
			}
			m := domain.Market{ID: id, Creator: creator, Status: status, Options: []string{"a", "b"}}
			if err := tx.SaveMarket(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	all, err := s.ListMarkets(ctx, domain.MarketFilter{})
	if err != nil {
		t.Fatalf("ListMarkets: %v", err)
	}
	if len(all) != 3 || all[0].ID != 2 || all[1].ID != 10 || all[2].ID != math.MaxUint64-1 {
		t.Errorf("order = %+v", all)
	}
	open, _ := s.ListMarkets(ctx, domain.MarketFilter{
		Statuses: []domain.MarketStatus{domain.MarketStatusOpen},
		Creator:  &creator,
		ListOpts: domain.ListOpts{Offset: 1},
	})
	if len(open) != 1 || open[0].ID != math.MaxUint64-1 {
		t.Errorf("filtered = %+v", open)
	}
	if _, err := s.GetMarket(ctx, 99); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("GetMarket err = %v", err)
	}
}

func TestEngine_OnSQLite(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()
	admin, alice, bob := domain.Identity{0xa1}, domain.Identity{0xa2}, domain.Identity{0xa3}

	eng := settlement.NewEngine(s, settlement.Params{GracePeriod: settlement.DefaultGracePeriod, MinStake: 1}, nil).
		WithClock(domain.ClockFunc(func() time.Time { return now }))

	if _, err := eng.InitializeFeeSchedule(ctx, admin, admin, domain.FeeRates{FeeSink: admin, ClearingFeeBps: 100}); err != nil {
		t.Fatalf("InitializeFeeSchedule: %v", err)
	}
	for _, u := range []domain.Identity{alice, bob} {
		if err := s.Deposit(ctx, domain.UserAccount(u), 1_000); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
	}

	m, err := eng.CreateMarket(ctx, alice, settlement.MarketParams{
		Question:        "rain?",
		Options:         []string{"yes", "no"},
		StakeAmount:     100,
		BetDeadline:     now.Add(time.Hour),
		ResolveTime:     now.Add(2 * time.Hour),
		ChallengeWindow: time.Minute,
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	if _, err := eng.PlaceBet(ctx, alice, m.ID, 0, 0); err != nil {
		t.Fatalf("PlaceBet alice: %v", err)
	}
	if _, err := eng.PlaceBet(ctx, bob, m.ID, 1, 0); err != nil {
		t.Fatalf("PlaceBet bob: %v", err)
	}

	now = now.Add(90 * time.Minute)
	if _, err := eng.ProposeOutcome(ctx, alice, m.ID, 0); err != nil {
		t.Fatalf("ProposeOutcome: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := eng.FinalizeSettlement(ctx, alice, m.ID); err != nil {
		t.Fatalf("FinalizeSettlement: %v", err)
	}
	payout, err := eng.ClaimPrize(ctx, alice, m.ID)
	if err != nil {
		t.Fatalf("ClaimPrize: %v", err)
	}
	if payout.Net != 198 || payout.Fee != 2 {
		t.Errorf("payout = %+v", payout)
	}
	if bal, _ := s.Balance(ctx, domain.UserAccount(alice)); bal != 1_098 {
		t.Errorf("alice = %d, want 1098", bal)
	}
	if bal, _ := s.Balance(ctx, domain.EscrowAccount(m.ID)); bal != 0 {
		t.Errorf("escrow = %d", bal)
	}
}

func TestCreateFeeSchedule_Once(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	create := func(admin byte) error {
		return s.InTx(ctx, func(tx domain.Tx) error {
			return tx.CreateFeeSchedule(ctx, domain.FeeSchedule{Admin: domain.Identity{admin}, NextMarketID: 1})
		})
	}
	if err := create(1); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := create(2); !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Fatalf("second create err = %v", err)
	}
	fs, err := s.GetFeeSchedule(ctx)
	if err != nil || fs.Admin != (domain.Identity{1}) {
		t.Errorf("fee schedule = %+v, %v", fs, err)
	}
}
