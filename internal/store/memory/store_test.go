package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

func TestInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	user := domain.UserAccount(domain.Identity{1})
	escrow := domain.EscrowAccount(1)
	if err := s.Deposit(ctx, user, 100); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.Transfer(ctx, user, escrow, 60); err != nil {
			return err
		}
		if err := tx.SaveMarket(ctx, domain.Market{ID: 1, Status: domain.MarketStatusOpen}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err = %v", err)
	}
	if bal, _ := s.Balance(ctx, user); bal != 100 {
		t.Errorf("user balance = %d, want 100", bal)
	}
	if _, err := s.GetMarket(ctx, 1); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("GetMarket err = %v, want not found", err)
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b := domain.UserAccount(domain.Identity{1}), domain.UserAccount(domain.Identity{2})
	_ = s.Deposit(ctx, a, 10)

	err := s.InTx(ctx, func(tx domain.Tx) error { return tx.Transfer(ctx, a, b, 11) })
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("overdraw err = %v", err)
	}
	err = s.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.Transfer(ctx, a, b, 0); err != nil {
			return err
		}
		return tx.Transfer(ctx, a, b, 10)
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if bal, _ := s.Balance(ctx, b); bal != 10 {
		t.Errorf("b = %d, want 10", bal)
	}
	if bal, _ := s.Balance(ctx, a); bal != 0 {
		t.Errorf("a = %d, want 0", bal)
	}
}

func TestMarketsAndPositions(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Unix(100, 0)
	err := s.InTx(ctx, func(tx domain.Tx) error {
		for id := uint64(3); id >= 1; id-- {
			status := domain.MarketStatusOpen
			if id == 2 {
				status = domain.MarketStatusSettled
			}
			if err := tx.SaveMarket(ctx, domain.Market{ID: id, Status: status, Options: []string{"a", "b"}}); err != nil {
				return err
			}
		}
		for i, u := range []domain.Identity{{9}, {8}} {
			p := domain.Position{MarketID: 1, User: u, Amount: 5, CreatedAt: now.Add(time.Duration(i) * time.Second)}
			if err := tx.SavePosition(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	open, err := s.ListMarkets(ctx, domain.MarketFilter{Statuses: []domain.MarketStatus{domain.MarketStatusOpen}})
	if err != nil {
		t.Fatalf("ListMarkets: %v", err)
	}
	if len(open) != 2 || open[0].ID != 1 || open[1].ID != 3 {
		t.Errorf("open markets = %+v", open)
	}
	page, _ := s.ListMarkets(ctx, domain.MarketFilter{ListOpts: domain.ListOpts{Limit: 1, Offset: 1}})
	if len(page) != 1 || page[0].ID != 2 {
		t.Errorf("page = %+v", page)
	}

	positions, err := s.ListPositions(ctx, 1)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(positions) != 2 || positions[0].User != (domain.Identity{9}) {
		t.Errorf("positions = %+v", positions)
	}
	if _, err := s.GetPosition(ctx, 2, domain.Identity{9}); !errors.Is(err, domain.ErrPositionNotFound) {
		t.Errorf("GetPosition err = %v", err)
	}

	// Values handed out are copies.
	m, _ := s.GetMarket(ctx, 1)
	m.Options[0] = "mutated"
	again, _ := s.GetMarket(ctx, 1)
	if again.Options[0] != "a" {
		t.Error("GetMarket returned shared slice")
	}
}

func TestFeeSchedule_NotInitialized(t *testing.T) {
	if _, err := New().GetFeeSchedule(context.Background()); !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("err = %v", err)
	}
}

func TestCreateFeeSchedule_Once(t *testing.T) {
	s := New()
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
	fs, _ := s.GetFeeSchedule(ctx)
	if fs.Admin != (domain.Identity{1}) {
		t.Errorf("admin overwritten: %s", fs.Admin.Hex())
	}
}
