package settlement

import (
	"testing"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

func oracleMarket(h *harness, cmp domain.Comparator) domain.Market {
	p := h.defaultMarket()
	p.Question = "BTC above 100k at resolve time?"
	p.Options = []string{"above", "not above"}
	p.Resolution = domain.ResolutionOracle
	p.ChallengeWindow = 0
	p.Oracle = &domain.OracleTerms{Oracle: oracle, TargetPrice: 100_000, Comparator: cmp}
	return h.createMarket(p)
}

func TestOracle_SubmitPrice(t *testing.T) {
	tests := []struct {
		name   string
		cmp    domain.Comparator
		price  uint64
		winner int
	}{
		{"above and holds", domain.ComparatorAbove, 100_001, 0},
		{"above at target fails", domain.ComparatorAbove, 100_000, 1},
		{"below and holds", domain.ComparatorBelow, 99_999, 0},
		{"below fails", domain.ComparatorBelow, 150_000, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, domain.FeeRates{ClearingFeeBps: 100})
			m := oracleMarket(h, tt.cmp)
			h.bet(alice, m.ID, 0, 0)
			h.bet(bob, m.ID, 1, 0)

			h.clock.set(m.ResolveTime)
			settled, err := h.eng.SubmitPrice(h.ctx, oracle, m.ID, tt.price)
			if err != nil {
				t.Fatalf("SubmitPrice: %v", err)
			}
			if settled.Status != domain.MarketStatusSettled || *settled.FinalOutcome != tt.winner {
				t.Fatalf("market = status %s outcome %v, want settled %d", settled.Status, settled.FinalOutcome, tt.winner)
			}
			if *settled.SettlePrice != tt.price || *settled.SettledBy != oracle {
				t.Errorf("settle price/by = %d/%s", *settled.SettlePrice, settled.SettledBy.Hex())
			}

			winner, loser := alice, bob
			if tt.winner == 1 {
				winner, loser = bob, alice
			}
			payout, err := h.eng.ClaimPrize(h.ctx, winner, m.ID)
			if err != nil {
				t.Fatalf("ClaimPrize: %v", err)
			}
			if payout != (Payout{Share: 200, Fee: 2, Net: 198}) {
				t.Errorf("payout = %+v", payout)
			}
			_, err = h.eng.ClaimPrize(h.ctx, loser, m.ID)
			wantErr(t, err, domain.ErrNotWinner)
		})
	}
}

func TestOracle_Guards(t *testing.T) {
	h := newHarness(t, domain.FeeRates{})
	m := oracleMarket(h, domain.ComparatorAbove)
	h.bet(alice, m.ID, 0, 0)
	h.bet(bob, m.ID, 1, 0)

	_, err := h.eng.SubmitPrice(h.ctx, oracle, m.ID, 1)
	wantErr(t, err, domain.ErrNotMature)

	h.clock.set(m.ResolveTime)
	_, err = h.eng.SubmitPrice(h.ctx, alice, m.ID, 1)
	wantErr(t, err, domain.ErrUnauthorizedOracle)
	_, err = h.eng.SubmitPrice(h.ctx, oracle, m.ID, 0)
	wantErr(t, err, domain.ErrInvalidPrice)
	_, err = h.eng.ProposeOutcome(h.ctx, alice, m.ID, 0)
	wantErr(t, err, domain.ErrUnsupportedAction)

	if _, err := h.eng.SubmitPrice(h.ctx, oracle, m.ID, 1); err != nil {
		t.Fatalf("SubmitPrice: %v", err)
	}
	_, err = h.eng.SubmitPrice(h.ctx, oracle, m.ID, 2)
	wantErr(t, err, domain.ErrInvalidMarketStatus)
}

func TestOracle_OneSidedMarketIsCancelled(t *testing.T) {
	h := newHarness(t, domain.FeeRates{})
	m := oracleMarket(h, domain.ComparatorAbove)
	h.bet(alice, m.ID, 0, 0)
	h.bet(carol, m.ID, 0, 0)

	h.clock.set(m.ResolveTime.Add(time.Minute))
	got, err := h.eng.SubmitPrice(h.ctx, oracle, m.ID, 200_000)
	if err != nil {
		t.Fatalf("SubmitPrice: %v", err)
	}
	if got.Status != domain.MarketStatusCancelled || got.FinalOutcome != nil {
		t.Fatalf("market = %+v, want cancelled without outcome", got)
	}
	for _, u := range []domain.Identity{alice, carol} {
		if _, err := h.eng.ClaimCancelledRefund(h.ctx, u, m.ID); err != nil {
			t.Fatalf("ClaimCancelledRefund(%s): %v", u.Hex(), err)
		}
	}
	if bal := h.balance(domain.EscrowAccount(m.ID)); bal != 0 {
		t.Errorf("escrow = %d", bal)
	}
}
