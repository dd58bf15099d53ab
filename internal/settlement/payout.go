package settlement

import (
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// Payout is the breakdown of one winning claim.
type Payout struct {
	Share domain.Amount `json:"share"`
	Fee   domain.Amount `json:"fee"`
	Net   domain.Amount `json:"net"`
}

// mulDiv returns floor(x*y/d) using a 256-bit intermediate. It fails with
// ErrOverflow when the quotient does not fit an Amount.
func mulDiv(x, y, d uint64) (domain.Amount, error) {
	if d == 0 {
		return 0, domain.ErrOverflow
	}
	z, overflow := new(uint256.Int).MulDivOverflow(
		uint256.NewInt(x), uint256.NewInt(y), uint256.NewInt(d),
	)
	if overflow || !z.IsUint64() {
		return 0, domain.ErrOverflow
	}
	return domain.Amount(z.Uint64()), nil
}

// ShareOf returns floor(totalPool*amount/winningPool).
func ShareOf(totalPool, amount, winningPool domain.Amount) (domain.Amount, error) {
	if winningPool == 0 {
		return 0, domain.ErrNoWinners
	}
	return mulDiv(uint64(totalPool), uint64(amount), uint64(winningPool))
}

// FeeOf returns floor(amount*bps/10000).
func FeeOf(amount domain.Amount, bps uint16) (domain.Amount, error) {
	if bps > domain.BPSDenominator {
		return 0, domain.ErrInvalidFeeBps
	}
	return mulDiv(uint64(amount), uint64(bps), domain.BPSDenominator)
}

// ComputePayout applies the clearing fee to a winner's proportional share.
// The fee is taken from the share, not from the principal.
func ComputePayout(totalPool, amount, winningPool domain.Amount, clearingBps uint16) (Payout, error) {
	share, err := ShareOf(totalPool, amount, winningPool)
	if err != nil {
		return Payout{}, err
	}
	fee, err := FeeOf(share, clearingBps)
	if err != nil {
		return Payout{}, err
	}
	net, err := share.Sub(fee)
	if err != nil {
		return Payout{}, err
	}
	return Payout{Share: share, Fee: fee, Net: net}, nil
}
