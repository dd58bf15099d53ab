package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is a 20-byte address that owns markets, positions and ledger
// balances. The zero address is the null identity.
type Identity = common.Address

// ZeroIdentity is the null identity.
var ZeroIdentity Identity

// ParseIdentity parses a hex address (with or without 0x prefix).
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return ZeroIdentity, fmt.Errorf("domain: invalid identity %q", s)
	}
	return common.HexToAddress(s), nil
}

// Account is a ledger key. Users, market escrows and fee sinks all live in
// the same ledger namespace.
//
//	user:<0x address>
//	escrow:<market id>
//	fee:<0x address>
type Account string

const (
	accountUser   = "user:"
	accountEscrow = "escrow:"
	accountFee    = "fee:"
)

// UserAccount returns the spendable account of an identity.
func UserAccount(id Identity) Account {
	return Account(accountUser + strings.ToLower(id.Hex()))
}

// EscrowAccount returns the escrow account holding a market's pool.
func EscrowAccount(marketID uint64) Account {
	return Account(accountEscrow + strconv.FormatUint(marketID, 10))
}

// FeeAccount returns the account fees are credited to for a fee sink identity.
func FeeAccount(sink Identity) Account {
	return Account(accountFee + strings.ToLower(sink.Hex()))
}

// ParseAccount validates the textual form of an account.
func ParseAccount(s string) (Account, error) {
	switch {
	case strings.HasPrefix(s, accountUser):
		id, err := ParseIdentity(strings.TrimPrefix(s, accountUser))
		if err != nil {
			return "", err
		}
		return UserAccount(id), nil
	case strings.HasPrefix(s, accountFee):
		id, err := ParseIdentity(strings.TrimPrefix(s, accountFee))
		if err != nil {
			return "", err
		}
		return FeeAccount(id), nil
	case strings.HasPrefix(s, accountEscrow):
		id, err := strconv.ParseUint(strings.TrimPrefix(s, accountEscrow), 10, 64)
		if err != nil {
			return "", fmt.Errorf("domain: invalid escrow account %q: %w", s, err)
		}
		return EscrowAccount(id), nil
	default:
		return "", fmt.Errorf("domain: unknown account kind %q", s)
	}
}

func (a Account) String() string { return string(a) }
