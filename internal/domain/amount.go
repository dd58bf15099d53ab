package domain

import (
	"math/bits"
	"strconv"
)

// Amount is an abstract unit of value. The engine never assumes a
// denomination; all arithmetic on it is checked.
type Amount uint64

// BPSDenominator is the basis-point scale (10000 bps = 100%).
const BPSDenominator = 10_000

// Add returns a+b or ErrOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return Amount(sum), nil
}

// Sub returns a-b or ErrOverflow on underflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	diff, borrow := bits.Sub64(uint64(a), uint64(b), 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return Amount(diff), nil
}

// String renders the amount as a base-10 integer.
func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// ParseAmount parses a base-10 integer amount.
func ParseAmount(s string) (Amount, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Amount(n), nil
}
