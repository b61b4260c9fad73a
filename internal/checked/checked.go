// Package checked provides integer arithmetic that reports overflow instead of
// wrapping around.
package checked

import (
	"errors"
	"math"
	"math/bits"
)

var (
	ErrOverflow  = errors.New("arithmetic overflow")
	ErrUnderflow = errors.New("arithmetic underflow")
)

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrUnderflow.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrUnderflow
	}
	return diff, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// AddInt64 adds two signed values, used for timestamp offsets.
func AddInt64(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Progress is the sold percentage of a raffle, capped at 100.
func Progress(entries uint64, maxTickets uint32) (uint32, error) {
	if maxTickets == 0 {
		return 0, nil
	}
	if entries >= uint64(maxTickets) {
		return 100, nil
	}
	scaled, err := Mul(entries, 100)
	if err != nil {
		return 0, err
	}
	return uint32(scaled / uint64(maxTickets)), nil
}
