package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const minorPerMajor = 100

// Money is an amount of pounds and pence. Minor is always kept in [0,99].
type Money struct {
	Major int64 `json:"pounds"`
	Minor int64 `json:"pence"`
}

// NewMoney builds a Money value, carrying or borrowing minor units into major ones.
func NewMoney(major, minor int64) Money {
	return Money{Major: major, Minor: minor}.normalize()
}

// Pounds returns a whole-pound amount.
func Pounds(major int64) Money {
	return Money{Major: major}
}

func (m Money) normalize() Money {
	for m.Minor >= minorPerMajor {
		m.Minor -= minorPerMajor
		m.Major++
	}
	for m.Minor < 0 {
		m.Minor += minorPerMajor
		m.Major--
	}
	return m
}

func (m Money) Add(other Money) Money {
	sum := Money{Major: m.Major + other.Major, Minor: m.Minor + other.Minor}
	if sum.Minor >= minorPerMajor {
		sum.Minor -= minorPerMajor
		sum.Major++
	}
	return sum
}

// Subtract returns m - other. It fails with ErrInsufficientFunds when other is larger than m,
// so a Money produced by Subtract is never negative.
func (m Money) Subtract(other Money) (Money, error) {
	if m.Cmp(other) < 0 {
		return Money{}, fmt.Errorf("%w: cannot take %s from %s", ErrInsufficientFunds, other, m)
	}
	diff := Money{Major: m.Major, Minor: m.Minor}
	if diff.Minor < other.Minor {
		diff.Major--
		diff.Minor += minorPerMajor
	}
	diff.Major -= other.Major
	diff.Minor -= other.Minor
	return diff, nil
}

// Cmp compares major units first and minor units as the tiebreak.
// It returns -1, 0 or +1.
func (m Money) Cmp(other Money) int {
	switch {
	case m.Major < other.Major:
		return -1
	case m.Major > other.Major:
		return 1
	case m.Minor < other.Minor:
		return -1
	case m.Minor > other.Minor:
		return 1
	default:
		return 0
	}
}

func (m Money) IsZero() bool {
	return m.Major == 0 && m.Minor == 0
}

func (m Money) IsPositive() bool {
	return m.Major > 0 || (m.Major == 0 && m.Minor > 0)
}

// Decimal returns the amount as an exact decimal number of pounds.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Major*minorPerMajor+m.Minor, -2)
}

func (m Money) String() string {
	return fmt.Sprintf("£%d.%02d", m.Major, m.Minor)
}

// ParseMoney reads a non-negative decimal amount such as "12.5", "£50.75" or "1000".
// At most two fractional digits are accepted.
func ParseMoney(raw string) (Money, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "£")
	if s == "" {
		return Money{}, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, raw)
	}
	if !d.Equal(d.Truncate(2)) {
		return Money{}, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidAmount, raw)
	}

	pence := d.Shift(2)
	if !pence.IsInteger() || pence.GreaterThan(decimal.New(1, 18)) {
		return Money{}, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, raw)
	}
	total := pence.IntPart()

	return Money{Major: total / minorPerMajor, Minor: total % minorPerMajor}, nil
}
