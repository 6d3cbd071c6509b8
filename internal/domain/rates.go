package domain

import (
	"fmt"
	"strings"
)

// RateCategory is the admin-facing tier used for both foreign exchange fees and savings interest.
type RateCategory string

const (
	CategoryStandard RateCategory = "standard"
	CategoryPremium  RateCategory = "premium"
	CategoryBest     RateCategory = "best"
)

var (
	foreignExchangeFees = map[RateCategory]int{
		CategoryStandard: 3,
		CategoryPremium:  1,
		CategoryBest:     0,
	}
	savingsInterestRates = map[RateCategory]int{
		CategoryStandard: 4,
		CategoryPremium:  5,
		CategoryBest:     7,
	}
)

func ParseRateCategory(s string) (RateCategory, error) {
	c := RateCategory(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := foreignExchangeFees[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// ForeignExchangeFee returns the fee percentage for a current account category.
func ForeignExchangeFee(c RateCategory) (int, error) {
	fee, ok := foreignExchangeFees[c]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, c)
	}
	return fee, nil
}

// InterestRate returns the interest percentage for a savings account category.
func InterestRate(c RateCategory) (int, error) {
	rate, ok := savingsInterestRates[c]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, c)
	}
	return rate, nil
}

// CategoryForFee is the reverse lookup of ForeignExchangeFee. ok is false for a fee
// that no category maps to.
func CategoryForFee(fee int) (RateCategory, bool) {
	return reverseLookup(foreignExchangeFees, fee)
}

func CategoryForRate(rate int) (RateCategory, bool) {
	return reverseLookup(savingsInterestRates, rate)
}

func reverseLookup(table map[RateCategory]int, value int) (RateCategory, bool) {
	for c, v := range table {
		if v == value {
			return c, true
		}
	}
	return "", false
}
