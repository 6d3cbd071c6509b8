package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	MinMortgagePrincipal = 10_000
	MinMortgageTermMonth = 6
	MaxMortgageTermMonth = 500
)

// MortgageInterest is the fixed multiplier applied to every mortgage.
var MortgageInterest = decimal.RequireFromString("1.05")

type MortgageQuote struct {
	Principal      Money `json:"principal"`
	TermMonths     int   `json:"term_months"`
	Monthly        Money `json:"monthly_repayment"`
	TotalRepayable Money `json:"total_repayable"`
}

// QuoteMortgage prices a mortgage. The monthly figure is principal/term*1.05 rounded up to a
// whole pound, and the total repayable is monthly*term.
func QuoteMortgage(principal Money, termMonths int) (MortgageQuote, error) {
	if principal.Major < MinMortgagePrincipal {
		return MortgageQuote{}, fmt.Errorf("%w: got %s", ErrPrincipalTooLow, principal)
	}
	if termMonths < MinMortgageTermMonth || termMonths > MaxMortgageTermMonth {
		return MortgageQuote{}, fmt.Errorf("%w: got %d", ErrTermOutOfRange, termMonths)
	}

	// multiply before dividing so an exact quotient stays exact
	monthly := principal.Decimal().
		Mul(MortgageInterest).
		Div(decimal.NewFromInt(int64(termMonths))).
		Ceil().
		IntPart()

	return MortgageQuote{
		Principal:      principal,
		TermMonths:     termMonths,
		Monthly:        Pounds(monthly),
		TotalRepayable: Pounds(monthly * int64(termMonths)),
	}, nil
}

// PaymentOutcome is what a successful monthly payment reports back.
type PaymentOutcome struct {
	SourceID        int   `json:"source_id"`
	MortgageID      int   `json:"mortgage_id"`
	Paid            Money `json:"paid"`
	SourceBalance   Money `json:"source_balance"`
	MortgageBalance Money `json:"mortgage_balance"`
	MonthsRemaining int   `json:"months_remaining"`
}

// ApplyMonthlyPayment moves one repayment from src to mortgage. Both new states are computed
// before either account is touched, so on error neither account has changed.
func ApplyMonthlyPayment(mortgage, src *Account) (PaymentOutcome, error) {
	if mortgage.Kind != KindMortgage {
		return PaymentOutcome{}, fmt.Errorf("%w: monthly payment on %s account", ErrOperationNotSupported, mortgage.Kind)
	}
	if !IsEligibleSource(mortgage, src) {
		return PaymentOutcome{}, ErrInvalidSelection
	}

	terms := mortgage.Mortgage
	if terms.MonthsRemaining <= 0 {
		return PaymentOutcome{}, fmt.Errorf("account %d: %w", mortgage.ID, ErrMortgageSettled)
	}

	srcBalance, err := src.Balance.Subtract(terms.MonthlyRepayment)
	if err != nil {
		return PaymentOutcome{}, err
	}
	owed, err := mortgage.Balance.Subtract(terms.MonthlyRepayment)
	if err != nil {
		return PaymentOutcome{}, fmt.Errorf("account %d owes %s: %w", mortgage.ID, mortgage.Balance, ErrMortgageSettled)
	}

	src.Balance = srcBalance
	mortgage.Balance = owed
	terms.MonthsRemaining--

	return PaymentOutcome{
		SourceID:        src.ID,
		MortgageID:      mortgage.ID,
		Paid:            terms.MonthlyRepayment,
		SourceBalance:   src.Balance,
		MortgageBalance: mortgage.Balance,
		MonthsRemaining: terms.MonthsRemaining,
	}, nil
}
