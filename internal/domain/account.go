package domain

import (
	"fmt"
	"strings"
)

type AccountKind string

const (
	KindCurrent  AccountKind = "Current"
	KindSavings  AccountKind = "Savings"
	KindMortgage AccountKind = "Mortgage"
)

func ParseAccountKind(s string) (AccountKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "current":
		return KindCurrent, nil
	case "savings":
		return KindSavings, nil
	case "mortgage":
		return KindMortgage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Customer is the (name, credential) pair shared by all accounts of one person.
// It is a join key, not a stored entity of its own.
type Customer struct {
	Name       string `json:"name"`
	Credential string `json:"-"`
}

func (c Customer) Owns(a *Account) bool {
	return a != nil && a.OwnerName == c.Name && a.OwnerCredential == c.Credential
}

type CurrentTerms struct {
	ForeignExchangeFeePercent int `json:"foreign_exchange_fee_percent"`
}

type SavingsTerms struct {
	InterestRatePercent int `json:"interest_rate_percent"`
}

type MortgageTerms struct {
	MonthlyRepayment        Money `json:"monthly_repayment"`
	MonthsRemaining         int   `json:"months_remaining"`
	FlaggedForMissedPayment bool  `json:"flagged_for_missed_payment"`
}

// Account is a closed sum over the three account kinds: the shared fields live here and
// exactly one of Current, Savings or Mortgage is set, matching Kind.
type Account struct {
	ID              int         `json:"id"`
	OwnerName       string      `json:"owner_name"`
	OwnerCredential string      `json:"-"`
	Balance         Money       `json:"balance"`
	Kind            AccountKind `json:"kind"`

	Current  *CurrentTerms  `json:"current,omitempty"`
	Savings  *SavingsTerms  `json:"savings,omitempty"`
	Mortgage *MortgageTerms `json:"mortgage,omitempty"`
}

func NewCurrentAccount(id int, owner Customer, fee int) *Account {
	return &Account{
		ID:              id,
		OwnerName:       owner.Name,
		OwnerCredential: owner.Credential,
		Kind:            KindCurrent,
		Current:         &CurrentTerms{ForeignExchangeFeePercent: fee},
	}
}

func NewSavingsAccount(id int, owner Customer, rate int) *Account {
	return &Account{
		ID:              id,
		OwnerName:       owner.Name,
		OwnerCredential: owner.Credential,
		Kind:            KindSavings,
		Savings:         &SavingsTerms{InterestRatePercent: rate},
	}
}

// NewMortgageAccount opens a mortgage from an accepted quote: the balance is the full amount
// repayable and nothing is flagged.
func NewMortgageAccount(id int, owner Customer, q MortgageQuote) *Account {
	return &Account{
		ID:              id,
		OwnerName:       owner.Name,
		OwnerCredential: owner.Credential,
		Balance:         q.TotalRepayable,
		Kind:            KindMortgage,
		Mortgage: &MortgageTerms{
			MonthlyRepayment: q.Monthly,
			MonthsRemaining:  q.TermMonths,
		},
	}
}

func (a *Account) Owner() Customer {
	return Customer{Name: a.OwnerName, Credential: a.OwnerCredential}
}

// Validate checks that the variant payload matches Kind and the balance is normalised.
func (a *Account) Validate() error {
	if a.Balance.Minor < 0 || a.Balance.Minor >= minorPerMajor {
		return fmt.Errorf("account %d: pence balance %d out of range", a.ID, a.Balance.Minor)
	}
	switch a.Kind {
	case KindCurrent:
		if a.Current == nil || a.Savings != nil || a.Mortgage != nil {
			return fmt.Errorf("account %d: current account payload mismatch", a.ID)
		}
	case KindSavings:
		if a.Savings == nil || a.Current != nil || a.Mortgage != nil {
			return fmt.Errorf("account %d: savings account payload mismatch", a.ID)
		}
	case KindMortgage:
		if a.Mortgage == nil || a.Current != nil || a.Savings != nil {
			return fmt.Errorf("account %d: mortgage account payload mismatch", a.ID)
		}
		if a.Mortgage.MonthsRemaining < 0 {
			return fmt.Errorf("account %d: negative months remaining", a.ID)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, a.Kind)
	}
	return nil
}

// Clone returns a deep copy; callers outside the ledger only ever see clones.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Current != nil {
		c := *a.Current
		cp.Current = &c
	}
	if a.Savings != nil {
		s := *a.Savings
		cp.Savings = &s
	}
	if a.Mortgage != nil {
		m := *a.Mortgage
		cp.Mortgage = &m
	}
	return &cp
}

// Deposit adds amount to the balance. Mortgage balances are the principal owed and cannot
// be topped up.
func Deposit(a *Account, amount Money) (Money, error) {
	if a.Kind == KindMortgage {
		return a.Balance, fmt.Errorf("%w: deposit into %s account", ErrOperationNotSupported, a.Kind)
	}
	if !amount.IsPositive() {
		return a.Balance, fmt.Errorf("%w: deposit must be positive", ErrInvalidAmount)
	}
	a.Balance = a.Balance.Add(amount)
	return a.Balance, nil
}

// Withdraw removes amount from the balance, leaving it untouched on ErrInsufficientFunds.
func Withdraw(a *Account, amount Money) (Money, error) {
	if a.Kind == KindMortgage {
		return a.Balance, fmt.Errorf("%w: withdraw from %s account", ErrOperationNotSupported, a.Kind)
	}
	if !amount.IsPositive() {
		return a.Balance, fmt.Errorf("%w: withdrawal must be positive", ErrInvalidAmount)
	}
	next, err := a.Balance.Subtract(amount)
	if err != nil {
		return a.Balance, fmt.Errorf("account %d balance %s: %w", a.ID, a.Balance, ErrInsufficientFunds)
	}
	a.Balance = next
	return a.Balance, nil
}

func SetForeignExchangeFee(a *Account, c RateCategory) error {
	if a.Kind != KindCurrent {
		return fmt.Errorf("%w: foreign exchange fee on %s account", ErrOperationNotSupported, a.Kind)
	}
	fee, err := ForeignExchangeFee(c)
	if err != nil {
		return err
	}
	a.Current.ForeignExchangeFeePercent = fee
	return nil
}

func SetInterestRate(a *Account, c RateCategory) error {
	if a.Kind != KindSavings {
		return fmt.Errorf("%w: interest rate on %s account", ErrOperationNotSupported, a.Kind)
	}
	rate, err := InterestRate(c)
	if err != nil {
		return err
	}
	a.Savings.InterestRatePercent = rate
	return nil
}

// SetMissedPaymentFlag is a manual admin annotation; nothing in the ledger sets it automatically.
func SetMissedPaymentFlag(a *Account, flagged bool) error {
	if a.Kind != KindMortgage {
		return fmt.Errorf("%w: missed payment flag on %s account", ErrOperationNotSupported, a.Kind)
	}
	a.Mortgage.FlaggedForMissedPayment = flagged
	return nil
}

func MonthsRemaining(a *Account) (int, error) {
	if a.Kind != KindMortgage {
		return 0, fmt.Errorf("%w: months remaining on %s account", ErrOperationNotSupported, a.Kind)
	}
	return a.Mortgage.MonthsRemaining, nil
}

// IsEligibleSource reports whether src can cover one repayment of mortgage: a current account
// of the same customer whose balance is at least the monthly repayment.
func IsEligibleSource(mortgage, src *Account) bool {
	if mortgage == nil || src == nil || mortgage.Kind != KindMortgage || src.Kind != KindCurrent {
		return false
	}
	if !mortgage.Owner().Owns(src) {
		return false
	}
	return src.Balance.Cmp(mortgage.Mortgage.MonthlyRepayment) >= 0
}
