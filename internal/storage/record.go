package storage

import (
	"fmt"
	"log/slog"

	"snb_ledger/internal/domain"
)

// accountRecord is the on-disk shape of one account. Field order is the write order.
type accountRecord struct {
	Number        int    `json:"number"`
	CustomerName  string `json:"c_name"`
	CustomerPass  string `json:"c_pass"`
	PoundsBalance int64  `json:"pounds_balance"`
	PenceBalance  int64  `json:"pence_balance"`
	Category      string `json:"category"`

	ForeignExchangeFee      *int   `json:"foreign_exchange_fee,omitempty"`
	InterestRate            *int   `json:"interest_rate,omitempty"`
	MonthlyRepaymentPounds  *int64 `json:"monthly_repayment_pounds,omitempty"`
	MonthlyRepaymentPence   *int64 `json:"monthly_repayment_pence,omitempty"`
	MonthsRemaining         *int   `json:"months_remaining,omitempty"`
	FlaggedForMissedPayment *bool  `json:"flagged_for_missed_payment,omitempty"`
}

func toRecord(a *domain.Account) accountRecord {
	rec := accountRecord{
		Number:        a.ID,
		CustomerName:  a.OwnerName,
		CustomerPass:  a.OwnerCredential,
		PoundsBalance: a.Balance.Major,
		PenceBalance:  a.Balance.Minor,
		Category:      string(a.Kind),
	}

	switch a.Kind {
	case domain.KindCurrent:
		fee := a.Current.ForeignExchangeFeePercent
		rec.ForeignExchangeFee = &fee
	case domain.KindSavings:
		rate := a.Savings.InterestRatePercent
		rec.InterestRate = &rate
	case domain.KindMortgage:
		m := *a.Mortgage
		rec.MonthlyRepaymentPounds = &m.MonthlyRepayment.Major
		rec.MonthlyRepaymentPence = &m.MonthlyRepayment.Minor
		rec.MonthsRemaining = &m.MonthsRemaining
		rec.FlaggedForMissedPayment = &m.FlaggedForMissedPayment
	}

	return rec
}

func (r accountRecord) toAccount() (*domain.Account, error) {
	owner := domain.Customer{Name: r.CustomerName, Credential: r.CustomerPass}

	var a *domain.Account
	switch domain.AccountKind(r.Category) {
	case domain.KindCurrent:
		if r.ForeignExchangeFee == nil {
			return nil, fmt.Errorf("account %d: missing foreign_exchange_fee", r.Number)
		}
		a = domain.NewCurrentAccount(r.Number, owner, *r.ForeignExchangeFee)
	case domain.KindSavings:
		if r.InterestRate == nil {
			return nil, fmt.Errorf("account %d: missing interest_rate", r.Number)
		}
		a = domain.NewSavingsAccount(r.Number, owner, *r.InterestRate)
	case domain.KindMortgage:
		if r.MonthlyRepaymentPounds == nil || r.MonthlyRepaymentPence == nil || r.MonthsRemaining == nil {
			return nil, fmt.Errorf("account %d: incomplete mortgage terms", r.Number)
		}
		a = &domain.Account{
			ID:              r.Number,
			OwnerName:       owner.Name,
			OwnerCredential: owner.Credential,
			Kind:            domain.KindMortgage,
			Mortgage: &domain.MortgageTerms{
				MonthlyRepayment: domain.Money{Major: *r.MonthlyRepaymentPounds, Minor: *r.MonthlyRepaymentPence},
				MonthsRemaining:  *r.MonthsRemaining,
			},
		}
		if r.FlaggedForMissedPayment != nil {
			a.Mortgage.FlaggedForMissedPayment = *r.FlaggedForMissedPayment
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidKind, r.Category)
	}

	a.Balance = domain.Money{Major: r.PoundsBalance, Minor: r.PenceBalance}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func toRecords(accounts []*domain.Account) []accountRecord {
	records := make([]accountRecord, 0, len(accounts))
	for _, a := range accounts {
		records = append(records, toRecord(a))
	}
	return records
}

// fromRecords converts decoded records, skipping any whose category is not one of the three
// known kinds. Any other malformed record fails the whole load.
func fromRecords(logger *slog.Logger, records []accountRecord) ([]*domain.Account, error) {
	accounts := make([]*domain.Account, 0, len(records))
	for _, rec := range records {
		if !knownCategory(rec.Category) {
			logger.Warn("skipping account with unknown category",
				"number", rec.Number,
				"category", rec.Category,
			)
			continue
		}
		a, err := rec.toAccount()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func knownCategory(category string) bool {
	switch domain.AccountKind(category) {
	case domain.KindCurrent, domain.KindSavings, domain.KindMortgage:
		return true
	}
	return false
}
