package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"snb_ledger/internal/domain"
)

var (
	ErrNonPositiveAmount = fmt.Errorf("%w: amount must be more than £0.00", domain.ErrInvalidAmount)
	ErrInvalidTerm       = fmt.Errorf("%w: enter a whole number of months", domain.ErrValidation)
	ErrInvalidName       = fmt.Errorf("%w: names must be non-empty with no spaces", domain.ErrInvalidCustomer)
	ErrInvalidPassword   = fmt.Errorf("%w: password must be non-empty with no spaces", domain.ErrInvalidCustomer)
	ErrPasswordTaken     = fmt.Errorf("%w: password already in use", domain.ErrInvalidCustomer)
)

// InputValidator holds the predicates behind every re-prompt in the customer flows.
type InputValidator struct {
	amountRegex *regexp.Regexp
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		amountRegex: regexp.MustCompile(`^£?\s*[0-9]*\.?[0-9]+$`),
	}
}

// ParseUserAmount accepts a strictly positive decimal string with at most two fractional digits.
func (v *InputValidator) ParseUserAmount(raw string) (domain.Money, error) {
	s := strings.TrimSpace(raw)
	if !v.amountRegex.MatchString(s) {
		return domain.Money{}, fmt.Errorf("%w: %q is not a currency amount (e.g. 123.45)", domain.ErrInvalidAmount, raw)
	}

	m, err := domain.ParseMoney(s)
	if err != nil {
		return domain.Money{}, err
	}
	if !m.IsPositive() {
		return domain.Money{}, ErrNonPositiveAmount
	}
	return m, nil
}

func (v *InputValidator) ParseTermMonths(raw string) (int, error) {
	term, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTerm, raw)
	}
	if term < domain.MinMortgageTermMonth || term > domain.MaxMortgageTermMonth {
		return 0, fmt.Errorf("%w: got %d", domain.ErrTermOutOfRange, term)
	}
	return term, nil
}

// CustomerName joins first and last name with an underscore after checking both parts.
func (v *InputValidator) CustomerName(first, last string) (string, error) {
	var errs []error
	if first == "" || strings.ContainsAny(first, " \t") {
		errs = append(errs, fmt.Errorf("%w: first name %q", ErrInvalidName, first))
	}
	if last == "" || strings.ContainsAny(last, " \t") {
		errs = append(errs, fmt.Errorf("%w: last name %q", ErrInvalidName, last))
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return first + "_" + last, nil
}

// ValidatePassword rejects empty passwords, passwords with spaces, and passwords already
// used as a key in the customer records.
func (v *InputValidator) ValidatePassword(password string, taken func(string) bool) error {
	if password == "" || strings.ContainsAny(password, " \t") {
		return ErrInvalidPassword
	}
	if taken != nil && taken(password) {
		return ErrPasswordTaken
	}
	return nil
}
