package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every input error the caller can fix by re-entering data.
	ErrValidation = errors.New("validation error")

	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrPrincipalTooLow = fmt.Errorf("%w: the minimum amount you can borrow is £10,000", ErrValidation)
	ErrTermOutOfRange  = fmt.Errorf("%w: repayment terms must range between 6 and 500 months", ErrValidation)
	ErrInvalidCategory = fmt.Errorf("%w: unknown rate category", ErrValidation)
	ErrInvalidKind     = fmt.Errorf("%w: unknown account kind", ErrValidation)
	ErrInvalidCustomer = fmt.Errorf("%w: invalid customer details", ErrValidation)

	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrNoEligibleSource       = errors.New("no eligible current account to make the payment from")
	ErrInvalidSelection       = errors.New("selected account is not an eligible payment source")
	ErrOperationNotSupported  = errors.New("operation not supported for this account kind")
	ErrMortgageSettled        = errors.New("mortgage has no remaining repayments")
	ErrAuthenticationRejected = errors.New("incorrect username or password")
)
