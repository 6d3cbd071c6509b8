package repository

import (
	"context"
	"errors"

	"snb_ledger/internal/domain"
)

// AccountRepository is the live account set. Accounts keep the order they were added in.
type AccountRepository interface {
	Save(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id int) (*domain.Account, error)
	GetByCustomer(ctx context.Context, customer domain.Customer) ([]*domain.Account, error)
	GetAll(ctx context.Context) ([]*domain.Account, error)
	IDs(ctx context.Context) (map[int]struct{}, error)
	Update(ctx context.Context, accounts ...*domain.Account) error
	Delete(ctx context.Context, id int) error
	Replace(ctx context.Context, accounts []*domain.Account) error
}

// CustomerRepository maps each password (the unique key) to a customer name.
type CustomerRepository interface {
	Save(ctx context.Context, customer domain.Customer) error
	GetByCredential(ctx context.Context, credential string) (domain.Customer, error)
	Exists(ctx context.Context, credential string) (bool, error)
	Records(ctx context.Context) (map[string]string, error)
	Replace(ctx context.Context, records map[string]string) error
}

// Store is the persistence contract: full-replace saves, whole-set loads.
type Store interface {
	LoadAccounts(ctx context.Context) ([]*domain.Account, error)
	SaveAccounts(ctx context.Context, accounts []*domain.Account) error
	LoadCustomers(ctx context.Context) (map[string]string, error)
	SaveCustomers(ctx context.Context, records map[string]string) error
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")

	// ErrRecordsNotFound means the store has no records to load at all.
	ErrRecordsNotFound = errors.New("records not found")
)
