package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"snb_ledger/internal/domain"
	"snb_ledger/internal/repository"
)

type CustomerRepository struct {
	mu      sync.RWMutex
	records map[string]string
}

func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{
		records: make(map[string]string),
	}
}

func (r *CustomerRepository) Save(ctx context.Context, customer domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[customer.Credential]; exists {
		return fmt.Errorf("%w: customer credential", repository.ErrDuplicate)
	}

	r.records[customer.Credential] = customer.Name

	return nil
}

func (r *CustomerRepository) GetByCredential(ctx context.Context, credential string) (domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, exists := r.records[credential]
	if !exists {
		return domain.Customer{}, fmt.Errorf("%w: customer", repository.ErrNotFound)
	}
	return domain.Customer{Name: name, Credential: credential}, nil
}

func (r *CustomerRepository) Exists(ctx context.Context, credential string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.records[credential]
	return exists, nil
}

func (r *CustomerRepository) Records(ctx context.Context) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.records), nil
}

func (r *CustomerRepository) Replace(ctx context.Context, records map[string]string) error {
	next := maps.Clone(records)
	if next == nil {
		next = make(map[string]string)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = next

	return nil
}
