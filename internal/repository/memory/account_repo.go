package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"snb_ledger/internal/domain"
	"snb_ledger/internal/repository"
)

// AccountRepository stores clones, so nothing a caller holds aliases the live set.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[int]*domain.Account
	order    []int
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[int]*domain.Account),
	}
}

func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; exists {
		return fmt.Errorf("%w: account %d", repository.ErrDuplicate, account.ID)
	}

	r.accounts[account.ID] = account.Clone()
	r.order = append(r.order, account.ID)

	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: account %d", repository.ErrNotFound, id)
	}
	return account.Clone(), nil
}

func (r *AccountRepository) GetByCustomer(ctx context.Context, customer domain.Customer) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Account
	for _, id := range r.order {
		if account := r.accounts[id]; customer.Owns(account) {
			result = append(result, account.Clone())
		}
	}

	return result, nil
}

func (r *AccountRepository) GetAll(ctx context.Context) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Account, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.accounts[id].Clone())
	}

	return result, nil
}

func (r *AccountRepository) IDs(ctx context.Context) (map[int]struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make(map[int]struct{}, len(r.accounts))
	for id := range r.accounts {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// Update replaces the stored state of every given account, or of none of them.
func (r *AccountRepository) Update(ctx context.Context, accounts ...*domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range accounts {
		if _, exists := r.accounts[account.ID]; !exists {
			return fmt.Errorf("%w: account %d", repository.ErrNotFound, account.ID)
		}
		if err := account.Validate(); err != nil {
			return err
		}
	}

	for _, account := range accounts {
		r.accounts[account.ID] = account.Clone()
	}

	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[id]; !exists {
		return fmt.Errorf("%w: account %d", repository.ErrNotFound, id)
	}

	delete(r.accounts, id)
	r.order = slices.DeleteFunc(r.order, func(v int) bool { return v == id })

	return nil
}

// Replace swaps the whole live set, as done when a ledger is loaded from its store.
func (r *AccountRepository) Replace(ctx context.Context, accounts []*domain.Account) error {
	next := make(map[int]*domain.Account, len(accounts))
	order := make([]int, 0, len(accounts))
	for _, account := range accounts {
		if err := account.Validate(); err != nil {
			return err
		}
		if _, exists := next[account.ID]; exists {
			return fmt.Errorf("%w: account %d", repository.ErrDuplicate, account.ID)
		}
		next[account.ID] = account.Clone()
		order = append(order, account.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts = next
	r.order = order

	return nil
}
