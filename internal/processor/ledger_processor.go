package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"snb_ledger/internal/domain"
	"snb_ledger/internal/repository"
	"snb_ledger/pkg/validator"
)

// LedgerProcessor is the ledger context: every operation on accounts and customers goes
// through it. Mutations hold one global lock and are persisted before they return; a failed
// save rolls the in-memory change back.
type LedgerProcessor struct {
	accountRepo  repository.AccountRepository
	customerRepo repository.CustomerRepository
	store        repository.Store
	ids          *domain.IDGenerator
	validator    *validator.InputValidator
	mu           sync.RWMutex
	logger       *slog.Logger
}

type Option func(*LedgerProcessor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *LedgerProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithIDGenerator(ids *domain.IDGenerator) Option {
	return func(p *LedgerProcessor) {
		if ids != nil {
			p.ids = ids
		}
	}
}

func NewLedgerProcessor(
	accountRepo repository.AccountRepository,
	customerRepo repository.CustomerRepository,
	store repository.Store,
	opts ...Option,
) *LedgerProcessor {
	p := &LedgerProcessor{
		accountRepo:  accountRepo,
		customerRepo: customerRepo,
		store:        store,
		ids:          domain.NewIDGenerator(nil),
		validator:    validator.NewInputValidator(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load replaces the live account set and customer records with the store's contents.
// With bootstrap set, missing records are created empty instead of failing.
func (p *LedgerProcessor) Load(ctx context.Context, bootstrap bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	accounts, err := p.store.LoadAccounts(ctx)
	if err != nil {
		if !bootstrap || !errors.Is(err, repository.ErrRecordsNotFound) {
			return fmt.Errorf("failed to load accounts: %w", err)
		}
		p.logger.WarnContext(ctx, "Account records missing, starting empty", slog.String("error", err.Error()))
		accounts = nil
	}

	customers, err := p.store.LoadCustomers(ctx)
	if err != nil {
		if !bootstrap || !errors.Is(err, repository.ErrRecordsNotFound) {
			return fmt.Errorf("failed to load customer records: %w", err)
		}
		p.logger.WarnContext(ctx, "Customer records missing, starting empty", slog.String("error", err.Error()))
		customers = nil
	}

	if err := p.accountRepo.Replace(ctx, accounts); err != nil {
		return fmt.Errorf("failed to install accounts: %w", err)
	}
	if err := p.customerRepo.Replace(ctx, customers); err != nil {
		return fmt.Errorf("failed to install customer records: %w", err)
	}

	if bootstrap {
		if err := p.saveAccounts(ctx); err != nil {
			return err
		}
		if err := p.saveCustomers(ctx); err != nil {
			return err
		}
	}

	p.logger.InfoContext(ctx, "Ledger loaded",
		slog.Int("accounts", len(accounts)),
		slog.Int("customers", len(customers)))
	return nil
}

// Persist writes the full account set and customer records, as done at shutdown.
func (p *LedgerProcessor) Persist(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.saveAccounts(ctx); err != nil {
		return err
	}
	return p.saveCustomers(ctx)
}

func (p *LedgerProcessor) RegisterCustomer(ctx context.Context, firstName, lastName, password string) (domain.Customer, error) {
	name, err := p.validator.CustomerName(firstName, lastName)
	if err != nil {
		return domain.Customer{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	exists, err := p.customerRepo.Exists(ctx, password)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("failed to check customer records: %w", err)
	}
	if err := p.validator.ValidatePassword(password, func(string) bool { return exists }); err != nil {
		return domain.Customer{}, err
	}

	snapshot, err := p.customerRepo.Records(ctx)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("failed to snapshot customer records: %w", err)
	}

	customer := domain.Customer{Name: name, Credential: password}
	if err := p.customerRepo.Save(ctx, customer); err != nil {
		return domain.Customer{}, err
	}
	if err := p.saveCustomers(ctx); err != nil {
		if rbErr := p.customerRepo.Replace(ctx, snapshot); rbErr != nil {
			p.logger.ErrorContext(ctx, "Failed to roll back customer registration", slog.String("error", rbErr.Error()))
		}
		return domain.Customer{}, err
	}

	p.logger.InfoContext(ctx, "Customer registered", slog.String("customer", name))
	return customer, nil
}

// Authenticate succeeds only when password is a known key that maps to name.
func (p *LedgerProcessor) Authenticate(ctx context.Context, name, password string) (domain.Customer, error) {
	customer, err := p.customerRepo.GetByCredential(ctx, password)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Customer{}, domain.ErrAuthenticationRejected
		}
		return domain.Customer{}, err
	}
	if customer.Name != name {
		return domain.Customer{}, domain.ErrAuthenticationRejected
	}
	return customer, nil
}

// OpenAccount opens a Current or Savings account at the standard rate with a zero balance.
func (p *LedgerProcessor) OpenAccount(ctx context.Context, customer domain.Customer, kind domain.AccountKind) (*domain.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.nextID(ctx)
	if err != nil {
		return nil, err
	}

	var account *domain.Account
	switch kind {
	case domain.KindCurrent:
		fee, _ := domain.ForeignExchangeFee(domain.CategoryStandard)
		account = domain.NewCurrentAccount(id, customer, fee)
	case domain.KindSavings:
		rate, _ := domain.InterestRate(domain.CategoryStandard)
		account = domain.NewSavingsAccount(id, customer, rate)
	default:
		return nil, fmt.Errorf("%w: cannot open %q account directly", domain.ErrInvalidKind, kind)
	}

	if err := p.insert(ctx, account); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "Account opened",
		slog.Int("account_id", account.ID),
		slog.String("kind", string(kind)),
		slog.String("customer", customer.Name))
	return account.Clone(), nil
}

func (p *LedgerProcessor) QuoteMortgage(principal domain.Money, termMonths int) (domain.MortgageQuote, error) {
	return domain.QuoteMortgage(principal, termMonths)
}

// OpenMortgage prices the mortgage and opens it in one step, as an accepted quote.
func (p *LedgerProcessor) OpenMortgage(ctx context.Context, customer domain.Customer, principal domain.Money, termMonths int) (*domain.Account, domain.MortgageQuote, error) {
	quote, err := domain.QuoteMortgage(principal, termMonths)
	if err != nil {
		return nil, domain.MortgageQuote{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.nextID(ctx)
	if err != nil {
		return nil, domain.MortgageQuote{}, err
	}

	account := domain.NewMortgageAccount(id, customer, quote)
	if err := p.insert(ctx, account); err != nil {
		return nil, domain.MortgageQuote{}, err
	}

	p.logger.InfoContext(ctx, "Mortgage opened",
		slog.Int("account_id", account.ID),
		slog.String("customer", customer.Name),
		slog.String("total_repayable", quote.TotalRepayable.String()),
		slog.Int("term_months", quote.TermMonths))
	return account.Clone(), quote, nil
}

func (p *LedgerProcessor) GetAccount(ctx context.Context, id int) (*domain.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.accountRepo.GetByID(ctx, id)
}

// GetCustomerAccount hides accounts the customer does not own behind ErrNotFound.
func (p *LedgerProcessor) GetCustomerAccount(ctx context.Context, customer domain.Customer, id int) (*domain.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.ownedAccount(ctx, customer, id)
}

func (p *LedgerProcessor) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.accountRepo.GetAll(ctx)
}

func (p *LedgerProcessor) ListCustomerAccounts(ctx context.Context, customer domain.Customer) ([]*domain.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.accountRepo.GetByCustomer(ctx, customer)
}

// CountByKind reports how many live accounts there are of each kind.
func (p *LedgerProcessor) CountByKind(ctx context.Context) (map[domain.AccountKind]int, error) {
	accounts, err := p.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	counts := map[domain.AccountKind]int{
		domain.KindCurrent:  0,
		domain.KindSavings:  0,
		domain.KindMortgage: 0,
	}
	for _, a := range accounts {
		counts[a.Kind]++
	}
	return counts, nil
}

func (p *LedgerProcessor) Deposit(ctx context.Context, customer domain.Customer, id int, amount domain.Money) (domain.Money, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	account, err := p.ownedAccount(ctx, customer, id)
	if err != nil {
		return domain.Money{}, err
	}

	balance, err := domain.Deposit(account, amount)
	if err != nil {
		return domain.Money{}, err
	}
	if err := p.update(ctx, account); err != nil {
		return domain.Money{}, err
	}

	p.logger.InfoContext(ctx, "Deposit completed",
		slog.Int("account_id", id),
		slog.String("amount", amount.String()),
		slog.String("balance", balance.String()))
	return balance, nil
}

func (p *LedgerProcessor) Withdraw(ctx context.Context, customer domain.Customer, id int, amount domain.Money) (domain.Money, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	account, err := p.ownedAccount(ctx, customer, id)
	if err != nil {
		return domain.Money{}, err
	}

	balance, err := domain.Withdraw(account, amount)
	if err != nil {
		return domain.Money{}, err
	}
	if err := p.update(ctx, account); err != nil {
		return domain.Money{}, err
	}

	p.logger.InfoContext(ctx, "Withdrawal completed",
		slog.Int("account_id", id),
		slog.String("amount", amount.String()),
		slog.String("balance", balance.String()))
	return balance, nil
}

func (p *LedgerProcessor) ViewMonthsRemaining(ctx context.Context, customer domain.Customer, id int) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	account, err := p.ownedAccount(ctx, customer, id)
	if err != nil {
		return 0, err
	}
	return domain.MonthsRemaining(account)
}

// CloseAccount removes the account from the live set for good.
func (p *LedgerProcessor) CloseAccount(ctx context.Context, id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot, err := p.accountRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot accounts: %w", err)
	}

	if err := p.accountRepo.Delete(ctx, id); err != nil {
		return err
	}
	if err := p.saveAccounts(ctx); err != nil {
		p.restore(ctx, snapshot)
		return err
	}

	p.logger.InfoContext(ctx, "Account closed", slog.Int("account_id", id))
	return nil
}

func (p *LedgerProcessor) SetForeignExchangeFee(ctx context.Context, id int, category domain.RateCategory) (*domain.Account, error) {
	return p.adminUpdate(ctx, id, func(a *domain.Account) error {
		return domain.SetForeignExchangeFee(a, category)
	})
}

func (p *LedgerProcessor) SetInterestRate(ctx context.Context, id int, category domain.RateCategory) (*domain.Account, error) {
	return p.adminUpdate(ctx, id, func(a *domain.Account) error {
		return domain.SetInterestRate(a, category)
	})
}

func (p *LedgerProcessor) SetMissedPaymentFlag(ctx context.Context, id int, flagged bool) (*domain.Account, error) {
	return p.adminUpdate(ctx, id, func(a *domain.Account) error {
		return domain.SetMissedPaymentFlag(a, flagged)
	})
}

func (p *LedgerProcessor) adminUpdate(ctx context.Context, id int, change func(*domain.Account) error) (*domain.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	account, err := p.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := change(account); err != nil {
		return nil, err
	}
	if err := p.update(ctx, account); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "Account terms updated",
		slog.Int("account_id", id),
		slog.String("kind", string(account.Kind)))
	return account.Clone(), nil
}

func (p *LedgerProcessor) ownedAccount(ctx context.Context, customer domain.Customer, id int) (*domain.Account, error) {
	account, err := p.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !customer.Owns(account) {
		return nil, fmt.Errorf("%w: account %d", repository.ErrNotFound, id)
	}
	return account, nil
}

func (p *LedgerProcessor) nextID(ctx context.Context) (int, error) {
	existing, err := p.accountRepo.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read account ids: %w", err)
	}
	return p.ids.Generate(existing), nil
}

// insert adds a new account and persists, removing it again if the save fails.
func (p *LedgerProcessor) insert(ctx context.Context, account *domain.Account) error {
	if err := p.accountRepo.Save(ctx, account); err != nil {
		return err
	}
	if err := p.saveAccounts(ctx); err != nil {
		if rbErr := p.accountRepo.Delete(ctx, account.ID); rbErr != nil {
			p.logger.ErrorContext(ctx, "Failed to roll back account", slog.String("error", rbErr.Error()))
		}
		return err
	}
	return nil
}

// update stores the given accounts together and persists. On a failed save the accounts
// go back to their previous states.
func (p *LedgerProcessor) update(ctx context.Context, accounts ...*domain.Account) error {
	previous := make([]*domain.Account, 0, len(accounts))
	for _, a := range accounts {
		prev, err := p.accountRepo.GetByID(ctx, a.ID)
		if err != nil {
			return err
		}
		previous = append(previous, prev)
	}

	if err := p.accountRepo.Update(ctx, accounts...); err != nil {
		return fmt.Errorf("failed to update accounts: %w", err)
	}
	if err := p.saveAccounts(ctx); err != nil {
		if rbErr := p.accountRepo.Update(ctx, previous...); rbErr != nil {
			p.logger.ErrorContext(ctx, "Failed to roll back accounts", slog.String("error", rbErr.Error()))
		}
		return err
	}
	return nil
}

func (p *LedgerProcessor) restore(ctx context.Context, snapshot []*domain.Account) {
	if err := p.accountRepo.Replace(ctx, snapshot); err != nil {
		p.logger.ErrorContext(ctx, "Failed to restore accounts", slog.String("error", err.Error()))
	}
}

func (p *LedgerProcessor) saveAccounts(ctx context.Context) error {
	accounts, err := p.accountRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read accounts: %w", err)
	}
	if err := p.store.SaveAccounts(ctx, accounts); err != nil {
		p.logger.ErrorContext(ctx, "Failed to persist accounts", slog.String("error", err.Error()))
		return fmt.Errorf("failed to persist accounts: %w", err)
	}
	return nil
}

func (p *LedgerProcessor) saveCustomers(ctx context.Context) error {
	records, err := p.customerRepo.Records(ctx)
	if err != nil {
		return fmt.Errorf("failed to read customer records: %w", err)
	}
	if err := p.store.SaveCustomers(ctx, records); err != nil {
		p.logger.ErrorContext(ctx, "Failed to persist customer records", slog.String("error", err.Error()))
		return fmt.Errorf("failed to persist customer records: %w", err)
	}
	return nil
}
