package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snb_ledger/internal/domain"
	"snb_ledger/internal/repository"
	"snb_ledger/internal/repository/memory"
	"snb_ledger/pkg/validator"
)

var errDiskFull = errors.New("disk full")

type fakeStore struct {
	mu        sync.Mutex
	accounts  []*domain.Account
	customers map[string]string
	loadErr   error
	saveErr   error
	saves     int
}

func (s *fakeStore) LoadAccounts(ctx context.Context) ([]*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.accounts, nil
}

func (s *fakeStore) SaveAccounts(ctx context.Context, accounts []*domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.accounts = accounts
	return nil
}

func (s *fakeStore) LoadCustomers(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return maps.Clone(s.customers), nil
}

func (s *fakeStore) SaveCustomers(ctx context.Context, records map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.customers = records
	return nil
}

func (s *fakeStore) failSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// sequentialSource hands out 0, 1, 2, ... so generated ids are predictable.
type sequentialSource struct {
	mu   sync.Mutex
	next int64
}

func (s *sequentialSource) Int64N(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.next % n
	s.next++
	return v
}

var alice = domain.Customer{Name: "alice_smith", Credential: "pw1"}

func newTestProcessor(t *testing.T) (*LedgerProcessor, *fakeStore) {
	t.Helper()
	store := &fakeStore{customers: map[string]string{alice.Credential: alice.Name}}
	p := NewLedgerProcessor(
		memory.NewAccountRepository(),
		memory.NewCustomerRepository(),
		store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDGenerator(domain.NewIDGenerator(&sequentialSource{})),
	)
	require.NoError(t, p.Load(context.Background(), false))
	return p, store
}

func openFunded(t *testing.T, p *LedgerProcessor, balance domain.Money) *domain.Account {
	t.Helper()
	ctx := context.Background()
	account, err := p.OpenAccount(ctx, alice, domain.KindCurrent)
	require.NoError(t, err)
	if balance.IsPositive() {
		_, err = p.Deposit(ctx, alice, account.ID, balance)
		require.NoError(t, err)
	}
	return account
}

func TestLedgerProcessor_LoadMissingRecords(t *testing.T) {
	store := &fakeStore{loadErr: repository.ErrRecordsNotFound}
	p := NewLedgerProcessor(memory.NewAccountRepository(), memory.NewCustomerRepository(), store)

	err := p.Load(context.Background(), false)
	assert.ErrorIs(t, err, repository.ErrRecordsNotFound)

	require.NoError(t, p.Load(context.Background(), true))
	accounts, err := p.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.Equal(t, 2, store.saves)
}

func TestLedgerProcessor_RegisterAndAuthenticate(t *testing.T) {
	p, store := newTestProcessor(t)
	ctx := context.Background()

	customer, err := p.RegisterCustomer(ctx, "bob", "jones", "secret")
	require.NoError(t, err)
	assert.Equal(t, "bob_jones", customer.Name)
	assert.Equal(t, "bob_jones", store.customers["secret"])

	got, err := p.Authenticate(ctx, "bob_jones", "secret")
	require.NoError(t, err)
	assert.Equal(t, customer, got)

	_, err = p.Authenticate(ctx, "alice_smith", "secret")
	assert.ErrorIs(t, err, domain.ErrAuthenticationRejected)
	_, err = p.Authenticate(ctx, "bob_jones", "nope")
	assert.ErrorIs(t, err, domain.ErrAuthenticationRejected)

	_, err = p.RegisterCustomer(ctx, "carol", "king", "secret")
	assert.ErrorIs(t, err, validator.ErrPasswordTaken)

	_, err = p.RegisterCustomer(ctx, "carol ann", "king", "other")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLedgerProcessor_RegisterRollsBackOnSaveFailure(t *testing.T) {
	p, store := newTestProcessor(t)
	store.failSaves(errDiskFull)

	_, err := p.RegisterCustomer(context.Background(), "bob", "jones", "secret")

	assert.ErrorIs(t, err, errDiskFull)
	_, err = p.Authenticate(context.Background(), "bob_jones", "secret")
	assert.ErrorIs(t, err, domain.ErrAuthenticationRejected)
}

func TestLedgerProcessor_OpenAccount(t *testing.T) {
	p, store := newTestProcessor(t)
	ctx := context.Background()

	current, err := p.OpenAccount(ctx, alice, domain.KindCurrent)
	require.NoError(t, err)
	assert.Equal(t, 3, current.Current.ForeignExchangeFeePercent)
	assert.True(t, current.Balance.IsZero())
	assert.Equal(t, domain.MinAccountID, current.ID)

	savings, err := p.OpenAccount(ctx, alice, domain.KindSavings)
	require.NoError(t, err)
	assert.Equal(t, 4, savings.Savings.InterestRatePercent)
	assert.NotEqual(t, current.ID, savings.ID)

	_, err = p.OpenAccount(ctx, alice, domain.KindMortgage)
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	assert.Len(t, store.accounts, 2)
}

func TestLedgerProcessor_DepositAndWithdraw(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()
	account := openFunded(t, p, domain.Money{})

	balance, err := p.Deposit(ctx, alice, account.ID, domain.NewMoney(50, 75))
	require.NoError(t, err)
	assert.Equal(t, "£50.75", balance.String())

	balance, err = p.Withdraw(ctx, alice, account.ID, domain.NewMoney(0, 80))
	require.NoError(t, err)
	assert.Equal(t, domain.NewMoney(49, 95), balance)

	_, err = p.Withdraw(ctx, alice, account.ID, domain.Pounds(50))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	got, err := p.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NewMoney(49, 95), got.Balance)
}

func TestLedgerProcessor_CustomerCannotTouchOthersAccounts(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()
	account := openFunded(t, p, domain.Pounds(10))
	mallory := domain.Customer{Name: "alice_smith", Credential: "guess"}

	_, err := p.Deposit(ctx, mallory, account.ID, domain.Pounds(1))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = p.GetCustomerAccount(ctx, mallory, account.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLedgerProcessor_DepositRollsBackOnSaveFailure(t *testing.T) {
	p, store := newTestProcessor(t)
	ctx := context.Background()
	account := openFunded(t, p, domain.Pounds(10))
	store.failSaves(errDiskFull)

	_, err := p.Deposit(ctx, alice, account.ID, domain.Pounds(5))

	assert.ErrorIs(t, err, errDiskFull)
	got, err := p.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Pounds(10), got.Balance)
}

func TestLedgerProcessor_MortgageRejectsDepositAndWithdraw(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()
	mortgage, _, err := p.OpenMortgage(ctx, alice, domain.Pounds(10_000), 6)
	require.NoError(t, err)

	_, err = p.Deposit(ctx, alice, mortgage.ID, domain.Pounds(1))
	assert.ErrorIs(t, err, domain.ErrOperationNotSupported)
	_, err = p.Withdraw(ctx, alice, mortgage.ID, domain.Pounds(1))
	assert.ErrorIs(t, err, domain.ErrOperationNotSupported)
}

func TestLedgerProcessor_OpenMortgage(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()

	mortgage, quote, err := p.OpenMortgage(ctx, alice, domain.Pounds(10_000), 6)

	require.NoError(t, err)
	assert.Equal(t, domain.Pounds(1750), quote.Monthly)
	assert.Equal(t, domain.Pounds(10_500), mortgage.Balance)
	assert.Equal(t, 6, mortgage.Mortgage.MonthsRemaining)
	assert.False(t, mortgage.Mortgage.FlaggedForMissedPayment)

	months, err := p.ViewMonthsRemaining(ctx, alice, mortgage.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, months)

	_, _, err = p.OpenMortgage(ctx, alice, domain.Pounds(9_999), 12)
	assert.ErrorIs(t, err, domain.ErrPrincipalTooLow)
	_, _, err = p.OpenMortgage(ctx, alice, domain.Pounds(20_000), 501)
	assert.ErrorIs(t, err, domain.ErrTermOutOfRange)
}

func TestLedgerProcessor_PayMonthlyExactBalance(t *testing.T) {
	p, store := newTestProcessor(t)
	ctx := context.Background()
	mortgage, _, err := p.OpenMortgage(ctx, alice, domain.Pounds(10_000), 6)
	require.NoError(t, err)
	source := openFunded(t, p, domain.Pounds(1750))

	eligible, err := p.ListEligibleSources(ctx, alice, mortgage.ID)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, source.ID, eligible[0].ID)

	outcome, err := p.PayMonthly(ctx, alice, mortgage.ID, source.ID)

	require.NoError(t, err)
	assert.Equal(t, "£0.00", outcome.SourceBalance.String())
	assert.Equal(t, domain.Pounds(8750), outcome.MortgageBalance)
	assert.Equal(t, 5, outcome.MonthsRemaining)

	persisted := map[int]*domain.Account{}
	for _, a := range store.accounts {
		persisted[a.ID] = a
	}
	assert.True(t, persisted[source.ID].Balance.IsZero())
	assert.Equal(t, 5, persisted[mortgage.ID].Mortgage.MonthsRemaining)
}

func TestLedgerProcessor_PayMonthlyNoEligibleSource(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()
	mortgage, _, err := p.OpenMortgage(ctx, alice, domain.Pounds(10_000), 6)
	require.NoError(t, err)
	poor := openFunded(t, p, domain.NewMoney(1749, 99))

	eligible, err := p.ListEligibleSources(ctx, alice, mortgage.ID)
	require.NoError(t, err)
	assert.NotNil(t, eligible)
	assert.Empty(t, eligible)

	_, err = p.PayMonthly(ctx, alice, mortgage.ID, poor.ID)
	assert.ErrorIs(t, err, domain.ErrNoEligibleSource)
}

func TestLedgerProcessor_PayMonthlyInvalidSelectionLeavesStateUnchanged(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()
	mortgage, _, err := p.OpenMortgage(ctx, alice, domain.Pounds(10_000), 6)
	require.NoError(t, err)
	rich := openFunded(t, p, domain.Pounds(5000))
	poor := openFunded(t, p, domain.Pounds(100))

	_, err = p.PayMonthly(ctx, alice, mortgage.ID, poor.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidSelection)
	_, err = p.PayMonthly(ctx, alice, mortgage.ID, mortgage.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidSelection)

	gotMortgage, _ := p.GetAccount(ctx, mortgage.ID)
	gotRich, _ := p.GetAccount(ctx, rich.ID)
	gotPoor, _ := p.GetAccount(ctx, poor.ID)
	assert.Equal(t, domain.Pounds(10_500), gotMortgage.Balance)
	assert.Equal(t, 6, gotMortgage.Mortgage.MonthsRemaining)
	assert.Equal(t, domain.Pounds(5000), gotRich.Balance)
	assert.Equal(t, domain.Pounds(100), gotPoor.Balance)
}

func TestLedgerProcessor_PayMonthlyRollsBackOnSaveFailure(t *testing.T) {
	p, store := newTestProcessor(t)
	ctx := context.Background()
	mortgage, _, err := p.OpenMortgage(ctx, alice, domain.Pounds(10_000), 6)
	require.NoError(t, err)
	source := openFunded(t, p, domain.Pounds(2000))
	store.failSaves(errDiskFull)

	_, err = p.PayMonthly(ctx, alice, mortgage.ID, source.ID)

	assert.ErrorIs(t, err, errDiskFull)
	gotMortgage, _ := p.GetAccount(ctx, mortgage.ID)
	gotSource, _ := p.GetAccount(ctx, source.ID)
	assert.Equal(t, domain.Pounds(10_500), gotMortgage.Balance)
	assert.Equal(t, 6, gotMortgage.Mortgage.MonthsRemaining)
	assert.Equal(t, domain.Pounds(2000), gotSource.Balance)
}

func TestLedgerProcessor_PayMonthlyUntilSettled(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()
	mortgage, _, err := p.OpenMortgage(ctx, alice, domain.Pounds(10_000), 6)
	require.NoError(t, err)
	source := openFunded(t, p, domain.Pounds(20_000))

	for i := 0; i < 6; i++ {
		_, err := p.PayMonthly(ctx, alice, mortgage.ID, source.ID)
		require.NoError(t, err)
	}

	got, _ := p.GetAccount(ctx, mortgage.ID)
	assert.True(t, got.Balance.IsZero())
	assert.Equal(t, 0, got.Mortgage.MonthsRemaining)

	_, err = p.PayMonthly(ctx, alice, mortgage.ID, source.ID)
	assert.ErrorIs(t, err, domain.ErrMortgageSettled)
}

func TestLedgerProcessor_AdminUpdates(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()
	current := openFunded(t, p, domain.Money{})
	savings, err := p.OpenAccount(ctx, alice, domain.KindSavings)
	require.NoError(t, err)
	mortgage, _, err := p.OpenMortgage(ctx, alice, domain.Pounds(10_000), 6)
	require.NoError(t, err)

	got, err := p.SetForeignExchangeFee(ctx, current.ID, domain.CategoryBest)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Current.ForeignExchangeFeePercent)

	got, err = p.SetInterestRate(ctx, savings.ID, domain.CategoryPremium)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Savings.InterestRatePercent)

	got, err = p.SetMissedPaymentFlag(ctx, mortgage.ID, true)
	require.NoError(t, err)
	assert.True(t, got.Mortgage.FlaggedForMissedPayment)
	assert.Equal(t, 6, got.Mortgage.MonthsRemaining)

	_, err = p.SetInterestRate(ctx, current.ID, domain.CategoryBest)
	assert.ErrorIs(t, err, domain.ErrOperationNotSupported)
	_, err = p.SetForeignExchangeFee(ctx, 1, domain.CategoryBest)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLedgerProcessor_CloseAccount(t *testing.T) {
	p, store := newTestProcessor(t)
	ctx := context.Background()
	first := openFunded(t, p, domain.Money{})
	second := openFunded(t, p, domain.Money{})

	store.failSaves(errDiskFull)
	err := p.CloseAccount(ctx, first.ID)
	assert.ErrorIs(t, err, errDiskFull)
	all, _ := p.ListAccounts(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)

	store.failSaves(nil)
	require.NoError(t, p.CloseAccount(ctx, first.ID))
	_, err = p.GetAccount(ctx, first.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.Len(t, store.accounts, 1)
	assert.Equal(t, second.ID, store.accounts[0].ID)
}

func TestLedgerProcessor_CountByKind(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()
	openFunded(t, p, domain.Money{})
	_, _, err := p.OpenMortgage(ctx, alice, domain.Pounds(10_000), 6)
	require.NoError(t, err)

	counts, err := p.CountByKind(ctx)

	require.NoError(t, err)
	assert.Equal(t, map[domain.AccountKind]int{
		domain.KindCurrent:  1,
		domain.KindSavings:  0,
		domain.KindMortgage: 1,
	}, counts)
}

func TestLedgerProcessor_ConcurrentDeposits(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()
	account := openFunded(t, p, domain.Money{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Deposit(ctx, alice, account.ID, domain.NewMoney(0, 50))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := p.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Pounds(25), got.Balance)
}
