package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"snb_ledger/internal/api"
	"snb_ledger/internal/domain"
	"snb_ledger/internal/processor"
	"snb_ledger/internal/repository"
	"snb_ledger/internal/repository/memory"
	"snb_ledger/internal/storage"
	"snb_ledger/pkg/metrics"
)

type testEnv struct {
	dir       string
	store     *storage.JSONStore
	processor *processor.LedgerProcessor
	router    http.Handler
}

func (e *testEnv) accountsFile() string  { return filepath.Join(e.dir, "accounts.json") }
func (e *testEnv) customersFile() string { return filepath.Join(e.dir, "customer_records.json") }

// setup starts a ledger over the JSON files in dir, bootstrapping them when absent.
func setup(t *testing.T, dir string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{dir: dir}
	env.store = storage.NewJSONStore(env.accountsFile(), env.customersFile(), logger)
	env.processor = processor.NewLedgerProcessor(
		memory.NewAccountRepository(),
		memory.NewCustomerRepository(),
		env.store,
		processor.WithLogger(logger),
	)
	require.NoError(t, env.processor.Load(context.Background(), true))

	admin, err := api.NewAdminAuth("admin", "access", bcrypt.MinCost)
	require.NoError(t, err)
	handler := api.NewAPIHandler(env.processor, metrics.NewMetricsCollector(logger), admin, logger, 0)
	env.router = handler.Router()
	return env
}

func (e *testEnv) call(t *testing.T, method, path string, body any, auth func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	if auth != nil {
		auth(r)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func asCustomer(name, password string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("X-Customer-Name", name)
		r.Header.Set("X-Customer-Password", password)
	}
}

func asAdmin(r *http.Request) {
	r.SetBasicAuth("admin", "access")
}

func mustDecode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

type persistedAccount struct {
	Number          int    `json:"number"`
	CustomerName    string `json:"c_name"`
	PoundsBalance   int64  `json:"pounds_balance"`
	PenceBalance    int64  `json:"pence_balance"`
	Category        string `json:"category"`
	MonthsRemaining *int   `json:"months_remaining"`
}

func readAccountsFile(t *testing.T, env *testEnv) map[int]persistedAccount {
	t.Helper()
	data, err := os.ReadFile(env.accountsFile())
	require.NoError(t, err)
	var records []persistedAccount
	require.NoError(t, json.Unmarshal(data, &records))
	byNumber := make(map[int]persistedAccount, len(records))
	for _, rec := range records {
		byNumber[rec.Number] = rec
	}
	return byNumber
}

func TestIntegration_MissingRecordsWithoutBootstrap(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewJSONStore(filepath.Join(dir, "accounts.json"), filepath.Join(dir, "customer_records.json"), nil)
	proc := processor.NewLedgerProcessor(memory.NewAccountRepository(), memory.NewCustomerRepository(), store)

	err := proc.Load(context.Background(), false)

	assert.ErrorIs(t, err, repository.ErrRecordsNotFound)
}

func TestIntegration_CustomerJourneyIsPersisted(t *testing.T) {
	env := setup(t, t.TempDir())
	bob := asCustomer("bob_jones", "secret")

	w := env.call(t, http.MethodPost, "/api/v1/customers", api.RegisterCustomerRequest{FirstName: "bob", LastName: "jones", Password: "secret"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.call(t, http.MethodPost, "/api/v1/accounts", api.OpenAccountRequest{Kind: "current"}, bob)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	current := mustDecode[api.AccountResponse](t, w)

	w = env.call(t, http.MethodPost, fmt.Sprintf("/api/v1/accounts/%d/deposit", current.ID), api.AmountRequest{Amount: "2000.50"}, bob)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.call(t, http.MethodPost, "/api/v1/mortgages", map[string]any{"principal": "10000", "term_months": 6}, bob)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	mortgage := mustDecode[api.MortgageResponse](t, w).Account

	w = env.call(t, http.MethodPost, fmt.Sprintf("/api/v1/accounts/%d/payments", mortgage.ID), api.PaymentRequest{SourceAccountID: current.ID}, bob)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	persisted := readAccountsFile(t, env)
	require.Len(t, persisted, 2)
	assert.Equal(t, int64(250), persisted[current.ID].PoundsBalance)
	assert.Equal(t, int64(50), persisted[current.ID].PenceBalance)
	assert.Equal(t, "Mortgage", persisted[mortgage.ID].Category)
	assert.Equal(t, int64(8750), persisted[mortgage.ID].PoundsBalance)
	require.NotNil(t, persisted[mortgage.ID].MonthsRemaining)
	assert.Equal(t, 5, *persisted[mortgage.ID].MonthsRemaining)

	customers, err := os.ReadFile(env.customersFile())
	require.NoError(t, err)
	assert.JSONEq(t, `{"secret": "bob_jones"}`, string(customers))

	// a restart over the same files sees the same ledger
	restarted := setup(t, env.dir)
	w = restarted.call(t, http.MethodGet, "/api/v1/accounts", nil, bob)
	require.Equal(t, http.StatusOK, w.Code)
	accounts := mustDecode[[]api.AccountResponse](t, w)
	require.Len(t, accounts, 2)
	assert.Equal(t, "£250.50", accounts[0].Balance)
	assert.Equal(t, "£8750.00", accounts[1].Balance)
}

func TestIntegration_AdminCloseIsPersisted(t *testing.T) {
	env := setup(t, t.TempDir())
	ctx := context.Background()
	customer, err := env.processor.RegisterCustomer(ctx, "ann", "lee", "pw")
	require.NoError(t, err)
	account, err := env.processor.OpenAccount(ctx, customer, "Savings")
	require.NoError(t, err)

	w := env.call(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/accounts/%d", account.ID), nil, asAdmin)
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Empty(t, readAccountsFile(t, env))
}

func TestIntegration_ConcurrentPaymentsAndDeposits(t *testing.T) {
	env := setup(t, t.TempDir())
	ctx := context.Background()
	customer, err := env.processor.RegisterCustomer(ctx, "ann", "lee", "pw")
	require.NoError(t, err)
	mortgage, _, err := env.processor.OpenMortgage(ctx, customer, domain.Pounds(12_000), 12)
	require.NoError(t, err)
	source, err := env.processor.OpenAccount(ctx, customer, "Current")
	require.NoError(t, err)
	_, err = env.processor.Deposit(ctx, customer, source.ID, domain.Pounds(5250))
	require.NoError(t, err)

	ann := asCustomer("ann_lee", "pw")
	n := 5
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := env.call(t, http.MethodPost, fmt.Sprintf("/api/v1/accounts/%d/payments", mortgage.ID), api.PaymentRequest{SourceAccountID: source.ID}, ann)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	// monthly is ceil(12000*1.05/12) = 1050, so exactly five payments fit in 5250
	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
	got, err := env.processor.GetAccount(ctx, source.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())

	gotMortgage, err := env.processor.GetAccount(ctx, mortgage.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, gotMortgage.Mortgage.MonthsRemaining)
	assert.Equal(t, "£7350.00", gotMortgage.Balance.String())

	w := env.call(t, http.MethodPost, fmt.Sprintf("/api/v1/accounts/%d/payments", mortgage.ID), api.PaymentRequest{SourceAccountID: source.ID}, ann)
	assert.Equal(t, http.StatusConflict, w.Code)
}
