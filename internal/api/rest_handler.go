package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"snb_ledger/internal/domain"
	"snb_ledger/internal/processor"
	"snb_ledger/pkg/metrics"
	"snb_ledger/pkg/validator"
)

type APIHandler struct {
	processor      *processor.LedgerProcessor
	metrics        *metrics.MetricsCollector
	admin          *AdminAuth
	validator      *validator.InputValidator
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(
	processor *processor.LedgerProcessor,
	metrics *metrics.MetricsCollector,
	admin *AdminAuth,
	logger *slog.Logger,
	requestTimeout time.Duration,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return &APIHandler{
		processor:      processor,
		metrics:        metrics,
		admin:          admin,
		validator:      validator.NewInputValidator(),
		logger:         logger,
		requestTimeout: requestTimeout,
	}
}

type RegisterCustomerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

type CustomerResponse struct {
	Name string `json:"name"`
}

type OpenAccountRequest struct {
	Kind string `json:"kind"`
}

type AmountRequest struct {
	Amount string `json:"amount"`
}

type BalanceResponse struct {
	AccountID int    `json:"account_id"`
	Balance   string `json:"balance"`
}

type MortgageRequest struct {
	Principal  string      `json:"principal"`
	TermMonths json.Number `json:"term_months"`
}

type QuoteResponse struct {
	Principal        string `json:"principal"`
	TermMonths       int    `json:"term_months"`
	MonthlyRepayment string `json:"monthly_repayment"`
	TotalRepayable   string `json:"total_repayable"`
}

type MortgageResponse struct {
	Account AccountResponse `json:"account"`
	Quote   QuoteResponse   `json:"quote"`
}

type PaymentRequest struct {
	SourceAccountID int `json:"source_account_id"`
}

type PaymentResponse struct {
	SourceAccountID   int    `json:"source_account_id"`
	MortgageAccountID int    `json:"mortgage_account_id"`
	Paid              string `json:"paid"`
	SourceBalance     string `json:"source_balance"`
	MortgageBalance   string `json:"mortgage_balance"`
	MonthsRemaining   int    `json:"months_remaining"`
}

type MonthsRemainingResponse struct {
	AccountID       int `json:"account_id"`
	MonthsRemaining int `json:"months_remaining"`
}

type CategoryRequest struct {
	Category string `json:"category"`
}

type MissedPaymentFlagRequest struct {
	Flagged *bool `json:"flagged"`
}

// AccountResponse is the display form of an account. Only the fields of its kind are set.
type AccountResponse struct {
	ID        int    `json:"id"`
	Kind      string `json:"kind"`
	OwnerName string `json:"owner_name"`
	Balance   string `json:"balance"`

	ForeignExchangeFeePercent *int   `json:"foreign_exchange_fee_percent,omitempty"`
	InterestRatePercent       *int   `json:"interest_rate_percent,omitempty"`
	RateCategory              string `json:"rate_category,omitempty"`
	MonthlyRepayment          string `json:"monthly_repayment,omitempty"`
	MonthsRemaining           *int   `json:"months_remaining,omitempty"`
	FlaggedForMissedPayment   *bool  `json:"flagged_for_missed_payment,omitempty"`
}

func newAccountResponse(a *domain.Account) AccountResponse {
	resp := AccountResponse{
		ID:        a.ID,
		Kind:      string(a.Kind),
		OwnerName: a.OwnerName,
		Balance:   a.Balance.String(),
	}

	switch a.Kind {
	case domain.KindCurrent:
		fee := a.Current.ForeignExchangeFeePercent
		resp.ForeignExchangeFeePercent = &fee
		if c, ok := domain.CategoryForFee(fee); ok {
			resp.RateCategory = string(c)
		}
	case domain.KindSavings:
		rate := a.Savings.InterestRatePercent
		resp.InterestRatePercent = &rate
		if c, ok := domain.CategoryForRate(rate); ok {
			resp.RateCategory = string(c)
		}
	case domain.KindMortgage:
		m := *a.Mortgage
		resp.MonthlyRepayment = m.MonthlyRepayment.String()
		resp.MonthsRemaining = &m.MonthsRemaining
		resp.FlaggedForMissedPayment = &m.FlaggedForMissedPayment
	}

	return resp
}

func newAccountResponses(accounts []*domain.Account) []AccountResponse {
	resp := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, newAccountResponse(a))
	}
	return resp
}

func newQuoteResponse(q domain.MortgageQuote) QuoteResponse {
	return QuoteResponse{
		Principal:        q.Principal.String(),
		TermMonths:       q.TermMonths,
		MonthlyRepayment: q.Monthly.String(),
		TotalRepayable:   q.TotalRepayable.String(),
	}
}

func (h *APIHandler) RegisterCustomerHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req RegisterCustomerRequest
	if !h.decode(w, r, &req) {
		return
	}

	customer, err := h.processor.RegisterCustomer(ctx, req.FirstName, req.LastName, req.Password)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.sendJSON(w, CustomerResponse{Name: customer.Name}, http.StatusCreated)
}

func (h *APIHandler) ListCustomerAccountsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	customer, _ := customerFrom(r.Context())
	accounts, err := h.processor.ListCustomerAccounts(ctx, customer)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.sendJSON(w, newAccountResponses(accounts), http.StatusOK)
}

func (h *APIHandler) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req OpenAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	kind, err := domain.ParseAccountKind(req.Kind)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	customer, _ := customerFrom(r.Context())
	account, err := h.processor.OpenAccount(ctx, customer, kind)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.RefreshAccountMetrics(ctx)
	h.sendJSON(w, newAccountResponse(account), http.StatusCreated)
}

func (h *APIHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	customer, _ := customerFrom(r.Context())
	account, err := h.processor.GetCustomerAccount(ctx, customer, id)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.sendJSON(w, newAccountResponse(account), http.StatusOK)
}

func (h *APIHandler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	h.handleBalanceChange(w, r, h.processor.Deposit)
}

func (h *APIHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.handleBalanceChange(w, r, h.processor.Withdraw)
}

type balanceChange func(ctx context.Context, customer domain.Customer, id int, amount domain.Money) (domain.Money, error)

func (h *APIHandler) handleBalanceChange(w http.ResponseWriter, r *http.Request, change balanceChange) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req AmountRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := h.validator.ParseUserAmount(req.Amount)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	customer, _ := customerFrom(r.Context())
	balance, err := change(ctx, customer, id, amount)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.sendJSON(w, BalanceResponse{AccountID: id, Balance: balance.String()}, http.StatusOK)
}

func (h *APIHandler) MonthsRemainingHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	customer, _ := customerFrom(r.Context())
	months, err := h.processor.ViewMonthsRemaining(ctx, customer, id)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.sendJSON(w, MonthsRemainingResponse{AccountID: id, MonthsRemaining: months}, http.StatusOK)
}

func (h *APIHandler) PaymentSourcesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	customer, _ := customerFrom(r.Context())
	sources, err := h.processor.ListEligibleSources(ctx, customer, id)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.sendJSON(w, newAccountResponses(sources), http.StatusOK)
}

func (h *APIHandler) PayMonthlyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	customer, _ := customerFrom(r.Context())
	outcome, err := h.processor.PayMonthly(ctx, customer, id, req.SourceAccountID)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.metrics.RecordMortgagePayment(outcome.Paid.Decimal().InexactFloat64())
	h.sendJSON(w, PaymentResponse{
		SourceAccountID:   outcome.SourceID,
		MortgageAccountID: outcome.MortgageID,
		Paid:              outcome.Paid.String(),
		SourceBalance:     outcome.SourceBalance.String(),
		MortgageBalance:   outcome.MortgageBalance.String(),
		MonthsRemaining:   outcome.MonthsRemaining,
	}, http.StatusOK)
}

func (h *APIHandler) QuoteMortgageHandler(w http.ResponseWriter, r *http.Request) {
	principal, term, ok := h.mortgageTerms(w, r)
	if !ok {
		return
	}

	quote, err := h.processor.QuoteMortgage(principal, term)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.sendJSON(w, newQuoteResponse(quote), http.StatusOK)
}

func (h *APIHandler) OpenMortgageHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	principal, term, ok := h.mortgageTerms(w, r)
	if !ok {
		return
	}

	customer, _ := customerFrom(r.Context())
	account, quote, err := h.processor.OpenMortgage(ctx, customer, principal, term)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.RefreshAccountMetrics(ctx)
	h.sendJSON(w, MortgageResponse{
		Account: newAccountResponse(account),
		Quote:   newQuoteResponse(quote),
	}, http.StatusCreated)
}

func (h *APIHandler) AdminListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	accounts, err := h.processor.ListAccounts(ctx)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.sendJSON(w, newAccountResponses(accounts), http.StatusOK)
}

func (h *APIHandler) AdminGetAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	account, err := h.processor.GetAccount(ctx, id)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.sendJSON(w, newAccountResponse(account), http.StatusOK)
}

func (h *APIHandler) AdminSetForeignExchangeFeeHandler(w http.ResponseWriter, r *http.Request) {
	h.handleCategoryChange(w, r, h.processor.SetForeignExchangeFee)
}

func (h *APIHandler) AdminSetInterestRateHandler(w http.ResponseWriter, r *http.Request) {
	h.handleCategoryChange(w, r, h.processor.SetInterestRate)
}

type categoryChange func(ctx context.Context, id int, category domain.RateCategory) (*domain.Account, error)

func (h *APIHandler) handleCategoryChange(w http.ResponseWriter, r *http.Request, change categoryChange) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req CategoryRequest
	if !h.decode(w, r, &req) {
		return
	}

	category, err := domain.ParseRateCategory(req.Category)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	account, err := change(ctx, id, category)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.sendJSON(w, newAccountResponse(account), http.StatusOK)
}

func (h *APIHandler) AdminSetMissedPaymentFlagHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req MissedPaymentFlagRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Flagged == nil {
		h.sendError(w, r, "flagged is required", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	account, err := h.processor.SetMissedPaymentFlag(ctx, id, *req.Flagged)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.sendJSON(w, newAccountResponse(account), http.StatusOK)
}

func (h *APIHandler) AdminCloseAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	if err := h.processor.CloseAccount(ctx, id); err != nil {
		h.sendProcessorError(w, r, err)
		return
	}

	h.RefreshAccountMetrics(ctx)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	h.sendJSON(w, response, http.StatusOK)
}

// RefreshAccountMetrics sets the per-kind account gauge from the live ledger.
func (h *APIHandler) RefreshAccountMetrics(ctx context.Context) {
	counts, err := h.processor.CountByKind(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "Failed to count accounts", slog.String("error", err.Error()))
		return
	}
	for kind, n := range counts {
		h.metrics.SetAccountCount(string(kind), n)
	}
}

func (h *APIHandler) mortgageTerms(w http.ResponseWriter, r *http.Request) (domain.Money, int, bool) {
	var req MortgageRequest
	if !h.decode(w, r, &req) {
		return domain.Money{}, 0, false
	}

	principal, err := h.validator.ParseUserAmount(req.Principal)
	if err != nil {
		h.sendProcessorError(w, r, err)
		return domain.Money{}, 0, false
	}
	term, err := h.validator.ParseTermMonths(req.TermMonths.String())
	if err != nil {
		h.sendProcessorError(w, r, err)
		return domain.Money{}, 0, false
	}
	return principal, term, true
}

func (h *APIHandler) accountID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, r, "Invalid account number", http.StatusBadRequest, "INVALID_ID")
		return 0, false
	}
	return id, true
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.sendError(w, r, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return false
	}
	return true
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendProcessorError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("error", err.Error()))
		message = "Internal server error"
	}
	h.sendError(w, r, message, status, code)
}

func (h *APIHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int, code string) {
	if srw, ok := w.(*statusResponseWriter); ok {
		srw.errorCode = code
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})

	h.logger.WarnContext(r.Context(), "API error response",
		slog.String("request_id", requestIDFrom(r.Context())),
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

// Router builds the full route table.
func (h *APIHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.requestMiddleware)

	r.HandleFunc("/api/health", h.HealthCheckHandler).Methods(http.MethodGet).Name("health")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/customers", h.RegisterCustomerHandler).Methods(http.MethodPost).Name("register_customer")
	v1.HandleFunc("/mortgages/quote", h.QuoteMortgageHandler).Methods(http.MethodPost).Name("quote_mortgage")

	customer := v1.NewRoute().Subrouter()
	customer.Use(h.customerAuthMiddleware)
	customer.HandleFunc("/accounts", h.ListCustomerAccountsHandler).Methods(http.MethodGet).Name("list_accounts")
	customer.HandleFunc("/accounts", h.OpenAccountHandler).Methods(http.MethodPost).Name("open_account")
	customer.HandleFunc("/accounts/{id:[0-9]+}", h.GetAccountHandler).Methods(http.MethodGet).Name("get_account")
	customer.HandleFunc("/accounts/{id:[0-9]+}/deposit", h.DepositHandler).Methods(http.MethodPost).Name("deposit")
	customer.HandleFunc("/accounts/{id:[0-9]+}/withdraw", h.WithdrawHandler).Methods(http.MethodPost).Name("withdraw")
	customer.HandleFunc("/accounts/{id:[0-9]+}/months-remaining", h.MonthsRemainingHandler).Methods(http.MethodGet).Name("months_remaining")
	customer.HandleFunc("/accounts/{id:[0-9]+}/payment-sources", h.PaymentSourcesHandler).Methods(http.MethodGet).Name("payment_sources")
	customer.HandleFunc("/accounts/{id:[0-9]+}/payments", h.PayMonthlyHandler).Methods(http.MethodPost).Name("pay_monthly")
	customer.HandleFunc("/mortgages", h.OpenMortgageHandler).Methods(http.MethodPost).Name("open_mortgage")

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(h.adminAuthMiddleware)
	admin.HandleFunc("/accounts", h.AdminListAccountsHandler).Methods(http.MethodGet).Name("admin_list_accounts")
	admin.HandleFunc("/accounts/{id:[0-9]+}", h.AdminGetAccountHandler).Methods(http.MethodGet).Name("admin_get_account")
	admin.HandleFunc("/accounts/{id:[0-9]+}", h.AdminCloseAccountHandler).Methods(http.MethodDelete).Name("admin_close_account")
	admin.HandleFunc("/accounts/{id:[0-9]+}/fx-fee", h.AdminSetForeignExchangeFeeHandler).Methods(http.MethodPut).Name("admin_set_fx_fee")
	admin.HandleFunc("/accounts/{id:[0-9]+}/interest-rate", h.AdminSetInterestRateHandler).Methods(http.MethodPut).Name("admin_set_interest_rate")
	admin.HandleFunc("/accounts/{id:[0-9]+}/missed-payment-flag", h.AdminSetMissedPaymentFlagHandler).Methods(http.MethodPut).Name("admin_set_missed_payment_flag")

	return r
}
