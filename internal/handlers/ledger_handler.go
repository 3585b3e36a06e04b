package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
)

// Ledger is the service surface the HTTP layer calls.
type Ledger interface {
	Ping(ctx context.Context) error

	CreateTenant(ctx context.Context, in services.CreateTenantInput) (*models.Tenant, error)
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
	SetTenantStatus(ctx context.Context, in services.SetTenantStatusInput) (*models.Tenant, error)

	CreateAccount(ctx context.Context, in services.CreateAccountInput) (*models.Account, error)
	GetAccount(ctx context.Context, tenantID, accountID string) (*models.Account, error)
	ListAccounts(ctx context.Context, tenantID string) ([]*models.Account, error)
	ReparentAccount(ctx context.Context, in services.ReparentAccountInput) (*models.Account, error)
	SetAccountStatus(ctx context.Context, in services.SetAccountStatusInput) (*models.Account, error)
	GetBalance(ctx context.Context, in services.BalanceInput) (int64, error)

	SubmitTransaction(ctx context.Context, in services.CreateTransactionInput) (*models.Transaction, bool, error)
	GetTransaction(ctx context.Context, tenantID, transactionID string) (*models.Transaction, error)
	PostTransaction(ctx context.Context, in services.TransitionInput) (*models.Transaction, error)
	CancelTransaction(ctx context.Context, in services.TransitionInput) (*models.Transaction, error)
}

var _ Ledger = (*services.LedgerService)(nil)

type LedgerHandler struct {
	ledger     Ledger
	logger     *zap.Logger
	minorUnits int32
}

// NewLedgerHandler renders amounts with minorUnits decimal places next to
// their integer minor-unit value.
func NewLedgerHandler(ledger Ledger, logger *zap.Logger, minorUnits int32) *LedgerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerHandler{ledger: ledger, logger: logger, minorUnits: minorUnits}
}

// Routes mounts the ledger API. Every tenant-scoped route passes tenantGuard.
func (h *LedgerHandler) Routes(tenantGuard func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/tenants", h.CreateTenant)
	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		if tenantGuard != nil {
			r.Use(tenantGuard)
		}
		r.Get("/", h.GetTenant)
		r.Put("/status", h.SetTenantStatus)

		r.Post("/accounts", h.CreateAccount)
		r.Get("/accounts", h.ListAccounts)
		r.Get("/accounts/{accountID}", h.GetAccount)
		r.Put("/accounts/{accountID}/parent", h.ReparentAccount)
		r.Put("/accounts/{accountID}/status", h.SetAccountStatus)
		r.Get("/accounts/{accountID}/balance", h.GetBalance)

		r.Post("/transactions", h.CreateTransaction)
		r.Get("/transactions/{transactionID}", h.GetTransaction)
		r.Post("/transactions/{transactionID}/post", h.PostTransaction)
		r.Post("/transactions/{transactionID}/cancel", h.CancelTransaction)
	})
	return r
}

// Health reports whether the backing store answers.
func (h *LedgerHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// @Summary Create tenant
// @Tags Tenants
// @Accept json
// @Produce json
// @Param request body services.CreateTenantInput true "Tenant"
// @Success 201 {object} models.Tenant
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tenants [post]
func (h *LedgerHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req services.CreateTenantInput
	if !decodeJSON(w, r, &req) {
		return
	}
	tenant, err := h.ledger.CreateTenant(r.Context(), req)
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

// @Summary Get tenant
// @Tags Tenants
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} models.Tenant
// @Failure 404 {object} ErrorResponse
// @Router /tenants/{tenantID} [get]
func (h *LedgerHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.ledger.GetTenant(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

type statusRequest struct {
	Status string `json:"status"`
}

// @Summary Activate or deactivate tenant
// @Tags Tenants
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param request body statusRequest true "ACTIVE or INACTIVE"
// @Success 200 {object} models.Tenant
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tenants/{tenantID}/status [put]
func (h *LedgerHandler) SetTenantStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tenant, err := h.ledger.SetTenantStatus(r.Context(), services.SetTenantStatusInput{
		TenantID: chi.URLParam(r, "tenantID"),
		Status:   models.TenantStatus(req.Status),
	})
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

type createAccountRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ParentAccountID string `json:"parent_account_id"`
}

// @Summary Create account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param request body createAccountRequest true "Account"
// @Success 201 {object} models.Account
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /tenants/{tenantID}/accounts [post]
func (h *LedgerHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := h.ledger.CreateAccount(r.Context(), services.CreateAccountInput{
		TenantID:        chi.URLParam(r, "tenantID"),
		ID:              req.ID,
		Name:            req.Name,
		ParentAccountID: req.ParentAccountID,
	})
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// @Summary List accounts
// @Tags Accounts
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} object{accounts=[]models.Account}
// @Failure 404 {object} ErrorResponse
// @Router /tenants/{tenantID}/accounts [get]
func (h *LedgerHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.ListAccounts(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// @Summary Get account
// @Tags Accounts
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param accountID path string true "Account ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} ErrorResponse
// @Router /tenants/{tenantID}/accounts/{accountID} [get]
func (h *LedgerHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.GetAccount(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "accountID"))
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type reparentRequest struct {
	ParentAccountID string `json:"parent_account_id"`
}

// @Summary Move account under a new parent
// @Tags Accounts
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param accountID path string true "Account ID"
// @Param request body reparentRequest true "Empty parent makes the account a root"
// @Success 200 {object} models.Account
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /tenants/{tenantID}/accounts/{accountID}/parent [put]
func (h *LedgerHandler) ReparentAccount(w http.ResponseWriter, r *http.Request) {
	var req reparentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := h.ledger.ReparentAccount(r.Context(), services.ReparentAccountInput{
		TenantID:        chi.URLParam(r, "tenantID"),
		AccountID:       chi.URLParam(r, "accountID"),
		ParentAccountID: req.ParentAccountID,
	})
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// @Summary Activate or deactivate account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param accountID path string true "Account ID"
// @Param request body statusRequest true "ACTIVE or INACTIVE"
// @Success 200 {object} models.Account
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tenants/{tenantID}/accounts/{accountID}/status [put]
func (h *LedgerHandler) SetAccountStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := h.ledger.SetAccountStatus(r.Context(), services.SetAccountStatusInput{
		TenantID:  chi.URLParam(r, "tenantID"),
		AccountID: chi.URLParam(r, "accountID"),
		Status:    models.AccountStatus(req.Status),
	})
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type balanceResponse struct {
	TenantID           string `json:"tenant_id"`
	AccountID          string `json:"account_id"`
	IncludeDescendants bool   `json:"include_descendants"`
	Balance            int64  `json:"balance"`
	Display            string `json:"display"`
}

// @Summary Posted balance
// @Tags Accounts
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param accountID path string true "Account ID"
// @Param include_descendants query bool false "Sum the whole subtree"
// @Success 200 {object} balanceResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /tenants/{tenantID}/accounts/{accountID}/balance [get]
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	includeDescendants := false
	if raw := r.URL.Query().Get("include_descendants"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			SendErrorResponse(w, "include_descendants must be a boolean", http.StatusBadRequest, nil)
			return
		}
		includeDescendants = v
	}

	in := services.BalanceInput{
		TenantID:           chi.URLParam(r, "tenantID"),
		AccountID:          chi.URLParam(r, "accountID"),
		IncludeDescendants: includeDescendants,
	}
	balance, err := h.ledger.GetBalance(r.Context(), in)
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		TenantID:           in.TenantID,
		AccountID:          in.AccountID,
		IncludeDescendants: includeDescendants,
		Balance:            balance,
		Display:            h.display(balance),
	})
}

type createTransactionRequest struct {
	AccountID  string                `json:"account_id"`
	Memo       string                `json:"memo"`
	Currency   string                `json:"currency"`
	ExternalID string                `json:"external_id"`
	Entries    []services.EntryInput `json:"entries"`
}

// @Summary Create pending transaction
// @Description Replaying an external_id returns the stored transaction with 200.
// @Tags Transactions
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param request body createTransactionRequest true "Transaction"
// @Success 201 {object} transactionResponse
// @Success 200 {object} transactionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /tenants/{tenantID}/transactions [post]
func (h *LedgerHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	txn, created, err := h.ledger.SubmitTransaction(r.Context(), services.CreateTransactionInput{
		TenantID:   chi.URLParam(r, "tenantID"),
		AccountID:  req.AccountID,
		Memo:       req.Memo,
		Currency:   req.Currency,
		ExternalID: req.ExternalID,
		Entries:    req.Entries,
	})
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	// a replayed external id answers 200 with the stored transaction
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, h.transaction(txn))
}

// @Summary Get transaction
// @Tags Transactions
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param transactionID path string true "Transaction ID"
// @Success 200 {object} transactionResponse
// @Failure 404 {object} ErrorResponse
// @Router /tenants/{tenantID}/transactions/{transactionID} [get]
func (h *LedgerHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.ledger.GetTransaction(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "transactionID"))
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.transaction(txn))
}

// @Summary Post transaction
// @Tags Transactions
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param transactionID path string true "Transaction ID"
// @Success 200 {object} transactionResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /tenants/{tenantID}/transactions/{transactionID}/post [post]
func (h *LedgerHandler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ledger.PostTransaction)
}

// @Summary Cancel transaction
// @Tags Transactions
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param transactionID path string true "Transaction ID"
// @Success 200 {object} transactionResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /tenants/{tenantID}/transactions/{transactionID}/cancel [post]
func (h *LedgerHandler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ledger.CancelTransaction)
}

func (h *LedgerHandler) transition(w http.ResponseWriter, r *http.Request,
	op func(context.Context, services.TransitionInput) (*models.Transaction, error)) {
	txn, err := op(r.Context(), services.TransitionInput{
		TenantID:      chi.URLParam(r, "tenantID"),
		TransactionID: chi.URLParam(r, "transactionID"),
	})
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.transaction(txn))
}

type entryResponse struct {
	models.Entry
	Display string `json:"display"`
}

type transactionResponse struct {
	*models.Transaction
	Entries []entryResponse `json:"entries"`
}

func (h *LedgerHandler) transaction(txn *models.Transaction) transactionResponse {
	entries := make([]entryResponse, 0, len(txn.Entries))
	for _, e := range txn.Entries {
		entries = append(entries, entryResponse{Entry: e, Display: h.display(e.Amount)})
	}
	return transactionResponse{Transaction: txn, Entries: entries}
}

// display renders a minor-unit amount exactly, e.g. 1050 -> "10.50".
func (h *LedgerHandler) display(amount int64) string {
	return decimal.New(amount, -h.minorUnits).StringFixed(h.minorUnits)
}
