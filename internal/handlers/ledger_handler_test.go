package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	mW "github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockLedger) CreateTenant(ctx context.Context, in services.CreateTenantInput) (*models.Tenant, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockLedger) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockLedger) SetTenantStatus(ctx context.Context, in services.SetTenantStatusInput) (*models.Tenant, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockLedger) CreateAccount(ctx context.Context, in services.CreateAccountInput) (*models.Account, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockLedger) GetAccount(ctx context.Context, tenantID, accountID string) (*models.Account, error) {
	args := m.Called(ctx, tenantID, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockLedger) ListAccounts(ctx context.Context, tenantID string) ([]*models.Account, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Account), args.Error(1)
}

func (m *MockLedger) ReparentAccount(ctx context.Context, in services.ReparentAccountInput) (*models.Account, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockLedger) SetAccountStatus(ctx context.Context, in services.SetAccountStatusInput) (*models.Account, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockLedger) GetBalance(ctx context.Context, in services.BalanceInput) (int64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) SubmitTransaction(ctx context.Context, in services.CreateTransactionInput) (*models.Transaction, bool, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*models.Transaction), args.Bool(1), args.Error(2)
}

func (m *MockLedger) GetTransaction(ctx context.Context, tenantID, transactionID string) (*models.Transaction, error) {
	args := m.Called(ctx, tenantID, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockLedger) PostTransaction(ctx context.Context, in services.TransitionInput) (*models.Transaction, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockLedger) CancelTransaction(ctx context.Context, in services.TransitionInput) (*models.Transaction, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func newRouter(ledger Ledger) http.Handler {
	r := chi.NewRouter()
	r.Mount("/api/v1", NewLedgerHandler(ledger, nil, 2).Routes(mW.TenantGuard))
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, bytes.NewReader([]byte(body))))
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestLedgerHandler_CreateTransaction(t *testing.T) {
	t.Run("created with display amounts", func(t *testing.T) {
		ledger := &MockLedger{}
		router := newRouter(ledger)

		in := services.CreateTransactionInput{
			TenantID:  "acme",
			AccountID: "ops",
			Currency:  "USD",
			Entries: []services.EntryInput{
				{AccountID: "cash", Direction: models.DirectionDebit, Amount: 1050},
				{AccountID: "revenue", Direction: models.DirectionCredit, Amount: 1050},
			},
		}
		ledger.On("SubmitTransaction", mock.Anything, in).Return(&models.Transaction{
			ID: "tx-1", TenantID: "acme", AccountID: "ops", Currency: "USD", Status: models.StatusPending,
			Entries: []models.Entry{
				{ID: "e-1", Position: 0, AccountID: "cash", Direction: models.DirectionDebit, Amount: 1050},
				{ID: "e-2", Position: 1, AccountID: "revenue", Direction: models.DirectionCredit, Amount: 1050},
			},
		}, true, nil)

		w := do(t, router, http.MethodPost, "/api/v1/tenants/acme/transactions", `{
			"account_id": "ops", "currency": "USD",
			"entries": [
				{"account_id": "cash", "direction": "DEBIT", "amount": 1050},
				{"account_id": "revenue", "direction": "CREDIT", "amount": 1050}
			]}`)

		require.Equal(t, http.StatusCreated, w.Code)
		var resp struct {
			ID      string `json:"id"`
			Status  string `json:"status"`
			Entries []struct {
				Amount  int64  `json:"amount"`
				Display string `json:"display"`
			} `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "tx-1", resp.ID)
		assert.Equal(t, "PENDING", resp.Status)
		require.Len(t, resp.Entries, 2)
		assert.Equal(t, int64(1050), resp.Entries[0].Amount)
		assert.Equal(t, "10.50", resp.Entries[0].Display)
		ledger.AssertExpectations(t)
	})

	t.Run("unbalanced is 422 with the difference", func(t *testing.T) {
		ledger := &MockLedger{}
		router := newRouter(ledger)

		verr := models.NewValidationError(models.RuleUnbalancedTransaction, "debits 1000 do not equal credits 900")
		verr.Difference = 100
		ledger.On("SubmitTransaction", mock.Anything, mock.Anything).Return(nil, false, verr)

		w := do(t, router, http.MethodPost, "/api/v1/tenants/acme/transactions", `{"account_id":"ops","currency":"USD","entries":[]}`)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "UnbalancedTransaction", resp.Code)
		require.NotNil(t, resp.Difference)
		assert.Equal(t, int64(100), *resp.Difference)
	})

	t.Run("replayed external id is 200", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.On("SubmitTransaction", mock.Anything, mock.MatchedBy(func(in services.CreateTransactionInput) bool {
			return in.ExternalID == "invoice-42"
		})).Return(&models.Transaction{ID: "tx-1", ExternalID: "invoice-42", Status: models.StatusPending}, false, nil)

		w := do(t, newRouter(ledger), http.MethodPost, "/api/v1/tenants/acme/transactions",
			`{"account_id":"ops","currency":"USD","external_id":"invoice-42","entries":[]}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"id":"tx-1"`)
		ledger.AssertExpectations(t)
	})

	t.Run("invalid request body", func(t *testing.T) {
		ledger := &MockLedger{}
		w := do(t, newRouter(ledger), http.MethodPost, "/api/v1/tenants/acme/transactions", "invalid")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		ledger.AssertNotCalled(t, "SubmitTransaction", mock.Anything, mock.Anything)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		w := do(t, newRouter(&MockLedger{}), http.MethodPost, "/api/v1/tenants/acme/transactions", `{"account_id":"ops","amount":5}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("more than one object is rejected", func(t *testing.T) {
		w := do(t, newRouter(&MockLedger{}), http.MethodPost, "/api/v1/tenants/acme/transactions", `{"account_id":"ops"}{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Request body must only contain a single JSON object", decodeError(t, w).Error)
	})
}

func TestLedgerHandler_Transitions(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		method string
		err    error
		want   int
	}{
		{"post ok", "/post", "PostTransaction", nil, http.StatusOK},
		{"cancel ok", "/cancel", "CancelTransaction", nil, http.StatusOK},
		{"terminal state", "/post", "PostTransaction",
			&models.TransitionError{TransactionID: "tx-1", Current: models.StatusCancelled, Attempted: models.StatusPosted}, http.StatusConflict},
		{"not found", "/cancel", "CancelTransaction", models.ErrNotFound, http.StatusNotFound},
		{"contention", "/post", "PostTransaction", models.ErrRetryable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &MockLedger{}
			in := services.TransitionInput{TenantID: "acme", TransactionID: "tx-1"}
			if tt.err != nil {
				ledger.On(tt.method, mock.Anything, in).Return(nil, tt.err)
			} else {
				ledger.On(tt.method, mock.Anything, in).Return(&models.Transaction{ID: "tx-1", Status: models.StatusPosted}, nil)
			}

			w := do(t, newRouter(ledger), http.MethodPost, "/api/v1/tenants/acme/transactions/tx-1"+tt.path, "")
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusServiceUnavailable {
				assert.Equal(t, "1", w.Header().Get("Retry-After"))
				assert.Equal(t, "Retryable", decodeError(t, w).Code)
			}
			ledger.AssertExpectations(t)
		})
	}
}

func TestLedgerHandler_Accounts(t *testing.T) {
	t.Run("reparent into a cycle is 409", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.On("ReparentAccount", mock.Anything, services.ReparentAccountInput{
			TenantID: "acme", AccountID: "B", ParentAccountID: "A",
		}).Return(nil, &models.HierarchyError{Kind: models.HierarchyCyclic, AccountID: "B", ParentID: "A"})

		w := do(t, newRouter(ledger), http.MethodPut, "/api/v1/tenants/acme/accounts/B/parent", `{"parent_account_id":"A"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "CyclicHierarchy", decodeError(t, w).Code)
	})

	t.Run("missing parent is 422", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.On("CreateAccount", mock.Anything, mock.Anything).
			Return(nil, &models.HierarchyError{Kind: models.HierarchyInvalid, ParentID: "nope"})

		w := do(t, newRouter(ledger), http.MethodPost, "/api/v1/tenants/acme/accounts", `{"name":"Cash","parent_account_id":"nope"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("input errors carry field details", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.On("CreateAccount", mock.Anything, mock.Anything).
			Return(nil, &models.InputError{Fields: map[string]string{"CreateAccountInput.name": "failed on 'required'"}})

		w := do(t, newRouter(ledger), http.MethodPost, "/api/v1/tenants/acme/accounts", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "Validation failed", resp.Error)
		assert.Contains(t, resp.Details, "CreateAccountInput.name")
	})

	t.Run("balance with descendants", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.On("GetBalance", mock.Anything, services.BalanceInput{
			TenantID: "acme", AccountID: "ops", IncludeDescendants: true,
		}).Return(int64(-2599), nil)

		w := do(t, newRouter(ledger), http.MethodGet, "/api/v1/tenants/acme/accounts/ops/balance?include_descendants=true", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp balanceResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(-2599), resp.Balance)
		assert.Equal(t, "-25.99", resp.Display)
		assert.True(t, resp.IncludeDescendants)
	})

	t.Run("bad include_descendants", func(t *testing.T) {
		w := do(t, newRouter(&MockLedger{}), http.MethodGet, "/api/v1/tenants/acme/accounts/ops/balance?include_descendants=maybe", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("tenant guard runs first", func(t *testing.T) {
		ledger := &MockLedger{}
		w := do(t, newRouter(ledger), http.MethodGet, "/api/v1/tenants/_bad/accounts", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		ledger.AssertNotCalled(t, "ListAccounts", mock.Anything, mock.Anything)
	})
}

func TestLedgerHandler_Tenants(t *testing.T) {
	ledger := &MockLedger{}
	ledger.On("CreateTenant", mock.Anything, services.CreateTenantInput{Name: "Acme"}).
		Return(&models.Tenant{ID: "acme", Name: "Acme", Status: models.TenantStatusActive}, nil)
	ledger.On("SetTenantStatus", mock.Anything, services.SetTenantStatusInput{TenantID: "acme", Status: models.TenantStatusInactive}).
		Return(&models.Tenant{ID: "acme", Name: "Acme", Status: models.TenantStatusInactive}, nil)
	ledger.On("GetTenant", mock.Anything, "ghost").Return(nil, models.ErrNotFound)

	router := newRouter(ledger)

	w := do(t, router, http.MethodPost, "/api/v1/tenants", `{"name":"Acme"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(t, router, http.MethodPut, "/api/v1/tenants/acme/status", `{"status":"INACTIVE"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/tenants/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	ledger.AssertExpectations(t)
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		resp := decodeError(t, w)
		assert.Equal(t, "Something went wrong", resp.Error)
		assert.Nil(t, resp.Details)
	})

	t.Run("unexpected errors are not leaked", func(t *testing.T) {
		w := httptest.NewRecorder()
		sendLedgerError(w, assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Internal server error", decodeError(t, w).Error)
	})
}

func TestLedgerHandler_Health(t *testing.T) {
	ledger := &MockLedger{}
	ledger.On("Ping", mock.Anything).Return(nil).Once()
	ledger.On("Ping", mock.Anything).Return(assert.AnError).Once()

	h := NewLedgerHandler(ledger, nil, 2)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
