package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payment-lifecycle-engine/internal/adapters/storage/memory"
	"payment-lifecycle-engine/internal/app"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/gateway"
	"payment-lifecycle-engine/internal/tokenizer"
)

var testSecret = []byte("handler-test-jwt-secret")

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestRouter(t *testing.T, withAuth bool) http.Handler {
	t.Helper()
	clock := fixedClock{now: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	tok, err := tokenizer.New([]byte("0123456789abcdef0123456789abcdef"), tokenizer.WithClock(clock.Now))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sim := gateway.NewSimulator(7, 0, 0)
	deps := app.Deps{
		Store:     memory.NewStore(),
		Gateway:   sim,
		Payouts:   sim,
		Locker:    memory.NewLocker(),
		Tokenizer: tok,
		Clock:     clock,
		Logger:    logger,
	}
	h := NewHandler(Services{
		Transactions: app.NewTransactionService(deps, time.Second),
		Refunds:      app.NewRefundService(deps, time.Second),
		Payouts:      app.NewPayoutService(deps, app.PayoutOptions{}),
		Customers:    app.NewCustomerService(deps),
		BankAccounts: app.NewBankAccountService(deps),
	}, logger)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		if withAuth {
			r.Use(JWTMiddleware(testSecret, logger))
		}
		h.Routes(r)
	})
	return r
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Field   string          `json:"field"`
}

func do(t *testing.T, router http.Handler, method, path string, body any, token string) (int, response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func paymentBody(email, number string, amount int64) map[string]any {
	return map[string]any{
		"amount":   amount,
		"currency": "USD",
		"cardData": map[string]any{
			"cardNumber":     number,
			"expiryDate":     "12/30",
			"cvv":            "123",
			"cardholderName": "Jordan Example",
		},
		"customerInfo": map[string]any{"email": email},
	}
}

type paymentData struct {
	Transaction struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
	} `json:"transaction"`
	Gateway struct {
		ResponseCode string `json:"responseCode"`
	} `json:"gateway"`
}

func signedToken(t *testing.T, method jwt.SigningMethod, key any, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestHandleProcessPayment_Approved(t *testing.T) {
	router := newTestRouter(t, false)

	status, resp := do(t, router, http.MethodPost, "/api/v1/payments/process", paymentBody("ok@example.com", "4111111111111111", 5000), "")

	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	var data paymentData
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "completed", data.Transaction.Status)
	assert.Equal(t, "00", data.Gateway.ResponseCode)

	status, resp = do(t, router, http.MethodGet, "/api/v1/transactions/"+data.Transaction.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
}

func TestHandleProcessPayment_DeclinedReturnsTransaction(t *testing.T) {
	router := newTestRouter(t, false)

	status, resp := do(t, router, http.MethodPost, "/api/v1/payments/process", paymentBody("declined@example.com", "4000000000000002", 5000), "")

	require.Equal(t, http.StatusPaymentRequired, status)
	assert.False(t, resp.Success)
	assert.Equal(t, "05", resp.Code)
	var data paymentData
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "failed", data.Transaction.Status)
	assert.Equal(t, "05", data.Gateway.ResponseCode)
}

func TestHandleProcessPayment_Validation(t *testing.T) {
	router := newTestRouter(t, false)

	status, resp := do(t, router, http.MethodPost, "/api/v1/payments/process", paymentBody("small@example.com", "4111111111111111", 0), "")

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", resp.Code)
	assert.Equal(t, "amount", resp.Field)
}

func TestHandler_NotFoundAndBadID(t *testing.T) {
	router := newTestRouter(t, false)

	status, resp := do(t, router, http.MethodGet, "/api/v1/transactions/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", resp.Code)

	status, _ = do(t, router, http.MethodGet, "/api/v1/refunds/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandler_RefundFlow(t *testing.T) {
	router := newTestRouter(t, false)
	_, resp := do(t, router, http.MethodPost, "/api/v1/payments/process", paymentBody("refund@example.com", "4111111111111111", 5000), "")
	var data paymentData
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	txPath := "/api/v1/transactions/" + data.Transaction.ID.String()

	status, resp := do(t, router, http.MethodGet, txPath+"/refund-eligibility", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"eligible":true}`, string(resp.Data))

	status, resp = do(t, router, http.MethodPost, "/api/v1/refunds", map[string]any{
		"transactionId": data.Transaction.ID,
		"amount":        2000,
		"reason":        "requested_by_customer",
		"initiatedBy":   "support",
	}, "")
	require.Equal(t, http.StatusOK, status, resp.Error)
	var refund struct {
		Status string `json:"status"`
		Type   string `json:"refundType"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &refund))
	assert.Equal(t, "completed", refund.Status)
	assert.Equal(t, "partial", refund.Type)

	status, resp = do(t, router, http.MethodGet, txPath+"/refunds", nil, "")
	require.Equal(t, http.StatusOK, status)
	var refunds []json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Data, &refunds))
	assert.Len(t, refunds, 1)

	// 3000 remain refundable.
	status, resp = do(t, router, http.MethodPost, "/api/v1/refunds", map[string]any{
		"transactionId": data.Transaction.ID,
		"amount":        3001,
		"reason":        "requested_by_customer",
		"initiatedBy":   "support",
	}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "amount", resp.Field)
}

func TestHandler_PayoutTransferFailureAccepted(t *testing.T) {
	router := newTestRouter(t, false)

	status, resp := do(t, router, http.MethodPost, "/api/v1/bank-accounts", map[string]any{
		"ownerId":           uuid.New(),
		"accountHolderName": "Jordan Example",
		"accountNumber":     "123450000",
		"routingNumber":     "110000000",
		"currency":          "USD",
	}, "")
	require.Equal(t, http.StatusCreated, status, resp.Error)
	var acct struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &acct))

	status, _ = do(t, router, http.MethodPost, "/api/v1/bank-accounts/"+acct.ID.String()+"/verify", map[string]any{"verified": true}, "")
	require.Equal(t, http.StatusOK, status)

	status, resp = do(t, router, http.MethodPost, "/api/v1/payouts", map[string]any{
		"bankAccountId": acct.ID,
		"amount":        10000,
		"currency":      "USD",
	}, "")

	require.Equal(t, http.StatusAccepted, status, resp.Error)
	assert.False(t, resp.Success)
	assert.Equal(t, "R02", resp.Code)
	var payout struct {
		Status     string `json:"status"`
		RetryCount int    `json:"retryCount"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &payout))
	assert.Equal(t, "failed", payout.Status)
	assert.Equal(t, 1, payout.RetryCount)

	status, resp = do(t, router, http.MethodGet, "/api/v1/payouts/retryable", nil, "")
	require.Equal(t, http.StatusOK, status)
	var retryable []json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Data, &retryable))
	assert.Empty(t, retryable, "backoff has not elapsed on the fixed clock")
}

func TestJWTMiddleware(t *testing.T) {
	router := newTestRouter(t, true)
	body := paymentBody("jwt@example.com", "4111111111111111", 5000)

	status, resp := do(t, router, http.MethodPost, "/api/v1/payments/process", body, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Authorization header required", resp.Error)

	status, _ = do(t, router, http.MethodPost, "/api/v1/payments/process", body, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, status)

	forged := signedToken(t, jwt.SigningMethodHS256, []byte("another-secret"), "mallory")
	status, _ = do(t, router, http.MethodPost, "/api/v1/payments/process", body, forged)
	assert.Equal(t, http.StatusUnauthorized, status)

	token := signedToken(t, jwt.SigningMethodHS256, testSecret, "agent-17")
	status, resp = do(t, router, http.MethodPost, "/api/v1/payments/process", body, token)
	require.Equal(t, http.StatusOK, status)
	var data paymentData
	require.NoError(t, json.Unmarshal(resp.Data, &data))

	status, resp = do(t, router, http.MethodPost, "/api/v1/refunds", map[string]any{
		"transactionId": data.Transaction.ID,
		"reason":        "duplicate",
	}, token)
	require.Equal(t, http.StatusOK, status, resp.Error)
	var refund struct {
		InitiatedBy string `json:"initiatedBy"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &refund))
	assert.Equal(t, "agent-17", refund.InitiatedBy)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("amount", "too small"), http.StatusBadRequest},
		{fmt.Errorf("load: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrCustomerInactive, http.StatusForbidden},
		{domain.ErrCard, http.StatusUnprocessableEntity},
		{domain.ErrPaymentDeclined, http.StatusPaymentRequired},
		{domain.ErrNotEligible, http.StatusConflict},
		{domain.ErrInvalidState, http.StatusConflict},
		{domain.ErrLockNotAcquired, http.StatusLocked},
		{domain.ErrProcessing, http.StatusBadGateway},
		{domain.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFor(tc.err))
		})
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.8:51544"
	assert.Equal(t, "ip:10.0.0.8", clientKey(req))

	ctx := req.Context()
	ctx = contextWithClaims(ctx, jwt.MapClaims{"sub": "agent-17"})
	assert.Equal(t, "sub:agent-17", clientKey(req.WithContext(ctx)))
}
