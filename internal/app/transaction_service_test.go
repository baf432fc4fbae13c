package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

func TestTransactionService_ChargeThenFullRefund(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	ctx := context.Background()
	customer := h.knownCustomer(t)

	// --- Act ---
	tx, err := h.transactions.Charge(ctx, cardRequest(customer.ID, 9999, "4111111111111111", "123"))

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, tx.Status)
	assert.Equal(t, domain.CodeSuccess, tx.ResponseCode)
	require.NotNil(t, tx.Risk)
	assert.Equal(t, domain.RiskLow, tx.Risk.Level)
	assert.Equal(t, int64(9999), tx.RefundableAmount)
	assert.Equal(t, int64(320), tx.ProcessingFee)
	assert.Equal(t, int64(9999-320), tx.NetAmount)
	assert.NotEmpty(t, tx.GatewayTransactionID)

	refund, err := h.refunds.Process(ctx, ports.RefundRequest{
		TransactionID: tx.ID,
		Reason:        domain.ReasonRequestedByCustomer,
		InitiatedBy:   "support",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundCompleted, refund.Status)
	assert.Equal(t, domain.RefundFull, refund.RefundType)
	assert.Equal(t, int64(9999), refund.Amount)
	assert.Equal(t, refund.Amount-refund.RefundFee, refund.NetRefundAmount)

	tx, err = h.transactions.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, tx.Status)
	assert.Equal(t, int64(0), tx.RefundableAmount)
	assert.Equal(t, int64(9999), tx.RefundedAmount)

	assert.Equal(t, []domain.EventType{domain.EventTransactionCompleted, domain.EventRefundCompleted}, h.publisher.types())
}

func TestTransactionService_Charge_UpdatesAggregates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.knownCustomer(t)

	tx, err := h.transactions.Charge(ctx, cardRequest(customer.ID, 2500, "4111111111111111", "123"))
	require.NoError(t, err)

	c, err := h.store.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(21), c.TotalTransactions)
	assert.Equal(t, int64(21), c.SuccessfulTransactions)
	assert.Equal(t, int64(200000+2500), c.TotalAmount)

	pm, err := h.store.GetPaymentMethod(ctx, tx.PaymentMethodID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pm.SuccessfulTransactions)
	assert.True(t, pm.IsDefault)
	assert.Equal(t, "1111", pm.Last4)
	assert.Equal(t, "411111", pm.BIN)
	assert.Equal(t, domain.NetworkVisa, pm.CardBrand)
	assert.Len(t, pm.CardToken, 32)
	assert.NotContains(t, pm.EncryptedCardData, "4111111111111111")
	require.NotNil(t, pm.LastUsedAt)
}

func TestTransactionService_VeryHighRiskSkipsGateway(t *testing.T) {
	// --- Arrange ---
	gw := new(MockGateway)
	h := newHarnessWithGateway(t, gw)
	h.clock.Advance(-9 * time.Hour) // 03:00 UTC

	req := ports.ChargeRequest{
		Amount:       60000,
		Currency:     "USD",
		CustomerInfo: &ports.CustomerInfo{Email: "new@example.com"},
		CardData:     &domain.CardData{CardNumber: "4111111111111111", ExpiryDate: "12/30", CardholderName: "New Person"},
	}

	// --- Act ---
	tx, err := h.transactions.Charge(context.Background(), req)

	// --- Assert ---
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPaymentDeclined)
	require.NotNil(t, tx)
	assert.Equal(t, domain.StatusFailed, tx.Status)
	assert.Equal(t, domain.CodeFraudSuspected, tx.ResponseCode)
	assert.Equal(t, domain.RiskVeryHigh, tx.Risk.Level)
	assert.Equal(t, 30+25+15+10, tx.Risk.Score)
	gw.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	c, err := h.store.GetCustomerByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.FailedTransactions)
	assert.Equal(t, domain.RiskVeryHigh, c.RiskLevel)
	assert.Equal(t, []domain.EventType{domain.EventTransactionFailed}, h.publisher.types())
}

func TestTransactionService_GatewayDecline(t *testing.T) {
	cases := []struct {
		number string
		code   domain.ResponseCode
		target error
	}{
		{"4000000000000002", domain.CodeDeclined, domain.ErrPaymentDeclined},
		{"4000000000009995", domain.CodeInsufficientFunds, domain.ErrPaymentDeclined},
		{"4000000000000069", domain.CodeExpiredCard, domain.ErrPaymentDeclined},
		{"4000000000000127", domain.CodeInvalidCVV, domain.ErrPaymentDeclined},
		{"4000000000000119", domain.CodeProcessingError, domain.ErrProcessing},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			h := newHarness(t)
			customer := h.knownCustomer(t)

			tx, err := h.transactions.Charge(context.Background(), cardRequest(customer.ID, 1500, tc.number, "123"))

			assert.ErrorIs(t, err, tc.target)
			require.NotNil(t, tx)
			assert.Equal(t, domain.StatusFailed, tx.Status)
			assert.Equal(t, tc.code, tx.ResponseCode)
			assert.NotEmpty(t, tx.ResponseMessage)
			assert.Equal(t, int64(1500), tx.RefundableAmount+tx.RefundedAmount)

			c, err := h.store.GetCustomer(context.Background(), customer.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), c.FailedTransactions)
		})
	}
}

func TestTransactionService_GatewayTimeoutFailsTransaction(t *testing.T) {
	gw := new(MockGateway)
	gw.On("Charge", mock.Anything, int64(5000), "USD", mock.Anything).
		Return(ports.ChargeResult{}, context.DeadlineExceeded).Once()
	h := newHarnessWithGateway(t, gw)
	customer := h.knownCustomer(t)

	tx, err := h.transactions.Charge(context.Background(), cardRequest(customer.ID, 5000, "4111111111111111", "123"))

	assert.ErrorIs(t, err, domain.ErrProcessing)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, tx)
	assert.Equal(t, domain.StatusFailed, tx.Status)
	assert.Equal(t, domain.CodeProcessingError, tx.ResponseCode)
	gw.AssertExpectations(t)
}

func TestTransactionService_AuthorizeTwiceIsInvalidState(t *testing.T) {
	gw := new(MockGateway)
	gw.On("Charge", mock.Anything, int64(1200), "USD", mock.MatchedBy(func(c domain.TokenizedCard) bool {
		return c.Last4 == "1111" && c.CVV == "123" && len(c.Token) == 32
	})).Return(ports.ChargeResult{Approved: true, GatewayTransactionID: "gw_1", ResponseCode: domain.CodeSuccess}, nil).Once()
	h := newHarnessWithGateway(t, gw)
	customer := h.knownCustomer(t)

	tx, err := h.transactions.Charge(context.Background(), cardRequest(customer.ID, 1200, "4111111111111111", "123"))
	require.NoError(t, err)

	_, err = h.transactions.Authorize(context.Background(), tx.ID, "123")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	gw.AssertNumberOfCalls(t, "Charge", 1)
}

func TestTransactionService_CreateValidation(t *testing.T) {
	h := newHarness(t)
	customer := h.knownCustomer(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		req    ports.ChargeRequest
		target error
	}{
		{"zero amount", cardRequest(customer.ID, 0, "4111111111111111", "123"), domain.ErrValidation},
		{"too large", cardRequest(customer.ID, domain.MaxTransactionAmount+1, "4111111111111111", "123"), domain.ErrValidation},
		{"bad luhn", cardRequest(customer.ID, 100, "4111111111111112", "123"), domain.ErrCard},
		{"bad cvv", cardRequest(customer.ID, 100, "4111111111111111", "12"), domain.ErrCard},
		{"no card", ports.ChargeRequest{Amount: 100, Currency: "USD", CustomerID: &customer.ID}, domain.ErrValidation},
		{"no customer", ports.ChargeRequest{Amount: 100, Currency: "USD", CardData: &domain.CardData{CardNumber: "4111111111111111", ExpiryDate: "12/30"}}, domain.ErrValidation},
		{"unknown customer", cardRequest(uuid.New(), 100, "4111111111111111", "123"), domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.transactions.CreateTransaction(ctx, tc.req)
			assert.ErrorIs(t, err, tc.target)
		})
	}

	req := cardRequest(customer.ID, 100, "4111111111111111", "123")
	req.Currency = "JPY"
	_, err := h.transactions.CreateTransaction(ctx, req)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "currency", verr.Field)

	req = cardRequest(customer.ID, 100, "4111111111111112", "123")
	_, err = h.transactions.CreateTransaction(ctx, req)
	var cerr *domain.CardError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, domain.CodeInvalidCard, cerr.Code)
}

func TestTransactionService_CreatePersistsPending(t *testing.T) {
	h := newHarness(t)
	customer := h.knownCustomer(t)

	req := cardRequest(customer.ID, 4200, "4111111111111111", "123")
	req.Currency = "eur"
	req.Metadata = map[string]string{"channel": "web"}
	tx, err := h.transactions.CreateTransaction(context.Background(), req)
	require.NoError(t, err)

	stored, err := h.store.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, "EUR", stored.Currency)
	assert.Equal(t, int64(4200), stored.RefundableAmount)
	assert.Equal(t, int64(0), stored.RefundedAmount)
	assert.Equal(t, "web", stored.Metadata["channel"])
	assert.NoError(t, stored.CheckBalance())
}

func TestTransactionService_DeduplicatesByFingerprint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.knownCustomer(t)

	first, err := h.transactions.Charge(ctx, cardRequest(customer.ID, 1000, "4111 1111 1111 1111", "123"))
	require.NoError(t, err)
	second, err := h.transactions.Charge(ctx, cardRequest(customer.ID, 2000, "4111111111111111", "123"))
	require.NoError(t, err)
	assert.Equal(t, first.PaymentMethodID, second.PaymentMethodID)

	other, err := h.transactions.Charge(ctx, cardRequest(customer.ID, 3000, "5555555555554444", "123"))
	require.NoError(t, err)
	assert.NotEqual(t, first.PaymentMethodID, other.PaymentMethodID)

	methods, err := h.customers.ListPaymentMethods(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, methods, 2)
	defaults := 0
	for _, pm := range methods {
		if pm.IsDefault {
			defaults++
			assert.Equal(t, first.PaymentMethodID, pm.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestTransactionService_ChargeStoredPaymentMethod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.completedCharge(t, 1000)

	tx, err := h.transactions.Charge(ctx, ports.ChargeRequest{Amount: 700, Currency: "USD", PaymentMethodID: &first.PaymentMethodID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, tx.Status)
	assert.Equal(t, first.CustomerID, tx.CustomerID)

	stranger := h.knownCustomer(t)
	_, err = h.transactions.Charge(ctx, ports.ChargeRequest{
		Amount: 700, Currency: "USD", CustomerID: &stranger.ID, PaymentMethodID: &first.PaymentMethodID,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTransactionService_InactiveCustomerRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.knownCustomer(t)
	customer.Status = domain.CustomerSuspended
	require.NoError(t, h.store.UpdateCustomer(ctx, customer))

	_, err := h.transactions.Charge(ctx, cardRequest(customer.ID, 1000, "4111111111111111", "123"))
	assert.ErrorIs(t, err, domain.ErrCustomerInactive)
}

func TestTransactionService_ExpiredPaymentMethodIsExpiredLazily(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.knownCustomer(t)
	pm := &domain.PaymentMethod{
		ID:          uuid.New(),
		CustomerID:  customer.ID,
		Type:        "card",
		CardToken:   "0123456789abcdef0123456789abcdef",
		CardBrand:   domain.NetworkVisa,
		Last4:       "1111",
		ExpiryMonth: 9,
		ExpiryYear:  2026,
		Status:      domain.PaymentMethodActive,
		CreatedAt:   noon,
		UpdatedAt:   noon,
	}
	require.NoError(t, h.store.CreatePaymentMethod(ctx, pm))

	_, err := h.transactions.Charge(ctx, ports.ChargeRequest{Amount: 1000, Currency: "USD", PaymentMethodID: &pm.ID})

	var cerr *domain.CardError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, domain.CodeExpiredCard, cerr.Code)
	stored, err := h.store.GetPaymentMethod(ctx, pm.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodExpired, stored.Status)
}

func TestTransactionService_AuthorizeExpiresCardLapsedSinceCreation(t *testing.T) {
	gw := new(MockGateway)
	h := newHarnessWithGateway(t, gw)
	ctx := context.Background()
	customer := h.knownCustomer(t)
	pm := &domain.PaymentMethod{
		ID:          uuid.New(),
		CustomerID:  customer.ID,
		Type:        "card",
		CardToken:   "0123456789abcdef0123456789abcdef",
		CardBrand:   domain.NetworkVisa,
		Last4:       "1111",
		ExpiryMonth: 10,
		ExpiryYear:  2026,
		Status:      domain.PaymentMethodActive,
		CreatedAt:   noon,
		UpdatedAt:   noon,
	}
	require.NoError(t, h.store.CreatePaymentMethod(ctx, pm))
	pending, err := h.transactions.CreateTransaction(ctx, ports.ChargeRequest{Amount: 1000, Currency: "USD", PaymentMethodID: &pm.ID})
	require.NoError(t, err)
	h.clock.Advance(20 * 24 * time.Hour)

	tx, err := h.transactions.Authorize(ctx, pending.ID, "123")

	var cerr *domain.CardError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, domain.CodeExpiredCard, cerr.Code)
	require.NotNil(t, tx)
	assert.Equal(t, domain.StatusFailed, tx.Status)
	assert.Equal(t, domain.CodeExpiredCard, tx.ResponseCode)
	stored, err := h.store.GetPaymentMethod(ctx, pm.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodExpired, stored.Status)
	gw.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTransactionService_Cancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.knownCustomer(t)

	tx, err := h.transactions.CreateTransaction(ctx, cardRequest(customer.ID, 1000, "4111111111111111", "123"))
	require.NoError(t, err)

	cancelled, err := h.transactions.CancelTransaction(ctx, tx.ID, "customer changed mind")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, "customer changed mind", cancelled.CancelReason)

	_, err = h.transactions.Authorize(ctx, tx.ID, "123")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	done := h.completedCharge(t, 1000)
	_, err = h.transactions.CancelTransaction(ctx, done.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
