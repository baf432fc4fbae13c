package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

func amountOf(v int64) *int64 { return &v }

func TestRefundService_PartialRefundsKeepBalance(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	ctx := context.Background()
	tx := h.completedCharge(t, 10000)

	steps := []struct {
		amount     int64
		refundType domain.RefundType
		status     domain.TransactionStatus
		refundable int64
	}{
		{3000, domain.RefundPartial, domain.StatusPartiallyRefunded, 7000},
		{2000, domain.RefundPartial, domain.StatusPartiallyRefunded, 5000},
		{5000, domain.RefundFull, domain.StatusRefunded, 0},
	}

	// --- Act & Assert ---
	for _, step := range steps {
		refund, err := h.refunds.Process(ctx, ports.RefundRequest{
			TransactionID: tx.ID,
			Amount:        amountOf(step.amount),
			Reason:        domain.ReasonProductUnacceptable,
			InitiatedBy:   "support",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.RefundCompleted, refund.Status)
		assert.Equal(t, step.refundType, refund.RefundType)

		current, err := h.store.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, step.status, current.Status)
		assert.Equal(t, step.refundable, current.RefundableAmount)
		assert.NoError(t, current.CheckBalance())
	}

	_, err := h.refunds.Process(ctx, ports.RefundRequest{
		TransactionID: tx.ID,
		Amount:        amountOf(1),
		Reason:        domain.ReasonOther,
	})
	assert.ErrorIs(t, err, domain.ErrNotEligible)
	assert.Equal(t, int64(0), h.sim.Captured(tx.GatewayTransactionID))

	refunds, err := h.refunds.ListRefunds(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, refunds, 3)
}

func TestRefundService_FeeAndNetAmount(t *testing.T) {
	h := newHarness(t)
	tx := h.completedCharge(t, 10000)

	refund, err := h.refunds.Process(context.Background(), ports.RefundRequest{
		TransactionID: tx.ID,
		Amount:        amountOf(3000),
		Reason:        domain.ReasonDuplicate,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(15), refund.RefundFee)
	assert.Equal(t, int64(2985), refund.NetRefundAmount)
	assert.NotEmpty(t, refund.GatewayRefundID)
	require.NotNil(t, refund.ProcessedAt)
}

func TestRefundService_LargeRefundNeedsApproval(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	ctx := context.Background()
	tx := h.completedCharge(t, 60000)

	// --- Act ---
	refund, err := h.refunds.Process(ctx, ports.RefundRequest{
		TransactionID: tx.ID,
		Reason:        domain.ReasonRequestedByCustomer,
		InitiatedBy:   "support",
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, domain.RefundPending, refund.Status)
	assert.True(t, refund.RequiresApproval)
	assert.Contains(t, h.publisher.types(), domain.EventRefundPendingApproval)

	unchanged, err := h.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), unchanged.RefundableAmount)

	_, err = h.refunds.Approve(ctx, refund.ID, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	approved, err := h.refunds.Approve(ctx, refund.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundCompleted, approved.Status)
	assert.Equal(t, "manager", approved.ApprovedBy)
	assert.Equal(t, domain.RefundFull, approved.RefundType)

	_, err = h.refunds.Approve(ctx, refund.ID, "manager")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRequiresApproval(t *testing.T) {
	assert.False(t, RequiresApproval(ApprovalThreshold, domain.ReasonOther))
	assert.True(t, RequiresApproval(ApprovalThreshold+1, domain.ReasonOther))
	assert.True(t, RequiresApproval(100, domain.ReasonFraudulent))
	assert.True(t, RequiresApproval(100, domain.ReasonChargeback))
	assert.False(t, RequiresApproval(100, domain.ReasonDuplicate))
}

func TestRefundService_InFlightRefundBlocksAnother(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tx := h.completedCharge(t, 5000)

	pending, err := h.refunds.Process(ctx, ports.RefundRequest{
		TransactionID: tx.ID,
		Amount:        amountOf(1000),
		Reason:        domain.ReasonFraudulent,
	})
	require.NoError(t, err)
	require.Equal(t, domain.RefundPending, pending.Status)

	_, err = h.refunds.Process(ctx, ports.RefundRequest{TransactionID: tx.ID, Amount: amountOf(500), Reason: domain.ReasonOther})
	assert.ErrorIs(t, err, domain.ErrNotEligible)

	el, err := h.refunds.Eligibility(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, el.Eligible)
	assert.Equal(t, "another refund is in progress", el.Reason)

	cancelled, err := h.refunds.Cancel(ctx, pending.ID, "duplicate request")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundCancelled, cancelled.Status)

	_, err = h.refunds.Approve(ctx, pending.ID, "manager")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = h.refunds.Cancel(ctx, pending.ID, "again")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	done, err := h.refunds.Process(ctx, ports.RefundRequest{TransactionID: tx.ID, Amount: amountOf(500), Reason: domain.ReasonOther})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundCompleted, done.Status)
}

func TestRefundService_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tx := h.completedCharge(t, 10000)

	cases := []struct {
		name   string
		req    ports.RefundRequest
		target error
	}{
		{"over refundable", ports.RefundRequest{TransactionID: tx.ID, Amount: amountOf(10001), Reason: domain.ReasonOther}, domain.ErrValidation},
		{"zero amount", ports.RefundRequest{TransactionID: tx.ID, Amount: amountOf(0), Reason: domain.ReasonOther}, domain.ErrValidation},
		{"unknown reason", ports.RefundRequest{TransactionID: tx.ID, Reason: "changed_mind"}, domain.ErrValidation},
		{"unknown transaction", ports.RefundRequest{TransactionID: uuid.New(), Reason: domain.ReasonOther}, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.refunds.Process(ctx, tc.req)
			assert.ErrorIs(t, err, tc.target)
		})
	}

	refunds, err := h.refunds.ListRefunds(ctx, tx.ID)
	require.NoError(t, err)
	assert.Empty(t, refunds)

	_, err = h.refunds.ListRefunds(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRefundService_IneligibleTransactions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.knownCustomer(t)

	failed, err := h.transactions.Charge(ctx, cardRequest(customer.ID, 1000, "4000000000000002", "123"))
	require.Error(t, err)
	_, err = h.refunds.Process(ctx, ports.RefundRequest{TransactionID: failed.ID, Reason: domain.ReasonOther})
	assert.ErrorIs(t, err, domain.ErrNotEligible)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	old := h.completedCharge(t, 1000)
	h.clock.Advance(RefundWindow + time.Hour)
	_, err = h.refunds.Process(ctx, ports.RefundRequest{TransactionID: old.ID, Reason: domain.ReasonOther})
	assert.ErrorIs(t, err, domain.ErrNotEligible)

	el, err := h.refunds.Eligibility(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, el.Eligible)
	assert.Equal(t, "transaction is older than 180 days", el.Reason)
}

func TestRefundService_GatewayDeclineLeavesBalance(t *testing.T) {
	// --- Arrange ---
	gw := new(MockGateway)
	gw.On("Charge", mock.Anything, int64(4000), "USD", mock.Anything).
		Return(ports.ChargeResult{Approved: true, GatewayTransactionID: "gw_42", ResponseCode: domain.CodeSuccess}, nil)
	gw.On("Refund", mock.Anything, "gw_42", int64(4000)).
		Return(ports.RefundResult{ResponseCode: domain.CodeDeclined, ResponseMessage: "Refund declined"}, nil).Once()
	h := newHarnessWithGateway(t, gw)
	ctx := context.Background()
	tx := h.completedCharge(t, 4000)

	// --- Act ---
	refund, err := h.refunds.Process(ctx, ports.RefundRequest{TransactionID: tx.ID, Reason: domain.ReasonOther})

	// --- Assert ---
	assert.ErrorIs(t, err, domain.ErrPaymentDeclined)
	require.NotNil(t, refund)
	assert.Equal(t, domain.RefundFailed, refund.Status)
	assert.Equal(t, domain.CodeDeclined, refund.ResponseCode)

	current, err := h.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, current.Status)
	assert.Equal(t, int64(4000), current.RefundableAmount)

	el, err := h.refunds.Eligibility(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, el.Eligible)
	assert.Contains(t, h.publisher.types(), domain.EventRefundFailed)
	gw.AssertExpectations(t)
}
