package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is our own type for statuses to avoid "magic strings".
type TransactionStatus string

const (
	StatusPending           TransactionStatus = "pending"
	StatusProcessing        TransactionStatus = "processing"
	StatusCompleted         TransactionStatus = "completed"
	StatusFailed            TransactionStatus = "failed"
	StatusCancelled         TransactionStatus = "cancelled"
	StatusPartiallyRefunded TransactionStatus = "partially_refunded"
	StatusRefunded          TransactionStatus = "refunded"
)

// Amount bounds in minor units.
const (
	MinTransactionAmount int64 = 1
	MaxTransactionAmount int64 = 99_999_999
)

var supportedCurrencies = map[string]bool{"USD": true, "EUR": true, "GBP": true, "CAD": true}

// SupportedCurrency reports whether code is accepted for charges.
func SupportedCurrency(code string) bool { return supportedCurrencies[code] }

// Transaction is the central entity of our domain. Amounts are minor units.
type Transaction struct {
	ID                   uuid.UUID         `json:"id"`
	CustomerID           uuid.UUID         `json:"customerId"`
	PaymentMethodID      uuid.UUID         `json:"paymentMethodId"`
	Amount               int64             `json:"amount"`
	Currency             string            `json:"currency"`
	Status               TransactionStatus `json:"status"`
	ProcessingFee        int64             `json:"processingFee"`
	NetAmount            int64             `json:"netAmount"`
	RefundedAmount       int64             `json:"refundedAmount"`
	RefundableAmount     int64             `json:"refundableAmount"`
	OrderID              string            `json:"orderId,omitempty"`
	Description          string            `json:"description,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	Risk                 *RiskAssessment   `json:"risk,omitempty"`
	GatewayTransactionID string            `json:"gatewayTransactionId,omitempty"`
	ResponseCode         ResponseCode      `json:"responseCode,omitempty"`
	ResponseMessage      string            `json:"responseMessage,omitempty"`
	ProcessingTimeMs     int64             `json:"processingTimeMs"`
	CancelReason         string            `json:"cancelReason,omitempty"`
	ProcessingStartedAt  *time.Time        `json:"processingStartedAt,omitempty"`
	CompletedAt          *time.Time        `json:"completedAt,omitempty"`
	FailedAt             *time.Time        `json:"failedAt,omitempty"`
	CancelledAt          *time.Time        `json:"cancelledAt,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
}

// CanTransitionTo returns nil if moving from the current status to target is allowed.
//
//   - pending → processing, cancelled
//   - processing → completed, failed, cancelled
//   - completed → partially_refunded, refunded
//   - partially_refunded → partially_refunded, refunded
func (t *Transaction) CanTransitionTo(target TransactionStatus) error {
	switch t.Status {
	case StatusPending:
		if target == StatusProcessing || target == StatusCancelled {
			return nil
		}
	case StatusProcessing:
		if target == StatusCompleted || target == StatusFailed || target == StatusCancelled {
			return nil
		}
	case StatusCompleted, StatusPartiallyRefunded:
		if target == StatusPartiallyRefunded || target == StatusRefunded {
			return nil
		}
	}
	return invalidState("transaction", string(t.Status), "move to "+string(target))
}

// IsTerminal reports whether no further authorization work can happen.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case StatusFailed, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// StartProcessing marks the start of authorization.
func (t *Transaction) StartProcessing(now time.Time) error {
	if t.Status != StatusPending {
		return invalidState("transaction", string(t.Status), "authorize")
	}
	t.Status = StatusProcessing
	t.ProcessingStartedAt = &now
	t.UpdatedAt = now
	return nil
}

// Complete records an approved authorization.
func (t *Transaction) Complete(gatewayTxID string, code ResponseCode, message string, now time.Time) error {
	if err := t.CanTransitionTo(StatusCompleted); err != nil {
		return err
	}
	t.Status = StatusCompleted
	t.GatewayTransactionID = gatewayTxID
	t.ResponseCode = code
	t.ResponseMessage = message
	t.RefundedAmount = 0
	t.RefundableAmount = t.Amount
	t.CompletedAt = &now
	t.recordDuration(now)
	return nil
}

// Fail records a declined or errored authorization.
func (t *Transaction) Fail(gatewayTxID string, code ResponseCode, message string, now time.Time) error {
	if err := t.CanTransitionTo(StatusFailed); err != nil {
		return err
	}
	t.Status = StatusFailed
	t.GatewayTransactionID = gatewayTxID
	t.ResponseCode = code
	t.ResponseMessage = message
	t.FailedAt = &now
	t.recordDuration(now)
	return nil
}

// Cancel moves a not-yet-completed transaction to cancelled.
func (t *Transaction) Cancel(reason string, now time.Time) error {
	if err := t.CanTransitionTo(StatusCancelled); err != nil {
		return err
	}
	t.Status = StatusCancelled
	t.CancelReason = reason
	t.CancelledAt = &now
	t.UpdatedAt = now
	return nil
}

// ApplyRefund moves amount from the refundable to the refunded balance.
func (t *Transaction) ApplyRefund(amount int64, now time.Time) error {
	if amount <= 0 || amount > t.RefundableAmount {
		return fmt.Errorf("%w: refund of %d exceeds refundable %d", ErrInvariantViolation, amount, t.RefundableAmount)
	}
	next := StatusPartiallyRefunded
	if t.RefundableAmount-amount == 0 {
		next = StatusRefunded
	}
	if err := t.CanTransitionTo(next); err != nil {
		return err
	}
	t.RefundedAmount += amount
	t.RefundableAmount -= amount
	t.Status = next
	t.UpdatedAt = now
	return t.CheckBalance()
}

// CheckBalance verifies refundable + refunded == amount.
func (t *Transaction) CheckBalance() error {
	if t.RefundableAmount+t.RefundedAmount != t.Amount || t.RefundableAmount < 0 || t.RefundedAmount < 0 {
		return fmt.Errorf("%w: transaction %s amount=%d refunded=%d refundable=%d",
			ErrInvariantViolation, t.ID, t.Amount, t.RefundedAmount, t.RefundableAmount)
	}
	return nil
}

func (t *Transaction) recordDuration(now time.Time) {
	if t.ProcessingStartedAt != nil {
		t.ProcessingTimeMs = now.Sub(*t.ProcessingStartedAt).Milliseconds()
	}
	t.UpdatedAt = now
}
