package domain

import (
	"time"

	"github.com/google/uuid"
)

type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
	RefundCancelled  RefundStatus = "cancelled"
)

type RefundType string

const (
	RefundFull    RefundType = "full"
	RefundPartial RefundType = "partial"
)

type RefundReason string

const (
	ReasonDuplicate           RefundReason = "duplicate"
	ReasonFraudulent          RefundReason = "fraudulent_transaction"
	ReasonRequestedByCustomer RefundReason = "requested_by_customer"
	ReasonChargeback          RefundReason = "chargeback"
	ReasonProductNotReceived  RefundReason = "product_not_received"
	ReasonProductUnacceptable RefundReason = "product_unacceptable"
	ReasonOther               RefundReason = "other"
)

var refundReasons = map[RefundReason]bool{
	ReasonDuplicate:           true,
	ReasonFraudulent:          true,
	ReasonRequestedByCustomer: true,
	ReasonChargeback:          true,
	ReasonProductNotReceived:  true,
	ReasonProductUnacceptable: true,
	ReasonOther:               true,
}

// Valid reports whether r is a known refund reason.
func (r RefundReason) Valid() bool { return refundReasons[r] }

// MinRefundAmount is $0.01.
const MinRefundAmount int64 = 1

type Refund struct {
	ID                  uuid.UUID    `json:"id"`
	TransactionID       uuid.UUID    `json:"transactionId"`
	CustomerID          uuid.UUID    `json:"customerId"`
	Amount              int64        `json:"amount"`
	Currency            string       `json:"currency"`
	RefundFee           int64        `json:"refundFee"`
	NetRefundAmount     int64        `json:"netRefundAmount"`
	RefundType          RefundType   `json:"refundType"`
	Reason              RefundReason `json:"reason"`
	Status              RefundStatus `json:"status"`
	RequiresApproval    bool         `json:"requiresApproval"`
	InitiatedBy         string       `json:"initiatedBy"`
	ApprovedBy          string       `json:"approvedBy,omitempty"`
	ApprovedAt          *time.Time   `json:"approvedAt,omitempty"`
	GatewayRefundID     string       `json:"gatewayRefundId,omitempty"`
	ResponseCode        ResponseCode `json:"responseCode,omitempty"`
	ResponseMessage     string       `json:"responseMessage,omitempty"`
	CancelReason        string       `json:"cancelReason,omitempty"`
	ProcessingStartedAt *time.Time   `json:"processingStartedAt,omitempty"`
	ProcessedAt         *time.Time   `json:"processedAt,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

// InFlight reports whether the refund still occupies its transaction.
func (r *Refund) InFlight() bool {
	return r.Status == RefundPending || r.Status == RefundProcessing
}

// CanApprove reports whether approve is legal for the refund.
func (r *Refund) CanApprove() error {
	if r.Status != RefundPending || !r.RequiresApproval || r.ApprovedAt != nil {
		return invalidState("refund", string(r.Status), "approve")
	}
	return nil
}

// Approve records the approver.
func (r *Refund) Approve(approver string, now time.Time) error {
	if err := r.CanApprove(); err != nil {
		return err
	}
	r.ApprovedBy = approver
	r.ApprovedAt = &now
	r.UpdatedAt = now
	return nil
}

// StartProcessing moves a pending refund to processing ahead of gateway dispatch.
func (r *Refund) StartProcessing(now time.Time) error {
	if r.Status != RefundPending {
		return invalidState("refund", string(r.Status), "dispatch")
	}
	if r.RequiresApproval && r.ApprovedAt == nil {
		return invalidState("refund", "awaiting approval", "dispatch")
	}
	r.Status = RefundProcessing
	r.ProcessingStartedAt = &now
	r.UpdatedAt = now
	return nil
}

// Complete marks a processing refund as completed with its final type.
func (r *Refund) Complete(gatewayRefundID string, refundType RefundType, code ResponseCode, message string, now time.Time) error {
	if r.Status != RefundProcessing {
		return invalidState("refund", string(r.Status), "complete")
	}
	r.Status = RefundCompleted
	r.GatewayRefundID = gatewayRefundID
	r.RefundType = refundType
	r.ResponseCode = code
	r.ResponseMessage = message
	r.ProcessedAt = &now
	r.UpdatedAt = now
	return nil
}

// Fail marks a processing refund as failed.
func (r *Refund) Fail(code ResponseCode, message string, now time.Time) error {
	if r.Status != RefundProcessing {
		return invalidState("refund", string(r.Status), "fail")
	}
	r.Status = RefundFailed
	r.ResponseCode = code
	r.ResponseMessage = message
	r.ProcessedAt = &now
	r.UpdatedAt = now
	return nil
}

// Cancel is only legal while the refund is in flight.
func (r *Refund) Cancel(reason string, now time.Time) error {
	if !r.InFlight() {
		return invalidState("refund", string(r.Status), "cancel")
	}
	r.Status = RefundCancelled
	r.CancelReason = reason
	r.UpdatedAt = now
	return nil
}
