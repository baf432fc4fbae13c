package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// DefaultPayoutMaxRetries applies when a payout is created without an explicit limit.
const DefaultPayoutMaxRetries = 3

type Payout struct {
	ID                  uuid.UUID    `json:"id"`
	BankAccountID       uuid.UUID    `json:"bankAccountId"`
	Amount              int64        `json:"amount"`
	Currency            string       `json:"currency"`
	ProcessingFee       int64        `json:"processingFee"`
	NetAmount           int64        `json:"netAmount"`
	Status              PayoutStatus `json:"status"`
	Description         string       `json:"description,omitempty"`
	RetryCount          int          `json:"retryCount"`
	MaxRetries          int          `json:"maxRetries"`
	NextRetryAt         *time.Time   `json:"nextRetryAt,omitempty"`
	FailureReason       string       `json:"failureReason,omitempty"`
	FailureCode         string       `json:"failureCode,omitempty"`
	TransferReference   string       `json:"transferReference,omitempty"`
	ProcessingStartedAt *time.Time   `json:"processingStartedAt,omitempty"`
	CompletedAt         *time.Time   `json:"completedAt,omitempty"`
	FailedAt            *time.Time   `json:"failedAt,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

// StartProcessing moves a pending payout to processing.
func (p *Payout) StartProcessing(now time.Time) error {
	if p.Status != PayoutPending {
		return invalidState("payout", string(p.Status), "process")
	}
	p.Status = PayoutProcessing
	p.ProcessingStartedAt = &now
	p.UpdatedAt = now
	return nil
}

// Complete marks a processing payout as paid out.
func (p *Payout) Complete(reference string, now time.Time) error {
	if p.Status != PayoutProcessing {
		return invalidState("payout", string(p.Status), "complete")
	}
	p.Status = PayoutCompleted
	p.TransferReference = reference
	p.NextRetryAt = nil
	p.CompletedAt = &now
	p.UpdatedAt = now
	return nil
}

// MarkFailed records a failure and schedules the next retry with exponential
// backoff of 2^retryCount minutes while retries remain.
func (p *Payout) MarkFailed(reason, code string, now time.Time) error {
	if p.Status != PayoutProcessing && p.Status != PayoutPending {
		return invalidState("payout", string(p.Status), "fail")
	}
	p.Status = PayoutFailed
	p.FailureReason = reason
	p.FailureCode = code
	p.FailedAt = &now
	p.UpdatedAt = now
	if p.RetryCount < p.MaxRetries {
		p.RetryCount++
	}
	if p.RetryCount < p.MaxRetries {
		next := now.Add(RetryBackoff(p.RetryCount))
		p.NextRetryAt = &next
	} else {
		p.NextRetryAt = nil
	}
	return nil
}

// Retryable reports whether the scheduler may pick the payout up at now.
func (p *Payout) Retryable(now time.Time) bool {
	if p.Status != PayoutFailed || p.RetryCount >= p.MaxRetries {
		return false
	}
	return p.NextRetryAt == nil || !p.NextRetryAt.After(now)
}

// Requeue returns a retryable failed payout to pending.
func (p *Payout) Requeue(now time.Time) error {
	if !p.Retryable(now) {
		return invalidState("payout", string(p.Status), "retry")
	}
	p.Status = PayoutPending
	p.NextRetryAt = nil
	p.UpdatedAt = now
	return nil
}

// RetryBackoff is 2^attempt minutes.
func RetryBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Minute
}
