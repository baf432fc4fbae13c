package domain

import (
	"time"

	"github.com/google/uuid"
)

type BankAccountStatus string

const (
	BankAccountActive   BankAccountStatus = "active"
	BankAccountInactive BankAccountStatus = "inactive"
	BankAccountClosed   BankAccountStatus = "closed"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

type BankAccount struct {
	ID                     uuid.UUID          `json:"id"`
	OwnerID                uuid.UUID          `json:"ownerId"`
	AccountHolderName      string             `json:"accountHolderName"`
	BankName               string             `json:"bankName,omitempty"`
	EncryptedAccountNumber string             `json:"-"`
	EncryptedRoutingNumber string             `json:"-"`
	AccountLast4           string             `json:"accountLast4"`
	Currency               string             `json:"currency"`
	Status                 BankAccountStatus  `json:"status"`
	VerificationStatus     VerificationStatus `json:"verificationStatus"`
	MinimumPayoutAmount    int64              `json:"minimumPayoutAmount"`
	IsDefault              bool               `json:"isDefault"`
	TotalPayouts           int64              `json:"totalPayouts"`
	TotalPayoutAmount      int64              `json:"totalPayoutAmount"`
	LastPayoutDate         *time.Time         `json:"lastPayoutDate,omitempty"`
	VerifiedAt             *time.Time         `json:"verifiedAt,omitempty"`
	CreatedAt              time.Time          `json:"createdAt"`
	UpdatedAt              time.Time          `json:"updatedAt"`
}

// EligibleForPayout reports whether amount may be paid out to the account.
func (b *BankAccount) EligibleForPayout(amount int64) bool {
	return b.Status == BankAccountActive &&
		b.VerificationStatus == VerificationVerified &&
		amount >= b.MinimumPayoutAmount
}

// RecordPayout updates payout aggregates after a completed payout.
func (b *BankAccount) RecordPayout(amount int64, now time.Time) {
	b.TotalPayouts++
	b.TotalPayoutAmount += amount
	b.LastPayoutDate = &now
	b.UpdatedAt = now
}
