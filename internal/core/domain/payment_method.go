package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentMethodStatus string

const (
	PaymentMethodActive   PaymentMethodStatus = "active"
	PaymentMethodInactive PaymentMethodStatus = "inactive"
	PaymentMethodExpired  PaymentMethodStatus = "expired"
)

type PaymentMethod struct {
	ID                uuid.UUID           `json:"id"`
	CustomerID        uuid.UUID           `json:"customerId"`
	Type              string              `json:"type"`
	CardToken         string              `json:"cardToken"`
	EncryptedCardData string              `json:"-"`
	Fingerprint       string              `json:"-"`
	CardBrand         CardNetwork         `json:"cardBrand"`
	Last4             string              `json:"last4"`
	BIN               string              `json:"bin"`
	ExpiryMonth       int                 `json:"expiryMonth"`
	ExpiryYear        int                 `json:"expiryYear"`
	CardholderName    string              `json:"cardholderName,omitempty"`
	IsDefault         bool                `json:"isDefault"`
	Status            PaymentMethodStatus `json:"status"`
	UsageStats
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ExpireIfDue moves an active method whose card has lapsed to expired.
// It reports whether the status changed.
func (pm *PaymentMethod) ExpireIfDue(now time.Time) bool {
	if pm.Status != PaymentMethodActive || !CardExpired(pm.ExpiryMonth, pm.ExpiryYear, now) {
		return false
	}
	pm.Status = PaymentMethodExpired
	pm.UpdatedAt = now
	return true
}

// ApplyOutcome records an authorization result against the method.
func (pm *PaymentMethod) ApplyOutcome(success bool, amount int64, now time.Time) {
	pm.Record(success, amount)
	pm.LastUsedAt = &now
	pm.UpdatedAt = now
}

// CardExpired reports whether a card expiring at month/year is no longer usable.
// A card stays valid through the last day of its expiry month.
func CardExpired(month, year int, now time.Time) bool {
	if month < 1 || month > 12 || year <= 0 {
		return true
	}
	lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, now.Location())
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return lastDay.Before(firstOfMonth)
}
