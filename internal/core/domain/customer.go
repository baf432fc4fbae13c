package domain

import (
	"time"

	"github.com/google/uuid"
)

type CustomerStatus string

const (
	CustomerActive    CustomerStatus = "active"
	CustomerInactive  CustomerStatus = "inactive"
	CustomerSuspended CustomerStatus = "suspended"
	CustomerBlocked   CustomerStatus = "blocked"
)

// RiskLevel is shared by customers and risk assessments.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// UsageStats are the aggregate counters kept on customers and payment methods.
type UsageStats struct {
	TotalTransactions      int64 `json:"totalTransactions"`
	SuccessfulTransactions int64 `json:"successfulTransactions"`
	FailedTransactions     int64 `json:"failedTransactions"`
	TotalAmount            int64 `json:"totalAmount"`
}

// Record applies one authorization outcome.
func (s *UsageStats) Record(success bool, amount int64) {
	s.TotalTransactions++
	if success {
		s.SuccessfulTransactions++
		s.TotalAmount += amount
		return
	}
	s.FailedTransactions++
}

// FailureRate is failed/total, 0 when there is no history.
func (s UsageStats) FailureRate() float64 {
	if s.TotalTransactions == 0 {
		return 0
	}
	return float64(s.FailedTransactions) / float64(s.TotalTransactions)
}

type Customer struct {
	ID        uuid.UUID      `json:"id"`
	Email     string         `json:"email"`
	FirstName string         `json:"firstName,omitempty"`
	LastName  string         `json:"lastName,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Address   Address        `json:"address"`
	Status    CustomerStatus `json:"status"`
	RiskLevel RiskLevel      `json:"riskLevel"`
	UsageStats
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ApplyOutcome records an authorization result and recomputes the risk level.
func (c *Customer) ApplyOutcome(success bool, amount int64, now time.Time) {
	c.Record(success, amount)
	c.RiskLevel = RiskLevelForFailureRate(c.FailureRate())
	c.UpdatedAt = now
}

// RiskLevelForFailureRate maps a historical failure rate onto a risk level.
func RiskLevelForFailureRate(rate float64) RiskLevel {
	switch {
	case rate > 0.50:
		return RiskVeryHigh
	case rate > 0.25:
		return RiskHigh
	case rate > 0.10:
		return RiskMedium
	default:
		return RiskLow
	}
}
