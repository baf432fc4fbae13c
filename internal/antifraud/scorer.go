package antifraud

import (
	"fmt"
	"time"

	"payment-lifecycle-engine/internal/core/domain"
)

// Point weights. Callers rely on these exact values for compatibility.
const (
	PointsHighAmount     = 30
	PointsMediumAmount   = 10
	PointsNoCVV          = 25
	PointsUnknownNetwork = 20
	PointsNewCustomer    = 15
	PointsOddHour        = 10

	highAmountThreshold   int64 = 50000
	mediumAmountThreshold int64 = 10000
)

// Input carries everything the scorer looks at.
type Input struct {
	Amount          int64
	CVVProvided     bool
	Network         domain.CardNetwork
	CustomerHistory *domain.UsageStats
	At              time.Time
}

// Scorer is an additive point model. It holds no mutable state.
type Scorer struct {
	loc *time.Location
}

// NewScorer evaluates the odd-hour rule in loc (time.Local when nil).
func NewScorer(loc *time.Location) *Scorer {
	if loc == nil {
		loc = time.Local
	}
	return &Scorer{loc: loc}
}

// Score computes the risk assessment. Any failure yields very_high.
func (s *Scorer) Score(in Input) (result domain.RiskAssessment) {
	defer func() {
		if r := recover(); r != nil {
			result = Conservative(fmt.Sprintf("scoring failed: %v", r))
		}
	}()

	if err := in.validate(); err != nil {
		return Conservative(err.Error())
	}

	var factors []domain.RiskFactor
	add := func(code, desc string, points int) {
		factors = append(factors, domain.RiskFactor{Code: code, Description: desc, Points: points})
	}

	switch {
	case in.Amount > highAmountThreshold:
		add("high_amount", "high amount", PointsHighAmount)
	case in.Amount > mediumAmountThreshold:
		add("medium_amount", "medium amount", PointsMediumAmount)
	}
	if !in.CVVProvided {
		add("no_cvv", "no CVV provided", PointsNoCVV)
	}
	if in.Network == domain.NetworkUnknown || in.Network == "" {
		add("unknown_network", "card network unknown", PointsUnknownNetwork)
	}
	if in.CustomerHistory.TotalTransactions == 0 {
		add("new_customer", "customer has no prior transactions", PointsNewCustomer)
	}
	if hour := in.At.In(s.loc).Hour(); hour < 6 || hour > 22 {
		add("odd_hour", fmt.Sprintf("transaction at local hour %d", hour), PointsOddHour)
	}

	score := 0
	for _, f := range factors {
		score += f.Points
	}
	if factors == nil {
		factors = []domain.RiskFactor{}
	}
	return domain.RiskAssessment{Score: score, Level: LevelFor(score), Factors: factors}
}

// LevelFor maps a score onto a discrete level.
func LevelFor(score int) domain.RiskLevel {
	switch {
	case score >= 70:
		return domain.RiskVeryHigh
	case score >= 50:
		return domain.RiskHigh
	case score >= 30:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Conservative is the outcome used when scoring cannot complete.
func Conservative(reason string) domain.RiskAssessment {
	return domain.RiskAssessment{
		Score:   100,
		Level:   domain.RiskVeryHigh,
		Factors: []domain.RiskFactor{{Code: "scoring_unavailable", Description: reason, Points: 100}},
	}
}

func (in Input) validate() error {
	switch {
	case in.Amount <= 0:
		return fmt.Errorf("amount %d is not positive", in.Amount)
	case in.CustomerHistory == nil:
		return fmt.Errorf("customer history unavailable")
	case in.At.IsZero():
		return fmt.Errorf("transaction time unavailable")
	}
	return nil
}
