package antifraud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"payment-lifecycle-engine/internal/core/domain"
)

var noon = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func knownCustomer() *domain.UsageStats {
	return &domain.UsageStats{TotalTransactions: 12, SuccessfulTransactions: 12, TotalAmount: 50000}
}

func TestScorer_LowRiskCharge(t *testing.T) {
	s := NewScorer(time.UTC)

	got := s.Score(Input{
		Amount:          9999,
		CVVProvided:     true,
		Network:         domain.NetworkVisa,
		CustomerHistory: knownCustomer(),
		At:              noon,
	})

	assert.Equal(t, 0, got.Score)
	assert.Equal(t, domain.RiskLow, got.Level)
	assert.Empty(t, got.Factors)
}

func TestScorer_AllFactors(t *testing.T) {
	s := NewScorer(time.UTC)

	got := s.Score(Input{
		Amount:          60000,
		CVVProvided:     false,
		Network:         domain.NetworkUnknown,
		CustomerHistory: &domain.UsageStats{},
		At:              time.Date(2026, 10, 14, 3, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, 30+25+20+15+10, got.Score)
	assert.Equal(t, domain.RiskVeryHigh, got.Level)
	assert.Len(t, got.Factors, 5)
}

func TestScorer_Weights(t *testing.T) {
	s := NewScorer(time.UTC)
	base := Input{Amount: 5000, CVVProvided: true, Network: domain.NetworkVisa, CustomerHistory: knownCustomer(), At: noon}

	cases := []struct {
		name   string
		mutate func(*Input)
		want   int
	}{
		{"medium amount", func(in *Input) { in.Amount = 10001 }, 10},
		{"boundary $100 is not medium", func(in *Input) { in.Amount = 10000 }, 0},
		{"high amount", func(in *Input) { in.Amount = 50001 }, 30},
		{"no cvv", func(in *Input) { in.CVVProvided = false }, 25},
		{"unknown network", func(in *Input) { in.Network = domain.NetworkUnknown }, 20},
		{"new customer", func(in *Input) { in.CustomerHistory = &domain.UsageStats{} }, 15},
		{"late night", func(in *Input) { in.At = time.Date(2026, 10, 14, 23, 0, 0, 0, time.UTC) }, 10},
		{"early morning", func(in *Input) { in.At = time.Date(2026, 10, 14, 5, 59, 0, 0, time.UTC) }, 10},
		{"hour 22 is fine", func(in *Input) { in.At = time.Date(2026, 10, 14, 22, 30, 0, 0, time.UTC) }, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			assert.Equal(t, tc.want, s.Score(in).Score)
		})
	}
}

func TestScorer_LocalHourUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	s := NewScorer(loc)

	// 12:00 UTC is 04:00 at UTC-8.
	got := s.Score(Input{Amount: 5000, CVVProvided: true, Network: domain.NetworkVisa, CustomerHistory: knownCustomer(), At: noon})
	assert.Equal(t, PointsOddHour, got.Score)
}

func TestScorer_AmountMonotonic(t *testing.T) {
	s := NewScorer(time.UTC)
	variants := []Input{
		{CVVProvided: true, Network: domain.NetworkVisa, CustomerHistory: knownCustomer(), At: noon},
		{CVVProvided: false, Network: domain.NetworkUnknown, CustomerHistory: &domain.UsageStats{}, At: noon},
		{CVVProvided: true, Network: domain.NetworkAmex, CustomerHistory: &domain.UsageStats{}, At: time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)},
	}
	for _, v := range variants {
		prev := -1
		for amount := int64(5000); amount <= 60000; amount += 500 {
			in := v
			in.Amount = amount
			score := s.Score(in).Score
			assert.GreaterOrEqual(t, score, prev, "amount %d", amount)
			prev = score
		}
	}
}

func TestScorer_FailureIsConservative(t *testing.T) {
	s := NewScorer(time.UTC)

	got := s.Score(Input{Amount: 5000, CVVProvided: true, Network: domain.NetworkVisa, At: noon})
	assert.Equal(t, domain.RiskVeryHigh, got.Level, "missing history")

	got = s.Score(Input{Amount: 0, CVVProvided: true, CustomerHistory: knownCustomer(), At: noon})
	assert.Equal(t, domain.RiskVeryHigh, got.Level, "bad amount")

	got = s.Score(Input{Amount: 5000, CVVProvided: true, CustomerHistory: knownCustomer()})
	assert.Equal(t, domain.RiskVeryHigh, got.Level, "no timestamp")
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, domain.RiskLow, LevelFor(29))
	assert.Equal(t, domain.RiskMedium, LevelFor(30))
	assert.Equal(t, domain.RiskHigh, LevelFor(50))
	assert.Equal(t, domain.RiskVeryHigh, LevelFor(70))
}
