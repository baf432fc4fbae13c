package clickhouse

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payment-lifecycle-engine/internal/core/domain"
)

func TestReportFromTransaction(t *testing.T) {
	at := time.Date(2026, 10, 14, 3, 0, 0, 0, time.UTC)
	tx := domain.Transaction{
		ID:           uuid.New(),
		CustomerID:   uuid.New(),
		Amount:       60000,
		Currency:     "USD",
		Status:       domain.StatusFailed,
		ResponseCode: domain.CodeFraudSuspected,
		Risk: &domain.RiskAssessment{
			Score: 80,
			Level: domain.RiskVeryHigh,
			Factors: []domain.RiskFactor{
				{Code: "high_amount", Points: 30},
				{Code: "no_cvv", Points: 25},
			},
		},
	}
	payload, err := json.Marshal(tx)
	require.NoError(t, err)

	rep, ok, err := ReportFromTransaction(payload, at, at.Add(time.Second))

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tx.ID.String(), rep.TransactionID)
	assert.Equal(t, int32(80), rep.RiskScore)
	assert.Equal(t, "very_high", rep.RiskLevel)
	assert.Equal(t, []string{"high_amount", "no_cvv"}, rep.Factors)
	assert.Equal(t, "59", rep.ResponseCode)
	assert.Equal(t, at, rep.OccurredAt)
}

func TestReportFromTransaction_Unscored(t *testing.T) {
	payload, err := json.Marshal(domain.Transaction{ID: uuid.New(), Status: domain.StatusCancelled})
	require.NoError(t, err)

	_, ok, err := ReportFromTransaction(payload, time.Now(), time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ReportFromTransaction([]byte("nope"), time.Now(), time.Now())
	assert.Error(t, err)
}

func TestLevelsFrom(t *testing.T) {
	assert.Equal(t, []string{"high", "very_high"}, levelsFrom(domain.RiskHigh))
	assert.Equal(t, []string{"low", "medium", "high", "very_high"}, levelsFrom(domain.RiskLow))
	assert.Len(t, levelsFrom(""), 4)
}
