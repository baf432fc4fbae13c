package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

func visa(last4 string) domain.TokenizedCard {
	return domain.TokenizedCard{Token: "tok", Network: domain.NetworkVisa, Last4: last4, CVV: "123"}
}

func TestSimulator_ChargeAndRefund(t *testing.T) {
	sim := NewSimulator(42, 0, 0)
	ctx := context.Background()

	res, err := sim.Charge(ctx, 9999, "USD", visa("1111"))
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Equal(t, domain.CodeSuccess, res.ResponseCode)
	assert.NotEmpty(t, res.GatewayTransactionID)

	ref, err := sim.Refund(ctx, res.GatewayTransactionID, 4000)
	require.NoError(t, err)
	assert.True(t, ref.Approved)
	assert.Equal(t, int64(5999), sim.Captured(res.GatewayTransactionID))

	ref, err = sim.Refund(ctx, res.GatewayTransactionID, 6000)
	require.NoError(t, err)
	assert.False(t, ref.Approved)
	assert.Equal(t, domain.CodeDeclined, ref.ResponseCode)

	ref, err = sim.Refund(ctx, "missing", 1)
	require.NoError(t, err)
	assert.False(t, ref.Approved)
}

func TestSimulator_MagicCards(t *testing.T) {
	sim := NewSimulator(1, 0, 0)
	cases := map[string]domain.ResponseCode{
		"0002": domain.CodeDeclined,
		"9995": domain.CodeInsufficientFunds,
		"0069": domain.CodeExpiredCard,
		"0127": domain.CodeInvalidCVV,
		"0119": domain.CodeProcessingError,
	}
	for last4, code := range cases {
		res, err := sim.Charge(context.Background(), 1000, "USD", visa(last4))
		require.NoError(t, err)
		assert.False(t, res.Approved, last4)
		assert.Equal(t, code, res.ResponseCode, last4)
	}
}

func TestSimulator_SeededFailuresAreDeterministic(t *testing.T) {
	run := func() []bool {
		sim := NewSimulator(7, 0.5, 0)
		var out []bool
		for i := 0; i < 20; i++ {
			res, err := sim.Charge(context.Background(), 1000, "USD", visa("1111"))
			require.NoError(t, err)
			out = append(out, res.Approved)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestSimulator_RespectsContext(t *testing.T) {
	sim := NewSimulator(1, 0, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := sim.Charge(ctx, 1000, "USD", visa("1111"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimulator_Transfer(t *testing.T) {
	sim := NewSimulator(1, 0, 0)

	res, err := sim.Transfer(context.Background(), ports.TransferRequest{Amount: 1000, Currency: "USD", AccountLast4: "6789"})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.NotEmpty(t, res.Reference)

	res, err = sim.Transfer(context.Background(), ports.TransferRequest{Amount: 1000, Currency: "USD", AccountLast4: "0000"})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "R02", res.FailureCode)
}
