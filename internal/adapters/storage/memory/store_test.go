package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	c := &domain.Customer{ID: uuid.New(), Email: "a@example.com", Status: domain.CustomerActive}
	require.NoError(t, s.CreateCustomer(ctx, c))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		got, err := repo.GetCustomer(ctx, c.ID)
		require.NoError(t, err)
		got.Status = domain.CustomerBlocked
		require.NoError(t, repo.UpdateCustomer(ctx, got))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CustomerActive, got.Status)
}

func TestStore_NotFound(t *testing.T) {
	s := NewStore()
	_, err := s.GetTransaction(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = s.UpdatePayout(context.Background(), &domain.Payout{ID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tx := &domain.Transaction{ID: uuid.New(), Amount: 100, RefundableAmount: 100, Status: domain.StatusPending}
	require.NoError(t, s.CreateTransaction(ctx, tx))

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	got.Status = domain.StatusFailed

	again, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status)
}

func TestStore_ListRetryablePayouts(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Minute)

	due := domain.Payout{ID: uuid.New(), Status: domain.PayoutFailed, RetryCount: 1, MaxRetries: 3, NextRetryAt: &past, CreatedAt: now}
	later := domain.Payout{ID: uuid.New(), Status: domain.PayoutFailed, RetryCount: 1, MaxRetries: 3, NextRetryAt: &future, CreatedAt: now}
	exhausted := domain.Payout{ID: uuid.New(), Status: domain.PayoutFailed, RetryCount: 3, MaxRetries: 3, CreatedAt: now}
	for _, p := range []domain.Payout{due, later, exhausted} {
		p := p
		require.NoError(t, s.CreatePayout(ctx, &p))
	}

	got, err := s.ListRetryablePayouts(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
}

func TestLocker_ExclusiveUntilReleased(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "payout:1", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "payout:1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, "payout:1", time.Minute)
	assert.NoError(t, err)
}
