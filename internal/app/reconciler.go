package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
	"payment-lifecycle-engine/internal/observability"
)

const (
	staleMessage = "Timed out awaiting processor response"

	// reconcileLockTTL bounds how long a reconcile pass holds a payout lock.
	reconcileLockTTL = 30 * time.Second
)

// ReconcileReport counts records resolved by one ResolveStale pass.
type ReconcileReport struct {
	Transactions int `json:"transactions"`
	Refunds      int `json:"refunds"`
	Payouts      int `json:"payouts"`
}

// Reconciler resolves records left in processing, e.g. after a crash between
// the gateway call and the second store transaction.
type Reconciler struct {
	deps      Deps
	batchSize int
}

func NewReconciler(deps Deps, batchSize int) *Reconciler {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Reconciler{deps: deps.withDefaults(), batchSize: batchSize}
}

// ResolveStale fails every transaction and refund that has been processing for
// longer than olderThan. Stale payouts go through MarkFailed so they stay retryable;
// a transaction or payout whose lock is still held by a submission is left alone.
// Each record is resolved in its own store transaction.
func (r *Reconciler) ResolveStale(ctx context.Context, olderThan time.Duration) (ReconcileReport, error) {
	var report ReconcileReport
	now := r.deps.Clock.Now()
	cutoff := now.Add(-olderThan)

	txs, err := r.deps.Store.ListStaleTransactions(ctx, cutoff, r.batchSize)
	if err != nil {
		return report, err
	}
	for _, stale := range txs {
		ok, err := r.resolveTransaction(ctx, stale.ID, cutoff, now)
		if err != nil {
			return report, err
		}
		if ok {
			report.Transactions++
		}
	}

	refunds, err := r.deps.Store.ListStaleRefunds(ctx, cutoff, r.batchSize)
	if err != nil {
		return report, err
	}
	for _, stale := range refunds {
		ok, err := r.resolveRefund(ctx, stale.ID, cutoff, now)
		if err != nil {
			return report, err
		}
		if ok {
			report.Refunds++
		}
	}

	payouts, err := r.deps.Store.ListStalePayouts(ctx, cutoff, r.batchSize)
	if err != nil {
		return report, err
	}
	for _, stale := range payouts {
		ok, err := r.resolvePayout(ctx, stale.ID, cutoff, now)
		if err != nil {
			return report, err
		}
		if ok {
			report.Payouts++
		}
	}

	if report != (ReconcileReport{}) {
		r.deps.Logger.Warn("resolved stale records",
			"transactions", report.Transactions, "refunds", report.Refunds, "payouts", report.Payouts)
	}
	return report, nil
}

func stillStale(status, processing string, startedAt *time.Time, cutoff time.Time) bool {
	return status == processing && startedAt != nil && startedAt.Before(cutoff)
}

// lockInFlight takes the lock a submission holds while its gateway call runs.
// ok is false when the record is still being submitted or the lock failed.
func (r *Reconciler) lockInFlight(ctx context.Context, key, idKey string, id uuid.UUID) (release func(), ok bool, err error) {
	release, err = r.deps.acquire(ctx, key, reconcileLockTTL)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		r.deps.Logger.Info("stale record still being submitted, skipping", idKey, id)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return release, true, nil
}

func (r *Reconciler) resolveTransaction(ctx context.Context, id uuid.UUID, cutoff, now time.Time) (bool, error) {
	release, ok, err := r.lockInFlight(ctx, transactionLockKey(id), "transaction_id", id)
	if !ok {
		return false, err
	}
	defer release()

	var resolved *domain.Transaction
	err = r.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		tx, err := repo.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if !stillStale(string(tx.Status), string(domain.StatusProcessing), tx.ProcessingStartedAt, cutoff) {
			return nil
		}
		if err := tx.Fail(tx.GatewayTransactionID, domain.CodeProcessingError, staleMessage, now); err != nil {
			return err
		}
		c, err := repo.GetCustomer(ctx, tx.CustomerID)
		if err != nil {
			return err
		}
		pm, err := repo.GetPaymentMethod(ctx, tx.PaymentMethodID)
		if err != nil {
			return err
		}
		if err := applyOutcome(ctx, repo, tx, c, pm, now); err != nil {
			return err
		}
		resolved = tx
		return repo.UpdateTransaction(ctx, tx)
	})
	if err != nil || resolved == nil {
		return false, ignoreNotFound(err)
	}
	observability.RecordTransaction(string(resolved.Status))
	publish(ctx, r.deps.Publisher, r.deps.Logger, domain.NewEvent(domain.EventTransactionFailed, resolved.ID, resolved, now))
	r.deps.Logger.Warn("stale transaction failed", "transaction_id", resolved.ID)
	return true, nil
}

func (r *Reconciler) resolveRefund(ctx context.Context, id uuid.UUID, cutoff, now time.Time) (bool, error) {
	var resolved *domain.Refund
	err := r.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		refund, err := repo.GetRefund(ctx, id)
		if err != nil {
			return err
		}
		if !stillStale(string(refund.Status), string(domain.RefundProcessing), refund.ProcessingStartedAt, cutoff) {
			return nil
		}
		if err := refund.Fail(domain.CodeProcessingError, staleMessage, now); err != nil {
			return err
		}
		resolved = refund
		return repo.UpdateRefund(ctx, refund)
	})
	if err != nil || resolved == nil {
		return false, ignoreNotFound(err)
	}
	observability.RecordRefund(string(resolved.Status))
	publish(ctx, r.deps.Publisher, r.deps.Logger, domain.NewEvent(domain.EventRefundFailed, resolved.ID, resolved, now))
	r.deps.Logger.Warn("stale refund failed", "refund_id", resolved.ID)
	return true, nil
}

func (r *Reconciler) resolvePayout(ctx context.Context, id uuid.UUID, cutoff, now time.Time) (bool, error) {
	release, ok, err := r.lockInFlight(ctx, payoutLockKey(id), "payout_id", id)
	if !ok {
		return false, err
	}
	defer release()

	var resolved *domain.Payout
	err = r.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		p, err := repo.GetPayout(ctx, id)
		if err != nil {
			return err
		}
		if !stillStale(string(p.Status), string(domain.PayoutProcessing), p.ProcessingStartedAt, cutoff) {
			return nil
		}
		if err := p.MarkFailed(staleMessage, "timeout", now); err != nil {
			return err
		}
		resolved = p
		return repo.UpdatePayout(ctx, p)
	})
	if err != nil || resolved == nil {
		return false, ignoreNotFound(err)
	}
	observability.RecordPayout(string(resolved.Status))
	publish(ctx, r.deps.Publisher, r.deps.Logger, domain.NewEvent(domain.EventPayoutFailed, resolved.ID, resolved, now))
	r.deps.Logger.Warn("stale payout failed", "payout_id", resolved.ID, "retry_count", resolved.RetryCount)
	return true, nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
