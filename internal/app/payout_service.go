package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
	"payment-lifecycle-engine/internal/observability"
)

// PayoutOptions tunes the scheduler.
type PayoutOptions struct {
	MaxRetries  int
	BatchSize   int
	Concurrency int
	LockTTL     time.Duration
	Timeout     time.Duration
}

func (o PayoutOptions) withDefaults() PayoutOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = domain.DefaultPayoutMaxRetries
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 2 * time.Minute
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultGatewayTimeout
	}
	return o
}

type payoutService struct {
	deps Deps
	opts PayoutOptions
}

func NewPayoutService(deps Deps, opts PayoutOptions) ports.PayoutService {
	return &payoutService{deps: deps.withDefaults(), opts: opts.withDefaults()}
}

func (s *payoutService) CreatePayout(ctx context.Context, req ports.PayoutRequest) (*domain.Payout, error) {
	if req.Amount <= 0 {
		return nil, domain.NewValidationError("amount", "must be positive")
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.opts.MaxRetries
	}

	now := s.deps.Clock.Now()
	var payout *domain.Payout
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		acct, err := repo.GetBankAccount(ctx, req.BankAccountID)
		if err != nil {
			return err
		}
		currency := strings.ToUpper(req.Currency)
		if currency == "" {
			currency = acct.Currency
		}
		if currency != acct.Currency {
			return domain.NewValidationError("currency", "bank account is denominated in %s", acct.Currency)
		}
		if !acct.EligibleForPayout(req.Amount) {
			return &domain.IneligibleError{Entity: "payout", Reason: ineligibleReason(acct, req.Amount)}
		}
		fee := s.deps.Fees.PayoutFee(req.Amount)
		if fee >= req.Amount {
			return domain.NewValidationError("amount", "must exceed the payout fee of %d", fee)
		}
		payout = &domain.Payout{
			ID:            uuid.New(),
			BankAccountID: acct.ID,
			Amount:        req.Amount,
			Currency:      currency,
			ProcessingFee: fee,
			NetAmount:     req.Amount - fee,
			Status:        domain.PayoutPending,
			Description:   req.Description,
			MaxRetries:    maxRetries,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return repo.CreatePayout(ctx, payout)
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("payout created", "payout_id", payout.ID, "bank_account_id", payout.BankAccountID, "amount", payout.Amount)
	return payout, nil
}

// ProcessPayout submits a pending payout, or a failed one whose retry is due.
// Submissions of the same payout are serialized through the Locker.
// A rejected transfer returns the failed payout with a *domain.ProcessingError.
func (s *payoutService) ProcessPayout(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	ctx, span := observability.Tracer().Start(ctx, "PayoutService.ProcessPayout")
	defer span.End()
	span.SetAttributes(attribute.String("payout.id", payoutID.String()))

	release, err := s.deps.acquire(ctx, payoutLockKey(payoutID), s.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.deps.Clock.Now()
	var (
		payout *domain.Payout
		acct   *domain.BankAccount
	)
	err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		p, err := repo.GetPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		if p.Status == domain.PayoutFailed {
			if err := p.Requeue(now); err != nil {
				return err
			}
		}
		a, err := repo.GetBankAccount(ctx, p.BankAccountID)
		if err != nil {
			return err
		}
		if err := p.StartProcessing(now); err != nil {
			return err
		}
		payout, acct = p, a
		return repo.UpdatePayout(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	var transferErr error
	var res ports.TransferResult
	if acct.Status != domain.BankAccountActive || acct.VerificationStatus != domain.VerificationVerified {
		res = ports.TransferResult{FailureCode: "account_ineligible", Message: ineligibleReason(acct, payout.Amount)}
	} else {
		tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		start := time.Now()
		res, transferErr = s.deps.Payouts.Transfer(tctx, ports.TransferRequest{
			PayoutID:     payout.ID,
			Amount:       payout.NetAmount,
			Currency:     payout.Currency,
			AccountLast4: acct.AccountLast4,
			AccountRef:   acct.EncryptedAccountNumber,
		})
		cancel()
		observability.ObserveGateway("transfer", start, transferErr)
	}

	done := s.deps.Clock.Now()
	err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		p, err := repo.GetPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		if transferErr != nil || !res.Accepted {
			code, reason := res.FailureCode, res.Message
			if transferErr != nil {
				code, reason = "processing_error", gatewayErrorMessage(transferErr)
			}
			if err := p.MarkFailed(reason, code, done); err != nil {
				return err
			}
			payout = p
			return repo.UpdatePayout(ctx, p)
		}

		if err := p.Complete(res.Reference, done); err != nil {
			return err
		}
		a, err := repo.GetBankAccount(ctx, p.BankAccountID)
		if err != nil {
			return err
		}
		a.RecordPayout(p.Amount, done)
		if err := repo.UpdateBankAccount(ctx, a); err != nil {
			return err
		}
		payout = p
		return repo.UpdatePayout(ctx, p)
	})
	if err != nil {
		s.deps.Logger.Error("payout outcome could not be recorded, manual reconciliation required",
			"payout_id", payoutID, "reference", res.Reference, "accepted", res.Accepted, "error", err)
		return nil, err
	}

	s.finish(ctx, payout)
	if payout.Status == domain.PayoutFailed {
		return payout, &domain.ProcessingError{
			Code:    domain.CodeProcessingError,
			Message: fmt.Sprintf("payout failed (%s): %s", payout.FailureCode, payout.FailureReason),
			Err:     transferErr,
		}
	}
	return payout, nil
}

func (s *payoutService) GetPayout(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	return s.deps.Store.GetPayout(ctx, id)
}

// RetryablePayouts is the polling contract: failed, retries left, retry due.
func (s *payoutService) RetryablePayouts(ctx context.Context) ([]domain.Payout, error) {
	return s.deps.Store.ListRetryablePayouts(ctx, s.deps.Clock.Now(), s.opts.BatchSize)
}

// RetryDue resubmits every due payout. Distinct bank accounts run concurrently,
// payouts of one account run in order. It returns how many payouts were submitted.
func (s *payoutService) RetryDue(ctx context.Context) (int, error) {
	due, err := s.RetryablePayouts(ctx)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	byAccount := make(map[uuid.UUID][]uuid.UUID)
	var order []uuid.UUID
	for _, p := range due {
		if _, ok := byAccount[p.BankAccountID]; !ok {
			order = append(order, p.BankAccountID)
		}
		byAccount[p.BankAccountID] = append(byAccount[p.BankAccountID], p.ID)
	}

	submitted := make([]int, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, accountID := range order {
		ids := byAccount[accountID]
		g.Go(func() error {
			for _, id := range ids {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				_, err := s.ProcessPayout(gctx, id)
				switch {
				case err == nil, errors.Is(err, domain.ErrProcessing):
					submitted[i]++
				case errors.Is(err, domain.ErrLockNotAcquired), errors.Is(err, domain.ErrInvalidState):
					s.deps.Logger.Debug("payout skipped", "payout_id", id, "reason", err)
				default:
					return fmt.Errorf("retry payout %s: %w", id, err)
				}
			}
			return nil
		})
	}
	err = g.Wait()

	total := 0
	for _, n := range submitted {
		total += n
	}
	s.deps.Logger.Info("payout retries submitted", "due", len(due), "submitted", total)
	return total, err
}

func (s *payoutService) finish(ctx context.Context, p *domain.Payout) {
	observability.RecordPayout(string(p.Status))

	evType := domain.EventPayoutCompleted
	if p.Status == domain.PayoutFailed {
		evType = domain.EventPayoutFailed
	}
	publish(ctx, s.deps.Publisher, s.deps.Logger, domain.NewEvent(evType, p.ID, p, s.deps.Clock.Now()))

	attrs := []any{"payout_id", p.ID, "status", p.Status, "retry_count", p.RetryCount}
	if p.NextRetryAt != nil {
		attrs = append(attrs, "next_retry_at", p.NextRetryAt.Format(time.RFC3339))
	}
	s.deps.Logger.Info("payout finished", attrs...)
}

func ineligibleReason(acct *domain.BankAccount, amount int64) string {
	switch {
	case acct.Status != domain.BankAccountActive:
		return "bank account is " + string(acct.Status)
	case acct.VerificationStatus != domain.VerificationVerified:
		return "bank account verification is " + string(acct.VerificationStatus)
	case amount < acct.MinimumPayoutAmount:
		return fmt.Sprintf("amount is below the account minimum of %d", acct.MinimumPayoutAmount)
	}
	return "bank account is not eligible"
}
