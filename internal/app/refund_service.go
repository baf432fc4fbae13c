package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
	"payment-lifecycle-engine/internal/observability"
)

const (
	// RefundWindow is how long after creation a transaction stays refundable.
	RefundWindow = 180 * 24 * time.Hour
	// ApprovalThreshold is the amount above which a refund needs approval.
	ApprovalThreshold int64 = 50000
)

type refundService struct {
	deps           Deps
	gatewayTimeout time.Duration
}

func NewRefundService(deps Deps, gatewayTimeout time.Duration) ports.RefundService {
	if gatewayTimeout <= 0 {
		gatewayTimeout = DefaultGatewayTimeout
	}
	return &refundService{deps: deps.withDefaults(), gatewayTimeout: gatewayTimeout}
}

// RequiresApproval reports whether a refund must be approved before dispatch.
func RequiresApproval(amount int64, reason domain.RefundReason) bool {
	return amount > ApprovalThreshold || reason == domain.ReasonFraudulent || reason == domain.ReasonChargeback
}

// checkEligibility applies the refund preconditions to a transaction and its refunds.
func checkEligibility(tx *domain.Transaction, refunds []domain.Refund, now time.Time) ports.RefundEligibility {
	switch {
	case tx.Status != domain.StatusCompleted && tx.Status != domain.StatusPartiallyRefunded:
		return ports.RefundEligibility{Reason: "transaction is " + string(tx.Status)}
	case tx.RefundableAmount == 0:
		return ports.RefundEligibility{Reason: "nothing left to refund"}
	case now.Sub(tx.CreatedAt) > RefundWindow:
		return ports.RefundEligibility{Reason: "transaction is older than 180 days"}
	}
	for _, r := range refunds {
		if r.InFlight() {
			return ports.RefundEligibility{Reason: "another refund is in progress"}
		}
	}
	return ports.RefundEligibility{Eligible: true}
}

func (s *refundService) Eligibility(ctx context.Context, transactionID uuid.UUID) (ports.RefundEligibility, error) {
	tx, err := s.deps.Store.GetTransaction(ctx, transactionID)
	if err != nil {
		return ports.RefundEligibility{}, err
	}
	refunds, err := s.deps.Store.ListRefundsByTransaction(ctx, transactionID)
	if err != nil {
		return ports.RefundEligibility{}, err
	}
	return checkEligibility(tx, refunds, s.deps.Clock.Now()), nil
}

// Process creates a refund and dispatches it unless it needs approval.
func (s *refundService) Process(ctx context.Context, req ports.RefundRequest) (*domain.Refund, error) {
	ctx, span := observability.Tracer().Start(ctx, "RefundService.Process")
	defer span.End()

	if !req.Reason.Valid() {
		return nil, domain.NewValidationError("reason", "unknown refund reason %q", req.Reason)
	}

	now := s.deps.Clock.Now()
	var refund *domain.Refund
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		tx, err := repo.GetTransaction(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		refunds, err := repo.ListRefundsByTransaction(ctx, tx.ID)
		if err != nil {
			return err
		}
		if el := checkEligibility(tx, refunds, now); !el.Eligible {
			return &domain.IneligibleError{Entity: "refund", Reason: el.Reason}
		}

		amount := tx.RefundableAmount
		if req.Amount != nil {
			amount = *req.Amount
		}
		if amount < domain.MinRefundAmount || amount > tx.RefundableAmount {
			return domain.NewValidationError("amount", "must be between %d and %d", domain.MinRefundAmount, tx.RefundableAmount)
		}

		fee := s.deps.Fees.RefundFee(amount)
		refundType := domain.RefundPartial
		if amount == tx.RefundableAmount && tx.RefundedAmount == 0 {
			refundType = domain.RefundFull
		}
		refund = &domain.Refund{
			ID:               uuid.New(),
			TransactionID:    tx.ID,
			CustomerID:       tx.CustomerID,
			Amount:           amount,
			Currency:         tx.Currency,
			RefundFee:        fee,
			NetRefundAmount:  amount - fee,
			RefundType:       refundType,
			Reason:           req.Reason,
			Status:           domain.RefundPending,
			RequiresApproval: RequiresApproval(amount, req.Reason),
			InitiatedBy:      req.InitiatedBy,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return repo.CreateRefund(ctx, refund)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("refund.id", refund.ID.String()))

	if refund.RequiresApproval {
		s.deps.Logger.Info("refund awaiting approval", "refund_id", refund.ID, "transaction_id", refund.TransactionID, "amount", refund.Amount)
		observability.RecordRefund(string(domain.RefundPending))
		publish(ctx, s.deps.Publisher, s.deps.Logger,
			domain.NewEvent(domain.EventRefundPendingApproval, refund.ID, refund, s.deps.Clock.Now()))
		return refund, nil
	}
	return s.dispatch(ctx, refund.ID)
}

func (s *refundService) Approve(ctx context.Context, refundID uuid.UUID, approver string) (*domain.Refund, error) {
	if approver == "" {
		return nil, domain.NewValidationError("approver", "is required")
	}
	now := s.deps.Clock.Now()
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		r, err := repo.GetRefund(ctx, refundID)
		if err != nil {
			return err
		}
		if err := r.Approve(approver, now); err != nil {
			return err
		}
		return repo.UpdateRefund(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("refund approved", "refund_id", refundID, "approved_by", approver)
	return s.dispatch(ctx, refundID)
}

func (s *refundService) Cancel(ctx context.Context, refundID uuid.UUID, reason string) (*domain.Refund, error) {
	now := s.deps.Clock.Now()
	var refund *domain.Refund
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		r, err := repo.GetRefund(ctx, refundID)
		if err != nil {
			return err
		}
		if err := r.Cancel(reason, now); err != nil {
			return err
		}
		refund = r
		return repo.UpdateRefund(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, refund)
	return refund, nil
}

func (s *refundService) GetRefund(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	return s.deps.Store.GetRefund(ctx, id)
}

func (s *refundService) ListRefunds(ctx context.Context, transactionID uuid.UUID) ([]domain.Refund, error) {
	if _, err := s.deps.Store.GetTransaction(ctx, transactionID); err != nil {
		return nil, err
	}
	return s.deps.Store.ListRefundsByTransaction(ctx, transactionID)
}

// dispatch moves a pending refund to processing, calls the gateway outside any
// store transaction, then records the result and the transaction balance change
// together. refundType is finalized there.
func (s *refundService) dispatch(ctx context.Context, refundID uuid.UUID) (*domain.Refund, error) {
	now := s.deps.Clock.Now()
	var (
		refund    *domain.Refund
		gatewayTx string
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		r, err := repo.GetRefund(ctx, refundID)
		if err != nil {
			return err
		}
		tx, err := repo.GetTransaction(ctx, r.TransactionID)
		if err != nil {
			return err
		}
		if err := r.StartProcessing(now); err != nil {
			return err
		}
		refund, gatewayTx = r, tx.GatewayTransactionID
		return repo.UpdateRefund(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	start := time.Now()
	res, gwErr := s.deps.Gateway.Refund(gctx, gatewayTx, refund.Amount)
	cancel()
	observability.ObserveGateway("refund", start, gwErr)

	done := s.deps.Clock.Now()
	err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		r, err := repo.GetRefund(ctx, refundID)
		if err != nil {
			return err
		}
		if gwErr != nil || !res.Approved {
			code, msg := res.ResponseCode, res.ResponseMessage
			if gwErr != nil {
				code, msg = domain.CodeProcessingError, gatewayErrorMessage(gwErr)
			}
			if err := r.Fail(code, msg, done); err != nil {
				return err
			}
			refund = r
			return repo.UpdateRefund(ctx, r)
		}

		tx, err := repo.GetTransaction(ctx, r.TransactionID)
		if err != nil {
			return err
		}
		refundType := domain.RefundPartial
		if tx.RefundedAmount+r.Amount == tx.Amount {
			refundType = domain.RefundFull
		}
		if err := r.Complete(res.GatewayRefundID, refundType, res.ResponseCode, res.ResponseMessage, done); err != nil {
			return err
		}
		if err := tx.ApplyRefund(r.Amount, done); err != nil {
			return err
		}
		if err := repo.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		refund = r
		return repo.UpdateRefund(ctx, r)
	})
	if err != nil {
		s.deps.Logger.Error("refund outcome could not be recorded, manual reconciliation required",
			"refund_id", refundID,
			"gateway_refund_id", res.GatewayRefundID,
			"approved", gwErr == nil && res.Approved,
			"error", err)
		return nil, err
	}

	s.finish(ctx, refund)
	switch {
	case gwErr != nil:
		return refund, &domain.ProcessingError{Code: domain.CodeProcessingError, Message: refund.ResponseMessage, Err: gwErr}
	case !res.Approved:
		return refund, &domain.PaymentError{Code: res.ResponseCode, Message: res.ResponseMessage}
	}
	return refund, nil
}

func (s *refundService) finish(ctx context.Context, r *domain.Refund) {
	observability.RecordRefund(string(r.Status))

	var evType domain.EventType
	switch r.Status {
	case domain.RefundCompleted:
		evType = domain.EventRefundCompleted
	case domain.RefundFailed:
		evType = domain.EventRefundFailed
	case domain.RefundCancelled:
		evType = domain.EventRefundCancelled
	default:
		return
	}
	publish(ctx, s.deps.Publisher, s.deps.Logger, domain.NewEvent(evType, r.ID, r, s.deps.Clock.Now()))
	s.deps.Logger.Info("refund finished",
		"refund_id", r.ID,
		"transaction_id", r.TransactionID,
		"status", r.Status,
		"refund_type", r.RefundType,
		"amount", r.Amount)
}
