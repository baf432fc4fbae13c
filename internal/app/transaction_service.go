package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"payment-lifecycle-engine/internal/antifraud"
	"payment-lifecycle-engine/internal/card"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
	"payment-lifecycle-engine/internal/observability"
)

// DefaultGatewayTimeout bounds a single processor call.
const DefaultGatewayTimeout = 30 * time.Second

// transactionService is the implementation of the TransactionService port
type transactionService struct {
	deps           Deps
	gatewayTimeout time.Duration
}

// NewTransactionService is the constructor of our service.
func NewTransactionService(deps Deps, gatewayTimeout time.Duration) ports.TransactionService {
	if gatewayTimeout <= 0 {
		gatewayTimeout = DefaultGatewayTimeout
	}
	return &transactionService{deps: deps.withDefaults(), gatewayTimeout: gatewayTimeout}
}

// preparedCard is raw card input after validation and tokenization.
type preparedCard struct {
	result      card.Result
	holder      string
	token       string
	ciphertext  string
	fingerprint string
}

func (s *transactionService) CreateTransaction(ctx context.Context, req ports.ChargeRequest) (*domain.Transaction, error) {
	ctx, span := observability.Tracer().Start(ctx, "TransactionService.CreateTransaction")
	defer span.End()

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := validateCharge(req.Amount, currency); err != nil {
		return nil, err
	}

	var prepared *preparedCard
	switch {
	case req.CardData != nil:
		p, err := s.prepareCard(*req.CardData)
		if err != nil {
			return nil, err
		}
		prepared = p
	case req.PaymentMethodID == nil:
		return nil, domain.NewValidationError("cardData", "either cardData or paymentMethodId is required")
	}

	now := s.deps.Clock.Now()
	var (
		tx      *domain.Transaction
		expired bool
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		customer, pm, err := s.resolveParties(ctx, repo, req, prepared, now)
		if err != nil {
			return err
		}

		if pm.ExpireIfDue(now) {
			if err := repo.UpdatePaymentMethod(ctx, pm); err != nil {
				return err
			}
		}
		switch pm.Status {
		case domain.PaymentMethodActive:
		case domain.PaymentMethodExpired:
			// Commit the expiry, then report it.
			expired = true
			return nil
		default:
			return domain.NewValidationError("paymentMethodId", "payment method is %s", pm.Status)
		}

		fee := s.deps.Fees.TransactionFee(req.Amount)
		tx = &domain.Transaction{
			ID:               uuid.New(),
			CustomerID:       customer.ID,
			PaymentMethodID:  pm.ID,
			Amount:           req.Amount,
			Currency:         currency,
			Status:           domain.StatusPending,
			ProcessingFee:    fee,
			NetAmount:        req.Amount - fee,
			RefundableAmount: req.Amount,
			OrderID:          req.OrderID,
			Description:      req.Description,
			Metadata:         req.Metadata,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return repo.CreateTransaction(ctx, tx)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if expired {
		return nil, &domain.CardError{Code: domain.CodeExpiredCard, Message: "payment method has expired"}
	}

	span.SetAttributes(attribute.String("transaction.id", tx.ID.String()))
	s.deps.Logger.Info("transaction created",
		"transaction_id", tx.ID, "customer_id", tx.CustomerID, "amount", tx.Amount, "currency", tx.Currency)
	return tx, nil
}

// Authorize scores the transaction and, unless risk is very high, charges it
// through the gateway. The gateway call happens between two store transactions.
// When the transaction was declined or errored the persisted transaction is
// returned together with a *domain.PaymentError or *domain.ProcessingError.
// A card that expired since creation fails the transaction with a *domain.CardError.
func (s *transactionService) Authorize(ctx context.Context, transactionID uuid.UUID, cvv string) (*domain.Transaction, error) {
	ctx, span := observability.Tracer().Start(ctx, "TransactionService.Authorize")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID.String()))

	release, err := s.deps.acquire(ctx, transactionLockKey(transactionID), s.gatewayTimeout+time.Minute)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer release()

	now := s.deps.Clock.Now()
	var (
		tx       *domain.Transaction
		pm       *domain.PaymentMethod
		declined bool
		expired  bool
	)
	err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		t, err := repo.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if err := t.StartProcessing(now); err != nil {
			return err
		}
		p, err := repo.GetPaymentMethod(ctx, t.PaymentMethodID)
		if err != nil {
			return err
		}
		c, err := repo.GetCustomer(ctx, t.CustomerID)
		if err != nil {
			return err
		}
		if p.ExpireIfDue(now) {
			if err := t.Fail("", domain.CodeExpiredCard, "Payment method has expired", now); err != nil {
				return err
			}
			if err := applyOutcome(ctx, repo, t, c, p, now); err != nil {
				return err
			}
			expired = true
			tx, pm = t, p
			return repo.UpdateTransaction(ctx, t)
		}
		if cvv != "" && !card.ValidCVV(cvv, p.CardBrand) {
			return &domain.CardError{
				Code:    domain.CodeInvalidCVV,
				Message: fmt.Sprintf("cvv must be %d digits", card.CVVLength(p.CardBrand)),
			}
		}

		risk := s.deps.Scorer.Score(antifraud.Input{
			Amount:          t.Amount,
			CVVProvided:     cvv != "",
			Network:         p.CardBrand,
			CustomerHistory: &c.UsageStats,
			At:              now,
		})
		t.Risk = &risk

		if risk.Level == domain.RiskVeryHigh {
			if err := t.Fail("", domain.CodeFraudSuspected, "Declined by risk assessment", now); err != nil {
				return err
			}
			if err := applyOutcome(ctx, repo, t, c, p, now); err != nil {
				return err
			}
			declined = true
		}
		if err := repo.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		tx, pm = t, p
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if expired {
		s.finish(ctx, tx)
		return tx, &domain.CardError{Code: domain.CodeExpiredCard, Message: tx.ResponseMessage}
	}
	if declined {
		s.finish(ctx, tx)
		return tx, &domain.PaymentError{Code: domain.CodeFraudSuspected, Message: tx.ResponseMessage}
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	start := time.Now()
	res, gwErr := s.deps.Gateway.Charge(gctx, tx.Amount, tx.Currency, domain.TokenizedCard{
		Token:          pm.CardToken,
		Network:        pm.CardBrand,
		Last4:          pm.Last4,
		ExpiryMonth:    pm.ExpiryMonth,
		ExpiryYear:     pm.ExpiryYear,
		CardholderName: pm.CardholderName,
		CVV:            cvv,
	})
	cancel()
	observability.ObserveGateway("charge", start, gwErr)

	done := s.deps.Clock.Now()
	err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		t, err := repo.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		switch {
		case gwErr != nil:
			err = t.Fail("", domain.CodeProcessingError, gatewayErrorMessage(gwErr), done)
		case res.Approved:
			err = t.Complete(res.GatewayTransactionID, res.ResponseCode, res.ResponseMessage, done)
		default:
			err = t.Fail(res.GatewayTransactionID, res.ResponseCode, res.ResponseMessage, done)
		}
		if err != nil {
			return err
		}
		c, err := repo.GetCustomer(ctx, t.CustomerID)
		if err != nil {
			return err
		}
		p, err := repo.GetPaymentMethod(ctx, t.PaymentMethodID)
		if err != nil {
			return err
		}
		if err := applyOutcome(ctx, repo, t, c, p, done); err != nil {
			return err
		}
		if err := repo.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		tx = t
		return nil
	})
	if err != nil {
		s.deps.Logger.Error("gateway outcome could not be recorded, manual reconciliation required",
			"transaction_id", transactionID,
			"gateway_transaction_id", res.GatewayTransactionID,
			"approved", gwErr == nil && res.Approved,
			"error", err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.finish(ctx, tx)
	switch {
	case gwErr != nil:
		return tx, &domain.ProcessingError{Code: domain.CodeProcessingError, Message: tx.ResponseMessage, Err: gwErr}
	case res.Approved:
		return tx, nil
	case res.ResponseCode == domain.CodeProcessingError:
		return tx, &domain.ProcessingError{Code: res.ResponseCode, Message: res.ResponseMessage}
	default:
		return tx, &domain.PaymentError{Code: res.ResponseCode, Message: res.ResponseMessage}
	}
}

// Charge creates and authorizes in one call.
func (s *transactionService) Charge(ctx context.Context, req ports.ChargeRequest) (*domain.Transaction, error) {
	tx, err := s.CreateTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	var cvv string
	if req.CardData != nil {
		cvv = req.CardData.CVV
	}
	return s.Authorize(ctx, tx.ID, cvv)
}

func (s *transactionService) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.deps.Store.GetTransaction(ctx, id)
}

func (s *transactionService) CancelTransaction(ctx context.Context, id uuid.UUID, reason string) (*domain.Transaction, error) {
	now := s.deps.Clock.Now()
	var tx *domain.Transaction
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		t, err := repo.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := t.Cancel(reason, now); err != nil {
			return err
		}
		tx = t
		return repo.UpdateTransaction(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, tx)
	return tx, nil
}

func (s *transactionService) prepareCard(data domain.CardData) (*preparedCard, error) {
	res := s.deps.Validator.Validate(data)
	if !res.OK {
		return nil, res.Err()
	}
	expiry := fmt.Sprintf("%02d/%04d", res.ExpiryMonth, res.ExpiryYear)
	token, ciphertext, err := s.deps.Tokenizer.Tokenize(res.Number, expiry)
	if err != nil {
		return nil, &domain.ProcessingError{Code: domain.CodeProcessingError, Message: "tokenization failed", Err: err}
	}
	return &preparedCard{
		result:      res,
		holder:      strings.TrimSpace(data.CardholderName),
		token:       token,
		ciphertext:  ciphertext,
		fingerprint: s.deps.Tokenizer.Fingerprint(res.Number),
	}, nil
}

// resolveParties finds or creates the customer and payment method for a charge.
func (s *transactionService) resolveParties(ctx context.Context, repo ports.Repository, req ports.ChargeRequest, prepared *preparedCard, now time.Time) (*domain.Customer, *domain.PaymentMethod, error) {
	if prepared == nil {
		pm, err := repo.GetPaymentMethod(ctx, *req.PaymentMethodID)
		if err != nil {
			return nil, nil, err
		}
		if req.CustomerID != nil && *req.CustomerID != pm.CustomerID {
			return nil, nil, domain.NewValidationError("paymentMethodId", "payment method does not belong to customer")
		}
		customer, err := repo.GetCustomer(ctx, pm.CustomerID)
		if err != nil {
			return nil, nil, err
		}
		if err := requireActive(customer); err != nil {
			return nil, nil, err
		}
		return customer, pm, nil
	}

	customer, err := resolveCustomer(ctx, repo, req, now)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(customer); err != nil {
		return nil, nil, err
	}
	pm, err := s.resolveCardMethod(ctx, repo, customer, prepared, now)
	if err != nil {
		return nil, nil, err
	}
	return customer, pm, nil
}

func resolveCustomer(ctx context.Context, repo ports.Repository, req ports.ChargeRequest, now time.Time) (*domain.Customer, error) {
	if req.CustomerID != nil {
		return repo.GetCustomer(ctx, *req.CustomerID)
	}
	if req.CustomerInfo == nil || strings.TrimSpace(req.CustomerInfo.Email) == "" {
		return nil, domain.NewValidationError("customerId", "customerId or customerInfo.email is required")
	}
	existing, err := repo.GetCustomerByEmail(ctx, req.CustomerInfo.Email)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	c := newCustomer(*req.CustomerInfo, now)
	if err := repo.CreateCustomer(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// resolveCardMethod de-duplicates by fingerprint. A customer's first payment
// method becomes the default.
func (s *transactionService) resolveCardMethod(ctx context.Context, repo ports.Repository, customer *domain.Customer, p *preparedCard, now time.Time) (*domain.PaymentMethod, error) {
	existing, err := repo.FindPaymentMethodByFingerprint(ctx, customer.ID, p.fingerprint)
	if err == nil {
		if existing.ExpiryMonth != p.result.ExpiryMonth || existing.ExpiryYear != p.result.ExpiryYear {
			existing.CardToken = p.token
			existing.EncryptedCardData = p.ciphertext
			existing.ExpiryMonth = p.result.ExpiryMonth
			existing.ExpiryYear = p.result.ExpiryYear
			if existing.Status == domain.PaymentMethodExpired {
				existing.Status = domain.PaymentMethodActive
			}
			existing.UpdatedAt = now
			if err := repo.UpdatePaymentMethod(ctx, existing); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	others, err := repo.ListPaymentMethods(ctx, customer.ID)
	if err != nil {
		return nil, err
	}
	pm := &domain.PaymentMethod{
		ID:                uuid.New(),
		CustomerID:        customer.ID,
		Type:              "card",
		CardToken:         p.token,
		EncryptedCardData: p.ciphertext,
		Fingerprint:       p.fingerprint,
		CardBrand:         p.result.Network,
		Last4:             p.result.Last4,
		BIN:               p.result.BIN,
		ExpiryMonth:       p.result.ExpiryMonth,
		ExpiryYear:        p.result.ExpiryYear,
		CardholderName:    p.holder,
		IsDefault:         len(others) == 0,
		Status:            domain.PaymentMethodActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repo.CreatePaymentMethod(ctx, pm); err != nil {
		return nil, err
	}
	return pm, nil
}

// finish records metrics, publishes the lifecycle event and logs the outcome.
func (s *transactionService) finish(ctx context.Context, tx *domain.Transaction) {
	observability.RecordTransaction(string(tx.Status))

	var evType domain.EventType
	switch tx.Status {
	case domain.StatusCompleted:
		evType = domain.EventTransactionCompleted
	case domain.StatusFailed:
		evType = domain.EventTransactionFailed
	case domain.StatusCancelled:
		evType = domain.EventTransactionCancelled
	default:
		return
	}
	publish(ctx, s.deps.Publisher, s.deps.Logger, domain.NewEvent(evType, tx.ID, tx, s.deps.Clock.Now()))

	s.deps.Logger.Info("transaction finished",
		"transaction_id", tx.ID,
		"status", tx.Status,
		"response_code", tx.ResponseCode,
		"processing_time_ms", tx.ProcessingTimeMs)
}

// applyOutcome updates customer and payment-method aggregates for a finished
// authorization. It runs in the same store transaction as the status change.
func applyOutcome(ctx context.Context, repo ports.Repository, tx *domain.Transaction, c *domain.Customer, pm *domain.PaymentMethod, now time.Time) error {
	success := tx.Status == domain.StatusCompleted
	c.ApplyOutcome(success, tx.Amount, now)
	pm.ApplyOutcome(success, tx.Amount, now)
	if err := repo.UpdateCustomer(ctx, c); err != nil {
		return err
	}
	return repo.UpdatePaymentMethod(ctx, pm)
}

func validateCharge(amount int64, currency string) error {
	if amount < domain.MinTransactionAmount || amount > domain.MaxTransactionAmount {
		return domain.NewValidationError("amount", "must be between %d and %d minor units",
			domain.MinTransactionAmount, domain.MaxTransactionAmount)
	}
	if !domain.SupportedCurrency(currency) {
		return domain.NewValidationError("currency", "%q is not supported", currency)
	}
	return nil
}

func requireActive(c *domain.Customer) error {
	if c.Status != domain.CustomerActive {
		return fmt.Errorf("%w: customer %s is %s", domain.ErrCustomerInactive, c.ID, c.Status)
	}
	return nil
}

func gatewayErrorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Gateway timed out"
	}
	return "Gateway unavailable"
}
