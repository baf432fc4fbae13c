package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

type customerService struct {
	deps Deps
}

func NewCustomerService(deps Deps) ports.CustomerService {
	return &customerService{deps: deps.withDefaults()}
}

func newCustomer(info ports.CustomerInfo, now time.Time) *domain.Customer {
	return &domain.Customer{
		ID:        uuid.New(),
		Email:     strings.ToLower(strings.TrimSpace(info.Email)),
		FirstName: info.FirstName,
		LastName:  info.LastName,
		Phone:     info.Phone,
		Address:   info.Address,
		Status:    domain.CustomerActive,
		RiskLevel: domain.RiskLow,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *customerService) RegisterCustomer(ctx context.Context, info ports.CustomerInfo) (*domain.Customer, error) {
	if !strings.Contains(info.Email, "@") {
		return nil, domain.NewValidationError("email", "a valid email is required")
	}
	c := newCustomer(info, s.deps.Clock.Now())
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		_, err := repo.GetCustomerByEmail(ctx, c.Email)
		switch {
		case err == nil:
			return domain.NewValidationError("email", "customer %s already exists", c.Email)
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		return repo.CreateCustomer(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("customer registered", "customer_id", c.ID)
	return c, nil
}

func (s *customerService) GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return s.deps.Store.GetCustomer(ctx, id)
}

// ListPaymentMethods expires lapsed cards as a side effect.
func (s *customerService) ListPaymentMethods(ctx context.Context, customerID uuid.UUID) ([]domain.PaymentMethod, error) {
	now := s.deps.Clock.Now()
	var methods []domain.PaymentMethod
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		if _, err := repo.GetCustomer(ctx, customerID); err != nil {
			return err
		}
		list, err := repo.ListPaymentMethods(ctx, customerID)
		if err != nil {
			return err
		}
		for i := range list {
			if list[i].ExpireIfDue(now) {
				if err := repo.UpdatePaymentMethod(ctx, &list[i]); err != nil {
					return err
				}
			}
		}
		methods = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	return methods, nil
}

// SetDefaultPaymentMethod clears every other default for the customer and sets
// the new one in a single store transaction.
func (s *customerService) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID uuid.UUID) (*domain.PaymentMethod, error) {
	now := s.deps.Clock.Now()
	var pm *domain.PaymentMethod
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		if _, err := repo.GetCustomer(ctx, customerID); err != nil {
			return err
		}
		p, err := repo.GetPaymentMethod(ctx, paymentMethodID)
		if err != nil {
			return err
		}
		if p.CustomerID != customerID {
			return fmt.Errorf("%w: payment method %s for customer %s", domain.ErrNotFound, paymentMethodID, customerID)
		}
		p.ExpireIfDue(now)
		if p.Status != domain.PaymentMethodActive {
			return &domain.IneligibleError{Entity: "payment method", Reason: "status is " + string(p.Status)}
		}
		if err := repo.ClearDefaultPaymentMethods(ctx, customerID); err != nil {
			return err
		}
		p.IsDefault = true
		p.UpdatedAt = now
		pm = p
		return repo.UpdatePaymentMethod(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return pm, nil
}
