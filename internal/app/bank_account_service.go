package app

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

var (
	accountNumberPattern = regexp.MustCompile(`^\d{4,17}$`)
	routingNumberPattern = regexp.MustCompile(`^\d{9}$`)
)

type bankAccountService struct {
	deps Deps
}

func NewBankAccountService(deps Deps) ports.BankAccountService {
	return &bankAccountService{deps: deps.withDefaults()}
}

// RegisterBankAccount stores the account and routing numbers encrypted. Only
// the last four account digits are kept in clear.
func (s *bankAccountService) RegisterBankAccount(ctx context.Context, req ports.BankAccountRequest) (*domain.BankAccount, error) {
	account := strings.ReplaceAll(req.AccountNumber, " ", "")
	routing := strings.ReplaceAll(req.RoutingNumber, " ", "")
	currency := strings.ToUpper(req.Currency)
	switch {
	case req.OwnerID == uuid.Nil:
		return nil, domain.NewValidationError("ownerId", "is required")
	case strings.TrimSpace(req.AccountHolderName) == "":
		return nil, domain.NewValidationError("accountHolderName", "is required")
	case !accountNumberPattern.MatchString(account):
		return nil, domain.NewValidationError("accountNumber", "must be 4 to 17 digits")
	case !routingNumberPattern.MatchString(routing):
		return nil, domain.NewValidationError("routingNumber", "must be 9 digits")
	case !domain.SupportedCurrency(currency):
		return nil, domain.NewValidationError("currency", "%q is not supported", req.Currency)
	case req.MinimumPayoutAmount < 0:
		return nil, domain.NewValidationError("minimumPayoutAmount", "must not be negative")
	}

	encAccount, err := s.deps.Tokenizer.Seal([]byte(account))
	if err != nil {
		return nil, &domain.ProcessingError{Code: domain.CodeProcessingError, Message: "encryption failed", Err: err}
	}
	encRouting, err := s.deps.Tokenizer.Seal([]byte(routing))
	if err != nil {
		return nil, &domain.ProcessingError{Code: domain.CodeProcessingError, Message: "encryption failed", Err: err}
	}

	now := s.deps.Clock.Now()
	acct := &domain.BankAccount{
		ID:                     uuid.New(),
		OwnerID:                req.OwnerID,
		AccountHolderName:      strings.TrimSpace(req.AccountHolderName),
		BankName:               req.BankName,
		EncryptedAccountNumber: encAccount,
		EncryptedRoutingNumber: encRouting,
		AccountLast4:           account[len(account)-4:],
		Currency:               currency,
		Status:                 domain.BankAccountActive,
		VerificationStatus:     domain.VerificationPending,
		MinimumPayoutAmount:    req.MinimumPayoutAmount,
		IsDefault:              req.MakeDefault,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		if acct.IsDefault {
			if err := repo.ClearDefaultBankAccounts(ctx, acct.OwnerID); err != nil {
				return err
			}
		}
		return repo.CreateBankAccount(ctx, acct)
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("bank account registered", "bank_account_id", acct.ID, "owner_id", acct.OwnerID, "last4", acct.AccountLast4)
	return acct, nil
}

// VerifyBankAccount records the outcome of an out-of-band verification.
func (s *bankAccountService) VerifyBankAccount(ctx context.Context, id uuid.UUID, verified bool) (*domain.BankAccount, error) {
	now := s.deps.Clock.Now()
	var acct *domain.BankAccount
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		a, err := repo.GetBankAccount(ctx, id)
		if err != nil {
			return err
		}
		if a.VerificationStatus != domain.VerificationPending {
			return &domain.InvalidStateError{Entity: "bank account", From: string(a.VerificationStatus), Action: "verify"}
		}
		if verified {
			a.VerificationStatus = domain.VerificationVerified
			a.VerifiedAt = &now
		} else {
			a.VerificationStatus = domain.VerificationFailed
		}
		a.UpdatedAt = now
		acct = a
		return repo.UpdateBankAccount(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// SetDefaultBankAccount clears the owner's other defaults and sets this one in
// a single store transaction.
func (s *bankAccountService) SetDefaultBankAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	current, err := s.deps.Store.GetBankAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock.Now()
	var acct *domain.BankAccount
	err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		// Clear first: it serializes on the owner before any row is locked.
		if err := repo.ClearDefaultBankAccounts(ctx, current.OwnerID); err != nil {
			return err
		}
		a, err := repo.GetBankAccount(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != domain.BankAccountActive {
			return &domain.IneligibleError{Entity: "bank account", Reason: "status is " + string(a.Status)}
		}
		a.IsDefault = true
		a.UpdatedAt = now
		acct = a
		return repo.UpdateBankAccount(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *bankAccountService) GetBankAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	return s.deps.Store.GetBankAccount(ctx, id)
}
