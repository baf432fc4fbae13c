package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"payment-lifecycle-engine/internal/core/domain"
)

// --- Outgoing ports: persistence ---

type CustomerRepository interface {
	CreateCustomer(ctx context.Context, c *domain.Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, c *domain.Customer) error
}

type PaymentMethodRepository interface {
	CreatePaymentMethod(ctx context.Context, pm *domain.PaymentMethod) error
	GetPaymentMethod(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error)
	FindPaymentMethodByFingerprint(ctx context.Context, customerID uuid.UUID, fingerprint string) (*domain.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, customerID uuid.UUID) ([]domain.PaymentMethod, error)
	UpdatePaymentMethod(ctx context.Context, pm *domain.PaymentMethod) error
	ClearDefaultPaymentMethods(ctx context.Context, customerID uuid.UUID) error
}

type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *domain.Transaction) error
	// ListStaleTransactions returns transactions in processing whose processing started before cutoff.
	ListStaleTransactions(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error)
}

type RefundRepository interface {
	CreateRefund(ctx context.Context, r *domain.Refund) error
	GetRefund(ctx context.Context, id uuid.UUID) (*domain.Refund, error)
	UpdateRefund(ctx context.Context, r *domain.Refund) error
	ListRefundsByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.Refund, error)
	ListStaleRefunds(ctx context.Context, cutoff time.Time, limit int) ([]domain.Refund, error)
}

type PayoutRepository interface {
	CreatePayout(ctx context.Context, p *domain.Payout) error
	GetPayout(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	UpdatePayout(ctx context.Context, p *domain.Payout) error
	// ListRetryablePayouts returns failed payouts with retries left whose next retry is due at now.
	ListRetryablePayouts(ctx context.Context, now time.Time, limit int) ([]domain.Payout, error)
	ListStalePayouts(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payout, error)
}

type BankAccountRepository interface {
	CreateBankAccount(ctx context.Context, b *domain.BankAccount) error
	GetBankAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error)
	UpdateBankAccount(ctx context.Context, b *domain.BankAccount) error
	ClearDefaultBankAccounts(ctx context.Context, ownerID uuid.UUID) error
}

// Repository is the full set of persistence operations. Reads made through the
// Repository handed to a WithinTx callback lock the rows they return.
type Repository interface {
	CustomerRepository
	PaymentMethodRepository
	TransactionRepository
	RefundRepository
	PayoutRepository
	BankAccountRepository
}

// Store is the sole point of shared mutability.
type Store interface {
	Repository
	// WithinTx runs fn in a single database transaction. fn must not perform network I/O.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// --- Outgoing ports: payment network ---

type ChargeResult struct {
	Approved             bool
	GatewayTransactionID string
	ResponseCode         domain.ResponseCode
	ResponseMessage      string
}

type RefundResult struct {
	Approved        bool
	GatewayRefundID string
	ResponseCode    domain.ResponseCode
	ResponseMessage string
}

// GatewayClient is a card processor: a real one or a deterministic simulator.
type GatewayClient interface {
	Charge(ctx context.Context, amount int64, currency string, card domain.TokenizedCard) (ChargeResult, error)
	Refund(ctx context.Context, gatewayTransactionID string, amount int64) (RefundResult, error)
}

type TransferRequest struct {
	PayoutID     uuid.UUID
	Amount       int64
	Currency     string
	AccountLast4 string
	AccountRef   string
}

type TransferResult struct {
	Accepted    bool
	Reference   string
	FailureCode string
	Message     string
}

// PayoutClient moves money to a bank account.
type PayoutClient interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
}

// --- Outgoing ports: infrastructure ---

// EventPublisher is another outgoing port for sending lifecycle messages.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Locker provides mutual exclusion across scheduler workers.
type Locker interface {
	// Acquire returns domain.ErrLockNotAcquired when key is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Clock abstracts wall-clock time.
type Clock interface {
	Now() time.Time
}

// --- Incoming ports ---

type ChargeRequest struct {
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	CustomerID      *uuid.UUID        `json:"customerId,omitempty"`
	PaymentMethodID *uuid.UUID        `json:"paymentMethodId,omitempty"`
	CardData        *domain.CardData  `json:"cardData,omitempty"`
	CustomerInfo    *CustomerInfo     `json:"customerInfo,omitempty"`
	OrderID         string            `json:"orderId,omitempty"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type CustomerInfo struct {
	Email     string         `json:"email"`
	FirstName string         `json:"firstName,omitempty"`
	LastName  string         `json:"lastName,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Address   domain.Address `json:"address"`
}

// TransactionService is an "incoming port" that defines how the outside world can interact with our kernel.
type TransactionService interface {
	CreateTransaction(ctx context.Context, req ChargeRequest) (*domain.Transaction, error)
	Authorize(ctx context.Context, transactionID uuid.UUID, cvv string) (*domain.Transaction, error)
	Charge(ctx context.Context, req ChargeRequest) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	CancelTransaction(ctx context.Context, id uuid.UUID, reason string) (*domain.Transaction, error)
}

type RefundRequest struct {
	TransactionID uuid.UUID           `json:"transactionId"`
	Amount        *int64              `json:"amount,omitempty"`
	Reason        domain.RefundReason `json:"reason"`
	InitiatedBy   string              `json:"initiatedBy"`
}

type RefundEligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

type RefundService interface {
	Eligibility(ctx context.Context, transactionID uuid.UUID) (RefundEligibility, error)
	Process(ctx context.Context, req RefundRequest) (*domain.Refund, error)
	Approve(ctx context.Context, refundID uuid.UUID, approver string) (*domain.Refund, error)
	Cancel(ctx context.Context, refundID uuid.UUID, reason string) (*domain.Refund, error)
	GetRefund(ctx context.Context, id uuid.UUID) (*domain.Refund, error)
	ListRefunds(ctx context.Context, transactionID uuid.UUID) ([]domain.Refund, error)
}

type PayoutRequest struct {
	BankAccountID uuid.UUID `json:"bankAccountId"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Description   string    `json:"description,omitempty"`
	MaxRetries    int       `json:"maxRetries,omitempty"`
}

type PayoutService interface {
	CreatePayout(ctx context.Context, req PayoutRequest) (*domain.Payout, error)
	ProcessPayout(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error)
	GetPayout(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	RetryablePayouts(ctx context.Context) ([]domain.Payout, error)
	RetryDue(ctx context.Context) (int, error)
}

type CustomerService interface {
	RegisterCustomer(ctx context.Context, info CustomerInfo) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	ListPaymentMethods(ctx context.Context, customerID uuid.UUID) ([]domain.PaymentMethod, error)
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID uuid.UUID) (*domain.PaymentMethod, error)
}

type BankAccountRequest struct {
	OwnerID             uuid.UUID `json:"ownerId"`
	AccountHolderName   string    `json:"accountHolderName"`
	BankName            string    `json:"bankName,omitempty"`
	AccountNumber       string    `json:"accountNumber"`
	RoutingNumber       string    `json:"routingNumber"`
	Currency            string    `json:"currency"`
	MinimumPayoutAmount int64     `json:"minimumPayoutAmount,omitempty"`
	MakeDefault         bool      `json:"makeDefault,omitempty"`
}

type BankAccountService interface {
	RegisterBankAccount(ctx context.Context, req BankAccountRequest) (*domain.BankAccount, error)
	VerifyBankAccount(ctx context.Context, id uuid.UUID, verified bool) (*domain.BankAccount, error)
	SetDefaultBankAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error)
	GetBankAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error)
}
