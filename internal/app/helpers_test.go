package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"payment-lifecycle-engine/internal/adapters/storage/memory"
	"payment-lifecycle-engine/internal/antifraud"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
	"payment-lifecycle-engine/internal/gateway"
	"payment-lifecycle-engine/internal/tokenizer"
)

var noon = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced ports.Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Mock - implementation of the card processor
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Charge(ctx context.Context, amount int64, currency string, card domain.TokenizedCard) (ports.ChargeResult, error) {
	args := m.Called(ctx, amount, currency, card)
	return args.Get(0).(ports.ChargeResult), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, gatewayTransactionID string, amount int64) (ports.RefundResult, error) {
	args := m.Called(ctx, gatewayTransactionID, amount)
	return args.Get(0).(ports.RefundResult), args.Error(1)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	store     *memory.Store
	clock     *fakeClock
	sim       *gateway.Simulator
	publisher *recordingPublisher
	tok       *tokenizer.Tokenizer
	deps      Deps

	transactions ports.TransactionService
	refunds      ports.RefundService
	payouts      ports.PayoutService
	customers    ports.CustomerService
	accounts     ports.BankAccountService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithGateway(t, nil)
}

// newHarnessWithGateway wires the services against the in-memory store. A nil
// gw uses the seeded simulator.
func newHarnessWithGateway(t *testing.T, gw ports.GatewayClient) *harness {
	t.Helper()
	clock := newFakeClock(noon)
	tok, err := tokenizer.New([]byte("0123456789abcdef0123456789abcdef"), tokenizer.WithClock(clock.Now))
	require.NoError(t, err)

	sim := gateway.NewSimulator(42, 0, 0)
	if gw == nil {
		gw = sim
	}
	h := &harness{
		store:     memory.NewStore(),
		clock:     clock,
		sim:       sim,
		publisher: &recordingPublisher{},
		tok:       tok,
	}
	h.deps = Deps{
		Store:     h.store,
		Gateway:   gw,
		Payouts:   sim,
		Publisher: h.publisher,
		Locker:    memory.NewLocker(),
		Tokenizer: tok,
		Scorer:    antifraud.NewScorer(time.UTC),
		Clock:     clock,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.transactions = NewTransactionService(h.deps, time.Second)
	h.refunds = NewRefundService(h.deps, time.Second)
	h.payouts = NewPayoutService(h.deps, PayoutOptions{})
	h.customers = NewCustomerService(h.deps)
	h.accounts = NewBankAccountService(h.deps)
	return h
}

// knownCustomer stores an active customer with a clean history.
func (h *harness) knownCustomer(t *testing.T) *domain.Customer {
	t.Helper()
	c := &domain.Customer{
		ID:        uuid.New(),
		Email:     uuid.NewString() + "@example.com",
		Status:    domain.CustomerActive,
		RiskLevel: domain.RiskLow,
		UsageStats: domain.UsageStats{
			TotalTransactions:      20,
			SuccessfulTransactions: 20,
			TotalAmount:            200000,
		},
		CreatedAt: noon.Add(-90 * 24 * time.Hour),
		UpdatedAt: noon.Add(-90 * 24 * time.Hour),
	}
	require.NoError(t, h.store.CreateCustomer(context.Background(), c))
	return c
}

func cardRequest(customerID uuid.UUID, amount int64, number, cvv string) ports.ChargeRequest {
	return ports.ChargeRequest{
		Amount:     amount,
		Currency:   "USD",
		CustomerID: &customerID,
		CardData: &domain.CardData{
			CardNumber:     number,
			ExpiryDate:     "12/30",
			CVV:            cvv,
			CardholderName: "Jordan Example",
		},
	}
}

// completedCharge charges amount on a good card for a known customer.
func (h *harness) completedCharge(t *testing.T, amount int64) *domain.Transaction {
	t.Helper()
	c := h.knownCustomer(t)
	tx, err := h.transactions.Charge(context.Background(), cardRequest(c.ID, amount, "4111111111111111", "123"))
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, tx.Status)
	return tx
}

// verifiedAccount registers and verifies a bank account ending in last4.
func (h *harness) verifiedAccount(t *testing.T, last4 string) *domain.BankAccount {
	t.Helper()
	ctx := context.Background()
	acct, err := h.accounts.RegisterBankAccount(ctx, ports.BankAccountRequest{
		OwnerID:           uuid.New(),
		AccountHolderName: "Jordan Example",
		AccountNumber:     "12345" + last4,
		RoutingNumber:     "110000000",
		Currency:          "USD",
	})
	require.NoError(t, err)
	acct, err = h.accounts.VerifyBankAccount(ctx, acct.ID, true)
	require.NoError(t, err)
	return acct
}
