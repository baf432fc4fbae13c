// Package gateway provides a deterministic, seedable card processor and payout
// rail that satisfies the same ports as a real processor.
package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

// Magic card endings with fixed outcomes.
var chargeOutcomes = map[string]struct {
	code    domain.ResponseCode
	message string
}{
	"0002": {domain.CodeDeclined, "Card declined"},
	"9995": {domain.CodeInsufficientFunds, "Insufficient funds"},
	"0069": {domain.CodeExpiredCard, "Expired card"},
	"0127": {domain.CodeInvalidCVV, "Invalid CVV"},
	"0119": {domain.CodeProcessingError, "Processing error"},
}

// Account endings with fixed transfer failures.
var transferFailures = map[string]struct{ code, message string }{
	"0000": {"R02", "Account closed"},
	"0001": {"R01", "Insufficient funds in settlement account"},
}

// Simulator implements ports.GatewayClient and ports.PayoutClient.
type Simulator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	declineRate float64
	latency     time.Duration
	seq         int
	captured    map[string]int64
}

var (
	_ ports.GatewayClient = (*Simulator)(nil)
	_ ports.PayoutClient  = (*Simulator)(nil)
)

// NewSimulator builds a simulator. declineRate in [0,1] injects processing
// errors drawn from a generator seeded with seed.
func NewSimulator(seed int64, declineRate float64, latency time.Duration) *Simulator {
	return &Simulator{
		rng:         rand.New(rand.NewSource(seed)),
		declineRate: declineRate,
		latency:     latency,
		captured:    make(map[string]int64),
	}
}

func (s *Simulator) Charge(ctx context.Context, amount int64, currency string, card domain.TokenizedCard) (ports.ChargeResult, error) {
	if err := s.wait(ctx); err != nil {
		return ports.ChargeResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID("ch")
	if out, ok := chargeOutcomes[card.Last4]; ok {
		return ports.ChargeResult{GatewayTransactionID: id, ResponseCode: out.code, ResponseMessage: out.message}, nil
	}
	if s.injectFailure() {
		return ports.ChargeResult{GatewayTransactionID: id, ResponseCode: domain.CodeProcessingError, ResponseMessage: "Simulated processing error"}, nil
	}

	s.captured[id] = amount
	return ports.ChargeResult{
		Approved:             true,
		GatewayTransactionID: id,
		ResponseCode:         domain.CodeSuccess,
		ResponseMessage:      fmt.Sprintf("Approved %d %s", amount, currency),
	}, nil
}

func (s *Simulator) Refund(ctx context.Context, gatewayTransactionID string, amount int64) (ports.RefundResult, error) {
	if err := s.wait(ctx); err != nil {
		return ports.RefundResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining, ok := s.captured[gatewayTransactionID]
	switch {
	case !ok:
		return ports.RefundResult{ResponseCode: domain.CodeInvalidCard, ResponseMessage: "Unknown charge"}, nil
	case amount > remaining:
		return ports.RefundResult{ResponseCode: domain.CodeDeclined, ResponseMessage: "Refund exceeds captured amount"}, nil
	case s.injectFailure():
		return ports.RefundResult{ResponseCode: domain.CodeProcessingError, ResponseMessage: "Simulated processing error"}, nil
	}

	s.captured[gatewayTransactionID] = remaining - amount
	return ports.RefundResult{
		Approved:        true,
		GatewayRefundID: s.nextID("re"),
		ResponseCode:    domain.CodeSuccess,
		ResponseMessage: "Refund approved",
	}, nil
}

func (s *Simulator) Transfer(ctx context.Context, req ports.TransferRequest) (ports.TransferResult, error) {
	if err := s.wait(ctx); err != nil {
		return ports.TransferResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := transferFailures[req.AccountLast4]; ok {
		return ports.TransferResult{FailureCode: f.code, Message: f.message}, nil
	}
	if s.injectFailure() {
		return ports.TransferResult{FailureCode: "processing_error", Message: "Simulated rail outage"}, nil
	}
	return ports.TransferResult{Accepted: true, Reference: s.nextID("po")}, nil
}

// Captured reports the refundable balance the simulator holds for a charge.
func (s *Simulator) Captured(gatewayTransactionID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured[gatewayTransactionID]
}

func (s *Simulator) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.latency):
		return nil
	}
}

func (s *Simulator) injectFailure() bool {
	return s.declineRate > 0 && s.rng.Float64() < s.declineRate
}

func (s *Simulator) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("sim_%s_%06d_%04x", prefix, s.seq, s.rng.Intn(0x10000))
}
