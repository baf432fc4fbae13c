// Package fees computes processing fees in integer minor units.
package fees

import (
	"github.com/shopspring/decimal"
)

// Schedule is a percentage-plus-fixed fee with an optional floor.
type Schedule struct {
	Rate    decimal.Decimal
	Fixed   int64
	Minimum int64
}

// Apply returns round_half_up(amount*rate) + fixed, raised to the minimum.
func (s Schedule) Apply(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(amount).Mul(s.Rate).Round(0).IntPart() + s.Fixed
	if fee < s.Minimum {
		return s.Minimum
	}
	return fee
}

var (
	// TransactionSchedule is 2.9% + $0.30.
	TransactionSchedule = Schedule{Rate: decimal.RequireFromString("0.029"), Fixed: 30}
	// RefundSchedule is 0.5% with no fixed part.
	RefundSchedule = Schedule{Rate: decimal.RequireFromString("0.005")}
	// PayoutSchedule is 1% with a $0.25 floor.
	PayoutSchedule = Schedule{Rate: decimal.RequireFromString("0.01"), Minimum: 25}
)

// Calculator holds the three fee schedules.
type Calculator struct {
	Transaction Schedule
	Refund      Schedule
	Payout      Schedule
}

// NewCalculator returns the standard fee schedules.
func NewCalculator() *Calculator {
	return &Calculator{
		Transaction: TransactionSchedule,
		Refund:      RefundSchedule,
		Payout:      PayoutSchedule,
	}
}

func (c *Calculator) TransactionFee(amount int64) int64 { return c.Transaction.Apply(amount) }

func (c *Calculator) RefundFee(amount int64) int64 { return c.Refund.Apply(amount) }

func (c *Calculator) PayoutFee(amount int64) int64 { return c.Payout.Apply(amount) }
