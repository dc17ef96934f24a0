// Package tally holds the chip and money arithmetic shared by live rooms,
// settlement and history reads. Everything here is pure.
package tally

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Holding is the part of a player that stats and settlement look at.
type Holding struct {
	Hands int64
	Chips *int64
}

// Stats is the table-level reconciliation shown next to the roster.
type Stats struct {
	Expected int64 `json:"expected"`
	Actual   int64 `json:"actual"`
	Result   int64 `json:"result"`
}

// ComputeStats treats unentered chips as zero.
func ComputeStats(holdings []Holding, chipsPerHand int64) Stats {
	var st Stats
	for _, h := range holdings {
		st.Expected += h.Hands * chipsPerHand
		if h.Chips != nil {
			st.Actual += *h.Chips
		}
	}
	st.Result = st.Actual - st.Expected
	return st
}

// Balance is chips minus buy-in; nil when chips were never entered.
func Balance(h Holding, chipsPerHand int64) *int64 {
	if h.Chips == nil {
		return nil
	}
	b := *h.Chips - h.Hands*chipsPerHand
	return &b
}

// HandsProfit expresses a balance in hands.
func HandsProfit(balance *int64, chipsPerHand int64) *decimal.Decimal {
	if balance == nil || chipsPerHand <= 0 {
		return nil
	}
	v := decimal.NewFromInt(*balance).Div(decimal.NewFromInt(chipsPerHand))
	return &v
}

// Profit converts a balance into money, rounded half away from zero to cents.
func Profit(balance *int64, chipsPerHand int64, costPerHand decimal.Decimal) *decimal.Decimal {
	if balance == nil || chipsPerHand <= 0 {
		return nil
	}
	v := decimal.NewFromInt(*balance).Mul(costPerHand).Div(decimal.NewFromInt(chipsPerHand)).Round(2)
	return &v
}

// DurationHours is the time between join and settlement, rounded to 0.01h.
func DurationHours(joinedAt, settledAt time.Time) float64 {
	if settledAt.Before(joinedAt) {
		return 0
	}
	hours := decimal.NewFromFloat(settledAt.Sub(joinedAt).Hours()).Round(2)
	return hours.InexactFloat64()
}

func profitGroup(p *decimal.Decimal) int {
	switch {
	case p == nil:
		return 3
	case p.IsPositive():
		return 0
	case p.IsNegative():
		return 1
	default:
		return 2
	}
}

// Rank orders items winners first (largest profit first), then losers
// (smallest loss first), then break-even, then rows without a profit.
// Ties keep their input order.
func Rank[T any](items []T, profit func(T) *decimal.Decimal) {
	slices.SortStableFunc(items, func(a, b T) int {
		pa, pb := profit(a), profit(b)
		ga, gb := profitGroup(pa), profitGroup(pb)
		if ga != gb {
			return cmp.Compare(ga, gb)
		}
		if ga == 0 || ga == 1 {
			return pb.Cmp(*pa)
		}
		return 0
	})
}

// ByProfit orders items by profit descending with rows lacking a profit
// last. Ties keep their input order.
func ByProfit[T any](items []T, profit func(T) *decimal.Decimal) {
	slices.SortStableFunc(items, func(a, b T) int {
		pa, pb := profit(a), profit(b)
		switch {
		case pa == nil && pb == nil:
			return 0
		case pa == nil:
			return 1
		case pb == nil:
			return -1
		}
		return pb.Cmp(*pa)
	})
}
