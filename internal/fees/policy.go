package fees

import (
	"sort"

	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/shopspring/decimal"
)

// SplitPolicy divides a multi-seller payout pool and admin fee between sellers.
// Implementations must return one share per group, in group order, with sums
// equal to the inputs.
type SplitPolicy interface {
	Name() enums.SplitPolicy
	Split(groups []SellerGroup, poolCents, adminFeeCents int64) []SellerShare
}

// PolicyFor resolves a configured policy name.
func PolicyFor(name enums.SplitPolicy) SplitPolicy {
	if name == enums.SplitPolicyProportional {
		return ProportionalSplit{}
	}
	return EqualSplit{}
}

// EqualSplit gives every seller the same share regardless of what they sold.
// Leftover cents go to the first sellers.
type EqualSplit struct{}

func (EqualSplit) Name() enums.SplitPolicy { return enums.SplitPolicyEqual }

func (EqualSplit) Split(groups []SellerGroup, poolCents, adminFeeCents int64) []SellerShare {
	amounts := divideEvenly(poolCents, len(groups))
	feeShares := divideEvenly(adminFeeCents, len(groups))
	return shares(groups, amounts, feeShares)
}

// ProportionalSplit weights each seller by their item subtotal using the
// largest-remainder method. Falls back to the equal split when the subtotal is zero.
type ProportionalSplit struct{}

func (ProportionalSplit) Name() enums.SplitPolicy { return enums.SplitPolicyProportional }

func (ProportionalSplit) Split(groups []SellerGroup, poolCents, adminFeeCents int64) []SellerShare {
	weights := make([]int64, len(groups))
	var total int64
	for i, g := range groups {
		weights[i] = g.SubtotalCents
		total += g.SubtotalCents
	}
	if total <= 0 {
		return EqualSplit{}.Split(groups, poolCents, adminFeeCents)
	}
	amounts := divideByWeight(poolCents, weights, total)
	feeShares := divideByWeight(adminFeeCents, weights, total)
	return shares(groups, amounts, feeShares)
}

func shares(groups []SellerGroup, amounts, feeShares []int64) []SellerShare {
	out := make([]SellerShare, len(groups))
	for i, g := range groups {
		out[i] = SellerShare{
			SellerID:      g.SellerID,
			StoreName:     g.StoreName,
			SubtotalCents: g.SubtotalCents,
			AmountCents:   amounts[i],
			AdminFeeCents: feeShares[i],
		}
	}
	return out
}

func divideEvenly(amount int64, n int) []int64 {
	out := make([]int64, n)
	base := amount / int64(n)
	rem := amount % int64(n)
	for i := range out {
		out[i] = base
		if int64(i) < rem {
			out[i]++
		}
	}
	return out
}

func divideByWeight(amount int64, weights []int64, total int64) []int64 {
	type part struct {
		index     int
		remainder decimal.Decimal
	}
	out := make([]int64, len(weights))
	parts := make([]part, len(weights))
	divisor := decimal.NewFromInt(total)
	var assigned int64
	for i, w := range weights {
		q, r := decimal.NewFromInt(amount).Mul(decimal.NewFromInt(w)).QuoRem(divisor, 0)
		out[i] = q.IntPart()
		assigned += out[i]
		parts[i] = part{index: i, remainder: r}
	}
	sort.SliceStable(parts, func(a, b int) bool {
		return parts[a].remainder.GreaterThan(parts[b].remainder)
	})
	for left, i := amount-assigned, 0; left > 0; left, i = left-1, i+1 {
		out[parts[i%len(parts)].index]++
	}
	return out
}
