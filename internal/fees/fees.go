package fees

import (
	"fmt"

	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultRateBPS is the platform admin fee, 1.5% of the subtotal.
const DefaultRateBPS = 150

const bpsScale = 4

// Line is the slice of an order item the calculator needs.
type Line struct {
	SellerID   uuid.UUID
	StoreName  string
	TotalCents int64
}

// Totals are the frozen money figures of an order.
type Totals struct {
	SubtotalCents   int64
	AdminFeeCents   int64
	TotalCents      int64
	AdminFeeRateBPS int
}

// SellerGroup aggregates an order's lines for one seller.
type SellerGroup struct {
	SellerID      uuid.UUID
	StoreName     string
	SubtotalCents int64
	ItemCount     int
}

// SellerShare is one seller's payout and share of the admin fee.
type SellerShare struct {
	SellerID      uuid.UUID
	StoreName     string
	SubtotalCents int64
	AmountCents   int64
	AdminFeeCents int64
}

// AdminFee returns the platform fee for a subtotal. COD orders never carry a fee;
// transfer orders pay round-half-up(subtotal * rate).
func AdminFee(method enums.PaymentMethod, subtotalCents int64, rateBPS int) int64 {
	if method != enums.PaymentMethodTransfer || subtotalCents <= 0 || rateBPS <= 0 {
		return 0
	}
	return decimal.NewFromInt(subtotalCents).
		Mul(decimal.NewFromInt(int64(rateBPS))).
		Shift(-bpsScale).
		Round(0).
		IntPart()
}

// GroupBySeller groups lines by seller in first-seen order.
func GroupBySeller(lines []Line) []SellerGroup {
	groups := make([]SellerGroup, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		i, ok := index[line.SellerID]
		if !ok {
			i = len(groups)
			index[line.SellerID] = i
			groups = append(groups, SellerGroup{SellerID: line.SellerID, StoreName: line.StoreName})
		}
		groups[i].SubtotalCents += line.TotalCents
		groups[i].ItemCount++
	}
	return groups
}

// Calculator freezes order totals at the configured rate and splits payouts with a policy.
type Calculator struct {
	rateBPS int
	policy  SplitPolicy
}

// NewCalculator validates the rate and defaults the policy to the equal split.
func NewCalculator(rateBPS int, policy SplitPolicy) (*Calculator, error) {
	if rateBPS < 0 || rateBPS > 10000 {
		return nil, fmt.Errorf("admin fee rate must be between 0 and 10000 bps, got %d", rateBPS)
	}
	if policy == nil {
		policy = EqualSplit{}
	}
	return &Calculator{rateBPS: rateBPS, policy: policy}, nil
}

// RateBPS is the rate applied to new orders.
func (c *Calculator) RateBPS() int {
	return c.rateBPS
}

// Policy is the configured split policy.
func (c *Calculator) Policy() SplitPolicy {
	return c.policy
}

// Totals computes the order figures for a new order.
func (c *Calculator) Totals(method enums.PaymentMethod, lines []Line) (Totals, error) {
	if !method.IsValid() {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", method))
	}
	var subtotal int64
	for _, line := range lines {
		if line.TotalCents < 0 {
			return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "line totals must not be negative")
		}
		subtotal += line.TotalCents
	}
	rate := c.rateBPS
	if method == enums.PaymentMethodCOD {
		rate = 0
	}
	fee := AdminFee(method, subtotal, rate)
	return Totals{
		SubtotalCents:   subtotal,
		AdminFeeCents:   fee,
		TotalCents:      subtotal + fee,
		AdminFeeRateBPS: rate,
	}, nil
}

// Split divides the seller payout pool (subtotal minus the frozen admin fee) between
// the sellers of an order. A single seller receives the whole pool and carries the fee.
func (c *Calculator) Split(subtotalCents, adminFeeCents int64, lines []Line) ([]SellerShare, error) {
	return SplitWith(c.policy, subtotalCents, adminFeeCents, lines)
}

// SplitWith is Split with an explicit policy.
func SplitWith(policy SplitPolicy, subtotalCents, adminFeeCents int64, lines []Line) ([]SellerShare, error) {
	groups := GroupBySeller(lines)
	if len(groups) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodePreconditionFailed, "order has no sellers to settle")
	}
	if adminFeeCents < 0 || adminFeeCents > subtotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin fee must be between zero and the subtotal")
	}
	pool := subtotalCents - adminFeeCents
	if len(groups) == 1 {
		g := groups[0]
		return []SellerShare{{
			SellerID:      g.SellerID,
			StoreName:     g.StoreName,
			SubtotalCents: g.SubtotalCents,
			AmountCents:   pool,
			AdminFeeCents: adminFeeCents,
		}}, nil
	}
	if policy == nil {
		policy = EqualSplit{}
	}
	return policy.Split(groups, pool, adminFeeCents), nil
}
