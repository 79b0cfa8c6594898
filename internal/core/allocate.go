package core

import "github.com/shopspring/decimal"

// AllocationResult is the outcome of one allocation pass. For a valid
// rule list and a non-negative balance the three buckets always sum to
// the balance and Unallocated is zero; Unallocated only carries value
// when the snapshot had no remaining rule, so callers can surface a
// data-integrity warning instead of masking it.
type AllocationResult struct {
	Liquid      Money
	Frozen      Money
	DeepFreeze  Money
	Unallocated Money
}

// Total returns the sum of the three bucket totals.
func (r AllocationResult) Total() Money {
	return Money{Milliunits: r.Liquid.Milliunits + r.Frozen.Milliunits + r.DeepFreeze.Milliunits}
}

func (r *AllocationResult) add(b Bucket, milliunits int64) {
	switch b {
	case BucketLiquid:
		r.Liquid.Milliunits += milliunits
	case BucketFrozen:
		r.Frozen.Milliunits += milliunits
	case BucketDeepFreeze:
		r.DeepFreeze.Milliunits += milliunits
	}
}

// Allocate distributes a balance across the three liquidity buckets
// according to the ordered rule list. The pass order is part of the
// contract:
//
//  1. Fixed rules run first, in list order, each capped by what is
//     still unclaimed; when fixed rules oversubscribe the balance the
//     first rule in the list wins its full amount.
//  2. Percentage rules run next, each computed against the balance
//     left after ALL fixed rules (the same base for every percentage
//     rule), floored to whole milliunits, and capped by the live
//     remainder so no rule can over-allocate.
//  3. The remaining rule absorbs whatever is left, including the
//     milliunits the floor rounding shaved off.
//
// A negative balance allocates nothing; no bucket ever goes negative.
// Allocate never fails: handed a snapshot without a remaining rule it
// reports the leftover in Unallocated rather than guessing a bucket.
func Allocate(balance Money, rules RuleList) AllocationResult {
	var res AllocationResult

	remaining := balance.Milliunits
	if remaining < 0 {
		remaining = 0
	}

	for _, r := range rules {
		if r.Kind != KindFixed {
			continue
		}
		amount := r.Amount.Milliunits
		if amount > remaining {
			amount = remaining
		}
		if amount > 0 {
			res.add(r.Bucket, amount)
			remaining -= amount
		}
	}

	// Percentages are always of the post-fixed balance, never of the
	// live remainder at the time of the individual rule.
	base := remaining
	for _, r := range rules {
		if r.Kind != KindPercentage {
			continue
		}
		if r.Percent <= 0 || r.Percent > 100 {
			// Out-of-bounds values in a degraded snapshot contribute
			// nothing; upstream validation rejects them on mutation.
			continue
		}
		amount := percentOf(base, r.Percent)
		if amount > remaining {
			amount = remaining
		}
		if amount > 0 {
			res.add(r.Bucket, amount)
			remaining -= amount
		}
	}

	if rem, ok := rules.Remaining(); ok {
		if remaining > 0 {
			res.add(rem.Bucket, remaining)
		}
	} else {
		res.Unallocated = Money{Milliunits: remaining}
	}
	return res
}

// percentOf returns floor(base * percent / 100) in milliunits, exact
// for fractional percentages.
func percentOf(base int64, percent float64) int64 {
	return decimal.NewFromInt(base).
		Mul(decimal.NewFromFloat(percent)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}
