package core

import "testing"

func fixed(id string, units int64, b Bucket) AllocationRule {
	return AllocationRule{ID: id, Kind: KindFixed, Amount: Money{Milliunits: units * 1000}, Bucket: b}
}

func pct(id string, percent float64, b Bucket) AllocationRule {
	return AllocationRule{ID: id, Kind: KindPercentage, Percent: percent, Bucket: b}
}

func remainingRule(b Bucket) AllocationRule {
	return AllocationRule{ID: RemainingID, Name: "Remaining", Kind: KindRemaining, Bucket: b}
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		rules   RuleList
		want    AllocationResult
	}{
		{
			name:    "fixed then percentage then remaining",
			balance: 100000, // $100.00
			rules: RuleList{
				fixed("savings", 30, BucketLiquid),
				pct("buffer", 50, BucketFrozen),
				remainingRule(BucketDeepFreeze),
			},
			want: AllocationResult{
				Liquid:     Money{Milliunits: 30000},
				Frozen:     Money{Milliunits: 35000}, // 50% of the post-fixed 70000
				DeepFreeze: Money{Milliunits: 35000},
			},
		},
		{
			name:    "fixed exceeds balance is capped",
			balance: 10000,
			rules: RuleList{
				fixed("big", 50, BucketLiquid),
				remainingRule(BucketLiquid),
			},
			want: AllocationResult{Liquid: Money{Milliunits: 10000}},
		},
		{
			name:    "oversubscribed fixed rules favour list order",
			balance: 10000,
			rules: RuleList{
				fixed("first", 8, BucketLiquid),
				fixed("second", 8, BucketFrozen),
				remainingRule(BucketDeepFreeze),
			},
			want: AllocationResult{
				Liquid: Money{Milliunits: 8000},
				Frozen: Money{Milliunits: 2000},
			},
		},
		{
			name:    "percentages share the post-fixed base",
			balance: 100000,
			rules: RuleList{
				fixed("f", 20, BucketLiquid),
				pct("a", 60, BucketFrozen),
				pct("b", 60, BucketDeepFreeze), // clamped by the live remainder
				remainingRule(BucketLiquid),
			},
			want: AllocationResult{
				Liquid:     Money{Milliunits: 20000},
				Frozen:     Money{Milliunits: 48000}, // 60% of 80000
				DeepFreeze: Money{Milliunits: 32000}, // capped at what is left
			},
		},
		{
			name:    "fractional percent floors and the remainder flows down",
			balance: 100001,
			rules: RuleList{
				pct("third", 33.33, BucketFrozen),
				remainingRule(BucketLiquid),
			},
			want: AllocationResult{
				Frozen: Money{Milliunits: 33330}, // floor(100001 * 33.33%)
				Liquid: Money{Milliunits: 66671},
			},
		},
		{
			name:    "negative balance allocates nothing",
			balance: -5000,
			rules: RuleList{
				fixed("f", 10, BucketLiquid),
				remainingRule(BucketFrozen),
			},
			want: AllocationResult{},
		},
		{
			name:    "zero-value fixed rule contributes nothing",
			balance: 5000,
			rules: RuleList{
				fixed("zero", 0, BucketDeepFreeze),
				remainingRule(BucketLiquid),
			},
			want: AllocationResult{Liquid: Money{Milliunits: 5000}},
		},
		{
			name:    "missing remaining rule reports unallocated",
			balance: 10000,
			rules: RuleList{
				fixed("f", 4, BucketLiquid),
			},
			want: AllocationResult{
				Liquid:      Money{Milliunits: 4000},
				Unallocated: Money{Milliunits: 6000},
			},
		},
		{
			name:    "out-of-bounds percentage in a degraded snapshot is skipped",
			balance: 10000,
			rules: RuleList{
				pct("bad", 150, BucketFrozen),
				remainingRule(BucketLiquid),
			},
			want: AllocationResult{Liquid: Money{Milliunits: 10000}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Allocate(Money{Milliunits: tt.balance}, tt.rules)
			if got != tt.want {
				t.Errorf("Allocate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAllocateConservation(t *testing.T) {
	// For any valid list and non-negative balance the buckets must sum
	// to the balance with nothing unallocated.
	lists := []RuleList{
		NewRuleList(nil, BucketLiquid),
		{fixed("a", 25, BucketLiquid), remainingRule(BucketFrozen)},
		{fixed("a", 25, BucketLiquid), pct("b", 10, BucketFrozen), pct("c", 90, BucketDeepFreeze), remainingRule(BucketLiquid)},
		{pct("b", 33.33, BucketFrozen), pct("c", 66.67, BucketDeepFreeze), remainingRule(BucketLiquid)},
		{fixed("a", 999, BucketDeepFreeze), remainingRule(BucketLiquid)},
	}
	balances := []int64{0, 1, 999, 10000, 100001, 123456789}

	for _, rules := range lists {
		for _, balance := range balances {
			got := Allocate(Money{Milliunits: balance}, rules)
			if got.Unallocated.Milliunits != 0 {
				t.Fatalf("balance %d: unexpected unallocated %d", balance, got.Unallocated.Milliunits)
			}
			if total := got.Total().Milliunits; total != balance {
				t.Fatalf("balance %d: buckets sum to %d", balance, total)
			}
			for _, b := range []int64{got.Liquid.Milliunits, got.Frozen.Milliunits, got.DeepFreeze.Milliunits} {
				if b < 0 {
					t.Fatalf("balance %d: negative bucket in %+v", balance, got)
				}
			}
		}
	}
}

func TestAllocateReorderStability(t *testing.T) {
	// Two fixed rules whose combined value fits the balance allocate
	// the same totals in either order.
	a := fixed("a", 30, BucketLiquid)
	b := fixed("b", 40, BucketFrozen)
	rem := remainingRule(BucketDeepFreeze)
	balance := Money{Milliunits: 100000}

	first := Allocate(balance, RuleList{a, b, rem})
	second := Allocate(balance, RuleList{b, a, rem})
	if first != second {
		t.Errorf("order changed totals: %+v vs %+v", first, second)
	}

	// When they oversubscribe, order decides who gets truncated.
	tight := Money{Milliunits: 50000}
	first = Allocate(tight, RuleList{a, b, rem})
	if first.Liquid.Milliunits != 30000 || first.Frozen.Milliunits != 20000 {
		t.Errorf("a-first: %+v", first)
	}
	second = Allocate(tight, RuleList{b, a, rem})
	if second.Frozen.Milliunits != 40000 || second.Liquid.Milliunits != 10000 {
		t.Errorf("b-first: %+v", second)
	}
}

func TestAllocateDeleteReallocatesToRemaining(t *testing.T) {
	balance := Money{Milliunits: 100000}
	rules := RuleList{
		fixed("a", 30, BucketLiquid),
		remainingRule(BucketDeepFreeze),
	}
	before := Allocate(balance, rules)
	if before.DeepFreeze.Milliunits != 70000 {
		t.Fatalf("before: %+v", before)
	}

	smaller, err := rules.Delete("a")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	after := Allocate(balance, smaller)
	if after.DeepFreeze.Milliunits != 100000 || after.Liquid.Milliunits != 0 {
		t.Errorf("after: %+v", after)
	}
}
