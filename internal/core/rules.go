package core

import (
	"errors"
	"fmt"
)

// RemainingID is the reserved identifier of the terminal rule that
// absorbs whatever balance the other rules leave unclaimed.
const RemainingID = "remaining"

type (
	// Bucket is the liquidity classification a balance portion lands in.
	Bucket int

	// RuleKind is the closed set of allocation rule behaviours.
	RuleKind int

	// AllocationRule is one entry in an account's ordered rule list.
	// Amount is meaningful for KindFixed, Percent for KindPercentage;
	// the remaining rule carries neither.
	AllocationRule struct {
		ID      string
		Name    string
		Kind    RuleKind
		Amount  Money
		Percent float64
		Bucket  Bucket
	}

	// RuleList is the ordered rule sequence for one account. All
	// mutations return a fresh list and leave the receiver untouched,
	// so a failed operation never exposes partial state.
	RuleList []AllocationRule

	// RulePatch carries a partial update; nil fields are left alone.
	RulePatch struct {
		Name    *string
		Kind    *RuleKind
		Amount  *Money
		Percent *float64
		Bucket  *Bucket
	}
)

const (
	BucketLiquid Bucket = iota
	BucketFrozen
	BucketDeepFreeze
)

const (
	KindFixed RuleKind = iota
	KindPercentage
	KindRemaining
)

var (
	ErrInvalidRule   = errors.New("invalid rule")
	ErrProtectedRule = errors.New("protected rule")
	ErrNotFound      = errors.New("rule not found")
)

func (b Bucket) String() string {
	switch b {
	case BucketLiquid:
		return "Liquid"
	case BucketFrozen:
		return "Frozen"
	case BucketDeepFreeze:
		return "Deep Freeze"
	}
	return "Liquid"
}

// ParseBucket maps the persisted status string to a Bucket.
func ParseBucket(s string) (Bucket, error) {
	switch s {
	case "Liquid":
		return BucketLiquid, nil
	case "Frozen":
		return BucketFrozen, nil
	case "Deep Freeze":
		return BucketDeepFreeze, nil
	}
	return BucketLiquid, fmt.Errorf("%w: unknown status %q", ErrInvalidRule, s)
}

func (k RuleKind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindPercentage:
		return "percentage"
	case KindRemaining:
		return "remaining"
	}
	return "fixed"
}

// ParseRuleKind maps the persisted type string to a RuleKind.
func ParseRuleKind(s string) (RuleKind, error) {
	switch s {
	case "fixed":
		return KindFixed, nil
	case "percentage":
		return KindPercentage, nil
	case "remaining":
		return KindRemaining, nil
	}
	return KindFixed, fmt.Errorf("%w: unknown type %q", ErrInvalidRule, s)
}

// Validate checks the value bounds for the rule's kind.
func (r AllocationRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	switch r.Kind {
	case KindFixed:
		if r.Amount.Milliunits < 0 {
			return fmt.Errorf("%w: fixed amount must not be negative", ErrInvalidRule)
		}
	case KindPercentage:
		if r.Percent <= 0 || r.Percent > 100 {
			return fmt.Errorf("%w: percentage must be in (0, 100], got %v", ErrInvalidRule, r.Percent)
		}
	case KindRemaining:
		// No value to check.
	default:
		return fmt.Errorf("%w: unknown kind", ErrInvalidRule)
	}
	return nil
}

// NewRuleList normalizes a persisted rule sequence into a valid list.
// It repairs the remaining rule the way the stored data has always been
// repaired on load: its kind, name and empty value are coerced, it is
// moved to the last position, and when it is missing entirely a fresh
// remaining rule with the caller's default bucket is appended.
func NewRuleList(rules []AllocationRule, defaultBucket Bucket) RuleList {
	list := make(RuleList, 0, len(rules)+1)

	var remaining *AllocationRule
	for _, r := range rules {
		if r.ID == RemainingID || r.Kind == KindRemaining {
			if remaining == nil {
				rr := r
				rr.ID = RemainingID
				rr.Name = "Remaining"
				rr.Kind = KindRemaining
				rr.Amount = Money{}
				rr.Percent = 0
				remaining = &rr
			}
			continue
		}
		list = append(list, r)
	}

	if remaining == nil {
		remaining = &AllocationRule{
			ID:     RemainingID,
			Name:   "Remaining",
			Kind:   KindRemaining,
			Bucket: defaultBucket,
		}
	}
	return append(list, *remaining)
}

// Remaining returns the terminal rule, if present.
func (l RuleList) Remaining() (AllocationRule, bool) {
	for _, r := range l {
		if r.Kind == KindRemaining {
			return r, true
		}
	}
	return AllocationRule{}, false
}

func (l RuleList) indexOf(id string) int {
	for i, r := range l {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Add inserts a rule immediately before the remaining rule.
func (l RuleList) Add(rule AllocationRule) (RuleList, error) {
	if rule.ID == RemainingID || rule.Kind == KindRemaining {
		return nil, fmt.Errorf("%w: id %q is reserved", ErrInvalidRule, RemainingID)
	}
	if l.indexOf(rule.ID) >= 0 {
		return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, rule.ID)
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	out := make(RuleList, 0, len(l)+1)
	out = append(out, l...)
	// The remaining rule is invariantly last; insert just before it.
	if n := len(out); n > 0 && out[n-1].Kind == KindRemaining {
		out = append(out[:n-1], rule, out[n-1])
	} else {
		out = append(out, rule)
	}
	return out, nil
}

// Delete removes the rule with the given id. The remaining rule can
// never be deleted.
func (l RuleList) Delete(id string) (RuleList, error) {
	if id == RemainingID {
		return nil, fmt.Errorf("%w: the remaining rule cannot be deleted", ErrProtectedRule)
	}
	i := l.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	out := make(RuleList, 0, len(l)-1)
	out = append(out, l[:i]...)
	out = append(out, l[i+1:]...)
	return out, nil
}

// Update applies a partial update to the rule with the given id. For
// the remaining rule only the bucket and display name may change; any
// attempt to touch its kind or value fails before state changes.
func (l RuleList) Update(id string, patch RulePatch) (RuleList, error) {
	i := l.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	r := l[i]
	if r.Kind == KindRemaining {
		if patch.Kind != nil || patch.Amount != nil || patch.Percent != nil {
			return nil, fmt.Errorf("%w: only the bucket of the remaining rule may change", ErrProtectedRule)
		}
	}
	if patch.Kind != nil {
		if *patch.Kind == KindRemaining {
			return nil, fmt.Errorf("%w: cannot convert a rule to remaining", ErrInvalidRule)
		}
		r.Kind = *patch.Kind
	}
	if patch.Name != nil {
		r.Name = *patch.Name
	}
	if patch.Amount != nil {
		r.Amount = *patch.Amount
	}
	if patch.Percent != nil {
		r.Percent = *patch.Percent
	}
	if patch.Bucket != nil {
		r.Bucket = *patch.Bucket
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	out := make(RuleList, len(l))
	copy(out, l)
	out[i] = r
	return out, nil
}

// Move swaps the rule at index with its neighbor in direction (-1 or
// +1). Moves that would touch the remaining rule's position, move the
// remaining rule itself, or fall out of bounds are silently ignored:
// callers treat the unchanged list as "ignored, not applied", which is
// exactly what a drag boundary in the UI wants.
func (l RuleList) Move(index, direction int) RuleList {
	if direction != -1 && direction != 1 {
		return l
	}
	last := len(l) - 1 // remaining rule position
	target := index + direction
	if index < 0 || index >= last || target < 0 || target >= last {
		return l
	}
	out := make(RuleList, len(l))
	copy(out, l)
	out[index], out[target] = out[target], out[index]
	return out
}

// Validate checks the structural invariants of the whole list: exactly
// one remaining rule in the last position, non-reserved ids and value
// bounds everywhere else.
func (l RuleList) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("%w: empty rule list", ErrInvalidRule)
	}
	seen := make(map[string]bool, len(l))
	for i, r := range l {
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = true

		terminal := i == len(l)-1
		if terminal {
			if r.Kind != KindRemaining || r.ID != RemainingID {
				return fmt.Errorf("%w: last rule must be the remaining rule", ErrInvalidRule)
			}
			continue
		}
		if r.Kind == KindRemaining || r.ID == RemainingID {
			return fmt.Errorf("%w: remaining rule must be last", ErrInvalidRule)
		}
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}
