package core

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// wireRule is the persisted and transported rule shape:
// {id, name, type, value, status}. Fixed values travel in currency
// units (30 means thirty whole units), percentages as plain percents,
// and the remaining rule carries no value at all. Older stored lists
// sometimes omit "type" on the remaining rule; the reserved id is
// authoritative there.
type wireRule struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Type   string   `json:"type,omitempty"`
	Value  *float64 `json:"value,omitempty"`
	Status string   `json:"status"`
}

func (r AllocationRule) MarshalJSON() ([]byte, error) {
	w := wireRule{
		ID:     r.ID,
		Name:   r.Name,
		Type:   r.Kind.String(),
		Status: r.Bucket.String(),
	}
	switch r.Kind {
	case KindFixed:
		v, _ := decimal.NewFromInt(r.Amount.Milliunits).Shift(-3).Float64()
		w.Value = &v
	case KindPercentage:
		v := r.Percent
		w.Value = &v
	}
	return json.Marshal(w)
}

func (r *AllocationRule) UnmarshalJSON(data []byte) error {
	var w wireRule
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	// A blank id is legal on the wire: new rules arrive without one and
	// the service assigns an identifier before anything is persisted.
	var kind RuleKind
	switch {
	case w.ID == RemainingID || w.Type == "remaining":
		kind = KindRemaining
	default:
		k, err := ParseRuleKind(w.Type)
		if err != nil {
			return err
		}
		kind = k
	}

	bucket, err := ParseBucket(w.Status)
	if err != nil {
		return err
	}

	out := AllocationRule{
		ID:     w.ID,
		Name:   w.Name,
		Kind:   kind,
		Bucket: bucket,
	}
	if w.Value != nil {
		switch kind {
		case KindFixed:
			out.Amount = Money{Milliunits: UnitsToMilliunits(*w.Value)}
		case KindPercentage:
			out.Percent = *w.Value
		}
	}
	*r = out
	return nil
}

// DecodeRules parses a persisted JSON rule array. Stored rules must
// carry ids; only in-flight rules may omit them. It does not repair
// structure; run the result through NewRuleList before use.
func DecodeRules(data []byte) ([]AllocationRule, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rules []AllocationRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	for _, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("decode rules: %w: missing id", ErrInvalidRule)
		}
	}
	return rules, nil
}

// EncodeRules renders a rule list in the persisted JSON format.
func EncodeRules(rules RuleList) ([]byte, error) {
	data, err := json.Marshal([]AllocationRule(rules))
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	return data, nil
}
