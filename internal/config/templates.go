package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"stash/internal/core"
)

//go:embed templates.yaml
var builtinTemplatesYAML []byte

// templateRule is the YAML shape of one default rule, matching the
// persisted rule format field for field.
type templateRule struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Type   string   `yaml:"type"`
	Value  *float64 `yaml:"value"`
	Status string   `yaml:"status"`
}

type templateFile struct {
	AccountTypes map[string][]templateRule `yaml:"account_types"`
	Default      []templateRule            `yaml:"default"`
}

// RuleTemplates holds the default allocation rule sets synthesized for
// accounts that have never been configured, keyed by account type.
type RuleTemplates struct {
	byType   map[string][]core.AllocationRule
	fallback []core.AllocationRule
}

// LoadRuleTemplates reads rule templates from the given YAML file, or
// from the built-in templates when path is empty.
func LoadRuleTemplates(path string) (*RuleTemplates, error) {
	data := builtinTemplatesYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rule templates: %w", err)
		}
		data = b
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule templates: %w", err)
	}

	t := &RuleTemplates{byType: make(map[string][]core.AllocationRule)}
	for accountType, rules := range file.AccountTypes {
		converted, err := convertTemplateRules(rules)
		if err != nil {
			return nil, fmt.Errorf("templates for %q: %w", accountType, err)
		}
		t.byType[strings.ToLower(accountType)] = converted
	}

	fallback, err := convertTemplateRules(file.Default)
	if err != nil {
		return nil, fmt.Errorf("default templates: %w", err)
	}
	t.fallback = fallback
	return t, nil
}

func convertTemplateRules(rules []templateRule) ([]core.AllocationRule, error) {
	out := make([]core.AllocationRule, 0, len(rules))
	for _, tr := range rules {
		bucket, err := core.ParseBucket(tr.Status)
		if err != nil {
			return nil, err
		}

		rule := core.AllocationRule{
			ID:     tr.ID,
			Name:   tr.Name,
			Bucket: bucket,
		}
		if tr.ID == core.RemainingID || tr.Type == "remaining" {
			rule.Kind = core.KindRemaining
		} else {
			kind, err := core.ParseRuleKind(tr.Type)
			if err != nil {
				return nil, err
			}
			rule.Kind = kind
			if tr.Value != nil {
				switch kind {
				case core.KindFixed:
					rule.Amount = core.Money{Milliunits: core.UnitsToMilliunits(*tr.Value)}
				case core.KindPercentage:
					rule.Percent = *tr.Value
				}
			}
		}
		out = append(out, rule)
	}
	return out, nil
}

// ForAccountType returns a fresh, normalized rule list for a new
// account of the given type. Savings-like accounts default to Frozen,
// everything else to Liquid, matching the defaulting the surrounding
// application has always used.
func (t *RuleTemplates) ForAccountType(accountType string) core.RuleList {
	key := strings.ToLower(strings.TrimSpace(accountType))
	if rules, ok := t.byType[key]; ok {
		return core.NewRuleList(cloneRules(rules), t.DefaultBucket(accountType))
	}
	return core.NewRuleList(cloneRules(t.fallback), t.DefaultBucket(accountType))
}

// DefaultBucket returns the bucket a synthesized remaining rule should
// use for the given account type.
func (t *RuleTemplates) DefaultBucket(accountType string) core.Bucket {
	if strings.EqualFold(strings.TrimSpace(accountType), "savings") {
		return core.BucketFrozen
	}
	return core.BucketLiquid
}

func cloneRules(rules []core.AllocationRule) []core.AllocationRule {
	out := make([]core.AllocationRule, len(rules))
	copy(out, rules)
	return out
}
