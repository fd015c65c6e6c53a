package dlp

import (
	"fmt"
	"regexp"
)

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Masker replaces every match of the enabled rules with the rule's mask.
// A nil Masker passes values through.
type Masker struct {
	rules []compiledRule
}

func NewMasker(cfg RulesConfig) (*Masker, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("dlp rule %q: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Masker{rules: compiled}, nil
}

func (m *Masker) MaskString(s string) string {
	if m == nil {
		return s
	}
	for _, r := range m.rules {
		s = r.re.ReplaceAllString(s, r.rule.Mask)
	}
	return s
}

// Sanitize returns a masked deep copy of data.
func (m *Masker) Sanitize(data map[string]interface{}) map[string]interface{} {
	if m == nil {
		return data
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = m.sanitizeValue(v)
	}
	return out
}

// Types reports which rule types match anywhere in data.
func (m *Masker) Types(data map[string]interface{}) []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]bool)
	var types []string
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch val := v.(type) {
		case string:
			for _, r := range m.rules {
				if !seen[r.rule.Type] && r.re.MatchString(val) {
					seen[r.rule.Type] = true
					types = append(types, r.rule.Type)
				}
			}
		case map[string]interface{}:
			for _, nested := range val {
				walk(nested)
			}
		case []interface{}:
			for _, nested := range val {
				walk(nested)
			}
		}
	}
	walk(data)
	return types
}

func (m *Masker) sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return m.MaskString(v)
	case map[string]interface{}:
		return m.Sanitize(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, nested := range v {
			out[i] = m.sanitizeValue(nested)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = m.MaskString(s)
		}
		return out
	default:
		return value
	}
}
