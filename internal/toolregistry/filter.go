package toolregistry

import "strings"

// Filter applies configured allow/block wildcard patterns against function
// and provider names before the Registry is consulted, evaluated per
// (provider, function) pair.
//
// Evaluation order, first match wins: provider-disabled → provider-blocked →
// provider-allowed → global-blocked → global-allowed. With no rules
// configured for a dimension, that dimension defaults to allow.
type Filter struct {
	// DisabledProviders names providers whose tools are never dispatched,
	// regardless of any allow rule.
	DisabledProviders []string
	// ProviderBlock / ProviderAllow key by provider name; each value is a
	// list of wildcard function-name patterns.
	ProviderBlock map[string][]string
	ProviderAllow map[string][]string
	// GlobalBlock / GlobalAllow apply across all providers.
	GlobalBlock []string
	GlobalAllow []string
}

// Decision reports whether a call is permitted, and if not, which rule
// rejected it.
type Decision struct {
	Allowed bool
	Rule    string
}

// Evaluate decides whether provider/function may be dispatched.
func (f Filter) Evaluate(provider, function string) Decision {
	for _, p := range f.DisabledProviders {
		if matches(p, provider) {
			return Decision{Allowed: false, Rule: "provider-disabled:" + p}
		}
	}
	if patterns, ok := f.ProviderBlock[provider]; ok {
		for _, pat := range patterns {
			if matches(pat, function) {
				return Decision{Allowed: false, Rule: "provider-blocked:" + pat}
			}
		}
	}
	if patterns, ok := f.ProviderAllow[provider]; ok && len(patterns) > 0 {
		for _, pat := range patterns {
			if matches(pat, function) {
				return Decision{Allowed: true, Rule: "provider-allowed:" + pat}
			}
		}
		return Decision{Allowed: false, Rule: "provider-allowed:no-match"}
	}
	for _, pat := range f.GlobalBlock {
		if matches(pat, function) {
			return Decision{Allowed: false, Rule: "global-blocked:" + pat}
		}
	}
	if len(f.GlobalAllow) > 0 {
		for _, pat := range f.GlobalAllow {
			if matches(pat, function) {
				return Decision{Allowed: true, Rule: "global-allowed:" + pat}
			}
		}
		return Decision{Allowed: false, Rule: "global-allowed:no-match"}
	}
	return Decision{Allowed: true, Rule: ""}
}

// matches implements a "*"-prefix/suffix/contains wildcard match against
// name, case-insensitively. A pattern with no "*" must match exactly; a
// bare "*" matches everything including the empty string.
func matches(pattern, name string) bool {
	pattern = strings.ToLower(pattern)
	name = strings.ToLower(name)
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1:
		return strings.Contains(name, pattern[1:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	default:
		return pattern == name
	}
}
