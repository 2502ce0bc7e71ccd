// Package catalog filters a mutual-fund scheme catalog down to the
// configured AMC x category subset and labels each match.
//
// Design Notes:
//   - Matching is fuzzy case-insensitive substring containment, not exact
//     tokenization, so differently ordered names such as "HDFC Mid Cap Fund
//     - Direct Plan - Growth" and "HDFC Mid Cap Direct Growth Plan" both
//     match. Punctuation is not normalized: "Mid-Cap" does not contain the
//     "mid cap" token and is not matched.
//   - Rule sets are closed, compile-time-known enumerations (spec.md §9
//     "Dynamic object shapes in configuration" redesign note) rather than
//     open-ended configuration objects.
package catalog

import "strings"

// SchemeRef is a minimal upstream catalog entry.
type SchemeRef struct {
	SchemeCode string
	SchemeName string
}

// Descriptor is a catalog entry annotated with the AMC and category it
// matched, ready for ingestion.
type Descriptor struct {
	SchemeCode string
	SchemeName string
	AMC        string
	Category   string
}

// Rules is the closed set of fuzzy-match tokens discovery filters against.
type Rules struct {
	AMCs              []string // recognized AMC short names
	CategoryTokens    []string // recognized category tokens, e.g. "mid cap"
	MandatoryTokens   []string // every one of these must appear, e.g. "Direct", "Growth"
}

// DefaultRules returns the standard AMC/category/mandatory token sets.
func DefaultRules() Rules {
	return Rules{
		AMCs: []string{
			"HDFC", "ICICI Prudential", "SBI", "Axis", "Kotak",
			"Nippon India", "Aditya Birla Sun Life", "UTI", "DSP", "Mirae Asset",
		},
		CategoryTokens:  []string{"mid cap", "small cap"},
		MandatoryTokens: []string{"Direct", "Growth"},
	}
}

// Filter returns the deduplicated subset of catalog entries matching every
// rule set: contains any configured AMC AND any configured category token
// AND every mandatory token.
func Filter(entries []SchemeRef, rules Rules) []Descriptor {
	seen := make(map[string]bool, len(entries))
	out := make([]Descriptor, 0, len(entries))

	for _, e := range entries {
		if seen[e.SchemeCode] {
			continue
		}

		amc, ok := matchAny(e.SchemeName, rules.AMCs)
		if !ok {
			continue
		}
		if _, ok := matchAny(e.SchemeName, rules.CategoryTokens); !ok {
			continue
		}
		if !matchAll(e.SchemeName, rules.MandatoryTokens) {
			continue
		}

		seen[e.SchemeCode] = true
		out = append(out, Descriptor{
			SchemeCode: e.SchemeCode,
			SchemeName: e.SchemeName,
			AMC:        amc,
			Category:   categorize(e.SchemeName),
		})
	}

	return out
}

// categorize labels a matched scheme name by token inspection: "mid cap"
// maps to "Mid Cap Direct Growth", "small cap" maps to "Small Cap Direct
// Growth".
func categorize(schemeName string) string {
	lower := strings.ToLower(schemeName)
	switch {
	case strings.Contains(lower, "mid cap"):
		return "Mid Cap Direct Growth"
	case strings.Contains(lower, "small cap"):
		return "Small Cap Direct Growth"
	default:
		return "Direct Growth"
	}
}

// matchAny returns the first candidate that appears in s (case-insensitive)
// and true, or ("", false) if none match.
func matchAny(s string, candidates []string) (string, bool) {
	lower := strings.ToLower(s)
	for _, c := range candidates {
		if strings.Contains(lower, strings.ToLower(c)) {
			return c, true
		}
	}
	return "", false
}

// matchAll reports whether every candidate appears in s (case-insensitive).
func matchAll(s string, candidates []string) bool {
	lower := strings.ToLower(s)
	for _, c := range candidates {
		if !strings.Contains(lower, strings.ToLower(c)) {
			return false
		}
	}
	return true
}
