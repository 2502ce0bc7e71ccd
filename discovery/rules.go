// Package discovery filters the upstream scheme catalog down to the
// configured AMC x category subset (spec.md §4.3), wrapping pkg/catalog.
package discovery

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"encore.app/pkg/catalog"
)

// overrideFile is the optional local-dev YAML file letting operators add
// AMC/category tokens without a redeploy (SPEC_FULL.md §B). Format:
//
//	amcs: ["HDFC", "Quant"]
//	category_tokens: ["mid cap", "flexi cap"]
//	mandatory_tokens: ["Direct", "Growth"]
type overrideFile struct {
	AMCs            []string `yaml:"amcs"`
	CategoryTokens  []string `yaml:"category_tokens"`
	MandatoryTokens []string `yaml:"mandatory_tokens"`
}

// loadRules returns catalog.DefaultRules(), combined with an optional YAML
// override file named by DISCOVERY_RULES_FILE: the file's amcs and
// category_tokens are appended to the defaults, while a non-empty
// mandatory_tokens list replaces the default mandatory tokens. Absence of
// the env var or file is not an error; a malformed file is.
func loadRules() (catalog.Rules, error) {
	rules := catalog.DefaultRules()

	path := os.Getenv("DISCOVERY_RULES_FILE")
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return rules, nil
	}
	if err != nil {
		return catalog.Rules{}, fmt.Errorf("discovery: read rules override %s: %w", path, err)
	}

	var override overrideFile
	if err := yaml.Unmarshal(data, &override); err != nil {
		return catalog.Rules{}, fmt.Errorf("discovery: parse rules override %s: %w", path, err)
	}

	if len(override.AMCs) > 0 {
		rules.AMCs = append(rules.AMCs, override.AMCs...)
	}
	if len(override.CategoryTokens) > 0 {
		rules.CategoryTokens = append(rules.CategoryTokens, override.CategoryTokens...)
	}
	if len(override.MandatoryTokens) > 0 {
		rules.MandatoryTokens = override.MandatoryTokens
	}

	return rules, nil
}
