package discovery

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRulesWithoutOverrideReturnsDefaults(t *testing.T) {
	t.Setenv("DISCOVERY_RULES_FILE", "")

	rules, err := loadRules()
	if err != nil {
		t.Fatal(err)
	}
	if len(rules.AMCs) == 0 {
		t.Fatal("expected default AMC list to be non-empty")
	}
}

func TestLoadRulesMergesOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	contents := "amcs:\n  - \"Quant\"\ncategory_tokens:\n  - \"flexi cap\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DISCOVERY_RULES_FILE", path)

	rules, err := loadRules()
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, amc := range rules.AMCs {
		if amc == "Quant" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected override AMC 'Quant' to be merged, got %v", rules.AMCs)
	}
}

func TestLoadRulesMissingFileIsNotAnError(t *testing.T) {
	t.Setenv("DISCOVERY_RULES_FILE", filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	_, err := loadRules()
	if err != nil {
		t.Fatalf("expected missing override file to be ignored, got %v", err)
	}
}
