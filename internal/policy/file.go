package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form accepted by the policy add command.
type File struct {
	PolicyID          string   `yaml:"policy_id"`
	Name              string   `yaml:"name"`
	Category          string   `yaml:"category"`
	Severity          string   `yaml:"severity"`
	Rule              Rule     `yaml:"rule"`
	RegulatoryMapping []string `yaml:"regulatory_mapping"`
}

// LoadFile reads a YAML (or JSON) policy definition.
func LoadFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Policy{}, fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	return Policy{
		PolicyID:          f.PolicyID,
		Name:              f.Name,
		Category:          f.Category,
		Severity:          f.Severity,
		Rule:              f.Rule,
		RegulatoryMapping: f.RegulatoryMapping,
	}, nil
}
