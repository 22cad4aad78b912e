package discounts

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// KitRuleFile is the on-disk layout of the static kit table.
//
//	kits:
//	  - kit: KIT-X
//	    components: [A, B]
type KitRuleFile struct {
	Kits []KitRule `yaml:"kits"`
}

// ParseKitRules decodes a kit table. Unknown fields are rejected.
func ParseKitRules(r io.Reader) ([]KitRule, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file KitRuleFile
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return []KitRule{}, nil
		}
		return nil, fmt.Errorf("discounts: decode kit rules: %w", err)
	}
	if file.Kits == nil {
		file.Kits = []KitRule{}
	}
	return file.Kits, nil
}

// LoadKitRules reads a kit table from path.
func LoadKitRules(path string) ([]KitRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("discounts: open kit rules: %w", err)
	}
	defer f.Close()
	return ParseKitRules(f)
}

// FileKitSource re-reads the kit table on every call so edits apply to the
// next registration run.
type FileKitSource struct {
	Path string
}

// KitRules implements KitSource. An empty path means no kits.
func (s FileKitSource) KitRules(context.Context) ([]KitRule, error) {
	if strings.TrimSpace(s.Path) == "" {
		return []KitRule{}, nil
	}
	return LoadKitRules(s.Path)
}

// StaticKitSource serves a fixed kit table.
type StaticKitSource []KitRule

// KitRules implements KitSource.
func (s StaticKitSource) KitRules(context.Context) ([]KitRule, error) {
	return s, nil
}

// KitProblem describes one inconsistency in the kit table.
type KitProblem struct {
	KitSKU    string `json:"kit_sku"`
	Component string `json:"component,omitempty"`
	Reason    string `json:"reason"`
}

func (p KitProblem) String() string {
	if p.Component == "" {
		return fmt.Sprintf("%s: %s", p.KitSKU, p.Reason)
	}
	return fmt.Sprintf("%s/%s: %s", p.KitSKU, p.Component, p.Reason)
}

// ValidateKitRules reports duplicate kits, empty kits and components that no
// discount mapping resolves. Problems are ordered by kit then component.
func ValidateKitRules(rules []KitRule, catalog *Catalog) []KitProblem {
	var problems []KitProblem
	seen := map[string]bool{}
	for _, rule := range rules {
		if strings.TrimSpace(rule.KitSKU) == "" {
			problems = append(problems, KitProblem{Reason: "kit sku is blank"})
			continue
		}
		if seen[rule.KitSKU] {
			problems = append(problems, KitProblem{KitSKU: rule.KitSKU, Reason: "duplicate kit"})
		}
		seen[rule.KitSKU] = true
		if len(rule.Components) == 0 {
			problems = append(problems, KitProblem{KitSKU: rule.KitSKU, Reason: "kit has no components"})
		}
		for _, component := range rule.Components {
			if _, ok := catalog.ResolveSKU(component); !ok {
				problems = append(problems, KitProblem{KitSKU: rule.KitSKU, Component: component, Reason: "component has no discount mapping"})
			}
		}
	}
	sort.SliceStable(problems, func(i, j int) bool {
		if problems[i].KitSKU != problems[j].KitSKU {
			return problems[i].KitSKU < problems[j].KitSKU
		}
		return problems[i].Component < problems[j].Component
	})
	return problems
}
