// Package docpolicy maps a contact's relationship to the set of documents the
// firm requests by default when that contact is added to a case.
package docpolicy

import (
	"encoding/json"
	"fmt"
	"os"
)

// Default is one seeded document requirement.
type Default struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	DueDays    int    `json:"due_days"`
	IsRequired bool   `json:"is_required"`
}

// Policy resolves relationship names to document defaults. The zero value is
// unusable; use Builtin or Load.
type Policy struct {
	defaults map[string][]Default
}

// Builtin returns the compiled-in policy.
func Builtin() *Policy {
	return &Policy{defaults: builtinDefaults()}
}

// Load returns the built-in policy overlaid with the JSON file at path. The
// file is an object keyed by relationship; each listed relationship replaces
// the built-in set wholesale. An empty path returns Builtin.
func Load(path string) (*Policy, error) {
	policy := Builtin()
	if path == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document policy: %w", err)
	}
	overrides := map[string][]Default{}
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse document policy: %w", err)
	}
	for relationship, defaults := range overrides {
		policy.defaults[relationship] = defaults
	}
	return policy, nil
}

// DefaultsFor returns the defaults for a relationship in declaration order.
// Unknown relationships get the fallback identity set. The returned slice is
// a copy.
func (p *Policy) DefaultsFor(relationship string) []Default {
	defaults, ok := p.defaults[relationship]
	if !ok {
		defaults = p.defaults["other"]
	}
	out := make([]Default, len(defaults))
	copy(out, defaults)
	return out
}

// Relationships lists every relationship the policy knows about.
func (p *Policy) Relationships() []string {
	names := make([]string, 0, len(p.defaults))
	for name := range p.defaults {
		names = append(names, name)
	}
	return names
}

func builtinDefaults() map[string][]Default {
	identity := []Default{
		{Name: "Passport Copy", Type: "identity", DueDays: 7, IsRequired: true},
		{Name: "Birth Certificate", Type: "civil_status", DueDays: 21, IsRequired: true},
	}
	spousal := append(append([]Default{}, identity...),
		Default{Name: "Marriage Certificate", Type: "civil_status", DueDays: 21, IsRequired: true},
	)
	descendant := append(append([]Default{}, identity...),
		Default{Name: "Proof of Descent", Type: "civil_status", DueDays: 30, IsRequired: true},
	)
	return map[string][]Default{
		"persecuted_person": {
			{Name: "Passport Copy", Type: "identity", DueDays: 7, IsRequired: true},
			{Name: "Birth Certificate", Type: "civil_status", DueDays: 21, IsRequired: true},
			{Name: "Proof of Persecution", Type: "persecution", DueDays: 45, IsRequired: true},
			{Name: "Residency Proof", Type: "residency", DueDays: 30, IsRequired: false},
		},
		"spouse":      spousal,
		"child":       descendant,
		"grandchild":  descendant,
		"parent":      identity,
		"sibling":     identity,
		"grandparent": identity,
		"nephew":      identity,
		"niece":       identity,
		"cousin":      identity,
		"uncle":       identity,
		"aunt":        identity,
		"in_law":      spousal,
		"other":       identity,
	}
}
