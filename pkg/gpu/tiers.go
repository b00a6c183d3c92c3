package gpu

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Tier is one GPU class in the priority table.
type Tier struct {
	// Name is the short user-facing name, e.g. "h100".
	Name string `json:"name" yaml:"name"`

	// Gres is the scheduler's GRES type name, e.g. "nvidia_h100". Defaults to Name.
	Gres string `json:"gres,omitempty" yaml:"gres,omitempty"`

	// Aliases are additional spellings accepted for this tier.
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// GresName returns the GRES type to request for this tier.
func (t Tier) GresName() string {
	if t.Gres != "" {
		return t.Gres
	}
	return t.Name
}

// Matches reports whether name refers to this tier. Comparison ignores case
// and any non-alphanumeric characters.
func (t Tier) Matches(name string) bool {
	n := normalize(name)
	if n == "" {
		return false
	}
	if n == normalize(t.Name) || n == normalize(t.GresName()) {
		return true
	}
	for _, a := range t.Aliases {
		if n == normalize(a) {
			return true
		}
	}
	return false
}

// TierTable is ordered highest capability first. Position alone decides
// priority.
type TierTable []Tier

// DefaultTiers returns the built-in table.
func DefaultTiers() TierTable {
	return TierTable{
		{Name: "h200", Gres: "nvidia_h200_nvl", Aliases: []string{"nvidia_h200", "h200_nvl"}},
		{Name: "h100", Gres: "nvidia_h100"},
		{Name: "a100", Gres: "nvidia_a100"},
		{Name: "a30", Gres: "nvidia_a30"},
		{Name: "v100", Gres: "nvidia_v100"},
		{Name: "rtx2080ti", Gres: "geforce_rtx_2080_ti", Aliases: []string{"2080ti", "rtx_2080_ti"}},
	}
}

// Lookup returns the tier name refers to.
func (tt TierTable) Lookup(name string) (Tier, bool) {
	for _, t := range tt {
		if t.Matches(name) {
			return t, true
		}
	}
	return Tier{}, false
}

// Names returns the tier names in priority order.
func (tt TierTable) Names() []string {
	names := make([]string, len(tt))
	for i, t := range tt {
		names[i] = t.Name
	}
	return names
}

// Validate checks that every tier is named and that no two tiers share a name.
func (tt TierTable) Validate() error {
	if len(tt) == 0 {
		return fmt.Errorf("gpu tier table is empty")
	}
	seen := map[string]int{}
	for i, t := range tt {
		n := normalize(t.Name)
		if n == "" {
			return fmt.Errorf("gpu tier %d has no name", i)
		}
		if j, dup := seen[n]; dup {
			return fmt.Errorf("gpu tiers %d and %d share the name %q", j, i, t.Name)
		}
		seen[n] = i
	}
	return nil
}

// normalize case-folds s and keeps only letters and digits.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range cases.Fold().String(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
