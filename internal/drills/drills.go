// Package drills holds the fixed catalog of selectable drill identifiers.
package drills

import (
	"fmt"
	"strings"
)

// Drill is one selectable drill entry, passed through unmodified to the
// analysis service.
type Drill struct {
	Value string
	Label string
}

// Catalog is the fixed enumerated drill set, mirroring what the analysis
// service can score.
func Catalog() []Drill {
	return []Drill{
		{Value: "high_leg_march", Label: "High Leg March"},
		{Value: "attention", Label: "Attention / Stand At Ease"},
		{Value: "salute", Label: "Salute"},
		{Value: "turns", Label: "Turns"},
	}
}

// Valid reports whether value names a cataloged drill.
func Valid(value string) bool {
	for _, drill := range Catalog() {
		if drill.Value == value {
			return true
		}
	}
	return false
}

// ParseSelection validates a comma-separated drill list into an ordered,
// de-duplicated, non-empty selection.
func ParseSelection(raw string) ([]string, error) {
	seen := make(map[string]struct{})
	selection := make([]string, 0, 4)

	for _, part := range strings.Split(raw, ",") {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		if !Valid(value) {
			return nil, fmt.Errorf("unknown drill %q", value)
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		selection = append(selection, value)
	}

	if len(selection) == 0 {
		return nil, fmt.Errorf("drill selection must not be empty")
	}
	return selection, nil
}
