package enums

import (
	"fmt"
	"strings"
)

// ProductKind is the closed set of things that can be purchased.
type ProductKind string

const (
	ProductKindCourse       ProductKind = "course"
	ProductKindConsultation ProductKind = "consultation"
	ProductKindEReport      ProductKind = "ereport"
)

var validProductKinds = []ProductKind{
	ProductKindCourse,
	ProductKindConsultation,
	ProductKindEReport,
}

func (k ProductKind) String() string {
	return string(k)
}

// IsValid reports whether the kind is known.
func (k ProductKind) IsValid() bool {
	for _, candidate := range validProductKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseProductKind converts raw input into a ProductKind. Matching is case insensitive
// and accepts "e-report" for the report kind.
func ParseProductKind(value string) (ProductKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "e-report" || normalized == "e_report" {
		normalized = string(ProductKindEReport)
	}
	for _, candidate := range validProductKinds {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product kind %q", value)
}

// ProductKinds returns every known kind in declaration order.
func ProductKinds() []ProductKind {
	out := make([]ProductKind, len(validProductKinds))
	copy(out, validProductKinds)
	return out
}
