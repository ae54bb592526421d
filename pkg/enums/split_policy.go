package enums

import (
	"fmt"
	"strings"
)

// SplitPolicy names how a multi-seller order's payout is divided between sellers.
type SplitPolicy string

const (
	SplitPolicyEqual        SplitPolicy = "equal"
	SplitPolicyProportional SplitPolicy = "proportional"
)

// IsValid reports whether the value is a known SplitPolicy.
func (p SplitPolicy) IsValid() bool {
	return p == SplitPolicyEqual || p == SplitPolicyProportional
}

// ParseSplitPolicy converts raw input into a SplitPolicy; empty input selects the equal split.
func ParseSplitPolicy(value string) (SplitPolicy, error) {
	normalized := SplitPolicy(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return SplitPolicyEqual, nil
	}
	if !normalized.IsValid() {
		return "", fmt.Errorf("invalid split policy %q", value)
	}
	return normalized, nil
}
