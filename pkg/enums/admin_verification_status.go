package enums

import "fmt"

// AdminVerificationStatus records the admin's attestation of a buyer's payment proof.
type AdminVerificationStatus string

const (
	AdminVerificationNotRequired AdminVerificationStatus = "not_required"
	AdminVerificationPending     AdminVerificationStatus = "pending"
	AdminVerificationApproved    AdminVerificationStatus = "approved"
	AdminVerificationRejected    AdminVerificationStatus = "rejected"
)

var validAdminVerificationStatuses = []AdminVerificationStatus{
	AdminVerificationNotRequired,
	AdminVerificationPending,
	AdminVerificationApproved,
	AdminVerificationRejected,
}

// String implements fmt.Stringer.
func (a AdminVerificationStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AdminVerificationStatus.
func (a AdminVerificationStatus) IsValid() bool {
	for _, candidate := range validAdminVerificationStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAdminVerificationStatus converts raw input into an AdminVerificationStatus.
func ParseAdminVerificationStatus(value string) (AdminVerificationStatus, error) {
	for _, candidate := range validAdminVerificationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid admin verification status %q", value)
}
