package enums

import "fmt"

// PayoutStatus tracks a seller payout record.
type PayoutStatus string

const (
	PayoutStatusCompleted     PayoutStatus = "completed"
	PayoutStatusPendingManual PayoutStatus = "pending_manual"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusCompleted,
	PayoutStatusPendingManual,
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
