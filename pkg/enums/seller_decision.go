package enums

import "fmt"

// SellerDecision is the decision a seller takes on a pending sub-order.
type SellerDecision string

const (
	SellerDecisionApproved SellerDecision = "approved"
	SellerDecisionRejected SellerDecision = "rejected"
)

var validSellerDecisions = []SellerDecision{
	SellerDecisionApproved,
	SellerDecisionRejected,
}

// String implements fmt.Stringer.
func (s SellerDecision) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SellerDecision.
func (s SellerDecision) IsValid() bool {
	for _, candidate := range validSellerDecisions {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSellerDecision converts raw input into a SellerDecision.
func ParseSellerDecision(value string) (SellerDecision, error) {
	for _, candidate := range validSellerDecisions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid seller decision %q", value)
}

// SubOrderStatus maps the decision to the resulting sub-order status.
func (s SellerDecision) SubOrderStatus() SubOrderStatus {
	if s == SellerDecisionRejected {
		return SubOrderStatusRejected
	}
	return SubOrderStatusApproved
}
