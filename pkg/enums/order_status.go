package enums

import "fmt"

// OrderStatus is the aggregate status of a multi-seller order.
type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusPartiallyApproved OrderStatus = "partially_approved"
	OrderStatusConfirmed         OrderStatus = "confirmed"
	OrderStatusCancelled         OrderStatus = "cancelled"
	OrderStatusCancelledBySeller OrderStatus = "cancelled_by_seller"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPartiallyApproved,
	OrderStatusConfirmed,
	OrderStatusCancelled,
	OrderStatusCancelledBySeller,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into a OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// IsCancelled reports whether the order has been cancelled by either party.
func (o OrderStatus) IsCancelled() bool {
	return o == OrderStatusCancelled || o == OrderStatusCancelledBySeller
}

// BuyerCancellable reports whether a buyer may still cancel from this status.
func (o OrderStatus) BuyerCancellable() bool {
	return o == OrderStatusPending || o == OrderStatusPartiallyApproved
}
