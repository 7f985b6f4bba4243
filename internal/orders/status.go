package orders

import "github.com/pustakbazzar/pustak-backend/pkg/enums"

// DeriveOrderStatus computes the order status from its sub-orders. Any
// rejection cancels the whole order; otherwise all approved is confirmed,
// some approved is partially approved, and none approved is pending.
func DeriveOrderStatus(statuses []enums.SubOrderStatus) enums.OrderStatus {
	if len(statuses) == 0 {
		return enums.OrderStatusPending
	}
	approved := 0
	for _, status := range statuses {
		switch status {
		case enums.SubOrderStatusRejected:
			return enums.OrderStatusCancelledBySeller
		case enums.SubOrderStatusApproved:
			approved++
		}
	}
	switch {
	case approved == len(statuses):
		return enums.OrderStatusConfirmed
	case approved > 0:
		return enums.OrderStatusPartiallyApproved
	default:
		return enums.OrderStatusPending
	}
}
