// Package payloads defines the data section of every notification event.
package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/pkg/enums"
)

// OrderCreatedEvent tells the buyer the order exists and each seller that
// they have a sub-order to review.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	SubOrderID    *uuid.UUID          `json:"sub_order_id,omitempty"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	NetTotalCents int64               `json:"net_total_cents"`
	ItemCount     int                 `json:"item_count"`
}

// SubOrderDecisionEvent is emitted when a seller approves or rejects.
type SubOrderDecisionEvent struct {
	OrderID     uuid.UUID            `json:"order_id"`
	SubOrderID  uuid.UUID            `json:"sub_order_id"`
	SellerID    uuid.UUID            `json:"seller_id"`
	Decision    enums.SellerDecision `json:"decision"`
	Message     *string              `json:"message,omitempty"`
	OrderStatus enums.OrderStatus    `json:"order_status"`
}

// OrderCancelledEvent covers buyer, seller and admin cancellations.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	CancelledBy string            `json:"cancelled_by"`
	OrderStatus enums.OrderStatus `json:"order_status"`
	Reason      string            `json:"reason,omitempty"`
	CancelledAt time.Time         `json:"cancelled_at"`
}

// PaymentConfirmedEvent is sent to the buyer and to every seller credited.
type PaymentConfirmedEvent struct {
	OrderID             uuid.UUID           `json:"order_id"`
	TransactionID       uuid.UUID           `json:"transaction_id"`
	PaymentMethod       enums.PaymentMethod `json:"payment_method"`
	AmountCents         int64               `json:"amount_cents"`
	SellerEarningsCents *int64              `json:"seller_earnings_cents,omitempty"`
	PaidAt              time.Time           `json:"paid_at"`
}

// OrderShippedEvent carries the tracking number a seller attached.
type OrderShippedEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	SubOrderID     uuid.UUID `json:"sub_order_id"`
	SellerID       uuid.UUID `json:"seller_id"`
	TrackingNumber string    `json:"tracking_number"`
}

// PayoutCompletedEvent reports a drained seller balance.
type PayoutCompletedEvent struct {
	PayoutID    uuid.UUID          `json:"payout_id"`
	SellerID    uuid.UUID          `json:"seller_id"`
	AmountCents int64              `json:"amount_cents"`
	Currency    string             `json:"currency"`
	Status      enums.PayoutStatus `json:"status"`
	Provider    string             `json:"provider"`
	ExpectedAt  time.Time          `json:"expected_at"`
}
