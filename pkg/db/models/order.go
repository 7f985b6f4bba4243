package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	"github.com/pustakbazzar/pustak-backend/pkg/types"
)

// Order is the aggregate root for one checkout: a single buyer payment split
// into seller-scoped sub-orders. Only the status columns change after insert.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID             uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	TotalPriceCents     int64               `gorm:"column:total_price_cents;not null"`
	ShippingFeeCents    int64               `gorm:"column:shipping_fee_cents;not null;default:0"`
	DiscountCents       int64               `gorm:"column:discount_cents;not null;default:0"`
	NetTotalCents       int64               `gorm:"column:net_total_cents;not null"`
	Currency            string              `gorm:"column:currency;type:text;not null;default:'NPR'"`
	OrderStatus         enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'pending'"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentMethod       enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	GatewayReference    *string             `gorm:"column:gateway_reference"`
	ShippingAddress     types.Address       `gorm:"column:shipping_address;type:jsonb;not null"`
	CancellationMessage *string             `gorm:"column:cancellation_message"`
	SubOrders           []SubOrder          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaidAt              *time.Time          `gorm:"column:paid_at"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// SubOrderFor returns the sub-order owned by sellerID, or nil.
func (o *Order) SubOrderFor(sellerID uuid.UUID) *SubOrder {
	if o == nil {
		return nil
	}
	for i := range o.SubOrders {
		if o.SubOrders[i].SellerID == sellerID {
			return &o.SubOrders[i]
		}
	}
	return nil
}

// SubOrderStatuses lists the status of every sub-order in insertion order.
func (o *Order) SubOrderStatuses() []enums.SubOrderStatus {
	statuses := make([]enums.SubOrderStatus, 0, len(o.SubOrders))
	for _, sub := range o.SubOrders {
		statuses = append(statuses, sub.Status)
	}
	return statuses
}

// SellerIDs lists the distinct sellers participating in the order.
func (o *Order) SellerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(o.SubOrders))
	for _, sub := range o.SubOrders {
		ids = append(ids, sub.SellerID)
	}
	return ids
}

// BookIDs lists every book across all sub-orders.
func (o *Order) BookIDs() []uuid.UUID {
	ids := []uuid.UUID{}
	for _, sub := range o.SubOrders {
		for _, line := range sub.Lines {
			ids = append(ids, line.BookID)
		}
	}
	return ids
}

// SubOrder is the portion of an order fulfilled by one seller.
type SubOrder struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	SellerID           uuid.UUID            `gorm:"column:seller_id;type:uuid;not null"`
	DeliveryPriceCents int64                `gorm:"column:delivery_price_cents;not null;default:0"`
	Status             enums.SubOrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	TrackingNumber     *string              `gorm:"column:tracking_number"`
	DecisionMessage    *string              `gorm:"column:decision_message"`
	DecidedAt          *time.Time           `gorm:"column:decided_at"`
	Lines              []OrderLine          `gorm:"foreignKey:SubOrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// SubtotalCents sums the line totals of the sub-order.
func (s SubOrder) SubtotalCents() int64 {
	var total int64
	for _, line := range s.Lines {
		total += line.LineTotalCents()
	}
	return total
}

// PlatformFeeCents sums the platform fee frozen on each line.
func (s SubOrder) PlatformFeeCents() int64 {
	var total int64
	for _, line := range s.Lines {
		total += line.PlatformFeeCents
	}
	return total
}

// SellerEarningsCents sums what the seller is owed for the sub-order.
func (s SubOrder) SellerEarningsCents() int64 {
	var total int64
	for _, line := range s.Lines {
		total += line.SellerEarningsCents
	}
	return total
}

// OrderLine is a purchased book with the fee split computed at checkout.
type OrderLine struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubOrderID          uuid.UUID `gorm:"column:sub_order_id;type:uuid;not null"`
	OrderID             uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	BookID              uuid.UUID `gorm:"column:book_id;type:uuid;not null"`
	Title               string    `gorm:"column:title;not null"`
	UnitPriceCents      int64     `gorm:"column:unit_price_cents;not null"`
	Quantity            int       `gorm:"column:quantity;not null"`
	PlatformFeeCents    int64     `gorm:"column:platform_fee_cents;not null"`
	SellerEarningsCents int64     `gorm:"column:seller_earnings_cents;not null"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
}

// LineTotalCents is unit price times quantity.
func (l OrderLine) LineTotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}
