package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/internal/pricing"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	"github.com/pustakbazzar/pustak-backend/pkg/pagination"
	"github.com/pustakbazzar/pustak-backend/pkg/types"
)

// OrderDTO is the API shape of the order aggregate.
type OrderDTO struct {
	ID                  uuid.UUID           `json:"id"`
	BuyerID             uuid.UUID           `json:"buyer_id"`
	OrderStatus         enums.OrderStatus   `json:"order_status"`
	PaymentStatus       enums.PaymentStatus `json:"payment_status"`
	PaymentMethod       enums.PaymentMethod `json:"payment_method"`
	GatewayReference    *string             `json:"gateway_reference,omitempty"`
	Currency            string              `json:"currency"`
	TotalPriceCents     int64               `json:"total_price_cents"`
	ShippingFeeCents    int64               `json:"shipping_fee_cents"`
	DiscountCents       int64               `json:"discount_cents"`
	NetTotalCents       int64               `json:"net_total_cents"`
	ShippingAddress     types.Address       `json:"shipping_address"`
	CancellationMessage *string             `json:"cancellation_message,omitempty"`
	SubOrders           []SubOrderDTO       `json:"sub_orders"`
	PaidAt              *time.Time          `json:"paid_at,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

type SubOrderDTO struct {
	ID                  uuid.UUID            `json:"id"`
	SellerID            uuid.UUID            `json:"seller_id"`
	Status              enums.SubOrderStatus `json:"status"`
	DeliveryPriceCents  int64                `json:"delivery_price_cents"`
	SubtotalCents       int64                `json:"subtotal_cents"`
	PlatformFeeCents    int64                `json:"platform_fee_cents"`
	SellerEarningsCents int64                `json:"seller_earnings_cents"`
	TrackingNumber      *string              `json:"tracking_number,omitempty"`
	DecisionMessage     *string              `json:"decision_message,omitempty"`
	DecidedAt           *time.Time           `json:"decided_at,omitempty"`
	Lines               []LineDTO            `json:"lines"`
}

type LineDTO struct {
	BookID              uuid.UUID `json:"book_id"`
	Title               string    `json:"title"`
	UnitPriceCents      int64     `json:"unit_price_cents"`
	Quantity            int       `json:"quantity"`
	LineTotalCents      int64     `json:"line_total_cents"`
	PlatformFeeCents    int64     `json:"platform_fee_cents"`
	SellerEarningsCents int64     `json:"seller_earnings_cents"`
}

// NewOrderDTO maps the aggregate. When sellerID is set only that seller's
// sub-order is included.
func NewOrderDTO(order *models.Order, sellerID *uuid.UUID) OrderDTO {
	dto := OrderDTO{
		ID:                  order.ID,
		BuyerID:             order.BuyerID,
		OrderStatus:         order.OrderStatus,
		PaymentStatus:       order.PaymentStatus,
		PaymentMethod:       order.PaymentMethod,
		GatewayReference:    order.GatewayReference,
		Currency:            order.Currency,
		TotalPriceCents:     order.TotalPriceCents,
		ShippingFeeCents:    order.ShippingFeeCents,
		DiscountCents:       order.DiscountCents,
		NetTotalCents:       pricing.NetTotal(order.TotalPriceCents, order.ShippingFeeCents, order.DiscountCents),
		ShippingAddress:     order.ShippingAddress,
		CancellationMessage: order.CancellationMessage,
		SubOrders:           make([]SubOrderDTO, 0, len(order.SubOrders)),
		PaidAt:              order.PaidAt,
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
	}
	for _, sub := range order.SubOrders {
		if sellerID != nil && sub.SellerID != *sellerID {
			continue
		}
		subDTO := SubOrderDTO{
			ID:                  sub.ID,
			SellerID:            sub.SellerID,
			Status:              sub.Status,
			DeliveryPriceCents:  sub.DeliveryPriceCents,
			SubtotalCents:       sub.SubtotalCents(),
			PlatformFeeCents:    sub.PlatformFeeCents(),
			SellerEarningsCents: sub.SellerEarningsCents(),
			TrackingNumber:      sub.TrackingNumber,
			DecisionMessage:     sub.DecisionMessage,
			DecidedAt:           sub.DecidedAt,
			Lines:               make([]LineDTO, 0, len(sub.Lines)),
		}
		for _, line := range sub.Lines {
			subDTO.Lines = append(subDTO.Lines, LineDTO{
				BookID:              line.BookID,
				Title:               line.Title,
				UnitPriceCents:      line.UnitPriceCents,
				Quantity:            line.Quantity,
				LineTotalCents:      line.LineTotalCents(),
				PlatformFeeCents:    line.PlatformFeeCents,
				SellerEarningsCents: line.SellerEarningsCents,
			})
		}
		dto.SubOrders = append(dto.SubOrders, subDTO)
	}
	return dto
}

func mapPage(page pagination.Page[models.Order], sellerID *uuid.UUID) *pagination.Page[OrderDTO] {
	items := make([]OrderDTO, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, NewOrderDTO(&page.Items[i], sellerID))
	}
	return &pagination.Page[OrderDTO]{Items: items, NextCursor: page.NextCursor}
}
