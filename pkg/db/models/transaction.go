package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/pkg/enums"
)

// Transaction records one payment attempt against an order.
type Transaction struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	PaymentMethod     enums.PaymentMethod     `gorm:"column:payment_method;type:text;not null"`
	AmountCents       int64                   `gorm:"column:amount_cents;not null"`
	GatewayReference  string                  `gorm:"column:gateway_reference;not null;uniqueIndex"`
	RedirectURL       *string                 `gorm:"column:redirect_url"`
	Status            enums.TransactionStatus `gorm:"column:status;type:text;not null;default:'initiated'"`
	RawGatewayPayload json.RawMessage         `gorm:"column:raw_gateway_payload;type:jsonb"`
	ResolvedAt        *time.Time              `gorm:"column:resolved_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
