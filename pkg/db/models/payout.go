package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/pkg/enums"
)

// Payout is the history row written each time a seller balance is drained.
type Payout struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SellerID          uuid.UUID          `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	AmountCents       int64              `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Currency          string             `gorm:"column:currency;type:text;not null" json:"currency"`
	Status            enums.PayoutStatus `gorm:"column:status;type:text;not null" json:"status"`
	Provider          string             `gorm:"column:provider;type:text;not null" json:"provider"`
	ProviderReference *string            `gorm:"column:provider_reference" json:"provider_reference,omitempty"`
	ExpectedAt        time.Time          `gorm:"column:expected_at;not null" json:"expected_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
