package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformEarning is an append-only ledger row: the fee the platform kept from
// one seller's share of a settled transaction.
type PlatformEarning struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID       uuid.UUID `gorm:"column:transaction_id;type:uuid;not null"`
	OrderID             uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	SellerID            uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	PlatformFeeCents    int64     `gorm:"column:platform_fee_cents;not null"`
	SellerEarningsCents int64     `gorm:"column:seller_earnings_cents;not null"`
	EarnedAt            time.Time `gorm:"column:earned_at;not null"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
}
