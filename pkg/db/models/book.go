package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/pkg/enums"
)

// Book is the catalog projection consumed by the cart and order flows.
type Book struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID          uuid.UUID        `gorm:"column:seller_id;type:uuid;not null"`
	Title             string           `gorm:"column:title;not null"`
	SellingPriceCents int64            `gorm:"column:selling_price_cents;not null"`
	ForDonation       bool             `gorm:"column:for_donation;not null;default:false"`
	Status            enums.BookStatus `gorm:"column:status;type:text;not null;default:'available'"`
	SoldOrderID       *uuid.UUID       `gorm:"column:sold_order_id;type:uuid"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
