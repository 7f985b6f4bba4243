package models

import (
	"time"

	"github.com/google/uuid"
)

// Cart is the single cart document owned by a buyer. Version increments on
// every write and guards conditional updates.
type Cart struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID      uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex"`
	SellerGroups []CartSellerGroup `gorm:"column:seller_groups;type:jsonb;serializer:json;not null"`
	Version      int64             `gorm:"column:version;not null;default:0"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// CartSellerGroup holds every line a buyer selected from one seller.
type CartSellerGroup struct {
	SellerID           uuid.UUID  `json:"seller_id"`
	Lines              []CartLine `json:"lines"`
	DeliveryPriceCents int64      `json:"delivery_price_cents"`
}

// CartLine snapshots the book price at add time.
type CartLine struct {
	BookID         uuid.UUID `json:"book_id"`
	Title          string    `json:"title"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Quantity       int       `json:"quantity"`
	AddedAt        time.Time `json:"added_at"`
}

// IsEmpty reports whether the cart has no seller groups.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.SellerGroups) == 0
}

// GroupFor returns the seller group for sellerID, or nil.
func (c *Cart) GroupFor(sellerID uuid.UUID) *CartSellerGroup {
	if c == nil {
		return nil
	}
	for i := range c.SellerGroups {
		if c.SellerGroups[i].SellerID == sellerID {
			return &c.SellerGroups[i]
		}
	}
	return nil
}

// LineFor returns the line for bookID within the group, or nil.
func (g *CartSellerGroup) LineFor(bookID uuid.UUID) *CartLine {
	if g == nil {
		return nil
	}
	for i := range g.Lines {
		if g.Lines[i].BookID == bookID {
			return &g.Lines[i]
		}
	}
	return nil
}

// DeliveryTotalCents sums the delivery price of every group.
func (c *Cart) DeliveryTotalCents() int64 {
	if c == nil {
		return 0
	}
	var total int64
	for _, group := range c.SellerGroups {
		total += group.DeliveryPriceCents
	}
	return total
}
