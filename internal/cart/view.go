package cart

import (
	"time"

	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
)

// View is the buyer-facing cart projection. Snapshot prices are shown next
// to live prices so the client can surface drift before checkout.
type View struct {
	BuyerID            uuid.UUID   `json:"buyer_id"`
	Version            int64       `json:"version"`
	SellerGroups       []GroupView `json:"seller_groups"`
	ItemCount          int         `json:"item_count"`
	SubtotalCents      int64       `json:"subtotal_cents"`
	DeliveryTotalCents int64       `json:"delivery_total_cents"`
	HasPriceChanges    bool        `json:"has_price_changes"`
}

type GroupView struct {
	SellerID           uuid.UUID  `json:"seller_id"`
	DeliveryPriceCents int64      `json:"delivery_price_cents"`
	SubtotalCents      int64      `json:"subtotal_cents"`
	Lines              []LineView `json:"lines"`
}

type LineView struct {
	BookID         uuid.UUID `json:"book_id"`
	Title          string    `json:"title"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	LivePriceCents *int64    `json:"live_price_cents,omitempty"`
	PriceChanged   bool      `json:"price_changed"`
	Available      bool      `json:"available"`
	Quantity       int       `json:"quantity"`
	LineTotalCents int64     `json:"line_total_cents"`
	AddedAt        time.Time `json:"added_at"`
}

func buildView(buyerID uuid.UUID, cart *models.Cart, live map[uuid.UUID]models.Book) *View {
	view := &View{BuyerID: buyerID, SellerGroups: []GroupView{}}
	if cart == nil {
		return view
	}
	view.Version = cart.Version
	for _, group := range cart.SellerGroups {
		gv := GroupView{
			SellerID:           group.SellerID,
			DeliveryPriceCents: group.DeliveryPriceCents,
			Lines:              make([]LineView, 0, len(group.Lines)),
		}
		for _, line := range group.Lines {
			lv := LineView{
				BookID:         line.BookID,
				Title:          line.Title,
				UnitPriceCents: line.UnitPriceCents,
				Quantity:       line.Quantity,
				LineTotalCents: line.UnitPriceCents * int64(line.Quantity),
				AddedAt:        line.AddedAt,
			}
			if book, ok := live[line.BookID]; ok {
				price := book.SellingPriceCents
				lv.LivePriceCents = &price
				lv.PriceChanged = price != line.UnitPriceCents
				lv.Available = book.Status == enums.BookStatusAvailable && !book.ForDonation
			}
			if lv.PriceChanged {
				view.HasPriceChanges = true
			}
			gv.SubtotalCents += lv.LineTotalCents
			view.ItemCount += line.Quantity
			gv.Lines = append(gv.Lines, lv)
		}
		view.SubtotalCents += gv.SubtotalCents
		view.DeliveryTotalCents += gv.DeliveryPriceCents
		view.SellerGroups = append(view.SellerGroups, gv)
	}
	return view
}

func bookIDs(cart *models.Cart) []uuid.UUID {
	if cart == nil {
		return nil
	}
	ids := []uuid.UUID{}
	for _, group := range cart.SellerGroups {
		for _, line := range group.Lines {
			ids = append(ids, line.BookID)
		}
	}
	return ids
}
