package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	"github.com/pustakbazzar/pustak-backend/pkg/outbox"
	"github.com/pustakbazzar/pustak-backend/pkg/outbox/payloads"
)

type recordingWriter struct {
	events []outbox.DomainEvent
}

func (r *recordingWriter) EmitAll(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error {
	r.events = append(r.events, events...)
	return nil
}

func testOrder() *models.Order {
	orderID := uuid.New()
	return &models.Order{
		ID:            orderID,
		BuyerID:       uuid.New(),
		NetTotalCents: 270,
		PaymentMethod: enums.PaymentMethodKhalti,
		OrderStatus:   enums.OrderStatusPending,
		SubOrders: []models.SubOrder{
			{ID: uuid.New(), OrderID: orderID, SellerID: uuid.New(), Status: enums.SubOrderStatusPending, Lines: []models.OrderLine{{Quantity: 2, UnitPriceCents: 100, PlatformFeeCents: 20, SellerEarningsCents: 180}}},
			{ID: uuid.New(), OrderID: orderID, SellerID: uuid.New(), Status: enums.SubOrderStatusPending, Lines: []models.OrderLine{{Quantity: 1, UnitPriceCents: 50, PlatformFeeCents: 5, SellerEarningsCents: 45}}},
		},
	}
}

func TestOrderCreatedAddressesBuyerAndSellers(t *testing.T) {
	writer := &recordingWriter{}
	emitter, err := NewEmitter(writer)
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	order := testOrder()

	if err := emitter.OrderCreated(context.Background(), nil, order); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(writer.events) != 3 {
		t.Fatalf("expected buyer + 2 seller events, got %d", len(writer.events))
	}
	if writer.events[0].RecipientID != order.BuyerID {
		t.Fatalf("first event should address the buyer")
	}
	sellerData, ok := writer.events[1].Data.(payloads.OrderCreatedEvent)
	if !ok {
		t.Fatalf("unexpected payload %T", writer.events[1].Data)
	}
	if sellerData.SubOrderID == nil || *sellerData.SubOrderID != order.SubOrders[0].ID {
		t.Fatalf("seller event should carry its sub-order id")
	}
	if sellerData.ItemCount != 3 {
		t.Fatalf("expected item count 3, got %d", sellerData.ItemCount)
	}
	for _, event := range writer.events {
		if event.EventType != enums.EventOrderCreated || event.AggregateID != order.ID {
			t.Fatalf("unexpected event %+v", event)
		}
	}
}

func TestOrderCancelledSkipsActor(t *testing.T) {
	writer := &recordingWriter{}
	emitter, _ := NewEmitter(writer)
	order := testOrder()
	order.OrderStatus = enums.OrderStatusCancelled

	if err := emitter.OrderCancelled(context.Background(), nil, order, CancelledByBuyer, order.BuyerID, ""); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(writer.events) != 2 {
		t.Fatalf("expected only the sellers to be notified, got %d", len(writer.events))
	}
	for _, event := range writer.events {
		if event.RecipientID == order.BuyerID {
			t.Fatalf("buyer cancelled and should not be notified")
		}
	}
}

func TestPaymentConfirmedCarriesSellerEarnings(t *testing.T) {
	writer := &recordingWriter{}
	emitter, _ := NewEmitter(writer)
	order := testOrder()
	txn := &models.Transaction{ID: uuid.New(), PaymentMethod: enums.PaymentMethodKhalti, AmountCents: 270}

	if err := emitter.PaymentConfirmed(context.Background(), nil, order, txn, time.Now()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(writer.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(writer.events))
	}
	buyer := writer.events[0].Data.(payloads.PaymentConfirmedEvent)
	if buyer.SellerEarningsCents != nil {
		t.Fatalf("buyer event must not carry seller earnings")
	}
	second := writer.events[2].Data.(payloads.PaymentConfirmedEvent)
	if second.SellerEarningsCents == nil || *second.SellerEarningsCents != 45 {
		t.Fatalf("unexpected seller earnings %+v", second.SellerEarningsCents)
	}
}

func TestSubOrderDecidedAndShipped(t *testing.T) {
	writer := &recordingWriter{}
	emitter, _ := NewEmitter(writer)
	order := testOrder()
	sub := &order.SubOrders[0]
	sub.Status = enums.SubOrderStatusRejected
	msg := "out of stock"
	sub.DecisionMessage = &msg

	if err := emitter.SubOrderDecided(context.Background(), nil, order, sub); err != nil {
		t.Fatalf("emit: %v", err)
	}
	tracking := "NP-123"
	sub.TrackingNumber = &tracking
	if err := emitter.OrderShipped(context.Background(), nil, order, sub); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if writer.events[0].EventType != enums.EventSubOrderRejected {
		t.Fatalf("expected rejection event, got %s", writer.events[0].EventType)
	}
	decision := writer.events[0].Data.(payloads.SubOrderDecisionEvent)
	if decision.Decision != enums.SellerDecisionRejected || decision.Message == nil {
		t.Fatalf("unexpected decision payload %+v", decision)
	}
	if writer.events[1].EventType != enums.EventOrderShipped || writer.events[1].RecipientID != order.BuyerID {
		t.Fatalf("unexpected shipped event %+v", writer.events[1])
	}
}

func TestPayoutCompletedUsesPayoutAggregate(t *testing.T) {
	writer := &recordingWriter{}
	emitter, _ := NewEmitter(writer)
	payout := &models.Payout{ID: uuid.New(), SellerID: uuid.New(), AmountCents: 150000, Currency: "NPR", Status: enums.PayoutStatusCompleted, Provider: "stripe"}

	if err := emitter.PayoutCompleted(context.Background(), nil, payout); err != nil {
		t.Fatalf("emit: %v", err)
	}
	event := writer.events[0]
	if event.AggregateType != enums.AggregatePayout || event.RecipientID != payout.SellerID {
		t.Fatalf("unexpected payout event %+v", event)
	}
}

func TestNewEmitterRequiresWriter(t *testing.T) {
	if _, err := NewEmitter(nil); err == nil {
		t.Fatalf("expected error")
	}
}
