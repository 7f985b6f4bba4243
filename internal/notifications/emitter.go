// Package notifications turns order, payment and payout transitions into
// outbox events addressed to the users who should hear about them.
package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	"github.com/pustakbazzar/pustak-backend/pkg/outbox"
	"github.com/pustakbazzar/pustak-backend/pkg/outbox/payloads"
)

// Cancellation sources recorded on order_cancelled events.
const (
	CancelledByBuyer  = "buyer"
	CancelledBySeller = "seller"
	CancelledByAdmin  = "admin"
)

type outboxWriter interface {
	EmitAll(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

// Emitter writes notification events inside the caller's transaction.
type Emitter struct {
	outbox outboxWriter
	now    func() time.Time
}

func NewEmitter(writer outboxWriter) (*Emitter, error) {
	if writer == nil {
		return nil, errors.New("outbox writer required")
	}
	return &Emitter{outbox: writer, now: time.Now}, nil
}

// OrderCreated notifies the buyer and every seller with a sub-order.
func (e *Emitter) OrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	itemCount := 0
	for _, sub := range order.SubOrders {
		for _, line := range sub.Lines {
			itemCount += line.Quantity
		}
	}
	base := payloads.OrderCreatedEvent{
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		PaymentMethod: order.PaymentMethod,
		NetTotalCents: order.NetTotalCents,
		ItemCount:     itemCount,
	}
	events := []outbox.DomainEvent{e.orderEvent(enums.EventOrderCreated, order.ID, order.BuyerID, nil, base)}
	for _, sub := range order.SubOrders {
		data := base
		subID := sub.ID
		data.SubOrderID = &subID
		events = append(events, e.orderEvent(enums.EventOrderCreated, order.ID, sub.SellerID, nil, data))
	}
	return e.outbox.EmitAll(ctx, tx, events...)
}

// SubOrderDecided tells the buyer what a seller decided.
func (e *Emitter) SubOrderDecided(ctx context.Context, tx *gorm.DB, order *models.Order, sub *models.SubOrder) error {
	eventType := enums.EventSubOrderApproved
	decision := enums.SellerDecisionApproved
	if sub.Status == enums.SubOrderStatusRejected {
		eventType = enums.EventSubOrderRejected
		decision = enums.SellerDecisionRejected
	}
	actor := &outbox.ActorRef{UserID: sub.SellerID, Role: "seller"}
	data := payloads.SubOrderDecisionEvent{
		OrderID:     order.ID,
		SubOrderID:  sub.ID,
		SellerID:    sub.SellerID,
		Decision:    decision,
		Message:     sub.DecisionMessage,
		OrderStatus: order.OrderStatus,
	}
	return e.outbox.EmitAll(ctx, tx, e.orderEvent(eventType, order.ID, order.BuyerID, actor, data))
}

// OrderCancelled notifies every party except the one who cancelled.
func (e *Emitter) OrderCancelled(ctx context.Context, tx *gorm.DB, order *models.Order, cancelledBy string, actorID uuid.UUID, reason string) error {
	data := payloads.OrderCancelledEvent{
		OrderID:     order.ID,
		CancelledBy: cancelledBy,
		OrderStatus: order.OrderStatus,
		Reason:      reason,
		CancelledAt: e.now().UTC(),
	}
	actor := &outbox.ActorRef{UserID: actorID, Role: cancelledBy}
	recipients := append([]uuid.UUID{order.BuyerID}, order.SellerIDs()...)
	events := make([]outbox.DomainEvent, 0, len(recipients))
	for _, recipient := range recipients {
		if recipient == actorID {
			continue
		}
		events = append(events, e.orderEvent(enums.EventOrderCancelled, order.ID, recipient, actor, data))
	}
	return e.outbox.EmitAll(ctx, tx, events...)
}

// PaymentConfirmed notifies the buyer and each seller with the amount they earned.
func (e *Emitter) PaymentConfirmed(ctx context.Context, tx *gorm.DB, order *models.Order, txn *models.Transaction, paidAt time.Time) error {
	base := payloads.PaymentConfirmedEvent{
		OrderID:       order.ID,
		TransactionID: txn.ID,
		PaymentMethod: txn.PaymentMethod,
		AmountCents:   txn.AmountCents,
		PaidAt:        paidAt.UTC(),
	}
	events := []outbox.DomainEvent{e.orderEvent(enums.EventPaymentConfirmed, order.ID, order.BuyerID, nil, base)}
	for _, sub := range order.SubOrders {
		data := base
		earned := sub.SellerEarningsCents()
		data.SellerEarningsCents = &earned
		events = append(events, e.orderEvent(enums.EventPaymentConfirmed, order.ID, sub.SellerID, nil, data))
	}
	return e.outbox.EmitAll(ctx, tx, events...)
}

// OrderShipped tells the buyer a seller attached a tracking number.
func (e *Emitter) OrderShipped(ctx context.Context, tx *gorm.DB, order *models.Order, sub *models.SubOrder) error {
	tracking := ""
	if sub.TrackingNumber != nil {
		tracking = *sub.TrackingNumber
	}
	data := payloads.OrderShippedEvent{
		OrderID:        order.ID,
		SubOrderID:     sub.ID,
		SellerID:       sub.SellerID,
		TrackingNumber: tracking,
	}
	actor := &outbox.ActorRef{UserID: sub.SellerID, Role: "seller"}
	return e.outbox.EmitAll(ctx, tx, e.orderEvent(enums.EventOrderShipped, order.ID, order.BuyerID, actor, data))
}

// PayoutCompleted notifies the seller whose balance was paid out.
func (e *Emitter) PayoutCompleted(ctx context.Context, tx *gorm.DB, payout *models.Payout) error {
	data := payloads.PayoutCompletedEvent{
		PayoutID:    payout.ID,
		SellerID:    payout.SellerID,
		AmountCents: payout.AmountCents,
		Currency:    payout.Currency,
		Status:      payout.Status,
		Provider:    payout.Provider,
		ExpectedAt:  payout.ExpectedAt.UTC(),
	}
	return e.outbox.EmitAll(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutCompleted,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		RecipientID:   payout.SellerID,
		Data:          data,
		OccurredAt:    e.now().UTC(),
	})
}

func (e *Emitter) orderEvent(eventType enums.OutboxEventType, orderID, recipient uuid.UUID, actor *outbox.ActorRef, data any) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		RecipientID:   recipient,
		Actor:         actor,
		Data:          data,
		OccurredAt:    e.now().UTC(),
	}
}
