package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/internal/notifications"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
	"github.com/pustakbazzar/pustak-backend/pkg/pagination"
)

const defaultRejectionMessage = "rejected by seller"

// Viewer identifies who is reading an order.
type Viewer struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// DecisionInput carries a seller's decision on their sub-order.
type DecisionInput struct {
	Decision enums.SellerDecision
	Message  string
}

// Service exposes order reads and the seller approval state machine.
type Service interface {
	Get(ctx context.Context, viewer Viewer, orderID uuid.UUID) (*OrderDTO, error)
	ListBuyer(ctx context.Context, buyerID uuid.UUID, filters ListFilters, params pagination.Params) (*pagination.Page[OrderDTO], error)
	ListSeller(ctx context.Context, sellerID uuid.UUID, filters ListFilters, params pagination.Params) (*pagination.Page[OrderDTO], error)
	ListAdmin(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[OrderDTO], error)
	Decide(ctx context.Context, sellerID, orderID uuid.UUID, input DecisionInput) (*OrderDTO, error)
	CancelOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*OrderDTO, error)
	UpdateTracking(ctx context.Context, sellerID, orderID uuid.UUID, trackingNumber string) (*OrderDTO, error)
	AdminUpdateStatus(ctx context.Context, adminID, orderID uuid.UUID, status enums.OrderStatus, reason string) (*OrderDTO, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	books    bookAvailability
	notifier orderNotifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds an order service backed by the provided stack.
func NewService(repo Repository, tx txRunner, books bookAvailability, notifier orderNotifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if books == nil {
		return nil, fmt.Errorf("book availability required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("order notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		books:    books,
		notifier: notifier,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, viewer Viewer, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.load(ctx, s.repo, orderID, false)
	if err != nil {
		return nil, err
	}
	switch {
	case viewer.Role == enums.UserRoleAdmin:
		dto := NewOrderDTO(order, nil)
		return &dto, nil
	case order.BuyerID == viewer.UserID:
		dto := NewOrderDTO(order, nil)
		return &dto, nil
	case order.SubOrderFor(viewer.UserID) != nil:
		dto := NewOrderDTO(order, &viewer.UserID)
		return &dto, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order not accessible")
}

func (s *service) ListBuyer(ctx context.Context, buyerID uuid.UUID, filters ListFilters, params pagination.Params) (*pagination.Page[OrderDTO], error) {
	page, err := s.repo.ListForBuyer(ctx, buyerID, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return mapPage(page, nil), nil
}

func (s *service) ListSeller(ctx context.Context, sellerID uuid.UUID, filters ListFilters, params pagination.Params) (*pagination.Page[OrderDTO], error) {
	page, err := s.repo.ListForSeller(ctx, sellerID, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list seller orders")
	}
	return mapPage(page, &sellerID), nil
}

func (s *service) ListAdmin(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[OrderDTO], error) {
	page, err := s.repo.ListAll(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return mapPage(page, nil), nil
}

// Decide applies a seller decision to their sub-order. The order row is locked
// first so concurrent decisions on sibling sub-orders derive the aggregate
// status from each other's committed writes.
func (s *service) Decide(ctx context.Context, sellerID, orderID uuid.UUID, input DecisionInput) (*OrderDTO, error) {
	if !input.Decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be approved or rejected")
	}
	target := input.Decision.SubOrderStatus()
	message := strings.TrimSpace(input.Message)
	if target == enums.SubOrderStatusRejected && message == "" {
		message = defaultRejectionMessage
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":  orderID.String(),
		"seller_id": sellerID.String(),
		"decision":  input.Decision.String(),
	})

	var (
		result   *models.Order
		restore  bool
		noChange bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, orderID, true)
		if err != nil {
			return err
		}
		sub := order.SubOrderFor(sellerID)
		if sub == nil {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order has no items from this seller")
		}
		if sub.Status != enums.SubOrderStatusPending {
			if sub.Status == target {
				result = order
				noChange = true
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "sub-order already decided").
				WithDetails(map[string]any{"sub_order_id": sub.ID, "status": sub.Status})
		}
		if order.OrderStatus.IsCancelled() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled").
				WithDetails(map[string]any{"order_status": order.OrderStatus})
		}

		var msgPtr *string
		if message != "" {
			msgPtr = &message
		}
		ok, err := repo.DecideSubOrder(ctx, sub.ID, target, msgPtr, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sub-order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "sub-order already decided")
		}

		open := []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPartiallyApproved}
		if target == enums.SubOrderStatusRejected {
			if order.PaymentStatus == enums.PaymentStatusPaid {
				s.logg.Warn(ctx, "rejecting a paid order, buyer refund required")
			}
			if _, err := repo.SetOrderStatus(ctx, orderID, enums.OrderStatusCancelledBySeller, open, &message); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
			}
			restore = true
		} else {
			statuses := order.SubOrderStatuses()
			for i := range order.SubOrders {
				if order.SubOrders[i].ID == sub.ID {
					statuses[i] = target
				}
			}
			if _, err := repo.SetOrderStatus(ctx, orderID, DeriveOrderStatus(statuses), open, nil); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
		}

		updated, err := s.load(ctx, repo, orderID, false)
		if err != nil {
			return err
		}
		if err := s.notifier.SubOrderDecided(ctx, tx, updated, updated.SubOrderFor(sellerID)); err != nil {
			return err
		}
		if restore {
			if err := s.notifier.OrderCancelled(ctx, tx, updated, notifications.CancelledBySeller, sellerID, message); err != nil {
				return err
			}
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noChange {
		s.logg.Info(ctx, "sub-order decision repeated, nothing to do")
	}
	if restore {
		s.restoreBooks(ctx, result)
	}
	dto := NewOrderDTO(result, &sellerID)
	return &dto, nil
}

// CancelOrder lets the buyer withdraw an order that nobody has paid for yet.
func (s *service) CancelOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.cancelUnpaid(ctx, orderID, func(order *models.Order) error {
		if order.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
		}
		return nil
	}, notifications.CancelledByBuyer, buyerID, "")
	if err != nil {
		return nil, err
	}
	dto := NewOrderDTO(order, nil)
	return &dto, nil
}

// AdminUpdateStatus only supports cancelling unpaid orders; every other order
// status is derived from seller decisions.
func (s *service) AdminUpdateStatus(ctx context.Context, adminID, orderID uuid.UUID, status enums.OrderStatus, reason string) (*OrderDTO, error) {
	if status != enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admins may only cancel orders").
			WithDetails(map[string]any{"order_status": status})
	}
	order, err := s.cancelUnpaid(ctx, orderID, nil, notifications.CancelledByAdmin, adminID, strings.TrimSpace(reason))
	if err != nil {
		return nil, err
	}
	dto := NewOrderDTO(order, nil)
	return &dto, nil
}

func (s *service) cancelUnpaid(ctx context.Context, orderID uuid.UUID, authorize func(*models.Order) error, cancelledBy string, actorID uuid.UUID, reason string) (*models.Order, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":     orderID.String(),
		"cancelled_by": cancelledBy,
	})

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, orderID, true)
		if err != nil {
			return err
		}
		if authorize != nil {
			if err := authorize(order); err != nil {
				return err
			}
		}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders cannot be cancelled")
		}
		if !order.OrderStatus.BuyerCancellable() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"order_status": order.OrderStatus})
		}

		var msgPtr *string
		if reason != "" {
			msgPtr = &reason
		}
		ok, err := repo.CancelUnpaid(ctx, orderID, msgPtr)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order was paid or changed concurrently")
		}

		updated, err := s.load(ctx, repo, orderID, false)
		if err != nil {
			return err
		}
		if err := s.notifier.OrderCancelled(ctx, tx, updated, cancelledBy, actorID, reason); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.restoreBooks(ctx, result)
	return result, nil
}

// UpdateTracking records the shipment reference for an approved sub-order.
func (s *service) UpdateTracking(ctx context.Context, sellerID, orderID uuid.UUID, trackingNumber string) (*OrderDTO, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, orderID, true)
		if err != nil {
			return err
		}
		sub := order.SubOrderFor(sellerID)
		if sub == nil {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order has no items from this seller")
		}
		if sub.Status != enums.SubOrderStatusApproved || order.OrderStatus.IsCancelled() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only approved sub-orders can ship").
				WithDetails(map[string]any{"status": sub.Status, "order_status": order.OrderStatus})
		}
		if err := repo.SetTracking(ctx, sub.ID, trackingNumber); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store tracking number")
		}
		sub.TrackingNumber = &trackingNumber
		if err := s.notifier.OrderShipped(ctx, tx, order, sub); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := NewOrderDTO(result, &sellerID)
	return &dto, nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID, lock bool) (*models.Order, error) {
	var (
		order *models.Order
		err   error
	)
	if lock {
		order, err = repo.FindByIDForUpdate(ctx, orderID)
	} else {
		order, err = repo.FindByID(ctx, orderID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
			WithDetails(map[string]any{"order_id": orderID})
	}
	return order, nil
}

// restoreBooks puts the books this order holds back on sale. Failures are
// logged and never undo the committed cancellation.
func (s *service) restoreBooks(ctx context.Context, order *models.Order) {
	ctx = s.logg.WithField(ctx, "book_ids", order.BookIDs())
	released, err := s.books.ReleaseForOrder(ctx, order.ID)
	if err != nil {
		s.logg.Error(ctx, "restore book availability", err)
		return
	}
	if held := len(order.BookIDs()); released < int64(held) {
		s.logg.Warn(ctx, fmt.Sprintf("released %d of %d books, the rest are held by other orders", released, held))
	}
}
