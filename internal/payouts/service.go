// Package payouts drains seller balances to an external payout provider.
package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/internal/ledger"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
	"github.com/pustakbazzar/pustak-backend/pkg/metrics"
	"github.com/pustakbazzar/pustak-backend/pkg/pagination"
)

const lockScopePayout = "payout"

// Earnings summarizes a seller's money on the platform.
type Earnings struct {
	SellerID              uuid.UUID       `json:"seller_id"`
	BalanceCents          int64           `json:"balance_cents"`
	LifetimeEarningCents  int64           `json:"lifetime_earning_cents"`
	PlatformFeesPaidCents int64           `json:"platform_fees_paid_cents"`
	MinimumPayoutCents    int64           `json:"minimum_payout_cents"`
	Currency              string          `json:"currency"`
	RecentPayouts         []models.Payout `json:"recent_payouts"`
}

// BatchResult reports a scheduled payout run.
type BatchResult struct {
	Attempted int
	Paid      int
	Skipped   int
}

// Service exposes seller payouts.
type Service interface {
	RequestPayout(ctx context.Context, sellerID uuid.UUID) (*models.Payout, error)
	Earnings(ctx context.Context, sellerID uuid.UUID) (*Earnings, error)
	History(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*pagination.Page[models.Payout], error)
	ListPayouts(ctx context.Context, params pagination.Params) (*pagination.Page[models.Payout], error)
	PayoutAll(ctx context.Context) (BatchResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type locker interface {
	TryLock(ctx context.Context, scope, id string, ttl time.Duration) (func(context.Context) error, bool, error)
}

type payoutNotifier interface {
	PayoutCompleted(ctx context.Context, tx *gorm.DB, payout *models.Payout) error
}

// ServiceParams groups payout collaborators. Providers are tried in order; the
// first one that supports the seller is used.
type ServiceParams struct {
	Repo               Repository
	Ledger             ledger.Repository
	Providers          []Provider
	Notifier           payoutNotifier
	Locker             locker
	TxRunner           txRunner
	Metrics            *metrics.PaymentMetrics
	Logger             *logger.Logger
	MinimumPayoutCents int64
	ProcessingDays     int
	Currency           string
	LockTTL            time.Duration
	TransferTimeout    time.Duration
}

type service struct {
	repo            Repository
	ledger          ledger.Repository
	providers       []Provider
	notifier        payoutNotifier
	locker          locker
	tx              txRunner
	metrics         *metrics.PaymentMetrics
	logg            *logger.Logger
	minimum         int64
	processingDays  int
	currency        string
	lockTTL         time.Duration
	transferTimeout time.Duration
	now             func() time.Time
}

// NewService builds the payout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payouts repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger repository required")
	case len(params.Providers) == 0:
		return nil, fmt.Errorf("at least one payout provider required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("payout notifier required")
	case params.Locker == nil:
		return nil, fmt.Errorf("locker required")
	case params.TxRunner == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.MinimumPayoutCents < 0:
		return nil, fmt.Errorf("minimum payout must not be negative")
	}
	svc := &service{
		repo:            params.Repo,
		ledger:          params.Ledger,
		providers:       params.Providers,
		notifier:        params.Notifier,
		locker:          params.Locker,
		tx:              params.TxRunner,
		metrics:         params.Metrics,
		logg:            params.Logger,
		minimum:         params.MinimumPayoutCents,
		processingDays:  params.ProcessingDays,
		currency:        params.Currency,
		lockTTL:         params.LockTTL,
		transferTimeout: params.TransferTimeout,
		now:             time.Now,
	}
	if svc.currency == "" {
		svc.currency = "NPR"
	}
	if svc.lockTTL <= 0 {
		svc.lockTTL = time.Minute
	}
	if svc.transferTimeout <= 0 {
		svc.transferTimeout = 15 * time.Second
	}
	return svc, nil
}

// RequestPayout drains the seller's whole balance. The debit is a
// compare-and-swap on the balance read under the per-seller lock; the provider
// transfer runs in the same transaction so a failed transfer leaves the
// balance untouched.
func (s *service) RequestPayout(ctx context.Context, sellerID uuid.UUID) (*models.Payout, error) {
	ctx = s.logg.WithField(ctx, "seller_id", sellerID.String())
	release, ok, err := s.locker.TryLock(ctx, lockScopePayout, sellerID.String(), s.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire payout lock")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payout already in progress")
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.logg.Warn(ctx, "release payout lock: "+err.Error())
		}
	}()

	seller, err := s.ledger.FindAccount(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	if seller == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")
	}
	amount := seller.BalanceCents
	if amount <= 0 || amount < s.minimum {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "balance below minimum payout").
			WithDetails(map[string]any{
				"balance_cents":        amount,
				"minimum_payout_cents": s.minimum,
			})
	}
	provider := s.providerFor(seller)

	now := s.now().UTC()
	payout := &models.Payout{
		ID:          uuid.New(),
		SellerID:    sellerID,
		AmountCents: amount,
		Currency:    s.currency,
		Provider:    provider.Name(),
		ExpectedAt:  now.AddDate(0, 0, s.processingDays),
		CreatedAt:   now,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		drained, err := s.ledger.WithTx(tx).DrainBalance(ctx, sellerID, amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit balance")
		}
		if !drained {
			return pkgerrors.New(pkgerrors.CodeConflict, "balance changed, retry payout")
		}

		transferCtx, cancel := context.WithTimeout(ctx, s.transferTimeout)
		defer cancel()
		result, err := provider.Transfer(transferCtx, seller, payout.ID, amount, s.currency)
		if err != nil {
			return err
		}
		payout.Status = result.Status
		payout.ProviderReference = result.Reference
		if payout.Status == enums.PayoutStatusCompleted {
			payout.ExpectedAt = now
		}

		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout")
		}
		return s.notifier.PayoutCompleted(ctx, tx, payout)
	})
	if err != nil {
		s.metrics.IncPayout(provider.Name(), "failed")
		s.logg.Error(ctx, "payout failed", err)
		return nil, err
	}
	s.metrics.IncPayout(provider.Name(), payout.Status.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payout_id":    payout.ID.String(),
		"amount_cents": amount,
		"provider":     provider.Name(),
	}), "seller payout recorded")
	return payout, nil
}

func (s *service) Earnings(ctx context.Context, sellerID uuid.UUID) (*Earnings, error) {
	seller, err := s.ledger.FindAccount(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	if seller == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")
	}
	fees, err := s.ledger.SumPlatformFees(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum platform fees")
	}
	recent, err := s.repo.ListBySeller(ctx, sellerID, pagination.Params{Limit: 5})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return &Earnings{
		SellerID:              sellerID,
		BalanceCents:          seller.BalanceCents,
		LifetimeEarningCents:  seller.EarningCents,
		PlatformFeesPaidCents: fees,
		MinimumPayoutCents:    s.minimum,
		Currency:              s.currency,
		RecentPayouts:         recent.Items,
	}, nil
}

func (s *service) History(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*pagination.Page[models.Payout], error) {
	page, err := s.repo.ListBySeller(ctx, sellerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return &page, nil
}

func (s *service) ListPayouts(ctx context.Context, params pagination.Params) (*pagination.Page[models.Payout], error) {
	page, err := s.repo.ListAll(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return &page, nil
}

// PayoutAll pays every seller whose balance meets the minimum. A failing seller
// does not stop the run; failures are returned together.
func (s *service) PayoutAll(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	sellers, err := s.ledger.SellersWithBalance(ctx, s.minimum)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sellers with balance")
	}
	var errs error
	for _, sellerID := range sellers {
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
		result.Attempted++
		_, err := s.RequestPayout(ctx, sellerID)
		if err == nil {
			result.Paid++
			continue
		}
		if typed := pkgerrors.As(err); typed != nil &&
			(typed.Code() == pkgerrors.CodeConflict || typed.Code() == pkgerrors.CodeValidation) {
			result.Skipped++
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("seller %s: %w", sellerID, err))
	}
	return result, errs
}

func (s *service) providerFor(seller *models.User) Provider {
	for _, p := range s.providers {
		if p.Supports(seller) {
			return p
		}
	}
	return ManualProvider{}
}
