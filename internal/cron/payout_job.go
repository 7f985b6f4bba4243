package cron

import (
	"context"
	"fmt"

	"github.com/pustakbazzar/pustak-backend/internal/payouts"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
)

type payoutRunner interface {
	PayoutAll(ctx context.Context) (payouts.BatchResult, error)
}

// SellerPayoutJobParams configures the scheduled payout run.
type SellerPayoutJobParams struct {
	Logger  *logger.Logger
	Payouts payoutRunner
}

// NewSellerPayoutJob pays out every seller whose balance meets the minimum.
func NewSellerPayoutJob(params SellerPayoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &sellerPayoutJob{logg: params.Logger, payouts: params.Payouts}, nil
}

type sellerPayoutJob struct {
	logg    *logger.Logger
	payouts payoutRunner
}

func (j *sellerPayoutJob) Name() string { return "seller-payouts" }

func (j *sellerPayoutJob) Run(ctx context.Context) error {
	result, err := j.payouts.PayoutAll(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"attempted": result.Attempted,
		"paid":      result.Paid,
		"skipped":   result.Skipped,
	})
	if err != nil {
		return fmt.Errorf("seller payouts: %w", err)
	}
	j.logg.Info(logCtx, "seller payouts complete")
	return nil
}
