package payouts

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

const (
	ProviderStripeConnect = "stripe_connect"
	ProviderManual        = "manual"
)

// Transfer is what a provider reports after moving (or scheduling) funds.
type Transfer struct {
	Status    enums.PayoutStatus
	Reference *string
}

// Provider moves a seller's drained balance out of the platform.
type Provider interface {
	Name() string
	Supports(seller *models.User) bool
	Transfer(ctx context.Context, seller *models.User, payoutID uuid.UUID, amountCents int64, currency string) (*Transfer, error)
}

type transferAPI interface {
	CreateTransfer(ctx context.Context, params *stripe.TransferParams) (*stripe.Transfer, error)
}

// StripeConnectProvider pays sellers that onboarded a connected account.
type StripeConnectProvider struct {
	api transferAPI
}

// NewStripeConnectProvider wraps the Stripe transfers API.
func NewStripeConnectProvider(api transferAPI) *StripeConnectProvider {
	return &StripeConnectProvider{api: api}
}

func (p *StripeConnectProvider) Name() string { return ProviderStripeConnect }

func (p *StripeConnectProvider) Supports(seller *models.User) bool {
	return p != nil && p.api != nil && seller != nil &&
		seller.StripeAccountID != nil && strings.TrimSpace(*seller.StripeAccountID) != ""
}

// Transfer keys the request on the payout id so a retried call cannot pay twice.
func (p *StripeConnectProvider) Transfer(ctx context.Context, seller *models.User, payoutID uuid.UUID, amountCents int64, currency string) (*Transfer, error) {
	if !p.Supports(seller) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller has no connected stripe account")
	}
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(strings.ToLower(currency)),
		Destination:   seller.StripeAccountID,
		TransferGroup: stripe.String("payout_" + payoutID.String()),
	}
	params.SetIdempotencyKey("payout_" + payoutID.String())
	params.AddMetadata("payout_id", payoutID.String())
	params.AddMetadata("seller_id", seller.ID.String())

	tr, err := p.api.CreateTransfer(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "stripe transfer failed")
	}
	ref := tr.ID
	return &Transfer{Status: enums.PayoutStatusCompleted, Reference: &ref}, nil
}

// ManualProvider records the payout for an operator to settle by bank transfer.
type ManualProvider struct{}

func (ManualProvider) Name() string { return ProviderManual }

func (ManualProvider) Supports(*models.User) bool { return true }

func (ManualProvider) Transfer(ctx context.Context, seller *models.User, payoutID uuid.UUID, amountCents int64, currency string) (*Transfer, error) {
	return &Transfer{Status: enums.PayoutStatusPendingManual}, nil
}
