package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pustakbazzar/pustak-backend/pkg/config"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/khalti"
)

// Khalti rejects payments below Rs 10.
const khaltiMinimumPaisa int64 = 1000

type khaltiAPI interface {
	Initiate(ctx context.Context, req khalti.InitiateRequest) (*khalti.InitiateResponse, error)
	Lookup(ctx context.Context, pidx string) (*khalti.LookupResponse, error)
}

// KhaltiGateway is the redirect-and-poll provider: the buyer is sent to the
// payment URL and the frontend later asks us to look the pidx up.
type KhaltiGateway struct {
	api        khaltiAPI
	returnURL  string
	websiteURL string
}

func NewKhaltiGateway(api khaltiAPI, cfg config.CheckoutConfig) (*KhaltiGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("khalti client required")
	}
	if cfg.ReturnURL == "" || cfg.WebsiteURL == "" {
		return nil, fmt.Errorf("khalti return and website urls required")
	}
	return &KhaltiGateway{api: api, returnURL: cfg.ReturnURL, websiteURL: cfg.WebsiteURL}, nil
}

func (g *KhaltiGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodKhalti
}

// ValidateAmount enforces Khalti's minimum payment.
func (g *KhaltiGateway) ValidateAmount(amountCents int64) error {
	if amountCents < khaltiMinimumPaisa {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount below khalti minimum").
			WithDetails(map[string]any{"amount": FormatAmount(amountCents), "minimum": FormatAmount(khaltiMinimumPaisa)})
	}
	return nil
}

func (g *KhaltiGateway) Initiate(ctx context.Context, order *models.Order) (*Initiation, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if err := g.ValidateAmount(order.NetTotalCents); err != nil {
		return nil, err
	}

	resp, err := g.api.Initiate(ctx, khalti.InitiateRequest{
		ReturnURL:         g.returnURL,
		WebsiteURL:        g.websiteURL,
		Amount:            order.NetTotalCents,
		PurchaseOrderID:   order.ID.String(),
		PurchaseOrderName: "Order " + order.ID.String(),
		CustomerInfo: &khalti.CustomerInfo{
			Name:  order.ShippingAddress.FullName,
			Phone: order.ShippingAddress.Phone,
		},
	})
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(resp)
	redirect := resp.PaymentURL
	return &Initiation{Reference: resp.Pidx, RedirectURL: &redirect, Raw: raw}, nil
}

func (g *KhaltiGateway) Verify(ctx context.Context, reference string) (*Verification, error) {
	resp, err := g.api.Lookup(ctx, reference)
	if err != nil {
		return nil, err
	}
	return &Verification{
		Reference:   reference,
		Status:      khaltiStatus(resp.Status),
		AmountCents: resp.TotalAmount,
		Raw:         resp.Raw,
	}, nil
}

func khaltiStatus(status string) VerificationStatus {
	switch status {
	case khalti.StatusCompleted:
		return VerificationPaid
	case khalti.StatusPending, khalti.StatusInitiated:
		return VerificationPending
	default:
		return VerificationCancelled
	}
}
