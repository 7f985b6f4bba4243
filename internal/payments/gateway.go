// Package payments adapts the external payment providers to one narrow
// initiate/verify contract and stores each payment attempt.
package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

// VerificationStatus is the provider-neutral outcome of a payment lookup.
type VerificationStatus string

const (
	VerificationPaid      VerificationStatus = "paid"
	VerificationCancelled VerificationStatus = "cancelled"
	VerificationPending   VerificationStatus = "pending"
)

// Initiation is what a gateway hands back when a payment is started.
type Initiation struct {
	Reference   string
	RedirectURL *string
	Raw         json.RawMessage
}

// Verification is the gateway's view of a payment. OrderID is uuid.Nil when
// the provider does not echo it back.
type Verification struct {
	Reference   string
	Status      VerificationStatus
	AmountCents int64
	OrderID     uuid.UUID
	Raw         json.RawMessage
}

// Gateway is implemented once per payment provider. ValidateAmount holds
// the provider's static limits so checkout can refuse an order before any
// state is written.
type Gateway interface {
	Method() enums.PaymentMethod
	ValidateAmount(amountCents int64) error
	Initiate(ctx context.Context, order *models.Order) (*Initiation, error)
	Verify(ctx context.Context, reference string) (*Verification, error)
}

// Registry resolves the gateway for a payment method.
type Registry struct {
	gateways map[enums.PaymentMethod]Gateway
}

// NewRegistry indexes the provided gateways by method. Nil entries are
// skipped so optional providers can be left unconfigured.
func NewRegistry(gateways ...Gateway) (*Registry, error) {
	reg := &Registry{gateways: make(map[enums.PaymentMethod]Gateway)}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		if _, dup := reg.gateways[gw.Method()]; dup {
			return nil, fmt.Errorf("duplicate gateway for %s", gw.Method())
		}
		reg.gateways[gw.Method()] = gw
	}
	if len(reg.gateways) == 0 {
		return nil, fmt.Errorf("at least one gateway required")
	}
	return reg, nil
}

// Get returns the gateway for method or a validation error.
func (r *Registry) Get(method enums.PaymentMethod) (Gateway, error) {
	if gw, ok := r.gateways[method]; ok {
		return gw, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method not supported").
		WithDetails(map[string]any{"payment_method": method})
}

// Methods lists the configured payment methods.
func (r *Registry) Methods() []enums.PaymentMethod {
	out := make([]enums.PaymentMethod, 0, len(r.gateways))
	for method := range r.gateways {
		out = append(out, method)
	}
	return out
}

// FormatAmount renders minor units as a major-unit string for logs and
// provider descriptions.
func FormatAmount(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
