package payments

import (
	"context"
	"strings"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

const creditReferencePrefix = "credit_"

// CreditGateway records deferred payments that are collected outside any
// provider and confirmed later by an admin.
type CreditGateway struct{}

func NewCreditGateway() *CreditGateway {
	return &CreditGateway{}
}

func (g *CreditGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodCredit
}

func (g *CreditGateway) ValidateAmount(amountCents int64) error {
	if amountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	return nil
}

func (g *CreditGateway) Initiate(ctx context.Context, order *models.Order) (*Initiation, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	return &Initiation{Reference: CreditReference(order)}, nil
}

// Verify never observes collection on its own, so credit payments stay
// pending until an admin confirms them.
func (g *CreditGateway) Verify(ctx context.Context, reference string) (*Verification, error) {
	if !strings.HasPrefix(reference, creditReferencePrefix) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "not a credit reference")
	}
	return &Verification{Reference: reference, Status: VerificationPending}, nil
}

// CreditReference is the deterministic reference for a credit order.
func CreditReference(order *models.Order) string {
	return creditReferencePrefix + order.ID.String()
}
