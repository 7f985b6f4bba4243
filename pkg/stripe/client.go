// Package stripe is the marketplace's Stripe account: hosted checkout for
// buyers, Connect transfers for seller payouts and webhook verification.
package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/transfer"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/pustakbazzar/pustak-backend/pkg/config"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
)

// Mode is the Stripe account mode a key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// Client calls Stripe on behalf of the marketplace. A nil *Client answers
// every call with DEPENDENCY_ERROR so optional wiring fails loudly.
type Client struct {
	mode          Mode
	signingSecret string
}

// NewClient checks that the API key matches the configured mode and that a
// webhook signing secret is present, then installs the key.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode, err := parseMode(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, fmt.Errorf("stripe api key is required")
	case secret == "":
		return nil, fmt.Errorf("stripe webhook secret is required")
	}
	if got := keyMode(apiKey); got != mode {
		return nil, fmt.Errorf("stripe %s mode needs a %s secret key (sk_%s_ or rk_%s_)", mode, mode, mode, mode)
	}

	stripe.Key = apiKey
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", string(mode)), "stripe client initialized")
	}
	return &Client{mode: mode, signingSecret: secret}, nil
}

func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

// CreateCheckoutSession opens a hosted checkout session for an order.
func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if c == nil {
		return nil, errNotConfigured
	}
	if params == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session params required")
	}
	params.Context = ctx
	return session.New(params)
}

// GetCheckoutSession looks a session up by id.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	if c == nil {
		return nil, errNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return session.Get(id, params)
}

// CreateTransfer pays a seller's connected account.
func (c *Client) CreateTransfer(ctx context.Context, params *stripe.TransferParams) (*stripe.Transfer, error) {
	if c == nil {
		return nil, errNotConfigured
	}
	if params == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer params required")
	}
	params.Context = ctx
	return transfer.New(params)
}

// ConstructEvent verifies a webhook body against its Stripe-Signature header.
func (c *Client) ConstructEvent(payload []byte, header string) (stripe.Event, error) {
	if c == nil {
		return stripe.Event{}, errNotConfigured
	}
	return webhook.ConstructEvent(payload, header, c.signingSecret)
}

var errNotConfigured = pkgerrors.New(pkgerrors.CodeDependency, "stripe client not configured")

func parseMode(raw string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return ModeTest, nil
	case ModeTest, ModeLive:
		return mode, nil
	default:
		return "", fmt.Errorf("stripe environment must be %q or %q", ModeTest, ModeLive)
	}
}

// keyMode reads the mode out of a secret or restricted key prefix.
func keyMode(key string) Mode {
	for _, prefix := range []string{"sk_", "rk_"} {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(rest, "test_"):
			return ModeTest
		case strings.HasPrefix(rest, "live_"):
			return ModeLive
		}
	}
	return ""
}
