// Package khalti is a minimal client for the Khalti ePayment v2 API:
// initiate a payment and look it up by pidx.
package khalti

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://a.khalti.com/api/v2"
	responseBodyReadLimit int64 = 1024
)

// Lookup statuses reported by Khalti.
const (
	StatusCompleted         = "Completed"
	StatusPending           = "Pending"
	StatusInitiated         = "Initiated"
	StatusRefunded          = "Refunded"
	StatusExpired           = "Expired"
	StatusUserCanceled      = "User canceled"
	StatusPartiallyRefunded = "Partially Refunded"
)

var errSecretRequired = errors.New("khalti secret key is required")

// Client calls the Khalti ePayment endpoints with a merchant secret key.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL points the client at a sandbox or test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the Khalti client given the merchant secret key.
func NewClient(secretKey string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(secretKey)
	if trimmed == "" {
		return nil, errSecretRequired
	}

	client := &Client{
		secretKey:  trimmed,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CustomerInfo is shown on the Khalti payment page.
type CustomerInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// InitiateRequest starts a payment. Amount is in paisa.
type InitiateRequest struct {
	ReturnURL         string        `json:"return_url"`
	WebsiteURL        string        `json:"website_url"`
	Amount            int64         `json:"amount"`
	PurchaseOrderID   string        `json:"purchase_order_id"`
	PurchaseOrderName string        `json:"purchase_order_name"`
	CustomerInfo      *CustomerInfo `json:"customer_info,omitempty"`
}

// InitiateResponse carries the payment reference and the redirect target.
type InitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at"`
	ExpiresIn  int    `json:"expires_in"`
}

// LookupResponse is the payment state reported by Khalti.
type LookupResponse struct {
	Pidx          string  `json:"pidx"`
	TotalAmount   int64   `json:"total_amount"`
	Status        string  `json:"status"`
	TransactionID *string `json:"transaction_id"`
	Fee           int64   `json:"fee"`
	Refunded      bool    `json:"refunded"`

	// Raw keeps the undecoded body for audit.
	Raw json.RawMessage `json:"-"`
}

// Initiate registers a payment and returns the hosted payment URL.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "khalti client not configured")
	}
	if req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "khalti amount must be positive")
	}
	if strings.TrimSpace(req.PurchaseOrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase order id is required")
	}

	var resp InitiateResponse
	if _, err := c.post(ctx, "epayment/initiate/", req, &resp); err != nil {
		return nil, err
	}
	if resp.Pidx == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "khalti initiate returned no pidx")
	}
	return &resp, nil
}

// Lookup fetches the current state of a payment.
func (c *Client) Lookup(ctx context.Context, pidx string) (*LookupResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "khalti client not configured")
	}
	pidx = strings.TrimSpace(pidx)
	if pidx == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pidx is required")
	}

	var resp LookupResponse
	raw, err := c.post(ctx, "epayment/lookup/", map[string]string{"pidx": pidx}, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = raw
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal khalti request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build khalti request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+c.secretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute khalti request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"khalti request failed")
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read khalti response")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode khalti response")
	}
	return raw, nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
