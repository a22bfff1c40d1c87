// Package gateway holds the clients for the external collaborators of the
// hiring backend: the payment gateway, the identity service, and the
// notification dispatcher. Each collaborator is consumed through a narrow
// interface so services stay testable without live upstreams.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway payment status values as reported by the provider's read API.
const (
	GatewayStatusApproved  = "approved"
	GatewayStatusRejected  = "rejected"
	GatewayStatusPending   = "pending"
	GatewayStatusInProcess = "in_process"
)

// ErrPaymentNotFound is returned by GetPayment when the gateway does not yet
// know the payment id — the "phantom payment" window where a notification
// arrives before the gateway's own read path is consistent. Callers retry.
var ErrPaymentNotFound = errors.New("gateway: payment not found")

// GatewayPayment is the full payment object fetched from the provider after
// a notification.
type GatewayPayment struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	PaymentMethod     string          `json:"payment_method_id"`
	PaymentType       string          `json:"payment_type_id"`
	ExternalReference string          `json:"external_reference"`

	// Raw preserves the provider's response verbatim for the ledger audit
	// trail.
	Raw json.RawMessage `json:"-"`
}

// PreferenceItem is one line of a checkout preference.
type PreferenceItem struct {
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PreferenceRequest describes the checkout preference to create for a
// payment attempt.
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	ExternalReference string           `json:"external_reference"`
	NotificationURL   string           `json:"notification_url,omitempty"`
	SuccessURL        string           `json:"success_url,omitempty"`
	FailureURL        string           `json:"failure_url,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
}

// Preference is the created checkout preference.
type Preference struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"init_point"`
}

// PaymentGateway is the collaborator contract consumed by the payment and
// reconciliation services.
type PaymentGateway interface {
	// CreatePreference registers a checkout preference and returns its id
	// and checkout URL.
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
	// GetPayment fetches the full payment object for an opaque external id.
	// Returns ErrPaymentNotFound while the gateway's read path lags.
	GetPayment(ctx context.Context, externalID string) (*GatewayPayment, error)
}

// HTTPPaymentGateway talks to a checkout-style payment provider over REST.
// Every call carries a hard timeout independent of any caller-side retry
// budget, so webhook-handler latency stays bounded.
type HTTPPaymentGateway struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewHTTPPaymentGateway builds a gateway client with the given hard per-call
// timeout.
func NewHTTPPaymentGateway(baseURL, token string, timeout time.Duration) *HTTPPaymentGateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPPaymentGateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

// CreatePreference implements PaymentGateway.
func (g *HTTPPaymentGateway) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.BaseURL+"/checkout/preferences", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.Token)

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway: create preference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway: create preference: unexpected status %d", resp.StatusCode)
	}
	var pref Preference
	if err := json.NewDecoder(resp.Body).Decode(&pref); err != nil {
		return nil, fmt.Errorf("gateway: create preference: decode: %w", err)
	}
	return &pref, nil
}

// GetPayment implements PaymentGateway.
func (g *HTTPPaymentGateway) GetPayment(ctx context.Context, externalID string) (*GatewayPayment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.BaseURL+"/v1/payments/"+externalID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.Token)

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway: get payment %s: %w", externalID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPaymentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway: get payment %s: unexpected status %d", externalID, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: get payment %s: read: %w", externalID, err)
	}
	var p GatewayPayment
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("gateway: get payment %s: decode: %w", externalID, err)
	}
	p.Raw = raw
	if p.ID == "" {
		p.ID = externalID
	}
	return &p, nil
}
