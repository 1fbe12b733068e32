package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MatiasHerrera/PagoLink/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.mercadopago.com"

// Client is a thin REST client over the Mercado Pago API surface this plugin
// consumes. Responses are decoded into the narrowed types in types.go;
// unknown fields are ignored.
type Client struct {
	AccessToken string
	BaseURL     string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from MP_ACCESS_TOKEN / MP_API_BASE_URL.
func NewClientFromEnv() *Client {
	return &Client{
		AccessToken: strings.TrimSpace(env.GetEnv("MP_ACCESS_TOKEN", "")),
		BaseURL:     strings.TrimRight(env.GetEnv("MP_API_BASE_URL", defaultAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}, idempotencyKey string) error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return errors.New("MP_ACCESS_TOKEN is not configured")
	}

	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = defaultAPIBaseURL
	}
	u, err := url.Parse(base + path)
	if err != nil {
		return err
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if k := strings.TrimSpace(idempotencyKey); k != "" {
		req.Header.Set("X-Idempotency-Key", k)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mercadopago %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return err
		}
	}
	return nil
}

// GetPayment fetches the authoritative state of a one-time payment.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("payment id is required")
	}
	var out Payment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePreference creates a checkout preference (hosted payment page).
func (c *Client) CreatePreference(ctx context.Context, req *PreferenceRequest, idempotencyKey string) (*Preference, error) {
	if req == nil || len(req.Items) == 0 {
		return nil, errors.New("preference requires at least one item")
	}
	var out Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", nil, req, &out, idempotencyKey); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("preference creation returned empty id")
	}
	return &out, nil
}

// CreatePreapproval creates a recurring-approval resource.
func (c *Client) CreatePreapproval(ctx context.Context, req *PreapprovalRequest, idempotencyKey string) (*Preapproval, error) {
	if req == nil {
		return nil, errors.New("preapproval request is required")
	}
	var out Preapproval
	if err := c.do(ctx, http.MethodPost, "/preapproval", nil, req, &out, idempotencyKey); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("preapproval creation returned empty id")
	}
	return &out, nil
}

// GetPreapproval fetches the authoritative state of a recurring approval.
func (c *Client) GetPreapproval(ctx context.Context, id string) (*Preapproval, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("preapproval id is required")
	}
	var out Preapproval
	if err := c.do(ctx, http.MethodGet, "/preapproval/"+url.PathEscape(id), nil, nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePreapproval updates mutable preapproval fields (status, amount).
func (c *Client) UpdatePreapproval(ctx context.Context, id string, req *PreapprovalRequest) (*Preapproval, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("preapproval id is required")
	}
	var out Preapproval
	if err := c.do(ctx, http.MethodPut, "/preapproval/"+url.PathEscape(id), nil, req, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePreapprovalPlan creates a reusable billing template.
func (c *Client) CreatePreapprovalPlan(ctx context.Context, req *PreapprovalPlanRequest) (*PreapprovalPlan, error) {
	if req == nil || req.AutoRecurring == nil {
		return nil, errors.New("preapproval plan requires auto_recurring terms")
	}
	var out PreapprovalPlan
	if err := c.do(ctx, http.MethodPost, "/preapproval_plan", nil, req, &out, ""); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("preapproval plan creation returned empty id")
	}
	return &out, nil
}

// GetPreapprovalPlan fetches a billing template by id.
func (c *Client) GetPreapprovalPlan(ctx context.Context, id string) (*PreapprovalPlan, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("preapproval plan id is required")
	}
	var out PreapprovalPlan
	if err := c.do(ctx, http.MethodGet, "/preapproval_plan/"+url.PathEscape(id), nil, nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAuthorizedPayment fetches one recurring charge by id.
func (c *Client) GetAuthorizedPayment(ctx context.Context, id string) (*AuthorizedPayment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("authorized payment id is required")
	}
	var out AuthorizedPayment
	if err := c.do(ctx, http.MethodGet, "/authorized_payments/"+url.PathEscape(id), nil, nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchCustomerByEmail returns the first customer matching the email, or nil.
func (c *Client) SearchCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	e := strings.TrimSpace(email)
	if e == "" {
		return nil, errors.New("email is required")
	}
	q := url.Values{}
	q.Set("email", e)
	var out customerSearchResponse
	if err := c.do(ctx, http.MethodGet, "/v1/customers/search", q, nil, &out, ""); err != nil {
		return nil, err
	}
	if len(out.Results) == 0 {
		return nil, nil
	}
	return &out.Results[0], nil
}

// CreateCustomer creates a provider-side customer for the given email.
func (c *Client) CreateCustomer(ctx context.Context, email string) (*Customer, error) {
	e := strings.TrimSpace(email)
	if e == "" {
		return nil, errors.New("email is required")
	}
	var out Customer
	body := map[string]string{"email": e}
	if err := c.do(ctx, http.MethodPost, "/v1/customers", nil, body, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}
