package payments

import (
	"context"
	"time"

	"github.com/MatiasHerrera/PagoLink/app/models"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/mercadopago"
)

// ProviderClient is the provider API surface this plugin consumes. The
// concrete implementation lives in internal/pkg/mercadopago; tests substitute
// a stub.
type ProviderClient interface {
	GetPayment(ctx context.Context, id string) (*mercadopago.Payment, error)
	CreatePreference(ctx context.Context, req *mercadopago.PreferenceRequest, idempotencyKey string) (*mercadopago.Preference, error)
	CreatePreapproval(ctx context.Context, req *mercadopago.PreapprovalRequest, idempotencyKey string) (*mercadopago.Preapproval, error)
	GetPreapproval(ctx context.Context, id string) (*mercadopago.Preapproval, error)
	UpdatePreapproval(ctx context.Context, id string, req *mercadopago.PreapprovalRequest) (*mercadopago.Preapproval, error)
	CreatePreapprovalPlan(ctx context.Context, req *mercadopago.PreapprovalPlanRequest) (*mercadopago.PreapprovalPlan, error)
	GetPreapprovalPlan(ctx context.Context, id string) (*mercadopago.PreapprovalPlan, error)
	GetAuthorizedPayment(ctx context.Context, id string) (*mercadopago.AuthorizedPayment, error)
	SearchCustomerByEmail(ctx context.Context, email string) (*mercadopago.Customer, error)
	CreateCustomer(ctx context.Context, email string) (*mercadopago.Customer, error)
}

// Status-change hooks supplied by the host application. Returned errors (and
// panics) are logged and never affect webhook acknowledgment or control flow.
type (
	PaymentCallback         func(ctx context.Context, payment *models.Payment, provider *mercadopago.Payment) error
	SubscriptionCallback    func(ctx context.Context, sub *models.Subscription, provider *mercadopago.Preapproval) error
	RecurringChargeCallback func(ctx context.Context, sub *models.Subscription, charge *mercadopago.AuthorizedPayment) error
)

// Config carries the plugin's tunables and host-supplied hooks.
type Config struct {
	WebhookSecret         string
	NotificationURL       string
	AllowedRedirectHosts  []string
	RequireHTTPSRedirects bool

	CreateMaxAttempts  int
	CreateWindow       time.Duration
	WebhookMaxAttempts int
	WebhookWindow      time.Duration
	DedupTTL           time.Duration
	IdempotencyTTL     time.Duration

	OnPaymentStatusChange      PaymentCallback
	OnSubscriptionStatusChange SubscriptionCallback
	OnRecurringCharge          RecurringChargeCallback
}

func (c Config) withDefaults() Config {
	if c.CreateMaxAttempts <= 0 {
		c.CreateMaxAttempts = 10
	}
	if c.CreateWindow <= 0 {
		c.CreateWindow = time.Minute
	}
	if c.WebhookMaxAttempts <= 0 {
		c.WebhookMaxAttempts = 300
	}
	if c.WebhookWindow <= 0 {
		c.WebhookWindow = time.Minute
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 24 * time.Hour
	}
	if c.IdempotencyTTL <= 0 {
		c.IdempotencyTTL = 24 * time.Hour
	}
	return c
}

// LineItem is one validated line on a checkout request.
type LineItem struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// MarketplaceConfig requests a split of the payment between the platform and
// a third-party collector. Exactly one of FeeAmount or FeePercent is used;
// FeeAmount wins when both are set.
type MarketplaceConfig struct {
	CollectorID string  `json:"collector_id"`
	FeeAmount   float64 `json:"fee_amount"`
	FeePercent  float64 `json:"fee_percent"`
}

// RedirectURLs are the optional post-checkout redirect targets.
type RedirectURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// CreatePaymentInput is the normalized input for the payment creation flow.
type CreatePaymentInput struct {
	UserID         uint
	Items          []LineItem
	Currency       string
	Metadata       map[string]interface{}
	Marketplace    *MarketplaceConfig
	Redirects      *RedirectURLs
	IdempotencyKey string
}

// CreatePaymentResult is what the creation flow returns (and caches under the
// idempotency key).
type CreatePaymentResult struct {
	CheckoutURL       string          `json:"checkout_url"`
	PreferenceID      string          `json:"preference_id"`
	ExternalReference string          `json:"external_reference"`
	Payment           *models.Payment `json:"payment"`
}

// TrialSpec is an optional free-trial window on a recurring agreement.
type TrialSpec struct {
	Frequency     int    `json:"frequency"`
	FrequencyType string `json:"frequency_type"`
}

// RecurringSpec describes inline recurring-billing terms for ad-hoc
// subscriptions that do not reference a stored plan.
type RecurringSpec struct {
	Frequency     int        `json:"frequency"`
	FrequencyType string     `json:"frequency_type"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	Trial         *TrialSpec `json:"trial,omitempty"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
}

// CreateSubscriptionInput accepts either a stored plan reference or an inline
// recurring spec with a free-text reason.
type CreateSubscriptionInput struct {
	UserID         uint
	PlanID         *uint
	Reason         string
	Recurring      *RecurringSpec
	PayerEmail     string
	BackURL        string
	IdempotencyKey string
}

// CreateSubscriptionResult is returned by the subscription creation flow.
type CreateSubscriptionResult struct {
	CheckoutURL  string               `json:"checkout_url"`
	Subscription *models.Subscription `json:"subscription"`
}

// CreatePlanInput describes a reusable billing template.
type CreatePlanInput struct {
	Name          string
	Frequency     int
	FrequencyType string
	Amount        float64
	Currency      string
	Trial         *TrialSpec
	Repetitions   int
	BackURL       string
}

// WebhookNotification is the normalized inbound notification: an event-type
// tag, the referenced data id and the two correlation headers.
type WebhookNotification struct {
	Type      string
	DataID    string
	RequestID string
	Signature string
}
