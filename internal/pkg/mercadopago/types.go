package mercadopago

import "time"

// PreferenceItem is one line item on a checkout preference.
type PreferenceItem struct {
	ID         string  `json:"id,omitempty"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id,omitempty"`
}

// BackURLs are the redirect targets after checkout completes.
type BackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

// PreferenceRequest is the body for POST /checkout/preferences.
type PreferenceRequest struct {
	Items             []PreferenceItem       `json:"items"`
	Payer             *PreferencePayer       `json:"payer,omitempty"`
	BackURLs          *BackURLs              `json:"back_urls,omitempty"`
	AutoReturn        string                 `json:"auto_return,omitempty"`
	NotificationURL   string                 `json:"notification_url,omitempty"`
	ExternalReference string                 `json:"external_reference,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	Marketplace       string                 `json:"marketplace,omitempty"`
	MarketplaceFee    float64                `json:"marketplace_fee,omitempty"`
}

// PreferencePayer narrows the payer fields this integration sends.
type PreferencePayer struct {
	Email string `json:"email,omitempty"`
}

// Preference is the checkout-session resource returned at creation.
type Preference struct {
	ID                string `json:"id"`
	InitPoint         string `json:"init_point"`
	SandboxInitPoint  string `json:"sandbox_init_point"`
	ExternalReference string `json:"external_reference"`
	CollectorID       int64  `json:"collector_id"`
}

// Payment is the authoritative payment resource fetched on reconciliation.
// Only the fields this integration consumes are declared; everything else in
// the provider response is ignored on purpose.
type Payment struct {
	ID                int64                  `json:"id"`
	Status            string                 `json:"status"`
	StatusDetail      string                 `json:"status_detail"`
	TransactionAmount float64                `json:"transaction_amount"`
	CurrencyID        string                 `json:"currency_id"`
	ExternalReference string                 `json:"external_reference"`
	PaymentMethodID   string                 `json:"payment_method_id"`
	PaymentTypeID     string                 `json:"payment_type_id"`
	DateApproved      *time.Time             `json:"date_approved,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	Payer             *PaymentPayer          `json:"payer,omitempty"`
	Order             *PaymentOrder          `json:"order,omitempty"`
}

// PaymentPayer carries the payer identity echoed by the provider.
type PaymentPayer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// PaymentOrder links a payment to its merchant order.
type PaymentOrder struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// AutoRecurring describes the billing cadence on preapprovals and plans.
type AutoRecurring struct {
	Frequency         int        `json:"frequency"`
	FrequencyType     string     `json:"frequency_type"`
	TransactionAmount float64    `json:"transaction_amount"`
	CurrencyID        string     `json:"currency_id"`
	FreeTrial         *FreeTrial `json:"free_trial,omitempty"`
	StartDate         *time.Time `json:"start_date,omitempty"`
	EndDate           *time.Time `json:"end_date,omitempty"`
}

// FreeTrial is the optional trial window on a recurring agreement.
type FreeTrial struct {
	Frequency     int    `json:"frequency"`
	FrequencyType string `json:"frequency_type"`
}

// PreapprovalRequest is the body for POST /preapproval.
type PreapprovalRequest struct {
	Reason            string         `json:"reason,omitempty"`
	PreapprovalPlanID string         `json:"preapproval_plan_id,omitempty"`
	PayerEmail        string         `json:"payer_email"`
	ExternalReference string         `json:"external_reference,omitempty"`
	BackURL           string         `json:"back_url,omitempty"`
	AutoRecurring     *AutoRecurring `json:"auto_recurring,omitempty"`
	Status            string         `json:"status,omitempty"`
}

// Preapproval is the provider's recurring-approval resource.
type Preapproval struct {
	ID                string         `json:"id"`
	Status            string         `json:"status"`
	Reason            string         `json:"reason"`
	ExternalReference string         `json:"external_reference"`
	PayerEmail        string         `json:"payer_email"`
	InitPoint         string         `json:"init_point"`
	NextPaymentDate   *time.Time     `json:"next_payment_date,omitempty"`
	AutoRecurring     *AutoRecurring `json:"auto_recurring,omitempty"`
	Summarized        *Summarized    `json:"summarized,omitempty"`
}

// Summarized is the provider's billing-counter snapshot on a preapproval.
type Summarized struct {
	Quotas                *int       `json:"quotas,omitempty"`
	ChargedQuantity       *int       `json:"charged_quantity,omitempty"`
	PendingChargeQuantity *int       `json:"pending_charge_quantity,omitempty"`
	ChargedAmount         *float64   `json:"charged_amount,omitempty"`
	PendingChargeAmount   *float64   `json:"pending_charge_amount,omitempty"`
	LastChargedDate       *time.Time `json:"last_charged_date,omitempty"`
	LastChargedAmount     *float64   `json:"last_charged_amount,omitempty"`
}

// PreapprovalPlanRequest is the body for POST /preapproval_plan.
type PreapprovalPlanRequest struct {
	Reason        string         `json:"reason"`
	AutoRecurring *AutoRecurring `json:"auto_recurring"`
	BackURL       string         `json:"back_url,omitempty"`
}

// PreapprovalPlan is the reusable billing template resource.
type PreapprovalPlan struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Reason        string         `json:"reason"`
	InitPoint     string         `json:"init_point"`
	AutoRecurring *AutoRecurring `json:"auto_recurring,omitempty"`
}

// AuthorizedPayment is one recurring charge executed against a preapproval.
type AuthorizedPayment struct {
	ID                int64              `json:"id"`
	PreapprovalID     string             `json:"preapproval_id"`
	ExternalReference string             `json:"external_reference"`
	Status            string             `json:"status"`
	DebitDate         *time.Time         `json:"debit_date,omitempty"`
	Payment           *AuthorizedCharge  `json:"payment,omitempty"`
	Transaction       *TransactionAmount `json:"transaction_amount,omitempty"`
}

// AuthorizedCharge is the payment embedded in an authorized recurring charge.
type AuthorizedCharge struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"`
	StatusDetail string `json:"status_detail"`
}

// TransactionAmount wraps the charged amount on an authorized payment.
type TransactionAmount struct {
	Amount     float64 `json:"amount"`
	CurrencyID string  `json:"currency_id"`
}

// Customer is the provider-side customer resource.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type customerSearchResponse struct {
	Results []Customer `json:"results"`
}
