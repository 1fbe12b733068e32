package payments

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatiasHerrera/PagoLink/app/models"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/mercadopago"
)

func signedNotification(secret, topic, dataID string) WebhookNotification {
	ts := "1700000000"
	return WebhookNotification{
		Type:      topic,
		DataID:    dataID,
		RequestID: "req-1",
		Signature: fmt.Sprintf("ts=%s,v1=%s", ts, signManifest(secret, "req-1", dataID, ts)),
	}
}

// seedPayment creates a local pending payment through the service and mirrors
// it as the authoritative provider resource.
func seedPayment(t *testing.T, f *testFixture, providerID int64, providerStatus string, providerAmount float64) *models.Payment {
	t.Helper()
	result, err := f.service.CreatePayment(context.Background(), CreatePaymentInput{
		UserID:   f.user.ID,
		Currency: "ARS",
		Items:    []LineItem{{Title: "Producto", Quantity: 1, UnitPrice: 150}},
	})
	require.NoError(t, err)

	f.provider.payments[strconv.FormatInt(providerID, 10)] = &mercadopago.Payment{
		ID:                providerID,
		Status:            providerStatus,
		StatusDetail:      "accredited",
		TransactionAmount: providerAmount,
		CurrencyID:        "ARS",
		ExternalReference: result.ExternalReference,
		PaymentMethodID:   "visa",
	}
	return result.Payment
}

func TestProcessWebhook_ApprovedPaymentTransition(t *testing.T) {
	var callbacks int
	f := newTestFixture(t, Config{
		OnPaymentStatusChange: func(ctx context.Context, p *models.Payment, provider *mercadopago.Payment) error {
			callbacks++
			return nil
		},
	})
	payment := seedPayment(t, f, 1001, "approved", 150)

	n := WebhookNotification{Type: "payment", DataID: "1001", RequestID: "req-1"}
	require.NoError(t, f.service.ProcessWebhook(context.Background(), n, []byte(`{"type":"payment","data":{"id":"1001"}}`)))

	stored, err := f.repo.GetPaymentByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, stored.Status)
	assert.Equal(t, "1001", stored.ProviderPaymentID, "first webhook backfills the provider id")
	assert.Equal(t, "accredited", stored.StatusDetail)
	assert.Equal(t, "visa", stored.PaymentMethod)
	assert.Equal(t, 1, callbacks)
}

func TestProcessWebhook_DuplicateDeliveryProcessesOnce(t *testing.T) {
	var callbacks int
	f := newTestFixture(t, Config{
		OnPaymentStatusChange: func(ctx context.Context, p *models.Payment, provider *mercadopago.Payment) error {
			callbacks++
			return nil
		},
	})
	seedPayment(t, f, 1001, "approved", 150)

	n := WebhookNotification{Type: "payment", DataID: "1001", RequestID: "req-1"}
	body := []byte(`{"type":"payment","data":{"id":"1001"}}`)

	require.NoError(t, f.service.ProcessWebhook(context.Background(), n, body))
	require.NoError(t, f.service.ProcessWebhook(context.Background(), n, body))
	require.NoError(t, f.service.ProcessWebhook(context.Background(), n, body))

	assert.Equal(t, 1, callbacks, "duplicate deliveries must not re-run the callback")
	assert.Len(t, f.repo.events, 1, "one durable event row per provider event")
}

func TestProcessWebhook_DedupSurvivesStoreLoss(t *testing.T) {
	var callbacks int
	f := newTestFixture(t, Config{
		OnPaymentStatusChange: func(ctx context.Context, p *models.Payment, provider *mercadopago.Payment) error {
			callbacks++
			return nil
		},
	})
	seedPayment(t, f, 1001, "approved", 150)

	n := WebhookNotification{Type: "payment", DataID: "1001", RequestID: "req-1"}
	body := []byte(`{}`)
	ctx := context.Background()

	require.NoError(t, f.service.ProcessWebhook(ctx, n, body))
	// Simulate a restart: the TTL store is empty, the event table is not.
	require.NoError(t, f.store.Delete(ctx, dedupKeyFor("1001", "payment")))
	require.NoError(t, f.service.ProcessWebhook(ctx, n, body))

	assert.Equal(t, 1, callbacks, "the event table backstops the TTL store")
}

func TestProcessWebhook_InvalidSignatureRejected(t *testing.T) {
	var callbacks int
	secret := "whsec_test"
	f := newTestFixture(t, Config{
		WebhookSecret: secret,
		OnPaymentStatusChange: func(ctx context.Context, p *models.Payment, provider *mercadopago.Payment) error {
			callbacks++
			return nil
		},
	})
	payment := seedPayment(t, f, 1001, "approved", 150)

	n := WebhookNotification{
		Type:      "payment",
		DataID:    "1001",
		RequestID: "req-1",
		Signature: "ts=1700000000,v1=deadbeef",
	}
	err := f.service.ProcessWebhook(context.Background(), n, []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnauthorizedWebhook)

	stored, err := f.repo.GetPaymentByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status, "record must be untouched")
	assert.Equal(t, 0, callbacks)
	assert.Empty(t, f.repo.events, "unauthenticated notifications are never recorded")
}

func TestProcessWebhook_ValidSignatureAccepted(t *testing.T) {
	secret := "whsec_test"
	f := newTestFixture(t, Config{WebhookSecret: secret})
	payment := seedPayment(t, f, 1001, "approved", 150)

	n := signedNotification(secret, "payment", "1001")
	require.NoError(t, f.service.ProcessWebhook(context.Background(), n, []byte(`{}`)))

	stored, err := f.repo.GetPaymentByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, stored.Status)
}

func TestProcessWebhook_AmountMismatchLeavesRecordUntouched(t *testing.T) {
	var callbacks int
	f := newTestFixture(t, Config{
		OnPaymentStatusChange: func(ctx context.Context, p *models.Payment, provider *mercadopago.Payment) error {
			callbacks++
			return nil
		},
	})
	// Local amount is 150; the provider reports 999.
	payment := seedPayment(t, f, 1001, "approved", 999)

	n := WebhookNotification{Type: "payment", DataID: "1001", RequestID: "req-1"}
	// Acknowledged anyway: a retry cannot fix a tampered amount.
	require.NoError(t, f.service.ProcessWebhook(context.Background(), n, []byte(`{}`)))

	stored, err := f.repo.GetPaymentByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Empty(t, stored.ProviderPaymentID)
	assert.Equal(t, 0, callbacks)

	ev := f.repo.events[eventKey("1001", "payment")]
	require.NotNil(t, ev)
	require.NotNil(t, ev.ProcessedAt)
	assert.Contains(t, ev.ProcessingError, "amount mismatch")
}

func TestProcessWebhook_AmountWithinToleranceAccepted(t *testing.T) {
	f := newTestFixture(t, Config{})
	payment := seedPayment(t, f, 1001, "approved", 150.005)

	n := WebhookNotification{Type: "payment", DataID: "1001", RequestID: "req-1"}
	require.NoError(t, f.service.ProcessWebhook(context.Background(), n, []byte(`{}`)))

	stored, err := f.repo.GetPaymentByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, stored.Status)
}

func TestProcessWebhook_ProviderFetchFailureRetriable(t *testing.T) {
	var callbacks int
	f := newTestFixture(t, Config{
		OnPaymentStatusChange: func(ctx context.Context, p *models.Payment, provider *mercadopago.Payment) error {
			callbacks++
			return nil
		},
	})
	payment := seedPayment(t, f, 1001, "approved", 150)

	n := WebhookNotification{Type: "payment", DataID: "1001", RequestID: "req-1"}
	ctx := context.Background()

	f.provider.getPaymentErr = fmt.Errorf("502 from provider")
	require.NoError(t, f.service.ProcessWebhook(ctx, n, []byte(`{}`)), "fetch failures are acknowledged")

	// The dedup mark was released, so the provider's redelivery gets through.
	f.provider.getPaymentErr = nil
	require.NoError(t, f.service.ProcessWebhook(ctx, n, []byte(`{}`)))

	stored, err := f.repo.GetPaymentByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, stored.Status)
	assert.Equal(t, 1, callbacks)
}

func TestProcessWebhook_UnknownTopicDropped(t *testing.T) {
	f := newTestFixture(t, Config{})

	n := WebhookNotification{Type: "chat_message", DataID: "42", RequestID: "req-1"}
	require.NoError(t, f.service.ProcessWebhook(context.Background(), n, []byte(`{}`)))
	assert.Empty(t, f.repo.events)
}

func TestProcessWebhook_MissingDataIDDropped(t *testing.T) {
	f := newTestFixture(t, Config{})

	n := WebhookNotification{Type: "payment", RequestID: "req-1"}
	require.NoError(t, f.service.ProcessWebhook(context.Background(), n, []byte(`{}`)))
	assert.Empty(t, f.repo.events)
}

func TestProcessWebhook_RateLimited(t *testing.T) {
	repo := newFakeRepo()
	store := NewMemoryStore()
	t.Cleanup(store.Close)
	svc := NewService(repo, newFakeProvider(), store, &stubLimiter{allow: false}, Config{})

	n := WebhookNotification{Type: "payment", DataID: "1001", RequestID: "req-1"}
	err := svc.ProcessWebhook(context.Background(), n, []byte(`{}`))
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestProcessWebhook_UncorrelatedPaymentAcknowledged(t *testing.T) {
	f := newTestFixture(t, Config{})
	f.provider.payments["555"] = &mercadopago.Payment{
		ID:                555,
		Status:            "approved",
		TransactionAmount: 10,
		ExternalReference: "nobody-knows-this-ref",
	}

	n := WebhookNotification{Type: "payment", DataID: "555", RequestID: "req-1"}
	require.NoError(t, f.service.ProcessWebhook(context.Background(), n, []byte(`{}`)))

	ev := f.repo.events[eventKey("555", "payment")]
	require.NotNil(t, ev)
	assert.NotNil(t, ev.ProcessedAt)
	assert.Empty(t, ev.ProcessingError)
}

func TestProcessWebhook_SubscriptionAuthorized(t *testing.T) {
	var callbacks int
	f := newTestFixture(t, Config{
		OnSubscriptionStatusChange: func(ctx context.Context, sub *models.Subscription, provider *mercadopago.Preapproval) error {
			callbacks++
			return nil
		},
	})
	ctx := context.Background()

	created, err := f.service.CreateSubscription(ctx, CreateSubscriptionInput{
		UserID:    f.user.ID,
		Reason:    "Mensual",
		Recurring: &RecurringSpec{Frequency: 1, FrequencyType: "months", Amount: 100, Currency: "ARS"},
	})
	require.NoError(t, err)

	providerID := created.Subscription.ProviderSubscriptionID
	next := time.Now().Add(30 * 24 * time.Hour)
	charged := time.Now()
	f.provider.preapprovals[providerID].Status = "authorized"
	f.provider.preapprovals[providerID].NextPaymentDate = &next
	f.provider.preapprovals[providerID].Summarized = &mercadopago.Summarized{LastChargedDate: &charged}

	n := WebhookNotification{Type: "subscription_preapproval", DataID: providerID, RequestID: "req-1"}
	require.NoError(t, f.service.ProcessWebhook(ctx, n, []byte(`{}`)))

	stored, err := f.repo.GetSubscriptionByID(created.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusAuthorized, stored.Status)
	require.NotNil(t, stored.NextPaymentDate)
	require.NotNil(t, stored.LastPaymentDate)
	assert.NotEmpty(t, stored.SummarizedJSON)
	assert.Equal(t, 1, callbacks)
}

func TestProcessWebhook_RecurringCharge(t *testing.T) {
	var callbacks int
	f := newTestFixture(t, Config{
		OnRecurringCharge: func(ctx context.Context, sub *models.Subscription, charge *mercadopago.AuthorizedPayment) error {
			callbacks++
			return nil
		},
	})
	ctx := context.Background()

	created, err := f.service.CreateSubscription(ctx, CreateSubscriptionInput{
		UserID:    f.user.ID,
		Reason:    "Mensual",
		Recurring: &RecurringSpec{Frequency: 1, FrequencyType: "months", Amount: 100, Currency: "ARS"},
	})
	require.NoError(t, err)

	debit := time.Now()
	f.provider.charges["777"] = &mercadopago.AuthorizedPayment{
		ID:                777,
		PreapprovalID:     created.Subscription.ProviderSubscriptionID,
		ExternalReference: created.Subscription.ExternalReference,
		Status:            "processed",
		DebitDate:         &debit,
		Payment:           &mercadopago.AuthorizedCharge{ID: 888, Status: models.PaymentStatusApproved},
	}

	n := WebhookNotification{Type: "subscription_authorized_payment", DataID: "777", RequestID: "req-1"}
	require.NoError(t, f.service.ProcessWebhook(ctx, n, []byte(`{}`)))

	stored, err := f.repo.GetSubscriptionByID(created.Subscription.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastPaymentDate)
	assert.Equal(t, 1, callbacks)
}

func TestProcessWebhook_PlanStatusChange(t *testing.T) {
	f := newTestFixture(t, Config{})
	ctx := context.Background()

	plan, err := f.service.CreatePlan(ctx, CreatePlanInput{
		Name:          "Plan Pro",
		Frequency:     1,
		FrequencyType: models.PlanFrequencyTypeMonths,
		Amount:        1500,
		Currency:      "ARS",
	})
	require.NoError(t, err)

	f.provider.plans[plan.ProviderPlanID].Status = "cancelled"

	n := WebhookNotification{Type: "subscription_preapproval_plan", DataID: plan.ProviderPlanID, RequestID: "req-1"}
	require.NoError(t, f.service.ProcessWebhook(ctx, n, []byte(`{}`)))

	stored, err := f.repo.GetPlanByID(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", stored.Status)
}

func TestProcessWebhook_CallbackErrorsAreAbsorbed(t *testing.T) {
	f := newTestFixture(t, Config{
		OnPaymentStatusChange: func(ctx context.Context, p *models.Payment, provider *mercadopago.Payment) error {
			panic("host hook exploded")
		},
	})
	payment := seedPayment(t, f, 1001, "approved", 150)

	n := WebhookNotification{Type: "payment", DataID: "1001", RequestID: "req-1"}
	require.NoError(t, f.service.ProcessWebhook(context.Background(), n, []byte(`{}`)),
		"a panicking hook must not surface to the provider")

	stored, err := f.repo.GetPaymentByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, stored.Status, "the transition itself sticks")
}

func TestNormalizePaymentStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "approved", want: models.PaymentStatusApproved},
		{in: " Approved ", want: models.PaymentStatusApproved},
		{in: "in_process", want: models.PaymentStatusPending},
		{in: "in_mediation", want: models.PaymentStatusPending},
		{in: "charged_back", want: models.PaymentStatusChargedBack},
		{in: "weird_future_status", want: models.PaymentStatusPending},
	}
	for _, tt := range tests {
		if got := normalizePaymentStatus(tt.in); got != tt.want {
			t.Fatalf("normalizePaymentStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSubscriptionStatus(t *testing.T) {
	if got := normalizeSubscriptionStatus("authorized"); got != models.SubscriptionStatusAuthorized {
		t.Fatalf("authorized should map to itself, got %q", got)
	}
	if got := normalizeSubscriptionStatus("unknown"); got != models.SubscriptionStatusPending {
		t.Fatalf("unknown statuses fall back to pending, got %q", got)
	}
}
