package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/MatiasHerrera/PagoLink/app/models"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/mercadopago"
)

// amountTolerance is the maximum absolute difference accepted between the
// locally recorded amount and the provider-reported transaction amount.
const amountTolerance = 0.01

const webhookRateLimitKey = "ratelimit:webhook:global"

// The provider's event-type vocabulary. Anything else is acknowledged and
// dropped so the provider never retries a notification we cannot handle.
var recognizedTopics = map[string]struct{}{
	"payment":                         {},
	"merchant_order":                  {},
	"topic_merchant_order_wh":         {},
	"subscription_preapproval":        {},
	"subscription_preapproval_plan":   {},
	"subscription_authorized_payment": {},
	"point_integration_wh":            {},
}

// ProcessWebhook applies the reconciliation protocol to one inbound
// notification. It returns an error only for the conditions that must reach
// the provider as a non-2xx: rate limiting, a failed signature and a
// malformed payload. Every business-logic failure downstream is logged and
// absorbed, because the provider retries aggressively on failure and a retry
// cannot fix a business problem.
func (s *Service) ProcessWebhook(ctx context.Context, n WebhookNotification, rawBody []byte) error {
	allowed, err := s.limiter.Check(ctx, webhookRateLimitKey, s.cfg.WebhookMaxAttempts, s.cfg.WebhookWindow)
	if err != nil {
		log.Printf("webhook rate limiter check failed, allowing request: %v", err)
	} else if !allowed {
		return ErrRateLimited
	}

	topic := strings.TrimSpace(n.Type)
	dataID := strings.TrimSpace(n.DataID)
	if _, ok := recognizedTopics[topic]; !ok || dataID == "" {
		log.Printf("ignoring webhook notification: topic=%q data_id=%q", topic, dataID)
		return nil
	}

	if s.cfg.WebhookSecret == "" {
		log.Printf("webhook signature verification skipped: no secret configured")
	} else if !VerifyWebhookSignature(n.Signature, n.RequestID, dataID, s.cfg.WebhookSecret) {
		return ErrUnauthorizedWebhook
	}

	// Mark before processing so a concurrent duplicate delivery observes the
	// mark even while this one is still running.
	dedupKey := dedupKeyFor(dataID, topic)
	first, storeErr := s.store.SetNX(ctx, dedupKey, "processing", s.cfg.DedupTTL)
	if storeErr != nil {
		log.Printf("webhook dedup store unavailable, continuing: %v", storeErr)
	} else if !first {
		log.Printf("duplicate webhook delivery acknowledged: topic=%q data_id=%q", topic, dataID)
		return nil
	}

	created, stored, evErr := s.repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		ProviderEventID: dataID,
		EventType:       topic,
		PayloadJSON:     string(rawBody),
		SignatureValid:  s.cfg.WebhookSecret != "",
	})
	if evErr != nil {
		log.Printf("failed to record webhook event: %v", evErr)
		stored = nil
	} else if !created && stored.ProcessedAt != nil {
		// Durable backstop for the TTL store: survives process restarts.
		return nil
	}

	procErr := s.applyNotification(ctx, topic, dataID)
	if procErr != nil {
		log.Printf("webhook processing failed (acknowledged anyway): topic=%q data_id=%q err=%v", topic, dataID, procErr)
		if errors.Is(procErr, ErrProviderCall) {
			// A transient fetch failure may succeed on the provider's next
			// natural redelivery; release the mark so it is not suppressed.
			if err := s.store.Delete(ctx, dedupKey); err != nil {
				log.Printf("failed to release dedup mark: %v", err)
			}
			return nil
		}
	}

	if stored != nil {
		msg := ""
		if procErr != nil {
			msg = procErr.Error()
		}
		if err := s.repo.MarkWebhookProcessed(stored.ID, msg); err != nil {
			log.Printf("failed to mark webhook event processed: %v", err)
		}
	}
	return nil
}

func (s *Service) applyNotification(ctx context.Context, topic, dataID string) error {
	switch topic {
	case "payment":
		return s.reconcilePayment(ctx, dataID)
	case "subscription_preapproval":
		return s.reconcileSubscription(ctx, dataID)
	case "subscription_authorized_payment":
		return s.reconcileAuthorizedPayment(ctx, dataID)
	case "subscription_preapproval_plan":
		return s.reconcilePlan(ctx, dataID)
	default:
		// Merchant-order and point-integration events carry no state this
		// plugin owns; the payment topic covers the money movement.
		log.Printf("webhook topic %q acknowledged without local state change", topic)
		return nil
	}
}

// reconcilePayment fetches the authoritative payment state and applies it to
// the correlated local record. The notification payload is never trusted
// beyond its type and id.
func (s *Service) reconcilePayment(ctx context.Context, dataID string) error {
	provider, err := s.provider.GetPayment(ctx, dataID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderCall, err)
	}

	local, err := s.correlatePayment(provider)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("no local payment correlates with provider payment %d; acknowledged", provider.ID)
			return nil
		}
		return err
	}

	// First sighting backfills the provider-assigned id.
	providerID := strconv.FormatInt(provider.ID, 10)
	if local.ProviderPaymentID == "" {
		local.ProviderPaymentID = providerID
	}

	if math.Abs(provider.TransactionAmount-local.Amount) > amountTolerance {
		// Tampering or provider disagreement: leave the local record as is so
		// reconciliation can be revisited manually.
		return fmt.Errorf("%w: local=%.2f provider=%.2f (payment %d)",
			ErrAmountMismatch, local.Amount, provider.TransactionAmount, provider.ID)
	}

	local.Status = normalizePaymentStatus(provider.Status)
	local.StatusDetail = provider.StatusDetail
	local.PaymentMethod = provider.PaymentMethodID
	if err := s.repo.UpdatePayment(local); err != nil {
		return err
	}

	s.invokePaymentCallback(ctx, local, provider)
	return nil
}

func (s *Service) correlatePayment(provider *mercadopago.Payment) (*models.Payment, error) {
	providerID := strconv.FormatInt(provider.ID, 10)
	local, err := s.repo.GetPaymentByProviderPaymentID(providerID)
	if err == nil {
		return local, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	ref := strings.TrimSpace(provider.ExternalReference)
	if ref == "" {
		return nil, ErrNotFound
	}
	local, err = s.repo.GetPaymentByExternalReference(ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return local, nil
}

// reconcileSubscription applies the authoritative preapproval state. The
// provider is the source of truth and can report any status at any time, so
// no transition ordering is enforced here.
func (s *Service) reconcileSubscription(ctx context.Context, dataID string) error {
	provider, err := s.provider.GetPreapproval(ctx, dataID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderCall, err)
	}

	local, err := s.correlateSubscription(provider.ID, provider.ExternalReference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("no local subscription correlates with preapproval %q; acknowledged", provider.ID)
			return nil
		}
		return err
	}

	local.Status = normalizeSubscriptionStatus(provider.Status)
	if strings.TrimSpace(provider.Reason) != "" {
		local.Reason = provider.Reason
	}
	local.NextPaymentDate = provider.NextPaymentDate
	if provider.Summarized != nil {
		if raw, err := json.Marshal(provider.Summarized); err == nil {
			local.SummarizedJSON = string(raw)
		}
		if provider.Summarized.LastChargedDate != nil {
			local.LastPaymentDate = provider.Summarized.LastChargedDate
		}
	}
	if err := s.repo.UpdateSubscription(local); err != nil {
		return err
	}

	s.invokeSubscriptionCallback(ctx, local, provider)
	return nil
}

// reconcileAuthorizedPayment records one recurring charge against the
// correlated subscription. Charges carry the subscription's external
// reference, which was set at subscription-creation time.
func (s *Service) reconcileAuthorizedPayment(ctx context.Context, dataID string) error {
	charge, err := s.provider.GetAuthorizedPayment(ctx, dataID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderCall, err)
	}

	local, err := s.correlateSubscription(charge.PreapprovalID, charge.ExternalReference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("no local subscription correlates with recurring charge %d; acknowledged", charge.ID)
			return nil
		}
		return err
	}

	if charge.Payment != nil && charge.Payment.Status == models.PaymentStatusApproved {
		if charge.DebitDate != nil {
			local.LastPaymentDate = charge.DebitDate
		}
		if err := s.repo.UpdateSubscription(local); err != nil {
			return err
		}
	}

	s.invokeRecurringChargeCallback(ctx, local, charge)
	return nil
}

func (s *Service) correlateSubscription(providerSubscriptionID, externalReference string) (*models.Subscription, error) {
	ref := strings.TrimSpace(externalReference)
	if ref != "" {
		local, err := s.repo.GetSubscriptionByExternalReference(ref)
		if err == nil {
			return local, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	id := strings.TrimSpace(providerSubscriptionID)
	if id == "" {
		return nil, ErrNotFound
	}
	local, err := s.repo.GetSubscriptionByProviderID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return local, nil
}

func (s *Service) reconcilePlan(ctx context.Context, dataID string) error {
	provider, err := s.provider.GetPreapprovalPlan(ctx, dataID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderCall, err)
	}

	local, err := s.repo.GetPlanByProviderPlanID(provider.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("no local plan correlates with preapproval plan %q; acknowledged", provider.ID)
			return nil
		}
		return err
	}

	if strings.TrimSpace(provider.Status) != "" {
		local.Status = provider.Status
	}
	return s.repo.UpdatePlan(local)
}

// Callback invocations are hard-isolated: errors and panics are logged and
// never reach the caller, so a misbehaving host hook cannot make the provider
// retry an otherwise processed webhook.
func (s *Service) invokePaymentCallback(ctx context.Context, p *models.Payment, provider *mercadopago.Payment) {
	cb := s.cfg.OnPaymentStatusChange
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("payment status callback panicked: %v", r)
		}
	}()
	if err := cb(ctx, p, provider); err != nil {
		log.Printf("payment status callback failed: %v", err)
	}
}

func (s *Service) invokeSubscriptionCallback(ctx context.Context, sub *models.Subscription, provider *mercadopago.Preapproval) {
	cb := s.cfg.OnSubscriptionStatusChange
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("subscription status callback panicked: %v", r)
		}
	}()
	if err := cb(ctx, sub, provider); err != nil {
		log.Printf("subscription status callback failed: %v", err)
	}
}

func (s *Service) invokeRecurringChargeCallback(ctx context.Context, sub *models.Subscription, charge *mercadopago.AuthorizedPayment) {
	cb := s.cfg.OnRecurringCharge
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("recurring charge callback panicked: %v", r)
		}
	}()
	if err := cb(ctx, sub, charge); err != nil {
		log.Printf("recurring charge callback failed: %v", err)
	}
}

func dedupKeyFor(dataID, topic string) string {
	return fmt.Sprintf("webhook:%s:%s", dataID, topic)
}

func normalizePaymentStatus(status string) string {
	st := strings.ToLower(strings.TrimSpace(status))
	if models.IsValidPaymentStatus(st) {
		return st
	}
	switch st {
	case "in_process", "in_mediation":
		return models.PaymentStatusPending
	default:
		return models.PaymentStatusPending
	}
}

func normalizeSubscriptionStatus(status string) string {
	st := strings.ToLower(strings.TrimSpace(status))
	if models.IsValidSubscriptionStatus(st) {
		return st
	}
	return models.SubscriptionStatusPending
}
