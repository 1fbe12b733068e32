package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MatiasHerrera/PagoLink/app/models"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/mercadopago"
)

// Service implements the outbound creation flows and hosts the webhook
// reconciliation engine (reconcile.go).
type Service struct {
	repo     Repository
	provider ProviderClient
	store    Store
	limiter  Limiter
	cfg      Config
}

// NewService wires a payments service from its collaborators.
func NewService(repo Repository, provider ProviderClient, store Store, limiter Limiter, cfg Config) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		store:    store,
		limiter:  limiter,
		cfg:      cfg.withDefaults(),
	}
}

var (
	defaultService *Service
	defaultMu      sync.Mutex
)

// SetDefault installs the process-wide service used by the controllers.
func SetDefault(s *Service) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultService = s
}

// Default returns the process-wide service installed at startup.
func Default() *Service {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultService
}

// CreatePayment validates the request, ensures a provider customer, creates a
// checkout preference keyed by a pre-generated external reference and
// persists the pending local record. Nothing is persisted when the provider
// call fails.
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (*CreatePaymentResult, error) {
	if in.UserID == 0 {
		return nil, newValidationError("user_id", "is required")
	}
	total, err := s.validateItems(in.Items, in.Currency)
	if err != nil {
		return nil, err
	}
	if in.Redirects != nil {
		if err := s.validateRedirects(in.Redirects); err != nil {
			return nil, err
		}
	}

	allowed, err := s.limiter.Check(ctx, createRateLimitKey(in.UserID), s.cfg.CreateMaxAttempts, s.cfg.CreateWindow)
	if err != nil {
		log.Printf("rate limiter check failed, allowing request: %v", err)
	} else if !allowed {
		return nil, ErrRateLimited
	}

	idemKey := strings.TrimSpace(in.IdempotencyKey)
	if idemKey != "" {
		if err := ValidateIdempotencyKey(idemKey); err != nil {
			return nil, err
		}
		if cached, ok, err := s.store.Get(ctx, paymentIdemKey(in.UserID, idemKey)); err == nil && ok {
			var result CreatePaymentResult
			if err := json.Unmarshal([]byte(cached), &result); err == nil {
				return &result, nil
			}
		}
	}

	var split *models.MarketplaceSplit
	if in.Marketplace != nil {
		split, err = buildMarketplaceSplit(in.Marketplace, total)
		if err != nil {
			return nil, err
		}
	}

	user, err := s.repo.GetUserByID(in.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.ensureProviderCustomer(ctx, user); err != nil {
		return nil, err
	}

	metadata := SanitizeMetadata(in.Metadata)
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))

	// The external reference is assigned exactly once, before any provider
	// call; it is the join key for every asynchronous event that follows.
	externalRef := uuid.NewString()

	prefReq := &mercadopago.PreferenceRequest{
		Items:             toPreferenceItems(in.Items, currency),
		Payer:             &mercadopago.PreferencePayer{Email: user.Email},
		NotificationURL:   s.cfg.NotificationURL,
		ExternalReference: externalRef,
		Metadata:          metadata,
	}
	if in.Redirects != nil {
		prefReq.BackURLs = &mercadopago.BackURLs{
			Success: in.Redirects.Success,
			Failure: in.Redirects.Failure,
			Pending: in.Redirects.Pending,
		}
	}
	if split != nil {
		prefReq.Marketplace = split.CollectorID
		prefReq.MarketplaceFee = split.ApplicationFee
	}

	pref, err := s.provider.CreatePreference(ctx, prefReq, idemKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderCall, err)
	}

	payment := &models.Payment{
		UserID:            in.UserID,
		ExternalReference: externalRef,
		PreferenceID:      pref.ID,
		Amount:            total,
		Currency:          currency,
		Status:            models.PaymentStatusPending,
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			payment.MetadataJSON = string(raw)
		}
	}
	if err := s.repo.CreatePayment(payment); err != nil {
		return nil, err
	}
	if split != nil {
		split.PaymentID = payment.ID
		if err := s.repo.CreateMarketplaceSplit(split); err != nil {
			return nil, err
		}
	}

	result := &CreatePaymentResult{
		CheckoutURL:       pref.InitPoint,
		PreferenceID:      pref.ID,
		ExternalReference: externalRef,
		Payment:           payment,
	}
	if idemKey != "" {
		if raw, err := json.Marshal(result); err == nil {
			if err := s.store.Set(ctx, paymentIdemKey(in.UserID, idemKey), string(raw), s.cfg.IdempotencyTTL); err != nil {
				log.Printf("failed to cache idempotent creation response: %v", err)
			}
		}
	}
	return result, nil
}

// CreateSubscription creates a provider preapproval from a stored plan or an
// inline recurring spec and persists the pending local record.
func (s *Service) CreateSubscription(ctx context.Context, in CreateSubscriptionInput) (*CreateSubscriptionResult, error) {
	if in.UserID == 0 {
		return nil, newValidationError("user_id", "is required")
	}
	if in.PlanID == nil && in.Recurring == nil {
		return nil, newValidationError("plan_id", "either a plan reference or recurring terms are required")
	}
	if in.BackURL != "" {
		if err := ValidateRedirectURL(in.BackURL, s.cfg.AllowedRedirectHosts, s.cfg.RequireHTTPSRedirects); err != nil {
			return nil, err
		}
	}

	allowed, err := s.limiter.Check(ctx, createRateLimitKey(in.UserID), s.cfg.CreateMaxAttempts, s.cfg.CreateWindow)
	if err != nil {
		log.Printf("rate limiter check failed, allowing request: %v", err)
	} else if !allowed {
		return nil, ErrRateLimited
	}

	idemKey := strings.TrimSpace(in.IdempotencyKey)
	if idemKey != "" {
		if err := ValidateIdempotencyKey(idemKey); err != nil {
			return nil, err
		}
		if cached, ok, err := s.store.Get(ctx, subscriptionIdemKey(in.UserID, idemKey)); err == nil && ok {
			var result CreateSubscriptionResult
			if err := json.Unmarshal([]byte(cached), &result); err == nil {
				return &result, nil
			}
		}
	}

	user, err := s.repo.GetUserByID(in.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	payerEmail := strings.TrimSpace(in.PayerEmail)
	if payerEmail == "" {
		payerEmail = user.Email
	}

	externalRef := uuid.NewString()
	preReq := &mercadopago.PreapprovalRequest{
		PayerEmail:        payerEmail,
		ExternalReference: externalRef,
		BackURL:           in.BackURL,
		Status:            "pending",
	}

	var planID *uint
	reason := strings.TrimSpace(in.Reason)
	if in.PlanID != nil {
		plan, err := s.repo.GetPlanByID(*in.PlanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, newValidationError("plan_id", "unknown plan %d", *in.PlanID)
			}
			return nil, err
		}
		planID = &plan.ID
		if reason == "" {
			reason = plan.Name
		}
		preReq.PreapprovalPlanID = plan.ProviderPlanID
		preReq.Reason = reason
		preReq.AutoRecurring = planRecurring(plan)
	} else {
		if reason == "" {
			return nil, newValidationError("reason", "is required for ad-hoc subscriptions")
		}
		if err := ValidateAmount(in.Recurring.Amount); err != nil {
			return nil, err
		}
		if err := ValidateCurrency(in.Recurring.Currency); err != nil {
			return nil, err
		}
		if in.Recurring.Frequency <= 0 {
			return nil, newValidationError("frequency", "must be positive")
		}
		preReq.Reason = reason
		preReq.AutoRecurring = inlineRecurring(in.Recurring)
	}

	pre, err := s.provider.CreatePreapproval(ctx, preReq, idemKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderCall, err)
	}

	sub := &models.Subscription{
		UserID:                 in.UserID,
		ProviderSubscriptionID: pre.ID,
		ExternalReference:      externalRef,
		PlanID:                 planID,
		Reason:                 reason,
		Status:                 models.SubscriptionStatusPending,
		NextPaymentDate:        pre.NextPaymentDate,
	}
	if err := s.repo.CreateSubscription(sub); err != nil {
		return nil, err
	}

	result := &CreateSubscriptionResult{
		CheckoutURL:  pre.InitPoint,
		Subscription: sub,
	}
	if idemKey != "" {
		if raw, err := json.Marshal(result); err == nil {
			if err := s.store.Set(ctx, subscriptionIdemKey(in.UserID, idemKey), string(raw), s.cfg.IdempotencyTTL); err != nil {
				log.Printf("failed to cache idempotent creation response: %v", err)
			}
		}
	}
	return result, nil
}

// CancelSubscription cancels the provider preapproval and transitions the
// local record. Only the owning user may cancel.
func (s *Service) CancelSubscription(ctx context.Context, userID, subscriptionID uint) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByID(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrNotFound
	}
	if sub.Status == models.SubscriptionStatusCancelled {
		return sub, nil
	}

	pre, err := s.provider.UpdatePreapproval(ctx, sub.ProviderSubscriptionID, &mercadopago.PreapprovalRequest{Status: "cancelled"})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderCall, err)
	}

	sub.Status = models.SubscriptionStatusCancelled
	sub.Reason = "cancelled by user"
	if err := s.repo.UpdateSubscription(sub); err != nil {
		return nil, err
	}
	s.invokeSubscriptionCallback(ctx, sub, pre)
	return sub, nil
}

// CreatePlan creates a reusable billing template at the provider and locally.
func (s *Service) CreatePlan(ctx context.Context, in CreatePlanInput) (*models.Plan, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, newValidationError("name", "is required")
	}
	if err := ValidateAmount(in.Amount); err != nil {
		return nil, err
	}
	if err := ValidateCurrency(in.Currency); err != nil {
		return nil, err
	}
	if in.Frequency <= 0 {
		return nil, newValidationError("frequency", "must be positive")
	}
	if in.FrequencyType != models.PlanFrequencyTypeDays && in.FrequencyType != models.PlanFrequencyTypeMonths {
		return nil, newValidationError("frequency_type", "must be days or months")
	}
	if in.BackURL != "" {
		if err := ValidateRedirectURL(in.BackURL, s.cfg.AllowedRedirectHosts, s.cfg.RequireHTTPSRedirects); err != nil {
			return nil, err
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	recurring := &mercadopago.AutoRecurring{
		Frequency:         in.Frequency,
		FrequencyType:     in.FrequencyType,
		TransactionAmount: in.Amount,
		CurrencyID:        currency,
	}
	if in.Trial != nil {
		recurring.FreeTrial = &mercadopago.FreeTrial{
			Frequency:     in.Trial.Frequency,
			FrequencyType: in.Trial.FrequencyType,
		}
	}

	providerPlan, err := s.provider.CreatePreapprovalPlan(ctx, &mercadopago.PreapprovalPlanRequest{
		Reason:        name,
		AutoRecurring: recurring,
		BackURL:       in.BackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderCall, err)
	}

	plan := &models.Plan{
		ProviderPlanID: providerPlan.ID,
		Name:           name,
		Frequency:      in.Frequency,
		FrequencyType:  in.FrequencyType,
		Amount:         in.Amount,
		Currency:       currency,
		Repetitions:    in.Repetitions,
		Status:         "active",
	}
	if in.Trial != nil {
		plan.TrialFrequency = in.Trial.Frequency
		plan.TrialFrequencyType = in.Trial.FrequencyType
	}
	if err := s.repo.CreatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// GetUserPayment fetches a payment owned by the given user.
func (s *Service) GetUserPayment(ctx context.Context, userID, paymentID uint) (*models.Payment, error) {
	_ = ctx
	p, err := s.repo.GetPaymentByID(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrNotFound
	}
	return p, nil
}

// ListUserPayments returns the user's payments, newest first.
func (s *Service) ListUserPayments(ctx context.Context, userID uint) ([]models.Payment, error) {
	_ = ctx
	return s.repo.ListPaymentsByUser(userID)
}

// ListUserSubscriptions returns the user's subscriptions, newest first.
func (s *Service) ListUserSubscriptions(ctx context.Context, userID uint) ([]models.Subscription, error) {
	_ = ctx
	return s.repo.ListSubscriptionsByUser(userID)
}

// ListPlans returns all billing templates.
func (s *Service) ListPlans(ctx context.Context) ([]models.Plan, error) {
	_ = ctx
	return s.repo.ListPlans()
}

func (s *Service) validateItems(items []LineItem, currency string) (float64, error) {
	if len(items) == 0 {
		return 0, newValidationError("items", "at least one item is required")
	}
	total := 0.0
	for i, item := range items {
		if strings.TrimSpace(item.Title) == "" {
			return 0, newValidationError("items", "item %d is missing a title", i)
		}
		if item.Quantity <= 0 {
			return 0, newValidationError("items", "item %d has a non-positive quantity", i)
		}
		if err := ValidateAmount(item.UnitPrice); err != nil {
			return 0, newValidationError("items", "item %d has an invalid unit price", i)
		}
		total += float64(item.Quantity) * item.UnitPrice
	}
	if err := ValidateAmount(total); err != nil {
		return 0, err
	}
	if err := ValidateCurrency(currency); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) validateRedirects(r *RedirectURLs) error {
	for _, u := range []string{r.Success, r.Failure, r.Pending} {
		if strings.TrimSpace(u) == "" {
			continue
		}
		if err := ValidateRedirectURL(u, s.cfg.AllowedRedirectHosts, s.cfg.RequireHTTPSRedirects); err != nil {
			return err
		}
	}
	return nil
}

// ensureProviderCustomer creates the provider-side customer on first use and
// caches the id on the user record.
func (s *Service) ensureProviderCustomer(ctx context.Context, user *models.User) error {
	if user.ProviderCustomerID != "" {
		return nil
	}
	customer, err := s.provider.SearchCustomerByEmail(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderCall, err)
	}
	if customer == nil {
		customer, err = s.provider.CreateCustomer(ctx, user.Email)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProviderCall, err)
		}
	}
	user.ProviderCustomerID = customer.ID
	return s.repo.SetUserProviderCustomerID(user.ID, customer.ID)
}

func buildMarketplaceSplit(cfg *MarketplaceConfig, total float64) (*models.MarketplaceSplit, error) {
	if strings.TrimSpace(cfg.CollectorID) == "" {
		return nil, newValidationError("marketplace.collector_id", "is required")
	}
	fee := cfg.FeeAmount
	if fee <= 0 {
		if cfg.FeePercent <= 0 || cfg.FeePercent >= 100 {
			return nil, newValidationError("marketplace.fee_percent", "must be between 0 and 100")
		}
		fee = total * cfg.FeePercent / 100
	}
	if fee <= 0 || fee >= total {
		return nil, newValidationError("marketplace.fee_amount", "commission must be strictly less than the total amount")
	}
	return &models.MarketplaceSplit{
		CollectorID:    strings.TrimSpace(cfg.CollectorID),
		FeeAmount:      cfg.FeeAmount,
		FeePercent:     cfg.FeePercent,
		ApplicationFee: fee,
		NetAmount:      total - fee,
	}, nil
}

func toPreferenceItems(items []LineItem, currency string) []mercadopago.PreferenceItem {
	out := make([]mercadopago.PreferenceItem, len(items))
	for i, item := range items {
		out[i] = mercadopago.PreferenceItem{
			ID:         item.ID,
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			CurrencyID: currency,
		}
	}
	return out
}

func planRecurring(plan *models.Plan) *mercadopago.AutoRecurring {
	recurring := &mercadopago.AutoRecurring{
		Frequency:         plan.Frequency,
		FrequencyType:     plan.FrequencyType,
		TransactionAmount: plan.Amount,
		CurrencyID:        plan.Currency,
	}
	if plan.TrialFrequency > 0 {
		recurring.FreeTrial = &mercadopago.FreeTrial{
			Frequency:     plan.TrialFrequency,
			FrequencyType: plan.TrialFrequencyType,
		}
	}
	return recurring
}

func inlineRecurring(spec *RecurringSpec) *mercadopago.AutoRecurring {
	recurring := &mercadopago.AutoRecurring{
		Frequency:         spec.Frequency,
		FrequencyType:     spec.FrequencyType,
		TransactionAmount: spec.Amount,
		CurrencyID:        strings.ToUpper(strings.TrimSpace(spec.Currency)),
		StartDate:         spec.StartDate,
		EndDate:           spec.EndDate,
	}
	if spec.Trial != nil {
		recurring.FreeTrial = &mercadopago.FreeTrial{
			Frequency:     spec.Trial.Frequency,
			FrequencyType: spec.Trial.FrequencyType,
		}
	}
	return recurring
}

func createRateLimitKey(userID uint) string {
	return fmt.Sprintf("ratelimit:create:%d", userID)
}

func paymentIdemKey(userID uint, key string) string {
	return fmt.Sprintf("idem:payment:%d:%s", userID, key)
}

func subscriptionIdemKey(userID uint, key string) string {
	return fmt.Sprintf("idem:subscription:%d:%s", userID, key)
}
