package payments

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/MatiasHerrera/PagoLink/app/models"
	"github.com/MatiasHerrera/PagoLink/internal/pkg/mercadopago"
)

// fakeRepo is an in-memory Repository that mimics GORM semantics: lookups
// miss with gorm.ErrRecordNotFound and updates replace the stored record.
type fakeRepo struct {
	mu     sync.Mutex
	nextID uint

	users    map[uint]*models.User
	payments map[uint]*models.Payment
	subs     map[uint]*models.Subscription
	plans    map[uint]*models.Plan
	splits   []*models.MarketplaceSplit
	events   map[string]*models.WebhookEvent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    make(map[uint]*models.User),
		payments: make(map[uint]*models.Payment),
		subs:     make(map[uint]*models.Subscription),
		plans:    make(map[uint]*models.Plan),
		events:   make(map[string]*models.WebhookEvent),
	}
}

func (r *fakeRepo) id() uint {
	r.nextID++
	return r.nextID
}

func (r *fakeRepo) addUser(u *models.User) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == 0 {
		u.ID = r.id()
	}
	cp := *u
	r.users[u.ID] = &cp
	return u
}

func (r *fakeRepo) CreatePayment(p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.id()
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *fakeRepo) GetPaymentByID(id uint) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) GetPaymentByProviderPaymentID(providerPaymentID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ProviderPaymentID == providerPaymentID && providerPaymentID != "" {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetPaymentByExternalReference(ref string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ExternalReference == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) UpdatePayment(p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *fakeRepo) ListPaymentsByUser(userID uint) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateMarketplaceSplit(s *models.MarketplaceSplit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.id()
	cp := *s
	r.splits = append(r.splits, &cp)
	return nil
}

func (r *fakeRepo) CreateSubscription(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.ID = r.id()
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *fakeRepo) GetSubscriptionByID(id uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *fakeRepo) GetSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if sub.ProviderSubscriptionID == providerSubscriptionID && providerSubscriptionID != "" {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetSubscriptionByExternalReference(ref string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if sub.ExternalReference == ref {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) UpdateSubscription(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *fakeRepo) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.subs {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreatePlan(plan *models.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan.ID = r.id()
	cp := *plan
	r.plans[plan.ID] = &cp
	return nil
}

func (r *fakeRepo) GetPlanByID(id uint) (*models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *plan
	return &cp, nil
}

func (r *fakeRepo) GetPlanByProviderPlanID(providerPlanID string) (*models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, plan := range r.plans {
		if plan.ProviderPlanID == providerPlanID {
			cp := *plan
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) UpdatePlan(plan *models.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[plan.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *plan
	r.plans[plan.ID] = &cp
	return nil
}

func (r *fakeRepo) ListPlans() ([]models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Plan
	for _, plan := range r.plans {
		out = append(out, *plan)
	}
	return out, nil
}

func (r *fakeRepo) GetUserByID(id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) SetUserProviderCustomerID(userID uint, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.ProviderCustomerID = customerID
	return nil
}

func eventKey(providerEventID, eventType string) string {
	return providerEventID + "|" + eventType
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := eventKey(event.ProviderEventID, event.EventType)
	if stored, ok := r.events[key]; ok {
		cp := *stored
		return false, &cp, nil
	}
	event.ID = r.id()
	cp := *event
	r.events[key] = &cp
	out := cp
	return true, &out, nil
}

func (r *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeRepo) paymentByExternalRef(t *testing.T, ref string) *models.Payment {
	t.Helper()
	p, err := r.GetPaymentByExternalReference(ref)
	if err != nil {
		t.Fatalf("payment with external reference %q not found", ref)
	}
	return p
}

// fakeProvider is a canned ProviderClient. Lookup maps hold the authoritative
// resources; error fields force failures on specific calls.
type fakeProvider struct {
	mu sync.Mutex

	preferenceCalls  int
	preapprovalCalls int

	prefID string

	payments     map[string]*mercadopago.Payment
	preapprovals map[string]*mercadopago.Preapproval
	plans        map[string]*mercadopago.PreapprovalPlan
	charges      map[string]*mercadopago.AuthorizedPayment
	customers    map[string]*mercadopago.Customer

	getPaymentErr error
	createErr     error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		prefID:       "pref_123",
		payments:     make(map[string]*mercadopago.Payment),
		preapprovals: make(map[string]*mercadopago.Preapproval),
		plans:        make(map[string]*mercadopago.PreapprovalPlan),
		charges:      make(map[string]*mercadopago.AuthorizedPayment),
		customers:    make(map[string]*mercadopago.Customer),
	}
}

func (f *fakeProvider) GetPayment(ctx context.Context, id string) (*mercadopago.Payment, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getPaymentErr != nil {
		return nil, f.getPaymentErr
	}
	p, ok := f.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s not found", id)
	}
	return p, nil
}

func (f *fakeProvider) CreatePreference(ctx context.Context, req *mercadopago.PreferenceRequest, idempotencyKey string) (*mercadopago.Preference, error) {
	_ = ctx
	_ = idempotencyKey
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preferenceCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &mercadopago.Preference{
		ID:                f.prefID,
		InitPoint:         "https://checkout.test/" + f.prefID,
		ExternalReference: req.ExternalReference,
	}, nil
}

func (f *fakeProvider) CreatePreapproval(ctx context.Context, req *mercadopago.PreapprovalRequest, idempotencyKey string) (*mercadopago.Preapproval, error) {
	_ = ctx
	_ = idempotencyKey
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preapprovalCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	pre := &mercadopago.Preapproval{
		ID:                fmt.Sprintf("preapproval_%d", f.preapprovalCalls),
		Status:            "pending",
		Reason:            req.Reason,
		ExternalReference: req.ExternalReference,
		PayerEmail:        req.PayerEmail,
		InitPoint:         "https://checkout.test/preapproval",
	}
	f.preapprovals[pre.ID] = pre
	return pre, nil
}

func (f *fakeProvider) GetPreapproval(ctx context.Context, id string) (*mercadopago.Preapproval, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	pre, ok := f.preapprovals[id]
	if !ok {
		return nil, fmt.Errorf("preapproval %s not found", id)
	}
	return pre, nil
}

func (f *fakeProvider) UpdatePreapproval(ctx context.Context, id string, req *mercadopago.PreapprovalRequest) (*mercadopago.Preapproval, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	pre, ok := f.preapprovals[id]
	if !ok {
		pre = &mercadopago.Preapproval{ID: id}
		f.preapprovals[id] = pre
	}
	if req.Status != "" {
		pre.Status = req.Status
	}
	return pre, nil
}

func (f *fakeProvider) CreatePreapprovalPlan(ctx context.Context, req *mercadopago.PreapprovalPlanRequest) (*mercadopago.PreapprovalPlan, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	plan := &mercadopago.PreapprovalPlan{
		ID:            fmt.Sprintf("provider_plan_%d", len(f.plans)+1),
		Status:        "active",
		Reason:        req.Reason,
		AutoRecurring: req.AutoRecurring,
	}
	f.plans[plan.ID] = plan
	return plan, nil
}

func (f *fakeProvider) GetPreapprovalPlan(ctx context.Context, id string) (*mercadopago.PreapprovalPlan, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	plan, ok := f.plans[id]
	if !ok {
		return nil, fmt.Errorf("preapproval plan %s not found", id)
	}
	return plan, nil
}

func (f *fakeProvider) GetAuthorizedPayment(ctx context.Context, id string) (*mercadopago.AuthorizedPayment, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	charge, ok := f.charges[id]
	if !ok {
		return nil, fmt.Errorf("authorized payment %s not found", id)
	}
	return charge, nil
}

func (f *fakeProvider) SearchCustomerByEmail(ctx context.Context, email string) (*mercadopago.Customer, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customers[email], nil
}

func (f *fakeProvider) CreateCustomer(ctx context.Context, email string) (*mercadopago.Customer, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &mercadopago.Customer{ID: "cust_" + email, Email: email}
	f.customers[email] = c
	return c, nil
}

// stubLimiter answers every check with a fixed verdict.
type stubLimiter struct {
	allow bool
	err   error
}

func (l *stubLimiter) Check(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	_ = ctx
	_ = key
	_ = max
	_ = window
	return l.allow, l.err
}

type testFixture struct {
	service  *Service
	repo     *fakeRepo
	provider *fakeProvider
	store    *MemoryStore
	user     *models.User
}

func newTestFixture(t *testing.T, cfg Config) *testFixture {
	t.Helper()
	repo := newFakeRepo()
	provider := newFakeProvider()
	store := NewMemoryStore()
	t.Cleanup(store.Close)

	if len(cfg.AllowedRedirectHosts) == 0 {
		cfg.AllowedRedirectHosts = []string{"shop.example.com"}
	}
	cfg.RequireHTTPSRedirects = true

	user := repo.addUser(&models.User{
		Name:   "buyer",
		Email:  "buyer@example.com",
		Status: models.STATUS_ACTIVE,
	})

	return &testFixture{
		service:  NewService(repo, provider, store, NewMemoryLimiter(), cfg),
		repo:     repo,
		provider: provider,
		store:    store,
		user:     user,
	}
}
