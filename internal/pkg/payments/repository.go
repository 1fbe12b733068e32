package payments

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MatiasHerrera/PagoLink/app/models"
)

// Repository provides the DB operations used by the payments service.
type Repository interface {
	CreatePayment(p *models.Payment) error
	GetPaymentByID(id uint) (*models.Payment, error)
	GetPaymentByProviderPaymentID(providerPaymentID string) (*models.Payment, error)
	GetPaymentByExternalReference(ref string) (*models.Payment, error)
	UpdatePayment(p *models.Payment) error
	ListPaymentsByUser(userID uint) ([]models.Payment, error)

	CreateMarketplaceSplit(s *models.MarketplaceSplit) error

	CreateSubscription(sub *models.Subscription) error
	GetSubscriptionByID(id uint) (*models.Subscription, error)
	GetSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error)
	GetSubscriptionByExternalReference(ref string) (*models.Subscription, error)
	UpdateSubscription(sub *models.Subscription) error
	ListSubscriptionsByUser(userID uint) ([]models.Subscription, error)

	CreatePlan(plan *models.Plan) error
	GetPlanByID(id uint) (*models.Plan, error)
	GetPlanByProviderPlanID(providerPlanID string) (*models.Plan, error)
	UpdatePlan(plan *models.Plan) error
	ListPlans() ([]models.Plan, error)

	GetUserByID(id uint) (*models.User, error)
	SetUserProviderCustomerID(userID uint, customerID string) error

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreatePayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) GetPaymentByID(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPaymentByProviderPaymentID(providerPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("provider_payment_id = ?", providerPaymentID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPaymentByExternalReference(ref string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("external_reference = ?", ref).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) UpdatePayment(p *models.Payment) error {
	return r.db.Save(p).Error
}

func (r *gormRepository) ListPaymentsByUser(userID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("user_id = ?", userID).Order("id DESC").Find(&payments).Error
	return payments, err
}

func (r *gormRepository) CreateMarketplaceSplit(s *models.MarketplaceSplit) error {
	return r.db.Create(s).Error
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) GetSubscriptionByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("provider_subscription_id = ?", providerSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByExternalReference(ref string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("external_reference = ?", ref).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpdateSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("id DESC").Find(&subs).Error
	return subs, err
}

func (r *gormRepository) CreatePlan(plan *models.Plan) error {
	return r.db.Create(plan).Error
}

func (r *gormRepository) GetPlanByID(id uint) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) GetPlanByProviderPlanID(providerPlanID string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.Where("provider_plan_id = ?", providerPlanID).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) UpdatePlan(plan *models.Plan) error {
	return r.db.Save(plan).Error
}

func (r *gormRepository) ListPlans() ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.Order("id ASC").Find(&plans).Error
	return plans, err
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) SetUserProviderCustomerID(userID uint, customerID string) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("provider_customer_id", customerID).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_event_id"},
			{Name: "event_type"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider_event_id = ? AND event_type = ?", event.ProviderEventID, event.EventType).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
