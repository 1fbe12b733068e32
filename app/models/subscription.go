package models

import "time"

const (
	SubscriptionStatusPending    = "pending"
	SubscriptionStatusAuthorized = "authorized"
	SubscriptionStatusPaused     = "paused"
	SubscriptionStatusCancelled  = "cancelled"
)

// Subscription represents a recurring-billing agreement. It is created in
// pending state alongside the provider preapproval and transitions only via
// verified webhooks or an explicit cancel action. ExternalReference is set on
// the provider resource at creation time so recurring charges can be
// correlated back without relying on provider-assigned ids.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"not null;index" json:"user_id"`
	User                   User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	ProviderSubscriptionID string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"provider_subscription_id"`
	ExternalReference      string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"external_reference"`
	PlanID                 *uint      `gorm:"index" json:"plan_id,omitempty"`
	Reason                 string     `gorm:"type:varchar(200);default:''" json:"reason"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	NextPaymentDate        *time.Time `gorm:"type:timestamp;default:null" json:"next_payment_date,omitempty"`
	LastPaymentDate        *time.Time `gorm:"type:timestamp;default:null" json:"last_payment_date,omitempty"`
	SummarizedJSON         string     `gorm:"type:text" json:"summarized_json"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsValidSubscriptionStatus reports whether s belongs to the fixed vocabulary.
func IsValidSubscriptionStatus(s string) bool {
	switch s {
	case SubscriptionStatusPending, SubscriptionStatusAuthorized,
		SubscriptionStatusPaused, SubscriptionStatusCancelled:
		return true
	default:
		return false
	}
}
