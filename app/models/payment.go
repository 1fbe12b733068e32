package models

import "time"

// Payment status vocabulary mirrors the provider's payment states.
const (
	PaymentStatusPending     = "pending"
	PaymentStatusApproved    = "approved"
	PaymentStatusAuthorized  = "authorized"
	PaymentStatusRejected    = "rejected"
	PaymentStatusCancelled   = "cancelled"
	PaymentStatusRefunded    = "refunded"
	PaymentStatusChargedBack = "charged_back"
)

// Payment represents one checkout attempt. ExternalReference is generated
// locally before the provider call and is the primary correlation key for
// asynchronous webhook events; ProviderPaymentID may stay empty until the
// first webhook arrives.
type Payment struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;index" json:"user_id"`
	User              User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	ExternalReference string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"external_reference"`
	ProviderPaymentID string    `gorm:"type:varchar(64);default:'';index" json:"provider_payment_id"`
	PreferenceID      string    `gorm:"type:varchar(128);default:'';index" json:"preference_id"`
	Amount            float64   `gorm:"type:decimal(14,2);not null" json:"amount"`
	Currency          string    `gorm:"type:varchar(8);not null" json:"currency"`
	Status            string    `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	StatusDetail      string    `gorm:"type:varchar(100);default:''" json:"status_detail"`
	PaymentMethod     string    `gorm:"type:varchar(50);default:''" json:"payment_method"`
	MetadataJSON      string    `gorm:"type:text" json:"metadata_json"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsValidPaymentStatus reports whether s belongs to the fixed status vocabulary.
func IsValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusAuthorized,
		PaymentStatusRejected, PaymentStatusCancelled, PaymentStatusRefunded,
		PaymentStatusChargedBack:
		return true
	default:
		return false
	}
}
