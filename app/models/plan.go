package models

import "time"

const (
	PlanFrequencyTypeDays   = "days"
	PlanFrequencyTypeMonths = "months"
)

// Plan is a reusable billing template. Repetitions of 0 means the
// subscription bills indefinitely.
type Plan struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	ProviderPlanID     string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"provider_plan_id"`
	Name               string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=3,max=150"`
	Frequency          int       `gorm:"not null" json:"frequency" validate:"required,min=1"`
	FrequencyType      string    `gorm:"type:varchar(16);not null" json:"frequency_type" validate:"oneof=days months"`
	Amount             float64   `gorm:"type:decimal(14,2);not null" json:"amount"`
	Currency           string    `gorm:"type:varchar(8);not null" json:"currency"`
	TrialFrequency     int       `gorm:"default:0" json:"trial_frequency"`
	TrialFrequencyType string    `gorm:"type:varchar(16);default:''" json:"trial_frequency_type"`
	Repetitions        int       `gorm:"default:0" json:"repetitions"`
	Status             string    `gorm:"type:varchar(32);not null;default:'active'" json:"status"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
