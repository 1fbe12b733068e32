package models

import "time"

// MarketplaceSplit is the optional one-to-one companion to a Payment when the
// proceeds are divided between the platform and a third-party collector.
// ApplicationFee is always strictly less than the payment amount.
type MarketplaceSplit struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PaymentID      uint      `gorm:"not null;uniqueIndex" json:"payment_id"`
	Payment        Payment   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	CollectorID    string    `gorm:"type:varchar(64);not null" json:"collector_id"`
	FeeAmount      float64   `gorm:"type:decimal(14,2);default:0" json:"fee_amount"`
	FeePercent     float64   `gorm:"type:decimal(5,2);default:0" json:"fee_percent"`
	ApplicationFee float64   `gorm:"type:decimal(14,2);not null" json:"application_fee"`
	NetAmount      float64   `gorm:"type:decimal(14,2);not null" json:"net_amount"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
