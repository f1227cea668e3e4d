package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReferralPayout is a commission paid to a referring user from a referred
// user's trading fees. Exactly one row per qualifying fee event — FeeEventID
// is the idempotency key, so a retried settlement can never double-pay.
type ReferralPayout struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID string `gorm:"index;not null" json:"referrer_id"`
	ReferredID string `gorm:"index;not null" json:"referred_id"`

	FeeEventID string `gorm:"uniqueIndex;not null" json:"fee_event_id"`
	FightID    string `gorm:"index" json:"fight_id,omitempty"`

	FeeUsdc       decimal.Decimal `gorm:"type:decimal(20,6)" json:"fee_usdc"`
	CommissionPct decimal.Decimal `gorm:"type:decimal(10,4)" json:"commission_pct"`
	AmountUsdc    decimal.Decimal `gorm:"type:decimal(20,6)" json:"amount_usdc"`

	Timestamps
}

func (r *ReferralPayout) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
