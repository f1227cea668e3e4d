package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ViolationCode enumerates the fairness rules. The codes are part of the
// public contract and map to fixed user-facing messages.
type ViolationCode string

const (
	ViolationZeroZero        ViolationCode = "ZERO_ZERO"
	ViolationSameIPPattern   ViolationCode = "SAME_IP_PATTERN"
	ViolationRepeatedMatchup ViolationCode = "REPEATED_MATCHUP"
	ViolationMinVolume       ViolationCode = "MIN_VOLUME"
	ViolationExternalTrades  ViolationCode = "EXTERNAL_TRADES"
)

// Violation is produced only by the fairness rule engine and never mutated.
type Violation struct {
	ID      string        `gorm:"primaryKey;type:uuid" json:"id"`
	FightID string        `gorm:"index;not null" json:"fight_id"`
	Code    ViolationCode `gorm:"type:varchar(32);not null" json:"code"`
	Message string        `gorm:"type:text;not null" json:"message"`

	// FlaggedUserID is set for rules that single out one participant
	// (MIN_VOLUME, EXTERNAL_TRADES); empty for fight-wide rules.
	FlaggedUserID string `gorm:"index" json:"flagged_user_id,omitempty"`

	Timestamps
}

func (v *Violation) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
