package models

import (
	"time"

	"github.com/google/uuid"
	gorm "gorm.io/gorm"
)

// ArenaUser is a local snapshot of user data the engine needs for fairness
// checks and referral attribution. Owned by the fight service, populated by
// the user sync worker from the profile service.
type ArenaUser struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Username       string `gorm:"index;not null" json:"username"`

	// ReferrerID is the ExternalUserID of whoever referred this user, if any.
	ReferrerID *string `gorm:"index" json:"referrer_id,omitempty"`

	// LastIP is the originating network address seen on the user's most recent
	// session. Feeds the SAME_IP_PATTERN collusion heuristic.
	LastIP     string     `json:"last_ip,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`

	IsBanned bool `gorm:"default:false" json:"is_banned"`

	Timestamps
}

func (u *ArenaUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
