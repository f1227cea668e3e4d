package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PrizeWindowStatus is the publishing status of a weekly prize window.
type PrizeWindowStatus string

const (
	PrizeWindowOpen        PrizeWindowStatus = "open"
	PrizeWindowFinalized   PrizeWindowStatus = "finalized"
	PrizeWindowDistributed PrizeWindowStatus = "distributed"
)

// PrizeDistribution is one weekly prize-pool window. The pool is funded from a
// fixed cut of the trading fees collected during the window.
type PrizeDistribution struct {
	ID   string `gorm:"primaryKey;type:uuid" json:"id"`
	Slug string `gorm:"uniqueIndex;not null" json:"slug"` // e.g. prize-week-2026-08-17

	WindowStart time.Time `gorm:"index;not null" json:"window_start"`
	WindowEnd   time.Time `gorm:"index;not null" json:"window_end"`

	TotalFeesUsdc decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"total_fees_usdc"`
	PoolUsdc      decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"pool_usdc"`

	Status PrizeWindowStatus `gorm:"type:varchar(16);default:'open';index" json:"status"`

	Ranks []PrizeRank `gorm:"foreignKey:DistributionID" json:"ranks,omitempty"`

	Timestamps
}

func (d *PrizeDistribution) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// PrizeRank is one row of the ranked payout table for a window. Percentage
// shares across all ranks of one window never exceed 100, and the computed
// amounts sum to the pool total within rounding epsilon.
type PrizeRank struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	DistributionID string `gorm:"index;not null" json:"distribution_id"`
	UserID         string `gorm:"index;not null" json:"user_id"`

	Rank       int             `gorm:"not null" json:"rank"`
	SharePct   decimal.Decimal `gorm:"type:decimal(10,4)" json:"share_pct"`
	AmountUsdc decimal.Decimal `gorm:"type:decimal(20,6)" json:"amount_usdc"`

	Timestamps
}

func (r *PrizeRank) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// WeeklyStanding accumulates a user's settled scores inside one window.
// Updated by every fight's settlement as a commutative merge, so fights may
// settle in any order.
type WeeklyStanding struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	DistributionID string `gorm:"uniqueIndex:idx_standing_window_user;not null" json:"distribution_id"`
	UserID         string `gorm:"uniqueIndex:idx_standing_window_user;not null" json:"user_id"`

	TotalScoreUsdc decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"total_score_usdc"`
	FightsCounted  int             `gorm:"default:0" json:"fights_counted"`

	Timestamps
}

func (s *WeeklyStanding) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// PrizeStatus tracks an individual user prize from earned to paid out.
type PrizeStatus string

const (
	PrizeStatusEarned      PrizeStatus = "earned"
	PrizeStatusClaiming    PrizeStatus = "claiming"
	PrizeStatusDistributed PrizeStatus = "distributed"
)

// Prize is a claimable per-user payout cut from a finalized window. A claim is
// rejected unless the prize is still in the earned state, which prevents
// double payout.
type Prize struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string `gorm:"uniqueIndex:idx_prize_window_user;not null" json:"user_id"`
	DistributionID string `gorm:"uniqueIndex:idx_prize_window_user;not null" json:"distribution_id"`

	Rank       int             `json:"rank"`
	AmountUsdc decimal.Decimal `gorm:"type:decimal(20,6)" json:"amount_usdc"`

	Status    PrizeStatus `gorm:"type:varchar(16);default:'earned';index" json:"status"`
	ClaimedAt *time.Time  `json:"claimed_at,omitempty"`

	Timestamps
}

func (p *Prize) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
