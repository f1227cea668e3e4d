package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FightStatus is the lifecycle state of a fight.
// WAITING and LIVE are the only non-terminal states.
type FightStatus string

const (
	FightStatusWaiting   FightStatus = "WAITING"
	FightStatusLive      FightStatus = "LIVE"
	FightStatusFinished  FightStatus = "FINISHED"
	FightStatusCancelled FightStatus = "CANCELLED"
	FightStatusNoContest FightStatus = "NO_CONTEST"
)

// IsTerminal reports whether no further mutation of the fight or its
// participants' scores is permitted.
func (s FightStatus) IsTerminal() bool {
	switch s {
	case FightStatusFinished, FightStatusCancelled, FightStatusNoContest:
		return true
	}
	return false
}

// Fight is a timed, staked, two-participant trading competition.
// Stake and duration are immutable once set. EndedAt is set iff status is terminal.
type Fight struct {
	ID              string          `gorm:"primaryKey;type:uuid" json:"id"`
	CreatorID       string          `gorm:"index;not null" json:"creator_id"`
	StakeUsdc       decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"stake_usdc"`
	DurationMinutes int             `gorm:"not null" json:"duration_minutes"`

	Status    FightStatus `gorm:"type:varchar(16);default:'WAITING';index" json:"status"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	EndsAt    *time.Time  `gorm:"index" json:"ends_at,omitempty"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`

	WinnerID *string `gorm:"index" json:"winner_id,omitempty"`
	IsDraw   bool    `gorm:"default:false" json:"is_draw"`

	Participants []FightParticipant `gorm:"foreignKey:FightID" json:"participants,omitempty"`
	Violations   []Violation        `gorm:"foreignKey:FightID" json:"violations,omitempty"`

	Timestamps
}

func (f *Fight) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// ParticipantFor returns the participant slot for userID, or nil.
func (f *Fight) ParticipantFor(userID string) *FightParticipant {
	for i := range f.Participants {
		if f.Participants[i].UserID == userID {
			return &f.Participants[i]
		}
	}
	return nil
}

// FightParticipant is one of exactly two seats in a fight.
// Final scores are written once by settlement and never mutated afterward.
type FightParticipant struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	FightID string `gorm:"index;not null" json:"fight_id"`
	UserID  string `gorm:"index;not null" json:"user_id"`

	Leverage decimal.Decimal `gorm:"type:decimal(10,2);default:1" json:"leverage"`

	// EntrySnapshotJSON holds the venue positions open at the moment the fight
	// went LIVE, so scoring excludes exposure carried into the window.
	EntrySnapshotJSON string `gorm:"type:text" json:"entry_snapshot_json,omitempty"`

	// EntryIP is the participant's last known network address captured when the
	// fight went LIVE. Fairness compares these snapshots, not whatever address
	// the profile mirror reports at settlement time.
	EntryIP string `gorm:"type:varchar(64)" json:"entry_ip,omitempty"`

	TradesCount int `gorm:"default:0" json:"trades_count"`

	// Final scores keep full precision in storage; the presentation layer
	// renders the percentage to 4 decimal digits.
	FinalPnlPercent decimal.Decimal `gorm:"type:decimal(30,12);default:0" json:"final_pnl_percent"`
	FinalScoreUsdc  decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"final_score_usdc"`

	HasExternalTrades    bool   `gorm:"default:false" json:"has_external_trades"`
	ExternalTradeIDsJSON string `gorm:"type:text" json:"external_trade_ids_json,omitempty"`

	Timestamps
}

func (p *FightParticipant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
