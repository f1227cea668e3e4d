package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TradeRecord is one execution attributed to a participant during the fight
// window. Rows are created by the trade feed sync, owned by the fight for its
// lifetime and read-only afterward. VenueExecID dedupes redelivered fills.
type TradeRecord struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	FightID string `gorm:"index;not null" json:"fight_id"`
	UserID  string `gorm:"index;not null" json:"user_id"`

	VenueExecID string `gorm:"uniqueIndex;not null" json:"venue_exec_id"`

	Symbol   string          `gorm:"not null" json:"symbol"`
	Side     string          `gorm:"type:varchar(8)" json:"side"` // buy / sell
	Size     decimal.Decimal `gorm:"type:decimal(20,8)" json:"size"`
	Price    decimal.Decimal `gorm:"type:decimal(20,8)" json:"price"`
	Fee      decimal.Decimal `gorm:"type:decimal(20,8)" json:"fee"`
	Leverage decimal.Decimal `gorm:"type:decimal(10,2);default:1" json:"leverage"`

	// RealizedPnl is set only on closing executions. Fees are already embedded
	// in the venue's realized PnL figure.
	RealizedPnl *decimal.Decimal `gorm:"type:decimal(20,8)" json:"realized_pnl,omitempty"`

	// OrderSource tags where the order originated on the venue. Anything other
	// than SourceFightOrder marks the execution as external to the sanctioned
	// order path.
	OrderSource string `gorm:"type:varchar(16);default:'fight'" json:"order_source"`

	ExecutedAt time.Time `gorm:"index;not null" json:"executed_at"`

	Timestamps
}

const SourceFightOrder = "fight"

func (t *TradeRecord) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Notional is the execution's size × price.
func (t *TradeRecord) Notional() decimal.Decimal {
	return t.Size.Mul(t.Price)
}

// IsClosing reports whether the execution realized PnL.
func (t *TradeRecord) IsClosing() bool {
	return t.RealizedPnl != nil
}
