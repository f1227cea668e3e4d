package services

import (
	"github.com/shopspring/decimal"

	"fight-arena/models"
)

var hundred = decimal.NewFromInt(100)

// ScoreSnapshot is one participant's live score at a single sample point.
type ScoreSnapshot struct {
	UserID      string
	PnlPercent  decimal.Decimal
	ScoreUsdc   decimal.Decimal
	TradesCount int
}

// ScoreParticipant converts a participant's trade history since fight start
// into (pnlPercent, scoreUsdc).
//
// Only realized (closing) trades count: unrealized gains are deliberately
// excluded so the result never depends on a volatile mark price at the exact
// sample boundary. Fees are already embedded in the venue's realized PnL, so
// nothing is re-subtracted here. marginAtEntry is the margin the participant
// posted for the fight (the stake). With zero trades both values are zero.
func ScoreParticipant(trades []models.TradeRecord, marginAtEntry decimal.Decimal) (pnlPercent, scoreUsdc decimal.Decimal) {
	if len(trades) == 0 {
		return decimal.Zero, decimal.Zero
	}

	for _, t := range trades {
		if t.IsClosing() {
			scoreUsdc = scoreUsdc.Add(*t.RealizedPnl)
		}
	}

	if marginAtEntry.IsPositive() {
		pnlPercent = scoreUsdc.Div(marginAtEntry).Mul(hundred)
	}
	return pnlPercent, scoreUsdc
}

// SnapshotFor scores one participant and packages the result for ticking.
func SnapshotFor(userID string, trades []models.TradeRecord, marginAtEntry decimal.Decimal) ScoreSnapshot {
	pct, usdc := ScoreParticipant(trades, marginAtEntry)
	return ScoreSnapshot{
		UserID:      userID,
		PnlPercent:  pct,
		ScoreUsdc:   usdc,
		TradesCount: len(trades),
	}
}

// Leader returns the user id with the strictly greater pnlPercent, or nil when
// the two are equal.
func Leader(a, b ScoreSnapshot) *string {
	switch a.PnlPercent.Cmp(b.PnlPercent) {
	case 1:
		return &a.UserID
	case -1:
		return &b.UserID
	}
	return nil
}

// TotalNotional sums size × price over the participant's trades.
func TotalNotional(trades []models.TradeRecord) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		total = total.Add(t.Notional())
	}
	return total
}

// TotalFees sums the venue fees over the participant's trades. Feeds the
// weekly prize pool and referral commissions; scoring itself never touches it.
func TotalFees(trades []models.TradeRecord) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		total = total.Add(t.Fee)
	}
	return total
}
