package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"fight-arena/models"
)

func pnl(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestScoreParticipantSumsRealizedPnlOnly(t *testing.T) {
	trades := []models.TradeRecord{
		{RealizedPnl: pnl("50")},
		{RealizedPnl: pnl("-20.5")},
		{RealizedPnl: nil}, // open position, not realized
	}

	pct, score := ScoreParticipant(trades, decimal.NewFromInt(100))

	assert.True(t, score.Equal(decimal.RequireFromString("29.5")), "score=%s", score)
	assert.True(t, pct.Equal(decimal.RequireFromString("29.5")), "pct=%s", pct)
}

func TestScoreParticipantZeroTrades(t *testing.T) {
	pct, score := ScoreParticipant(nil, decimal.NewFromInt(100))
	assert.True(t, score.IsZero())
	assert.True(t, pct.IsZero())
}

func TestScoreParticipantZeroMargin(t *testing.T) {
	trades := []models.TradeRecord{{RealizedPnl: pnl("10")}}
	pct, score := ScoreParticipant(trades, decimal.Zero)
	assert.True(t, score.Equal(decimal.NewFromInt(10)))
	assert.True(t, pct.IsZero(), "no margin means no percentage")
}

func TestScoreParticipantNegativeTotal(t *testing.T) {
	trades := []models.TradeRecord{{RealizedPnl: pnl("-40")}}
	pct, score := ScoreParticipant(trades, decimal.NewFromInt(200))
	assert.True(t, score.Equal(decimal.NewFromInt(-40)))
	assert.True(t, pct.Equal(decimal.NewFromInt(-20)))
}

func TestLeader(t *testing.T) {
	a := ScoreSnapshot{UserID: "alice", PnlPercent: decimal.NewFromInt(5)}
	b := ScoreSnapshot{UserID: "bob", PnlPercent: decimal.NewFromInt(3)}

	leader := Leader(a, b)
	assert.NotNil(t, leader)
	assert.Equal(t, "alice", *leader)

	leader = Leader(b, a)
	assert.NotNil(t, leader)
	assert.Equal(t, "alice", *leader)

	b.PnlPercent = decimal.RequireFromString("5.000") // same value, different exponent
	assert.Nil(t, Leader(a, b), "equal percentages have no leader")
}

func TestTotalNotionalAndFees(t *testing.T) {
	trades := []models.TradeRecord{
		{Size: decimal.NewFromInt(2), Price: decimal.NewFromInt(100), Fee: decimal.RequireFromString("0.2")},
		{Size: decimal.RequireFromString("0.5"), Price: decimal.NewFromInt(40), Fee: decimal.RequireFromString("0.02")},
	}

	assert.True(t, TotalNotional(trades).Equal(decimal.NewFromInt(220)))
	assert.True(t, TotalFees(trades).Equal(decimal.RequireFromString("0.22")))
	assert.True(t, TotalNotional(nil).IsZero())
}
