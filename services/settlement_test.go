package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fight-arena/models"
)

func snap(userID string, score string) ScoreSnapshot {
	s := decimal.RequireFromString(score)
	return ScoreSnapshot{
		UserID:     userID,
		ScoreUsdc:  s,
		PnlPercent: s, // percent is irrelevant to the outcome decision
	}
}

func TestDecideOutcomeWinnerByAbsoluteScore(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())

	status, winner, draw := DecideOutcome(engine, snap("alice", "12.5"), snap("bob", "3"), nil, false)
	assert.Equal(t, models.FightStatusFinished, status)
	require.NotNil(t, winner)
	assert.Equal(t, "alice", *winner)
	assert.False(t, draw)

	status, winner, draw = DecideOutcome(engine, snap("alice", "-7"), snap("bob", "-2"), nil, false)
	assert.Equal(t, models.FightStatusFinished, status)
	require.NotNil(t, winner)
	assert.Equal(t, "bob", *winner, "less negative realized PnL wins")
	assert.False(t, draw)
}

func TestDecideOutcomeDraw(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())

	status, winner, draw := DecideOutcome(engine, snap("alice", "5.0"), snap("bob", "5"), nil, false)
	assert.Equal(t, models.FightStatusFinished, status)
	assert.Nil(t, winner)
	assert.True(t, draw)
}

func TestDecideOutcomeVoidingViolation(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())
	violations := []models.Violation{{Code: models.ViolationZeroZero}}

	status, winner, draw := DecideOutcome(engine, snap("alice", "10"), snap("bob", "3"), violations, false)
	assert.Equal(t, models.FightStatusNoContest, status)
	assert.Nil(t, winner)
	assert.False(t, draw)
}

func TestDecideOutcomeDisqualificationAwardsOpponent(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())
	violations := []models.Violation{{Code: models.ViolationExternalTrades, FlaggedUserID: "alice"}}

	// Alice leads on score but is barred from winning.
	status, winner, draw := DecideOutcome(engine, snap("alice", "10"), snap("bob", "3"), violations, false)
	assert.Equal(t, models.FightStatusFinished, status)
	require.NotNil(t, winner)
	assert.Equal(t, "bob", *winner)
	assert.False(t, draw)
}

func TestDecideOutcomeBothDisqualified(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())
	violations := []models.Violation{
		{Code: models.ViolationExternalTrades, FlaggedUserID: "alice"},
		{Code: models.ViolationExternalTrades, FlaggedUserID: "bob"},
	}

	status, winner, _ := DecideOutcome(engine, snap("alice", "10"), snap("bob", "3"), violations, false)
	assert.Equal(t, models.FightStatusNoContest, status)
	assert.Nil(t, winner)
}

func TestDecideOutcomeAbortForcesNoContest(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())

	status, winner, draw := DecideOutcome(engine, snap("alice", "10"), snap("bob", "3"), nil, true)
	assert.Equal(t, models.FightStatusNoContest, status)
	assert.Nil(t, winner)
	assert.False(t, draw)
}

func TestCommissionAmount(t *testing.T) {
	got := CommissionAmount(decimal.RequireFromString("12.345678"), decimal.NewFromInt(10))
	assert.True(t, got.Equal(decimal.RequireFromString("1.234568")), "got %s", got)

	got = CommissionAmount(decimal.NewFromInt(100), decimal.NewFromInt(10))
	assert.True(t, got.Equal(decimal.NewFromInt(10)))

	got = CommissionAmount(decimal.Zero, decimal.NewFromInt(10))
	assert.True(t, got.IsZero())
}

func TestFeeEventID(t *testing.T) {
	assert.Equal(t, "f1:alice", FeeEventID("f1", "alice"))
}
