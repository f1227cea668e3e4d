package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fight-arena/models"
)

func activeTrades(notional int64) []models.TradeRecord {
	return []models.TradeRecord{{
		Size:  decimal.NewFromInt(notional),
		Price: decimal.NewFromInt(1),
	}}
}

func fairnessInput() FairnessInput {
	return FairnessInput{
		FightID: "f1",
		Participants: [2]FairnessParticipant{
			{UserID: "alice", IP: "1.1.1.1", Trades: activeTrades(100)},
			{UserID: "bob", IP: "2.2.2.2", Trades: activeTrades(100)},
		},
	}
}

func TestEvaluateCleanFight(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())
	assert.Empty(t, engine.Evaluate(fairnessInput()))
}

func TestZeroZero(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())

	in := fairnessInput()
	in.Participants[0].Trades = nil
	in.Participants[1].Trades = nil

	violations := engine.Evaluate(in)
	require.Len(t, violations, 1, "ZERO_ZERO must not double up with MIN_VOLUME")
	assert.Equal(t, models.ViolationZeroZero, violations[0].Code)
	assert.Empty(t, violations[0].FlaggedUserID)
	assert.True(t, engine.ForcesNoContest(violations))
}

func TestSameIPPattern(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())

	in := fairnessInput()
	in.Participants[1].IP = in.Participants[0].IP

	violations := engine.Evaluate(in)
	require.Len(t, violations, 1)
	assert.Equal(t, models.ViolationSameIPPattern, violations[0].Code)
	assert.True(t, engine.ForcesNoContest(violations))
}

func TestSameIPRequiresBothKnown(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())

	in := fairnessInput()
	in.Participants[0].IP = ""
	in.Participants[1].IP = ""

	assert.Empty(t, engine.Evaluate(in), "unknown addresses never match each other")
}

func TestRepeatedMatchup(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())

	in := fairnessInput()
	in.MatchupCount24h = 2
	assert.Empty(t, engine.Evaluate(in), "below the limit")

	in.MatchupCount24h = 3
	violations := engine.Evaluate(in)
	require.Len(t, violations, 1)
	assert.Equal(t, models.ViolationRepeatedMatchup, violations[0].Code)
	assert.Contains(t, violations[0].Message, "3 times")
	assert.True(t, engine.ForcesNoContest(violations))
}

func TestMinVolumeOneSided(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())

	in := fairnessInput()
	in.Participants[1].Trades = activeTrades(5) // $5 < $10 minimum

	violations := engine.Evaluate(in)
	require.Len(t, violations, 1)
	assert.Equal(t, models.ViolationMinVolume, violations[0].Code)
	assert.Equal(t, "bob", violations[0].FlaggedUserID)

	// Policy: one-sided MIN_VOLUME voids the whole fight.
	assert.True(t, engine.ForcesNoContest(violations))
	assert.Empty(t, engine.DisqualifiedUsers(violations))
}

func TestMinVolumeAwardMode(t *testing.T) {
	cfg := DefaultFairnessConfig()
	cfg.MinVolumeVoidsFight = false
	engine := NewFairnessEngine(cfg)

	in := fairnessInput()
	in.Participants[1].Trades = activeTrades(5)

	violations := engine.Evaluate(in)
	require.Len(t, violations, 1)
	assert.False(t, engine.ForcesNoContest(violations))
	assert.Equal(t, map[string]bool{"bob": true}, engine.DisqualifiedUsers(violations))
}

func TestMinVolumeBothSidesAlwaysVoids(t *testing.T) {
	cfg := DefaultFairnessConfig()
	cfg.MinVolumeVoidsFight = false
	engine := NewFairnessEngine(cfg)

	in := fairnessInput()
	in.Participants[0].Trades = activeTrades(3)
	in.Participants[1].Trades = activeTrades(5)

	violations := engine.Evaluate(in)
	require.Len(t, violations, 2)
	assert.True(t, engine.ForcesNoContest(violations), "nobody left to award")
}

func TestExternalTradesDisqualifiesFlaggedOnly(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())

	in := fairnessInput()
	in.Participants[0].ExternalTradeIDs = []string{"x1", "x2"}

	violations := engine.Evaluate(in)
	require.Len(t, violations, 1)
	assert.Equal(t, models.ViolationExternalTrades, violations[0].Code)
	assert.Equal(t, "alice", violations[0].FlaggedUserID)
	assert.Contains(t, violations[0].Message, "2 execution(s)")

	assert.False(t, engine.ForcesNoContest(violations))
	assert.Equal(t, map[string]bool{"alice": true}, engine.DisqualifiedUsers(violations))
}

func TestExternalTradesBothSidesVoids(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())

	in := fairnessInput()
	in.Participants[0].ExternalTradeIDs = []string{"x1"}
	in.Participants[1].ExternalTradeIDs = []string{"x2"}

	violations := engine.Evaluate(in)
	require.Len(t, violations, 2)
	assert.True(t, engine.ForcesNoContest(violations))
}

func TestEvaluateOrderIsDeterministic(t *testing.T) {
	engine := NewFairnessEngine(DefaultFairnessConfig())

	in := fairnessInput()
	in.Participants[1].IP = in.Participants[0].IP
	in.MatchupCount24h = 4
	in.Participants[0].ExternalTradeIDs = []string{"x1"}

	violations := engine.Evaluate(in)
	require.Len(t, violations, 3)
	assert.Equal(t, models.ViolationSameIPPattern, violations[0].Code)
	assert.Equal(t, models.ViolationRepeatedMatchup, violations[1].Code)
	assert.Equal(t, models.ViolationExternalTrades, violations[2].Code)
}
