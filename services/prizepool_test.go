package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowBounds(t *testing.T) {
	// Wednesday mid-week
	start, end := WindowBounds(time.Date(2026, 8, 19, 15, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), end)

	// Sunday belongs to the week that started the previous Monday
	start, _ = WindowBounds(time.Date(2026, 8, 23, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), start)

	// Monday 00:00 starts its own window
	start, end = WindowBounds(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), end)

	// Non-UTC input lands in the UTC week
	loc := time.FixedZone("UTC+9", 9*3600)
	start, _ = WindowBounds(time.Date(2026, 8, 24, 5, 0, 0, 0, loc)) // 2026-08-23 20:00 UTC, still Sunday
	assert.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), start)
}

func TestWindowSlug(t *testing.T) {
	start, _ := WindowBounds(time.Date(2026, 8, 19, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "prize-week-2026-08-17", WindowSlug(start))
}

func TestComputeRankAmounts(t *testing.T) {
	amounts := ComputeRankAmounts(decimal.NewFromInt(1000), 5)
	require.Len(t, amounts, 5)
	assert.True(t, amounts[0].Equal(decimal.NewFromInt(400)))
	assert.True(t, amounts[1].Equal(decimal.NewFromInt(250)))
	assert.True(t, amounts[2].Equal(decimal.NewFromInt(150)))
	assert.True(t, amounts[3].Equal(decimal.NewFromInt(100)))
	assert.True(t, amounts[4].Equal(decimal.NewFromInt(50)))
}

func TestComputeRankAmountsFewerWinners(t *testing.T) {
	amounts := ComputeRankAmounts(decimal.NewFromInt(1000), 2)
	require.Len(t, amounts, 2)
	assert.True(t, amounts[0].Equal(decimal.NewFromInt(400)))
	assert.True(t, amounts[1].Equal(decimal.NewFromInt(250)))
}

func TestComputeRankAmountsClampsToTable(t *testing.T) {
	amounts := ComputeRankAmounts(decimal.NewFromInt(1000), 9)
	assert.Len(t, amounts, 5)
}

func TestComputeRankAmountsNeverExceedsPool(t *testing.T) {
	pool := decimal.RequireFromString("33.333333")
	amounts := ComputeRankAmounts(pool, 5)

	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(a)
		assert.True(t, a.Equal(a.RoundFloor(6)), "amounts carry at most 6 decimals")
	}
	assert.True(t, sum.LessThanOrEqual(pool), "sum %s exceeds pool %s", sum, pool)
}

func TestRankSharePct(t *testing.T) {
	assert.True(t, RankSharePct(1).Equal(decimal.NewFromInt(40)))
	assert.True(t, RankSharePct(5).Equal(decimal.NewFromInt(5)))
	assert.True(t, RankSharePct(0).IsZero())
	assert.True(t, RankSharePct(6).IsZero())
}

func TestClaimErrorFormat(t *testing.T) {
	err := &ClaimError{Code: ClaimCodeAlreadyClaimed, Message: "This prize has already been claimed."}
	assert.Equal(t, "ALREADY_CLAIMED: This prize has already been claimed.", err.Error())
}
