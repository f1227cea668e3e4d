package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fight-arena/models"
)

// deadVenue is a venue client pointed at nothing; position and fill fetches
// fail fast, which the lifecycle and ticker must absorb.
func deadVenue() *VenueClient {
	return &VenueClient{
		BaseURL:    "http://127.0.0.1:1",
		Token:      "test",
		HTTPClient: &http.Client{Timeout: 50 * time.Millisecond},
	}
}

func newLifecycleService(db *gorm.DB) (*LifecycleService, *Hub) {
	hub := NewHub()
	venue := deadVenue()
	ticker := NewTickScheduler(db, venue, hub)
	prizes := NewPrizePoolService(db, nil)
	referrals := &ReferralService{DB: db, CommissionPct: decimal.NewFromInt(10)}
	settlement := NewSettlementEngine(db, hub, NewFairnessEngine(DefaultFairnessConfig()), prizes, referrals)
	return NewLifecycleService(db, hub, venue, ticker, settlement), hub
}

func TestJoinStartsFightAndNotifiesLobby(t *testing.T) {
	db := newTestDB(t)
	lifecycle, hub := newLifecycleService(db)

	users := []models.ArenaUser{
		{ExternalUserID: "alice", Username: "alice", LastIP: "1.1.1.1"},
		{ExternalUserID: "bob", Username: "bob", LastIP: "2.2.2.2"},
	}
	require.NoError(t, db.Create(&users).Error)

	arena := hub.Subscribe(RoomArena)
	defer arena.Close()

	fight, err := lifecycle.CreateFight(context.Background(), "alice", decimal.NewFromInt(100), 30, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, NoticeFightCreated, recvType(t, arena))

	_, err = lifecycle.Join(context.Background(), fight.ID, "alice", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrSelfJoin)

	live, err := lifecycle.Join(context.Background(), fight.ID, "bob", decimal.NewFromInt(2))
	require.NoError(t, err)
	defer lifecycle.Ticker.Stop(fight.ID)
	assert.Equal(t, models.FightStatusLive, live.Status)
	require.NotNil(t, live.EndsAt)

	// The lobby sees the start notice and the refreshed fight object.
	assert.Equal(t, NoticeFightStarted, recvType(t, arena))
	assert.Equal(t, NoticeFightUpdated, recvType(t, arena))

	// Both seats carry the address snapshot taken at the LIVE transition.
	var seats []models.FightParticipant
	require.NoError(t, db.Where("fight_id = ?", fight.ID).Order("user_id ASC").Find(&seats).Error)
	require.Len(t, seats, 2)
	assert.Equal(t, "alice", seats[0].UserID)
	assert.Equal(t, "1.1.1.1", seats[0].EntryIP)
	assert.Equal(t, "bob", seats[1].UserID)
	assert.Equal(t, "2.2.2.2", seats[1].EntryIP)
}

func TestExpireReleasesEntryForSettledFight(t *testing.T) {
	db := newTestDB(t)
	lifecycle, _ := newLifecycleService(db)

	ended := time.Now().UTC().Add(-time.Minute)
	fight := models.Fight{
		CreatorID:       "alice",
		StakeUsdc:       decimal.NewFromInt(100),
		DurationMinutes: 5,
		Status:          models.FightStatusFinished,
		EndedAt:         &ended,
	}
	require.NoError(t, db.Create(&fight).Error)

	// Leftover from a transition that settled through another path.
	lifecycle.entry(fight.ID)

	lifecycle.Expire(context.Background(), fight.ID)

	lifecycle.arenaMu.Lock()
	_, ok := lifecycle.entries[fight.ID]
	lifecycle.arenaMu.Unlock()
	assert.False(t, ok, "terminal fight must not retain an arena entry")
}
