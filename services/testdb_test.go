package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fight-arena/models"
)

// newTestDB opens a throwaway sqlite database with the full schema. A single
// pooled connection keeps the file serialized under the async post-settlement
// work.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "arena.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Fight{},
		&models.FightParticipant{},
		&models.TradeRecord{},
		&models.Violation{},
		&models.PrizeDistribution{},
		&models.PrizeRank{},
		&models.WeeklyStanding{},
		&models.Prize{},
		&models.ReferralPayout{},
		&models.ArenaUser{},
	))
	return db
}

// seedLiveFight stores a LIVE alice-vs-bob fight past its end time, with one
// closing trade per side and bob referred by carol. Returns the fight id.
func seedLiveFight(t *testing.T, db *gorm.DB, aliceIP, bobIP string) string {
	t.Helper()

	now := time.Now().UTC()
	started := now.Add(-30 * time.Minute)
	ends := now.Add(-1 * time.Minute)

	fight := models.Fight{
		CreatorID:       "alice",
		StakeUsdc:       decimal.NewFromInt(100),
		DurationMinutes: 29,
		Status:          models.FightStatusLive,
		StartedAt:       &started,
		EndsAt:          &ends,
	}
	require.NoError(t, db.Create(&fight).Error)

	seats := []models.FightParticipant{
		{FightID: fight.ID, UserID: "alice", Leverage: decimal.NewFromInt(1), EntrySnapshotJSON: "[]", EntryIP: aliceIP},
		{FightID: fight.ID, UserID: "bob", Leverage: decimal.NewFromInt(1), EntrySnapshotJSON: "[]", EntryIP: bobIP},
	}
	require.NoError(t, db.Create(&seats).Error)

	carol := "carol"
	users := []models.ArenaUser{
		{ExternalUserID: "alice", Username: "alice", LastIP: aliceIP},
		{ExternalUserID: "bob", Username: "bob", ReferrerID: &carol, LastIP: bobIP},
		{ExternalUserID: "carol", Username: "carol"},
	}
	require.NoError(t, db.Create(&users).Error)

	trades := []models.TradeRecord{
		{
			FightID: fight.ID, UserID: "alice", VenueExecID: uuid.NewString(),
			Symbol: "BTC-PERP", Side: "buy",
			Size: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
			Fee: decimal.NewFromInt(1), Leverage: decimal.NewFromInt(1),
			RealizedPnl: pnl("50"), OrderSource: models.SourceFightOrder,
			ExecutedAt: started.Add(5 * time.Minute),
		},
		{
			FightID: fight.ID, UserID: "bob", VenueExecID: uuid.NewString(),
			Symbol: "ETH-PERP", Side: "sell",
			Size: decimal.NewFromInt(1), Price: decimal.NewFromInt(50),
			Fee: decimal.NewFromInt(2), Leverage: decimal.NewFromInt(1),
			RealizedPnl: pnl("-10"), OrderSource: models.SourceFightOrder,
			ExecutedAt: started.Add(10 * time.Minute),
		},
	}
	require.NoError(t, db.Create(&trades).Error)

	return fight.ID
}

func newSettlementEngine(db *gorm.DB) *SettlementEngine {
	prizes := NewPrizePoolService(db, nil)
	referrals := &ReferralService{DB: db, CommissionPct: decimal.NewFromInt(10)}
	return NewSettlementEngine(db, NewHub(), NewFairnessEngine(DefaultFairnessConfig()), prizes, referrals)
}
