package services

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fight-arena/models"
)

// TickScheduler samples both participants of every LIVE fight once per fixed
// interval, persists newly seen fills, and publishes tick / lead-change
// events. Each fight gets its own loop goroutine, so ticking for one fight is
// serialized by construction while different fights run in parallel.
type TickScheduler struct {
	DB    *gorm.DB
	Venue *VenueClient
	Hub   *Hub

	// Interval is the per-fight sample cadence; Heartbeat bounds the quiet
	// period after which an unchanged snapshot is re-published anyway.
	Interval  time.Duration
	Heartbeat time.Duration

	mu    sync.Mutex
	stops map[string]chan struct{}
}

func NewTickScheduler(db *gorm.DB, venue *VenueClient, hub *Hub) *TickScheduler {
	return &TickScheduler{
		DB:        db,
		Venue:     venue,
		Hub:       hub,
		Interval:  1 * time.Second,
		Heartbeat: 10 * time.Second,
		stops:     make(map[string]chan struct{}),
	}
}

// Start begins ticking a LIVE fight. gate is the fight's per-entry lock from
// the lifecycle arena: holding it for the duration of each sample makes ticks
// mutually exclusive with state transitions for the same fight.
func (ts *TickScheduler) Start(fight models.Fight, participants []models.FightParticipant, gate *sync.Mutex) {
	ts.mu.Lock()
	if _, running := ts.stops[fight.ID]; running {
		ts.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	ts.stops[fight.ID] = stop
	ts.mu.Unlock()

	log.Printf("⏱️ [TICKER] Started ticking fight %s", fight.ID)
	go ts.loop(fight, participants, gate, stop)
}

// Stop halts ticking for a fight id. It must be called before (or atomically
// with) settlement so a final tick can never race a decided fight. Idempotent.
func (ts *TickScheduler) Stop(fightID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if stop, ok := ts.stops[fightID]; ok {
		close(stop)
		delete(ts.stops, fightID)
		log.Printf("⏱️ [TICKER] Stopped ticking fight %s", fightID)
	}
}

func (ts *TickScheduler) loop(fight models.Fight, participants []models.FightParticipant, gate *sync.Mutex, stop chan struct{}) {
	ticker := time.NewTicker(ts.Interval)
	defer ticker.Stop()

	seen := make(map[string]bool) // venue exec ids already ingested
	var last *PnlTickEvent
	lastPublished := time.Now()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			gate.Lock()
			// A transition may have fired while we waited on the gate; never
			// publish a stale tick after the fight is decided.
			select {
			case <-stop:
				gate.Unlock()
				return
			default:
			}

			tick, ok := ts.sample(&fight, participants, seen)
			gate.Unlock()
			if !ok {
				continue
			}

			if last != nil && !tickChanged(*last, *tick) && time.Since(lastPublished) < ts.Heartbeat {
				continue
			}

			if last != nil && leaderChanged(last.Leader, tick.Leader) {
				ts.Hub.Publish(LeadChangedEvent{FightID: fight.ID, NewLeader: tick.Leader})
			}

			ts.Hub.Publish(*tick)
			last = tick
			lastPublished = time.Now()
		}
	}
}

// sample fetches fresh fills for both participants, persists the new ones and
// computes the tick snapshot. A transient feed failure skips this fight's
// sample and is retried on the next interval — it is never fatal and never
// stalls other fights.
func (ts *TickScheduler) sample(fight *models.Fight, participants []models.FightParticipant, seen map[string]bool) (*PnlTickEvent, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), ts.Interval*2)
	defer cancel()

	snaps := make([]ScoreSnapshot, 0, 2)
	for _, p := range participants {
		if err := ts.ingestFills(ctx, fight, p.UserID, seen); err != nil {
			log.Printf("⚠️ [TICKER] Feed fetch failed for fight %s user %s, skipping tick: %v", fight.ID, p.UserID, err)
			return nil, false
		}

		var trades []models.TradeRecord
		if err := ts.DB.Where("fight_id = ? AND user_id = ?", fight.ID, p.UserID).
			Order("executed_at ASC").Find(&trades).Error; err != nil {
			log.Printf("⚠️ [TICKER] Trade load failed for fight %s, skipping tick: %v", fight.ID, err)
			return nil, false
		}
		snaps = append(snaps, SnapshotFor(p.UserID, trades, fight.StakeUsdc))
	}

	now := time.Now().UTC()
	return &PnlTickEvent{
		FightID:         fight.ID,
		Timestamp:       now,
		ParticipantA:    toParticipantScore(snaps[0]),
		ParticipantB:    toParticipantScore(snaps[1]),
		Leader:          Leader(snaps[0], snaps[1]),
		TimeRemainingMs: remainingMs(*fight.EndsAt, now, ts.Interval),
	}, true
}

// ingestFills pulls the participant's executions inside the fight window and
// upserts them keyed on the venue exec id. Newly seen fills are announced as
// TRADE_EVENTs.
func (ts *TickScheduler) ingestFills(ctx context.Context, fight *models.Fight, userID string, seen map[string]bool) error {
	fills, err := ts.Venue.GetFills(ctx, userID, *fight.StartedAt)
	if err != nil {
		return err
	}

	for _, fill := range fills {
		if seen[fill.ExecID] {
			continue
		}
		if fill.ExecutedAt.Before(*fight.StartedAt) || fill.ExecutedAt.After(*fight.EndsAt) {
			continue
		}

		record := fill.ToTradeRecord(fight.ID, userID)
		if err := ts.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "venue_exec_id"}},
			DoNothing: true,
		}).Create(&record).Error; err != nil {
			return err
		}
		seen[fill.ExecID] = true

		ts.Hub.Publish(TradeExecutedEvent{
			FightID:   fight.ID,
			UserID:    userID,
			Symbol:    fill.Symbol,
			Side:      fill.Side,
			Amount:    fill.Size,
			Price:     fill.Price,
			Timestamp: fill.ExecutedAt,
		})
	}
	return nil
}

func toParticipantScore(s ScoreSnapshot) ParticipantScore {
	return ParticipantScore{
		UserID:      s.UserID,
		PnlPercent:  s.PnlPercent.StringFixed(4),
		ScoreUsdc:   s.ScoreUsdc,
		TradesCount: s.TradesCount,
	}
}

// tickChanged reports whether the publishable snapshot differs from the last
// published one. Timestamps and the countdown are excluded so an idle fight
// does not flood its room.
func tickChanged(prev, next PnlTickEvent) bool {
	return scoreChanged(prev.ParticipantA, next.ParticipantA) ||
		scoreChanged(prev.ParticipantB, next.ParticipantB) ||
		leaderChanged(prev.Leader, next.Leader)
}

func scoreChanged(a, b ParticipantScore) bool {
	return a.UserID != b.UserID ||
		a.PnlPercent != b.PnlPercent ||
		a.TradesCount != b.TradesCount ||
		!a.ScoreUsdc.Equal(b.ScoreUsdc)
}

func leaderChanged(prev, next *string) bool {
	if prev == nil || next == nil {
		return (prev == nil) != (next == nil)
	}
	return *prev != *next
}

// remainingMs is max(0, endsAt-now) rounded to the nearest tick interval.
func remainingMs(endsAt, now time.Time, interval time.Duration) int64 {
	remaining := endsAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return int64(remaining.Round(interval) / time.Millisecond)
}
