package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fight-arena/models"
)

// Lifecycle errors surfaced to the presentation layer with stable meaning.
var (
	ErrFightNotFound    = errors.New("fight not found")
	ErrFightNotJoinable = errors.New("fight is not accepting an opponent")
	ErrFightNotWaiting  = errors.New("fight is no longer waiting")
	ErrFightNotLive     = errors.New("fight is not live")
	ErrSelfJoin         = errors.New("cannot join your own fight")
	ErrNotCreator       = errors.New("only the creator can withdraw a fight")
)

// canTransition is the full transition table of the state machine.
func canTransition(from, to models.FightStatus) bool {
	switch from {
	case models.FightStatusWaiting:
		return to == models.FightStatusLive || to == models.FightStatusCancelled
	case models.FightStatusLive:
		return to == models.FightStatusFinished || to == models.FightStatusNoContest
	}
	return false
}

// fightEntry is the per-fight exclusive section. Every transition and every
// tick sample for one fight id runs under this lock; fights never share one.
type fightEntry struct {
	mu sync.Mutex
}

// LifecycleService owns fight state transitions. Fights live in an arena map
// indexed by id, each entry with its own lock — cross-fight operations take
// no shared lock beyond the map lookup itself.
type LifecycleService struct {
	DB         *gorm.DB
	Hub        *Hub
	Venue      *VenueClient
	Ticker     *TickScheduler
	Settlement *SettlementEngine

	arenaMu sync.Mutex
	entries map[string]*fightEntry
	timers  map[string]*time.Timer
}

func NewLifecycleService(db *gorm.DB, hub *Hub, venue *VenueClient, ticker *TickScheduler, settlement *SettlementEngine) *LifecycleService {
	return &LifecycleService{
		DB:         db,
		Hub:        hub,
		Venue:      venue,
		Ticker:     ticker,
		Settlement: settlement,
		entries:    make(map[string]*fightEntry),
		timers:     make(map[string]*time.Timer),
	}
}

func (s *LifecycleService) entry(fightID string) *fightEntry {
	s.arenaMu.Lock()
	defer s.arenaMu.Unlock()
	e, ok := s.entries[fightID]
	if !ok {
		e = &fightEntry{}
		s.entries[fightID] = e
	}
	return e
}

func (s *LifecycleService) releaseEntry(fightID string) {
	s.arenaMu.Lock()
	defer s.arenaMu.Unlock()
	delete(s.entries, fightID)
	if t, ok := s.timers[fightID]; ok {
		t.Stop()
		delete(s.timers, fightID)
	}
}

// CreateFight seats the creator in a new WAITING fight. Stake and duration
// are immutable from here on.
func (s *LifecycleService) CreateFight(ctx context.Context, creatorID string, stake decimal.Decimal, durationMinutes int, leverage decimal.Decimal) (*models.Fight, error) {
	fight := models.Fight{
		CreatorID:       creatorID,
		StakeUsdc:       stake,
		DurationMinutes: durationMinutes,
		Status:          models.FightStatusWaiting,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&fight).Error; err != nil {
			return err
		}
		seat := models.FightParticipant{
			FightID:  fight.ID,
			UserID:   creatorID,
			Leverage: leverage,
		}
		return tx.Create(&seat).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fight: %w", err)
	}

	log.Printf("🥊 [LIFECYCLE] Fight %s created by %s (stake %s, %dm)", fight.ID, creatorID, stake, durationMinutes)
	s.Hub.Publish(FightNoticeEvent{Notice: NoticeFightCreated, FightID: fight.ID, Fight: &fight})
	return &fight, nil
}

// Join accepts the second participant and drives WAITING → LIVE: both
// participants' pre-fight positions are snapshotted so scoring can exclude
// exposure opened before the window, the timer starts, and ticking begins.
func (s *LifecycleService) Join(ctx context.Context, fightID, userID string, leverage decimal.Decimal) (*models.Fight, error) {
	e := s.entry(fightID)
	e.mu.Lock()
	defer e.mu.Unlock()

	var fight models.Fight
	if err := s.DB.WithContext(ctx).Preload("Participants").First(&fight, "id = ?", fightID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFightNotFound
		}
		return nil, err
	}

	if !canTransition(fight.Status, models.FightStatusLive) {
		return nil, ErrFightNotJoinable
	}
	if fight.ParticipantFor(userID) != nil {
		return nil, ErrSelfJoin
	}
	if len(fight.Participants) != 1 {
		return nil, ErrFightNotJoinable
	}

	creatorSeat := fight.Participants[0]
	creatorSnapshot := s.snapshotPositions(ctx, creatorSeat.UserID)
	joinerSnapshot := s.snapshotPositions(ctx, userID)
	creatorIP := s.lastKnownIP(ctx, creatorSeat.UserID)
	joinerIP := s.lastKnownIP(ctx, userID)

	now := time.Now().UTC()
	endsAt := now.Add(time.Duration(fight.DurationMinutes) * time.Minute)

	joinerSeat := models.FightParticipant{
		FightID:           fightID,
		UserID:            userID,
		Leverage:          leverage,
		EntrySnapshotJSON: joinerSnapshot,
		EntryIP:           joinerIP,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Fight{}).
			Where("id = ? AND status = ?", fightID, models.FightStatusWaiting).
			Updates(map[string]interface{}{
				"status":     models.FightStatusLive,
				"started_at": now,
				"ends_at":    endsAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrFightNotWaiting
		}

		if err := tx.Create(&joinerSeat).Error; err != nil {
			return err
		}
		return tx.Model(&models.FightParticipant{}).
			Where("id = ?", creatorSeat.ID).
			Updates(map[string]interface{}{
				"entry_snapshot_json": creatorSnapshot,
				"entry_ip":            creatorIP,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start fight %s: %w", fightID, err)
	}

	fight.Status = models.FightStatusLive
	fight.StartedAt = &now
	fight.EndsAt = &endsAt
	fight.Participants = append(fight.Participants, joinerSeat)

	s.Ticker.Start(fight, fight.Participants, &e.mu)
	s.armExpiry(fightID, endsAt)

	log.Printf("🥊 [LIFECYCLE] Fight %s is LIVE: %s vs %s, ends %s", fightID, creatorSeat.UserID, userID, endsAt.Format(time.RFC3339))
	s.Hub.Publish(FightStartedEvent{
		FightID:      fightID,
		StartedAt:    now,
		EndsAt:       endsAt,
		ParticipantA: creatorSeat.UserID,
		ParticipantB: userID,
	})
	s.Hub.Publish(FightNoticeEvent{Notice: NoticeFightStarted, FightID: fightID, Fight: &fight})
	s.Hub.Publish(FightNoticeEvent{Notice: NoticeFightUpdated, FightID: fightID, Fight: &fight})
	return &fight, nil
}

// snapshotPositions captures the user's open venue positions at fight start.
// A feed hiccup here degrades to an empty snapshot rather than blocking the
// start; the venue is re-queried during ticking anyway.
func (s *LifecycleService) snapshotPositions(ctx context.Context, userID string) string {
	positions, err := s.Venue.GetPositions(ctx, userID)
	if err != nil {
		log.Printf("⚠️ [LIFECYCLE] Entry snapshot failed for %s: %v", userID, err)
		return "[]"
	}
	data, _ := json.Marshal(positions)
	return string(data)
}

// lastKnownIP reads the user's current address from the profile mirror. The
// value is frozen onto the participant row at fight start; fairness compares
// those snapshots rather than addresses seen after the window closed.
func (s *LifecycleService) lastKnownIP(ctx context.Context, userID string) string {
	var user models.ArenaUser
	err := s.DB.WithContext(ctx).Select("last_ip").
		Where("external_user_id = ?", userID).First(&user).Error
	if err != nil {
		return ""
	}
	return user.LastIP
}

// Cancel withdraws a WAITING fight before an opponent joined. There is no
// ticking to stop and nothing to settle: no opponent, no trades, no scores.
func (s *LifecycleService) Cancel(ctx context.Context, fightID, userID string) error {
	e := s.entry(fightID)
	e.mu.Lock()
	defer e.mu.Unlock()

	var fight models.Fight
	if err := s.DB.WithContext(ctx).First(&fight, "id = ?", fightID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFightNotFound
		}
		return err
	}
	if fight.CreatorID != userID {
		return ErrNotCreator
	}
	if !canTransition(fight.Status, models.FightStatusCancelled) {
		return ErrFightNotWaiting
	}

	res := s.DB.WithContext(ctx).Model(&models.Fight{}).
		Where("id = ? AND status = ?", fightID, models.FightStatusWaiting).
		Updates(map[string]interface{}{
			"status":   models.FightStatusCancelled,
			"ended_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrFightNotWaiting
	}

	log.Printf("🥊 [LIFECYCLE] Fight %s cancelled by creator", fightID)
	s.Hub.Publish(FightNoticeEvent{Notice: NoticeFightDeleted, FightID: fightID})
	s.releaseEntry(fightID)
	return nil
}

// Expire drives LIVE → terminal when the wall clock reaches startedAt +
// duration. Fairness runs inside settlement and may override the target from
// FINISHED to NO_CONTEST.
func (s *LifecycleService) Expire(ctx context.Context, fightID string) {
	e := s.entry(fightID)
	e.mu.Lock()
	defer e.mu.Unlock()

	var fight models.Fight
	if err := s.DB.WithContext(ctx).First(&fight, "id = ?", fightID).Error; err != nil {
		log.Printf("❌ [LIFECYCLE] Expiry load failed for %s: %v", fightID, err)
		return
	}
	if fight.Status != models.FightStatusLive {
		// Already settled by another path (abort, sweep); drop the leftover
		// entry and timer so the arena map does not accumulate dead fights.
		if fight.Status.IsTerminal() {
			s.releaseEntry(fightID)
		}
		return
	}
	if fight.EndsAt != nil && time.Now().Before(*fight.EndsAt) {
		return
	}

	// Stop ticking before settlement so no final tick shows a stale leader
	// after the fight is decided.
	s.Ticker.Stop(fightID)

	if _, err := s.Settlement.Settle(ctx, fightID, SettleOptions{}); err != nil {
		log.Printf("❌ [LIFECYCLE] Settlement failed for %s (sweep will retry): %v", fightID, err)
		return
	}
	log.Printf("✅ [LIFECYCLE] Fight %s settled on expiry", fightID)
	s.releaseEntry(fightID)
}

// Abort is the operational early stop (e.g. detected manipulation). It forces
// NO_CONTEST without waiting for the timer.
func (s *LifecycleService) Abort(ctx context.Context, fightID, reason string) (*SettlementResult, error) {
	e := s.entry(fightID)
	e.mu.Lock()
	defer e.mu.Unlock()

	var fight models.Fight
	if err := s.DB.WithContext(ctx).First(&fight, "id = ?", fightID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFightNotFound
		}
		return nil, err
	}
	if !canTransition(fight.Status, models.FightStatusNoContest) {
		return nil, ErrFightNotLive
	}

	s.Ticker.Stop(fightID)

	result, err := s.Settlement.Settle(ctx, fightID, SettleOptions{Abort: true, AbortReason: reason})
	if err != nil {
		return nil, err
	}
	log.Printf("🛑 [LIFECYCLE] Fight %s aborted: %s", fightID, reason)
	s.releaseEntry(fightID)
	return result, nil
}

func (s *LifecycleService) armExpiry(fightID string, endsAt time.Time) {
	timer := time.AfterFunc(time.Until(endsAt), func() {
		s.Expire(context.Background(), fightID)
	})
	s.arenaMu.Lock()
	if old, ok := s.timers[fightID]; ok {
		old.Stop()
	}
	s.timers[fightID] = timer
	s.arenaMu.Unlock()
}

// ResumeLiveFights re-arms tickers and expiry timers after a restart. Fights
// whose timers fired while the service was down are settled immediately; the
// settlement idempotency guarantee makes a double-fire harmless.
func (s *LifecycleService) ResumeLiveFights(ctx context.Context) error {
	var fights []models.Fight
	if err := s.DB.WithContext(ctx).Preload("Participants").
		Where("status = ?", models.FightStatusLive).Find(&fights).Error; err != nil {
		return fmt.Errorf("failed to load live fights: %w", err)
	}

	for _, fight := range fights {
		if fight.EndsAt == nil {
			continue
		}
		if !time.Now().Before(*fight.EndsAt) {
			log.Printf("♻️ [LIFECYCLE] Fight %s expired while down, settling now", fight.ID)
			s.Expire(ctx, fight.ID)
			continue
		}

		e := s.entry(fight.ID)
		s.Ticker.Start(fight, fight.Participants, &e.mu)
		s.armExpiry(fight.ID, *fight.EndsAt)
		log.Printf("♻️ [LIFECYCLE] Resumed ticking fight %s (ends %s)", fight.ID, fight.EndsAt.Format(time.RFC3339))
	}

	log.Printf("✅ [LIFECYCLE] Resume pass complete: %d LIVE fight(s)", len(fights))
	return nil
}
