// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"fight-arena/models"
)

// StartEngineScheduler runs the recurring maintenance jobs:
//   - expiry sweep: settles LIVE fights whose timers were missed (a crashed
//     process loses its in-memory time.AfterFunc timers; settlement
//     idempotency makes the double-fire harmless),
//   - prize rollover: finalizes weekly windows whose end has passed,
//   - stale claim release: reverts prizes stuck in claiming (crash between
//     the claim reservation and the treasury transfer) back to earned.
//
// Each run reports its health to the admin room.
func StartEngineScheduler(lifecycle *LifecycleService, prizes *PrizePoolService, hub *Hub) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()

	_, err = sched.NewJob(
		gocron.DurationJob(15*time.Second),
		gocron.NewTask(func() {
			var fights []models.Fight
			now := time.Now().UTC()
			err := lifecycle.DB.Where("status = ? AND ends_at <= ?", models.FightStatusLive, now).
				Find(&fights).Error
			if err != nil {
				log.Printf("[Scheduler] Expiry sweep DB error: %v", err)
				hub.Publish(JobHealthEvent{Job: "expiry_sweep", Healthy: false, Detail: err.Error(), Timestamp: now})
				return
			}

			for _, f := range fights {
				log.Printf("[Scheduler] Sweeping overdue fight %s", f.ID)
				lifecycle.Expire(context.Background(), f.ID)
			}
			hub.Publish(JobHealthEvent{Job: "expiry_sweep", Healthy: true, Timestamp: now})
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			now := time.Now().UTC()
			if err := prizes.RolloverExpiredWindows(); err != nil {
				log.Printf("[Scheduler] Prize rollover error: %v", err)
				hub.Publish(JobHealthEvent{Job: "prize_rollover", Healthy: false, Detail: err.Error(), Timestamp: now})
				return
			}
			hub.Publish(JobHealthEvent{Job: "prize_rollover", Healthy: true, Timestamp: now})
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			now := time.Now().UTC()
			if _, err := prizes.ReleaseStaleClaims(15 * time.Minute); err != nil {
				log.Printf("[Scheduler] Stale claim release error: %v", err)
				hub.Publish(JobHealthEvent{Job: "stale_claim_release", Healthy: false, Detail: err.Error(), Timestamp: now})
				return
			}
			hub.Publish(JobHealthEvent{Job: "stale_claim_release", Healthy: true, Timestamp: now})
		}),
	)
	if err != nil {
		return nil, err
	}

	log.Println("✅ Engine scheduler running (expiry sweep 15s, prize rollover 10m, stale claim release 5m)")
	return sched, nil
}
