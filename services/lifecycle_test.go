package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fight-arena/models"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to models.FightStatus }{
		{models.FightStatusWaiting, models.FightStatusLive},
		{models.FightStatusWaiting, models.FightStatusCancelled},
		{models.FightStatusLive, models.FightStatusFinished},
		{models.FightStatusLive, models.FightStatusNoContest},
	}
	for _, tc := range allowed {
		assert.True(t, canTransition(tc.from, tc.to), "%s -> %s must be allowed", tc.from, tc.to)
	}

	all := []models.FightStatus{
		models.FightStatusWaiting,
		models.FightStatusLive,
		models.FightStatusFinished,
		models.FightStatusCancelled,
		models.FightStatusNoContest,
	}
	allowedSet := map[[2]models.FightStatus]bool{}
	for _, tc := range allowed {
		allowedSet[[2]models.FightStatus{tc.from, tc.to}] = true
	}
	for _, from := range all {
		for _, to := range all {
			if allowedSet[[2]models.FightStatus{from, to}] {
				continue
			}
			assert.False(t, canTransition(from, to), "%s -> %s must be rejected", from, to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.False(t, models.FightStatusWaiting.IsTerminal())
	assert.False(t, models.FightStatusLive.IsTerminal())
	assert.True(t, models.FightStatusFinished.IsTerminal())
	assert.True(t, models.FightStatusCancelled.IsTerminal())
	assert.True(t, models.FightStatusNoContest.IsTerminal())
}

func TestEntryIsPerFight(t *testing.T) {
	s := &LifecycleService{
		entries: make(map[string]*fightEntry),
		timers:  make(map[string]*time.Timer),
	}

	e1 := s.entry("f1")
	e2 := s.entry("f2")
	assert.NotSame(t, e1, e2, "fights never share a lock")
	assert.Same(t, e1, s.entry("f1"), "repeated lookup returns the same entry")

	s.releaseEntry("f1")
	assert.NotSame(t, e1, s.entry("f1"), "released entries are rebuilt fresh")
}
