package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvType(t *testing.T, sub *Subscription) EventType {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev.Type()
	case <-time.After(time.Second):
		t.Fatal("expected an event, got none")
		return ""
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %s", ev.Type())
	default:
	}
}

func TestPublishRoutesFightEventsToFightAndAdmin(t *testing.T) {
	hub := NewHub()
	fight := hub.Subscribe(FightRoom("f1"))
	otherFight := hub.Subscribe(FightRoom("f2"))
	arena := hub.Subscribe(RoomArena)
	admin := hub.Subscribe(RoomAdmin)
	defer fight.Close()
	defer otherFight.Close()
	defer arena.Close()
	defer admin.Close()

	hub.Publish(PnlTickEvent{FightID: "f1"})

	assert.Equal(t, EventPnlTick, recvType(t, fight))
	assert.Equal(t, EventPnlTick, recvType(t, admin))
	assertEmpty(t, otherFight)
	assertEmpty(t, arena)
}

func TestPublishRoutesNoticesToArenaAndAdmin(t *testing.T) {
	hub := NewHub()
	fight := hub.Subscribe(FightRoom("f1"))
	arena := hub.Subscribe(RoomArena)
	admin := hub.Subscribe(RoomAdmin)
	defer fight.Close()
	defer arena.Close()
	defer admin.Close()

	hub.Publish(FightNoticeEvent{Notice: NoticeFightCreated, FightID: "f1"})

	assert.Equal(t, NoticeFightCreated, recvType(t, arena))
	assert.Equal(t, NoticeFightCreated, recvType(t, admin))
	assertEmpty(t, fight)
}

func TestPublishRoutesTelemetryToAdminOnly(t *testing.T) {
	hub := NewHub()
	arena := hub.Subscribe(RoomArena)
	admin := hub.Subscribe(RoomAdmin)
	defer arena.Close()
	defer admin.Close()

	hub.Publish(JobHealthEvent{Job: "expiry_sweep", Healthy: true})
	hub.Publish(SystemAlertEvent{Level: "warning", Message: "test"})

	assert.Equal(t, EventJobHealth, recvType(t, admin))
	assert.Equal(t, EventSystemAlert, recvType(t, admin))
	assertEmpty(t, arena)
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(RoomArena)
	require.Equal(t, 1, hub.SubscriberCount(RoomArena))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.SubscriberCount(RoomArena))

	hub.Publish(FightNoticeEvent{Notice: NoticeFightUpdated, FightID: "f1"})
	assertEmpty(t, sub)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(FightRoom("f1"))
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < hub.subBuffer+10; i++ {
			hub.Publish(LeadChangedEvent{FightID: "f1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber channel")
	}
	assert.Equal(t, hub.subBuffer, len(sub.C))
}

func TestArenaAggregatorBatchesLatestTicks(t *testing.T) {
	hub := NewHub()

	hub.Publish(PnlTickEvent{FightID: "f1", TimeRemainingMs: 1000})
	hub.Publish(PnlTickEvent{FightID: "f1", TimeRemainingMs: 900}) // supersedes the first
	hub.Publish(PnlTickEvent{FightID: "f2", TimeRemainingMs: 500})

	ticks := hub.drainLatestTicks()
	require.Len(t, ticks, 2)
	byFight := map[string]PnlTickEvent{}
	for _, tick := range ticks {
		byFight[tick.FightID] = tick
	}
	assert.Equal(t, int64(900), byFight["f1"].TimeRemainingMs)
	assert.Equal(t, int64(500), byFight["f2"].TimeRemainingMs)
}

func TestFinishedFightLeavesTheArenaBatch(t *testing.T) {
	hub := NewHub()

	hub.Publish(PnlTickEvent{FightID: "f1"})
	hub.Publish(FightFinishedEvent{FightID: "f1"})

	assert.Empty(t, hub.drainLatestTicks())
}
