package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Room identifies one subscriber group.
type Room string

const (
	RoomArena Room = "arena"
	RoomAdmin Room = "admin"
)

// FightRoom is the per-fight subscriber group for one fight id.
func FightRoom(fightID string) Room {
	return Room("fight:" + fightID)
}

// Subscription is a handle to one subscriber's event channel. Delivery is
// at-most-once: a subscriber that falls behind has events dropped, and a
// reconnecting client re-fetches current state instead of replaying.
type Subscription struct {
	ID   string
	Room Room
	C    chan Event

	hub  *Hub
	once sync.Once
}

// Close deregisters the subscription and releases its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub owns all real-time fan-out. It is an explicit component handed to
// consumers — never package-level state — and registration is reference
// counted per room so idle rooms are dropped entirely.
type Hub struct {
	mu    sync.RWMutex
	rooms map[Room]map[string]*Subscription

	// latest per-fight tick snapshots feeding the batched arena tick
	tickMu      sync.Mutex
	latestTicks map[string]PnlTickEvent

	subBuffer int
}

func NewHub() *Hub {
	return &Hub{
		rooms:       make(map[Room]map[string]*Subscription),
		latestTicks: make(map[string]PnlTickEvent),
		subBuffer:   64,
	}
}

// Subscribe registers a new subscriber in room and returns its handle.
func (h *Hub) Subscribe(room Room) *Subscription {
	sub := &Subscription{
		ID:   uuid.NewString(),
		Room: room,
		C:    make(chan Event, h.subBuffer),
		hub:  h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Subscription)
	}
	h.rooms[room][sub.ID] = sub
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.rooms[sub.Room]; ok {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(h.rooms, sub.Room)
		}
	}
}

// SubscriberCount reports the current registration count for a room.
func (h *Hub) SubscriberCount(room Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Publish routes an event to its subscriber groups. Routing is an exhaustive
// switch over the closed event set; a new variant that is not routed here is
// a compile-time reminder to decide its audience.
func (h *Hub) Publish(e Event) {
	switch ev := e.(type) {
	case FightStartedEvent:
		h.send(FightRoom(ev.FightID), e)
		h.send(RoomAdmin, e)
	case PnlTickEvent:
		h.rememberTick(ev)
		h.send(FightRoom(ev.FightID), e)
		h.send(RoomAdmin, e)
	case LeadChangedEvent:
		h.send(FightRoom(ev.FightID), e)
		h.send(RoomAdmin, e)
	case TradeExecutedEvent:
		h.send(FightRoom(ev.FightID), e)
		h.send(RoomAdmin, e)
	case FightFinishedEvent:
		h.forgetTick(ev.FightID)
		h.send(FightRoom(ev.FightID), e)
		h.send(RoomAdmin, e)
	case FightNoticeEvent:
		h.send(RoomArena, e)
		h.send(RoomAdmin, e)
	case ArenaTickEvent:
		h.send(RoomArena, e)
		h.send(RoomAdmin, e)
	case JobHealthEvent, SystemAlertEvent:
		h.send(RoomAdmin, e)
	default:
		log.Printf("⚠️ [HUB] Unroutable event type %T — dropping", e)
	}
}

// send delivers to every subscriber of one room without blocking. A full
// subscriber channel means that client is too slow; the event is dropped for
// it (at-most-once, no replay buffer).
func (h *Hub) send(room Room, e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.rooms[room] {
		select {
		case sub.C <- e:
		default:
			log.Printf("⚠️ [HUB] Subscriber %s in %s is lagging, dropped %s", sub.ID, room, e.Type())
		}
	}
}

func (h *Hub) rememberTick(ev PnlTickEvent) {
	h.tickMu.Lock()
	h.latestTicks[ev.FightID] = ev
	h.tickMu.Unlock()
}

func (h *Hub) forgetTick(fightID string) {
	h.tickMu.Lock()
	delete(h.latestTicks, fightID)
	h.tickMu.Unlock()
}

// drainLatestTicks snapshots and keeps the latest per-fight ticks for the
// next arena batch.
func (h *Hub) drainLatestTicks() []PnlTickEvent {
	h.tickMu.Lock()
	defer h.tickMu.Unlock()
	out := make([]PnlTickEvent, 0, len(h.latestTicks))
	for _, t := range h.latestTicks {
		out = append(out, t)
	}
	return out
}

// RunArenaAggregator publishes the lower-frequency batched tick covering all
// LIVE fights to the arena room until ctx is cancelled.
func (h *Hub) RunArenaAggregator(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[HUB] Arena aggregator stopped.")
			return
		case <-ticker.C:
			ticks := h.drainLatestTicks()
			if len(ticks) == 0 {
				continue
			}
			h.Publish(ArenaTickEvent{Timestamp: time.Now().UTC(), Fights: ticks})
		}
	}
}
