package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// StreamService exposes the hub's subscriber groups over SSE. Three rooms:
// per-fight, arena-wide and admin; the admin stream is gated upstream by a
// trusted service credential, never a client-declared role.
type StreamService struct {
	Hub *Hub
}

func NewStreamService(hub *Hub) *StreamService {
	return &StreamService{Hub: hub}
}

// StreamFightSSE streams ticks, lead changes, trades and the finish event for
// one fight id.
func (s *StreamService) StreamFightSSE(c *fiber.Ctx) error {
	fightID := c.Params("id")
	if _, err := uuid.Parse(fightID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid fight ID"})
	}
	return s.stream(c, FightRoom(fightID))
}

// StreamArenaSSE streams lifecycle notices and the batched arena tick for
// lobby/listing views.
func (s *StreamService) StreamArenaSSE(c *fiber.Ctx) error {
	return s.stream(c, RoomArena)
}

// StreamAdminSSE streams everything plus operational telemetry.
func (s *StreamService) StreamAdminSSE(c *fiber.Ctx) error {
	return s.stream(c, RoomAdmin)
}

func (s *StreamService) stream(c *fiber.Ctx, room Room) error {
	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	sub := s.Hub.Subscribe(room)
	log.Printf("📡 [STREAM] Subscriber %s joined %s (%d in room)", sub.ID, room, s.Hub.SubscriberCount(room))

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case ev := <-sub.C:
				payload, err := json.Marshal(ev)
				if err != nil {
					log.Printf("📡 [STREAM] Marshal error for %s: %v", ev.Type(), err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type(), payload)
				if err := w.Flush(); err != nil {
					// Client disconnected. No replay: it re-fetches current
					// state on reconnect.
					return
				}

			case <-keepalive.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}
