package services

import (
	"time"

	"github.com/shopspring/decimal"

	"fight-arena/models"
)

// EventType tags every message that leaves the engine. The set is closed:
// producers construct only these variants and the hub routes them with an
// exhaustive switch.
type EventType string

const (
	// Per-fight room events.
	EventFightStarted  EventType = "FIGHT_STARTED"
	EventPnlTick       EventType = "PNL_TICK"
	EventLeadChanged   EventType = "LEAD_CHANGED"
	EventTradeExecuted EventType = "TRADE_EVENT"
	EventFightFinished EventType = "FIGHT_FINISHED"

	// Arena-wide lifecycle notices for lobby/listing views.
	NoticeFightCreated EventType = "fight_created"
	NoticeFightUpdated EventType = "fight_updated"
	NoticeFightStarted EventType = "fight_started"
	NoticeFightEnded   EventType = "fight_ended"
	NoticeFightDeleted EventType = "fight_deleted"

	// Arena-wide aggregate tick, batched across all LIVE fights.
	EventArenaTick EventType = "pnl_tick"

	// Admin-room telemetry.
	EventJobHealth   EventType = "job_health"
	EventSystemAlert EventType = "system_alert"
)

// Event is one broadcastable message. Concrete types below are the full set.
type Event interface {
	Type() EventType
}

// ParticipantScore is the per-user slice of a tick payload. The percentage is
// rendered to 4 decimal digits at this boundary; storage keeps full precision.
type ParticipantScore struct {
	UserID      string          `json:"userId"`
	PnlPercent  string          `json:"pnlPercent"`
	ScoreUsdc   decimal.Decimal `json:"scoreUsdc"`
	TradesCount int             `json:"tradesCount"`
}

type FightStartedEvent struct {
	FightID      string    `json:"fightId"`
	StartedAt    time.Time `json:"startedAt"`
	EndsAt       time.Time `json:"endsAt"`
	ParticipantA string    `json:"participantA"`
	ParticipantB string    `json:"participantB"`
}

func (FightStartedEvent) Type() EventType { return EventFightStarted }

type PnlTickEvent struct {
	FightID         string           `json:"fightId"`
	Timestamp       time.Time        `json:"timestamp"`
	ParticipantA    ParticipantScore `json:"participantA"`
	ParticipantB    ParticipantScore `json:"participantB"`
	Leader          *string          `json:"leader"`
	TimeRemainingMs int64            `json:"timeRemainingMs"`
}

func (PnlTickEvent) Type() EventType { return EventPnlTick }

type LeadChangedEvent struct {
	FightID   string  `json:"fightId"`
	NewLeader *string `json:"newLeader"`
}

func (LeadChangedEvent) Type() EventType { return EventLeadChanged }

type TradeExecutedEvent struct {
	FightID   string          `json:"fightId"`
	UserID    string          `json:"userId"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

func (TradeExecutedEvent) Type() EventType { return EventTradeExecuted }

type FinalScore struct {
	PnlPercent string          `json:"pnlPercent"`
	ScoreUsdc  decimal.Decimal `json:"scoreUsdc"`
}

type FightFinishedEvent struct {
	FightID     string                `json:"fightId"`
	WinnerID    *string               `json:"winnerId"`
	IsDraw      bool                  `json:"isDraw"`
	Status      models.FightStatus    `json:"status"`
	FinalScores map[string]FinalScore `json:"finalScores"`
}

func (FightFinishedEvent) Type() EventType { return EventFightFinished }

// FightNoticeEvent is a low-frequency lifecycle notice for the arena room.
// Notice is one of the Notice* constants.
type FightNoticeEvent struct {
	Notice  EventType     `json:"notice"`
	FightID string        `json:"fightId"`
	Fight   *models.Fight `json:"fight,omitempty"`
}

func (e FightNoticeEvent) Type() EventType { return e.Notice }

type ArenaTickEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Fights    []PnlTickEvent `json:"fights"`
}

func (ArenaTickEvent) Type() EventType { return EventArenaTick }

type JobHealthEvent struct {
	Job       string    `json:"job"`
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (JobHealthEvent) Type() EventType { return EventJobHealth }

type SystemAlertEvent struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (SystemAlertEvent) Type() EventType { return EventSystemAlert }
