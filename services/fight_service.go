package services

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fight-arena/models"
)

// ruleOrder is the deterministic precedence used to pick the violation whose
// message faces the user.
var ruleOrder = map[models.ViolationCode]int{
	models.ViolationZeroZero:        0,
	models.ViolationSameIPPattern:   1,
	models.ViolationRepeatedMatchup: 2,
	models.ViolationMinVolume:       3,
	models.ViolationExternalTrades:  4,
}

// LeadingViolation picks the user-facing violation by rule precedence. Stable
// across repeated evaluation of the same fight.
func LeadingViolation(violations []models.Violation) *models.Violation {
	var lead *models.Violation
	for i := range violations {
		if lead == nil || ruleOrder[violations[i].Code] < ruleOrder[lead.Code] {
			lead = &violations[i]
		}
	}
	return lead
}

// FightService is the query/command surface consumed by the presentation
// layer. All state transitions go through the lifecycle service.
type FightService struct {
	DB        *gorm.DB
	Lifecycle *LifecycleService
}

func NewFightService(db *gorm.DB, lifecycle *LifecycleService) *FightService {
	return &FightService{DB: db, Lifecycle: lifecycle}
}

// CreateFight seats the caller in a new WAITING fight.
func (s *FightService) CreateFight(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		StakeUsdc       decimal.Decimal `json:"stake_usdc"`
		DurationMinutes int             `json:"duration_minutes"`
		Leverage        decimal.Decimal `json:"leverage"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	if !req.StakeUsdc.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "stake_usdc must be positive"})
	}
	if req.DurationMinutes < 1 || req.DurationMinutes > 24*60 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration_minutes must be between 1 and 1440"})
	}
	if req.Leverage.IsZero() {
		req.Leverage = decimal.NewFromInt(1)
	}

	fight, err := s.Lifecycle.CreateFight(c.Context(), userID, req.StakeUsdc, req.DurationMinutes, req.Leverage)
	if err != nil {
		log.Printf("❌ [FIGHT] Create failed for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create fight"})
	}
	return c.Status(fiber.StatusCreated).JSON(fight)
}

// JoinFight accepts the caller as the second participant and starts the fight.
func (s *FightService) JoinFight(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	fightID := c.Params("id")
	if _, err := uuid.Parse(fightID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid fight ID"})
	}

	var req struct {
		Leverage decimal.Decimal `json:"leverage"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Leverage.IsZero() {
		req.Leverage = decimal.NewFromInt(1)
	}

	fight, err := s.Lifecycle.Join(c.Context(), fightID, userID, req.Leverage)
	if err != nil {
		switch {
		case errors.Is(err, ErrFightNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "fight not found"})
		case errors.Is(err, ErrSelfJoin):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot join your own fight"})
		case errors.Is(err, ErrFightNotJoinable), errors.Is(err, ErrFightNotWaiting):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "fight is not accepting an opponent"})
		}
		log.Printf("❌ [FIGHT] Join failed for %s on %s: %v", userID, fightID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to join fight"})
	}
	return c.JSON(fight)
}

// CancelFight withdraws a WAITING fight (creator only).
func (s *FightService) CancelFight(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	fightID := c.Params("id")

	if err := s.Lifecycle.Cancel(c.Context(), fightID, userID); err != nil {
		switch {
		case errors.Is(err, ErrFightNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "fight not found"})
		case errors.Is(err, ErrNotCreator):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "only the creator can withdraw"})
		case errors.Is(err, ErrFightNotWaiting):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "fight is no longer waiting"})
		}
		log.Printf("❌ [FIGHT] Cancel failed for %s: %v", fightID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to cancel fight"})
	}
	return c.JSON(fiber.Map{"message": "fight cancelled", "fight_id": fightID})
}

// AbortFight is the operational early stop (admin only): forces NO_CONTEST.
func (s *FightService) AbortFight(c *fiber.Ctx) error {
	fightID := c.Params("id")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reason is required"})
	}

	result, err := s.Lifecycle.Abort(c.Context(), fightID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrFightNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "fight not found"})
		case errors.Is(err, ErrFightNotLive):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "only live fights can be aborted"})
		}
		log.Printf("❌ [FIGHT] Abort failed for %s: %v", fightID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to abort fight"})
	}
	return c.JSON(result)
}

// GetFight returns one fight with participants and violations. A voided fight
// always carries its leading violation's message.
func (s *FightService) GetFight(c *fiber.Ctx) error {
	fightID := c.Params("id")

	var fight models.Fight
	err := s.DB.Preload("Participants").Preload("Violations").First(&fight, "id = ?", fightID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "fight not found"})
		}
		log.Printf("DB Error fetching fight %s: %v", fightID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	resp := fiber.Map{"fight": fight}
	if fight.Status == models.FightStatusNoContest {
		if lead := LeadingViolation(fight.Violations); lead != nil {
			resp["void_reason"] = lead.Message
			resp["void_code"] = lead.Code
		}
	}
	return c.JSON(resp)
}

// GetFightTrades returns the fight's trade history, oldest first.
func (s *FightService) GetFightTrades(c *fiber.Ctx) error {
	fightID := c.Params("id")

	var trades []models.TradeRecord
	if err := s.DB.Where("fight_id = ?", fightID).Order("executed_at ASC").Find(&trades).Error; err != nil {
		log.Printf("DB Error fetching trades for fight %s: %v", fightID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(fiber.Map{"fight_id": fightID, "trades": trades, "count": len(trades)})
}

// ListOpenFights lists WAITING fights for the lobby, newest first.
func (s *FightService) ListOpenFights(c *fiber.Ctx) error {
	var fights []models.Fight
	err := s.DB.Preload("Participants").
		Where("status = ?", models.FightStatusWaiting).
		Order("created_at DESC").Limit(100).
		Find(&fights).Error
	if err != nil {
		log.Printf("DB Error listing open fights: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(fiber.Map{"fights": fights, "count": len(fights)})
}

// ListLiveFights lists currently LIVE fights with their countdowns.
func (s *FightService) ListLiveFights(c *fiber.Ctx) error {
	var fights []models.Fight
	err := s.DB.Preload("Participants").
		Where("status = ?", models.FightStatusLive).
		Order("ends_at ASC").
		Find(&fights).Error
	if err != nil {
		log.Printf("DB Error listing live fights: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	now := time.Now().UTC()
	out := make([]fiber.Map, 0, len(fights))
	for _, f := range fights {
		remaining := int64(0)
		if f.EndsAt != nil && f.EndsAt.After(now) {
			remaining = f.EndsAt.Sub(now).Milliseconds()
		}
		out = append(out, fiber.Map{"fight": f, "time_remaining_ms": remaining})
	}
	return c.JSON(fiber.Map{"fights": out, "count": len(out)})
}
