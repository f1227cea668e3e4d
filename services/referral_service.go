package services

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fight-arena/models"
)

// ReferralService pays a fixed program-level commission to referrers out of
// their referees' trading fees. One payout per fee event, ever — the fee
// event id is the idempotency key.
type ReferralService struct {
	DB            *gorm.DB
	CommissionPct decimal.Decimal
}

func NewReferralService(db *gorm.DB) *ReferralService {
	pct := decimal.NewFromInt(10)
	if raw := os.Getenv("REFERRAL_COMMISSION_PCT"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			log.Fatalf("Invalid REFERRAL_COMMISSION_PCT %q: %v", raw, err)
		}
		pct = parsed
	}
	return &ReferralService{DB: db, CommissionPct: pct}
}

// FeeEventID is the idempotency key for one participant's fees in one fight.
func FeeEventID(fightID, userID string) string {
	return fmt.Sprintf("%s:%s", fightID, userID)
}

// RecordFightCommissions emits one commission per participant whose fight
// generated fees and who was referred by someone. Runs inside the settlement
// transaction; redelivery lands on the unique fee event id and does nothing.
func (s *ReferralService) RecordFightCommissions(tx *gorm.DB, fight *models.Fight, tradesByUser map[string][]models.TradeRecord) error {
	for userID, trades := range tradesByUser {
		fees := TotalFees(trades)
		if !fees.IsPositive() {
			continue
		}

		var user models.ArenaUser
		if err := tx.Where("external_user_id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue // unknown user snapshot, nobody to credit
			}
			return fmt.Errorf("failed to load user %s: %w", userID, err)
		}
		if user.ReferrerID == nil || *user.ReferrerID == "" {
			continue
		}

		payout := models.ReferralPayout{
			ReferrerID:    *user.ReferrerID,
			ReferredID:    userID,
			FeeEventID:    FeeEventID(fight.ID, userID),
			FightID:       fight.ID,
			FeeUsdc:       fees,
			CommissionPct: s.CommissionPct,
			AmountUsdc:    CommissionAmount(fees, s.CommissionPct),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fee_event_id"}},
			DoNothing: true,
		}).Create(&payout).Error; err != nil {
			return fmt.Errorf("failed to record referral payout %s: %w", payout.FeeEventID, err)
		}
	}
	return nil
}

// GetUserEarnings lists the authenticated user's referral commissions.
func (s *ReferralService) GetUserEarnings(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var payouts []models.ReferralPayout
	if err := s.DB.Where("referrer_id = ?", userID).Order("created_at DESC").Find(&payouts).Error; err != nil {
		log.Printf("DB Error fetching referral earnings for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.AmountUsdc)
	}
	return c.JSON(fiber.Map{
		"payouts":    payouts,
		"count":      len(payouts),
		"total_usdc": total,
	})
}
