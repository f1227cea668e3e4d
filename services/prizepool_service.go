package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fight-arena/models"
)

// prizeShareTable is the fixed percentage cut per rank of one weekly window.
// The shares sum to 95% — the remainder rolls into operations. Never let a
// table revision push the sum past 100.
var prizeShareTable = []decimal.Decimal{
	decimal.NewFromInt(40),
	decimal.NewFromInt(25),
	decimal.NewFromInt(15),
	decimal.NewFromInt(10),
	decimal.NewFromInt(5),
}

// Stable claim failure codes. The presentation layer keys its messaging off
// these, so they are contract, not log strings.
const (
	ClaimCodeAlreadyClaimed    = "ALREADY_CLAIMED"
	ClaimCodeNotEarned         = "NOT_EARNED"
	ClaimCodePayoutUnavailable = "PAYOUT_UNAVAILABLE"
)

// ClaimError is a typed claim failure with a stable code.
type ClaimError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// PrizePoolService owns the weekly prize windows: funding them from trading
// fees, ranking settled scores, finalizing windows and paying claims.
type PrizePoolService struct {
	DB      *gorm.DB
	Payouts *PayoutClient

	// PoolCutPct is the share of collected trading fees that funds the pool.
	PoolCutPct decimal.Decimal
}

func NewPrizePoolService(db *gorm.DB, payouts *PayoutClient) *PrizePoolService {
	return &PrizePoolService{
		DB:         db,
		Payouts:    payouts,
		PoolCutPct: decimal.NewFromInt(50),
	}
}

// WindowBounds returns the weekly window containing t: Monday 00:00 UTC
// through the following Monday.
func WindowBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started the previous Monday
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -(weekday - 1))
	return start, start.AddDate(0, 0, 7)
}

// WindowSlug is the stable identifier of one weekly window.
func WindowSlug(start time.Time) string {
	return slug.Make(fmt.Sprintf("prize week %s", start.UTC().Format("2006-01-02")))
}

// openWindow returns the window covering at, creating it if this is the first
// settlement to land in it. Creation races are absorbed by the slug conflict.
func (s *PrizePoolService) openWindow(tx *gorm.DB, at time.Time) (*models.PrizeDistribution, error) {
	start, end := WindowBounds(at)
	windowSlug := WindowSlug(start)

	window := models.PrizeDistribution{
		Slug:        windowSlug,
		WindowStart: start,
		WindowEnd:   end,
		Status:      models.PrizeWindowOpen,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&window).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure prize window %s: %w", windowSlug, err)
	}

	if err := tx.Where("slug = ?", windowSlug).First(&window).Error; err != nil {
		return nil, fmt.Errorf("failed to load prize window %s: %w", windowSlug, err)
	}
	return &window, nil
}

// RecordFightResult merges one participant's settled score into the weekly
// standing and adds the fight's fees to the window funding. Both updates are
// commutative increments, so fights may settle in any order.
func (s *PrizePoolService) RecordFightResult(tx *gorm.DB, at time.Time, userID string, scoreUsdc, feesUsdc decimal.Decimal) error {
	window, err := s.openWindow(tx, at)
	if err != nil {
		return err
	}

	poolCut := feesUsdc.Mul(s.PoolCutPct).Div(hundred).Round(6)
	if feesUsdc.IsPositive() {
		err = tx.Model(&models.PrizeDistribution{}).
			Where("id = ?", window.ID).
			Updates(map[string]interface{}{
				"total_fees_usdc": gorm.Expr("total_fees_usdc + ?", feesUsdc),
				"pool_usdc":       gorm.Expr("pool_usdc + ?", poolCut),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to fund prize window: %w", err)
		}
	}

	standing := models.WeeklyStanding{
		DistributionID: window.ID,
		UserID:         userID,
		TotalScoreUsdc: scoreUsdc,
		FightsCounted:  1,
	}
	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "distribution_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_score_usdc": gorm.Expr("weekly_standings.total_score_usdc + EXCLUDED.total_score_usdc"),
			"fights_counted":   gorm.Expr("weekly_standings.fights_counted + 1"),
		}),
	}).Create(&standing).Error
	if err != nil {
		return fmt.Errorf("failed to merge weekly standing: %w", err)
	}
	return nil
}

// ComputeRankAmounts maps the pool onto the share table for n ranked users.
// Amounts round down to USDC precision so their sum never exceeds the pool;
// the worst-case shortfall is one rounding epsilon per rank.
func ComputeRankAmounts(pool decimal.Decimal, n int) []decimal.Decimal {
	if n > len(prizeShareTable) {
		n = len(prizeShareTable)
	}
	out := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		out[i] = pool.Mul(prizeShareTable[i]).Div(hundred).RoundFloor(6)
	}
	return out
}

// RankSharePct exposes the share table for rendering.
func RankSharePct(rank int) decimal.Decimal {
	if rank < 1 || rank > len(prizeShareTable) {
		return decimal.Zero
	}
	return prizeShareTable[rank-1]
}

// RecomputeRanking rebuilds the ranked payout table of one window from the
// current standings.
func (s *PrizePoolService) RecomputeRanking(windowID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var window models.PrizeDistribution
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&window, "id = ?", windowID).Error; err != nil {
			return fmt.Errorf("failed to load window: %w", err)
		}
		if window.Status != models.PrizeWindowOpen {
			return nil
		}

		var standings []models.WeeklyStanding
		err := tx.Where("distribution_id = ?", windowID).
			Order("total_score_usdc DESC, user_id ASC"). // deterministic tie-break
			Limit(len(prizeShareTable)).
			Find(&standings).Error
		if err != nil {
			return fmt.Errorf("failed to load standings: %w", err)
		}

		if err := tx.Where("distribution_id = ?", windowID).Delete(&models.PrizeRank{}).Error; err != nil {
			return fmt.Errorf("failed to clear ranks: %w", err)
		}

		amounts := ComputeRankAmounts(window.PoolUsdc, len(standings))
		for i, st := range standings {
			rank := models.PrizeRank{
				DistributionID: windowID,
				UserID:         st.UserID,
				Rank:           i + 1,
				SharePct:       prizeShareTable[i],
				AmountUsdc:     amounts[i],
			}
			if err := tx.Create(&rank).Error; err != nil {
				return fmt.Errorf("failed to write rank %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// RecomputeActiveRanking refreshes the ranking of the window covering now.
func (s *PrizePoolService) RecomputeActiveRanking() error {
	window, err := s.ActiveWindow()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // no settlements this week yet
		}
		return err
	}
	return s.RecomputeRanking(window.ID)
}

// ActiveWindow loads the window covering the current time, with ranks.
func (s *PrizePoolService) ActiveWindow() (*models.PrizeDistribution, error) {
	start, _ := WindowBounds(time.Now())
	var window models.PrizeDistribution
	if err := s.DB.Preload("Ranks").Where("slug = ?", WindowSlug(start)).First(&window).Error; err != nil {
		return nil, err
	}
	return &window, nil
}

// FinalizeWindow closes a past window and mints one earned Prize per rank.
// The status compare-and-set plus the (window,user) unique key make a retried
// finalize a no-op.
func (s *PrizePoolService) FinalizeWindow(windowID string) error {
	if err := s.RecomputeRanking(windowID); err != nil {
		return err
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PrizeDistribution{}).
			Where("id = ? AND status = ?", windowID, models.PrizeWindowOpen).
			Update("status", models.PrizeWindowFinalized)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // already finalized
		}

		var ranks []models.PrizeRank
		if err := tx.Where("distribution_id = ?", windowID).Order("rank ASC").Find(&ranks).Error; err != nil {
			return err
		}

		for _, r := range ranks {
			prize := models.Prize{
				UserID:         r.UserID,
				DistributionID: windowID,
				Rank:           r.Rank,
				AmountUsdc:     r.AmountUsdc,
				Status:         models.PrizeStatusEarned,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "distribution_id"}, {Name: "user_id"}},
				DoNothing: true,
			}).Create(&prize).Error; err != nil {
				return fmt.Errorf("failed to mint prize for %s: %w", r.UserID, err)
			}
		}
		log.Printf("🏆 [PRIZE] Window %s finalized with %d prize(s)", windowID, len(ranks))
		return nil
	})
}

// RolloverExpiredWindows finalizes every open window whose end has passed.
// Driven by the scheduler; safe to run repeatedly.
func (s *PrizePoolService) RolloverExpiredWindows() error {
	var windows []models.PrizeDistribution
	err := s.DB.Where("status = ? AND window_end <= ?", models.PrizeWindowOpen, time.Now().UTC()).
		Find(&windows).Error
	if err != nil {
		return fmt.Errorf("failed to scan expired windows: %w", err)
	}

	for _, w := range windows {
		if err := s.FinalizeWindow(w.ID); err != nil {
			log.Printf("❌ [PRIZE] Failed to finalize window %s: %v", w.Slug, err)
		}
	}
	return nil
}

// ReleaseStaleClaims reverts prizes stuck in claiming back to earned. A crash
// between the claim reservation and the treasury transfer would otherwise
// strand the prize; the treasury-side idempotency key (prize id) makes the
// retried transfer safe even if the original one did land.
func (s *PrizePoolService) ReleaseStaleClaims(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res := s.DB.Model(&models.Prize{}).
		Where("status = ? AND updated_at <= ?", models.PrizeStatusClaiming, cutoff).
		Update("status", models.PrizeStatusEarned)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("♻️ [PRIZE] Released %d stale claim(s) back to earned", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// Claim pays out one earned prize. The earned→claiming compare-and-set stops
// double claims; a treasury failure reverts the prize to earned so the claim
// stays retryable and is never silently marked paid.
func (s *PrizePoolService) Claim(userID, prizeID string) (*models.Prize, *ClaimError) {
	res := s.DB.Model(&models.Prize{}).
		Where("id = ? AND user_id = ? AND status = ?", prizeID, userID, models.PrizeStatusEarned).
		Update("status", models.PrizeStatusClaiming)
	if res.Error != nil {
		log.Printf("❌ [PRIZE] Claim CAS failed for %s: %v", prizeID, res.Error)
		return nil, &ClaimError{Code: ClaimCodePayoutUnavailable, Message: "Could not reserve the prize for payout. Try again."}
	}

	if res.RowsAffected == 0 {
		var prize models.Prize
		if err := s.DB.Where("id = ? AND user_id = ?", prizeID, userID).First(&prize).Error; err != nil {
			return nil, &ClaimError{Code: ClaimCodeNotEarned, Message: "No such earned prize for this user."}
		}
		switch prize.Status {
		case models.PrizeStatusDistributed, models.PrizeStatusClaiming:
			return nil, &ClaimError{Code: ClaimCodeAlreadyClaimed, Message: "This prize has already been claimed."}
		default:
			return nil, &ClaimError{Code: ClaimCodeNotEarned, Message: "This prize is not in a claimable state."}
		}
	}

	var prize models.Prize
	if err := s.DB.First(&prize, "id = ?", prizeID).Error; err != nil {
		return nil, &ClaimError{Code: ClaimCodePayoutUnavailable, Message: "Prize reserved but could not be loaded. Try again."}
	}

	if err := s.Payouts.Transfer(userID, prize.AmountUsdc, prize.ID); err != nil {
		log.Printf("❌ [PRIZE] Treasury transfer failed for prize %s, reverting to earned: %v", prizeID, err)
		s.DB.Model(&models.Prize{}).
			Where("id = ? AND status = ?", prizeID, models.PrizeStatusClaiming).
			Update("status", models.PrizeStatusEarned)
		return nil, &ClaimError{Code: ClaimCodePayoutUnavailable, Message: "Payout mechanism unavailable. The prize remains claimable."}
	}

	now := time.Now().UTC()
	if err := s.DB.Model(&models.Prize{}).
		Where("id = ?", prizeID).
		Updates(map[string]interface{}{
			"status":     models.PrizeStatusDistributed,
			"claimed_at": now,
		}).Error; err != nil {
		// Money moved but the flag write failed. Log loudly; the treasury-side
		// idempotency key (prize id) makes a retried transfer a no-op.
		log.Printf("❌ [PRIZE] Prize %s paid but status write failed: %v", prizeID, err)
	}

	prize.Status = models.PrizeStatusDistributed
	prize.ClaimedAt = &now
	log.Printf("🏆 [PRIZE] Prize %s (%s USDC) paid to %s", prizeID, prize.AmountUsdc, userID)
	return &prize, nil
}

// --- Fiber handlers ---

// GetActivePool returns the active weekly pool snapshot with ranked winners
// and the time remaining in the window.
func (s *PrizePoolService) GetActivePool(c *fiber.Ctx) error {
	window, err := s.ActiveWindow()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			start, end := WindowBounds(time.Now())
			return c.JSON(fiber.Map{
				"slug":              WindowSlug(start),
				"window_start":      start,
				"window_end":        end,
				"pool_usdc":         decimal.Zero,
				"ranks":             []models.PrizeRank{},
				"time_remaining_ms": end.Sub(time.Now().UTC()).Milliseconds(),
			})
		}
		log.Printf("DB Error fetching active pool: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	remaining := time.Until(window.WindowEnd).Milliseconds()
	if remaining < 0 {
		remaining = 0
	}
	return c.JSON(fiber.Map{
		"slug":              window.Slug,
		"window_start":      window.WindowStart,
		"window_end":        window.WindowEnd,
		"total_fees_usdc":   window.TotalFeesUsdc,
		"pool_usdc":         window.PoolUsdc,
		"status":            window.Status,
		"ranks":             window.Ranks,
		"time_remaining_ms": remaining,
	})
}

// GetUserPrizes lists the authenticated user's prizes, newest first.
func (s *PrizePoolService) GetUserPrizes(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var prizes []models.Prize
	if err := s.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&prizes).Error; err != nil {
		log.Printf("DB Error fetching prizes for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(fiber.Map{"prizes": prizes, "count": len(prizes)})
}

// ClaimPrize claims one prize for the authenticated user. Failures carry a
// stable code so the caller can distinguish "already claimed", "not earned"
// and "payout mechanism unavailable".
func (s *PrizePoolService) ClaimPrize(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	prizeID := c.Params("id")

	prize, claimErr := s.Claim(userID, prizeID)
	if claimErr != nil {
		status := fiber.StatusConflict
		switch claimErr.Code {
		case ClaimCodeNotEarned:
			status = fiber.StatusNotFound
		case ClaimCodePayoutUnavailable:
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{"error": claimErr.Message, "code": claimErr.Code})
	}
	return c.JSON(prize)
}
