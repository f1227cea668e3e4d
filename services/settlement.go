package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fight-arena/models"
	"fight-arena/utils"
)

// SettlementResult is the one-time outcome of a fight. Once computed it never
// changes; re-settling the same fight returns the stored result.
type SettlementResult struct {
	FightID        string                   `json:"fight_id"`
	Status         models.FightStatus       `json:"status"`
	WinnerID       *string                  `json:"winner_id"`
	IsDraw         bool                     `json:"is_draw"`
	Scores         map[string]ScoreSnapshot `json:"scores"`
	Violations     []models.Violation       `json:"violations"`
	AlreadySettled bool                     `json:"already_settled"`
}

// SettleOptions distinguishes a timer-expiry settlement from an operational
// abort, which forces NO_CONTEST without waiting for the timer.
type SettleOptions struct {
	Abort       bool
	AbortReason string
}

// SettlementEngine finalizes fights. The terminal status write and the score
// write happen in one transaction guarded by a status compare-and-set, so any
// retry, redelivery or crash-recovery re-entry observes the terminal state
// and short-circuits.
type SettlementEngine struct {
	DB        *gorm.DB
	Hub       *Hub
	Fairness  *FairnessEngine
	Prizes    *PrizePoolService
	Referrals *ReferralService
}

func NewSettlementEngine(db *gorm.DB, hub *Hub, fairness *FairnessEngine, prizes *PrizePoolService, referrals *ReferralService) *SettlementEngine {
	return &SettlementEngine{
		DB:        db,
		Hub:       hub,
		Fairness:  fairness,
		Prizes:    prizes,
		Referrals: referrals,
	}
}

// DecideOutcome turns final scores and violations into the fight's terminal
// outcome. Winner comparison uses scoreUsdc, not pnlPercent, so a tiny-margin
// participant cannot out-rank real absolute PnL with leverage games.
func DecideOutcome(fairness *FairnessEngine, a, b ScoreSnapshot, violations []models.Violation, forceNoContest bool) (models.FightStatus, *string, bool) {
	if forceNoContest || fairness.ForcesNoContest(violations) {
		return models.FightStatusNoContest, nil, false
	}

	disqualified := fairness.DisqualifiedUsers(violations)
	aOK, bOK := !disqualified[a.UserID], !disqualified[b.UserID]

	switch {
	case !aOK && !bOK:
		return models.FightStatusNoContest, nil, false
	case aOK && !bOK:
		return models.FightStatusFinished, &a.UserID, false
	case bOK && !aOK:
		return models.FightStatusFinished, &b.UserID, false
	}

	switch a.ScoreUsdc.Cmp(b.ScoreUsdc) {
	case 1:
		return models.FightStatusFinished, &a.UserID, false
	case -1:
		return models.FightStatusFinished, &b.UserID, false
	}
	return models.FightStatusFinished, nil, true
}

// Settle finalizes a fight exactly once. Subsequent invocations for the same
// fight id are no-ops that return the already-committed result.
func (se *SettlementEngine) Settle(ctx context.Context, fightID string, opts SettleOptions) (*SettlementResult, error) {
	var result *SettlementResult

	err := se.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fight models.Fight
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&fight, "id = ?", fightID).Error; err != nil {
			return fmt.Errorf("failed to load fight %s: %w", fightID, err)
		}

		if fight.Status.IsTerminal() {
			// Settlement conflict: already terminal. Logged for audit, treated
			// as success.
			log.Printf("♻️ [SETTLE] Fight %s already %s — returning stored result", fightID, fight.Status)
			stored, err := se.loadStoredResult(tx, fightID)
			if err != nil {
				return err
			}
			result = stored
			return nil
		}
		if fight.Status != models.FightStatusLive {
			return fmt.Errorf("fight %s is %s, only LIVE fights settle", fightID, fight.Status)
		}

		var participants []models.FightParticipant
		if err := tx.Where("fight_id = ?", fightID).Order("created_at ASC").Find(&participants).Error; err != nil {
			return fmt.Errorf("failed to load participants: %w", err)
		}
		if len(participants) != 2 {
			return fmt.Errorf("fight %s has %d participants, expected 2", fightID, len(participants))
		}

		tradesByUser, err := se.loadTrades(tx, &fight)
		if err != nil {
			return err
		}

		input, err := se.buildFairnessInput(tx, &fight, participants, tradesByUser)
		if err != nil {
			return err
		}
		violations := se.Fairness.Evaluate(input)

		snapA := SnapshotFor(participants[0].UserID, tradesByUser[participants[0].UserID], fight.StakeUsdc)
		snapB := SnapshotFor(participants[1].UserID, tradesByUser[participants[1].UserID], fight.StakeUsdc)

		status, winnerID, isDraw := DecideOutcome(se.Fairness, snapA, snapB, violations, opts.Abort)

		now := time.Now().UTC()
		res := tx.Model(&models.Fight{}).
			Where("id = ? AND status IN ?", fightID, []models.FightStatus{models.FightStatusWaiting, models.FightStatusLive}).
			Updates(map[string]interface{}{
				"status":    status,
				"winner_id": winnerID,
				"is_draw":   isDraw,
				"ended_at":  now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to finalize fight %s: %w", fightID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race to a concurrent settlement attempt.
			log.Printf("♻️ [SETTLE] Fight %s finalized concurrently — returning stored result", fightID)
			stored, err := se.loadStoredResult(tx, fightID)
			if err != nil {
				return err
			}
			result = stored
			return nil
		}

		if err := se.writeFinalScores(tx, &fight, participants, snapA, snapB, input); err != nil {
			return err
		}

		for i := range violations {
			violations[i].FightID = fightID
		}
		if len(violations) > 0 {
			if err := tx.Create(&violations).Error; err != nil {
				return fmt.Errorf("failed to record violations: %w", err)
			}
		}

		// Only FINISHED fights enter the weekly ranking; voided fights never do.
		if status == models.FightStatusFinished {
			for _, snap := range []ScoreSnapshot{snapA, snapB} {
				fees := TotalFees(tradesByUser[snap.UserID])
				if err := se.Prizes.RecordFightResult(tx, now, snap.UserID, snap.ScoreUsdc, fees); err != nil {
					return fmt.Errorf("failed to merge weekly standing: %w", err)
				}
			}
		}

		// Referral commission is a cut of fees generated during the fight,
		// independent of win or loss, and keyed per fee event for idempotency.
		if err := se.Referrals.RecordFightCommissions(tx, &fight, tradesByUser); err != nil {
			return fmt.Errorf("failed to record referral commissions: %w", err)
		}

		result = &SettlementResult{
			FightID:    fightID,
			Status:     status,
			WinnerID:   winnerID,
			IsDraw:     isDraw,
			Scores:     map[string]ScoreSnapshot{snapA.UserID: snapA, snapB.UserID: snapB},
			Violations: violations,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadySettled {
		se.publishFinished(result)
		go se.afterSettlement(result, opts)
	}
	return result, nil
}

func (se *SettlementEngine) loadTrades(tx *gorm.DB, fight *models.Fight) (map[string][]models.TradeRecord, error) {
	var trades []models.TradeRecord
	q := tx.Where("fight_id = ?", fight.ID)
	if fight.StartedAt != nil {
		q = q.Where("executed_at >= ?", *fight.StartedAt)
	}
	if fight.EndsAt != nil {
		q = q.Where("executed_at <= ?", *fight.EndsAt)
	}
	if err := q.Order("executed_at ASC").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	byUser := map[string][]models.TradeRecord{}
	for _, t := range trades {
		byUser[t.UserID] = append(byUser[t.UserID], t)
	}
	return byUser, nil
}

func (se *SettlementEngine) buildFairnessInput(tx *gorm.DB, fight *models.Fight, participants []models.FightParticipant, tradesByUser map[string][]models.TradeRecord) (FairnessInput, error) {
	input := FairnessInput{FightID: fight.ID}

	for i, p := range participants {
		var externalIDs []string
		for _, t := range tradesByUser[p.UserID] {
			if t.OrderSource != models.SourceFightOrder {
				externalIDs = append(externalIDs, t.VenueExecID)
			}
		}

		// The address evidence is the snapshot frozen onto the seat when the
		// fight went LIVE, not the profile mirror's current value.
		input.Participants[i] = FairnessParticipant{
			UserID:           p.UserID,
			IP:               p.EntryIP,
			Trades:           tradesByUser[p.UserID],
			ExternalTradeIDs: externalIDs,
		}
	}

	count, err := se.matchupCount24h(tx, fight.ID, participants[0].UserID, participants[1].UserID)
	if err != nil {
		return input, err
	}
	input.MatchupCount24h = count
	return input, nil
}

func (se *SettlementEngine) matchupCount24h(tx *gorm.DB, fightID, userA, userB string) (int, error) {
	subA := tx.Model(&models.FightParticipant{}).Select("fight_id").Where("user_id = ?", userA)
	subB := tx.Model(&models.FightParticipant{}).Select("fight_id").Where("user_id = ?", userB)

	var count int64
	err := tx.Model(&models.Fight{}).
		Where("id IN (?)", subA).
		Where("id IN (?)", subB).
		Where("id <> ?", fightID).
		Where("created_at > ?", time.Now().UTC().Add(-24*time.Hour)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count repeated matchups: %w", err)
	}
	return int(count), nil
}

func (se *SettlementEngine) writeFinalScores(tx *gorm.DB, fight *models.Fight, participants []models.FightParticipant, snapA, snapB ScoreSnapshot, input FairnessInput) error {
	snaps := map[string]ScoreSnapshot{snapA.UserID: snapA, snapB.UserID: snapB}

	for i, p := range participants {
		snap := snaps[p.UserID]
		externalIDs, _ := json.Marshal(input.Participants[i].ExternalTradeIDs)

		err := tx.Model(&models.FightParticipant{}).
			Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"final_pnl_percent":       snap.PnlPercent,
				"final_score_usdc":        snap.ScoreUsdc,
				"trades_count":            snap.TradesCount,
				"has_external_trades":     len(input.Participants[i].ExternalTradeIDs) > 0,
				"external_trade_ids_json": string(externalIDs),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to write final scores for %s: %w", p.UserID, err)
		}
	}
	return nil
}

func (se *SettlementEngine) loadStoredResult(tx *gorm.DB, fightID string) (*SettlementResult, error) {
	var fight models.Fight
	if err := tx.Preload("Participants").Preload("Violations").First(&fight, "id = ?", fightID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload settled fight: %w", err)
	}

	scores := map[string]ScoreSnapshot{}
	for _, p := range fight.Participants {
		scores[p.UserID] = ScoreSnapshot{
			UserID:      p.UserID,
			PnlPercent:  p.FinalPnlPercent,
			ScoreUsdc:   p.FinalScoreUsdc,
			TradesCount: p.TradesCount,
		}
	}

	return &SettlementResult{
		FightID:        fightID,
		Status:         fight.Status,
		WinnerID:       fight.WinnerID,
		IsDraw:         fight.IsDraw,
		Scores:         scores,
		Violations:     fight.Violations,
		AlreadySettled: true,
	}, nil
}

func (se *SettlementEngine) publishFinished(result *SettlementResult) {
	finalScores := map[string]FinalScore{}
	for userID, s := range result.Scores {
		finalScores[userID] = FinalScore{
			PnlPercent: s.PnlPercent.StringFixed(4),
			ScoreUsdc:  s.ScoreUsdc,
		}
	}

	se.Hub.Publish(FightFinishedEvent{
		FightID:     result.FightID,
		WinnerID:    result.WinnerID,
		IsDraw:      result.IsDraw,
		Status:      result.Status,
		FinalScores: finalScores,
	})
	se.Hub.Publish(FightNoticeEvent{Notice: NoticeFightEnded, FightID: result.FightID})
}

// afterSettlement runs the fire-and-continue downstream work. None of it is
// required for settlement's own completion; failures are logged and retried
// by the scheduler jobs.
func (se *SettlementEngine) afterSettlement(result *SettlementResult, opts SettleOptions) {
	if result.Status == models.FightStatusFinished {
		if err := se.Prizes.RecomputeActiveRanking(); err != nil {
			log.Printf("❌ [SETTLE] Failed to recompute prize ranking after fight %s: %v", result.FightID, err)
		}
	}

	if opts.Abort {
		se.Hub.Publish(SystemAlertEvent{
			Level:     "warning",
			Message:   fmt.Sprintf("Fight %s aborted: %s", result.FightID, opts.AbortReason),
			Timestamp: time.Now().UTC(),
		})
	}

	if utils.R2Enabled() {
		key := fmt.Sprintf("settlements/%s.json", result.FightID)
		if _, err := utils.UploadJSON(key, result); err != nil {
			log.Printf("❌ [SETTLE] Failed to archive settlement audit for %s: %v", result.FightID, err)
		}
	}
}

// CommissionAmount is the fixed program cut of one fee event.
func CommissionAmount(fee, pct decimal.Decimal) decimal.Decimal {
	return fee.Mul(pct).Div(hundred).Round(6)
}
