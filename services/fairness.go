package services

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"fight-arena/models"
)

// FairnessConfig pins the adjudication policy knobs. The two booleans encode
// product decisions that were explicitly settled before implementation:
//   - MinVolumeVoidsFight: a one-sided MIN_VOLUME failure voids the whole
//     fight rather than awarding the compliant side.
//   - ExternalTradesVoidFight: off — EXTERNAL_TRADES only disqualifies the
//     flagged participant from winning; the fight stays valid unless both
//     sides are flagged.
type FairnessConfig struct {
	MinVolumeUsd            decimal.Decimal
	RepeatedMatchupLimit    int
	MinVolumeVoidsFight     bool
	ExternalTradesVoidFight bool
}

func DefaultFairnessConfig() FairnessConfig {
	return FairnessConfig{
		MinVolumeUsd:            decimal.NewFromInt(10),
		RepeatedMatchupLimit:    3,
		MinVolumeVoidsFight:     true,
		ExternalTradesVoidFight: false,
	}
}

// FairnessParticipant is the per-user evidence the rules inspect.
type FairnessParticipant struct {
	UserID           string
	IP               string
	Trades           []models.TradeRecord
	ExternalTradeIDs []string
}

// FairnessInput bundles everything a rule may look at. MatchupCount24h is the
// number of fights this same pair completed in the trailing 24 hours,
// excluding the fight under evaluation.
type FairnessInput struct {
	FightID         string
	Participants    [2]FairnessParticipant
	MatchupCount24h int
}

// FairnessEngine evaluates a fight's history against the voidance rules. It
// runs at the LIVE→terminal transition and on demand for audits; it never
// mutates anything, it only reports violations.
type FairnessEngine struct {
	cfg     FairnessConfig
	printer *message.Printer
}

func NewFairnessEngine(cfg FairnessConfig) *FairnessEngine {
	return &FairnessEngine{
		cfg:     cfg,
		printer: message.NewPrinter(language.English),
	}
}

// Evaluate runs every rule in a fixed, deterministic order so the reported
// Violation[0] — the one surfaced to users — is stable across re-evaluation.
func (e *FairnessEngine) Evaluate(in FairnessInput) []models.Violation {
	var out []models.Violation
	out = append(out, e.checkZeroZero(in)...)
	out = append(out, e.checkSameIP(in)...)
	out = append(out, e.checkRepeatedMatchup(in)...)
	out = append(out, e.checkMinVolume(in)...)
	out = append(out, e.checkExternalTrades(in)...)
	return out
}

func (e *FairnessEngine) checkZeroZero(in FairnessInput) []models.Violation {
	if len(in.Participants[0].Trades) > 0 || len(in.Participants[1].Trades) > 0 {
		return nil
	}
	return []models.Violation{{
		FightID: in.FightID,
		Code:    models.ViolationZeroZero,
		Message: "Neither participant executed a trade during the fight window.",
	}}
}

func (e *FairnessEngine) checkSameIP(in FairnessInput) []models.Violation {
	a, b := in.Participants[0], in.Participants[1]
	if a.IP == "" || b.IP == "" || a.IP != b.IP {
		return nil
	}
	return []models.Violation{{
		FightID: in.FightID,
		Code:    models.ViolationSameIPPattern,
		Message: "Both participants traded from the same network address during the fight.",
	}}
}

func (e *FairnessEngine) checkRepeatedMatchup(in FairnessInput) []models.Violation {
	if in.MatchupCount24h < e.cfg.RepeatedMatchupLimit {
		return nil
	}
	return []models.Violation{{
		FightID: in.FightID,
		Code:    models.ViolationRepeatedMatchup,
		Message: e.printer.Sprintf("This pair has already fought %d times in the last 24 hours.", in.MatchupCount24h),
	}}
}

func (e *FairnessEngine) checkMinVolume(in FairnessInput) []models.Violation {
	var out []models.Violation
	for _, p := range in.Participants {
		// ZERO_ZERO already covers the nobody-traded case.
		if len(p.Trades) == 0 && len(in.Participants[0].Trades) == 0 && len(in.Participants[1].Trades) == 0 {
			continue
		}
		notional := TotalNotional(p.Trades)
		if notional.GreaterThanOrEqual(e.cfg.MinVolumeUsd) {
			continue
		}
		got, _ := notional.Float64()
		min, _ := e.cfg.MinVolumeUsd.Float64()
		out = append(out, models.Violation{
			FightID:       in.FightID,
			Code:          models.ViolationMinVolume,
			FlaggedUserID: p.UserID,
			Message:       e.printer.Sprintf("Total traded volume of $%.2f is below the $%.2f minimum.", got, min),
		})
	}
	return out
}

func (e *FairnessEngine) checkExternalTrades(in FairnessInput) []models.Violation {
	var out []models.Violation
	for _, p := range in.Participants {
		if len(p.ExternalTradeIDs) == 0 {
			continue
		}
		out = append(out, models.Violation{
			FightID:       in.FightID,
			Code:          models.ViolationExternalTrades,
			FlaggedUserID: p.UserID,
			Message:       e.printer.Sprintf("%d execution(s) on the venue did not originate from a fight order.", len(p.ExternalTradeIDs)),
		})
	}
	return out
}

// ForcesNoContest reports whether the recorded violations void the fight.
// ZERO_ZERO, SAME_IP_PATTERN and REPEATED_MATCHUP always void. MIN_VOLUME and
// EXTERNAL_TRADES follow the pinned policy, except that both sides being
// flagged by the same rule always voids — there is nobody left to award.
func (e *FairnessEngine) ForcesNoContest(violations []models.Violation) bool {
	perCode := map[models.ViolationCode]int{}
	for _, v := range violations {
		perCode[v.Code]++
		switch v.Code {
		case models.ViolationZeroZero, models.ViolationSameIPPattern, models.ViolationRepeatedMatchup:
			return true
		case models.ViolationMinVolume:
			if e.cfg.MinVolumeVoidsFight {
				return true
			}
		case models.ViolationExternalTrades:
			if e.cfg.ExternalTradesVoidFight {
				return true
			}
		}
	}
	return perCode[models.ViolationMinVolume] >= 2 || perCode[models.ViolationExternalTrades] >= 2
}

// DisqualifiedUsers returns the users barred from winning by non-voiding
// violations.
func (e *FairnessEngine) DisqualifiedUsers(violations []models.Violation) map[string]bool {
	out := map[string]bool{}
	for _, v := range violations {
		if v.FlaggedUserID == "" {
			continue
		}
		switch v.Code {
		case models.ViolationMinVolume:
			if !e.cfg.MinVolumeVoidsFight {
				out[v.FlaggedUserID] = true
			}
		case models.ViolationExternalTrades:
			if !e.cfg.ExternalTradesVoidFight {
				out[v.FlaggedUserID] = true
			}
		}
	}
	return out
}
