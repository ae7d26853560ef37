// Package pacing implements the Intraday Pacing Controller (C6): a
// real-time budget-runway loop that throttles spend via hourly multipliers
// and detects click anomalies. It never touches base bids — only the
// hourly-multiplier override table (spec §4.6). Grounded on spec §4.6 and
// the worked scenario in spec §8; the periodic-loop shape is grounded on
// the teacher's ReloadInterval ticker (tools/cmd/server/main.go,
// patrickwarner-openadserve).
package pacing

import (
	"time"

	"github.com/patrickwarner/bidops/internal/models"
	"github.com/shopspring/decimal"
)

const (
	startHour      = 0
	targetEndHour  = 22
	clickFraudPerHour = 100
	clickFraudCTR     = 0.15
	budgetDrainMinClicks  = 50
	budgetDrainSpendPerClick = 2.0
)

// Status is the pacing ladder state (spec §4.6 step 3).
type Status string

const (
	StatusCritical     Status = "critical"
	StatusOverspending Status = "overspending"
	StatusUnderspending Status = "underspending"
	StatusOnTrack      Status = "on_track"
)

// ActionType enumerates what an IntradayAdjustment asks the caller to do.
type ActionType string

const (
	ActionReduceBid ActionType = "reduce_bid"
	ActionIncrease  ActionType = "increase_bid"
	ActionNone      ActionType = "none"
	ActionPause     ActionType = "pause"
	ActionAlert     ActionType = "alert"
)

// Snapshot is the realtime input read for one campaign via C3's realtime
// channel (spend/clicks/impressions only, per the realtime-field
// restriction in spec §4.3).
type Snapshot struct {
	CampaignID      string
	TodaySpend      decimal.Decimal
	TodayClicks     int64
	TodayImpressions int64
	DailyBudget     decimal.Decimal
	CurrentHour     int // hour of day, 0-23
}

// IntradayAdjustment is the output of one pacing evaluation.
type IntradayAdjustment struct {
	CampaignID        string
	Status            Status
	PacingRatio        float64
	HourlyMultiplier   float64
	Action             ActionType
	AnomalyDetected    bool
	AnomalyType        string // "click_fraud" | "budget_drain" | ""
}

// Evaluate runs one pacing cycle for a campaign snapshot (spec §4.6 steps
// 1-5). Conversion-derived anomalies are deliberately never computed here
// — only spend/clicks/impressions are read, matching the realtime-field
// restriction.
func Evaluate(s Snapshot, params models.AlgorithmParams) IntradayAdjustment {
	idealSpendPct := float64(s.CurrentHour-startHour) / float64(targetEndHour-startHour)
	if idealSpendPct <= 0 {
		idealSpendPct = 1e-9 // avoid divide-by-zero before the window opens
	}

	budget, _ := s.DailyBudget.Float64()
	spend, _ := s.TodaySpend.Float64()
	actualSpendPct := 0.0
	if budget > 0 {
		actualSpendPct = spend / budget
	}
	ratio := actualSpendPct / idealSpendPct

	status, multiplier, action := ladder(ratio, params)

	adj := IntradayAdjustment{
		CampaignID:       s.CampaignID,
		Status:           status,
		PacingRatio:      ratio,
		HourlyMultiplier: multiplier,
		Action:           action,
	}

	if anomaly, kind := detectAnomaly(s); anomaly {
		adj.AnomalyDetected = true
		adj.AnomalyType = kind
		if kind == "click_fraud" {
			adj.Action = ActionPause
		} else if adj.Action == ActionNone {
			adj.Action = ActionAlert
		}
	}

	return adj
}

func ladder(ratio float64, params models.AlgorithmParams) (Status, float64, ActionType) {
	switch {
	case ratio >= params.PacingCriticalRatio:
		return StatusCritical, 0.5, ActionReduceBid
	case ratio >= params.PacingOverspendingRatio:
		return StatusOverspending, 0.8, ActionReduceBid
	case ratio <= params.PacingUnderspendingRatio:
		return StatusUnderspending, 1.2, ActionIncrease
	default:
		return StatusOnTrack, 1.0, ActionNone
	}
}

func detectAnomaly(s Snapshot) (bool, string) {
	clicksPerHour := float64(s.TodayClicks)
	if s.CurrentHour > 0 {
		clicksPerHour = float64(s.TodayClicks) / float64(s.CurrentHour)
	}
	ctr := 0.0
	if s.TodayImpressions > 0 {
		ctr = float64(s.TodayClicks) / float64(s.TodayImpressions)
	}
	if clicksPerHour > clickFraudPerHour || ctr > clickFraudCTR {
		return true, "click_fraud"
	}

	spend, _ := s.TodaySpend.Float64()
	if s.TodayClicks > budgetDrainMinClicks && s.TodayClicks > 0 {
		spendPerClick := spend / float64(s.TodayClicks)
		if spendPerClick > budgetDrainSpendPerClick {
			return true, "budget_drain"
		}
	}

	return false, ""
}

// MinInterval returns the minimum legal interval between pacing
// evaluations for a single campaign (spec §4.6: "never less").
func MinInterval(params models.AlgorithmParams) time.Duration {
	minutes := params.PacingMinIntervalMinutes
	if minutes < 15 {
		minutes = 15
	}
	return time.Duration(minutes) * time.Minute
}
