package hedge

import (
	"fmt"
	"math"

	"btc-hedger/internal/errors"
	"btc-hedger/internal/models"
)

// HedgeMetrics describes the effect of applying a hedge.
type HedgeMetrics struct {
	CurrentDelta  float64 `json:"current_delta"`
	ResultDelta   float64 `json:"result_delta"`
	HedgeRequired float64 `json:"hedge_required"`
	Cost          float64 `json:"cost"`
	RiskReduction float64 `json:"risk_reduction"`
	Effectiveness float64 `json:"effectiveness"`
}

// ValidateHedge checks a proposed hedge of qty units (always positive, the
// direction is implied by the kind) against the current delta.
func (r *Recommender) ValidateHedge(currentDelta, qty float64, kind models.HedgeKind, contract *models.OptionContract) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %s", errors.ErrUnknownKind, kind)
	}

	tol := r.tolerance()
	if kind == models.HedgePerpDeltaNeutral {
		if math.Abs(currentDelta) < tol {
			return errors.NewHedgeError(string(kind), "portfolio is already delta-neutral")
		}
		if want := math.Abs(currentDelta); math.Abs(qty-want) > tol {
			return errors.NewHedgeError(string(kind), fmt.Sprintf("hedge quantity should be %.4f for delta-neutral", want))
		}
	}

	if qty <= 0 {
		return errors.NewHedgeError(string(kind), "hedge quantity must be positive")
	}

	if contract != nil {
		switch {
		case kind == models.HedgeProtectivePut && contract.Kind != models.Put:
			return errors.NewHedgeError(string(kind), "protective put requires a put option")
		case kind == models.HedgeCoveredCall && contract.Kind != models.Call:
			return errors.NewHedgeError(string(kind), "covered call requires a call option")
		}
	} else if kind == models.HedgeProtectivePut || kind == models.HedgeCoveredCall || kind == models.HedgeCollar {
		return errors.NewHedgeError(string(kind), "option hedge requires a contract")
	}

	return nil
}

// fallbackOptionDelta is assumed when an option hedge has no contract.
const fallbackOptionDelta = 0.5

// Metrics estimates the delta after hedging qty units, its cost at spot, the
// dollar risk removed and an effectiveness score in [0, 1].
func (r *Recommender) Metrics(currentDelta, qty float64, kind models.HedgeKind, contract *models.OptionContract, spot float64) HedgeMetrics {
	var result, cost float64
	switch {
	case kind == models.HedgePerpDeltaNeutral:
		// qty is the unsigned size; the trade always opposes the current delta.
		result = currentDelta - math.Copysign(qty, currentDelta)
		cost = math.Abs(qty) * spot * r.perpFeeRate()
	case contract != nil:
		delta := contract.SignedDelta()
		if kind == models.HedgeCoveredCall {
			delta = -delta
		}
		result = currentDelta + qty*delta
		cost = math.Abs(qty) * contract.MidPrice()
		if kind == models.HedgeCoveredCall {
			cost = -cost
		}
	default:
		result = currentDelta + qty*fallbackOptionDelta
		cost = math.Abs(qty) * spot * r.perpFeeRate()
	}

	score := 1.0
	if currentDelta != 0 {
		score = effectiveness(kind) * (1 - math.Abs(result)/math.Abs(currentDelta))
		score = math.Max(0, math.Min(1, score))
	}

	return HedgeMetrics{
		CurrentDelta:  currentDelta,
		ResultDelta:   result,
		HedgeRequired: math.Abs(qty),
		Cost:          cost,
		RiskReduction: math.Abs(currentDelta-result) * spot * perpRiskScale,
		Effectiveness: score,
	}
}
