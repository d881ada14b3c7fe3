package hedge

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"btc-hedger/internal/models"
)

// Effectiveness is the expected share of delta risk each hedge kind removes.
var Effectiveness = map[models.HedgeKind]float64{
	models.HedgePerpDeltaNeutral: 0.99,
	models.HedgeProtectivePut:    0.85,
	models.HedgeCoveredCall:      0.80,
	models.HedgeCollar:           0.90,
	models.HedgeDynamic:          0.95,
}

// DefaultEffectiveness applies to kinds missing from Effectiveness.
const DefaultEffectiveness = 0.8

// Risk reduction scales, as fractions of hedged delta notional.
const (
	perpRiskScale          = 0.10
	protectivePutRiskScale = 0.15
	coveredCallRiskScale   = 0.08
	collarRiskScale        = 0.20
	dynamicRiskScale       = 0.10
)

// Static hedge sizing.
const (
	protectivePutReduction = 0.5  // share of delta the put removes
	coveredCallReduction   = 0.3  // share of delta the call removes
	coveredCallMinOTM      = 1.05 // call strike must exceed spot by this factor
	collarPutMoneyness     = 0.95 // put strike targeted relative to spot
	collarCallMinOTM       = 1.10
	collarRemainingDelta   = 0.3
)

func effectiveness(kind models.HedgeKind) float64 {
	if v, ok := Effectiveness[kind]; ok {
		return v
	}
	return DefaultEffectiveness
}

func newID() string {
	return uuid.NewString()
}

// Recommend builds the standard hedge menu for a portfolio delta: a perpetual
// delta-neutral hedge, and for long delta a protective put, a covered call and
// a collar chosen from chain around spot.
func (r *Recommender) Recommend(currentDelta, spot float64, chain []models.OptionContract) []models.HedgeRecommendation {
	if math.Abs(currentDelta) < r.tolerance() {
		return nil
	}

	recs := []models.HedgeRecommendation{r.perpHedge(currentDelta, spot)}

	if len(chain) == 0 || currentDelta <= r.tolerance() {
		return recs
	}

	chain = r.withGreeks(chain, spot)
	var puts, calls []models.OptionContract
	for _, c := range chain {
		switch c.Kind {
		case models.Put:
			puts = append(puts, c)
		case models.Call:
			calls = append(calls, c)
		}
	}

	if rec, ok := r.protectivePut(currentDelta, spot, puts); ok {
		recs = append(recs, rec)
	}
	if rec, ok := r.coveredCall(currentDelta, spot, calls); ok {
		recs = append(recs, rec)
	}
	if rec, ok := r.collar(currentDelta, spot, puts, calls); ok {
		recs = append(recs, rec)
	}
	return recs
}

func (r *Recommender) perpHedge(currentDelta, spot float64) models.HedgeRecommendation {
	qty := -currentDelta
	direction := models.DirectionLong
	if qty < 0 {
		direction = models.DirectionShort
	}
	return models.HedgeRecommendation{
		ID:             newID(),
		Kind:           models.HedgePerpDeltaNeutral,
		Symbol:         r.perpSymbol(),
		Quantity:       qty,
		Direction:      direction,
		TargetDelta:    0,
		EstimatedCost:  math.Abs(qty) * spot * r.perpFeeRate(),
		RiskReduction:  math.Abs(currentDelta) * spot * perpRiskScale,
		Effectiveness:  effectiveness(models.HedgePerpDeltaNeutral),
		ResultingDelta: 0,
		Rationale:      fmt.Sprintf("Perpetual %s to achieve delta-neutral portfolio", direction),
	}
}

// nearest returns the contract whose strike is closest to target.
func nearest(contracts []models.OptionContract, target float64) (models.OptionContract, bool) {
	var best models.OptionContract
	found := false
	for _, c := range contracts {
		if c.SignedDelta() == 0 {
			continue
		}
		if !found || math.Abs(c.Strike-target) < math.Abs(best.Strike-target) {
			best, found = c, true
		}
	}
	return best, found
}

// lowestAbove returns the lowest-strike contract with strike above floor.
func lowestAbove(contracts []models.OptionContract, floor float64) (models.OptionContract, bool) {
	var best models.OptionContract
	found := false
	for _, c := range contracts {
		if c.Strike <= floor || c.SignedDelta() == 0 {
			continue
		}
		if !found || c.Strike < best.Strike {
			best, found = c, true
		}
	}
	return best, found
}

func (r *Recommender) protectivePut(currentDelta, spot float64, puts []models.OptionContract) (models.HedgeRecommendation, bool) {
	put, ok := nearest(puts, spot)
	if !ok {
		return models.HedgeRecommendation{}, false
	}
	target := currentDelta * (1 - protectivePutReduction)
	hedged := currentDelta - target
	qty := hedged / math.Abs(put.Greeks.Delta)

	return models.HedgeRecommendation{
		ID:             newID(),
		Kind:           models.HedgeProtectivePut,
		Symbol:         put.Symbol,
		Contract:       &put,
		Quantity:       qty,
		Direction:      models.DirectionBuy,
		TargetDelta:    target,
		EstimatedCost:  qty * put.MidPrice(),
		RiskReduction:  hedged * spot * protectivePutRiskScale,
		Effectiveness:  effectiveness(models.HedgeProtectivePut),
		ResultingDelta: currentDelta + qty*put.SignedDelta(),
		Rationale:      fmt.Sprintf("Protective put at %.0f strike", put.Strike),
	}, true
}

func (r *Recommender) coveredCall(currentDelta, spot float64, calls []models.OptionContract) (models.HedgeRecommendation, bool) {
	call, ok := lowestAbove(calls, spot*coveredCallMinOTM)
	if !ok {
		return models.HedgeRecommendation{}, false
	}
	target := currentDelta * (1 - coveredCallReduction)
	hedged := currentDelta - target
	qty := hedged / call.SignedDelta()

	return models.HedgeRecommendation{
		ID:             newID(),
		Kind:           models.HedgeCoveredCall,
		Symbol:         call.Symbol,
		Contract:       &call,
		Quantity:       -qty,
		Direction:      models.DirectionSell,
		TargetDelta:    target,
		EstimatedCost:  -qty * call.MidPrice(), // premium received
		RiskReduction:  hedged * spot * coveredCallRiskScale,
		Effectiveness:  effectiveness(models.HedgeCoveredCall),
		ResultingDelta: currentDelta - qty*call.SignedDelta(),
		Rationale:      fmt.Sprintf("Covered call at %.0f strike", call.Strike),
	}, true
}

func (r *Recommender) collar(currentDelta, spot float64, puts, calls []models.OptionContract) (models.HedgeRecommendation, bool) {
	put, ok := nearest(puts, spot*collarPutMoneyness)
	if !ok {
		return models.HedgeRecommendation{}, false
	}
	call, ok := lowestAbove(calls, spot*collarCallMinOTM)
	if !ok {
		return models.HedgeRecommendation{}, false
	}

	// Each collar is long one put and short one call.
	perCollar := math.Abs(put.Greeks.Delta) + call.SignedDelta()
	target := currentDelta * collarRemainingDelta
	n := (currentDelta - target) / perCollar
	netCost := n * (put.MidPrice() - call.MidPrice())

	return models.HedgeRecommendation{
		ID:       newID(),
		Kind:     models.HedgeCollar,
		Symbol:   put.Symbol + " + " + call.Symbol,
		Contract: &put,
		Collar: &models.CollarLegs{
			Put:          put,
			Call:         call,
			PutQuantity:  n,
			CallQuantity: -n,
		},
		Quantity:       n,
		Direction:      models.DirectionBuyPutSellCall,
		TargetDelta:    target,
		EstimatedCost:  netCost,
		RiskReduction:  currentDelta * spot * collarRiskScale,
		Effectiveness:  effectiveness(models.HedgeCollar),
		ResultingDelta: currentDelta - n*perCollar,
		Rationale:      fmt.Sprintf("Collar: %.0f put + %.0f call", put.Strike, call.Strike),
	}, true
}

// Dynamic runs FindOptimalHedge and maps each candidate to a recommendation.
// Bought puts become protective puts and sold calls covered calls; any other
// combination is reported as a dynamic hedge.
func (r *Recommender) Dynamic(currentDelta, targetDelta, spot float64, chain []models.OptionContract, maxCost *float64) []models.HedgeRecommendation {
	if len(chain) == 0 {
		return nil
	}

	candidates := r.FindOptimalHedge(currentDelta, targetDelta, r.withGreeks(chain, spot), maxCost)
	recs := make([]models.HedgeRecommendation, 0, len(candidates))
	for _, c := range candidates {
		contract := c.Contract

		direction := models.DirectionBuy
		if c.Quantity < 0 {
			direction = models.DirectionSell
		}
		kind := models.HedgeDynamic
		switch {
		case contract.Kind == models.Put && direction == models.DirectionBuy:
			kind = models.HedgeProtectivePut
		case contract.Kind == models.Call && direction == models.DirectionSell:
			kind = models.HedgeCoveredCall
		}

		recs = append(recs, models.HedgeRecommendation{
			ID:             newID(),
			Kind:           kind,
			Symbol:         contract.Symbol,
			Contract:       &contract,
			Quantity:       c.Quantity,
			Direction:      direction,
			TargetDelta:    targetDelta,
			EstimatedCost:  c.Cost,
			RiskReduction:  math.Abs(c.Quantity*c.SignedDelta) * spot * dynamicRiskScale,
			Effectiveness:  c.Effectiveness,
			ResultingDelta: targetDelta - c.RemainingDelta,
			Rationale:      fmt.Sprintf("Dynamic search: %s %s, %.1f%% effective", direction, contract.Symbol, c.Effectiveness*100),
		})
	}
	return recs
}
