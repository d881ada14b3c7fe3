package models

import "strings"

// HedgeKind is the closed set of hedge variants the recommender produces.
type HedgeKind string

const (
	HedgePerpDeltaNeutral HedgeKind = "perp_delta_neutral"
	HedgeProtectivePut    HedgeKind = "protective_put"
	HedgeCoveredCall      HedgeKind = "covered_call"
	HedgeCollar           HedgeKind = "collar"
	HedgeDynamic          HedgeKind = "dynamic_hedge"
	HedgeStraddle         HedgeKind = "straddle"
	HedgeStrangle         HedgeKind = "strangle"
)

// HedgeKinds lists every hedge kind in display order.
var HedgeKinds = []HedgeKind{
	HedgePerpDeltaNeutral,
	HedgeProtectivePut,
	HedgeCoveredCall,
	HedgeCollar,
	HedgeDynamic,
	HedgeStraddle,
	HedgeStrangle,
}

// Valid reports whether k is a known hedge kind.
func (k HedgeKind) Valid() bool {
	for _, known := range HedgeKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k HedgeKind) String() string {
	return string(k)
}

// Title returns a display name, e.g. "Protective Put".
func (k HedgeKind) Title() string {
	words := strings.Split(string(k), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// HedgeDirection is the trade direction of a recommendation.
type HedgeDirection string

const (
	DirectionLong           HedgeDirection = "long"
	DirectionShort          HedgeDirection = "short"
	DirectionBuy            HedgeDirection = "buy"
	DirectionSell           HedgeDirection = "sell"
	DirectionBuyPutSellCall HedgeDirection = "buy_put_sell_call"
)

// CollarLegs holds the two contracts of a collar.
type CollarLegs struct {
	Put          OptionContract `json:"put"`
	Call         OptionContract `json:"call"`
	PutQuantity  float64        `json:"put_quantity"`
	CallQuantity float64        `json:"call_quantity"`
}

// HedgeRecommendation is one ranked hedge proposal. It is regenerated per request.
type HedgeRecommendation struct {
	ID             string          `json:"id"`
	Kind           HedgeKind       `json:"kind"`
	Symbol         string          `json:"symbol"`
	Contract       *OptionContract `json:"contract,omitempty"`
	Collar         *CollarLegs     `json:"collar,omitempty"`
	Quantity       float64         `json:"quantity"`
	Direction      HedgeDirection  `json:"direction"`
	TargetDelta    float64         `json:"target_delta"`
	EstimatedCost  float64         `json:"estimated_cost"`
	RiskReduction  float64         `json:"risk_reduction"`
	Effectiveness  float64         `json:"effectiveness"`
	ResultingDelta float64         `json:"resulting_delta"` // portfolio delta after the hedge
	Rationale      string          `json:"rationale"`
}
