// Package hedge searches option chains for contracts that move a portfolio
// toward a target delta and ranks the resulting hedges.
package hedge

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"btc-hedger/internal/config"
	"btc-hedger/internal/models"
	"btc-hedger/internal/pricing"
)

// Search limits.
const (
	// DeltaNeutralTolerance is how close to the target delta counts as hedged.
	DeltaNeutralTolerance = 0.01
	// MinHedgeQuantity discards candidates too small to trade.
	MinHedgeQuantity = 0.001
	// MaxRecommendations caps the ranked candidate list.
	MaxRecommendations = 5
)

// Candidate is one contract sized to cover the required delta.
type Candidate struct {
	Contract       models.OptionContract `json:"contract"`
	Quantity       float64               `json:"quantity"` // positive buy, negative sell
	SignedDelta    float64               `json:"signed_delta"`
	Cost           float64               `json:"cost"`
	Effectiveness  float64               `json:"effectiveness"`
	RemainingDelta float64               `json:"remaining_delta"`
}

// Recommender finds and ranks hedges. It holds configuration only.
type Recommender struct {
	// Pricing fills in Greeks for contracts quoted without them. May be nil.
	Pricing     *pricing.Engine
	Tolerance   float64
	MinQuantity float64
	MaxResults  int

	// PerpSymbol is the perpetual used for delta-neutral hedges.
	PerpSymbol string
	// PerpFeeRate estimates the cost of the perpetual hedge.
	PerpFeeRate float64

	Now func() time.Time

	logger zerolog.Logger
}

// NewRecommender creates a recommender from hedge configuration.
func NewRecommender(cfg config.HedgeConfig, engine *pricing.Engine, logger zerolog.Logger) *Recommender {
	return &Recommender{
		Pricing:     engine,
		Tolerance:   cfg.DeltaTolerance,
		MinQuantity: cfg.MinQuantity,
		MaxResults:  cfg.MaxResults,
		logger:      logger.With().Str("component", "hedge").Logger(),
	}
}

func (r *Recommender) tolerance() float64 {
	if r.Tolerance <= 0 {
		return DeltaNeutralTolerance
	}
	return r.Tolerance
}

func (r *Recommender) minQuantity() float64 {
	if r.MinQuantity <= 0 {
		return MinHedgeQuantity
	}
	return r.MinQuantity
}

func (r *Recommender) maxResults() int {
	if r.MaxResults <= 0 {
		return MaxRecommendations
	}
	return r.MaxResults
}

func (r *Recommender) perpSymbol() string {
	if r.PerpSymbol == "" {
		return "BTC-USDT-SWAP"
	}
	return r.PerpSymbol
}

func (r *Recommender) perpFeeRate() float64 {
	if r.PerpFeeRate <= 0 {
		return 0.0005
	}
	return r.PerpFeeRate
}

func (r *Recommender) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// FindOptimalHedge sizes every contract in chain to cover targetDelta -
// currentDelta and returns the best candidates ranked by effectiveness, then
// cost. Contracts with zero delta, negligible size or cost above maxCost are
// skipped. An empty result is valid: the portfolio is already within
// tolerance or nothing fits.
func (r *Recommender) FindOptimalHedge(currentDelta, targetDelta float64, chain []models.OptionContract, maxCost *float64) []Candidate {
	required := targetDelta - currentDelta
	if math.Abs(required) < r.tolerance() {
		return nil
	}

	var candidates []Candidate
	for _, c := range chain {
		if !c.Kind.Valid() {
			continue
		}
		delta := c.SignedDelta()
		if delta == 0 || math.IsNaN(delta) {
			r.logger.Debug().Str("symbol", c.Symbol).Msg("skipping contract with zero delta")
			continue
		}

		qty := required / delta
		if math.Abs(qty) < r.minQuantity() {
			continue
		}

		cost := math.Abs(qty) * c.MidPrice()
		if maxCost != nil && cost > *maxCost {
			r.logger.Debug().
				Str("symbol", c.Symbol).
				Float64("cost", cost).
				Float64("max_cost", *maxCost).
				Msg("skipping contract above cost ceiling")
			continue
		}

		candidates = append(candidates, Candidate{
			Contract:       c,
			Quantity:       qty,
			SignedDelta:    delta,
			Cost:           cost,
			Effectiveness:  math.Min(1, math.Abs(qty*delta)/math.Abs(required)),
			RemainingDelta: required - qty*delta,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Effectiveness != candidates[j].Effectiveness {
			return candidates[i].Effectiveness > candidates[j].Effectiveness
		}
		return candidates[i].Cost < candidates[j].Cost
	})

	if n := r.maxResults(); len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// withGreeks returns chain with Greeks computed for contracts quoted with a
// zero delta. The input slice is not modified.
func (r *Recommender) withGreeks(chain []models.OptionContract, spot float64) []models.OptionContract {
	if r.Pricing == nil || spot <= 0 {
		return chain
	}
	now := r.now()
	out := make([]models.OptionContract, len(chain))
	for i, c := range chain {
		if c.Greeks.Delta == 0 {
			c = r.Pricing.RefreshContract(c, spot, now)
		}
		out[i] = c
	}
	return out
}
