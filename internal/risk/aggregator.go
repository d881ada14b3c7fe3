// Package risk aggregates portfolio delta, Greeks, parametric VaR,
// concentration and stress scenarios from read-only position snapshots.
package risk

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"btc-hedger/internal/config"
	"btc-hedger/internal/models"
	"btc-hedger/internal/pricing"
)

// DeltaMode selects where option deltas come from.
type DeltaMode string

const (
	// DeltaModeAuto prefers supplied Greeks, then the pricing model, then moneyness bands.
	DeltaModeAuto DeltaMode = config.DeltaModeAuto
	// DeltaModeSupplied uses supplied Greeks and falls back to moneyness bands.
	DeltaModeSupplied DeltaMode = config.DeltaModeSupplied
	// DeltaModeModel prices every option with Black-Scholes and falls back to moneyness bands.
	DeltaModeModel DeltaMode = config.DeltaModeModel
	// DeltaModeMoneyness always uses moneyness bands.
	DeltaModeMoneyness DeltaMode = config.DeltaModeMoneyness
)

// DeltaSource records which path produced a position's delta.
type DeltaSource string

const (
	DeltaSourceLinear    DeltaSource = "linear" // spot and perpetuals, 1:1
	DeltaSourceSupplied  DeltaSource = "supplied"
	DeltaSourceModel     DeltaSource = "model"
	DeltaSourceMoneyness DeltaSource = "moneyness"
	DeltaSourceUnknown   DeltaSource = "unknown" // option terms missing, contributes no delta
)

// DeltaReport is the portfolio delta with the source used per symbol.
type DeltaReport struct {
	Total   float64                `json:"total"`
	Sources map[string]DeltaSource `json:"sources"`
}

// Aggregator computes portfolio risk. It never mutates the positions it reads.
type Aggregator struct {
	AnnualVolatility float64
	VaRMultiplier    float64
	TradingDays      int
	MoneynessBand    float64
	Mode             DeltaMode

	// Pricing enables the model delta path. May be nil.
	Pricing *pricing.Engine
	// Now is the valuation time for time to expiry. Defaults to time.Now.
	Now func() time.Time

	logger zerolog.Logger
}

// NewAggregator creates an aggregator from risk configuration.
func NewAggregator(cfg config.RiskConfig, engine *pricing.Engine, logger zerolog.Logger) *Aggregator {
	multiplier := cfg.VaRMultiplier
	if multiplier == 0 {
		multiplier = ConfidenceMultiplier(cfg.VaRConfidence)
	}
	mode := DeltaMode(cfg.DeltaMode)
	if mode == "" {
		mode = DeltaModeAuto
	}
	return &Aggregator{
		AnnualVolatility: cfg.AnnualVolatility,
		VaRMultiplier:    multiplier,
		TradingDays:      cfg.TradingDays,
		MoneynessBand:    cfg.MoneynessBand,
		Mode:             mode,
		Pricing:          engine,
		logger:           logger.With().Str("component", "risk").Logger(),
	}
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Aggregator) band() float64 {
	if a.MoneynessBand <= 0 {
		return DefaultMoneynessBand
	}
	return a.MoneynessBand
}

// priced returns the positions with a positive price and that price.
func priced(positions []models.Position, prices map[string]float64) ([]models.Position, []float64) {
	var out []models.Position
	var px []float64
	for _, p := range positions {
		price := prices[p.Symbol]
		if price > 0 {
			out = append(out, p)
			px = append(px, price)
		}
	}
	return out, px
}

// UnderlyingPrice finds the underlying price for an option position. It looks
// up the bare underlying and its USD-quoted spot and swap symbols.
func UnderlyingPrice(underlying string, prices map[string]float64) (float64, bool) {
	if underlying == "" {
		return 0, false
	}
	for _, key := range []string{underlying, underlying + "-USDT", underlying + "-USD", underlying + "-USDT-SWAP", underlying + "-PERPETUAL"} {
		if v := prices[key]; v > 0 {
			return v, true
		}
	}
	return 0, false
}

// optionGreeks resolves per-unit Greeks for an option position.
func (a *Aggregator) optionGreeks(p models.Position, prices map[string]float64) (models.OptionGreeks, DeltaSource) {
	terms, ok := p.OptionTerms()
	if !ok {
		a.logger.Warn().Str("symbol", p.Symbol).Msg("option terms unavailable, excluding from delta")
		return models.OptionGreeks{}, DeltaSourceUnknown
	}

	mode := a.Mode
	if mode == "" {
		mode = DeltaModeAuto
	}

	if (mode == DeltaModeAuto || mode == DeltaModeSupplied) && terms.Greeks != nil {
		g := *terms.Greeks
		if terms.Kind == models.Put {
			g.Delta = -math.Abs(g.Delta)
		}
		return g, DeltaSourceSupplied
	}

	underlying := ""
	if parsed, err := models.ParseOptionSymbol(p.Symbol); err == nil {
		underlying = parsed.Underlying
	}
	spot, haveSpot := UnderlyingPrice(underlying, prices)

	if (mode == DeltaModeAuto || mode == DeltaModeModel) && a.Pricing != nil && haveSpot {
		sigma := terms.ImpliedVolatility
		if sigma <= 0 && mode == DeltaModeModel {
			sigma = a.AnnualVolatility
		}
		t := models.OptionContract{Expiry: terms.Expiry}.TimeToExpiry(a.now())
		if sigma > 0 && !terms.Expiry.IsZero() {
			return a.Pricing.Greeks(terms.Kind, spot, terms.Strike, t, a.Pricing.RiskFreeRate, sigma), DeltaSourceModel
		}
	}

	if !haveSpot {
		a.logger.Debug().Str("symbol", p.Symbol).Msg("no underlying price, using at-the-money band")
	}
	return ApproxGreeks(terms.Kind, spot, terms.Strike, a.band()), DeltaSourceMoneyness
}

func (a *Aggregator) positionGreeks(p models.Position, prices map[string]float64) (models.OptionGreeks, DeltaSource) {
	if p.Kind == models.InstrumentOption {
		g, src := a.optionGreeks(p, prices)
		return g.Scale(p.Quantity), src
	}
	return models.OptionGreeks{Delta: p.Quantity}, DeltaSourceLinear
}

// TotalDelta sums position deltas. Spot and perpetual positions contribute
// their signed quantity, options qty x delta. Positions without a positive
// price are skipped. An empty portfolio has delta exactly 0.
func (a *Aggregator) TotalDelta(positions []models.Position, prices map[string]float64) DeltaReport {
	report := DeltaReport{Sources: make(map[string]DeltaSource)}
	live, _ := priced(positions, prices)
	for _, p := range live {
		g, src := a.positionGreeks(p, prices)
		report.Total += g.Delta
		report.Sources[p.Symbol] = src
		a.logger.Debug().
			Str("symbol", p.Symbol).
			Str("source", string(src)).
			Float64("delta", g.Delta).
			Msg("position delta")
	}
	return report
}

// GreeksSummary aggregates delta, gamma, theta, vega and rho across positions.
func (a *Aggregator) GreeksSummary(positions []models.Position, prices map[string]float64) models.OptionGreeks {
	var total models.OptionGreeks
	live, _ := priced(positions, prices)
	for _, p := range live {
		g, _ := a.positionGreeks(p, prices)
		total = total.Add(g)
	}
	return total
}
