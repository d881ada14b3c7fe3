package risk

import (
	"fmt"
	"sort"

	"btc-hedger/internal/errors"
	"btc-hedger/internal/models"
)

// Scenario is a deterministic market shock.
type Scenario struct {
	Key                  string  `json:"key"`
	Name                 string  `json:"name"`
	Description          string  `json:"description"`
	PriceShock           float64 `json:"price_shock"`
	VolatilityMultiplier float64 `json:"volatility_multiplier"`
}

// Scenarios are the built-in stress scenarios keyed by name.
var Scenarios = map[string]Scenario{
	"market_crash_20": {
		Key:                  "market_crash_20",
		Name:                 "Market Crash (-20%)",
		Description:          "20% decline across all assets",
		PriceShock:           -0.20,
		VolatilityMultiplier: 2,
	},
	"market_crash_50": {
		Key:                  "market_crash_50",
		Name:                 "Severe Market Crash (-50%)",
		Description:          "50% decline across all assets",
		PriceShock:           -0.50,
		VolatilityMultiplier: 3,
	},
	"volatility_spike": {
		Key:                  "volatility_spike",
		Name:                 "Volatility Spike",
		Description:          "Prices unchanged, volatility quadruples",
		PriceShock:           0,
		VolatilityMultiplier: 4,
	},
	"flash_crash": {
		Key:                  "flash_crash",
		Name:                 "Flash Crash",
		Description:          "Rapid 10% decline with extreme volatility",
		PriceShock:           -0.10,
		VolatilityMultiplier: 5,
	},
}

// ScenarioNames returns the built-in scenario keys in sorted order.
func ScenarioNames() []string {
	names := make([]string, 0, len(Scenarios))
	for k := range Scenarios {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// StressResult compares the portfolio before and after a scenario.
type StressResult struct {
	Scenario       Scenario           `json:"scenario"`
	CurrentPnL     float64            `json:"current_pnl"`
	StressedPnL    float64            `json:"stressed_pnl"`
	PnLChange      float64            `json:"pnl_change"`
	CurrentVaR     float64            `json:"current_var"`
	StressedVaR    float64            `json:"stressed_var"`
	VaRChange      float64            `json:"var_change"`
	CurrentDelta   float64            `json:"current_delta"`
	StressedDelta  float64            `json:"stressed_delta"`
	StressedPrices map[string]float64 `json:"stressed_prices"`
}

// StressTest applies a named scenario. Spot and perpetual prices move by the
// shock. Options with known terms are repriced with Black-Scholes on the
// shocked underlying at scaled volatility when a pricing engine is set, and
// move by the shock otherwise. Stressed VaR uses the scaled volatility.
func (a *Aggregator) StressTest(positions []models.Position, prices map[string]float64, name string) (StressResult, error) {
	sc, ok := Scenarios[name]
	if !ok {
		return StressResult{}, fmt.Errorf("%w: %s", errors.ErrUnknownScenario, name)
	}
	return a.ApplyScenario(positions, prices, sc), nil
}

// ApplyScenario runs an arbitrary scenario.
func (a *Aggregator) ApplyScenario(positions []models.Position, prices map[string]float64, sc Scenario) StressResult {
	stressed := make(map[string]float64, len(prices))
	for sym, px := range prices {
		stressed[sym] = px * (1 + sc.PriceShock)
	}

	mult := sc.VolatilityMultiplier
	if mult <= 0 {
		mult = 1
	}

	if a.Pricing != nil {
		now := a.now()
		for _, p := range positions {
			if p.Kind != models.InstrumentOption {
				continue
			}
			if _, ok := prices[p.Symbol]; !ok {
				continue
			}
			terms, ok := p.OptionTerms()
			if !ok || terms.Expiry.IsZero() {
				continue
			}
			parsed, err := models.ParseOptionSymbol(p.Symbol)
			if err != nil {
				continue
			}
			spot, ok := UnderlyingPrice(parsed.Underlying, stressed)
			if !ok {
				continue
			}
			sigma := terms.ImpliedVolatility
			if sigma <= 0 {
				sigma = a.AnnualVolatility
			}
			t := models.OptionContract{Expiry: terms.Expiry}.TimeToExpiry(now)
			stressed[p.Symbol] = a.Pricing.Price(terms.Kind, spot, terms.Strike, t, a.Pricing.RiskFreeRate, sigma*mult)
		}
	}

	res := StressResult{
		Scenario:       sc,
		CurrentPnL:     unrealized(positions, prices),
		StressedPnL:    unrealized(positions, stressed),
		CurrentVaR:     a.VaRForNotional(TotalNotional(positions, prices), a.AnnualVolatility),
		StressedVaR:    a.VaRForNotional(TotalNotional(positions, stressed), a.AnnualVolatility*mult),
		CurrentDelta:   a.TotalDelta(positions, prices).Total,
		StressedDelta:  a.TotalDelta(positions, stressed).Total,
		StressedPrices: stressed,
	}
	res.PnLChange = res.StressedPnL - res.CurrentPnL
	res.VaRChange = res.StressedVaR - res.CurrentVaR

	a.logger.Debug().
		Str("scenario", sc.Key).
		Float64("pnl_change", res.PnLChange).
		Float64("var_change", res.VaRChange).
		Msg("stress scenario applied")

	return res
}

func unrealized(positions []models.Position, prices map[string]float64) float64 {
	total := 0.0
	live, px := priced(positions, prices)
	for i, p := range live {
		total += p.UnrealizedPnL(px[i])
	}
	return total
}
