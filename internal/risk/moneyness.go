package risk

import "btc-hedger/internal/models"

// Moneyness classifies an option relative to the underlying price.
type Moneyness string

const (
	ITM Moneyness = "ITM"
	ATM Moneyness = "ATM"
	OTM Moneyness = "OTM"
)

// DefaultMoneynessBand is the half-width around S/K = 1 treated as at-the-money.
const DefaultMoneynessBand = 0.02

// bandGreeks approximates per-unit Greeks when no live Greeks are available.
// Gamma is expressed in units of 1/S, theta and vega as fractions of S, so
// the table scales with the underlying.
var bandGreeks = map[Moneyness]struct {
	Delta float64 // call delta, negated for puts
	Gamma float64
	Theta float64 // per day
	Vega  float64 // per vol point
}{
	ITM: {Delta: 0.85, Gamma: 1.0, Theta: -0.0005, Vega: 0.0006},
	ATM: {Delta: 0.50, Gamma: 2.0, Theta: -0.0010, Vega: 0.0010},
	OTM: {Delta: 0.15, Gamma: 1.0, Theta: -0.0005, Vega: 0.0006},
}

// MoneynessBand classifies an option by S/K. Calls are ITM above 1+band and
// OTM below 1-band; puts are mirrored.
func MoneynessBand(kind models.OptionKind, spot, strike, band float64) Moneyness {
	if spot <= 0 || strike <= 0 {
		return ATM
	}
	if band < 0 {
		band = DefaultMoneynessBand
	}
	m := spot / strike
	switch {
	case m > 1+band:
		if kind == models.Put {
			return OTM
		}
		return ITM
	case m < 1-band:
		if kind == models.Put {
			return ITM
		}
		return OTM
	default:
		return ATM
	}
}

// ApproxDelta returns the banded delta: calls {0.15, 0.5, 0.85}, puts
// {-0.15, -0.5, -0.85} for OTM, ATM and ITM.
func ApproxDelta(kind models.OptionKind, m Moneyness) float64 {
	d := bandGreeks[m].Delta
	if kind == models.Put {
		return -d
	}
	return d
}

// ApproxGreeks returns banded per-unit Greeks for an option.
func ApproxGreeks(kind models.OptionKind, spot, strike, band float64) models.OptionGreeks {
	m := MoneynessBand(kind, spot, strike, band)
	row := bandGreeks[m]
	g := models.OptionGreeks{Delta: ApproxDelta(kind, m)}
	if spot > 0 {
		g.Gamma = row.Gamma / spot
		g.Theta = row.Theta * spot
		g.Vega = row.Vega * spot
	}
	return g
}
