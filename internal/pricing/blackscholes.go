// Package pricing provides closed-form Black-Scholes pricing, Greeks and
// implied-volatility inversion for European options.
package pricing

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"btc-hedger/internal/models"
)

// DefaultRiskFreeRate is used when no rate is configured.
const DefaultRiskFreeRate = 0.05

// DaysPerYear converts annual theta to a per-day figure.
const DaysPerYear = 365.0

// Engine prices options. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	RiskFreeRate float64
	logger       zerolog.Logger
}

// NewEngine creates a pricing engine with the given risk-free rate.
func NewEngine(riskFreeRate float64, logger zerolog.Logger) *Engine {
	return &Engine{
		RiskFreeRate: riskFreeRate,
		logger:       logger.With().Str("component", "pricing").Logger(),
	}
}

// NormCDF is the standard normal cumulative distribution function.
func NormCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// NormPDF is the standard normal probability density function.
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// forwardIntrinsic is the zero-volatility value max(S - K*e^(-rT), 0) for a
// call and its mirror for a put.
func forwardIntrinsic(kind models.OptionKind, s, k, t, r float64) float64 {
	discounted := k * math.Exp(-r*t)
	if kind == models.Put {
		return math.Max(discounted-s, 0)
	}
	return math.Max(s-discounted, 0)
}

func d1d2(s, k, t, r, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

// Price returns the Black-Scholes price. At or past expiry it returns intrinsic
// value; with no volatility it returns the discounted intrinsic value.
func (e *Engine) Price(kind models.OptionKind, s, k, t, r, sigma float64) float64 {
	if t <= 0 {
		return models.Intrinsic(kind, k, s)
	}
	if sigma <= 0 {
		return forwardIntrinsic(kind, s, k, t, r)
	}
	d1, d2 := d1d2(s, k, t, r, sigma)
	discount := k * math.Exp(-r*t)
	if kind == models.Put {
		return discount*NormCDF(-d2) - s*NormCDF(-d1)
	}
	return s*NormCDF(d1) - discount*NormCDF(d2)
}

// Greeks returns delta, gamma, theta per day, vega and rho per percentage point.
// At or past expiry, or with no volatility, delta collapses to 0 or +/-1 by
// moneyness against the discounted strike and the rest are zero.
func (e *Engine) Greeks(kind models.OptionKind, s, k, t, r, sigma float64) models.OptionGreeks {
	if t <= 0 || sigma <= 0 {
		strike := k
		if t > 0 {
			strike = k * math.Exp(-r*t)
		}
		var delta float64
		switch {
		case kind == models.Call && s > strike:
			delta = 1
		case kind == models.Put && s < strike:
			delta = -1
		}
		return models.OptionGreeks{Delta: delta}
	}

	d1, d2 := d1d2(s, k, t, r, sigma)
	sqrtT := math.Sqrt(t)
	pdf := NormPDF(d1)
	discount := k * math.Exp(-r*t)
	decay := -s * pdf * sigma / (2 * sqrtT)

	g := models.OptionGreeks{
		Gamma: pdf / (s * sigma * sqrtT),
		Vega:  s * sqrtT * pdf / 100,
	}
	if kind == models.Put {
		g.Delta = NormCDF(d1) - 1
		g.Theta = (decay + r*discount*NormCDF(-d2)) / DaysPerYear
		g.Rho = -t * discount * NormCDF(-d2) / 100
	} else {
		g.Delta = NormCDF(d1)
		g.Theta = (decay - r*discount*NormCDF(d2)) / DaysPerYear
		g.Rho = t * discount * NormCDF(d2) / 100
	}
	return g
}

// rawVega is the vega per unit (not per percentage point) change in volatility.
func rawVega(s, k, t, r, sigma float64) float64 {
	if t <= 0 || sigma <= 0 {
		return 0
	}
	d1, _ := d1d2(s, k, t, r, sigma)
	return s * math.Sqrt(t) * NormPDF(d1)
}

// OptionQuote is a full theoretical valuation of one option.
type OptionQuote struct {
	TheoreticalPrice  float64             `json:"theoretical_price"`
	ImpliedVolatility float64             `json:"implied_volatility"`
	Greeks            models.OptionGreeks `json:"greeks"`
	Bid               float64             `json:"bid"`
	Ask               float64             `json:"ask"`
	MidPrice          float64             `json:"mid_price"`
}

// Quote values an option at the engine's risk-free rate. When both bid and ask
// are supplied the implied volatility is solved from their mid; otherwise the
// input sigma is reported and bid/ask are synthesized one percent either side.
func (e *Engine) Quote(s, k, t, sigma float64, kind models.OptionKind, bid, ask *float64) OptionQuote {
	r := e.RiskFreeRate
	theo := e.Price(kind, s, k, t, r, sigma)
	q := OptionQuote{
		TheoreticalPrice:  theo,
		ImpliedVolatility: sigma,
		Greeks:            e.Greeks(kind, s, k, t, r, sigma),
		Bid:               theo * 0.99,
		Ask:               theo * 1.01,
		MidPrice:          theo,
	}
	if bid != nil {
		q.Bid = *bid
	}
	if ask != nil {
		q.Ask = *ask
	}
	if bid != nil && ask != nil {
		q.MidPrice = (*bid + *ask) / 2
		q.ImpliedVolatility = e.ImpliedVolatility(q.MidPrice, s, k, t, r, kind).Sigma
	}
	return q
}

// RefreshContract returns a copy of c with implied volatility and Greeks
// recomputed from its mid price against spot s at time now.
func (e *Engine) RefreshContract(c models.OptionContract, s float64, now time.Time) models.OptionContract {
	t := c.TimeToExpiry(now)
	iv := e.ImpliedVolatility(c.MidPrice(), s, c.Strike, t, e.RiskFreeRate, c.Kind)
	sigma := iv.Sigma
	if t > 0 && sigma == 0 {
		sigma = InitialVolGuess
	}
	out := c
	out.ImpliedVolatility = sigma
	out.Greeks = e.Greeks(c.Kind, s, c.Strike, t, e.RiskFreeRate, sigma)
	return out
}
