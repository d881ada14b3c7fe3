package pricing

import (
	"math"

	"btc-hedger/internal/models"
)

// Newton-Raphson solver parameters.
const (
	InitialVolGuess = 0.5
	MinVol          = 0.01
	MaxVol          = 5.0
	IVTolerance     = 1e-6
	MaxIVIterations = 100
	MinVega         = 1e-10
)

// IVResult is a best-effort implied volatility. Converged is false when the
// iteration cap was hit, vega underflowed, or the option had already expired.
type IVResult struct {
	Sigma      float64 `json:"sigma"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
}

// ImpliedVolatility inverts Price for sigma using Newton-Raphson from 0.5,
// clamping every iterate to [MinVol, MaxVol].
func (e *Engine) ImpliedVolatility(marketPrice, s, k, t, r float64, kind models.OptionKind) IVResult {
	if t <= 0 {
		return IVResult{}
	}

	sigma := InitialVolGuess
	for i := 1; i <= MaxIVIterations; i++ {
		vega := rawVega(s, k, t, r, sigma)
		if math.Abs(vega) < MinVega {
			e.logger.Debug().
				Float64("sigma", sigma).
				Int("iteration", i).
				Msg("vega underflow, returning last estimate")
			return IVResult{Sigma: sigma, Iterations: i}
		}

		diff := marketPrice - e.Price(kind, s, k, t, r, sigma)
		next := math.Max(MinVol, math.Min(MaxVol, sigma+diff/vega))

		if math.Abs(next-sigma) < IVTolerance {
			return IVResult{Sigma: next, Iterations: i, Converged: true}
		}
		sigma = next
	}

	e.logger.Debug().
		Float64("market_price", marketPrice).
		Float64("sigma", sigma).
		Msg("implied volatility did not converge")
	return IVResult{Sigma: sigma, Iterations: MaxIVIterations}
}
