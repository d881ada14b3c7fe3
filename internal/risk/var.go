package risk

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"btc-hedger/internal/models"
)

// DefaultVaRMultiplier is the one-sided 95% z-score.
const DefaultVaRMultiplier = 1.645

// ConfidenceMultiplier returns the one-sided standard normal quantile for a
// confidence level, e.g. 0.95 -> 1.645. Levels outside (0.5, 1) fall back to
// DefaultVaRMultiplier.
func ConfidenceMultiplier(level float64) float64 {
	if !(level > 0.5 && level < 1) {
		return DefaultVaRMultiplier
	}
	return distuv.UnitNormal.Quantile(level)
}

// DailyVolatility converts an annualized volatility to a daily one.
func DailyVolatility(annual float64, tradingDays int) float64 {
	if tradingDays <= 0 {
		tradingDays = 252
	}
	return annual / math.Sqrt(float64(tradingDays))
}

// TotalNotional sums |qty x price| over priced positions.
func TotalNotional(positions []models.Position, prices map[string]float64) float64 {
	total := 0.0
	live, px := priced(positions, prices)
	for i, p := range live {
		total += p.Notional(px[i])
	}
	return total
}

// VaRForNotional is notional x daily volatility x multiplier, never negative.
func (a *Aggregator) VaRForNotional(notional, annualVol float64) float64 {
	mult := a.VaRMultiplier
	if mult <= 0 {
		mult = DefaultVaRMultiplier
	}
	v := math.Abs(notional) * DailyVolatility(annualVol, a.TradingDays) * mult
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// VaR95 returns one-day parametric VaR at the configured multiplier.
func (a *Aggregator) VaR95(positions []models.Position, prices map[string]float64) float64 {
	return a.VaRForNotional(TotalNotional(positions, prices), a.AnnualVolatility)
}

// RealizedVolatility annualizes the sample standard deviation of log returns.
// It returns 0 when fewer than three positive closes are supplied.
func RealizedVolatility(closes []float64, periodsPerYear float64) float64 {
	var returns []float64
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(periodsPerYear)
}

// CandleVolatility is RealizedVolatility over candle closes.
func CandleVolatility(candles []models.Candle, periodsPerYear float64) float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return RealizedVolatility(closes, periodsPerYear)
}
