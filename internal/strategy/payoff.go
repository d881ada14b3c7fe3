package strategy

import (
	"math"
	"sort"

	"btc-hedger/internal/models"
)

// PayoffAt returns the expiry payoff of legs at underlying price s, net of the
// signed premium (positive debit paid, negative credit received).
func PayoffAt(legs []models.OptionLeg, netPremium, s float64) float64 {
	total := 0.0
	for _, l := range legs {
		total += l.IntrinsicAt(s)
	}
	return total - netPremium
}

// NetPremium is the signed premium of legs: positive when the strategy is a debit.
func NetPremium(legs []models.OptionLeg) float64 {
	total := 0.0
	for _, l := range legs {
		total += l.Premium()
	}
	return total
}

// SamplePayoff evaluates the payoff on a grid from lo to hi in steps of step.
// Every strike and every extra price inside [lo, hi] is sampled exactly, so
// callers can read breakevens and strikes straight off the curve.
func SamplePayoff(legs []models.OptionLeg, netPremium, lo, hi, step float64, extra ...float64) []models.PayoffPoint {
	if step <= 0 || hi < lo {
		return nil
	}

	seen := make(map[float64]struct{})
	var prices []float64
	add := func(p float64) {
		if p < lo || p > hi || math.IsNaN(p) {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		prices = append(prices, p)
	}

	start := math.Floor(lo/step) * step
	for p := start; p <= hi; p += step {
		add(p)
	}
	for _, l := range legs {
		add(l.Strike)
	}
	for _, p := range extra {
		add(p)
	}
	sort.Float64s(prices)

	curve := make([]models.PayoffPoint, len(prices))
	for i, p := range prices {
		curve[i] = models.PayoffPoint{Price: p, Payoff: PayoffAt(legs, netPremium, p)}
	}
	return curve
}

// Breakevens scans the curve for sign changes and returns the interpolated
// crossing points. Exact zeros are reported once.
func Breakevens(curve []models.PayoffPoint) []float64 {
	var out []float64
	for i, pt := range curve {
		if pt.Payoff == 0 {
			out = append(out, pt.Price)
			continue
		}
		if i == 0 {
			continue
		}
		prev := curve[i-1]
		if prev.Payoff != 0 && (prev.Payoff < 0) != (pt.Payoff < 0) {
			w := prev.Payoff / (prev.Payoff - pt.Payoff)
			out = append(out, prev.Price+w*(pt.Price-prev.Price))
		}
	}
	return out
}

func strikeRange(legs []models.OptionLeg) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, l := range legs {
		lo = math.Min(lo, l.Strike)
		hi = math.Max(hi, l.Strike)
	}
	return lo, hi
}
