package strategy

import "btc-hedger/internal/models"

// CalculateStrategyGreeks returns the quantity-weighted sum of leg Greeks.
// Legs without Greeks contribute nothing.
func CalculateStrategyGreeks(legs []models.OptionLeg) models.OptionGreeks {
	var total models.OptionGreeks
	for _, l := range legs {
		if l.Greeks == nil {
			continue
		}
		total = total.Add(l.Greeks.Scale(l.Quantity))
	}
	return total
}

var descriptions = map[string]string{
	NameStraddle:   "Long 1 put + 1 call at same strike. Unlimited profit potential, limited risk.",
	NameButterfly:  "Long 1 lower strike, short 2 middle, long 1 upper. Limited profit and loss.",
	NameIronCondor: "Short put spread + short call spread. Defined risk and reward.",
}

// Names lists the strategies the builder supports.
func Names() []string {
	return []string{NameStraddle, NameButterfly, NameIronCondor}
}

// Describe returns a one-line description of a strategy.
func Describe(name string) string {
	if d, ok := descriptions[name]; ok {
		return d
	}
	return "Unknown strategy"
}
