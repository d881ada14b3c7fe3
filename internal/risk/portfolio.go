package risk

import (
	"sort"

	"btc-hedger/internal/models"
)

// PositionRisk is the risk of a single priced position.
type PositionRisk struct {
	Symbol        string                `json:"symbol"`
	Kind          models.InstrumentKind `json:"kind"`
	Quantity      float64               `json:"quantity"`
	Price         float64               `json:"price"`
	Notional      float64               `json:"notional"`
	UnrealizedPnL float64               `json:"unrealized_pnl"`
	ReturnPct     float64               `json:"return_pct"`
	Delta         float64               `json:"delta"`
	DeltaSource   DeltaSource           `json:"delta_source"`
}

// PortfolioRisk summarizes a snapshot.
type PortfolioRisk struct {
	TotalDelta         float64             `json:"total_delta"`
	TotalNotional      float64             `json:"total_notional"`
	TotalUnrealizedPnL float64             `json:"total_unrealized_pnl"`
	VaR95              float64             `json:"var_95"`
	Greeks             models.OptionGreeks `json:"greeks"`
	Positions          []PositionRisk      `json:"positions"`
	NumPositions       int                 `json:"num_positions"` // including unpriced
}

// PositionRisk computes the risk of one position at price.
func (a *Aggregator) PositionRisk(p models.Position, price float64, prices map[string]float64) PositionRisk {
	g, src := a.positionGreeks(p, prices)
	return PositionRisk{
		Symbol:        p.Symbol,
		Kind:          p.Kind,
		Quantity:      p.Quantity,
		Price:         price,
		Notional:      p.Notional(price),
		UnrealizedPnL: p.UnrealizedPnL(price),
		ReturnPct:     p.ReturnPct(price),
		Delta:         g.Delta,
		DeltaSource:   src,
	}
}

// PortfolioRisk computes totals and per-position risk in one pass.
func (a *Aggregator) PortfolioRisk(positions []models.Position, prices map[string]float64) PortfolioRisk {
	out := PortfolioRisk{NumPositions: len(positions)}
	live, px := priced(positions, prices)
	for i, p := range live {
		pr := a.PositionRisk(p, px[i], prices)
		out.Positions = append(out.Positions, pr)
		out.TotalDelta += pr.Delta
		out.TotalNotional += pr.Notional
		out.TotalUnrealizedPnL += pr.UnrealizedPnL
	}
	out.Greeks = a.GreeksSummary(positions, prices)
	out.VaR95 = a.VaRForNotional(out.TotalNotional, a.AnnualVolatility)
	return out
}

// DeltaExposure returns net delta by instrument kind. Every kind is present.
func (a *Aggregator) DeltaExposure(positions []models.Position, prices map[string]float64) map[models.InstrumentKind]float64 {
	exposure := map[models.InstrumentKind]float64{
		models.InstrumentSpot:      0,
		models.InstrumentPerpetual: 0,
		models.InstrumentOption:    0,
	}
	live, _ := priced(positions, prices)
	for _, p := range live {
		if _, ok := exposure[p.Kind]; !ok {
			continue
		}
		g, _ := a.positionGreeks(p, prices)
		exposure[p.Kind] += g.Delta
	}
	return exposure
}

// Concentration describes how much of the notional sits in the largest positions.
type Concentration struct {
	LargestPositionPct float64 `json:"largest_position_pct"`
	Top3Pct            float64 `json:"top_3_pct"`
	LargestSymbol      string  `json:"largest_symbol,omitempty"`
}

// ConcentrationRisk returns the largest and top-3 shares of total notional in percent.
func ConcentrationRisk(positions []models.Position, prices map[string]float64) Concentration {
	type sized struct {
		symbol   string
		notional float64
	}

	var sizes []sized
	total := 0.0
	live, px := priced(positions, prices)
	for i, p := range live {
		n := p.Notional(px[i])
		sizes = append(sizes, sized{p.Symbol, n})
		total += n
	}
	if total == 0 {
		return Concentration{}
	}

	sort.SliceStable(sizes, func(i, j int) bool {
		return sizes[i].notional > sizes[j].notional
	})

	top3 := 0.0
	for i := 0; i < len(sizes) && i < 3; i++ {
		top3 += sizes[i].notional
	}
	return Concentration{
		LargestPositionPct: sizes[0].notional / total * 100,
		Top3Pct:            top3 / total * 100,
		LargestSymbol:      sizes[0].symbol,
	}
}
