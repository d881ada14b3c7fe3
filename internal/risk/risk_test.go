package risk

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"btc-hedger/internal/config"
	"btc-hedger/internal/errors"
	"btc-hedger/internal/models"
	"btc-hedger/internal/pricing"
)

var valuationTime = time.Date(2025, 6, 25, 8, 0, 0, 0, time.UTC)

func testAggregator(mode DeltaMode, engine *pricing.Engine) *Aggregator {
	a := NewAggregator(config.RiskConfig{
		AnnualVolatility: 0.20,
		VaRMultiplier:    1.645,
		TradingDays:      252,
		MoneynessBand:    0.02,
		DeltaMode:        string(mode),
	}, engine, zerolog.Nop())
	a.Now = func() time.Time { return valuationTime }
	return a
}

func samplePortfolio() ([]models.Position, map[string]float64) {
	positions := []models.Position{
		{Symbol: "BTC-USDT", Quantity: 1.5, AvgPrice: 95000, Kind: models.InstrumentSpot, Venue: models.VenueOKX},
		{Symbol: "BTC-USDT-SWAP", Quantity: -0.5, AvgPrice: 98000, Kind: models.InstrumentPerpetual, Venue: models.VenueOKX},
		{Symbol: "BTC-25JUL25-100000-P", Quantity: 1, AvgPrice: 2800, Kind: models.InstrumentOption, Venue: models.VenueDeribit},
	}
	prices := map[string]float64{
		"BTC-USDT":             100000,
		"BTC-USDT-SWAP":        100000,
		"BTC-25JUL25-100000-P": 3000,
	}
	return positions, prices
}

func TestTotalDelta_Empty(t *testing.T) {
	a := testAggregator(DeltaModeAuto, nil)
	if got := a.TotalDelta(nil, nil).Total; got != 0 {
		t.Errorf("empty portfolio delta = %v, want 0", got)
	}
	if got := a.VaR95(nil, nil); got != 0 {
		t.Errorf("empty portfolio VaR = %v, want 0", got)
	}
	if got := ConcentrationRisk(nil, nil); got != (Concentration{}) {
		t.Errorf("empty concentration = %+v", got)
	}
}

func TestTotalDelta_Moneyness(t *testing.T) {
	positions, prices := samplePortfolio()
	a := testAggregator(DeltaModeMoneyness, nil)

	report := a.TotalDelta(positions, prices)
	if !approx(report.Total, 0.5, 1e-12) {
		t.Errorf("Total = %v, want 0.5 (1.5 - 0.5 - 0.5 ATM put)", report.Total)
	}
	if report.Sources["BTC-USDT"] != DeltaSourceLinear {
		t.Errorf("spot source = %q", report.Sources["BTC-USDT"])
	}
	if report.Sources["BTC-25JUL25-100000-P"] != DeltaSourceMoneyness {
		t.Errorf("option source = %q", report.Sources["BTC-25JUL25-100000-P"])
	}
}

func TestTotalDelta_UnparseableOption(t *testing.T) {
	positions := []models.Position{
		{Symbol: "BTC-USDT", Quantity: 1, Kind: models.InstrumentSpot},
		{Symbol: "BTC-MYSTERY-PUT", Quantity: 4, Kind: models.InstrumentOption},
	}
	prices := map[string]float64{"BTC-USDT": 100000, "BTC-MYSTERY-PUT": 2500}

	report := testAggregator(DeltaModeAuto, nil).TotalDelta(positions, prices)
	if !approx(report.Total, 1, 1e-12) {
		t.Errorf("Total = %v, want 1 (unknown option contributes nothing)", report.Total)
	}
	if report.Sources["BTC-MYSTERY-PUT"] != DeltaSourceUnknown {
		t.Errorf("option source = %q, want %q", report.Sources["BTC-MYSTERY-PUT"], DeltaSourceUnknown)
	}
}

func TestTotalDelta_SkipsUnpriced(t *testing.T) {
	positions, prices := samplePortfolio()
	delete(prices, "BTC-USDT-SWAP")
	prices["BTC-25JUL25-100000-P"] = 0

	report := testAggregator(DeltaModeMoneyness, nil).TotalDelta(positions, prices)
	if report.Total != 1.5 {
		t.Errorf("Total = %v, want 1.5", report.Total)
	}
	if len(report.Sources) != 1 {
		t.Errorf("Sources = %v, want only the spot position", report.Sources)
	}
}

func TestTotalDelta_SuppliedGreeks(t *testing.T) {
	positions, prices := samplePortfolio()
	positions[2].Option = &models.OptionDetails{
		Strike: 100000,
		Kind:   models.Put,
		Greeks: &models.OptionGreeks{Delta: 0.3}, // venue reports unsigned put delta
	}

	for _, mode := range []DeltaMode{DeltaModeAuto, DeltaModeSupplied} {
		report := testAggregator(mode, nil).TotalDelta(positions, prices)
		if !approx(report.Total, 0.7, 1e-12) {
			t.Errorf("mode %s: Total = %v, want 0.7", mode, report.Total)
		}
		if report.Sources[positions[2].Symbol] != DeltaSourceSupplied {
			t.Errorf("mode %s: source = %q", mode, report.Sources[positions[2].Symbol])
		}
	}

	report := testAggregator(DeltaModeMoneyness, nil).TotalDelta(positions, prices)
	if report.Sources[positions[2].Symbol] != DeltaSourceMoneyness {
		t.Errorf("moneyness mode should ignore supplied Greeks, got %q", report.Sources[positions[2].Symbol])
	}
}

func TestTotalDelta_Model(t *testing.T) {
	engine := pricing.NewEngine(0.05, zerolog.Nop())
	positions, prices := samplePortfolio()
	expiry := valuationTime.Add(30 * 24 * time.Hour)
	positions[2].Option = &models.OptionDetails{Strike: 100000, Expiry: expiry, Kind: models.Put, ImpliedVolatility: 0.6}

	a := testAggregator(DeltaModeModel, engine)
	report := a.TotalDelta(positions, prices)

	want := engine.Greeks(models.Put, 100000, 100000, 30.0/365, 0.05, 0.6).Delta
	if !approx(report.Total, 1.0+want, 1e-12) {
		t.Errorf("Total = %v, want %v", report.Total, 1.0+want)
	}
	if report.Sources[positions[2].Symbol] != DeltaSourceModel {
		t.Errorf("source = %q, want model", report.Sources[positions[2].Symbol])
	}

	// Without an engine the model mode degrades to moneyness.
	report = testAggregator(DeltaModeModel, nil).TotalDelta(positions, prices)
	if report.Sources[positions[2].Symbol] != DeltaSourceMoneyness {
		t.Errorf("source without engine = %q, want moneyness", report.Sources[positions[2].Symbol])
	}
}

func TestGreeksSummary(t *testing.T) {
	positions, prices := samplePortfolio()
	g := testAggregator(DeltaModeMoneyness, nil).GreeksSummary(positions, prices)

	want := ApproxGreeks(models.Put, 100000, 100000, 0.02)
	if !approx(g.Delta, 1.0+want.Delta, 1e-12) {
		t.Errorf("Delta = %v", g.Delta)
	}
	if g.Gamma != want.Gamma || g.Theta != want.Theta || g.Vega != want.Vega {
		t.Errorf("option Greeks not aggregated: %+v want %+v", g, want)
	}
	if !(g.Theta < 0 && g.Vega > 0 && g.Gamma > 0) {
		t.Errorf("long option Greeks have wrong signs: %+v", g)
	}
}

func TestMoneynessBand(t *testing.T) {
	tests := []struct {
		kind  models.OptionKind
		spot  float64
		want  Moneyness
		delta float64
	}{
		{models.Call, 110000, ITM, 0.85},
		{models.Call, 101000, ATM, 0.5},
		{models.Call, 90000, OTM, 0.15},
		{models.Put, 110000, OTM, -0.15},
		{models.Put, 99000, ATM, -0.5},
		{models.Put, 90000, ITM, -0.85},
	}
	for _, tt := range tests {
		got := MoneynessBand(tt.kind, tt.spot, 100000, DefaultMoneynessBand)
		if got != tt.want {
			t.Errorf("MoneynessBand(%s, %v) = %s, want %s", tt.kind, tt.spot, got, tt.want)
		}
		if d := ApproxDelta(tt.kind, got); d != tt.delta {
			t.Errorf("ApproxDelta(%s, %s) = %v, want %v", tt.kind, got, d, tt.delta)
		}
	}
}

func TestVaR95(t *testing.T) {
	positions, prices := samplePortfolio()
	a := testAggregator(DeltaModeAuto, nil)

	notional := 150000.0 + 50000 + 3000
	if got := TotalNotional(positions, prices); got != notional {
		t.Fatalf("TotalNotional = %v, want %v", got, notional)
	}
	want := notional * 0.20 / math.Sqrt(252) * 1.645
	if got := a.VaR95(positions, prices); !approx(got, want, 1e-9) {
		t.Errorf("VaR95 = %v, want %v", got, want)
	}
}

func TestConfidenceMultiplier(t *testing.T) {
	if got := ConfidenceMultiplier(0.95); !approx(got, 1.6449, 1e-3) {
		t.Errorf("ConfidenceMultiplier(0.95) = %v", got)
	}
	if got := ConfidenceMultiplier(0.99); !approx(got, 2.3263, 1e-3) {
		t.Errorf("ConfidenceMultiplier(0.99) = %v", got)
	}
	if got := ConfidenceMultiplier(1.5); got != DefaultVaRMultiplier {
		t.Errorf("out-of-range level = %v, want default", got)
	}

	a := NewAggregator(config.RiskConfig{AnnualVolatility: 0.2, VaRConfidence: 0.99, TradingDays: 252}, nil, zerolog.Nop())
	if !approx(a.VaRMultiplier, 2.3263, 1e-3) {
		t.Errorf("multiplier from confidence = %v", a.VaRMultiplier)
	}
}

func TestConcentrationRisk(t *testing.T) {
	positions, prices := samplePortfolio()
	c := ConcentrationRisk(positions, prices)

	if c.LargestSymbol != "BTC-USDT" {
		t.Errorf("LargestSymbol = %q", c.LargestSymbol)
	}
	if !approx(c.LargestPositionPct, 150000.0/203000*100, 1e-9) {
		t.Errorf("LargestPositionPct = %v", c.LargestPositionPct)
	}
	if !approx(c.Top3Pct, 100, 1e-9) {
		t.Errorf("Top3Pct = %v, want 100", c.Top3Pct)
	}
}

func TestPortfolioRiskAndExposure(t *testing.T) {
	positions, prices := samplePortfolio()
	a := testAggregator(DeltaModeMoneyness, nil)

	pr := a.PortfolioRisk(positions, prices)
	if pr.NumPositions != 3 || len(pr.Positions) != 3 {
		t.Fatalf("positions = %d/%d", pr.NumPositions, len(pr.Positions))
	}
	wantPnL := 1.5*5000 + -0.5*2000 + 200
	if !approx(pr.TotalUnrealizedPnL, wantPnL, 1e-9) {
		t.Errorf("TotalUnrealizedPnL = %v, want %v", pr.TotalUnrealizedPnL, wantPnL)
	}
	if !approx(pr.TotalDelta, a.TotalDelta(positions, prices).Total, 1e-12) {
		t.Errorf("TotalDelta disagrees with TotalDelta()")
	}
	if pr.VaR95 != a.VaR95(positions, prices) {
		t.Errorf("VaR95 = %v", pr.VaR95)
	}

	exp := a.DeltaExposure(positions, prices)
	if exp[models.InstrumentSpot] != 1.5 || exp[models.InstrumentPerpetual] != -0.5 || exp[models.InstrumentOption] != -0.5 {
		t.Errorf("DeltaExposure = %v", exp)
	}
}

func TestStressTest(t *testing.T) {
	positions, prices := samplePortfolio()
	a := testAggregator(DeltaModeMoneyness, nil)

	res, err := a.StressTest(positions, prices, "market_crash_20")
	if err != nil {
		t.Fatalf("StressTest() error = %v", err)
	}
	if !approx(res.PnLChange, -30000+10000-600, 1e-6) {
		t.Errorf("PnLChange = %v, want -20600", res.PnLChange)
	}
	if !approx(res.StressedVaR, a.VaRForNotional(203000*0.8, 0.4), 1e-6) {
		t.Errorf("StressedVaR = %v", res.StressedVaR)
	}
	if res.StressedPrices["BTC-USDT"] != 80000 {
		t.Errorf("stressed spot = %v", res.StressedPrices["BTC-USDT"])
	}
	if prices["BTC-USDT"] != 100000 {
		t.Error("input prices were mutated")
	}

	again, _ := a.StressTest(positions, prices, "market_crash_20")
	if again.StressedPnL != res.StressedPnL {
		t.Error("stress results are not deterministic")
	}

	if _, err := a.StressTest(positions, prices, "meteor"); !errors.Is(err, errors.ErrUnknownScenario) {
		t.Errorf("unknown scenario error = %v", err)
	}
	if len(ScenarioNames()) != 4 {
		t.Errorf("ScenarioNames() = %v", ScenarioNames())
	}
}

func TestStressTest_RepricesOptions(t *testing.T) {
	engine := pricing.NewEngine(0.05, zerolog.Nop())
	positions, prices := samplePortfolio()
	positions = positions[2:]
	positions[0].Option = &models.OptionDetails{
		Strike: 100000, Expiry: valuationTime.Add(30 * 24 * time.Hour), Kind: models.Put, ImpliedVolatility: 0.6,
	}

	res, err := testAggregator(DeltaModeAuto, engine).StressTest(positions, prices, "volatility_spike")
	if err != nil {
		t.Fatal(err)
	}
	want := engine.Price(models.Put, 100000, 100000, 30.0/365, 0.05, 2.4)
	if !approx(res.StressedPrices[positions[0].Symbol], want, 1e-6) {
		t.Errorf("stressed option price = %v, want %v", res.StressedPrices[positions[0].Symbol], want)
	}
	if res.StressedPnL <= res.CurrentPnL {
		t.Errorf("long put should gain in a volatility spike: %v -> %v", res.CurrentPnL, res.StressedPnL)
	}
}

func TestRealizedVolatility(t *testing.T) {
	if got := RealizedVolatility([]float64{100, 101}, 365); got != 0 {
		t.Errorf("too few closes = %v, want 0", got)
	}
	if got := RealizedVolatility([]float64{100, 110, 121, 133.1}, 365); !approx(got, 0, 1e-9) {
		t.Errorf("constant growth vol = %v, want 0", got)
	}

	closes := []float64{100, 110, 100, 110}
	r := math.Log(1.1)
	mean := r / 3
	variance := (2*(r-mean)*(r-mean) + (-r-mean)*(-r-mean)) / 2
	want := math.Sqrt(variance) * math.Sqrt(365)
	if got := RealizedVolatility(closes, 365); !approx(got, want, 1e-9) {
		t.Errorf("RealizedVolatility = %v, want %v", got, want)
	}

	candles := []models.Candle{{Close: 100}, {Close: 110}, {Close: 100}, {Close: 110}}
	if got := CandleVolatility(candles, 365); !approx(got, want, 1e-9) {
		t.Errorf("CandleVolatility = %v, want %v", got, want)
	}
}

// TestProperty_VaRMonotonic verifies VaR is non-negative and non-decreasing
// in position size at fixed volatility.
func TestProperty_VaRMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	a := testAggregator(DeltaModeAuto, nil)

	properties.Property("VaR grows with notional", prop.ForAll(
		func(qty, extra, price float64) bool {
			prices := map[string]float64{"BTC-USDT": price}
			small := []models.Position{{Symbol: "BTC-USDT", Quantity: qty, Kind: models.InstrumentSpot}}
			large := []models.Position{{Symbol: "BTC-USDT", Quantity: qty + math.Copysign(extra, qty), Kind: models.InstrumentSpot}}
			v1 := a.VaR95(small, prices)
			v2 := a.VaR95(large, prices)
			return v1 >= 0 && v2 >= v1
		},
		gen.Float64Range(-100, 100),
		gen.Float64Range(0, 50),
		gen.Float64Range(1, 200000),
	))

	properties.TestingRun(t)
}

// TestProperty_LinearDelta verifies spot and perpetual positions contribute
// exactly their signed quantity.
func TestProperty_LinearDelta(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	a := testAggregator(DeltaModeAuto, nil)

	properties.Property("linear delta is quantity", prop.ForAll(
		func(spot, perp float64) bool {
			positions := []models.Position{
				{Symbol: "BTC-USDT", Quantity: spot, Kind: models.InstrumentSpot},
				{Symbol: "BTC-USDT-SWAP", Quantity: perp, Kind: models.InstrumentPerpetual},
			}
			prices := map[string]float64{"BTC-USDT": 100000, "BTC-USDT-SWAP": 100010}
			return a.TotalDelta(positions, prices).Total == spot+perp
		},
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
