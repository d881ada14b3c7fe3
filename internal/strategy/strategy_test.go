package strategy

import (
	"math"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"btc-hedger/internal/errors"
	"btc-hedger/internal/models"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestStraddle(t *testing.T) {
	b := &Builder{ExpiryLabel: "25JUL25"}
	legs, payoff, err := b.Straddle(StraddleParams{
		Strike:       100000,
		CallPrice:    3000,
		PutPrice:     2500,
		CurrentPrice: 100000,
	})
	if err != nil {
		t.Fatalf("Straddle() error = %v", err)
	}

	if len(legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(legs))
	}
	if legs[0].Symbol != "BTC-25JUL25-100000-C" || legs[1].Symbol != "BTC-25JUL25-100000-P" {
		t.Errorf("unexpected leg symbols %q, %q", legs[0].Symbol, legs[1].Symbol)
	}
	if payoff.MaxLoss != -5500 {
		t.Errorf("MaxLoss = %v, want -5500", payoff.MaxLoss)
	}
	if !payoff.Unbounded() {
		t.Error("straddle max profit should be unbounded")
	}
	if payoff.CurrentPnL != -5500 {
		t.Errorf("CurrentPnL at strike = %v, want -5500", payoff.CurrentPnL)
	}
	if got := payoff.Breakevens; len(got) != 2 || got[0] != 94500 || got[1] != 105500 {
		t.Errorf("Breakevens = %v, want [94500 105500]", got)
	}

	if v, ok := payoff.PayoffAt(100000); !ok || v != -5500 {
		t.Errorf("curve at strike = %v (sampled %v), want -5500", v, ok)
	}
	for _, be := range payoff.Breakevens {
		if v, ok := payoff.PayoffAt(be); !ok || !approx(v, 0, 1e-9) {
			t.Errorf("curve at breakeven %v = %v (sampled %v), want 0", be, v, ok)
		}
	}
}

func TestStraddle_StrategyGreeks(t *testing.T) {
	call := &models.OptionGreeks{Delta: 0.52, Gamma: 0.0001, Theta: -40, Vega: 55, Rho: 20}
	put := &models.OptionGreeks{Delta: -0.48, Gamma: 0.0001, Theta: -38, Vega: 55, Rho: -18}

	legs, _, err := (&Builder{}).Straddle(StraddleParams{
		Strike: 100000, CallPrice: 3000, PutPrice: 2500, CallGreeks: call, PutGreeks: put,
	})
	if err != nil {
		t.Fatal(err)
	}

	g := CalculateStrategyGreeks(legs)
	if !approx(g.Delta, 0.04, 1e-12) {
		t.Errorf("Delta = %v, want 0.04", g.Delta)
	}
	if !approx(g.Vega, 110, 1e-12) {
		t.Errorf("Vega = %v, want 110", g.Vega)
	}
	if !approx(g.Theta, -78, 1e-12) {
		t.Errorf("Theta = %v, want -78", g.Theta)
	}
}

func TestCalculateStrategyGreeks_DoubledShortLeg(t *testing.T) {
	g := models.OptionGreeks{Delta: 0.5, Gamma: 0.002, Theta: -10, Vega: 30}
	legs := []models.OptionLeg{
		{Quantity: 1, Greeks: &models.OptionGreeks{Delta: 0.7, Gamma: 0.001, Theta: -8, Vega: 20}},
		{Quantity: -2, Greeks: &g},
		{Quantity: 1, Greeks: &models.OptionGreeks{Delta: 0.3, Gamma: 0.001, Theta: -8, Vega: 20}},
		{Quantity: 5}, // no greeks
	}

	got := CalculateStrategyGreeks(legs)
	if !approx(got.Delta, 0, 1e-12) {
		t.Errorf("Delta = %v, want 0", got.Delta)
	}
	if !approx(got.Gamma, -0.002, 1e-12) {
		t.Errorf("Gamma = %v, want -0.002", got.Gamma)
	}
	if !approx(got.Theta, 4, 1e-12) {
		t.Errorf("Theta = %v, want 4", got.Theta)
	}
	if !approx(got.Vega, -20, 1e-12) {
		t.Errorf("Vega = %v, want -20", got.Vega)
	}
}

func TestButterfly(t *testing.T) {
	tests := []struct {
		name string
		kind models.OptionKind
	}{
		{"call", models.Call},
		{"put", models.Put},
		{"default kind", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			legs, payoff, err := (&Builder{}).Butterfly(ButterflyParams{
				Lower: 90000, Middle: 100000, Upper: 110000,
				LowerPrice: 12000, MiddlePrice: 6000, UpperPrice: 2500,
				CurrentPrice: 100000,
				Kind:         tt.kind,
			})
			if err != nil {
				t.Fatalf("Butterfly() error = %v", err)
			}
			if len(legs) != 3 || legs[1].Quantity != -2 {
				t.Fatalf("unexpected legs %+v", legs)
			}
			if payoff.MaxLoss != 2500 {
				t.Errorf("MaxLoss = %v, want 2500", payoff.MaxLoss)
			}
			if payoff.MaxProfit != 7500 {
				t.Errorf("MaxProfit = %v, want 7500", payoff.MaxProfit)
			}
			if payoff.MaxProfit+payoff.MaxLoss != 10000 {
				t.Errorf("MaxProfit+MaxLoss = %v, want middle-lower", payoff.MaxProfit+payoff.MaxLoss)
			}
			if v, ok := payoff.PayoffAt(100000); !ok || v != 7500 {
				t.Errorf("curve at middle = %v (sampled %v), want 7500", v, ok)
			}
			for _, be := range payoff.Breakevens {
				if v, ok := payoff.PayoffAt(be); !ok || !approx(v, 0, 1e-9) {
					t.Errorf("curve at breakeven %v = %v, want 0", be, v)
				}
			}
		})
	}
}

func TestButterfly_UnevenStrikes(t *testing.T) {
	_, payoff, err := (&Builder{}).Butterfly(ButterflyParams{
		Lower: 95000, Middle: 100000, Upper: 112000,
		LowerPrice: 9000, MiddlePrice: 6000, UpperPrice: 2000,
	})
	if err != nil {
		t.Fatalf("Butterfly() error = %v", err)
	}
	if payoff.MaxLoss != -1000 {
		t.Errorf("MaxLoss = %v, want net debit -1000", payoff.MaxLoss)
	}
	if payoff.MaxProfit != 6000 {
		t.Errorf("MaxProfit = %v, want 6000", payoff.MaxProfit)
	}
}

func TestIronCondor(t *testing.T) {
	legs, payoff, risk, err := (&Builder{}).IronCondorWithRisk(IronCondorParams{
		PutLower: 80000, PutUpper: 90000, CallLower: 110000, CallUpper: 125000,
		PutLowerPrice: 500, PutUpperPrice: 1500, CallLowerPrice: 1400, CallUpperPrice: 400,
		CurrentPrice: 100000,
	})
	if err != nil {
		t.Fatalf("IronCondor() error = %v", err)
	}
	if len(legs) != 4 {
		t.Fatalf("got %d legs, want 4", len(legs))
	}

	if risk.NetCredit != 2000 {
		t.Errorf("NetCredit = %v, want 2000", risk.NetCredit)
	}
	if payoff.MaxProfit != risk.NetCredit {
		t.Errorf("MaxProfit = %v, want net credit", payoff.MaxProfit)
	}
	if risk.PutSideMaxLoss != 8000 || risk.CallSideMaxLoss != 13000 {
		t.Errorf("wing losses = %v/%v, want 8000/13000", risk.PutSideMaxLoss, risk.CallSideMaxLoss)
	}
	if payoff.MaxLoss != 13000 {
		t.Errorf("MaxLoss = %v, want 13000", payoff.MaxLoss)
	}
	if payoff.NetPremium != -2000 {
		t.Errorf("NetPremium = %v, want -2000 credit", payoff.NetPremium)
	}
	if payoff.CurrentPnL != 2000 {
		t.Errorf("CurrentPnL inside wings = %v, want 2000", payoff.CurrentPnL)
	}

	if got := PayoffAt(legs, payoff.NetPremium, 10000); got != -risk.PutSideMaxLoss {
		t.Errorf("payoff far below put wing = %v, want %v", got, -risk.PutSideMaxLoss)
	}
	if got := PayoffAt(legs, payoff.NetPremium, 500000); got != -risk.CallSideMaxLoss {
		t.Errorf("payoff far above call wing = %v, want %v", got, -risk.CallSideMaxLoss)
	}
	for _, be := range payoff.Breakevens {
		if v, ok := payoff.PayoffAt(be); !ok || !approx(v, 0, 1e-9) {
			t.Errorf("curve at breakeven %v = %v, want 0", be, v)
		}
	}
}

func TestBuilder_InvalidGeometry(t *testing.T) {
	b := &Builder{}
	tests := []struct {
		name string
		run  func() error
	}{
		{"straddle zero strike", func() error {
			_, _, err := b.Straddle(StraddleParams{Strike: 0, CallPrice: 1, PutPrice: 1})
			return err
		}},
		{"straddle negative price", func() error {
			_, _, err := b.Straddle(StraddleParams{Strike: 100, CallPrice: -1, PutPrice: 1})
			return err
		}},
		{"butterfly unordered", func() error {
			_, _, err := b.Butterfly(ButterflyParams{Lower: 100, Middle: 90, Upper: 110})
			return err
		}},
		{"butterfly equal strikes", func() error {
			_, _, err := b.Butterfly(ButterflyParams{Lower: 100, Middle: 100, Upper: 110})
			return err
		}},
		{"condor overlapping wings", func() error {
			_, _, err := b.IronCondor(IronCondorParams{PutLower: 80, PutUpper: 100, CallLower: 95, CallUpper: 120})
			return err
		}},
		{"condor NaN price", func() error {
			_, _, err := b.IronCondor(IronCondorParams{
				PutLower: 80, PutUpper: 90, CallLower: 110, CallUpper: 120, CallUpperPrice: math.NaN(),
			})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, errors.ErrInvalidStrategy) {
				t.Errorf("error %v does not wrap ErrInvalidStrategy", err)
			}
		})
	}

	_, _, err := b.Butterfly(ButterflyParams{Lower: 1, Middle: 2, Upper: 3, Kind: "straddle"})
	if !errors.Is(err, errors.ErrInputValidation) {
		t.Errorf("bad kind error = %v, want ErrInputValidation", err)
	}
}

func TestSamplePayoff(t *testing.T) {
	legs := []models.OptionLeg{{Quantity: 1, Strike: 1500, Kind: models.Call}}
	curve := SamplePayoff(legs, 100, 0, 5000, 1000, 1600, 9999)

	prices := make([]float64, len(curve))
	for i, pt := range curve {
		prices[i] = pt.Price
	}
	want := []float64{0, 1000, 1500, 1600, 2000, 3000, 4000, 5000}
	if len(prices) != len(want) {
		t.Fatalf("prices = %v, want %v", prices, want)
	}
	for i := range want {
		if prices[i] != want[i] {
			t.Fatalf("prices = %v, want %v", prices, want)
		}
	}
	if curve[3].Payoff != 0 {
		t.Errorf("payoff at 1600 = %v, want 0", curve[3].Payoff)
	}

	if SamplePayoff(legs, 0, 10, 0, 1) != nil {
		t.Error("inverted range should produce no curve")
	}
}

func TestBreakevens(t *testing.T) {
	_, payoff, err := (&Builder{SampleStep: 700}).Straddle(StraddleParams{Strike: 50000, CallPrice: 1000, PutPrice: 1000})
	if err != nil {
		t.Fatal(err)
	}
	got := Breakevens(payoff.PayoffCurve)
	if len(got) != 2 || !approx(got[0], 48000, 1e-6) || !approx(got[1], 52000, 1e-6) {
		t.Errorf("Breakevens(curve) = %v, want [48000 52000]", got)
	}
}

func TestDescribe(t *testing.T) {
	for _, name := range Names() {
		if Describe(name) == "Unknown strategy" {
			t.Errorf("missing description for %s", name)
		}
	}
	if Describe("calendar") != "Unknown strategy" {
		t.Error("unexpected description for unsupported strategy")
	}
}

// TestProperty_StraddleMaxLoss verifies max loss is exactly minus the total premium
// and the payoff at the strike equals it.
func TestProperty_StraddleMaxLoss(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("max loss is minus premium", prop.ForAll(
		func(k, call, put float64) bool {
			_, payoff, err := (&Builder{}).Straddle(StraddleParams{Strike: k, CallPrice: call, PutPrice: put, CurrentPrice: k})
			if err != nil {
				return false
			}
			v, ok := payoff.PayoffAt(k)
			return payoff.MaxLoss == -(call+put) && payoff.CurrentPnL == payoff.MaxLoss && ok && v == payoff.MaxLoss
		},
		gen.Float64Range(1000, 200000),
		gen.Float64Range(0, 20000),
		gen.Float64Range(0, 20000),
	))

	properties.TestingRun(t)
}

// TestProperty_ButterflyProfitPlusLoss verifies max profit + max loss equals the
// wing width for evenly spaced strikes.
func TestProperty_ButterflyProfitPlusLoss(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("max profit + max loss = middle - lower", prop.ForAll(
		func(middle, width, lp, mp, up float64) bool {
			_, payoff, err := (&Builder{}).Butterfly(ButterflyParams{
				Lower: middle - width, Middle: middle, Upper: middle + width,
				LowerPrice: lp, MiddlePrice: mp, UpperPrice: up,
			})
			if err != nil {
				return false
			}
			return approx(payoff.MaxProfit+payoff.MaxLoss, width, 1e-9*middle)
		},
		gen.Float64Range(50000, 150000),
		gen.Float64Range(500, 20000),
		gen.Float64Range(0, 30000),
		gen.Float64Range(0, 20000),
		gen.Float64Range(0, 10000),
	))

	properties.TestingRun(t)
}

// TestProperty_IronCondorWings verifies the far-wing payoffs equal minus each
// side's maximum loss and max profit equals the credit.
func TestProperty_IronCondorWings(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("far-wing payoffs match wing losses", prop.ForAll(
		func(spot, putWidth, gap, callWidth, pl, pu, cl, cu float64) bool {
			p := IronCondorParams{
				PutUpper:       spot - gap,
				PutLower:       spot - gap - putWidth,
				CallLower:      spot + gap,
				CallUpper:      spot + gap + callWidth,
				PutLowerPrice:  pl,
				PutUpperPrice:  pu,
				CallLowerPrice: cl,
				CallUpperPrice: cu,
				CurrentPrice:   spot,
			}
			legs, payoff, risk, err := (&Builder{}).IronCondorWithRisk(p)
			if err != nil {
				return false
			}
			tol := 1e-9 * spot
			below := PayoffAt(legs, payoff.NetPremium, p.PutLower/2)
			above := PayoffAt(legs, payoff.NetPremium, p.CallUpper*2)
			return payoff.MaxProfit == risk.NetCredit &&
				approx(below, -risk.PutSideMaxLoss, tol) &&
				approx(above, -risk.CallSideMaxLoss, tol) &&
				payoff.MaxLoss == math.Max(risk.PutSideMaxLoss, risk.CallSideMaxLoss)
		},
		gen.Float64Range(60000, 140000),
		gen.Float64Range(1000, 20000),
		gen.Float64Range(500, 15000),
		gen.Float64Range(1000, 20000),
		gen.Float64Range(0, 3000),
		gen.Float64Range(0, 3000),
		gen.Float64Range(0, 3000),
		gen.Float64Range(0, 3000),
	))

	properties.TestingRun(t)
}

// TestProperty_CurveMatchesLegs verifies every sampled point equals the sum of
// leg intrinsic values net of premium and the curve is sorted.
func TestProperty_CurveMatchesLegs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("curve is leg intrinsic sum", prop.ForAll(
		func(middle, width, step float64) bool {
			b := &Builder{SampleStep: step}
			legs, payoff, err := b.Butterfly(ButterflyParams{
				Lower: middle - width, Middle: middle, Upper: middle + width,
				LowerPrice: width, MiddlePrice: width / 2, UpperPrice: width / 4,
			})
			if err != nil || len(payoff.PayoffCurve) == 0 {
				return false
			}
			sorted := sort.SliceIsSorted(payoff.PayoffCurve, func(i, j int) bool {
				return payoff.PayoffCurve[i].Price < payoff.PayoffCurve[j].Price
			})
			if !sorted {
				return false
			}
			for _, pt := range payoff.PayoffCurve {
				intrinsic := 0.0
				for _, l := range legs {
					intrinsic += l.Quantity * models.Intrinsic(l.Kind, l.Strike, pt.Price)
				}
				if pt.Payoff != intrinsic-payoff.NetPremium {
					return false
				}
			}
			return true
		},
		gen.Float64Range(50000, 150000),
		gen.Float64Range(1000, 20000),
		gen.Float64Range(250, 5000),
	))

	properties.TestingRun(t)
}
