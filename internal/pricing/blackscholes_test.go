package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"btc-hedger/internal/models"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultRiskFreeRate, zerolog.Nop())
}

func TestNormalDistribution(t *testing.T) {
	tests := []struct {
		x       float64
		wantCDF float64
		wantPDF float64
	}{
		{0, 0.5, 0.3989422804014327},
		{1, 0.8413447460685429, 0.24197072451914337},
		{-1, 0.15865525393145707, 0.24197072451914337},
	}
	for _, tt := range tests {
		if got := NormCDF(tt.x); math.Abs(got-tt.wantCDF) > 1e-9 {
			t.Errorf("NormCDF(%v) = %v, want %v", tt.x, got, tt.wantCDF)
		}
		if got := NormPDF(tt.x); math.Abs(got-tt.wantPDF) > 1e-9 {
			t.Errorf("NormPDF(%v) = %v, want %v", tt.x, got, tt.wantPDF)
		}
	}
}

func TestPrice_AtmScenario(t *testing.T) {
	e := newTestEngine()
	s, k, tt, r, sigma := 50000.0, 50000.0, 30.0/365, 0.05, 0.5

	call := e.Price(models.Call, s, k, tt, r, sigma)
	put := e.Price(models.Put, s, k, tt, r, sigma)

	parity := s - k*math.Exp(-r*tt)
	if diff := math.Abs((call - put) - parity); diff > 1e-6 {
		t.Errorf("put-call parity violated: call-put=%v, S-Ke^-rT=%v (diff %v)", call-put, parity, diff)
	}

	g := e.Greeks(models.Call, s, k, tt, r, sigma)
	if g.Delta <= 0.45 || g.Delta >= 0.65 {
		t.Errorf("ATM call delta = %v, want within (0.45, 0.65)", g.Delta)
	}
	if call <= 0 || put <= 0 {
		t.Errorf("ATM prices must be positive: call=%v put=%v", call, put)
	}
}

func TestPrice_ExpiredReturnsIntrinsic(t *testing.T) {
	e := newTestEngine()
	tests := []struct {
		name string
		kind models.OptionKind
		s, k float64
		t    float64
		want float64
	}{
		{"call ITM at expiry", models.Call, 55000, 50000, 0, 5000},
		{"call OTM at expiry", models.Call, 45000, 50000, 0, 0},
		{"put ITM past expiry", models.Put, 45000, 50000, -0.1, 5000},
		{"put OTM at expiry", models.Put, 55000, 50000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Price(tt.kind, tt.s, tt.k, tt.t, 0.05, 0.5); got != tt.want {
				t.Errorf("Price() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGreeks_Expired(t *testing.T) {
	e := newTestEngine()
	tests := []struct {
		name      string
		kind      models.OptionKind
		s, k      float64
		wantDelta float64
	}{
		{"call ITM", models.Call, 51000, 50000, 1},
		{"call OTM", models.Call, 49000, 50000, 0},
		{"call ATM", models.Call, 50000, 50000, 0},
		{"put ITM", models.Put, 49000, 50000, -1},
		{"put OTM", models.Put, 51000, 50000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := e.Greeks(tt.kind, tt.s, tt.k, 0, 0.05, 0.5)
			want := models.OptionGreeks{Delta: tt.wantDelta}
			if g != want {
				t.Errorf("Greeks() = %+v, want %+v", g, want)
			}
		})
	}
}

func TestZeroVolatility(t *testing.T) {
	e := newTestEngine()
	const (
		k = 50000.0
		r = 0.05
	)
	tt30 := 30.0 / 365
	discounted := k * math.Exp(-r*tt30)

	tests := []struct {
		name      string
		kind      models.OptionKind
		s, sigma  float64
		wantPrice float64
		wantDelta float64
	}{
		{"call ATM", models.Call, 50000, 0, 50000 - discounted, 1},
		{"call OTM", models.Call, 45000, 0, 0, 0},
		{"put ATM", models.Put, 50000, 0, 0, 0},
		{"put ITM", models.Put, 45000, 0, discounted - 45000, -1},
		{"negative sigma", models.Call, 55000, -0.3, 55000 - discounted, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price := e.Price(tt.kind, tt.s, k, tt30, r, tt.sigma)
			if math.IsNaN(price) || math.Abs(price-tt.wantPrice) > 1e-6 {
				t.Errorf("Price() = %v, want %v", price, tt.wantPrice)
			}
			g := e.Greeks(tt.kind, tt.s, k, tt30, r, tt.sigma)
			want := models.OptionGreeks{Delta: tt.wantDelta}
			if g != want {
				t.Errorf("Greeks() = %+v, want %+v", g, want)
			}
		})
	}
}

func TestGreeks_Scaling(t *testing.T) {
	e := newTestEngine()
	s, k, tt, r, sigma := 100.0, 100.0, 1.0, 0.05, 0.2

	g := e.Greeks(models.Call, s, k, tt, r, sigma)

	// Vega reported per percentage point.
	if diff := math.Abs(g.Vega*100 - rawVega(s, k, tt, r, sigma)); diff > 1e-9 {
		t.Errorf("vega scaling off by %v", diff)
	}

	// Finite-difference theta over one day should agree with the per-day figure.
	day := 1.0 / DaysPerYear
	fd := e.Price(models.Call, s, k, tt-day, r, sigma) - e.Price(models.Call, s, k, tt, r, sigma)
	if math.Abs(fd-g.Theta) > 1e-3 {
		t.Errorf("theta per day = %v, finite difference = %v", g.Theta, fd)
	}

	// Finite-difference rho for one percentage point.
	fdRho := e.Price(models.Call, s, k, tt, r+0.01, sigma) - e.Price(models.Call, s, k, tt, r, sigma)
	if math.Abs(fdRho-g.Rho) > 1e-2 {
		t.Errorf("rho = %v, finite difference = %v", g.Rho, fdRho)
	}

	put := e.Greeks(models.Put, s, k, tt, r, sigma)
	if math.Abs((g.Delta-put.Delta)-1) > 1e-12 {
		t.Errorf("call delta - put delta = %v, want 1", g.Delta-put.Delta)
	}
	if g.Gamma != put.Gamma || g.Vega != put.Vega {
		t.Errorf("gamma/vega must match between call and put")
	}
}

func TestImpliedVolatility_RecoversSigma(t *testing.T) {
	e := newTestEngine()
	s, k, tt, r := 50000.0, 50000.0, 30.0/365, 0.05

	for _, sigma := range []float64{0.5, 0.25, 0.8, 1.5} {
		for _, kind := range []models.OptionKind{models.Call, models.Put} {
			market := e.Price(kind, s, k, tt, r, sigma)
			iv := e.ImpliedVolatility(market, s, k, tt, r, kind)
			if !iv.Converged {
				t.Errorf("%s sigma=%v: solver did not converge (%+v)", kind, sigma, iv)
			}
			if math.Abs(iv.Sigma-sigma) > 1e-4 {
				t.Errorf("%s sigma=%v: recovered %v", kind, sigma, iv.Sigma)
			}
		}
	}
}

func TestImpliedVolatility_Degenerate(t *testing.T) {
	e := newTestEngine()

	if iv := e.ImpliedVolatility(100, 50000, 50000, 0, 0.05, models.Call); iv.Sigma != 0 || iv.Converged {
		t.Errorf("expired option: got %+v, want zero result", iv)
	}

	// Deep OTM one-day call: vega underflows and the solver stops without dividing.
	iv := e.ImpliedVolatility(0.0001, 10000, 100000, 1.0/365, 0.05, models.Call)
	if math.IsNaN(iv.Sigma) || math.IsInf(iv.Sigma, 0) {
		t.Fatalf("solver returned non-finite sigma %v", iv.Sigma)
	}
	if iv.Sigma < MinVol || iv.Sigma > MaxVol {
		t.Errorf("sigma %v outside clamp range", iv.Sigma)
	}

	// A price below intrinsic cannot be matched; result is still bounded.
	iv = e.ImpliedVolatility(1, 60000, 50000, 0.5, 0.05, models.Call)
	if iv.Sigma < MinVol || iv.Sigma > MaxVol {
		t.Errorf("sigma %v outside clamp range", iv.Sigma)
	}
	if iv.Iterations < 1 || iv.Iterations > MaxIVIterations {
		t.Errorf("iterations %d outside [1, %d]", iv.Iterations, MaxIVIterations)
	}
}

func TestQuote(t *testing.T) {
	e := newTestEngine()
	q := e.Quote(50000, 50000, 30.0/365, 0.5, models.Call, nil, nil)
	if q.MidPrice != q.TheoreticalPrice || q.ImpliedVolatility != 0.5 {
		t.Errorf("quote without market should echo theory: %+v", q)
	}
	if q.Bid >= q.Ask {
		t.Errorf("synthesized bid %v must be below ask %v", q.Bid, q.Ask)
	}

	bid, ask := q.TheoreticalPrice-1, q.TheoreticalPrice+1
	q2 := e.Quote(50000, 50000, 30.0/365, 0.9, models.Call, &bid, &ask)
	if math.Abs(q2.ImpliedVolatility-0.5) > 1e-4 {
		t.Errorf("IV from mid = %v, want ~0.5", q2.ImpliedVolatility)
	}
}

func TestRefreshContract(t *testing.T) {
	e := newTestEngine()
	now := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	expiry := now.Add(30 * 24 * time.Hour)
	tt := 30.0 / 365
	price := e.Price(models.Put, 50000, 48000, tt, DefaultRiskFreeRate, 0.6)

	c := models.OptionContract{
		Symbol: "BTC-31JUL25-48000-P",
		Strike: 48000,
		Expiry: expiry,
		Kind:   models.Put,
		Bid:    price,
		Ask:    price,
	}
	got := e.RefreshContract(c, 50000, now)
	if math.Abs(got.ImpliedVolatility-0.6) > 1e-4 {
		t.Errorf("refreshed IV = %v, want ~0.6", got.ImpliedVolatility)
	}
	if got.Greeks.Delta >= 0 || got.Greeks.Delta <= -1 {
		t.Errorf("refreshed put delta = %v, want in (-1, 0)", got.Greeks.Delta)
	}
	if c.Greeks.Delta != 0 {
		t.Errorf("input contract was mutated")
	}
}

// Property: put-call parity holds for every valid input with T > 0.
func TestProperty_PutCallParity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	e := newTestEngine()

	properties.Property("call - put == S - K*exp(-rT)", prop.ForAll(
		func(s, k, tt, r, sigma float64) bool {
			call := e.Price(models.Call, s, k, tt, r, sigma)
			put := e.Price(models.Put, s, k, tt, r, sigma)
			parity := s - k*math.Exp(-r*tt)
			tol := 1e-9 * math.Max(s, k)
			if math.Abs((call-put)-parity) > tol {
				t.Logf("S=%v K=%v T=%v r=%v sigma=%v: call-put=%v parity=%v", s, k, tt, r, sigma, call-put, parity)
				return false
			}
			return true
		},
		gen.Float64Range(1000, 200000),
		gen.Float64Range(1000, 200000),
		gen.Float64Range(0.001, 3),
		gen.Float64Range(0, 0.15),
		gen.Float64Range(0.05, 3),
	))

	properties.TestingRun(t)
}

// Property: call delta lies in [0,1] and put delta in [-1,0].
func TestProperty_DeltaBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	e := newTestEngine()

	properties.Property("deltas within bounds", prop.ForAll(
		func(s, k, tt, sigma float64) bool {
			call := e.Greeks(models.Call, s, k, tt, 0.05, sigma)
			put := e.Greeks(models.Put, s, k, tt, 0.05, sigma)
			return call.Delta >= 0 && call.Delta <= 1 && put.Delta >= -1 && put.Delta <= 0
		},
		gen.Float64Range(100, 200000),
		gen.Float64Range(100, 200000),
		gen.Float64Range(-0.5, 3),
		gen.Float64Range(0.01, 5),
	))

	properties.TestingRun(t)
}

// Property: as T -> 0+ the price converges to intrinsic value.
func TestProperty_BoundaryConvergence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	e := newTestEngine()
	r := 0.05

	properties.Property("price approaches intrinsic near expiry", prop.ForAll(
		func(s, k, sigma, tt float64) bool {
			for _, kind := range []models.OptionKind{models.Call, models.Put} {
				price := e.Price(kind, s, k, tt, r, sigma)
				intrinsic := models.Intrinsic(kind, k, s)
				bound := s*sigma*math.Sqrt(tt) + k*r*tt + 1e-9*math.Max(s, k)
				if math.Abs(price-intrinsic) > bound {
					t.Logf("%s S=%v K=%v T=%v: price=%v intrinsic=%v bound=%v", kind, s, k, tt, price, intrinsic, bound)
					return false
				}
			}
			return true
		},
		gen.Float64Range(1000, 200000),
		gen.Float64Range(1000, 200000),
		gen.Float64Range(0.05, 2),
		gen.Float64Range(1e-12, 1e-6),
	))

	properties.TestingRun(t)
}
