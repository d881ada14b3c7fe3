// Package strategy builds multi-leg option strategies and computes their
// payoff profiles at expiry.
package strategy

import (
	"math"

	"github.com/rs/zerolog"

	"btc-hedger/internal/errors"
	"btc-hedger/internal/models"
)

// Strategy names.
const (
	NameStraddle   = "straddle"
	NameButterfly  = "butterfly"
	NameIronCondor = "iron_condor"
)

// Builder assembles strategies. The zero value is usable.
type Builder struct {
	Underlying   string  // symbol prefix for generated legs, default BTC
	ExpiryLabel  string  // shared expiry label for every leg
	SampleStep   float64 // payoff grid step in quote currency, default 1000
	SampleMargin float64 // fraction of the outer strikes sampled beyond them, default 0.3
	Logger       zerolog.Logger
}

// NewBuilder creates a builder for the given underlying and expiry label.
func NewBuilder(underlying, expiryLabel string, logger zerolog.Logger) *Builder {
	return &Builder{
		Underlying:  underlying,
		ExpiryLabel: expiryLabel,
		Logger:      logger.With().Str("component", "strategy").Logger(),
	}
}

func (b *Builder) underlying() string {
	if b.Underlying == "" {
		return "BTC"
	}
	return b.Underlying
}

func (b *Builder) step() float64 {
	if b.SampleStep <= 0 {
		return 1000
	}
	return b.SampleStep
}

func (b *Builder) margin() float64 {
	if b.SampleMargin <= 0 {
		return 0.3
	}
	return b.SampleMargin
}

func (b *Builder) leg(qty, strike float64, kind models.OptionKind, price float64, greeks *models.OptionGreeks) models.OptionLeg {
	return models.OptionLeg{
		Symbol:   models.OptionSymbol(b.underlying(), b.ExpiryLabel, strike, kind),
		Quantity: qty,
		Strike:   strike,
		Expiry:   b.ExpiryLabel,
		Kind:     kind,
		Price:    price,
		Greeks:   greeks,
	}
}

// StraddleParams describes a long straddle.
type StraddleParams struct {
	Strike       float64
	CallPrice    float64
	PutPrice     float64
	CurrentPrice float64
	CallGreeks   *models.OptionGreeks
	PutGreeks    *models.OptionGreeks
}

// Straddle builds long 1 call + long 1 put at one strike.
func (b *Builder) Straddle(p StraddleParams) ([]models.OptionLeg, models.StrategyPayoff, error) {
	if err := requirePositive(NameStraddle, "strike", p.Strike); err != nil {
		return nil, models.StrategyPayoff{}, err
	}
	if err := requirePrices(NameStraddle, p.CallPrice, p.PutPrice); err != nil {
		return nil, models.StrategyPayoff{}, err
	}

	legs := []models.OptionLeg{
		b.leg(1, p.Strike, models.Call, p.CallPrice, p.CallGreeks),
		b.leg(1, p.Strike, models.Put, p.PutPrice, p.PutGreeks),
	}

	premium := p.CallPrice + p.PutPrice
	breakevens := []float64{p.Strike - premium, p.Strike + premium}

	payoff := models.StrategyPayoff{
		Name:           NameStraddle,
		MaxProfit:      math.Inf(1),
		MaxLoss:        -premium,
		Breakevens:     breakevens,
		CurrentPnL:     PayoffAt(legs, premium, p.CurrentPrice),
		MarginRequired: premium,
		NetPremium:     premium,
	}
	payoff.PayoffCurve = b.sample(legs, premium, breakevens)

	b.Logger.Debug().
		Str("strategy", NameStraddle).
		Float64("strike", p.Strike).
		Float64("premium", premium).
		Msg("strategy built")

	return legs, payoff, nil
}

// ButterflyParams describes a long butterfly. Kind selects the call or put variant.
type ButterflyParams struct {
	Lower        float64
	Middle       float64
	Upper        float64
	LowerPrice   float64
	MiddlePrice  float64
	UpperPrice   float64
	CurrentPrice float64
	Kind         models.OptionKind
}

// Butterfly builds long 1 lower, short 2 middle, long 1 upper. Strikes need not
// be evenly spaced.
func (b *Builder) Butterfly(p ButterflyParams) ([]models.OptionLeg, models.StrategyPayoff, error) {
	kind := p.Kind
	if kind == "" {
		kind = models.Call
	}
	if !kind.Valid() {
		return nil, models.StrategyPayoff{}, errors.NewValidationError("kind", p.Kind, "must be call or put")
	}
	if err := requireAscending(NameButterfly, []string{"lower", "middle", "upper"}, p.Lower, p.Middle, p.Upper); err != nil {
		return nil, models.StrategyPayoff{}, err
	}
	if err := requirePrices(NameButterfly, p.LowerPrice, p.MiddlePrice, p.UpperPrice); err != nil {
		return nil, models.StrategyPayoff{}, err
	}

	legs := []models.OptionLeg{
		b.leg(1, p.Lower, kind, p.LowerPrice, nil),
		b.leg(-2, p.Middle, kind, p.MiddlePrice, nil),
		b.leg(1, p.Upper, kind, p.UpperPrice, nil),
	}

	netDebit := p.LowerPrice - 2*p.MiddlePrice + p.UpperPrice
	breakevens := []float64{p.Lower + netDebit, p.Upper - netDebit}

	payoff := models.StrategyPayoff{
		Name:           NameButterfly,
		MaxProfit:      (p.Middle - p.Lower) - netDebit,
		MaxLoss:        netDebit,
		Breakevens:     breakevens,
		CurrentPnL:     PayoffAt(legs, netDebit, p.CurrentPrice),
		MarginRequired: netDebit,
		NetPremium:     netDebit,
	}
	payoff.PayoffCurve = b.sample(legs, netDebit, breakevens)

	return legs, payoff, nil
}

// IronCondorParams describes a short iron condor with strikes
// PutLower < PutUpper < CallLower < CallUpper. The inner strikes are sold and
// the outer wings bought: long PutLower, short PutUpper, short CallLower,
// long CallUpper. The position opens for a net credit and its breakevens are
// PutUpper - credit and CallLower + credit. Callers used to a long condor
// (inner strikes bought) get the opposite sign on every leg.
type IronCondorParams struct {
	PutLower       float64
	PutUpper       float64
	CallLower      float64
	CallUpper      float64
	PutLowerPrice  float64
	PutUpperPrice  float64
	CallLowerPrice float64
	CallUpperPrice float64
	CurrentPrice   float64
}

// IronCondorRisk breaks the condor's maximum loss down by wing.
type IronCondorRisk struct {
	NetCredit       float64 `json:"net_credit"`
	PutSideMaxLoss  float64 `json:"put_side_max_loss"`
	CallSideMaxLoss float64 `json:"call_side_max_loss"`
}

// IronCondor builds a short iron condor: long put at PutLower, short put at
// PutUpper, short call at CallLower and long call at CallUpper. Strikes must
// satisfy PutLower < PutUpper < CallLower < CallUpper. Each wing loses at most
// its width less the credit.
func (b *Builder) IronCondor(p IronCondorParams) ([]models.OptionLeg, models.StrategyPayoff, error) {
	legs, payoff, _, err := b.IronCondorWithRisk(p)
	return legs, payoff, err
}

// IronCondorWithRisk is IronCondor that also reports per-wing losses.
func (b *Builder) IronCondorWithRisk(p IronCondorParams) ([]models.OptionLeg, models.StrategyPayoff, IronCondorRisk, error) {
	names := []string{"put_lower", "put_upper", "call_lower", "call_upper"}
	if err := requireAscending(NameIronCondor, names, p.PutLower, p.PutUpper, p.CallLower, p.CallUpper); err != nil {
		return nil, models.StrategyPayoff{}, IronCondorRisk{}, err
	}
	if err := requirePrices(NameIronCondor, p.PutLowerPrice, p.PutUpperPrice, p.CallLowerPrice, p.CallUpperPrice); err != nil {
		return nil, models.StrategyPayoff{}, IronCondorRisk{}, err
	}

	legs := []models.OptionLeg{
		b.leg(1, p.PutLower, models.Put, p.PutLowerPrice, nil),
		b.leg(-1, p.PutUpper, models.Put, p.PutUpperPrice, nil),
		b.leg(-1, p.CallLower, models.Call, p.CallLowerPrice, nil),
		b.leg(1, p.CallUpper, models.Call, p.CallUpperPrice, nil),
	}

	netCredit := -NetPremium(legs)
	risk := IronCondorRisk{
		NetCredit:       netCredit,
		PutSideMaxLoss:  (p.PutUpper - p.PutLower) - netCredit,
		CallSideMaxLoss: (p.CallUpper - p.CallLower) - netCredit,
	}
	breakevens := []float64{p.PutUpper - netCredit, p.CallLower + netCredit}

	payoff := models.StrategyPayoff{
		Name:           NameIronCondor,
		MaxProfit:      netCredit,
		MaxLoss:        math.Max(risk.PutSideMaxLoss, risk.CallSideMaxLoss),
		Breakevens:     breakevens,
		CurrentPnL:     PayoffAt(legs, -netCredit, p.CurrentPrice),
		MarginRequired: netCredit,
		NetPremium:     -netCredit,
	}
	payoff.PayoffCurve = b.sample(legs, -netCredit, breakevens)

	return legs, payoff, risk, nil
}

func (b *Builder) sample(legs []models.OptionLeg, netPremium float64, extra []float64) []models.PayoffPoint {
	lo, hi := strikeRange(legs)
	m := b.margin()
	return SamplePayoff(legs, netPremium, lo*(1-m), hi*(1+m), b.step(), extra...)
}

func requirePositive(strategy, field string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return errors.NewStrategyError(strategy, field, v, "strike must be positive and finite")
	}
	return nil
}

func requireAscending(strategy string, names []string, strikes ...float64) error {
	for i, k := range strikes {
		if err := requirePositive(strategy, names[i], k); err != nil {
			return err
		}
		if i > 0 && !(k > strikes[i-1]) {
			return errors.NewStrategyError(strategy, names[i], k, "strikes must be strictly increasing from "+names[i-1])
		}
	}
	return nil
}

func requirePrices(strategy string, prices ...float64) error {
	for _, p := range prices {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return errors.NewStrategyError(strategy, "price", p, "option prices must be finite and non-negative")
		}
	}
	return nil
}
