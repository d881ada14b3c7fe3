package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// OptionKind is either a call or a put.
type OptionKind string

const (
	Call OptionKind = "call"
	Put  OptionKind = "put"
)

// Valid reports whether k is call or put.
func (k OptionKind) Valid() bool {
	return k == Call || k == Put
}

// Letter returns the single-letter venue suffix (C or P).
func (k OptionKind) Letter() string {
	if k == Put {
		return "P"
	}
	return "C"
}

// ParseOptionKind accepts call/put, c/p, ce/pe in any case.
func ParseOptionKind(s string) (OptionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c", "ce":
		return Call, nil
	case "put", "p", "pe":
		return Put, nil
	}
	return "", fmt.Errorf("unknown option kind %q", s)
}

// OptionGreeks represents option Greeks.
// Theta is per day, Vega and Rho per one percentage point.
type OptionGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// Add returns the component-wise sum of g and o.
func (g OptionGreeks) Add(o OptionGreeks) OptionGreeks {
	return OptionGreeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
		Rho:   g.Rho + o.Rho,
	}
}

// Scale returns g with every component multiplied by qty.
func (g OptionGreeks) Scale(qty float64) OptionGreeks {
	return OptionGreeks{
		Delta: g.Delta * qty,
		Gamma: g.Gamma * qty,
		Theta: g.Theta * qty,
		Vega:  g.Vega * qty,
		Rho:   g.Rho * qty,
	}
}

const (
	// PutFallbackPremiumRate is the share of strike used to price a put with no market.
	PutFallbackPremiumRate = 0.05
	// CallFallbackPremiumRate is the share of strike used to price a call with no market.
	CallFallbackPremiumRate = 0.03
)

// FallbackPremium estimates a premium from the strike alone. Thin books often quote
// zero on every field, so this is the last rung of the MidPrice ladder.
func FallbackPremium(kind OptionKind, strike float64) float64 {
	if kind == Put {
		return strike * PutFallbackPremiumRate
	}
	return strike * CallFallbackPremiumRate
}

// OptionContract is an immutable snapshot of a tradable option.
type OptionContract struct {
	Symbol            string       `json:"symbol"`
	Strike            float64      `json:"strike"`
	Expiry            time.Time    `json:"expiry"`
	Kind              OptionKind   `json:"kind"`
	Underlying        string       `json:"underlying"`
	Venue             Venue        `json:"venue"`
	Greeks            OptionGreeks `json:"greeks"`
	ImpliedVolatility float64      `json:"implied_volatility"`
	LastPrice         float64      `json:"last_price"`
	Bid               float64      `json:"bid"`
	Ask               float64      `json:"ask"`
	Volume24h         float64      `json:"volume_24h"`
}

// MidPrice resolves a usable premium: bid/ask mid, then last trade, then the
// strike-proportional fallback.
func (c OptionContract) MidPrice() float64 {
	if c.Bid != 0 || c.Ask != 0 {
		return (c.Bid + c.Ask) / 2
	}
	if c.LastPrice != 0 {
		return c.LastPrice
	}
	return FallbackPremium(c.Kind, c.Strike)
}

// HasMarket reports whether any market price was quoted.
func (c OptionContract) HasMarket() bool {
	return c.Bid != 0 || c.Ask != 0 || c.LastPrice != 0
}

// TimeToExpiry returns years to expiry on an ACT/365 basis, never negative.
func (c OptionContract) TimeToExpiry(now time.Time) float64 {
	d := c.Expiry.Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Hours() / 24 / 365
}

// SignedDelta returns the delta with puts forced negative, as venues sometimes
// report put deltas unsigned.
func (c OptionContract) SignedDelta() float64 {
	if c.Kind == Put {
		return -math.Abs(c.Greeks.Delta)
	}
	return c.Greeks.Delta
}

// Intrinsic returns the expiry value of one unit of an option.
func Intrinsic(kind OptionKind, strike, underlying float64) float64 {
	if kind == Put {
		return math.Max(strike-underlying, 0)
	}
	return math.Max(underlying-strike, 0)
}

// OptionLeg is one position within a strategy.
type OptionLeg struct {
	Symbol   string        `json:"symbol"`
	Quantity float64       `json:"quantity"` // positive long, negative short
	Strike   float64       `json:"strike"`
	Expiry   string        `json:"expiry"`
	Kind     OptionKind    `json:"kind"`
	Price    float64       `json:"price"`
	Greeks   *OptionGreeks `json:"greeks,omitempty"`
}

// IsLong reports whether the leg is bought.
func (l OptionLeg) IsLong() bool {
	return l.Quantity > 0
}

// Premium returns the signed premium of the leg: positive paid, negative received.
func (l OptionLeg) Premium() float64 {
	return l.Quantity * l.Price
}

// IntrinsicAt returns the signed expiry value of the leg at underlying price s.
func (l OptionLeg) IntrinsicAt(s float64) float64 {
	return l.Quantity * Intrinsic(l.Kind, l.Strike, s)
}

// PayoffPoint is one sample of a payoff diagram.
type PayoffPoint struct {
	Price  float64 `json:"price"`
	Payoff float64 `json:"payoff"`
}

// StrategyPayoff is the computed payoff profile of a strategy.
type StrategyPayoff struct {
	Name           string        `json:"name"`
	MaxProfit      float64       `json:"max_profit"`
	MaxLoss        float64       `json:"max_loss"`
	Breakevens     []float64     `json:"breakevens"`
	PayoffCurve    []PayoffPoint `json:"payoff_curve"`
	CurrentPnL     float64       `json:"current_pnl"`
	MarginRequired float64       `json:"margin_required"`
	NetPremium     float64       `json:"net_premium"` // positive debit, negative credit
}

// Unbounded reports whether the maximum profit is unlimited.
func (p StrategyPayoff) Unbounded() bool {
	return math.IsInf(p.MaxProfit, 1)
}

// PayoffAt returns the sampled payoff at price, if that price was sampled.
func (p StrategyPayoff) PayoffAt(price float64) (float64, bool) {
	for _, pt := range p.PayoffCurve {
		if pt.Price == price {
			return pt.Payoff, true
		}
	}
	return 0, false
}

// OptionSymbol formats a venue symbol such as BTC-25JUL25-109000-P.
func OptionSymbol(underlying, expiry string, strike float64, kind OptionKind) string {
	if expiry == "" {
		return fmt.Sprintf("%s-%s-%s", underlying, strconv.FormatFloat(strike, 'f', -1, 64), kind.Letter())
	}
	return fmt.Sprintf("%s-%s-%s-%s", underlying, expiry, strconv.FormatFloat(strike, 'f', -1, 64), kind.Letter())
}

// ParsedOptionSymbol holds the fields recovered from a venue option symbol.
type ParsedOptionSymbol struct {
	Underlying string
	Expiry     time.Time
	Strike     float64
	Kind       OptionKind
}

// ParseOptionSymbol parses UNDERLYING-DDMONYY-STRIKE-C|P symbols. Expiry is
// 08:00 UTC on the expiry date, the usual crypto settlement time.
func ParseOptionSymbol(symbol string) (ParsedOptionSymbol, error) {
	parts := strings.Split(strings.ToUpper(symbol), "-")
	if len(parts) != 4 {
		return ParsedOptionSymbol{}, fmt.Errorf("option symbol %q: expected 4 dash-separated fields", symbol)
	}
	expiry, err := ParseExpiryLabel(parts[1])
	if err != nil {
		return ParsedOptionSymbol{}, fmt.Errorf("option symbol %q: bad expiry: %w", symbol, err)
	}
	strike, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || strike <= 0 {
		return ParsedOptionSymbol{}, fmt.Errorf("option symbol %q: bad strike", symbol)
	}
	kind, err := ParseOptionKind(parts[3])
	if err != nil {
		return ParsedOptionSymbol{}, fmt.Errorf("option symbol %q: %w", symbol, err)
	}
	return ParsedOptionSymbol{
		Underlying: parts[0],
		Expiry:     expiry,
		Strike:     strike,
		Kind:       kind,
	}, nil
}

// ExpiryLabel formats t the way venues label expiries, e.g. 25JUL25.
func ExpiryLabel(t time.Time) string {
	return strings.ToUpper(t.UTC().Format("2Jan06"))
}

// ParseExpiryLabel parses labels such as 25JUL25 or 5SEP25. The result is
// 08:00 UTC on that date, the usual crypto settlement time.
func ParseExpiryLabel(label string) (time.Time, error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if len(label) < 6 {
		return time.Time{}, fmt.Errorf("expiry label %q too short", label)
	}
	n := len(label)
	mon := label[n-5 : n-2]
	normalized := label[:n-5] + mon[:1] + strings.ToLower(mon[1:]) + label[n-2:]
	t, err := time.Parse("2Jan06", normalized)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(8 * time.Hour), nil
}
