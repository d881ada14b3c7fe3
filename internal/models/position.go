package models

import (
	"math"
	"time"
)

// OptionDetails carries the option-specific fields of a position.
type OptionDetails struct {
	Strike            float64       `json:"strike"`
	Expiry            time.Time     `json:"expiry"`
	Kind              OptionKind    `json:"kind"`
	ImpliedVolatility float64       `json:"implied_volatility,omitempty"`
	Greeks            *OptionGreeks `json:"greeks,omitempty"` // per unit, when a live feed supplied them
}

// Position represents a portfolio holding. The risk engine only reads positions.
type Position struct {
	Symbol    string         `json:"symbol"`
	Quantity  float64        `json:"quantity"` // positive long, negative short
	AvgPrice  float64        `json:"avg_price"`
	Kind      InstrumentKind `json:"kind"`
	Venue     Venue          `json:"venue"`
	Timestamp time.Time      `json:"timestamp"`
	Option    *OptionDetails `json:"option,omitempty"` // set only for InstrumentOption
}

// IsLong reports whether the position is long.
func (p Position) IsLong() bool {
	return p.Quantity > 0
}

// IsShort reports whether the position is short.
func (p Position) IsShort() bool {
	return p.Quantity < 0
}

// Notional returns |qty * price|.
func (p Position) Notional(price float64) float64 {
	return math.Abs(p.Quantity * price)
}

// UnrealizedPnL returns qty * (price - avg).
func (p Position) UnrealizedPnL(price float64) float64 {
	return p.Quantity * (price - p.AvgPrice)
}

// ReturnPct returns the fractional return against the entry price.
func (p Position) ReturnPct(price float64) float64 {
	if p.AvgPrice <= 0 {
		return 0
	}
	return (price - p.AvgPrice) / p.AvgPrice
}

// OptionTerms returns the option details of the position. When none were
// attached it tries to recover strike, expiry and kind from the venue symbol.
func (p Position) OptionTerms() (OptionDetails, bool) {
	if p.Kind != InstrumentOption {
		return OptionDetails{}, false
	}
	if p.Option != nil {
		return *p.Option, true
	}
	parsed, err := ParseOptionSymbol(p.Symbol)
	if err != nil {
		return OptionDetails{}, false
	}
	return OptionDetails{Strike: parsed.Strike, Expiry: parsed.Expiry, Kind: parsed.Kind}, true
}
