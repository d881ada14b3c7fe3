// Package models provides domain models for the pricing and hedging engine.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Venue identifies the exchange a contract or position lives on.
type Venue string

const (
	VenueOKX     Venue = "OKX"
	VenueDeribit Venue = "Deribit"
)

// ParseVenue parses a case-insensitive venue name.
func ParseVenue(s string) (Venue, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "okx":
		return VenueOKX, nil
	case "deribit":
		return VenueDeribit, nil
	}
	return "", fmt.Errorf("unknown venue %q", s)
}

// InstrumentKind is the closed set of instruments a position can hold.
type InstrumentKind string

const (
	InstrumentSpot      InstrumentKind = "spot"
	InstrumentPerpetual InstrumentKind = "perpetual"
	InstrumentOption    InstrumentKind = "option"
)

// Valid reports whether k is one of the known instrument kinds.
func (k InstrumentKind) Valid() bool {
	switch k {
	case InstrumentSpot, InstrumentPerpetual, InstrumentOption:
		return true
	}
	return false
}

// ParseInstrumentKind parses a case-insensitive instrument kind.
func ParseInstrumentKind(s string) (InstrumentKind, error) {
	k := InstrumentKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown instrument kind %q", s)
	}
	return k, nil
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Ticker is a top-of-book snapshot for any instrument.
type Ticker struct {
	Symbol    string
	Venue     Venue
	Timestamp time.Time
	Bid       float64
	Ask       float64
	LastPrice float64
	Volume24h float64
}

// MidPrice returns the mid of bid and ask.
func (t Ticker) MidPrice() float64 {
	return (t.Bid + t.Ask) / 2
}

// Spread returns the bid-ask spread.
func (t Ticker) Spread() float64 {
	return t.Ask - t.Bid
}

// SpreadPercent returns the spread as a percentage of mid.
func (t Ticker) SpreadPercent() float64 {
	mid := t.MidPrice()
	if mid == 0 {
		return 0
	}
	return t.Spread() / mid * 100
}
