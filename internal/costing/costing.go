// Package costing estimates execution costs: venue fees and slippage.
package costing

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"btc-hedger/internal/config"
	"btc-hedger/internal/models"
)

// Fallback rates for venues and kinds missing from the tables.
var (
	DefaultFeeRate      = decimal.RequireFromString("0.001")
	DefaultSlippageRate = decimal.RequireFromString("0.0001")
)

var hundred = decimal.NewFromInt(100)

// Breakdown is the cost of a single trade.
type Breakdown struct {
	Notional decimal.Decimal `json:"notional"`
	Fee      decimal.Decimal `json:"fee"`
	Slippage decimal.Decimal `json:"slippage"`
	Total    decimal.Decimal `json:"total_cost"`
	TotalPct decimal.Decimal `json:"total_cost_pct"`
}

// String renders the breakdown for terminal output.
func (b Breakdown) String() string {
	return fmt.Sprintf("Notional: $%s\nFee: $%s\nSlippage: $%s\nTotal Cost: $%s\nCost %%: %s%%",
		b.Notional.StringFixed(2),
		b.Fee.StringFixed(2),
		b.Slippage.StringFixed(2),
		b.Total.StringFixed(2),
		b.TotalPct.StringFixed(3))
}

// Service holds fee and slippage tables. Lookups are case-insensitive.
type Service struct {
	fees            map[string]map[string]decimal.Decimal
	slippage        map[string]decimal.Decimal
	defaultFee      decimal.Decimal
	defaultSlippage decimal.Decimal
	logger          zerolog.Logger
}

// NewService builds a costing service from configuration.
func NewService(cfg config.CostingConfig, logger zerolog.Logger) *Service {
	s := &Service{
		fees:            make(map[string]map[string]decimal.Decimal),
		slippage:        make(map[string]decimal.Decimal),
		defaultFee:      DefaultFeeRate,
		defaultSlippage: DefaultSlippageRate,
		logger:          logger.With().Str("component", "costing").Logger(),
	}
	for venue, kinds := range cfg.Fees {
		rates := make(map[string]decimal.Decimal, len(kinds))
		for kind, rate := range kinds {
			rates[key(kind)] = decimal.NewFromFloat(rate)
		}
		s.fees[key(venue)] = rates
	}
	for kind, rate := range cfg.Slippage {
		s.slippage[key(kind)] = decimal.NewFromFloat(rate)
	}
	if cfg.DefaultFee > 0 {
		s.defaultFee = decimal.NewFromFloat(cfg.DefaultFee)
	}
	if cfg.DefaultSlippage > 0 {
		s.defaultSlippage = decimal.NewFromFloat(cfg.DefaultSlippage)
	}
	return s
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FeeRate returns the fee rate for venue and kind, falling back to the default.
func (s *Service) FeeRate(venue models.Venue, kind models.InstrumentKind) decimal.Decimal {
	if rate, ok := s.fees[key(string(venue))][key(string(kind))]; ok {
		return rate
	}
	s.logger.Warn().Str("venue", string(venue)).Str("kind", string(kind)).Msg("unknown fee rate, using default")
	return s.defaultFee
}

// SlippageRate returns the slippage rate for kind, falling back to the default.
func (s *Service) SlippageRate(kind models.InstrumentKind) decimal.Decimal {
	if rate, ok := s.slippage[key(string(kind))]; ok {
		return rate
	}
	s.logger.Warn().Str("kind", string(kind)).Msg("unknown slippage rate, using default")
	return s.defaultSlippage
}

// Fee returns the trading fee on notional.
func (s *Service) Fee(notional decimal.Decimal, venue models.Venue, kind models.InstrumentKind) decimal.Decimal {
	return notional.Mul(s.FeeRate(venue, kind))
}

// Slippage returns the expected slippage on notional.
func (s *Service) Slippage(notional decimal.Decimal, kind models.InstrumentKind) decimal.Decimal {
	return notional.Mul(s.SlippageRate(kind))
}

// TotalCost prices a trade of qty at price. The sign of qty is ignored.
func (s *Service) TotalCost(qty, price float64, venue models.Venue, kind models.InstrumentKind) Breakdown {
	notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price)).Abs()
	fee := s.Fee(notional, venue, kind)
	slip := s.Slippage(notional, kind)
	total := fee.Add(slip)

	pct := decimal.Zero
	if notional.IsPositive() {
		pct = total.Div(notional).Mul(hundred)
	}
	return Breakdown{
		Notional: notional,
		Fee:      fee,
		Slippage: slip,
		Total:    total,
		TotalPct: pct,
	}
}

// EstimateFillPrice moves mid against the trade by the slippage rate: up for
// buys (qty > 0), down for sells.
func (s *Service) EstimateFillPrice(mid, qty float64, kind models.InstrumentKind) float64 {
	rate := s.SlippageRate(kind)
	m := decimal.NewFromFloat(mid)
	if qty > 0 {
		return m.Mul(decimal.NewFromInt(1).Add(rate)).InexactFloat64()
	}
	return m.Mul(decimal.NewFromInt(1).Sub(rate)).InexactFloat64()
}

// HedgeCost returns the execution cost of a hedge recommendation on venue.
// Perpetual hedges are costed at spot, option hedges at the contract mid.
func (s *Service) HedgeCost(rec models.HedgeRecommendation, venue models.Venue, spot float64) Breakdown {
	switch {
	case rec.Kind == models.HedgePerpDeltaNeutral:
		return s.TotalCost(rec.Quantity, spot, venue, models.InstrumentPerpetual)
	case rec.Collar != nil:
		put := s.TotalCost(rec.Collar.PutQuantity, rec.Collar.Put.MidPrice(), venue, models.InstrumentOption)
		call := s.TotalCost(rec.Collar.CallQuantity, rec.Collar.Call.MidPrice(), venue, models.InstrumentOption)
		return put.Add(call)
	case rec.Contract != nil:
		return s.TotalCost(rec.Quantity, rec.Contract.MidPrice(), venue, models.InstrumentOption)
	}
	return Breakdown{Notional: decimal.Zero, Fee: decimal.Zero, Slippage: decimal.Zero, Total: decimal.Zero, TotalPct: decimal.Zero}
}

// Add combines two breakdowns, recomputing the percentage.
func (b Breakdown) Add(o Breakdown) Breakdown {
	out := Breakdown{
		Notional: b.Notional.Add(o.Notional),
		Fee:      b.Fee.Add(o.Fee),
		Slippage: b.Slippage.Add(o.Slippage),
		Total:    b.Total.Add(o.Total),
		TotalPct: decimal.Zero,
	}
	if out.Notional.IsPositive() {
		out.TotalPct = out.Total.Div(out.Notional).Mul(hundred)
	}
	return out
}
