package cli

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"btc-hedger/internal/errors"
	"btc-hedger/internal/logging"
	"btc-hedger/internal/models"
	"btc-hedger/internal/risk"
)

func addRiskCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Portfolio delta, VaR and stress testing",
		Long:  "Analyze the risk of the portfolio stored in the snapshot database.",
	}
	cmd.PersistentFlags().String("delta-mode", "", "delta source: auto, supplied, model or moneyness (default: from config)")
	cmd.PersistentFlags().String("underlying", "BTC", "underlying asset")

	cmd.AddCommand(newRiskSummaryCmd(app))
	cmd.AddCommand(newRiskPositionCmd(app))
	cmd.AddCommand(newRiskVaRCmd(app))
	cmd.AddCommand(newRiskStressCmd(app))
	cmd.AddCommand(newRiskVolCmd(app))
	rootCmd.AddCommand(cmd)
}

// riskSummary is the JSON shape of risk summary.
type riskSummary struct {
	risk.PortfolioRisk
	DeltaExposure map[models.InstrumentKind]float64 `json:"delta_exposure"`
	DeltaSources  map[string]risk.DeltaSource       `json:"delta_sources"`
	Concentration risk.Concentration                `json:"concentration"`
	AsOf          time.Time                         `json:"as_of"`
}

func newRiskSummaryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show portfolio risk summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			underlying, _ := cmd.Flags().GetString("underlying")

			agg, err := app.Aggregator(cmd)
			if err != nil {
				return err
			}
			snap, err := app.snapshot(cmd.Context(), cmd, underlying)
			if err != nil {
				return err
			}

			pr := agg.PortfolioRisk(snap.Positions, snap.Prices)
			summary := riskSummary{
				PortfolioRisk: pr,
				DeltaExposure: agg.DeltaExposure(snap.Positions, snap.Prices),
				DeltaSources:  agg.TotalDelta(snap.Positions, snap.Prices).Sources,
				Concentration: risk.ConcentrationRisk(snap.Positions, snap.Prices),
				AsOf:          snap.ReadAt,
			}
			logger := logging.WithSymbol(logging.FromContext(cmd.Context()), underlying)
			logging.LogRisk(logger, pr.NumPositions, pr.TotalDelta, pr.TotalNotional, pr.VaR95)

			if output.IsJSON() {
				return output.JSON(summary)
			}

			if pr.NumPositions == 0 {
				output.Info("No positions in snapshot")
				return nil
			}

			output.Bold("Portfolio Risk")
			output.Dim("As of %s", FormatDateTime(summary.AsOf))
			output.Printf("  Positions:       %d (%d priced)\n", pr.NumPositions, len(pr.Positions))
			output.Printf("  Net delta:       %s %s\n", FormatDelta(pr.TotalDelta), underlying)
			output.Printf("  Notional:        %s\n", FormatUSD(pr.TotalNotional))
			output.Printf("  Unrealized P&L:  %s\n", output.FormatPnL(pr.TotalUnrealizedPnL))
			output.Printf("  1-day VaR:       %s\n", FormatUSD(pr.VaR95))
			output.Println()

			output.Bold("Delta by Instrument")
			for _, kind := range []models.InstrumentKind{models.InstrumentSpot, models.InstrumentPerpetual, models.InstrumentOption} {
				output.Printf("  %-10s %s\n", kind, FormatDelta(summary.DeltaExposure[kind]))
			}
			output.Println()

			table := NewTable(output, "Symbol", "Qty", "Price", "Notional", "P&L", "Delta", "Source")
			for _, p := range pr.Positions {
				table.AddRow(
					p.Symbol,
					FormatQuantity(p.Quantity),
					FormatPrice(p.Price),
					FormatUSD(p.Notional),
					output.FormatPnL(p.UnrealizedPnL),
					FormatDelta(p.Delta),
					string(p.DeltaSource),
				)
			}
			table.Render()
			output.Println()

			c := summary.Concentration
			output.Bold("Concentration")
			output.Printf("  Largest:  %s (%s)\n", FormatPercent(c.LargestPositionPct), c.LargestSymbol)
			output.Printf("  Top 3:    %s\n", FormatPercent(c.Top3Pct))
			if c.LargestPositionPct > 50 {
				output.Warning("More than half of the notional sits in %s", c.LargestSymbol)
			}
			return nil
		},
	}
}

func newRiskPositionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "position <symbol>",
		Short:   "Show risk for a single position",
		Args:    cobra.ExactArgs(1),
		Example: `  hedger risk position BTC-25JUL25-95000-P`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			symbol := args[0]

			agg, err := app.Aggregator(cmd)
			if err != nil {
				return err
			}
			s, err := app.Store(cmd)
			if err != nil {
				return err
			}
			p, err := s.Position(ctx, symbol)
			if err != nil {
				return err
			}
			prices, err := s.Prices(ctx)
			if err != nil {
				return err
			}
			price := prices[symbol]
			if price <= 0 {
				return errors.NewDataError("price", symbol, "no usable quote in snapshot", errors.ErrSymbolNotFound)
			}

			pr := agg.PositionRisk(*p, price, prices)
			symLogger := logging.WithSymbol(logging.FromContext(ctx), symbol)
			symLogger.Debug().
				Float64("delta", pr.Delta).
				Str("source", string(pr.DeltaSource)).
				Msg("Position risk computed")

			if output.IsJSON() {
				return output.JSON(pr)
			}

			output.Bold("%s (%s, %s)", pr.Symbol, p.Kind, p.Venue)
			output.Printf("  Quantity:        %s\n", FormatQuantity(pr.Quantity))
			output.Printf("  Price:           %s\n", FormatPrice(pr.Price))
			output.Printf("  Notional:        %s\n", FormatUSD(pr.Notional))
			output.Printf("  Unrealized P&L:  %s\n", output.FormatPnL(pr.UnrealizedPnL))
			output.Printf("  Delta:           %s (%s)\n", FormatDelta(pr.Delta), pr.DeltaSource)
			return nil
		},
	}
}

func newRiskVaRCmd(app *App) *cobra.Command {
	var (
		notional   float64
		vol        float64
		confidence float64
		limit      float64
	)

	cmd := &cobra.Command{
		Use:   "var",
		Short: "Compute one-day parametric VaR",
		Long: `Compute one-day parametric VaR as notional x daily volatility x multiplier.
Without --notional the portfolio notional from the snapshot is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			agg, err := app.Aggregator(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("confidence") {
				if confidence <= 0.5 || confidence >= 1 {
					return errors.NewValidationError("confidence", confidence, "must be between 0.5 and 1")
				}
				agg.VaRMultiplier = risk.ConfidenceMultiplier(confidence)
			}
			if vol <= 0 {
				vol = agg.AnnualVolatility
			}

			if !cmd.Flags().Changed("notional") {
				underlying, _ := cmd.Flags().GetString("underlying")
				snap, err := app.snapshot(cmd.Context(), cmd, underlying)
				if err != nil {
					return err
				}
				notional = risk.TotalNotional(snap.Positions, snap.Prices)
			}

			v := agg.VaRForNotional(notional, vol)
			result := map[string]float64{
				"notional":          notional,
				"annual_volatility": vol,
				"daily_volatility":  risk.DailyVolatility(vol, agg.TradingDays),
				"multiplier":        agg.VaRMultiplier,
				"var":               v,
			}
			var breach error
			if limit > 0 && v > limit {
				breach = errors.NewRiskError("var_limit", v, limit, "one-day VaR exceeds limit")
			}
			if output.IsJSON() {
				if err := output.JSON(result); err != nil {
					return err
				}
				return breach
			}

			output.Printf("Notional:          %s\n", FormatUSD(notional))
			output.Printf("Annual volatility: %s\n", FormatVol(vol))
			output.Printf("Daily volatility:  %s\n", FormatVol(result["daily_volatility"]))
			output.Printf("1-day VaR:         %s\n", output.Red(FormatUSD(v)))
			return breach
		},
	}

	cmd.Flags().Float64Var(&notional, "notional", 0, "notional exposure (default: portfolio notional)")
	cmd.Flags().Float64Var(&vol, "vol", 0, "annualized volatility (default: from config)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "confidence level, e.g. 0.99 (default: configured multiplier)")
	cmd.Flags().Float64Var(&limit, "limit", 0, "fail when VaR exceeds this amount (0 disables)")
	return cmd
}

func newRiskStressCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress [scenario...]",
		Short: "Run stress scenarios against the portfolio",
		Long: fmt.Sprintf(`Apply deterministic market shocks to the portfolio.
With no arguments every scenario is run.

Scenarios: %v`, risk.ScenarioNames()),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			underlying, _ := cmd.Flags().GetString("underlying")

			names := args
			if len(names) == 0 {
				names = risk.ScenarioNames()
			}
			for _, name := range names {
				if _, ok := risk.Scenarios[name]; !ok {
					return fmt.Errorf("%w: %s", errors.ErrUnknownScenario, name)
				}
			}

			agg, err := app.Aggregator(cmd)
			if err != nil {
				return err
			}
			snap, err := app.snapshot(cmd.Context(), cmd, underlying)
			if err != nil {
				return err
			}

			results := make([]risk.StressResult, 0, len(names))
			for _, name := range names {
				res, err := agg.StressTest(snap.Positions, snap.Prices, name)
				if err != nil {
					return err
				}
				results = append(results, res)
			}

			if output.IsJSON() {
				return output.JSON(results)
			}

			table := NewTable(output, "Scenario", "Shock", "P&L Change", "Stressed VaR", "Delta After")
			for _, r := range results {
				table.AddRow(
					r.Scenario.Name,
					FormatPercent(r.Scenario.PriceShock*100),
					output.FormatPnL(r.PnLChange),
					FormatUSD(r.StressedVaR),
					FormatDelta(r.StressedDelta),
				)
			}
			table.Render()

			worst := results[0]
			for _, r := range results[1:] {
				if r.PnLChange < worst.PnLChange {
					worst = r
				}
			}
			if worst.PnLChange < 0 {
				output.Println()
				output.Warning("Worst case: %s loses %s", worst.Scenario.Name, FormatUSD(math.Abs(worst.PnLChange)))
			}
			return nil
		},
	}
	return cmd
}

func newRiskVolCmd(app *App) *cobra.Command {
	var (
		symbol    string
		timeframe string
		days      int
	)

	cmd := &cobra.Command{
		Use:   "vol",
		Short: "Realized volatility from stored candles",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			periods, ok := periodsPerYear[timeframe]
			if !ok {
				keys := make([]string, 0, len(periodsPerYear))
				for k := range periodsPerYear {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				return errors.NewValidationError("timeframe", timeframe, fmt.Sprintf("must be one of %v", keys))
			}

			s, err := app.Store(cmd)
			if err != nil {
				return err
			}
			to := app.now()
			from := to.AddDate(0, 0, -days)
			candles, err := s.GetCandles(ctx, symbol, timeframe, from, to)
			if err != nil {
				return err
			}
			if len(candles) < 3 {
				return fmt.Errorf("%w: need at least 3 %s candles for %s, have %d", errors.ErrDataNotFound, timeframe, symbol, len(candles))
			}

			realized := risk.CandleVolatility(candles, periods)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":     symbol,
					"timeframe":  timeframe,
					"candles":    len(candles),
					"realized":   realized,
					"configured": app.Config.Risk.AnnualVolatility,
				})
			}

			output.Printf("%s realized volatility (%d %s candles): %s\n", symbol, len(candles), timeframe, FormatVol(realized))
			output.Dim("Configured VaR volatility: %s", FormatVol(app.Config.Risk.AnnualVolatility))
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "BTC-USDT", "candle symbol")
	cmd.Flags().StringVar(&timeframe, "timeframe", "1d", "candle timeframe")
	cmd.Flags().IntVar(&days, "days", 30, "lookback in days")
	return cmd
}

// periodsPerYear maps candle timeframes to annualization factors for a
// market that trades around the clock.
var periodsPerYear = map[string]float64{
	"1h": 24 * 365,
	"4h": 6 * 365,
	"1d": 365,
	"1w": 52,
}
