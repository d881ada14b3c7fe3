package cli

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"btc-hedger/internal/costing"
	"btc-hedger/internal/errors"
	"btc-hedger/internal/hedge"
	"btc-hedger/internal/logging"
	"btc-hedger/internal/models"
	"btc-hedger/internal/risk"
)

func addHedgeCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "hedge",
		Short: "Hedge recommendations",
		Long:  "Recommend, search and validate hedges for the portfolio delta.",
	}
	cmd.PersistentFlags().String("delta-mode", "", "delta source: auto, supplied, model or moneyness (default: from config)")
	cmd.PersistentFlags().String("underlying", "BTC", "underlying asset")
	cmd.PersistentFlags().Float64("delta", 0, "use this portfolio delta instead of the snapshot positions")
	cmd.PersistentFlags().Float64("spot", 0, "use this spot price instead of the snapshot price")
	cmd.PersistentFlags().String("venue", string(models.VenueOKX), "execution venue for cost estimates (OKX/Deribit)")

	cmd.AddCommand(newHedgeRecommendCmd(app))
	cmd.AddCommand(newHedgeSearchCmd(app))
	cmd.AddCommand(newHedgeValidateCmd(app))
	rootCmd.AddCommand(cmd)
}

// hedgeContext is the market state a hedge command works from.
type hedgeContext struct {
	Delta  float64
	Spot   float64
	Chain  []models.OptionContract
	Venue  models.Venue
	Source map[string]risk.DeltaSource
}

// loadHedgeContext reads the snapshot and applies --delta and --spot overrides.
func loadHedgeContext(cmd *cobra.Command, app *App) (*hedgeContext, error) {
	underlying, _ := cmd.Flags().GetString("underlying")
	venueName, _ := cmd.Flags().GetString("venue")
	venue, err := models.ParseVenue(venueName)
	if err != nil {
		return nil, errors.NewValidationError("venue", venueName, err.Error())
	}

	snap, err := app.snapshot(cmd.Context(), cmd, underlying)
	if err != nil {
		return nil, err
	}
	hc := &hedgeContext{Chain: snap.Chain, Venue: venue}

	if cmd.Flags().Changed("delta") {
		hc.Delta, _ = cmd.Flags().GetFloat64("delta")
	} else {
		agg, err := app.Aggregator(cmd)
		if err != nil {
			return nil, err
		}
		report := agg.TotalDelta(snap.Positions, snap.Prices)
		hc.Delta, hc.Source = report.Total, report.Sources
	}

	if cmd.Flags().Changed("spot") {
		hc.Spot, _ = cmd.Flags().GetFloat64("spot")
	} else {
		spot, ok := risk.UnderlyingPrice(underlying, snap.Prices)
		if !ok {
			return nil, fmt.Errorf("%w: no price for %s; pass --spot", errors.ErrSymbolNotFound, underlying)
		}
		hc.Spot = spot
	}
	if hc.Spot <= 0 {
		return nil, errors.NewValidationError("spot", hc.Spot, "must be positive")
	}
	return hc, nil
}

// costedHedge is a recommendation with its execution cost on the chosen venue.
type costedHedge struct {
	models.HedgeRecommendation
	Execution costing.Breakdown `json:"execution"`
}

type hedgeResult struct {
	CurrentDelta    float64       `json:"current_delta"`
	Spot            float64       `json:"spot"`
	Venue           models.Venue  `json:"venue"`
	Recommendations []costedHedge `json:"recommendations"`
}

func costHedges(cmd *cobra.Command, app *App, hc *hedgeContext, recs []models.HedgeRecommendation) []costedHedge {
	logger := logging.FromContext(cmd.Context())
	out := make([]costedHedge, 0, len(recs))
	for _, rec := range recs {
		exec := app.Costing.HedgeCost(rec, hc.Venue, hc.Spot)
		out = append(out, costedHedge{HedgeRecommendation: rec, Execution: exec})
		logging.LogHedge(logger, string(rec.Kind), rec.Symbol, rec.Quantity, rec.EstimatedCost, rec.Effectiveness)
	}
	return out
}

func renderHedges(output *Output, res hedgeResult) error {
	if output.IsJSON() {
		return output.JSON(res)
	}

	output.Printf("Portfolio delta: %s  Spot: %s  Venue: %s\n", FormatDelta(res.CurrentDelta), FormatPrice(res.Spot), res.Venue)
	output.Println()
	if len(res.Recommendations) == 0 {
		output.Success("No hedge needed")
		return nil
	}

	table := NewTable(output, "#", "Kind", "Symbol", "Qty", "Side", "Cost", "Exec Cost", "Result Delta", "Eff.")
	for i, rec := range res.Recommendations {
		table.AddRow(
			fmt.Sprintf("%d", i+1),
			output.HedgeKind(rec.Kind),
			rec.Symbol,
			FormatQuantity(math.Abs(rec.Quantity)),
			string(rec.Direction),
			FormatUSD(rec.EstimatedCost),
			FormatUSD(rec.Execution.Total.InexactFloat64()),
			FormatDelta(rec.ResultingDelta),
			FormatPercent(rec.Effectiveness*100),
		)
	}
	table.Render()
	output.Println()
	for i, rec := range res.Recommendations {
		output.Dim("%d. %s", i+1, rec.Rationale)
	}
	return nil
}

func newHedgeRecommendCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend",
		Short: "Recommend hedges that neutralize the portfolio delta",
		Long: `Recommend a delta-neutral perpetual hedge and, for long delta, a protective
put, a covered call and a collar from the stored option chain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, err := loadHedgeContext(cmd, app)
			if err != nil {
				return err
			}
			recs := app.Recommender().Recommend(hc.Delta, hc.Spot, hc.Chain)
			return renderHedges(NewOutput(cmd), hedgeResult{
				CurrentDelta:    hc.Delta,
				Spot:            hc.Spot,
				Venue:           hc.Venue,
				Recommendations: costHedges(cmd, app, hc, recs),
			})
		},
	}
}

func newHedgeSearchCmd(app *App) *cobra.Command {
	var (
		target  float64
		maxCost float64
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the option chain for hedges toward a target delta",
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, err := loadHedgeContext(cmd, app)
			if err != nil {
				return err
			}

			ceiling := app.Config.HedgeMaxCost()
			if cmd.Flags().Changed("max-cost") {
				if maxCost <= 0 {
					return errors.NewValidationError("max-cost", maxCost, "must be positive")
				}
				ceiling = &maxCost
			}

			recs := app.Recommender().Dynamic(hc.Delta, target, hc.Spot, hc.Chain, ceiling)
			return renderHedges(NewOutput(cmd), hedgeResult{
				CurrentDelta:    hc.Delta,
				Spot:            hc.Spot,
				Venue:           hc.Venue,
				Recommendations: costHedges(cmd, app, hc, recs),
			})
		},
	}

	cmd.Flags().Float64Var(&target, "target", 0, "target portfolio delta")
	cmd.Flags().Float64Var(&maxCost, "max-cost", 0, "maximum premium per hedge (default: from config)")
	return cmd
}

// validation is the JSON shape of hedge validate.
type validation struct {
	Valid   bool               `json:"valid"`
	Reason  string             `json:"reason,omitempty"`
	Kind    models.HedgeKind   `json:"kind"`
	Metrics hedge.HedgeMetrics `json:"metrics"`
}

func newHedgeValidateCmd(app *App) *cobra.Command {
	var (
		kind   string
		qty    float64
		symbol string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a proposed hedge and estimate its effect",
		Example: `  hedger hedge validate --kind perp_delta_neutral --qty 2
  hedger hedge validate --kind protective_put --qty 1 --symbol BTC-25JUL25-95000-P`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			k := models.HedgeKind(kind)
			if !k.Valid() {
				return fmt.Errorf("%w: %s", errors.ErrUnknownKind, kind)
			}

			hc, err := loadHedgeContext(cmd, app)
			if err != nil {
				return err
			}

			var contract *models.OptionContract
			if symbol != "" {
				c, ok := findContract(hc.Chain, symbol)
				if !ok {
					return fmt.Errorf("%w: %s not in option chain", errors.ErrSymbolNotFound, symbol)
				}
				if c.Greeks.Delta == 0 {
					c = app.Pricing.RefreshContract(c, hc.Spot, app.now())
				}
				contract = &c
			}

			rec := app.Recommender()
			res := validation{Valid: true, Kind: k, Metrics: rec.Metrics(hc.Delta, qty, k, contract, hc.Spot)}
			if err := rec.ValidateHedge(hc.Delta, qty, k, contract); err != nil {
				res.Valid = false
				res.Reason = err.Error()
			}

			if output.IsJSON() {
				return output.JSON(res)
			}

			if res.Valid {
				output.Success("%s x %s is valid", k.Title(), FormatQuantity(qty))
			}
			m := res.Metrics
			output.Printf("  Delta:          %s -> %s\n", FormatDelta(m.CurrentDelta), FormatDelta(m.ResultDelta))
			output.Printf("  Cost:           %s\n", FormatUSD(m.Cost))
			output.Printf("  Risk reduction: %s\n", FormatUSD(m.RiskReduction))
			output.Printf("  Effectiveness:  %s\n", FormatPercent(m.Effectiveness*100))
			if !res.Valid {
				return fmt.Errorf("%w: %s", errors.ErrInvalidHedge, res.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(models.HedgePerpDeltaNeutral), "hedge kind")
	cmd.Flags().Float64Var(&qty, "qty", 0, "hedge quantity (unsigned)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "option contract from the stored chain")
	cmd.MarkFlagRequired("qty")
	return cmd
}

func findContract(chain []models.OptionContract, symbol string) (models.OptionContract, bool) {
	for _, c := range chain {
		if c.Symbol == symbol {
			return c, true
		}
	}
	return models.OptionContract{}, false
}
