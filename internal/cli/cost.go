package cli

import (
	"github.com/spf13/cobra"

	"btc-hedger/internal/errors"
	"btc-hedger/internal/models"
	"btc-hedger/internal/store"
)

func addCostCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Execution cost estimates",
	}
	cmd.PersistentFlags().String("kind", string(models.InstrumentPerpetual), "instrument kind (spot/perpetual/option)")

	cmd.AddCommand(newCostEstimateCmd(app))
	cmd.AddCommand(newCostFillCmd(app))
	rootCmd.AddCommand(cmd)
}

func instrumentKindFlag(cmd *cobra.Command) (models.InstrumentKind, error) {
	s, _ := cmd.Flags().GetString("kind")
	kind, err := models.ParseInstrumentKind(s)
	if err != nil {
		return "", errors.NewValidationError("kind", s, err.Error())
	}
	return kind, nil
}

func newCostEstimateCmd(app *App) *cobra.Command {
	var (
		qty       float64
		price     float64
		venueName string
		symbol    string
	)

	cmd := &cobra.Command{
		Use:     "estimate",
		Short:   "Estimate fees and slippage for a trade",
		Long:    "Estimate fees and slippage at --price, or at the stored mark price of --symbol.",
		Example: `  hedger cost estimate --qty 2 --price 100000 --venue OKX --kind perpetual
  hedger cost estimate --qty 2 --symbol BTC-USDT-SWAP`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			kind, err := instrumentKindFlag(cmd)
			if err != nil {
				return err
			}
			if symbol != "" && !cmd.Flags().Changed("price") {
				st, err := app.Store(cmd)
				if err != nil {
					return err
				}
				tk, err := st.Ticker(cmd.Context(), symbol)
				if err != nil {
					return err
				}
				price = store.MarkPrice(*tk)
				if !cmd.Flags().Changed("venue") && tk.Venue != "" {
					venueName = string(tk.Venue)
				}
			}
			venue, err := models.ParseVenue(venueName)
			if err != nil {
				return errors.NewValidationError("venue", venueName, err.Error())
			}
			if price <= 0 {
				return errors.NewValidationError("price", price, "must be positive")
			}

			b := app.Costing.TotalCost(qty, price, venue, kind)
			if output.IsJSON() {
				return output.JSON(b)
			}

			output.Bold("%s %s x %s @ %s", venue, kind, FormatQuantity(qty), FormatPrice(price))
			output.Printf("  Notional:  $%s\n", b.Notional.StringFixed(2))
			output.Printf("  Fee:       $%s (%s)\n", b.Fee.StringFixed(2), app.Costing.FeeRate(venue, kind).String())
			output.Printf("  Slippage:  $%s (%s)\n", b.Slippage.StringFixed(2), app.Costing.SlippageRate(kind).String())
			output.Printf("  Total:     $%s (%s%%)\n", b.Total.StringFixed(2), b.TotalPct.StringFixed(4))
			return nil
		},
	}

	cmd.Flags().Float64Var(&qty, "qty", 0, "trade quantity (sign ignored)")
	cmd.Flags().Float64Var(&price, "price", 0, "execution price")
	cmd.Flags().StringVar(&venueName, "venue", string(models.VenueOKX), "venue (OKX/Deribit)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "price at the stored mark of this symbol instead of --price")
	cmd.MarkFlagRequired("qty")
	return cmd
}

func newCostFillCmd(app *App) *cobra.Command {
	var mid, qty float64

	cmd := &cobra.Command{
		Use:     "fill",
		Short:   "Estimate the fill price after slippage",
		Long:    "Buys (positive --qty) fill above mid and sells (negative --qty) below it.",
		Example: `  hedger cost fill --mid 2500 --qty -3 --kind option`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			kind, err := instrumentKindFlag(cmd)
			if err != nil {
				return err
			}
			if mid <= 0 {
				return errors.NewValidationError("mid", mid, "must be positive")
			}

			fill := app.Costing.EstimateFillPrice(mid, qty, kind)
			if output.IsJSON() {
				return output.JSON(map[string]float64{"mid": mid, "quantity": qty, "fill_price": fill})
			}
			output.Printf("Estimated fill: %s (mid %s)\n", FormatPrice(fill), FormatPrice(mid))
			return nil
		},
	}

	cmd.Flags().Float64Var(&mid, "mid", 0, "mid price")
	cmd.Flags().Float64Var(&qty, "qty", 0, "signed quantity")
	cmd.MarkFlagRequired("mid")
	cmd.MarkFlagRequired("qty")
	return cmd
}
