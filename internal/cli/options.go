package cli

import (
	"github.com/spf13/cobra"

	"btc-hedger/internal/errors"
	"btc-hedger/internal/models"
	"btc-hedger/internal/pricing"
	"btc-hedger/internal/risk"
	"btc-hedger/internal/store"
)

func addOptionsCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Black-Scholes pricing, Greeks and implied volatility",
	}
	cmd.AddCommand(newOptionsPriceCmd(app))
	cmd.AddCommand(newOptionsGreeksCmd(app))
	cmd.AddCommand(newOptionsIVCmd(app))
	cmd.AddCommand(newOptionsChainCmd(app))
	rootCmd.AddCommand(cmd)
}

// contractFlags are the inputs shared by the option pricing commands.
type contractFlags struct {
	spot   float64
	strike float64
	days   float64
	expiry string
	kind   string
	vol    float64
	rate   float64
}

func (f *contractFlags) register(cmd *cobra.Command, withVol bool) {
	cmd.Flags().Float64Var(&f.spot, "spot", 0, "underlying price")
	cmd.Flags().Float64Var(&f.strike, "strike", 0, "strike price")
	cmd.Flags().Float64Var(&f.days, "days", 0, "days to expiry")
	cmd.Flags().StringVar(&f.expiry, "expiry", "", "expiry label such as 25JUL25 (overrides --days)")
	cmd.Flags().StringVar(&f.kind, "type", "call", "option type (call/put)")
	cmd.Flags().Float64Var(&f.rate, "rate", -1, "risk-free rate (default: from config)")
	if withVol {
		cmd.Flags().Float64Var(&f.vol, "vol", 0.5, "annualized volatility")
	}
	cmd.MarkFlagRequired("spot")
	cmd.MarkFlagRequired("strike")
}

// resolve validates the flags and returns kind, time to expiry in years and rate.
func (f *contractFlags) resolve(app *App) (models.OptionKind, float64, float64, error) {
	kind, err := models.ParseOptionKind(f.kind)
	if err != nil {
		return "", 0, 0, errors.NewValidationError("type", f.kind, err.Error())
	}
	if f.spot <= 0 {
		return "", 0, 0, errors.NewValidationError("spot", f.spot, "must be positive")
	}
	if f.strike <= 0 {
		return "", 0, 0, errors.NewValidationError("strike", f.strike, "must be positive")
	}

	t := f.days / pricing.DaysPerYear
	if f.expiry != "" {
		expiry, err := models.ParseExpiryLabel(f.expiry)
		if err != nil {
			return "", 0, 0, errors.NewValidationError("expiry", f.expiry, err.Error())
		}
		t = models.OptionContract{Expiry: expiry}.TimeToExpiry(app.now())
	}
	if t < 0 {
		return "", 0, 0, errors.NewValidationError("days", f.days, "must not be negative")
	}

	rate := app.Config.Pricing.RiskFreeRate
	if f.rate >= 0 {
		rate = f.rate
	}
	return kind, t, rate, nil
}

func newOptionsPriceCmd(app *App) *cobra.Command {
	var (
		f        contractFlags
		bid, ask float64
	)

	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price an option and report its Greeks",
		Example: `  hedger options price --spot 100000 --strike 105000 --days 30 --vol 0.55
  hedger options price --spot 100000 --strike 95000 --expiry 25JUL25 --type put --bid 2100 --ask 2300`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			kind, t, rate, err := f.resolve(app)
			if err != nil {
				return err
			}
			if f.vol <= 0 {
				return errors.NewValidationError("vol", f.vol, "must be positive")
			}

			engine := pricing.NewEngine(rate, app.Logger)
			var bidPtr, askPtr *float64
			if cmd.Flags().Changed("bid") {
				bidPtr = &bid
			}
			if cmd.Flags().Changed("ask") {
				askPtr = &ask
			}
			quote := engine.Quote(f.spot, f.strike, t, f.vol, kind, bidPtr, askPtr)

			if output.IsJSON() {
				return output.JSON(quote)
			}

			output.Bold("%s %s  spot %s  T=%.4fy", kindTitle(kind), FormatPrice(f.strike), FormatPrice(f.spot), t)
			output.Println()
			output.Printf("  Theoretical:  %s\n", FormatUSD(quote.TheoreticalPrice))
			output.Printf("  Mid:          %s\n", FormatUSD(quote.MidPrice))
			output.Printf("  %s\n", FormatBidAsk(quote.Bid, quote.Ask))
			output.Printf("  Implied vol:  %s\n", FormatVol(quote.ImpliedVolatility))
			output.Println()
			printGreeks(output, quote.Greeks)
			return nil
		},
	}

	f.register(cmd, true)
	cmd.Flags().Float64Var(&bid, "bid", 0, "market bid (with --ask, solves implied vol from the mid)")
	cmd.Flags().Float64Var(&ask, "ask", 0, "market ask")
	return cmd
}

func newOptionsGreeksCmd(app *App) *cobra.Command {
	var f contractFlags

	cmd := &cobra.Command{
		Use:     "greeks",
		Short:   "Compute option Greeks",
		Example: `  hedger options greeks --spot 100000 --strike 100000 --days 30 --vol 0.5 --type put`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			kind, t, rate, err := f.resolve(app)
			if err != nil {
				return err
			}
			if f.vol <= 0 {
				return errors.NewValidationError("vol", f.vol, "must be positive")
			}

			g := app.Pricing.Greeks(kind, f.spot, f.strike, t, rate, f.vol)
			if output.IsJSON() {
				return output.JSON(g)
			}
			printGreeks(output, g)
			return nil
		},
	}

	f.register(cmd, true)
	return cmd
}

func newOptionsIVCmd(app *App) *cobra.Command {
	var (
		f     contractFlags
		price float64
	)

	cmd := &cobra.Command{
		Use:     "iv",
		Short:   "Solve implied volatility from a market price",
		Example: `  hedger options iv --price 4500 --spot 100000 --strike 100000 --days 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			kind, t, rate, err := f.resolve(app)
			if err != nil {
				return err
			}
			if price <= 0 {
				return errors.NewValidationError("price", price, "must be positive")
			}

			res := app.Pricing.ImpliedVolatility(price, f.spot, f.strike, t, rate, kind)
			if output.IsJSON() {
				return output.JSON(res)
			}

			output.Printf("Implied vol: %s (%d iterations)\n", FormatVol(res.Sigma), res.Iterations)
			if !res.Converged {
				output.Warning("Solver did not converge; result is the last iterate")
			}
			return nil
		},
	}

	f.register(cmd, false)
	cmd.Flags().Float64Var(&price, "price", 0, "observed option price")
	cmd.MarkFlagRequired("price")
	return cmd
}

func newOptionsChainCmd(app *App) *cobra.Command {
	var (
		underlying string
		kind       string
	)

	cmd := &cobra.Command{
		Use:   "chain",
		Short: "List the stored option chain with model Greeks",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			filter := store.ChainFilter{Underlying: underlying, ExpiresAfter: app.now()}
			if kind != "" {
				k, err := models.ParseOptionKind(kind)
				if err != nil {
					return errors.NewValidationError("type", kind, err.Error())
				}
				filter.Kind = k
			}

			s, err := app.Store(cmd)
			if err != nil {
				return err
			}
			chain, err := s.OptionChain(ctx, filter)
			if err != nil {
				return err
			}
			if prices, err := s.Prices(ctx); err == nil {
				if spot, ok := risk.UnderlyingPrice(underlying, prices); ok {
					chain = refreshChain(app, chain, spot)
				}
			}

			if output.IsJSON() {
				return output.JSON(chain)
			}
			if len(chain) == 0 {
				output.Info("No live contracts for %s", underlying)
				return nil
			}

			table := NewTable(output, "Symbol", "Expiry", "Strike", "Bid", "Ask", "Mid", "IV", "Delta")
			for _, c := range chain {
				table.AddRow(
					c.Symbol,
					FormatDate(c.Expiry),
					FormatPrice(c.Strike),
					FormatPrice(c.Bid),
					FormatPrice(c.Ask),
					FormatPrice(c.MidPrice()),
					FormatVol(c.ImpliedVolatility),
					FormatDelta(c.SignedDelta()),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&underlying, "underlying", "BTC", "underlying asset")
	cmd.Flags().StringVar(&kind, "type", "", "filter by option type (call/put)")
	return cmd
}

// refreshChain fills in Greeks for contracts quoted without them.
func refreshChain(app *App, chain []models.OptionContract, spot float64) []models.OptionContract {
	now := app.now()
	out := make([]models.OptionContract, len(chain))
	for i, c := range chain {
		if c.Greeks.Delta == 0 {
			c = app.Pricing.RefreshContract(c, spot, now)
		}
		out[i] = c
	}
	return out
}

func printGreeks(output *Output, g models.OptionGreeks) {
	output.Printf("  Delta:  %s\n", FormatDelta(g.Delta))
	output.Printf("  Gamma:  %.8f\n", g.Gamma)
	output.Printf("  Theta:  %s / day\n", FormatPrice(g.Theta))
	output.Printf("  Vega:   %s / vol pt\n", FormatPrice(g.Vega))
	output.Printf("  Rho:    %s / rate pt\n", FormatPrice(g.Rho))
}

func kindTitle(kind models.OptionKind) string {
	if kind == models.Put {
		return "Put"
	}
	return "Call"
}
