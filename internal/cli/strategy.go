package cli

import (
	"math"
	"strings"

	"github.com/spf13/cobra"

	"btc-hedger/internal/errors"
	"btc-hedger/internal/models"
	"btc-hedger/internal/pricing"
	"btc-hedger/internal/strategy"
)

const (
	chartWidth  = 60
	chartHeight = 12
)

func addStrategyCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Build option strategies and show their payoff at expiry",
		Long: `Build multi-leg option strategies. Leg premiums may be given explicitly or
priced with Black-Scholes from --vol and --days.`,
	}
	cmd.AddCommand(newStrategyListCmd())
	cmd.AddCommand(newStraddleCmd(app))
	cmd.AddCommand(newButterflyCmd(app))
	cmd.AddCommand(newIronCondorCmd(app))
	rootCmd.AddCommand(cmd)
}

// strategyFlags are shared by every strategy command.
type strategyFlags struct {
	underlying string
	expiry     string
	spot       float64
	vol        float64
	days       float64
	step       float64
}

func (f *strategyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.underlying, "underlying", "BTC", "underlying asset")
	cmd.Flags().StringVar(&f.expiry, "expiry", "", "expiry label for leg symbols, e.g. 25JUL25")
	cmd.Flags().Float64Var(&f.spot, "spot", 0, "current underlying price")
	cmd.Flags().Float64Var(&f.vol, "vol", 0, "volatility used to price legs without a premium")
	cmd.Flags().Float64Var(&f.days, "days", 0, "days to expiry used to price legs without a premium")
	cmd.Flags().Float64Var(&f.step, "step", 0, "payoff grid step (default 1000)")
	cmd.MarkFlagRequired("spot")
}

func (f *strategyFlags) builder(app *App) *strategy.Builder {
	b := strategy.NewBuilder(f.underlying, strings.ToUpper(f.expiry), app.Logger)
	b.SampleStep = f.step
	return b
}

// modelled reports whether legs can be priced and given Greeks from the model.
func (f *strategyFlags) modelled() bool {
	return f.vol > 0 && f.days > 0 && f.spot > 0
}

// premium returns given when set and the model price otherwise.
func (f *strategyFlags) premium(app *App, given, strike float64, kind models.OptionKind) float64 {
	if given > 0 || !f.modelled() {
		return given
	}
	return app.Pricing.Price(kind, f.spot, strike, f.days/pricing.DaysPerYear, app.Config.Pricing.RiskFreeRate, f.vol)
}

// attachGreeks fills model Greeks on legs that have none.
func (f *strategyFlags) attachGreeks(app *App, legs []models.OptionLeg) {
	if !f.modelled() {
		return
	}
	t := f.days / pricing.DaysPerYear
	for i := range legs {
		if legs[i].Greeks != nil {
			continue
		}
		g := app.Pricing.Greeks(legs[i].Kind, f.spot, legs[i].Strike, t, app.Config.Pricing.RiskFreeRate, f.vol)
		legs[i].Greeks = &g
	}
}

// strategyResult is the JSON shape of a built strategy.
type strategyResult struct {
	Strategy string                   `json:"strategy"`
	Legs     []models.OptionLeg       `json:"legs"`
	Payoff   payoffView               `json:"payoff"`
	Greeks   *models.OptionGreeks     `json:"greeks,omitempty"`
	Risk     *strategy.IronCondorRisk `json:"risk,omitempty"`
}

// payoffView replaces infinite bounds with nil so the payoff encodes as JSON.
type payoffView struct {
	MaxProfit      *float64             `json:"max_profit"`
	MaxLoss        *float64             `json:"max_loss"`
	Breakevens     []float64            `json:"breakevens"`
	CurrentPnL     float64              `json:"current_pnl"`
	MarginRequired float64              `json:"margin_required"`
	NetPremium     float64              `json:"net_premium"`
	Unlimited      bool                 `json:"unlimited_profit"`
	PayoffCurve    []models.PayoffPoint `json:"payoff_curve"`
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func newPayoffView(p models.StrategyPayoff) payoffView {
	return payoffView{
		MaxProfit:      finite(p.MaxProfit),
		MaxLoss:        finite(p.MaxLoss),
		Breakevens:     p.Breakevens,
		CurrentPnL:     p.CurrentPnL,
		MarginRequired: p.MarginRequired,
		NetPremium:     p.NetPremium,
		Unlimited:      math.IsInf(p.MaxProfit, 1),
		PayoffCurve:    p.PayoffCurve,
	}
}

func renderStrategy(output *Output, res strategyResult, p models.StrategyPayoff) error {
	if output.IsJSON() {
		return output.JSON(res)
	}

	output.Bold("%s", strategyTitle(res.Strategy))
	output.Dim("%s", strategy.Describe(res.Strategy))
	output.Println()

	table := NewTable(output, "Side", "Qty", "Symbol", "Strike", "Premium", "Delta")
	for _, l := range res.Legs {
		side := output.Green("BUY")
		if !l.IsLong() {
			side = output.Red("SELL")
		}
		delta := "-"
		if l.Greeks != nil {
			delta = FormatDelta(l.Greeks.Delta * l.Quantity)
		}
		table.AddRow(side, FormatQuantity(math.Abs(l.Quantity)), l.Symbol, FormatPrice(l.Strike), FormatPrice(l.Price), delta)
	}
	table.Render()
	output.Println()

	premiumLabel := "Net debit"
	premium := p.NetPremium
	if premium < 0 {
		premiumLabel = "Net credit"
		premium = -premium
	}
	output.Printf("  %-14s %s\n", premiumLabel+":", FormatUSD(premium))
	output.Printf("  %-14s %s\n", "Max profit:", FormatBound(p.MaxProfit))
	output.Printf("  %-14s %s\n", "Max loss:", FormatBound(p.MaxLoss))
	be := make([]string, len(p.Breakevens))
	for i, b := range p.Breakevens {
		be[i] = FormatPrice(b)
	}
	output.Printf("  %-14s %s\n", "Breakevens:", strings.Join(be, ", "))
	output.Printf("  %-14s %s\n", "Current P&L:", output.FormatPnL(p.CurrentPnL))
	output.Printf("  %-14s %s\n", "Margin:", FormatUSD(p.MarginRequired))
	if res.Risk != nil {
		output.Printf("  %-14s %s\n", "Put wing:", FormatUSD(res.Risk.PutSideMaxLoss))
		output.Printf("  %-14s %s\n", "Call wing:", FormatUSD(res.Risk.CallSideMaxLoss))
	}
	if res.Greeks != nil {
		output.Println()
		printGreeks(output, *res.Greeks)
	}

	if chart := PayoffChart(p.PayoffCurve, chartWidth, chartHeight); chart != nil {
		output.Println()
		output.Dim("Payoff at expiry %s - %s", FormatPrice(p.PayoffCurve[0].Price), FormatPrice(p.PayoffCurve[len(p.PayoffCurve)-1].Price))
		for _, line := range chart {
			output.Println("  " + line)
		}
	}
	return nil
}

// strategyTitle turns "iron_condor" into "Iron Condor".
func strategyTitle(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func buildResult(f *strategyFlags, app *App, name string, legs []models.OptionLeg, p models.StrategyPayoff) strategyResult {
	f.attachGreeks(app, legs)
	res := strategyResult{Strategy: name, Legs: legs, Payoff: newPayoffView(p)}
	if f.modelled() || hasGreeks(legs) {
		g := strategy.CalculateStrategyGreeks(legs)
		res.Greeks = &g
	}
	return res
}

func hasGreeks(legs []models.OptionLeg) bool {
	for _, l := range legs {
		if l.Greeks != nil {
			return true
		}
	}
	return false
}

func newStrategyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				out := make(map[string]string)
				for _, name := range strategy.Names() {
					out[name] = strategy.Describe(name)
				}
				return output.JSON(out)
			}
			for _, name := range strategy.Names() {
				output.Printf("  %-12s %s\n", name, strategy.Describe(name))
			}
			return nil
		},
	}
}

func newStraddleCmd(app *App) *cobra.Command {
	var (
		f                   strategyFlags
		strike              float64
		callPrice, putPrice float64
	)

	cmd := &cobra.Command{
		Use:     "straddle",
		Short:   "Long call and long put at one strike",
		Example: `  hedger strategy straddle --spot 100000 --strike 100000 --call-price 3000 --put-price 2800`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := strategy.StraddleParams{
				Strike:       strike,
				CallPrice:    f.premium(app, callPrice, strike, models.Call),
				PutPrice:     f.premium(app, putPrice, strike, models.Put),
				CurrentPrice: f.spot,
			}
			legs, payoff, err := f.builder(app).Straddle(p)
			if err != nil {
				return err
			}
			return renderStrategy(NewOutput(cmd), buildResult(&f, app, strategy.NameStraddle, legs, payoff), payoff)
		},
	}

	f.register(cmd)
	cmd.Flags().Float64Var(&strike, "strike", 0, "strike for both legs")
	cmd.Flags().Float64Var(&callPrice, "call-price", 0, "call premium")
	cmd.Flags().Float64Var(&putPrice, "put-price", 0, "put premium")
	cmd.MarkFlagRequired("strike")
	return cmd
}

func newButterflyCmd(app *App) *cobra.Command {
	var (
		f                    strategyFlags
		lower, middle, upper float64
		lowerPx, middlePx    float64
		upperPx              float64
		kind                 string
	)

	cmd := &cobra.Command{
		Use:     "butterfly",
		Short:   "Long lower, short two middle, long upper",
		Example: `  hedger strategy butterfly --spot 100000 --lower 95000 --middle 100000 --upper 105000 --vol 0.5 --days 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := models.ParseOptionKind(kind)
			if err != nil {
				return errors.NewValidationError("type", kind, err.Error())
			}
			p := strategy.ButterflyParams{
				Lower:        lower,
				Middle:       middle,
				Upper:        upper,
				LowerPrice:   f.premium(app, lowerPx, lower, k),
				MiddlePrice:  f.premium(app, middlePx, middle, k),
				UpperPrice:   f.premium(app, upperPx, upper, k),
				CurrentPrice: f.spot,
				Kind:         k,
			}
			legs, payoff, err := f.builder(app).Butterfly(p)
			if err != nil {
				return err
			}
			return renderStrategy(NewOutput(cmd), buildResult(&f, app, strategy.NameButterfly, legs, payoff), payoff)
		},
	}

	f.register(cmd)
	cmd.Flags().Float64Var(&lower, "lower", 0, "lower strike")
	cmd.Flags().Float64Var(&middle, "middle", 0, "middle strike")
	cmd.Flags().Float64Var(&upper, "upper", 0, "upper strike")
	cmd.Flags().Float64Var(&lowerPx, "lower-price", 0, "lower strike premium")
	cmd.Flags().Float64Var(&middlePx, "middle-price", 0, "middle strike premium")
	cmd.Flags().Float64Var(&upperPx, "upper-price", 0, "upper strike premium")
	cmd.Flags().StringVar(&kind, "type", "call", "option type for every leg (call/put)")
	return cmd
}

func newIronCondorCmd(app *App) *cobra.Command {
	var (
		f                        strategyFlags
		putLower, putUpper       float64
		callLower, callUpper     float64
		putLowerPx, putUpperPx   float64
		callLowerPx, callUpperPx float64
	)

	cmd := &cobra.Command{
		Use:   "iron-condor",
		Short: "Short put spread plus short call spread",
		Example: `  hedger strategy iron-condor --spot 100000 --put-lower 85000 --put-upper 90000 \
    --call-lower 110000 --call-upper 115000 --vol 0.5 --days 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := strategy.IronCondorParams{
				PutLower:       putLower,
				PutUpper:       putUpper,
				CallLower:      callLower,
				CallUpper:      callUpper,
				PutLowerPrice:  f.premium(app, putLowerPx, putLower, models.Put),
				PutUpperPrice:  f.premium(app, putUpperPx, putUpper, models.Put),
				CallLowerPrice: f.premium(app, callLowerPx, callLower, models.Call),
				CallUpperPrice: f.premium(app, callUpperPx, callUpper, models.Call),
				CurrentPrice:   f.spot,
			}
			legs, payoff, risk, err := f.builder(app).IronCondorWithRisk(p)
			if err != nil {
				return err
			}
			res := buildResult(&f, app, strategy.NameIronCondor, legs, payoff)
			res.Risk = &risk
			return renderStrategy(NewOutput(cmd), res, payoff)
		},
	}

	f.register(cmd)
	cmd.Flags().Float64Var(&putLower, "put-lower", 0, "long put strike")
	cmd.Flags().Float64Var(&putUpper, "put-upper", 0, "short put strike")
	cmd.Flags().Float64Var(&callLower, "call-lower", 0, "short call strike")
	cmd.Flags().Float64Var(&callUpper, "call-upper", 0, "long call strike")
	cmd.Flags().Float64Var(&putLowerPx, "put-lower-price", 0, "long put premium")
	cmd.Flags().Float64Var(&putUpperPx, "put-upper-price", 0, "short put premium")
	cmd.Flags().Float64Var(&callLowerPx, "call-lower-price", 0, "short call premium")
	cmd.Flags().Float64Var(&callUpperPx, "call-upper-price", 0, "long call premium")
	return cmd
}
