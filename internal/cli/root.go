// Package cli provides the command-line interface for the pricing and hedging engine.
package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"btc-hedger/internal/config"
	"btc-hedger/internal/costing"
	"btc-hedger/internal/errors"
	"btc-hedger/internal/hedge"
	"btc-hedger/internal/logging"
	"btc-hedger/internal/pricing"
	"btc-hedger/internal/risk"
	"btc-hedger/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-06-25"
)

// DefaultDBName is the snapshot database opened from the config directory
// when no path is configured.
const DefaultDBName = "portfolio.db"

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
	Pricing   *pricing.Engine
	Costing   *costing.Service
	// Now is the valuation time. Defaults to time.Now.
	Now func() time.Time

	store store.SnapshotStore
}

// NewApp wires the engines from configuration.
func NewApp(cfg *config.Config, configDir string, logger zerolog.Logger) *App {
	return &App{
		Config:    cfg,
		ConfigDir: configDir,
		Logger:    logger,
		Pricing:   pricing.NewEngine(cfg.Pricing.RiskFreeRate, logger),
		Costing:   costing.NewService(cfg.Costing, logger),
		Now:       time.Now,
	}
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hedger",
		Short: "BTC options pricing, portfolio risk and hedge recommendations",
		Long: `hedger prices European options with Black-Scholes, builds option strategies,
measures portfolio delta, VaR and stress losses from a local snapshot database,
and recommends perpetual and option hedges.

Use 'hedger <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
				app.Pricing = pricing.NewEngine(app.Config.Pricing.RiskFreeRate, app.Logger)
			}
			logger := logging.WithOperation(app.Logger, cmd.CommandPath())
			cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/btc-hedger)")
	rootCmd.PersistentFlags().String("db", "", "snapshot database path (default: from config)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addOptionsCommands(rootCmd, app)
	addStrategyCommands(rootCmd, app)
	addRiskCommands(rootCmd, app)
	addHedgeCommands(rootCmd, app)
	addCostCommands(rootCmd, app)

	return rootCmd
}

// Close releases the snapshot store if one was opened.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Store opens the snapshot database named by --db, the configuration or
// DefaultDBName in the config directory.
func (a *App) Store(cmd *cobra.Command) (store.SnapshotStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = a.Config.Store.DBPath
	}
	if path == "" && a.ConfigDir != "" {
		path = filepath.Join(a.ConfigDir, DefaultDBName)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: no snapshot database configured", errors.ErrConfigInvalid)
	}

	s, err := store.NewSQLiteStore(path, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", path).Msg("Snapshot store opened")
	a.store = s
	return s, nil
}

// Aggregator builds a risk aggregator, applying a --delta-mode override.
func (a *App) Aggregator(cmd *cobra.Command) (*risk.Aggregator, error) {
	cfg := a.Config.Risk
	if cmd.Flags().Lookup("delta-mode") != nil {
		if mode, _ := cmd.Flags().GetString("delta-mode"); mode != "" {
			switch mode {
			case config.DeltaModeAuto, config.DeltaModeSupplied, config.DeltaModeModel, config.DeltaModeMoneyness:
				cfg.DeltaMode = mode
			default:
				return nil, errors.NewValidationError("delta-mode", mode, "must be auto, supplied, model or moneyness")
			}
		}
	}
	agg := risk.NewAggregator(cfg, a.Pricing, a.Logger)
	agg.Now = a.now
	return agg, nil
}

// Recommender builds a hedge recommender from configuration.
func (a *App) Recommender() *hedge.Recommender {
	r := hedge.NewRecommender(a.Config.Hedge, a.Pricing, a.Logger)
	r.Now = a.now
	return r
}

// snapshot reads the portfolio and the live option chain for underlying.
func (a *App) snapshot(ctx context.Context, cmd *cobra.Command, underlying string) (*store.Snapshot, error) {
	s, err := a.Store(cmd)
	if err != nil {
		return nil, err
	}
	snap, err := s.Snapshot(ctx, store.ChainFilter{Underlying: underlying, ExpiresAfter: a.now()})
	if err != nil {
		return nil, err
	}

	output := NewOutput(cmd)
	if !output.IsJSON() {
		for _, table := range []store.Table{store.TablePositions, store.TablePrices} {
			f, err := s.Freshness(ctx, table)
			if err != nil {
				a.Logger.Warn().Err(err).Str("table", string(table)).Msg("Freshness check failed")
				continue
			}
			if !f.LastUpdated.IsZero() && !f.IsFresh {
				output.Warning("%s: %s", table, store.FormatFreshness(f))
			}
		}
	}
	return snap, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("hedger v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := config.ConfigPath(app.ConfigDir)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Pricing")
	output.Printf("  Risk-free rate:   %.4f\n", cfg.Pricing.RiskFreeRate)
	output.Println()

	output.Bold("Risk")
	output.Printf("  Annual vol:       %s\n", FormatVol(cfg.Risk.AnnualVolatility))
	output.Printf("  VaR multiplier:   %.3f\n", cfg.Risk.VaRMultiplier)
	output.Printf("  VaR confidence:   %.2f\n", cfg.Risk.VaRConfidence)
	output.Printf("  Trading days:     %d\n", cfg.Risk.TradingDays)
	output.Printf("  Moneyness band:   %.3f\n", cfg.Risk.MoneynessBand)
	output.Printf("  Delta mode:       %s\n", cfg.Risk.DeltaMode)
	output.Println()

	output.Bold("Hedge")
	output.Printf("  Delta tolerance:  %.4f\n", cfg.Hedge.DeltaTolerance)
	output.Printf("  Min quantity:     %.4f\n", cfg.Hedge.MinQuantity)
	output.Printf("  Max results:      %d\n", cfg.Hedge.MaxResults)
	if cfg.Hedge.MaxCost > 0 {
		output.Printf("  Max cost:         %s\n", FormatUSD(cfg.Hedge.MaxCost))
	} else {
		output.Printf("  Max cost:         none\n")
	}
	output.Println()

	output.Bold("Costing")
	output.Printf("  Default fee:      %.4f\n", cfg.Costing.DefaultFee)
	output.Printf("  Default slippage: %.4f\n", cfg.Costing.DefaultSlippage)
	output.Println()

	output.Bold("Storage & Logging")
	output.Printf("  Database:         %s\n", cfg.Store.DBPath)
	output.Printf("  Log level:        %s\n", cfg.Log.Level)
	output.Printf("  Log file:         %v\n", cfg.Log.File)

	return nil
}
