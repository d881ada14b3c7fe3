package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# btc-hedger configuration

[pricing]
# Annual risk-free rate used by Black-Scholes
risk_free_rate = 0.05

[risk]
# Annualized volatility assumption for parametric VaR
annual_volatility = 0.20
# One-sided z-score applied to daily volatility (1.645 = 95%)
var_multiplier = 1.645
# Used to derive the multiplier when var_multiplier = 0
var_confidence = 0.95
# Trading days per year for the daily volatility conversion
trading_days = 252
# Half-width of the at-the-money moneyness band
moneyness_band = 0.02
# Option delta source: auto, supplied, model, moneyness
delta_mode = "auto"

[hedge]
# Portfolio is treated as delta-neutral within this tolerance
delta_tolerance = 0.01
# Hedge sizes below this quantity are discarded
min_quantity = 0.001
# Maximum ranked candidates returned
max_results = 5
# Cost ceiling per candidate in quote currency (0 = none)
max_cost = 0.0

[costing]
default_fee = 0.001
default_slippage = 0.0001

[costing.fees.okx]
spot = 0.001
perpetual = 0.0005
option = 0.0003

[costing.fees.deribit]
spot = 0.0005
perpetual = 0.0002
option = 0.0001

[costing.slippage]
spot = 0.0001
perpetual = 0.0002
option = 0.001

[store]
# Portfolio snapshot database written by the portfolio service.
# Empty means portfolio.db next to this file.
db_path = ""

[log]
# debug, info, warn, error
level = "info"
console = true
file = false
file_path = ""
max_size = 100
max_backups = 7
max_age = 30
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
