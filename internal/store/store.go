// Package store provides the portfolio snapshot store the engine reads from.
package store

import (
	"context"
	"time"

	"btc-hedger/internal/models"
)

// SnapshotReader is the read side the risk and hedge engines consume.
type SnapshotReader interface {
	Positions(ctx context.Context) ([]models.Position, error)
	Position(ctx context.Context, symbol string) (*models.Position, error)
	Prices(ctx context.Context) (map[string]float64, error)
	Ticker(ctx context.Context, symbol string) (*models.Ticker, error)
	OptionChain(ctx context.Context, filter ChainFilter) ([]models.OptionContract, error)
	GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error)
	Snapshot(ctx context.Context, filter ChainFilter) (*Snapshot, error)
}

// SnapshotWriter imports data collected elsewhere. The engine never writes.
type SnapshotWriter interface {
	UpsertPositions(ctx context.Context, positions []models.Position) error
	UpsertPrices(ctx context.Context, tickers []models.Ticker) error
	UpsertContracts(ctx context.Context, contracts []models.OptionContract) error
	SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error
}

// SnapshotStore combines both sides with lifecycle.
type SnapshotStore interface {
	SnapshotReader
	SnapshotWriter
	Freshness(ctx context.Context, table Table) (*DataFreshness, error)
	Close() error
}

// ChainFilter narrows an option chain query. Zero values match everything.
type ChainFilter struct {
	Underlying string
	Kind       models.OptionKind
	// ExpiresAfter drops contracts expiring at or before this time.
	ExpiresAfter time.Time
}

// Snapshot is a consistent read of positions, prices and the option chain.
type Snapshot struct {
	Positions []models.Position       `json:"positions"`
	Prices    map[string]float64      `json:"prices"`
	Chain     []models.OptionContract `json:"chain"`
	ReadAt    time.Time               `json:"read_at"`
}
