package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"btc-hedger/internal/errors"
	"btc-hedger/internal/logging"
	"btc-hedger/internal/models"
)

// SQLiteStore implements SnapshotStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens or creates the snapshot database at dbPath.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to open database: %v", err))
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
		now:    time.Now,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to initialize schema: %v", err))
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Portfolio positions, one row per instrument
	CREATE TABLE IF NOT EXISTS positions (
		symbol TEXT PRIMARY KEY,
		quantity REAL NOT NULL,
		avg_price REAL NOT NULL,
		kind TEXT NOT NULL,
		venue TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		strike REAL,
		expiry DATETIME,
		option_kind TEXT,
		implied_volatility REAL,
		greeks TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Latest top of book per instrument
	CREATE TABLE IF NOT EXISTS prices (
		symbol TEXT PRIMARY KEY,
		venue TEXT NOT NULL,
		bid REAL NOT NULL DEFAULT 0,
		ask REAL NOT NULL DEFAULT 0,
		last_price REAL NOT NULL DEFAULT 0,
		volume_24h REAL NOT NULL DEFAULT 0,
		timestamp DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Option chain snapshots
	CREATE TABLE IF NOT EXISTS option_chain (
		symbol TEXT PRIMARY KEY,
		underlying TEXT NOT NULL,
		venue TEXT NOT NULL,
		strike REAL NOT NULL,
		expiry DATETIME NOT NULL,
		kind TEXT NOT NULL,
		delta REAL NOT NULL DEFAULT 0,
		gamma REAL NOT NULL DEFAULT 0,
		theta REAL NOT NULL DEFAULT 0,
		vega REAL NOT NULL DEFAULT 0,
		rho REAL NOT NULL DEFAULT 0,
		implied_volatility REAL NOT NULL DEFAULT 0,
		last_price REAL NOT NULL DEFAULT 0,
		bid REAL NOT NULL DEFAULT 0,
		ask REAL NOT NULL DEFAULT 0,
		volume_24h REAL NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Candles for realized volatility
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);

	-- Create indexes for performance
	CREATE INDEX IF NOT EXISTS idx_chain_underlying ON option_chain(underlying);
	CREATE INDEX IF NOT EXISTS idx_chain_expiry ON option_chain(expiry);
	CREATE INDEX IF NOT EXISTS idx_candles_symbol_timeframe ON candles(symbol, timeframe);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Positions
// ============================================================================

// UpsertPositions replaces the stored rows for each position's symbol.
func (s *SQLiteStore) UpsertPositions(ctx context.Context, positions []models.Position) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO positions (symbol, quantity, avg_price, kind, venue, timestamp, strike, expiry, option_kind, implied_volatility, greeks, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	updated := s.now().UTC()
	for _, p := range positions {
		if !p.Kind.Valid() {
			return errors.NewValidationError("kind", p.Kind, "unknown instrument kind")
		}

		var (
			strike, iv sql.NullFloat64
			expiry     sql.NullTime
			optKind    sql.NullString
			greeks     sql.NullString
		)
		if o := p.Option; o != nil {
			strike = sql.NullFloat64{Float64: o.Strike, Valid: true}
			expiry = sql.NullTime{Time: o.Expiry.UTC(), Valid: !o.Expiry.IsZero()}
			optKind = sql.NullString{String: string(o.Kind), Valid: true}
			iv = sql.NullFloat64{Float64: o.ImpliedVolatility, Valid: o.ImpliedVolatility > 0}
			if o.Greeks != nil {
				b, err := json.Marshal(o.Greeks)
				if err != nil {
					return fmt.Errorf("failed to encode greeks for %s: %w", p.Symbol, err)
				}
				greeks = sql.NullString{String: string(b), Valid: true}
			}
		}

		ts := p.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}

		if _, err := stmt.ExecContext(ctx, p.Symbol, p.Quantity, p.AvgPrice, string(p.Kind), string(p.Venue), ts.UTC(),
			strike, expiry, optKind, iv, greeks, updated); err != nil {
			return fmt.Errorf("failed to insert position %s: %w", p.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const positionColumns = `symbol, quantity, avg_price, kind, venue, timestamp, strike, expiry, option_kind, implied_volatility, greeks`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (models.Position, error) {
	var (
		p          models.Position
		kind       string
		venue      string
		strike, iv sql.NullFloat64
		expiry     sql.NullTime
		optKind    sql.NullString
		greeks     sql.NullString
	)
	if err := row.Scan(&p.Symbol, &p.Quantity, &p.AvgPrice, &kind, &venue, &p.Timestamp,
		&strike, &expiry, &optKind, &iv, &greeks); err != nil {
		return p, err
	}
	p.Kind = models.InstrumentKind(kind)
	p.Venue = models.Venue(venue)

	if optKind.Valid {
		details := &models.OptionDetails{
			Strike:            strike.Float64,
			Kind:              models.OptionKind(optKind.String),
			ImpliedVolatility: iv.Float64,
		}
		if expiry.Valid {
			details.Expiry = expiry.Time
		}
		if greeks.Valid && greeks.String != "" {
			var g models.OptionGreeks
			if err := json.Unmarshal([]byte(greeks.String), &g); err != nil {
				return p, fmt.Errorf("failed to decode greeks for %s: %w", p.Symbol, err)
			}
			details.Greeks = &g
		}
		p.Option = details
	}
	return p, nil
}

// Positions returns every stored position ordered by symbol.
func (s *SQLiteStore) Positions(ctx context.Context) ([]models.Position, error) {
	start := time.Now()
	positions, err := s.queryPositions(ctx)
	logging.LogQuery(s.logger, "positions", len(positions), time.Since(start), err)
	return positions, err
}

func (s *SQLiteStore) queryPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

// Position returns the position held in symbol.
func (s *SQLiteStore) Position(ctx context.Context, symbol string) (*models.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE symbol = ?`, symbol)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewDataError("position", symbol, "not in snapshot", errors.ErrPositionNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get position %s", symbol)
	}
	return &p, nil
}

// ============================================================================
// Prices
// ============================================================================

// UpsertPrices stores the latest ticker for each symbol.
func (s *SQLiteStore) UpsertPrices(ctx context.Context, tickers []models.Ticker) error {
	if len(tickers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO prices (symbol, venue, bid, ask, last_price, volume_24h, timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	updated := s.now().UTC()
	for _, t := range tickers {
		ts := t.Timestamp
		if ts.IsZero() {
			ts = updated
		}
		if _, err := stmt.ExecContext(ctx, t.Symbol, string(t.Venue), t.Bid, t.Ask, t.LastPrice, t.Volume24h, ts.UTC(), updated); err != nil {
			return fmt.Errorf("failed to insert price %s: %w", t.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MarkPrice is the price used for valuation: the bid/ask mid when both
// sides are quoted, the last trade otherwise.
func MarkPrice(t models.Ticker) float64 {
	if t.Bid > 0 && t.Ask > 0 {
		return t.MidPrice()
	}
	return t.LastPrice
}

const tickerColumns = `symbol, venue, bid, ask, last_price, volume_24h, timestamp`

func scanTicker(row rowScanner) (models.Ticker, error) {
	var (
		t     models.Ticker
		venue string
	)
	err := row.Scan(&t.Symbol, &venue, &t.Bid, &t.Ask, &t.LastPrice, &t.Volume24h, &t.Timestamp)
	t.Venue = models.Venue(venue)
	return t, err
}

// Prices returns the mark price of every symbol with a usable quote.
func (s *SQLiteStore) Prices(ctx context.Context) (map[string]float64, error) {
	start := time.Now()
	prices, err := s.queryPrices(ctx)
	logging.LogQuery(s.logger, "prices", len(prices), time.Since(start), err)
	return prices, err
}

func (s *SQLiteStore) queryPrices(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tickerColumns+` FROM prices`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[string]float64)
	for rows.Next() {
		t, err := scanTicker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if px := MarkPrice(t); px > 0 {
			prices[t.Symbol] = px
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}
	return prices, nil
}

// Ticker returns the stored quote for symbol.
func (s *SQLiteStore) Ticker(ctx context.Context, symbol string) (*models.Ticker, error) {
	t, err := scanTicker(s.db.QueryRowContext(ctx, `SELECT `+tickerColumns+` FROM prices WHERE symbol = ?`, symbol))
	if err == sql.ErrNoRows {
		return nil, errors.NewDataError("ticker", symbol, "no quote in snapshot", errors.ErrSymbolNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get ticker %s", symbol)
	}
	return &t, nil
}

// ============================================================================
// Option chain
// ============================================================================

// UpsertContracts stores option contracts keyed by symbol.
func (s *SQLiteStore) UpsertContracts(ctx context.Context, contracts []models.OptionContract) error {
	if len(contracts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO option_chain (symbol, underlying, venue, strike, expiry, kind, delta, gamma, theta, vega, rho, implied_volatility, last_price, bid, ask, volume_24h, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	updated := s.now().UTC()
	for _, c := range contracts {
		if !c.Kind.Valid() {
			return errors.NewValidationError("kind", c.Kind, "option kind must be call or put")
		}
		if c.Strike <= 0 {
			return errors.NewValidationError("strike", c.Strike, "strike must be positive")
		}
		g := c.Greeks
		if _, err := stmt.ExecContext(ctx, c.Symbol, c.Underlying, string(c.Venue), c.Strike, c.Expiry.UTC(), string(c.Kind),
			g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho, c.ImpliedVolatility, c.LastPrice, c.Bid, c.Ask, c.Volume24h, updated); err != nil {
			return fmt.Errorf("failed to insert contract %s: %w", c.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// OptionChain returns contracts matching filter ordered by expiry, kind and strike.
func (s *SQLiteStore) OptionChain(ctx context.Context, filter ChainFilter) ([]models.OptionContract, error) {
	start := time.Now()
	chain, err := s.queryChain(ctx, filter)
	logging.LogQuery(s.logger, "option_chain", len(chain), time.Since(start), err)
	return chain, err
}

func (s *SQLiteStore) queryChain(ctx context.Context, filter ChainFilter) ([]models.OptionContract, error) {
	query := `SELECT symbol, underlying, venue, strike, expiry, kind, delta, gamma, theta, vega, rho, implied_volatility, last_price, bid, ask, volume_24h FROM option_chain WHERE 1=1`
	args := []interface{}{}

	if filter.Underlying != "" {
		query += " AND underlying = ?"
		args = append(args, filter.Underlying)
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if !filter.ExpiresAfter.IsZero() {
		query += " AND expiry > ?"
		args = append(args, filter.ExpiresAfter.UTC())
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query option chain: %w", err)
	}
	defer rows.Close()

	var chain []models.OptionContract
	for rows.Next() {
		var (
			c           models.OptionContract
			venue, kind string
		)
		if err := rows.Scan(&c.Symbol, &c.Underlying, &venue, &c.Strike, &c.Expiry, &kind,
			&c.Greeks.Delta, &c.Greeks.Gamma, &c.Greeks.Theta, &c.Greeks.Vega, &c.Greeks.Rho,
			&c.ImpliedVolatility, &c.LastPrice, &c.Bid, &c.Ask, &c.Volume24h); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		c.Venue = models.Venue(venue)
		c.Kind = models.OptionKind(kind)
		chain = append(chain, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating option chain: %w", err)
	}

	sort.SliceStable(chain, func(i, j int) bool {
		a, b := chain[i], chain[j]
		if !a.Expiry.Equal(b.Expiry) {
			return a.Expiry.Before(b.Expiry)
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Strike < b.Strike
	})
	return chain, nil
}

// ============================================================================
// Candles
// ============================================================================

// SaveCandles saves candles to the database.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	created := s.now().UTC()
	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, symbol, timeframe, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume, created)
		if err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetCandles retrieves candles from the database.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, symbol, timeframe, from.UTC(), to.UTC())
	if err != nil {
		logging.LogQuery(s.logger, "candles", 0, time.Since(start), err)
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	logging.LogQuery(s.logger, "candles", len(candles), time.Since(start), nil)
	return candles, nil
}

// ============================================================================
// Snapshot
// ============================================================================

// Snapshot reads positions, prices and the option chain matching filter.
func (s *SQLiteStore) Snapshot(ctx context.Context, filter ChainFilter) (*Snapshot, error) {
	positions, err := s.Positions(ctx)
	if err != nil {
		return nil, err
	}
	prices, err := s.Prices(ctx)
	if err != nil {
		return nil, err
	}
	chain, err := s.OptionChain(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Positions: positions,
		Prices:    prices,
		Chain:     chain,
		ReadAt:    s.now(),
	}, nil
}
