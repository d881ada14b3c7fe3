package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Table names a snapshot table.
type Table string

const (
	TablePositions   Table = "positions"
	TablePrices      Table = "prices"
	TableOptionChain Table = "option_chain"
	TableCandles     Table = "candles"
)

// Tables lists the snapshot tables in display order.
var Tables = []Table{TablePositions, TablePrices, TableOptionChain, TableCandles}

// StaleThresholds is how old imported data can be before it is stale.
var StaleThresholds = map[Table]time.Duration{
	TablePositions:   time.Hour,
	TablePrices:      time.Minute,
	TableOptionChain: 5 * time.Minute,
	TableCandles:     24 * time.Hour,
}

// DataFreshness describes when a table was last imported.
type DataFreshness struct {
	Table       Table         `json:"table"`
	LastUpdated time.Time     `json:"last_updated"`
	IsFresh     bool          `json:"is_fresh"`
	Age         time.Duration `json:"age"`
}

// Freshness returns when table was last written.
func (s *SQLiteStore) Freshness(ctx context.Context, table Table) (*DataFreshness, error) {
	column := "updated_at"
	switch table {
	case TablePositions, TablePrices, TableOptionChain:
	case TableCandles:
		column = "created_at"
	default:
		return nil, fmt.Errorf("unknown table %q", table)
	}

	// MAX() drops the column type, so the driver hands back text.
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s", column, table)).Scan(&raw)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get %s freshness: %w", table, err)
	}

	f := &DataFreshness{Table: table}
	if !raw.Valid || raw.String == "" {
		return f, nil
	}
	last, err := parseTimestamp(raw.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s timestamp: %w", table, err)
	}

	threshold, ok := StaleThresholds[table]
	if !ok {
		threshold = time.Hour
	}
	f.LastUpdated = last
	f.Age = s.now().Sub(last)
	f.IsFresh = f.Age < threshold
	return f, nil
}

func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSuffix(v, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

// FormatFreshness returns a human-readable freshness string.
func FormatFreshness(freshness *DataFreshness) string {
	if freshness.LastUpdated.IsZero() {
		return "Never imported"
	}

	age := freshness.Age
	var ageStr string

	switch {
	case age < time.Minute:
		ageStr = "just now"
	case age < time.Hour:
		ageStr = fmt.Sprintf("%d minutes ago", int(age.Minutes()))
	case age < 24*time.Hour:
		ageStr = fmt.Sprintf("%d hours ago", int(age.Hours()))
	default:
		ageStr = fmt.Sprintf("%d days ago", int(age.Hours()/24))
	}

	if freshness.IsFresh {
		return fmt.Sprintf("Updated %s", ageStr)
	}
	return fmt.Sprintf("Stale data - Updated %s", ageStr)
}
