package quotestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tmaillard/dtc-feed/internal/dtc"
)

// Store persists the latest quote per symbol and an append-only log of
// trade prints. Unknown quote fields are stored as NULL, never as zero.
type Store struct {
	db *sql.DB
}

// StoredQuote is one row of the quotes table.
type StoredQuote struct {
	Symbol            string
	LastPrice         sql.NullFloat64
	LastVolume        sql.NullFloat64
	BidPrice          sql.NullFloat64
	AskPrice          sql.NullFloat64
	SessionHigh       sql.NullFloat64
	SessionLow        sql.NullFloat64
	UpdatedUnixMillis int64
}

// StoredTrade is one row of the trades table.
type StoredTrade struct {
	ID           int64
	Symbol       string
	Price        float64
	Volume       float64
	TsUnixMillis int64
}

// Open creates or opens the quote store at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS quotes (
			symbol TEXT PRIMARY KEY,
			last_price REAL NULL,
			last_volume REAL NULL,
			bid_price REAL NULL,
			ask_price REAL NULL,
			session_high REAL NULL,
			session_low REAL NULL,
			updated_unix_millis INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			price REAL NOT NULL,
			volume REAL NOT NULL,
			ts_unix_millis INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts
			ON trades(symbol, ts_unix_millis)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// UpsertQuote writes the latest quote for a symbol, replacing any previous
// row.
func (s *Store) UpsertQuote(ctx context.Context, symbol string, q dtc.Quote) error {
	updated := q.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quotes (symbol, last_price, last_volume, bid_price, ask_price, session_high, session_low, updated_unix_millis)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET
			last_price = excluded.last_price,
			last_volume = excluded.last_volume,
			bid_price = excluded.bid_price,
			ask_price = excluded.ask_price,
			session_high = excluded.session_high,
			session_low = excluded.session_low,
			updated_unix_millis = excluded.updated_unix_millis`,
		symbol,
		nullFloat(q.LastPrice),
		nullFloat(q.LastVolume),
		nullFloat(q.BidPrice),
		nullFloat(q.AskPrice),
		nullFloat(q.SessionHigh),
		nullFloat(q.SessionLow),
		updated.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert quote: %w", err)
	}
	return nil
}

// GetQuote returns the stored quote for a symbol, or sql.ErrNoRows.
func (s *Store) GetQuote(ctx context.Context, symbol string) (StoredQuote, error) {
	var q StoredQuote
	err := s.db.QueryRowContext(ctx,
		`SELECT symbol, last_price, last_volume, bid_price, ask_price, session_high, session_low, updated_unix_millis
		 FROM quotes WHERE symbol = ?`, symbol,
	).Scan(&q.Symbol, &q.LastPrice, &q.LastVolume, &q.BidPrice, &q.AskPrice, &q.SessionHigh, &q.SessionLow, &q.UpdatedUnixMillis)
	if err != nil {
		return StoredQuote{}, fmt.Errorf("failed to query quote: %w", err)
	}
	return q, nil
}

// AppendTrade records one trade print.
func (s *Store) AppendTrade(ctx context.Context, symbol string, price, volume float64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (symbol, price, volume, ts_unix_millis) VALUES (?, ?, ?, ?)`,
		symbol, price, volume, ts.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}
	return nil
}

// RecentTrades returns the newest trades for a symbol, newest first.
func (s *Store) RecentTrades(ctx context.Context, symbol string, limit int) ([]StoredTrade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, price, volume, ts_unix_millis
		 FROM trades WHERE symbol = ?
		 ORDER BY ts_unix_millis DESC, id DESC
		 LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []StoredTrade
	for rows.Next() {
		var tr StoredTrade
		if err := rows.Scan(&tr.ID, &tr.Symbol, &tr.Price, &tr.Volume, &tr.TsUnixMillis); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, tr)
	}

	return trades, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullFloat(v dtc.NullFloat) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v.Float64, Valid: v.Valid}
}
