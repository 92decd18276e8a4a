package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists journal entries in Postgres. It implements Store with
// the same semantics as the CSV Log and is used when a database is configured.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new journal repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the trades table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			opened_at TIMESTAMPTZ NOT NULL,
			ticker TEXT NOT NULL,
			quantity INT NOT NULL,
			short_symbol TEXT NOT NULL,
			short_expiry DATE NOT NULL,
			short_strike DOUBLE PRECISION NOT NULL,
			short_price DOUBLE PRECISION NOT NULL,
			long_symbol TEXT NOT NULL,
			long_expiry DATE NOT NULL,
			long_strike DOUBLE PRECISION NOT NULL,
			long_price DOUBLE PRECISION NOT NULL,
			recommendation TEXT NOT NULL,
			status TEXT NOT NULL,
			closed_at TIMESTAMPTZ,
			pnl DOUBLE PRECISION
		)
	`

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create trades table: %w", err)
	}
	return nil
}

// Append inserts a new trade row.
func (r *Repository) Append(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO trades (
			opened_at, ticker, quantity,
			short_symbol, short_expiry, short_strike, short_price,
			long_symbol, long_expiry, long_strike, long_price,
			recommendation, status, closed_at, pnl
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.OpenedAt, entry.Ticker, entry.Quantity,
		entry.ShortSymbol, entry.ShortExpiry, entry.ShortStrike, entry.ShortPrice,
		entry.LongSymbol, entry.LongExpiry, entry.LongStrike, entry.LongPrice,
		entry.Recommendation, string(entry.Status), nullTime(entry.ClosedAt), nullFloat(entry.PnL, entry.HasPnL),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// Entries returns every journaled trade in insertion order.
func (r *Repository) Entries(ctx context.Context) ([]Entry, error) {
	return r.query(ctx, `
		SELECT opened_at, ticker, quantity,
			short_symbol, short_expiry, short_strike, short_price,
			long_symbol, long_expiry, long_strike, long_price,
			recommendation, status, closed_at, pnl
		FROM trades
		ORDER BY id ASC
	`)
}

// OpenEntries returns trades still marked Opened.
func (r *Repository) OpenEntries(ctx context.Context) ([]Entry, error) {
	return r.query(ctx, `
		SELECT opened_at, ticker, quantity,
			short_symbol, short_expiry, short_strike, short_price,
			long_symbol, long_expiry, long_strike, long_price,
			recommendation, status, closed_at, pnl
		FROM trades
		WHERE status = 'Opened'
		ORDER BY id ASC
	`)
}

// CloseOpen marks open trades for the given tickers as closed and returns
// the closed entries. Open trades for other tickers are left untouched so a
// failed unwind can be retried.
func (r *Repository) CloseOpen(ctx context.Context, closedAt time.Time, tickers []string, pnl map[string]float64) ([]Entry, error) {
	wanted := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		wanted[t] = true
	}

	all, err := r.OpenEntries(ctx)
	if err != nil {
		return nil, err
	}
	open := make([]Entry, 0, len(all))
	for _, e := range all {
		if wanted[e.Ticker] {
			open = append(open, e)
		}
	}
	if len(open) == 0 {
		return open, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE trades
		SET status = 'Closed', closed_at = $1, pnl = $2
		WHERE status = 'Opened' AND ticker = $3
	`

	for i := range open {
		open[i].Status = StatusClosed
		open[i].ClosedAt = closedAt
		var rowPnL *float64
		if v, ok := pnl[open[i].Ticker]; ok {
			open[i].PnL = v
			open[i].HasPnL = true
			rowPnL = &v
		}
		if _, err := tx.Exec(ctx, query, closedAt, rowPnL, open[i].Ticker); err != nil {
			return nil, fmt.Errorf("failed to close trade %s: %w", open[i].Ticker, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return open, nil
}

func (r *Repository) query(ctx context.Context, query string) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var closedAt *time.Time
		var rowPnL *float64
		var status string

		err := rows.Scan(
			&e.OpenedAt, &e.Ticker, &e.Quantity,
			&e.ShortSymbol, &e.ShortExpiry, &e.ShortStrike, &e.ShortPrice,
			&e.LongSymbol, &e.LongExpiry, &e.LongStrike, &e.LongPrice,
			&e.Recommendation, &status, &closedAt, &rowPnL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		e.Status = Status(status)
		if closedAt != nil {
			e.ClosedAt = *closedAt
		}
		if rowPnL != nil {
			e.PnL = *rowPnL
			e.HasPnL = true
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullFloat(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
