package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Status marks whether a journaled spread is still on the book.
type Status string

const (
	StatusOpened Status = "Opened"
	StatusClosed Status = "Closed"
)

// Entry is one calendar spread as recorded in the trade journal.
type Entry struct {
	OpenedAt       time.Time
	Ticker         string
	Quantity       int
	ShortSymbol    string
	ShortExpiry    time.Time
	ShortStrike    float64
	ShortPrice     float64
	LongSymbol     string
	LongExpiry     time.Time
	LongStrike     float64
	LongPrice      float64
	Recommendation string
	Status         Status
	ClosedAt       time.Time // zero while open
	PnL            float64
	HasPnL         bool
}

// Store persists journal entries. Implemented by the CSV Log and the
// Postgres Repository.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Entries(ctx context.Context) ([]Entry, error)
	OpenEntries(ctx context.Context) ([]Entry, error)
	CloseOpen(ctx context.Context, closedAt time.Time, tickers []string, pnl map[string]float64) ([]Entry, error)
}

var header = []string{
	"opened_at", "ticker", "quantity",
	"short_symbol", "short_expiry", "short_strike", "short_price",
	"long_symbol", "long_expiry", "long_strike", "long_price",
	"recommendation", "status", "closed_at", "pnl",
}

// Log is an append-only CSV trade journal. Closing positions rewrites the
// file atomically so the journal stays the single source of truth for which
// spreads this process opened.
type Log struct {
	mu   sync.Mutex
	path string
}

// NewLog opens (or creates) the CSV journal at path.
func NewLog(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	l := &Log{path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := l.writeAll(nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat journal: %w", err)
	}

	return l, nil
}

// Append records a new entry at the end of the journal.
func (l *Log) Append(ctx context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(record(entry)); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush journal entry: %w", err)
	}

	return nil
}

// Entries returns every journaled entry in file order.
func (l *Log) Entries(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAll()
}

// OpenEntries returns entries still marked Opened.
func (l *Log) OpenEntries(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	open := make([]Entry, 0)
	for _, e := range entries {
		if e.Status == StatusOpened {
			open = append(open, e)
		}
	}
	return open, nil
}

// CloseOpen marks open entries for the given tickers as closed at closedAt
// and returns the entries it closed. Open entries for tickers not listed stay
// open so a failed unwind can be retried. pnl is keyed by ticker and may be
// nil or partial; tickers without a value keep an empty P&L column.
func (l *Log) CloseOpen(ctx context.Context, closedAt time.Time, tickers []string, pnl map[string]float64) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		wanted[t] = true
	}

	closed := make([]Entry, 0)
	for i := range entries {
		if entries[i].Status != StatusOpened || !wanted[entries[i].Ticker] {
			continue
		}
		entries[i].Status = StatusClosed
		entries[i].ClosedAt = closedAt
		if v, ok := pnl[entries[i].Ticker]; ok {
			entries[i].PnL = v
			entries[i].HasPnL = true
		}
		closed = append(closed, entries[i])
	}

	if len(closed) == 0 {
		return closed, nil
	}

	if err := l.writeAll(entries); err != nil {
		return nil, err
	}
	return closed, nil
}

func (l *Log) readAll() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	entries := make([]Entry, 0)
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		e, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("journal row %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// writeAll replaces the journal contents via a temp file and rename so a
// crash mid-close never leaves a truncated journal behind.
func (l *Log) writeAll(entries []Entry) error {
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".journal-*")
	if err != nil {
		return fmt.Errorf("failed to create temp journal: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write journal header: %w", err)
	}
	for _, e := range entries {
		if err := w.Write(record(e)); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write journal entry: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp journal: %w", err)
	}

	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to replace journal: %w", err)
	}
	return nil
}

func record(e Entry) []string {
	closedAt := ""
	if !e.ClosedAt.IsZero() {
		closedAt = e.ClosedAt.UTC().Format(time.RFC3339)
	}
	pnl := ""
	if e.HasPnL {
		pnl = strconv.FormatFloat(e.PnL, 'f', -1, 64)
	}
	return []string{
		e.OpenedAt.UTC().Format(time.RFC3339),
		e.Ticker,
		strconv.Itoa(e.Quantity),
		e.ShortSymbol,
		e.ShortExpiry.Format("2006-01-02"),
		strconv.FormatFloat(e.ShortStrike, 'f', -1, 64),
		strconv.FormatFloat(e.ShortPrice, 'f', -1, 64),
		e.LongSymbol,
		e.LongExpiry.Format("2006-01-02"),
		strconv.FormatFloat(e.LongStrike, 'f', -1, 64),
		strconv.FormatFloat(e.LongPrice, 'f', -1, 64),
		e.Recommendation,
		string(e.Status),
		closedAt,
		pnl,
	}
}

func parseRecord(row []string) (Entry, error) {
	if len(row) != len(header) {
		return Entry{}, fmt.Errorf("expected %d columns, got %d", len(header), len(row))
	}

	var e Entry
	var err error

	if e.OpenedAt, err = time.Parse(time.RFC3339, row[0]); err != nil {
		return Entry{}, fmt.Errorf("invalid opened_at: %w", err)
	}
	e.Ticker = row[1]
	if e.Quantity, err = strconv.Atoi(row[2]); err != nil {
		return Entry{}, fmt.Errorf("invalid quantity: %w", err)
	}
	e.ShortSymbol = row[3]
	if e.ShortExpiry, err = time.Parse("2006-01-02", row[4]); err != nil {
		return Entry{}, fmt.Errorf("invalid short_expiry: %w", err)
	}
	if e.ShortStrike, err = strconv.ParseFloat(row[5], 64); err != nil {
		return Entry{}, fmt.Errorf("invalid short_strike: %w", err)
	}
	if e.ShortPrice, err = strconv.ParseFloat(row[6], 64); err != nil {
		return Entry{}, fmt.Errorf("invalid short_price: %w", err)
	}
	e.LongSymbol = row[7]
	if e.LongExpiry, err = time.Parse("2006-01-02", row[8]); err != nil {
		return Entry{}, fmt.Errorf("invalid long_expiry: %w", err)
	}
	if e.LongStrike, err = strconv.ParseFloat(row[9], 64); err != nil {
		return Entry{}, fmt.Errorf("invalid long_strike: %w", err)
	}
	if e.LongPrice, err = strconv.ParseFloat(row[10], 64); err != nil {
		return Entry{}, fmt.Errorf("invalid long_price: %w", err)
	}
	e.Recommendation = row[11]
	e.Status = Status(row[12])
	if row[13] != "" {
		if e.ClosedAt, err = time.Parse(time.RFC3339, row[13]); err != nil {
			return Entry{}, fmt.Errorf("invalid closed_at: %w", err)
		}
	}
	if row[14] != "" {
		if e.PnL, err = strconv.ParseFloat(row[14], 64); err != nil {
			return Entry{}, fmt.Errorf("invalid pnl: %w", err)
		}
		e.HasPnL = true
	}

	return e, nil
}
