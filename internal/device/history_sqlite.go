package device

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// historyWriteTimeout bounds one sink write.
	historyWriteTimeout = 2 * time.Second

	// historyTimeFormat has fixed-width fractions so created_at sorts as text.
	historyTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteHistory implements HistoryRepository on the state_history table.
//
// It is also a telemetry sink: the Write methods record each confirmed
// state change. Switch and speed writes that repeat the last recorded
// value of their series are skipped; readings are always recorded.
type SQLiteHistory struct {
	db *sql.DB

	mu      sync.Mutex
	last    map[string]float64
	onError func(error)
}

// NewSQLiteHistory creates a new SQLite state history.
//
// Parameters:
//   - db: Open SQLite connection with the state_history table migrated
//
// Returns:
//   - *SQLiteHistory: History ready for use
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{
		db:   db,
		last: make(map[string]float64),
	}
}

// SetOnError sets a callback for failed sink writes.
func (h *SQLiteHistory) SetOnError(callback func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = callback
}

// Record inserts a history entry.
func (h *SQLiteHistory) Record(ctx context.Context, series string, value float64) error {
	return h.recordAt(ctx, series, value, time.Now())
}

func (h *SQLiteHistory) recordAt(ctx context.Context, series string, value float64, at time.Time) error {
	if series == "" {
		return fmt.Errorf("series is required")
	}
	_, err := h.db.ExecContext(ctx,
		"INSERT INTO state_history (series, value, created_at) VALUES (?, ?, ?)",
		series,
		value,
		at.UTC().Format(historyTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// History returns recent entries of a series, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - series: Series name
//   - limit: Maximum entries to return (default 50, max 500)
//
// Returns:
//   - []HistoryEntry: Entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (h *SQLiteHistory) History(ctx context.Context, series string, limit int) ([]HistoryEntry, error) {
	if series == "" {
		return nil, fmt.Errorf("series is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, series, value, created_at
		 FROM state_history
		 WHERE series = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		series,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.Series, &entry.Value, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		entry.CreatedAt, err = time.Parse(historyTimeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than olderThan.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (h *SQLiteHistory) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeFormat)
	result, err := h.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// PruneLoop prunes entries older than retention every interval until ctx
// ends.
func (h *SQLiteHistory) PruneLoop(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.Prune(ctx, retention); err != nil && ctx.Err() == nil {
				h.report(err)
			}
		}
	}
}

// WriteSwitch records a light or fan switch.
func (h *SQLiteHistory) WriteSwitch(kind, id string, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	h.writeChanged(SwitchSeries(kind, id), v)
}

// WriteFanSpeed records a fan speed in percent.
func (h *SQLiteHistory) WriteFanSpeed(fan string, percent int) {
	h.writeChanged(FanSpeedSeries(fan), float64(percent))
}

// WriteReading records a sensor reading.
func (h *SQLiteHistory) WriteReading(sensor, quantity string, value float64) {
	h.write(ReadingSeries(sensor, quantity), value)
}

func (h *SQLiteHistory) writeChanged(series string, v float64) {
	h.mu.Lock()
	prev, seen := h.last[series]
	h.last[series] = v
	h.mu.Unlock()
	if seen && prev == v {
		return
	}
	h.write(series, v)
}

func (h *SQLiteHistory) write(series string, v float64) {
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	if err := h.Record(ctx, series, v); err != nil {
		h.report(err)
	}
}

func (h *SQLiteHistory) report(err error) {
	h.mu.Lock()
	cb := h.onError
	h.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}
