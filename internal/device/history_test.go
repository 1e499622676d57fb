package device

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/homedash-core/internal/infrastructure/config"
	"github.com/nerrad567/homedash-core/internal/infrastructure/database"
	"github.com/nerrad567/homedash-core/migrations"
)

// setupHistory opens a temporary database with the embedded schema.
func setupHistory(t *testing.T) *SQLiteHistory {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.FS, "."); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return NewSQLiteHistory(db.DB)
}

func values(entries []HistoryEntry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}

func equalValues(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSeriesNames(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{SwitchSeries(SeriesLight, "dapur"), "light/dapur"},
		{SwitchSeries(SeriesFan, "kamar"), "fan/kamar"},
		{FanSpeedSeries("kamar"), "fan_speed/kamar"},
		{ReadingSeries("dht22", "humidity"), "dht22/humidity"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("series = %q, want %q", tt.got, tt.want)
		}
	}
}

// TestRecord verifies history writes and retrieval.
func TestRecord(t *testing.T) {
	h := setupHistory(t)
	ctx := context.Background()

	if err := h.Record(ctx, "light/dapur", 1); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := h.Record(ctx, "", 1); err == nil {
		t.Error("Record() with empty series should fail")
	}

	entries, err := h.History(ctx, "light/dapur", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Series != "light/dapur" || entry.Value != 1 || entry.ID == 0 {
		t.Errorf("entry = %+v", entry)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want non-zero")
	}
}

// TestHistory verifies ordering, series isolation and limits.
func TestHistory(t *testing.T) {
	h := setupHistory(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rows := []struct {
		series string
		value  float64
		at     time.Time
	}{
		{"dht22/temperature", 27.5, now.Add(-2 * time.Hour)},
		{"dht22/temperature", 28, now.Add(-1 * time.Hour)},
		{"dht22/temperature", 28.5, now},
		{"dht22/humidity", 70, now},
	}
	for _, r := range rows {
		if err := h.recordAt(ctx, r.series, r.value, r.at); err != nil {
			t.Fatalf("recordAt() error = %v", err)
		}
	}

	entries, err := h.History(ctx, "dht22/temperature", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if got := values(entries); !equalValues(got, []float64{28.5, 28}) {
		t.Errorf("values = %v, want [28.5 28]", got)
	}
	if !entries[0].CreatedAt.Equal(now) {
		t.Errorf("entry[0] CreatedAt = %s, want %s", entries[0].CreatedAt, now)
	}

	entries, err = h.History(ctx, "dht22/temperature", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("default limit returned %d entries, want 3", len(entries))
	}

	if _, err := h.History(ctx, "", 10); err == nil {
		t.Error("History() with empty series should fail")
	}
}

// TestPrune verifies old entries are removed.
func TestPrune(t *testing.T) {
	h := setupHistory(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := h.recordAt(ctx, "fan/kamar", 1, now.Add(-40*24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := h.recordAt(ctx, "fan/kamar", 0, now.Add(-12*time.Hour)); err != nil {
		t.Fatal(err)
	}

	if _, err := h.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) should fail")
	}

	deleted, err := h.Prune(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	entries, err := h.History(ctx, "fan/kamar", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if got := values(entries); !equalValues(got, []float64{0}) {
		t.Errorf("remaining values = %v, want [0]", got)
	}
}

// TestSinkWrites verifies the sink methods and repeat suppression.
func TestSinkWrites(t *testing.T) {
	h := setupHistory(t)
	ctx := context.Background()

	h.WriteSwitch(SeriesLight, "dapur", true)
	h.WriteSwitch(SeriesLight, "dapur", true) // repeat, skipped
	h.WriteSwitch(SeriesLight, "dapur", false)
	h.WriteFanSpeed("kamar", 50)
	h.WriteFanSpeed("kamar", 50) // repeat, skipped
	h.WriteReading("dht22", "humidity", 65)
	h.WriteReading("dht22", "humidity", 65) // readings always recorded

	tests := []struct {
		series string
		want   []float64
	}{
		{"light/dapur", []float64{0, 1}},
		{"fan_speed/kamar", []float64{50}},
		{"dht22/humidity", []float64{65, 65}},
	}
	for _, tt := range tests {
		entries, err := h.History(ctx, tt.series, 10)
		if err != nil {
			t.Fatalf("History(%s) error = %v", tt.series, err)
		}
		if got := values(entries); !equalValues(got, tt.want) {
			t.Errorf("History(%s) = %v, want %v", tt.series, got, tt.want)
		}
	}
}

// TestSinkReportsErrors verifies failed writes reach the error callback.
func TestSinkReportsErrors(t *testing.T) {
	h := setupHistory(t)
	var got error
	h.SetOnError(func(err error) { got = err })

	if err := h.db.Close(); err != nil {
		t.Fatal(err)
	}
	h.WriteReading("dht22", "temperature", 30)

	if got == nil {
		t.Fatal("onError was not called")
	}
}
