package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/homedash-core/internal/infrastructure/config"
	"github.com/nerrad567/homedash-core/internal/infrastructure/database"
	"github.com/nerrad567/homedash-core/migrations"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
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
	return NewSQLiteRepository(db.DB)
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo := testRepo(t)
	ctx := t.Context()

	e := &Entry{
		Action:     ActionToggleLight,
		EntityType: EntityLight,
		EntityID:   "dapur",
		UserID:     "usr-1",
		Source:     SourceREST,
		Details:    map[string]any{"view": "lights"},
	}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("Create() left ID=%q CreatedAt=%v", e.ID, e.CreatedAt)
	}
	if e.Outcome != OutcomeOK {
		t.Errorf("Outcome = %q, want %q", e.Outcome, OutcomeOK)
	}

	got, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Total != 1 || len(got.Entries) != 1 {
		t.Fatalf("List() total=%d entries=%d, want 1/1", got.Total, len(got.Entries))
	}
	stored := got.Entries[0]
	if stored.ID != e.ID || stored.EntityID != "dapur" || stored.UserID != "usr-1" {
		t.Errorf("stored entry = %+v", stored)
	}
	if stored.Details["view"] != "lights" {
		t.Errorf("Details = %v, want view=lights", stored.Details)
	}
	if !stored.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", stored.CreatedAt, e.CreatedAt)
	}
}

func TestCreate_NullableColumns(t *testing.T) {
	repo := testRepo(t)

	if err := repo.Create(t.Context(), &Entry{
		Action:     ActionLogin,
		EntityType: EntitySession,
		Source:     SourceREST,
		Outcome:    "unauthorized",
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.List(t.Context(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	e := got.Entries[0]
	if e.EntityID != "" || e.UserID != "" || e.Details != nil {
		t.Errorf("empty fields round-tripped as %+v", e)
	}
	if e.Outcome != "unauthorized" {
		t.Errorf("Outcome = %q, want unauthorized", e.Outcome)
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	repo := testRepo(t)
	ctx := t.Context()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Action: ActionToggleLight, EntityType: EntityLight, EntityID: "dapur", UserID: "a"},
		{Action: ActionToggleLight, EntityType: EntityLight, EntityID: "tamu", UserID: "b"},
		{Action: ActionToggleFan, EntityType: EntityFan, EntityID: "kamar", UserID: "a"},
		{Action: ActionSetSpeed, EntityType: EntityFan, EntityID: "kamar", UserID: "b"},
		// Fractions of different length must still sort by time.
		{Action: ActionLogin, EntityType: EntitySession, UserID: "a"},
	}
	for i := range entries {
		entries[i].Source = SourceWebSocket
		entries[i].CreatedAt = base.Add(time.Duration(i) * 110 * time.Millisecond)
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string // entity IDs, newest first
		total  int
	}{
		{"all", Filter{}, []string{"", "kamar", "kamar", "tamu", "dapur"}, 5},
		{"by action", Filter{Action: ActionToggleLight}, []string{"tamu", "dapur"}, 2},
		{"by entity", Filter{EntityType: EntityFan, EntityID: "kamar"}, []string{"kamar", "kamar"}, 2},
		{"by user", Filter{UserID: "b"}, []string{"kamar", "tamu"}, 2},
		{"paged", Filter{Limit: 2, Offset: 1}, []string{"kamar", "kamar"}, 5},
		{"no match", Filter{Action: ActionLogout}, []string{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if got.Total != tt.total {
				t.Errorf("Total = %d, want %d", got.Total, tt.total)
			}
			if len(got.Entries) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got.Entries), len(tt.want))
			}
			for i, e := range got.Entries {
				if e.EntityID != tt.want[i] {
					t.Errorf("entry %d = %q, want %q", i, e.EntityID, tt.want[i])
				}
			}
		})
	}
}

func TestList_ClampsPaging(t *testing.T) {
	repo := testRepo(t)

	tests := []struct {
		in         Filter
		wantLimit  int
		wantOffset int
	}{
		{Filter{}, defaultLimit, 0},
		{Filter{Limit: 1000}, maxLimit, 0},
		{Filter{Limit: 10, Offset: -5}, 10, 0},
	}
	for _, tt := range tests {
		got, err := repo.List(t.Context(), tt.in)
		if err != nil {
			t.Fatalf("List(%+v) error = %v", tt.in, err)
		}
		if got.Limit != tt.wantLimit || got.Offset != tt.wantOffset {
			t.Errorf("List(%+v) limit=%d offset=%d, want %d/%d",
				tt.in, got.Limit, got.Offset, tt.wantLimit, tt.wantOffset)
		}
		if got.Entries == nil {
			t.Errorf("List(%+v) returned nil entries, want empty slice", tt.in)
		}
	}
}
