package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newToken(userID, raw string, ttl time.Duration) *RefreshToken {
	return &RefreshToken{
		UserID:    userID,
		TokenHash: HashToken(raw),
		ExpiresAt: time.Now().Add(ttl),
	}
}

func TestTokenRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "token@example.com", RoleUser)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	tok := newToken(user.ID, "raw-1", time.Hour)
	tok.DeviceInfo = "Firefox on Android"
	if err := repo.Create(ctx, tok); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tok.ID == "" || tok.FamilyID == "" {
		t.Fatal("Create() should generate ID and FamilyID")
	}

	got, err := repo.GetByTokenHash(ctx, HashToken("raw-1"))
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}
	if got.ID != tok.ID || got.UserID != user.ID || got.DeviceInfo != "Firefox on Android" || got.Revoked {
		t.Errorf("GetByTokenHash() = %+v", got)
	}

	if _, err := repo.GetByTokenHash(ctx, HashToken("unknown")); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("unknown hash error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenRepository_FamilyLifecycle(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "family@example.com", RoleUser)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	tok := newToken(user.ID, "raw-a", time.Hour)
	if err := repo.Create(ctx, tok); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if active, _ := repo.FamilyActive(ctx, tok.FamilyID); !active {
		t.Fatal("fresh family should be active")
	}

	if err := repo.RevokeFamily(ctx, tok.FamilyID); err != nil {
		t.Fatalf("RevokeFamily() error = %v", err)
	}
	if active, _ := repo.FamilyActive(ctx, tok.FamilyID); active {
		t.Error("revoked family should be inactive")
	}
}

func TestTokenRepository_ExpiredFamilyInactive(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "expired@example.com", RoleUser)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	tok := newToken(user.ID, "raw-old", -time.Hour)
	if err := repo.Create(ctx, tok); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if active, _ := repo.FamilyActive(ctx, tok.FamilyID); active {
		t.Error("expired family should be inactive")
	}

	n, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}
}

func TestTokenRepository_Rotate(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "rotate@example.com", RoleUser)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	old := newToken(user.ID, "raw-old", time.Hour)
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	next := newToken(user.ID, "raw-new", time.Hour)
	next.FamilyID = old.FamilyID
	if err := repo.RotateRefreshToken(ctx, old.ID, next); err != nil {
		t.Fatalf("RotateRefreshToken() error = %v", err)
	}

	got, _ := repo.GetByTokenHash(ctx, HashToken("raw-old"))
	if !got.Revoked {
		t.Error("old token should be revoked")
	}
	if active, _ := repo.FamilyActive(ctx, old.FamilyID); !active {
		t.Error("family should stay active through the new token")
	}

	// Rotating the same token again is refused.
	again := newToken(user.ID, "raw-newer", time.Hour)
	again.FamilyID = old.FamilyID
	if err := repo.RotateRefreshToken(ctx, old.ID, again); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("second rotation error = %v, want ErrTokenRevoked", err)
	}
}

func TestTokenRepository_ConcurrentRotationSingleWinner(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "race@example.com", RoleUser)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	old := newToken(user.ID, "raw-race", time.Hour)
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := newToken(user.ID, fmt.Sprintf("raw-race-%d", i), time.Hour)
			next.FamilyID = old.FamilyID
			results <- repo.RotateRefreshToken(ctx, old.ID, next)
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrTokenRevoked) {
			t.Errorf("unexpected rotation error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d rotations succeeded, want exactly 1", ok)
	}
}

func TestTokenRepository_RevokeAllForUser(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "all@example.com", RoleUser)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	a := newToken(user.ID, "raw-1", time.Hour)
	b := newToken(user.ID, "raw-2", time.Hour)
	for _, tok := range []*RefreshToken{a, b} {
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	families, err := repo.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("RevokeAllForUser() error = %v", err)
	}
	if len(families) != 2 {
		t.Errorf("families = %v, want 2", families)
	}
	for _, f := range families {
		if active, _ := repo.FamilyActive(ctx, f); active {
			t.Errorf("family %s still active", f)
		}
	}
}

func TestHashToken(t *testing.T) {
	if HashToken("a") == HashToken("b") {
		t.Error("different tokens should hash differently")
	}
	if HashToken("a") != HashToken("a") {
		t.Error("hash should be deterministic")
	}
	if len(HashToken("a")) != 64 {
		t.Error("hash should be 64 hex chars")
	}
}
