package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/nerrad567/homedash-core/internal/infrastructure/config"
)

const seedPasswordBytes = 16

// SeedOwner creates the house owner account when no account exists yet.
// When cfg carries no password one is generated and logged once; it must
// be changed straight away.
//
// Returns:
//   - string: The generated password, or "" when seeding was skipped or
//     the password came from configuration
//   - error: If counting or creating fails
func SeedOwner(ctx context.Context, users UserRepository, cfg config.SeedConfig, logger *slog.Logger) (string, error) {
	n, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if n > 0 {
		logger.Debug("accounts exist, skipping owner seed")
		return "", nil
	}

	password, generated := cfg.Password, ""
	if password == "" {
		b := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(b)
		generated = password
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	owner := &User{
		Email:        cfg.Email,
		DisplayName:  cfg.DisplayName,
		PasswordHash: hash,
		Role:         RoleOwner,
		IsActive:     true,
	}
	if err := users.Create(ctx, owner); err != nil {
		return "", fmt.Errorf("creating seed owner: %w", err)
	}

	if generated != "" {
		logger.Warn("seed owner account created",
			"email", owner.Email,
			"password", generated,
			"action_required", "change this password immediately",
		)
	} else {
		logger.Info("seed owner account created", "email", owner.Email)
	}
	return generated, nil
}
