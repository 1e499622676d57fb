package store

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/nerrad567/homedash-core/internal/infrastructure/config"
)

// Rule grants write access to the paths matching Pattern.
type Rule struct {
	// Pattern is a path.Match pattern; "*" does not cross "/".
	Pattern string
	Roles   []string
	// Users are emails, compared case-insensitively.
	Users []string
	// ReadOnly denies every write, whoever the actor is.
	ReadOnly bool
}

// Guard decides which actor may write which path.
//
// Rules are evaluated in order and the first rule whose pattern matches
// decides. A path no rule matches is not writable.
type Guard struct {
	rules []Rule
}

// NewGuard compiles rules from configuration.
//
// Returns:
//   - *Guard: Ready to use
//   - error: A malformed pattern
func NewGuard(cfgs []config.StoreRuleConfig) (*Guard, error) {
	rules := make([]Rule, 0, len(cfgs))
	for i, c := range cfgs {
		if _, err := path.Match(c.Path, ""); err != nil {
			return nil, fmt.Errorf("store rule %d (%q): %w", i, c.Path, err)
		}
		users := make([]string, len(c.Users))
		for j, u := range c.Users {
			users[j] = strings.ToLower(strings.TrimSpace(u))
		}
		rules = append(rules, Rule{
			Pattern:  c.Path,
			Roles:    slices.Clone(c.Roles),
			Users:    users,
			ReadOnly: c.ReadOnly,
		})
	}
	return &Guard{rules: rules}, nil
}

// Allow returns nil if a may write p, or an error wrapping
// ErrPermissionDenied.
func (g *Guard) Allow(a Actor, p string) error {
	for _, r := range g.rules {
		if ok, _ := path.Match(r.Pattern, p); !ok { //nolint:errcheck // patterns validated in NewGuard
			continue
		}
		if r.ReadOnly {
			return fmt.Errorf("%w: %s is read-only", ErrPermissionDenied, p)
		}
		if slices.Contains(r.Roles, a.Role) || slices.Contains(r.Users, strings.ToLower(a.Email)) {
			return nil
		}
		return fmt.Errorf("%w: %s may not write %s", ErrPermissionDenied, a.Email, p)
	}
	return fmt.Errorf("%w: no rule allows writing %s", ErrPermissionDenied, p)
}

// Guarded is a Backend whose writes must pass a Guard. Watches are not
// restricted.
type Guarded struct {
	Backend
	guard *Guard
}

// Protect wraps b with g.
func Protect(b Backend, g *Guard) *Guarded {
	return &Guarded{Backend: b, guard: g}
}

// Set checks the actor carried by ctx before delegating. A context
// without an actor is denied.
func (s *Guarded) Set(ctx context.Context, p string, v Value) error {
	p, err := Clean(p)
	if err != nil {
		return err
	}
	a, ok := ActorFrom(ctx)
	if !ok {
		return fmt.Errorf("%w: anonymous write to %s", ErrPermissionDenied, p)
	}
	if err := s.guard.Allow(a, p); err != nil {
		return err
	}
	return s.Backend.Set(ctx, p, v)
}
