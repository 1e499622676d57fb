package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Identity is what the provider knows about a valid access token.
type Identity struct {
	Principal Principal
	// SessionID groups every token issued from one sign-in.
	SessionID string
	ExpiresAt time.Time
}

// Provider is the identity provider as seen by the gate.
type Provider interface {
	// Resolve validates an access token.
	Resolve(ctx context.Context, accessToken string) (Identity, error)
	// SubscribeSessions calls fn with the session ID of every session that
	// ends (sign-out, revocation). The returned func unsubscribes.
	SubscribeSessions(fn func(sessionID string)) (cancel func())
}

// Binding ties a gate to one resolved session.
type Binding struct {
	stopOnce sync.Once
	stop     func()
	identity Identity
}

// Identity returns the resolved identity.
func (b *Binding) Identity() Identity {
	return b.identity
}

// Stop detaches the gate from the session without changing its state.
func (b *Binding) Stop() {
	b.stopOnce.Do(b.stop)
}

// Bind resolves accessToken and drives gate from the result.
//
// On success the gate becomes Authenticated and then moves to
// Unauthenticated on its own when the session is revoked or the token
// expires, whichever comes first. On failure the gate becomes
// Unauthenticated and the error is returned.
//
// Parameters:
//   - ctx: Bounds the Resolve call only
//   - gate: Gate to drive
//   - p: Identity provider
//   - accessToken: Bearer token presented by the client
//
// Returns:
//   - *Binding: Stop it before binding the gate to a newer token
//   - error: Resolve failure
func Bind(ctx context.Context, gate *Gate, p Provider, accessToken string) (*Binding, error) {
	id, err := p.Resolve(ctx, accessToken)
	if err != nil {
		gate.Clear()
		return nil, err
	}

	// Subscribe before publishing so a revocation racing the sign-in is
	// not missed.
	var ended atomic.Bool
	unsubscribe := p.SubscribeSessions(func(sessionID string) {
		if sessionID == id.SessionID {
			ended.Store(true)
			gate.Clear()
		}
	})

	gate.Set(id.Principal)
	if ended.Load() {
		gate.Clear()
	}

	var timer *time.Timer
	if !id.ExpiresAt.IsZero() {
		timer = time.AfterFunc(time.Until(id.ExpiresAt), gate.Clear)
	}

	return &Binding{
		identity: id,
		stop: func() {
			unsubscribe()
			if timer != nil {
				timer.Stop()
			}
		},
	}, nil
}
