package session

import (
	"context"
	"sync"
)

// State is the observable authentication state of one client.
type State int

const (
	// Unknown is the initial state, before the identity provider has
	// answered.
	Unknown State = iota
	// Authenticated means a principal is present.
	Authenticated
	// Unauthenticated means the provider answered with no principal.
	Unauthenticated
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Principal is the signed-in identity as the rest of the system sees it.
type Principal struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
}

// Name returns the display name, falling back to the email.
func (p Principal) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}

// Snapshot is an immutable view of the gate. Principal is the zero value
// unless State is Authenticated.
type Snapshot struct {
	State     State     `json:"state"`
	Principal Principal `json:"principal"`
}

// Gate holds the session state of one client and notifies watchers of
// every transition. Transitions happen only through Set, Clear and Settle,
// which the identity-provider binding drives.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Gate struct {
	mu       sync.Mutex
	snap     Snapshot
	watchers map[int]chan Snapshot
	nextID   int
	// settled is closed once the state first leaves Unknown.
	settled chan struct{}
}

// NewGate returns a gate in the Unknown state.
func NewGate() *Gate {
	return &Gate{
		watchers: make(map[int]chan Snapshot),
		settled:  make(chan struct{}),
	}
}

// Snapshot returns the current state.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap
}

// Set moves the gate to Authenticated with principal p.
func (g *Gate) Set(p Principal) {
	g.transition(Snapshot{State: Authenticated, Principal: p})
}

// Clear moves the gate to Unauthenticated.
func (g *Gate) Clear() {
	g.transition(Snapshot{State: Unauthenticated})
}

// Settle moves an Unknown gate to Unauthenticated and leaves any other
// state alone. Used when the provider never answers.
func (g *Gate) Settle() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snap.State == Unknown {
		g.apply(Snapshot{State: Unauthenticated})
	}
}

func (g *Gate) transition(next Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.apply(next)
}

// apply must be called with mu held.
func (g *Gate) apply(next Snapshot) {
	if g.snap == next {
		return
	}
	if g.snap.State == Unknown {
		close(g.settled)
	}
	g.snap = next
	for _, ch := range g.watchers {
		publish(ch, next)
	}
}

// publish replaces whatever ch holds with s. ch has capacity one and the
// gate is its only sender, so the send never blocks.
func publish(ch chan Snapshot, s Snapshot) {
	select {
	case <-ch:
	default:
	}
	ch <- s
}

// Watch returns a channel carrying the current snapshot followed by every
// later one. A slow reader only ever sees the latest snapshot. The cancel
// func closes the channel.
func (g *Gate) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.watchers[id] = ch
	ch <- g.snap
	g.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.watchers, id)
			close(ch)
			g.mu.Unlock()
		})
	}
}

// Await blocks until the gate leaves Unknown or ctx ends.
func (g *Gate) Await(ctx context.Context) (Snapshot, error) {
	select {
	case <-g.settled:
		return g.Snapshot(), nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}
