package session

import (
	"errors"
	"fmt"
)

// View names a client screen.
type View string

const (
	ViewLogin     View = "login"
	ViewDashboard View = "dashboard"
	ViewLights    View = "lights"
	ViewFan       View = "fan"
	// ViewLoading is never requested; Route returns it while the session
	// is Unknown.
	ViewLoading View = "loading"
)

// ErrUnknownView is returned by ParseView for names outside the view set.
var ErrUnknownView = errors.New("unknown view")

// ParseView validates a requested view name.
func ParseView(name string) (View, error) {
	switch v := View(name); v {
	case ViewLogin, ViewDashboard, ViewLights, ViewFan:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
}

// Gated reports whether v requires an authenticated session.
func (v View) Gated() bool {
	switch v {
	case ViewDashboard, ViewLights, ViewFan:
		return true
	default:
		return false
	}
}

// Route decides which view to show for a request given the session.
//
// Gated views render only when Authenticated. Unauthenticated goes to
// login. Unknown renders loading so a client that is still signing in
// never flashes the login screen. Login is always reachable.
func Route(requested View, s Snapshot) View {
	if !requested.Gated() {
		return requested
	}
	switch s.State {
	case Authenticated:
		return requested
	case Unauthenticated:
		return ViewLogin
	default:
		return ViewLoading
	}
}
