package control

import (
	"context"
	"fmt"
)

// Surface is what every control surface offers beyond its intents.
type Surface interface {
	Open(ctx context.Context) error
	Ready(ctx context.Context) error
	Snapshot(ctx context.Context) (Frame, error)
	Dismiss(id string) error
	Close()
	View() View
	Env() Env
}

var (
	_ Surface = (*Lights)(nil)
	_ Surface = (*Fans)(nil)
	_ Surface = (*Dashboard)(nil)
)

// New builds the surface for view without opening it.
func New(view View, deps Deps, env Env, render RenderFunc) (Surface, error) {
	switch view {
	case ViewLights:
		return NewLights(deps, env, render), nil
	case ViewFan:
		return NewFans(deps, env, render), nil
	case ViewDashboard:
		return NewDashboard(deps, env, render), nil
	default:
		return nil, fmt.Errorf("control: no surface for view %q", view)
	}
}
