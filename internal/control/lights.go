package control

import (
	"context"

	"github.com/nerrad567/homedash-core/internal/device"
	"github.com/nerrad567/homedash-core/internal/store"
)

// Lights is the light control surface: one switch per configured room.
type Lights struct {
	*core

	rooms  []string
	byPath map[string]string
	// loop
	tiles map[string]*lightTile
}

type lightTile struct {
	state   device.Switch
	pending int
}

// NewLights builds the surface. Nothing is subscribed until Open.
func NewLights(deps Deps, env Env, render RenderFunc) *Lights {
	l := &Lights{
		core:   newCore(ViewLights, deps, env, render),
		rooms:  deps.Catalog.Rooms(),
		byPath: make(map[string]string),
		tiles:  make(map[string]*lightTile),
	}
	for _, r := range l.rooms {
		l.byPath[device.LightPath(r)] = r
		l.tiles[r] = &lightTile{}
	}
	l.apply = l.applyValue
	l.project = l.projectFrame
	return l
}

// Open subscribes to every light.
func (l *Lights) Open(ctx context.Context) error {
	paths := make([]string, 0, len(l.rooms))
	for _, r := range l.rooms {
		paths = append(paths, device.LightPath(r))
	}
	return l.open(ctx, paths)
}

// Toggle writes the negation of the room's mirrored state (unset writes
// true) and waits for the write to settle. The mirrored state changes
// only when the store echoes the write. While the room is still loading
// Toggle first waits for its value.
//
// Returns:
//   - error: device.ErrRoomNotFound, ErrClosed, the context's error, or
//     the write error (a notice has already been raised for it)
func (l *Lights) Toggle(ctx context.Context, room string) error {
	if err := l.deps.Catalog.Room(room); err != nil {
		return err
	}
	return l.intentOn(ctx, device.LightPath(room), func(done func(error)) {
		t := l.tiles[room]
		t.pending++
		l.write(device.LightPath(room), store.BoolValue(t.state.Toggled()), func(err error) {
			t.pending--
			done(err)
		})
		l.publish()
	})
}

func (l *Lights) applyValue(path string, v store.Value) {
	room, ok := l.byPath[path]
	if !ok {
		return
	}
	s := device.SwitchFrom(v)
	if v.Present() && s == device.SwitchUnset {
		l.logger.Debug("light value is not a boolean", "path", path, "value", v.String())
	}
	l.tiles[room].state = s
}

func (l *Lights) projectFrame(f *Frame) {
	f.Lights = make([]LightTile, 0, len(l.rooms))
	for _, r := range l.rooms {
		t := l.tiles[r]
		f.Lights = append(f.Lights, LightTile{Room: r, State: t.state, Pending: t.pending > 0})
	}
}
