package control

import (
	"context"

	"github.com/nerrad567/homedash-core/internal/device"
	"github.com/nerrad567/homedash-core/internal/store"
)

// Fans is the fan control surface: power and speed per configured fan.
type Fans struct {
	*core

	fans   []string
	byPath map[string]fanPath
	// loop
	tiles map[string]*fanTile
}

type fanPath struct {
	fan   string
	speed bool
}

type fanTile struct {
	power   device.Switch
	speed   *int
	pending int

	// The draft is local display state only. draftSeq identifies the
	// latest SetSpeed so an older write cannot settle a newer draft.
	// speedSeen counts applied speed values.
	draft        *int
	draftSeq     uint64
	draftWritten bool
	speedSeen    uint64
}

// NewFans builds the surface. Nothing is subscribed until Open.
func NewFans(deps Deps, env Env, render RenderFunc) *Fans {
	s := &Fans{
		core:   newCore(ViewFan, deps, env, render),
		fans:   deps.Catalog.Fans(),
		byPath: make(map[string]fanPath),
		tiles:  make(map[string]*fanTile),
	}
	for _, id := range s.fans {
		s.byPath[device.FanPowerPath(id)] = fanPath{fan: id}
		s.byPath[device.FanSpeedPath(id)] = fanPath{fan: id, speed: true}
		s.tiles[id] = &fanTile{}
	}
	s.apply = s.applyValue
	s.project = s.projectFrame
	return s
}

// Open subscribes to the power and speed of every fan.
func (s *Fans) Open(ctx context.Context) error {
	paths := make([]string, 0, 2*len(s.fans))
	for _, id := range s.fans {
		paths = append(paths, device.FanPowerPath(id), device.FanSpeedPath(id))
	}
	return s.open(ctx, paths)
}

// Toggle flips the fan's power like Lights.Toggle. Speed is untouched.
func (s *Fans) Toggle(ctx context.Context, fan string) error {
	if err := s.deps.Catalog.Fan(fan); err != nil {
		return err
	}
	return s.intentOn(ctx, device.FanPowerPath(fan), func(done func(error)) {
		t := s.tiles[fan]
		t.pending++
		s.write(device.FanPowerPath(fan), store.BoolValue(t.power.Toggled()), func(err error) {
			t.pending--
			done(err)
		})
		s.publish()
	})
}

// SetSpeed shows percent as a draft and writes it on the hardware scale.
//
// The draft is dropped when the write fails or a value matching it
// arrives. A successful write also drops it once any value has arrived
// since the write began; another writer's value can overtake the echo.
//
// Returns:
//   - error: device.ErrFanNotFound, device.ErrInvalidSpeed, ErrClosed,
//     or the write error (a notice has already been raised for it)
func (s *Fans) SetSpeed(ctx context.Context, fan string, percent int) error {
	if err := s.deps.Catalog.Fan(fan); err != nil {
		return err
	}
	if err := device.ValidateSpeed(percent); err != nil {
		return err
	}
	return s.intent(ctx, func(done func(error)) {
		t := s.tiles[fan]
		t.draft = &percent
		t.draftSeq++
		t.draftWritten = false
		seq := t.draftSeq
		seen := t.speedSeen
		t.pending++

		s.write(device.FanSpeedPath(fan), store.IntValue(device.SpeedToRaw(percent)), func(err error) {
			t.pending--
			if seq == t.draftSeq && t.draft != nil {
				switch {
				case err != nil:
					t.draft = nil
				case t.speed != nil && *t.speed == *t.draft:
					t.draft = nil
				case t.speedSeen != seen:
					t.draft = nil
				default:
					t.draftWritten = true
				}
			}
			done(err)
		})
		s.publish()
	})
}

func (s *Fans) applyValue(path string, v store.Value) {
	fp, ok := s.byPath[path]
	if !ok {
		return
	}
	t := s.tiles[fp.fan]

	if !fp.speed {
		t.power = device.SwitchFrom(v)
		if v.Present() && t.power == device.SwitchUnset {
			s.logger.Debug("fan power is not a boolean", "path", path, "value", v.String())
		}
		return
	}

	t.speedSeen++
	t.speed = nil
	if raw, ok := v.Int(); ok {
		display := device.SpeedToDisplay(raw)
		t.speed = &display
	} else if v.Present() {
		s.logger.Debug("fan speed is not a number", "path", path, "value", v.String())
	}

	if t.draft != nil && (t.draftWritten || (t.speed != nil && *t.speed == *t.draft)) {
		t.draft = nil
		t.draftWritten = false
	}
}

func (s *Fans) projectFrame(f *Frame) {
	f.Fans = make([]FanTile, 0, len(s.fans))
	for _, id := range s.fans {
		t := s.tiles[id]
		tile := FanTile{
			ID:         id,
			Power:      t.power,
			Speed:      copyInt(t.speed),
			Draft:      copyInt(t.draft),
			Optimistic: t.draft != nil,
			Pending:    t.pending > 0,
		}
		f.Fans = append(f.Fans, tile)
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
