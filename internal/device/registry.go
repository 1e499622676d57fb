package device

import (
	"fmt"
	"slices"

	"github.com/nerrad567/homedash-core/internal/infrastructure/config"
)

// Catalog is the set of configured rooms and fans, in configuration
// order. It is immutable after construction and safe for concurrent use.
type Catalog struct {
	rooms []string
	fans  []string
}

// NewCatalog validates the devices section of the configuration.
//
// Returns:
//   - *Catalog: The configured devices
//   - error: ErrInvalidID or ErrDuplicateID
func NewCatalog(cfg config.DevicesConfig) (*Catalog, error) {
	if err := checkIDs("room", cfg.Rooms, ValidateID); err != nil {
		return nil, err
	}
	if err := checkIDs("fan", cfg.Fans, ValidateFanID); err != nil {
		return nil, err
	}
	return &Catalog{
		rooms: slices.Clone(cfg.Rooms),
		fans:  slices.Clone(cfg.Fans),
	}, nil
}

func checkIDs(kind string, ids []string, validate func(string) error) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if err := validate(id); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%s %q: %w", kind, id, ErrDuplicateID)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Rooms returns the configured rooms.
func (c *Catalog) Rooms() []string { return slices.Clone(c.rooms) }

// Fans returns the configured fans.
func (c *Catalog) Fans() []string { return slices.Clone(c.fans) }

// Room returns ErrRoomNotFound unless room is configured.
func (c *Catalog) Room(room string) error {
	if !slices.Contains(c.rooms, room) {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}
	return nil
}

// Fan returns ErrFanNotFound unless fan is configured.
func (c *Catalog) Fan(fan string) error {
	if !slices.Contains(c.fans, fan) {
		return fmt.Errorf("%w: %s", ErrFanNotFound, fan)
	}
	return nil
}

// Paths returns every store path the catalog's devices use: lights, fan
// power and speed, then the sensor readings.
func (c *Catalog) Paths() []string {
	paths := make([]string, 0, len(c.rooms)+2*len(c.fans)+2)
	for _, r := range c.rooms {
		paths = append(paths, LightPath(r))
	}
	for _, f := range c.fans {
		paths = append(paths, FanPowerPath(f), FanSpeedPath(f))
	}
	return append(paths, TemperaturePath, HumidityPath)
}
