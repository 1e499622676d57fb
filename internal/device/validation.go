package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation constants.
const (
	maxIDLength = 50
	idPattern   = `^[A-Za-z0-9_-]+$`
)

var idRegex = regexp.MustCompile(idPattern)

// ValidateID checks that id can be used as the last segment of a path.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidID, id, maxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: %q must contain only letters, digits, '-' and '_'", ErrInvalidID, id)
	}
	return nil
}

// ValidateFanID additionally rejects IDs whose power path would collide
// with another fan's speed path.
func ValidateFanID(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if strings.HasPrefix(id, strings.TrimPrefix(fanSpeedPrefix, fanPrefix)) {
		return fmt.Errorf("%w: fan %q collides with speed paths", ErrInvalidID, id)
	}
	return nil
}
