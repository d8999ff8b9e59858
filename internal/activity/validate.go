package activity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBlankName indicates an activity with an empty or whitespace-only name.
	ErrBlankName = errors.New("activity: name cannot be empty")
	// ErrBlankLocation indicates an activity with an empty or whitespace-only location.
	ErrBlankLocation = errors.New("activity: location cannot be empty")
	// ErrNonPositiveDuration indicates a duration of zero or fewer minutes.
	ErrNonPositiveDuration = errors.New("activity: duration must be greater than 0")
)

// Validate enforces the write preconditions the repository relies on. Callers
// run it before any save or update reaches persistence.
func Validate(record Activity) error {
	if strings.TrimSpace(record.Name) == "" {
		return ErrBlankName
	}
	if strings.TrimSpace(record.Location) == "" {
		return ErrBlankLocation
	}
	if record.DurationMinutes <= 0 {
		return fmt.Errorf("%w: got %d", ErrNonPositiveDuration, record.DurationMinutes)
	}
	return nil
}
