package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidJob marks a descriptor that exists but cannot be parsed.
	ErrInvalidJob = errors.New("invalid job file")
	// ErrJobNotFound is returned when no descriptor exists for an ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when a write would replace an existing descriptor.
	ErrJobExists = errors.New("job already exists")
)

// InvalidJobError describes why a descriptor could not be parsed. It
// matches ErrInvalidJob with errors.Is.
type InvalidJobError struct {
	ID     int64
	Reason string
}

func (e *InvalidJobError) Error() string {
	return fmt.Sprintf("invalid job file for id %d: %s", e.ID, e.Reason)
}

func (e *InvalidJobError) Is(target error) bool {
	return target == ErrInvalidJob
}
