package registry

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidReference   = errors.New("invalid image reference")
	ErrNoMatchingPlatform = errors.New("no matching platform in manifest list")
)

// A definitive response from the registry that is not retried: authentication
// failures, missing repositories or blobs, and other 4xx conditions.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("registry: %s (status %d)", e.Message, e.StatusCode)
}
