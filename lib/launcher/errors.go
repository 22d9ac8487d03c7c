package launcher

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn is returned when the command cannot be started.
	ErrSpawn = errors.New("failed to start command")

	// ErrEncoding is returned when captured output is not valid UTF-8.
	ErrEncoding = errors.New("command output is not valid UTF-8")
)

// ExitError reports a command that ran but exited non-zero. Code is the
// status the parent should exit with.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}
