package jail

import "errors"

var (
	// ErrCopy is returned when the command binary cannot be placed in the root
	ErrCopy = errors.New("copy command failed")

	// ErrJail is returned when the root cannot be prepared or entered
	ErrJail = errors.New("jail setup failed")
)
