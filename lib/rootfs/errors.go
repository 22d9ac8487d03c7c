package rootfs

import "errors"

var (
	// ErrStaging is returned when the staging root cannot be reset or created
	ErrStaging = errors.New("staging root unavailable")

	// ErrCommitted is returned when a staging root is used after the process
	// root has been moved into it and its host path no longer resolves
	ErrCommitted = errors.New("staging root already committed")
)
