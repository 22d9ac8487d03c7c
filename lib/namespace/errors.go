package namespace

import "errors"

// ErrNamespace is returned when the process cannot enter a new namespace.
var ErrNamespace = errors.New("namespace isolation failed")
