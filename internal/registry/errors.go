package registry

import "errors"

// ErrDuplicateRoom is returned by Add when the given room ID is
// already registered.
var ErrDuplicateRoom = errors.New("registry: room id already registered")
