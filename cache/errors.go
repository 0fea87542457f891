package cache

import (
	"errors"
)

// ErrPageNotFound is returned when a requested page is not present in a
// MetaStore or PageStore
var ErrPageNotFound = errors.New("page not found")
