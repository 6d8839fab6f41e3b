package testutil

import (
	"github.com/oklog/ulid/v2"
)

// RandomID returns a fresh ULID string.
func RandomID() string {
	return ulid.Make().String()
}
