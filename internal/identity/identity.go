// Package identity tells server-backed annotation ids apart from ids created
// locally by the overlay and not yet saved.
//
// Server-backed ids carry the "db:" prefix followed by the backend primary
// key. Anything else, including a prefixed id without a usable key, is
// local-only so that a save will create it rather than drop it.
package identity

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const serverPrefix = "db:"

// FromServer wraps a backend primary key.
func FromServer(key int64) string {
	return serverPrefix + strconv.FormatInt(key, 10)
}

// ServerID extracts the backend primary key from a server-backed id.
func ServerID(id string) (int64, bool) {
	rest, ok := strings.CutPrefix(id, serverPrefix)
	if !ok {
		return 0, false
	}
	key, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || key <= 0 {
		return 0, false
	}
	return key, true
}

// IsServerBacked reports whether id refers to a persisted annotation.
func IsServerBacked(id string) bool {
	_, ok := ServerID(id)
	return ok
}

// NewLocal returns a fresh local-only id.
func NewLocal() string {
	return uuid.NewString()
}
