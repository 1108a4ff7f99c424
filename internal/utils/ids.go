package utils

import (
	"crypto/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a random identifier for entities.
func NewID() string {
	return uuid.NewString()
}

// NewEntryID returns a ULID. IDs generated by one process sort in creation
// order, even within the same millisecond.
func NewEntryID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}
