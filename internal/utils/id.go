package utils

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// session ids minted in the same millisecond still sort in creation order
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func NewULID() (ulid.ULID, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.New(ulid.Now(), entropy)
}
