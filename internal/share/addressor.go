// Package share implements the share-state reconciliation and
// upload-coordination core: deciding when a note needs uploading,
// persisting the resulting remote link in the note's frontmatter, and
// joining the backend's share list against the local vault.
package share

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Digest returns the BLAKE2b-256 hex digest of data. It is the single
// content-addressing primitive: note fingerprints for change detection
// and the minted client identifier both come from here.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MintClientID derives a fresh per-installation identifier from a
// time+random seed. It is minted once per installation and persisted;
// callers go through the state store rather than calling this on every
// run.
func MintClientID() (string, error) {
	seed := make([]byte, 24)
	if _, err := rand.Read(seed[:16]); err != nil {
		return "", fmt.Errorf("reading random seed: %w", err)
	}

	binary.BigEndian.PutUint64(seed[16:], uint64(time.Now().UnixNano()))

	return Digest(seed), nil
}
