// Package cap implements the capability model: 128-bit server IDs are the
// sole credential for creating or connecting to a mailbox. Holding a SID is
// sufficient; guessing one is a 128-bit search.
package cap

import (
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// SID is a 128-bit server capability. The zero value is invalid and asks the
// kernel to mint a random one.
type SID [16]byte

// Random mints a uniformly random SID. Collisions never happen by
// construction of the 128-bit space.
func Random() SID {
	return SID(uuid.New())
}

// sidDomain separates named-SID derivation from any other use of BLAKE2b in
// the system.
const sidDomain = "ember.sid.v1"

// FromName derives the deterministic SID for a bootstrap-critical well-known
// name. Boot-ordered services use this so early clients can connect before
// the name service is up.
func FromName(name string) SID {
	h, err := blake2b.New(16, []byte(sidDomain))
	if err != nil {
		panic(err) // key is const and within bounds
	}
	h.Write([]byte(name))
	var s SID
	copy(s[:], h.Sum(nil))
	return s
}

// IsZero reports whether the SID is unset.
func (s SID) IsZero() bool { return s == SID{} }

// String renders a short prefix for logs. The full secret never leaves the
// holder.
func (s SID) String() string {
	return "sid:" + hex.EncodeToString(s[:4]) + "…"
}
