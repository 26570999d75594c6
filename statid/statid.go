// Package statid generates provisioning identifiers. A statId is the secret
// the network endpoint recognizes for one entitlement; it is assigned once and
// never reused, even after the entitlement expires.
package statid

import (
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// New returns a fresh statId: a random UUIDv4 encoded as base58 so it stays
// short and safe inside connection URIs.
func New() string {
	id := uuid.New()
	return base58.Encode(id[:])
}

// Valid reports whether s decodes back to a 16-byte identifier.
func Valid(s string) bool {
	b, err := base58.Decode(s)
	return err == nil && len(b) == 16
}
