package protocol

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// NewNonce returns a request correlation token carrying 128 random bits.
// The bits are rendered in UUID text form but no version bits are stamped.
func NewNonce() string {
	var id uuid.UUID
	if _, err := rand.Read(id[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms.
		return uuid.NewString()
	}
	return id.String()
}
