package locator

import (
	"crypto/rand"
	"encoding/hex"
)

// NewTag generates the per-instance unguessable hex tag embedded in
// versioned locators (spec §3). It is generated once per core
// instance and never changes for its lifetime.
func NewTag() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand on a supported platform does not fail; if it
		// somehow does, a predictable fallback is still preferable to
		// a panic that would take the whole process down.
		for i := range buf {
			buf[i] = byte(i)
		}
	}
	return hex.EncodeToString(buf)
}
