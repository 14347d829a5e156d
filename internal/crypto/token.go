package crypto

import (
	"crypto/rand"
	"fmt"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomAlphanumeric returns a cryptographically random alphanumeric string
// of the given length. Used for client token secrets, login codes, and
// refresh and password-reset tokens -- anywhere the gateway needs a human-typeable or URL-safe
// opaque token without base64 padding quirks.
func RandomAlphanumeric(n int) (string, error) {
	out := make([]byte, n)
	idx := make([]byte, n)
	if _, err := rand.Read(idx); err != nil {
		return "", fmt.Errorf("crypto: read random bytes: %w", err)
	}
	for i, b := range idx {
		out[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(out), nil
}

// RandomNonce returns n cryptographically random bytes.
func RandomNonce(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: read random bytes: %w", err)
	}
	return b, nil
}
