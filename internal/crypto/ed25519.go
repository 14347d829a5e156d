package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// challengePrefix is prepended to the raw nonce bytes before signing, so a
// signature produced for this gateway can never be replayed against another
// protocol that happens to sign the same nonce bytes.
const challengePrefix = "gateway-auth:"

// GenerateAdminKeypair creates a new Ed25519 keypair for first-boot
// bootstrap of the admin public key store.
func GenerateAdminKeypair() (pub ed25519.PublicKey, priv ed25519.PrivateKey, err error) {
	return ed25519.GenerateKey(rand.Reader)
}

// SignChallenge signs the challenge message for nonce with priv. Exposed
// for tests and for the (out-of-scope) TUI client reference implementation.
func SignChallenge(priv ed25519.PrivateKey, nonce []byte) []byte {
	msg := append([]byte(challengePrefix), nonce...)
	return ed25519.Sign(priv, msg)
}

// VerifyChallenge reports whether sig is a valid Ed25519 signature over
// challengePrefix||nonce under pub.
func VerifyChallenge(pub ed25519.PublicKey, nonce, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	msg := append([]byte(challengePrefix), nonce...)
	return ed25519.Verify(pub, msg, sig)
}

// ParsePublicKey validates and returns a raw 32-byte Ed25519 public key.
func ParsePublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: invalid ed25519 public key length %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
