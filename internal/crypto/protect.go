// Package crypto implements the gateway's small set of cryptographic
// primitives: the reversible key-protection codec, Ed25519 challenge
// verification, Argon2id password verification, HMAC-SHA256 JWTs, and the
// hashing/constant-time-compare helpers the rest of the gateway builds on.
package crypto

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	gateway "github.com/eugener/aigateway/internal"
)

// keyMaterial derives the XOR keystream for a provider's obfuscation: the
// provider name followed by a fixed suffix, repeated across the plaintext.
func keyMaterial(provider string) []byte {
	return append([]byte(provider), "::ai-gateway"...)
}

func xorBytes(data, key []byte) []byte {
	if len(key) == 0 {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// Protect encodes a plaintext provider key according to strategy. It returns
// the value to persist and whether that value requires Unprotect to recover
// the plaintext. None and Masked both obfuscate (reversibly, not securely --
// this is a log-redaction control, not encryption); Plain stores untouched.
func Protect(strategy gateway.KeyLogStrategy, provider, plain string) (encoded string, encrypted bool) {
	switch strategy {
	case gateway.KeyLogPlain:
		return plain, false
	default:
		xored := xorBytes([]byte(plain), keyMaterial(provider))
		return hex.EncodeToString(xored), true
	}
}

// Unprotect reverses Protect. encrypted must be the flag Protect returned at
// encode time; strategy must match the original encoding strategy.
func Unprotect(strategy gateway.KeyLogStrategy, provider, data string, encrypted bool) (string, error) {
	if !encrypted {
		return data, nil
	}
	if strategy == gateway.KeyLogPlain {
		return data, nil
	}
	raw, err := hex.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("crypto: invalid hex: %w", err)
	}
	plain := xorBytes(raw, keyMaterial(provider))
	return string(plain), nil
}

// MaskKey renders a provider key for display/logging per strategy: None
// stores nothing, Masked shows "first4****last4" (or "****" for <=8 chars),
// Plain shows the raw value.
func MaskKey(strategy gateway.KeyLogStrategy, raw string) string {
	switch strategy {
	case gateway.KeyLogNone:
		return ""
	case gateway.KeyLogPlain:
		return raw
	default:
		if len(raw) <= 8 {
			return "****"
		}
		return raw[:4] + "****" + raw[len(raw)-4:]
	}
}

// ConstantTimeEqual reports whether a and b are byte-for-byte equal, without
// leaking timing information about a shared prefix length.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
