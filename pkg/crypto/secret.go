package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// SecretByteLength is the amount of CSPRNG entropy behind every secret.
	// 32 bytes keeps collisions out of reach even at absurd issuance rates.
	SecretByteLength = 32

	// FingerprintHexLength is the truncated length of the lookup fingerprint.
	// 8 bytes of SHA-256 rendered as 16 hex characters; collisions are
	// expected and tolerated, the verifier remains the binding proof.
	FingerprintHexLength = 16
)

// GenerateSecret produces a URL-safe, high-entropy bearer secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, SecretByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto: generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Fingerprint derives the fast, non-secret lookup digest of a secret.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])[:FingerprintHexLength]
}

// TruncateSecret returns a loggable prefix of a secret. Raw secrets must never
// appear at full length in logs or error messages.
func TruncateSecret(secret string) string {
	const visible = 6
	if len(secret) <= visible {
		return secret
	}
	return secret[:visible] + "..."
}
