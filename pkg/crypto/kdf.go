package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Parameters controls the cost factors for Argon2id verifier derivation.
type Argon2Parameters struct {
	// Time is the number of iterations.
	Time uint32
	// Memory is the amount of memory (in kibibytes) to use.
	Memory uint32
	// Threads is the degree of parallelism.
	Threads uint8
	// KeyLength is the desired length of the derived key in bytes.
	KeyLength uint32
	// SaltLength is the length of the random salt in bytes.
	SaltLength uint32
}

// DefaultArgon2Params returns the default Argon2id parameters for key verifiers.
func DefaultArgon2Params() Argon2Parameters {
	return Argon2Parameters{
		Time:       2,
		Memory:     64 * 1024, // 64 MiB
		Threads:    4,
		KeyLength:  32,
		SaltLength: 16,
	}
}

// Validate ensures the parameters are suitable for Argon2id derivation.
func (p Argon2Parameters) Validate() error {
	if p.Time == 0 {
		return fmt.Errorf("argon2: time cost must be greater than zero")
	}
	if p.Threads == 0 {
		return fmt.Errorf("argon2: parallelism must be greater than zero")
	}
	if p.Memory < 8*uint32(p.Threads) {
		return fmt.Errorf("argon2: memory cost must be at least 8 * threads")
	}
	if p.KeyLength == 0 {
		return fmt.Errorf("argon2: key length must be greater than zero")
	}
	if p.SaltLength < 16 {
		return fmt.Errorf("argon2: salt must be at least 16 bytes (got %d)", p.SaltLength)
	}
	return nil
}

// DeriveVerifier computes the slow, salted, authoritative hash of a secret and
// encodes it in the PHC string format so the parameters travel with the hash.
func DeriveVerifier(secret string, params Argon2Parameters) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("argon2: secret is required")
	}
	if err := params.Validate(); err != nil {
		return "", err
	}

	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, params.Time, params.Memory, params.Threads, params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		params.Memory, params.Time, params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifySecret re-derives the candidate secret with the verifier's embedded
// salt and cost parameters and compares in constant time. Malformed verifiers
// yield false, never a panic.
func VerifySecret(verifier, secret string) bool {
	if verifier == "" || secret == "" {
		return false
	}

	salt, expected, params, err := decodeVerifier(verifier)
	if err != nil {
		return false
	}

	actual := argon2.IDKey([]byte(secret), salt, params.Time, params.Memory, params.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(expected, actual) == 1
}

func decodeVerifier(verifier string) (salt, key []byte, params Argon2Parameters, err error) {
	parts := strings.Split(verifier, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("argon2: malformed verifier")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("argon2: malformed version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("argon2: unsupported version %d", version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return nil, nil, params, fmt.Errorf("argon2: malformed parameters: %w", err)
	}
	if params.Time == 0 || params.Memory == 0 || params.Threads == 0 {
		return nil, nil, params, fmt.Errorf("argon2: zero cost parameter")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("argon2: malformed salt: %w", err)
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, nil, params, fmt.Errorf("argon2: malformed key")
	}

	return salt, key, params, nil
}
