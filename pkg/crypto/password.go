// Package crypto provides the credential-protection primitives the
// auth stack builds on: argon2id hashing for passwords stored in a
// credentials file, and authenticated encryption for keeping that file
// sealed at rest.
package crypto

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// HashParams are the argon2id cost parameters recorded alongside each
// hash. Verification always honors the parameters encoded in the hash
// itself, so these only govern newly created hashes.
type HashParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams trades a little hardness for verification cost:
// every username/password sub-negotiation runs one argon2id
// derivation, so the memory cost stays below the interactive-login
// tier.
func DefaultHashParams() HashParams {
	return HashParams{
		Memory:      32 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// PasswordHasher hashes and verifies credential-file passwords.
type PasswordHasher struct {
	params HashParams
}

// NewPasswordHasher creates a hasher with DefaultHashParams.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{params: DefaultHashParams()}
}

// NewPasswordHasherWithParams creates a hasher with explicit cost
// parameters.
func NewPasswordHasherWithParams(p HashParams) *PasswordHasher {
	return &PasswordHasher{params: p}
}

// HashPassword derives an argon2id hash of password under a fresh
// random salt and encodes it in the conventional
// $argon2id$v=19$m=...,t=...,p=...$salt$hash form.
func (p *PasswordHasher) HashPassword(password string) (string, error) {
	salt, err := randomBytes(int(p.params.SaltLength))
	if err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		p.params.Iterations,
		p.params.Memory,
		p.params.Parallelism,
		p.params.KeyLength,
	)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.params.Memory,
		p.params.Iterations,
		p.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches encodedHash,
// deriving under the parameters the hash itself declares and comparing
// in constant time.
func (p *PasswordHasher) VerifyPassword(password, encodedHash string) (bool, error) {
	declared, salt, want, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey(
		[]byte(password),
		salt,
		declared.Iterations,
		declared.Memory,
		declared.Parallelism,
		uint32(len(want)),
	)

	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

var errMalformedHash = errors.New("malformed argon2id hash")

// decodeHash splits a $argon2id$... string into its declared
// parameters, salt, and derived key. Only the argon2id variant and the
// linked library's argon2 version are accepted.
func decodeHash(encoded string) (HashParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return HashParams{}, nil, nil, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return HashParams{}, nil, nil, errMalformedHash
	}
	if version != argon2.Version {
		return HashParams{}, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var p HashParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return HashParams{}, nil, nil, errMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return HashParams{}, nil, nil, errMalformedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return HashParams{}, nil, nil, errMalformedHash
	}

	return p, salt, key, nil
}
