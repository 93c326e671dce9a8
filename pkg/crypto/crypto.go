// Package crypto provides password hashing and voice token generation.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

var ErrMalformedHash = errors.New("crypto: malformed password hash")

// Argon2id parameters. Changing these invalidates stored hashes, so new
// parameters would need a new prefix.
const (
	saltLen    = 16
	hashLen    = 32
	argonTime  = 1
	argonMem   = 64 * 1024
	argonLanes = 4

	hashPrefix = "argon2id"
)

// HashPassword derives a salted Argon2id hash from a plaintext password.
// The result is self-describing: "argon2id$<salt hex>$<hash hex>".
// The plaintext is never stored.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("crypto: generate salt: %w", err)
	}
	sum := argon2.IDKey([]byte(password), salt, argonTime, argonMem, argonLanes, hashLen)
	return hashPrefix + "$" + hex.EncodeToString(salt) + "$" + hex.EncodeToString(sum), nil
}

// VerifyPassword reports whether password matches an encoded hash
// produced by HashPassword. Comparison is constant-time.
func VerifyPassword(password, encoded string) bool {
	salt, want, err := decodeHash(encoded)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMem, argonLanes, hashLen)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func decodeHash(encoded string) (salt, sum []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != hashPrefix {
		return nil, nil, ErrMalformedHash
	}
	salt, err = hex.DecodeString(parts[1])
	if err != nil || len(salt) != saltLen {
		return nil, nil, ErrMalformedHash
	}
	sum, err = hex.DecodeString(parts[2])
	if err != nil || len(sum) != hashLen {
		return nil, nil, ErrMalformedHash
	}
	return salt, sum, nil
}

// NewVoiceToken generates a random non-zero uint32 voice token.
func NewVoiceToken() (uint32, error) {
	b := make([]byte, 4)
	for {
		if _, err := io.ReadFull(rand.Reader, b); err != nil {
			return 0, fmt.Errorf("crypto: generate voice token: %w", err)
		}
		if t := binary.BigEndian.Uint32(b); t != 0 {
			return t, nil
		}
	}
}
