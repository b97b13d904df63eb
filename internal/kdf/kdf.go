// Package kdf wraps the Argon2 key derivation primitives behind a closed
// variant switch and provides salt generation for the hashers in the root
// package.
package kdf

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Version is the Argon2 specification version encoded into hash strings.
const Version = argon2.Version

// Variant selects the Argon2 flavor to derive with. Only the variants that
// golang.org/x/crypto/argon2 implements are listed here; argon2d has no
// backing primitive and is rejected one layer up.
type Variant int

const (
	// VariantI derives with Argon2i.
	VariantI Variant = iota
	// VariantID derives with Argon2id.
	VariantID
)

// Derive computes the raw Argon2 digest for a password. Memory is given in
// KiB, matching the x/crypto/argon2 API and the on-the-wire m= field.
func Derive(v Variant, password, salt []byte, iterations, memoryKiB uint32, parallelism uint8, keyLen uint32) []byte {
	switch v {
	case VariantI:
		return argon2.Key(password, salt, iterations, memoryKiB, parallelism, keyLen)
	default:
		return argon2.IDKey(password, salt, iterations, memoryKiB, parallelism, keyLen)
	}
}

// Salt returns n cryptographically random bytes for use as a hash salt.
func Salt(n uint32) ([]byte, error) {
	salt := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
