package hashx

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/hengadev/hashx/internal/kdf"
)

// PasswordHasher is the contract consumed by password-authentication flows.
//
// VerifyPassword and NeedsRehash treat the hash string as untrusted input:
// a malformed or tampered string makes VerifyPassword return false and
// NeedsRehash return true, never an error or panic.
type PasswordHasher interface {
	// HashPassword hashes a password under the current cost profile,
	// drawing a fresh random salt per call.
	HashPassword(ctx context.Context, password string) (string, error)

	// VerifyPassword reports whether password matches the stored hash.
	// Comparison is constant time in the digest.
	VerifyPassword(ctx context.Context, password, encoded string) bool

	// NeedsRehash reports whether the stored hash should be regenerated
	// because it no longer matches the current configuration.
	NeedsRehash(ctx context.Context, encoded string) bool

	// SupportedSubtypes lists the hash tags this hasher can verify.
	SupportedSubtypes() []string
}

// Argon2Hasher is the plain (unencrypted) Argon2 encoder.
type Argon2Hasher struct {
	params *Params
}

var _ PasswordHasher = (*Argon2Hasher)(nil)

// NewArgon2Hasher creates a plain Argon2 hasher. A nil params uses the
// defaults from NewParams. Fails with ErrUnsupportedSubtype when the profile
// selects argon2d, which the backend cannot compute.
func NewArgon2Hasher(params *Params) (*Argon2Hasher, error) {
	p, err := checkParams(params)
	if err != nil {
		return nil, err
	}
	return &Argon2Hasher{params: p}, nil
}

// checkParams validates and copies a cost profile, defaulting when nil.
// The copy keeps hashers immune to callers mutating the original.
func checkParams(params *Params) (*Params, error) {
	if params == nil {
		return NewParams()
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: cost profile validation failed: %w", ErrInvalidConfiguration, err)
	}
	if _, ok := kdfVariant(params.Subtype); !ok {
		return nil, fmt.Errorf("%w: %s has no backing primitive", ErrUnsupportedSubtype, params.Subtype)
	}
	p := *params
	return &p, nil
}

// kdfVariant maps a subtype onto the derivation backend. The second return
// value is false for argon2d, which golang.org/x/crypto/argon2 does not
// implement.
func kdfVariant(s Subtype) (kdf.Variant, bool) {
	switch s {
	case Argon2i:
		return kdf.VariantI, true
	case Argon2id:
		return kdf.VariantID, true
	default:
		return 0, false
	}
}

// Params returns a copy of the hasher's cost profile.
func (h *Argon2Hasher) Params() Params { return *h.params }

// HashPassword implements PasswordHasher.
func (h *Argon2Hasher) HashPassword(ctx context.Context, password string) (string, error) {
	salt, err := kdf.Salt(h.params.SaltLength)
	if err != nil {
		return "", err
	}

	variant, _ := kdfVariant(h.params.Subtype)
	digest := kdf.Derive(variant, []byte(password), salt,
		h.params.Iterations, h.params.memoryKiB(), h.params.Parallelism, h.params.KeyLength)

	return Pack(&EncodedHash{
		Subtype:     h.params.Subtype,
		Memory:      h.params.Memory,
		Iterations:  h.params.Iterations,
		Parallelism: h.params.Parallelism,
		Salt:        salt,
		Payload:     digest,
	}), nil
}

// VerifyPassword implements PasswordHasher. The subtype tag embedded in the
// hash selects the variant to recompute with, so hashes produced under an
// older profile keep verifying.
func (h *Argon2Hasher) VerifyPassword(ctx context.Context, password, encoded string) bool {
	rec, ok := ParseUnencrypted(encoded)
	if !ok {
		return false
	}
	return verifyDigest(rec, password, rec.Payload)
}

// verifyDigest recomputes the Argon2 digest for rec's salt and costs and
// compares it to want in constant time. Fails closed for subtypes the
// backend cannot compute.
func verifyDigest(rec *EncodedHash, password string, want []byte) bool {
	variant, ok := kdfVariant(rec.Subtype)
	if !ok {
		return false
	}
	if len(want) == 0 {
		return false
	}

	computed := kdf.Derive(variant, []byte(password), rec.Salt,
		rec.Iterations, rec.Memory/1024, rec.Parallelism, uint32(len(want)))

	return subtle.ConstantTimeCompare(computed, want) == 1
}

// NeedsRehash implements PasswordHasher. True when the hash does not parse,
// uses a different subtype, carries weaker costs than the current profile,
// or has a salt or digest length that differs from it.
func (h *Argon2Hasher) NeedsRehash(ctx context.Context, encoded string) bool {
	rec, ok := ParseUnencrypted(encoded)
	if !ok {
		return true
	}
	if rec.Subtype != h.params.Subtype {
		return true
	}
	if rec.Memory < h.params.Memory ||
		rec.Iterations < h.params.Iterations ||
		rec.Parallelism < h.params.Parallelism {
		return true
	}
	if len(rec.Salt) != int(h.params.SaltLength) || len(rec.Payload) != int(h.params.KeyLength) {
		return true
	}
	return false
}

// SupportedSubtypes implements PasswordHasher. argon2d is absent: the
// backend cannot recompute it, so claiming its tag would shadow a hasher
// that can.
func (h *Argon2Hasher) SupportedSubtypes() []string {
	return []string{Argon2i.String(), Argon2id.String()}
}
