package hashx

import (
	"context"
	"fmt"

	"github.com/hengadev/errsx"
	"github.com/hengadev/hashx/internal/kdf"
)

// EncryptedHasher is the peppered Argon2 encoder: it hashes a password into
// a raw digest and encrypts the digest under the active pepper key before
// packing it into the encrypted grammar. Legacy plain hashes keep verifying
// and can be migrated to the encrypted form with RecodeHash.
//
// The active key id is fixed at construction. Rotating the pepper means
// constructing a new hasher with the new active id (the old key stays in the
// cipher for decryption) and calling RecodeHash opportunistically, e.g. on
// successful login, guided by NeedsRehash.
type EncryptedHasher struct {
	params     *Params
	cipher     Cipher
	keyID      string
	decrypters map[string]Cipher
}

var _ PasswordHasher = (*EncryptedHasher)(nil)

// EncryptedHasherOption configures an EncryptedHasher during construction.
type EncryptedHasherOption func(*EncryptedHasher) error

// WithDecryptCipher registers an additional cipher used only to decrypt
// hashes produced under its name, enabling RecodeHash to migrate stored
// hashes across a cipher change (keyring to Vault, for example).
func WithDecryptCipher(c Cipher) EncryptedHasherOption {
	return func(e *EncryptedHasher) error {
		if c == nil {
			return fmt.Errorf("%w: decrypt cipher is nil", ErrInvalidConfiguration)
		}
		if !isToken(c.Name()) {
			return fmt.Errorf("%w: invalid cipher name %q", ErrInvalidConfiguration, c.Name())
		}
		e.decrypters[c.Name()] = c
		return nil
	}
}

// NewEncryptedHasher creates a peppered hasher that encrypts new digests
// under activeKeyID using c. A nil params uses the defaults from NewParams.
func NewEncryptedHasher(params *Params, c Cipher, activeKeyID string, opts ...EncryptedHasherOption) (*EncryptedHasher, error) {
	p, err := checkParams(params)
	if err != nil {
		return nil, err
	}

	errs := errsx.Map{}
	if c == nil {
		errs.Set("cipher", fmt.Errorf("cipher is required"))
	} else if !isToken(c.Name()) {
		errs.Set("cipher", fmt.Errorf("invalid cipher name %q", c.Name()))
	}
	if !isToken(activeKeyID) {
		errs.Set("activeKeyID", fmt.Errorf("invalid key id %q", activeKeyID))
	}
	if err := errs.AsError(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	e := &EncryptedHasher{
		params:     p,
		cipher:     c,
		keyID:      activeKeyID,
		decrypters: make(map[string]Cipher),
	}
	for i, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("invalid option %d: %w", i+1, err)
		}
	}
	return e, nil
}

// Params returns a copy of the hasher's cost profile.
func (e *EncryptedHasher) Params() Params { return *e.params }

// ActiveKeyID returns the pepper key id used for new hashes.
func (e *EncryptedHasher) ActiveKeyID() string { return e.keyID }

// CipherName returns the tag of the active cipher.
func (e *EncryptedHasher) CipherName() string { return e.cipher.Name() }

// decrypterFor resolves the cipher tag embedded in a stored hash.
func (e *EncryptedHasher) decrypterFor(name string) (Cipher, error) {
	if name == e.cipher.Name() {
		return e.cipher, nil
	}
	if c, ok := e.decrypters[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, name)
}

// HashPassword implements PasswordHasher. The salt doubles as associated
// data for the cipher, binding the ciphertext to this hash.
func (e *EncryptedHasher) HashPassword(ctx context.Context, password string) (string, error) {
	salt, err := kdf.Salt(e.params.SaltLength)
	if err != nil {
		return "", err
	}

	variant, _ := kdfVariant(e.params.Subtype)
	digest := kdf.Derive(variant, []byte(password), salt,
		e.params.Iterations, e.params.memoryKiB(), e.params.Parallelism, e.params.KeyLength)

	ciphertext, err := e.cipher.Encrypt(ctx, e.keyID, salt, digest)
	if err != nil {
		return "", fmt.Errorf("%w: key %q: %w", ErrEncryptionFailed, e.keyID, err)
	}

	return Pack(&EncodedHash{
		Subtype:     e.params.Subtype,
		CipherName:  e.cipher.Name(),
		KeyID:       e.keyID,
		Memory:      e.params.Memory,
		Iterations:  e.params.Iterations,
		Parallelism: e.params.Parallelism,
		Salt:        salt,
		Payload:     ciphertext,
	}), nil
}

// VerifyPassword implements PasswordHasher. Encrypted hashes are verified by
// decrypting the stored digest under the embedded cipher and key id and
// recomputing the digest from the password; plain hashes fall through to the
// legacy path. Every failure (unknown cipher or key id, tampered
// ciphertext, uncomputable subtype, malformed string) returns false.
func (e *EncryptedHasher) VerifyPassword(ctx context.Context, password, encoded string) bool {
	if rec, ok := ParseEncrypted(encoded); ok {
		c, err := e.decrypterFor(rec.CipherName)
		if err != nil {
			return false
		}
		digest, err := c.Decrypt(ctx, rec.KeyID, rec.Salt, rec.Payload)
		if err != nil {
			return false
		}
		return verifyDigest(rec, password, digest)
	}

	if rec, ok := ParseUnencrypted(encoded); ok {
		return verifyDigest(rec, password, rec.Payload)
	}

	return false
}

// NeedsRehash implements PasswordHasher. The check repacks the parsed salt
// and ciphertext under the hasher's current subtype, cipher, active key id,
// and costs, and compares the result byte for byte with the input. One
// signal therefore covers weaker cost parameters, a cipher change, and a
// stale pepper key; any true result is an invitation to call RecodeHash (or
// rehash outright on next login).
func (e *EncryptedHasher) NeedsRehash(ctx context.Context, encoded string) bool {
	rec, ok := ParseEncrypted(encoded)
	if !ok {
		return true
	}

	if len(rec.Salt) != int(e.params.SaltLength) {
		return true
	}
	if overhead := e.cipher.Overhead(); overhead >= 0 && len(rec.Payload) != int(e.params.KeyLength)+overhead {
		return true
	}

	canonical := Pack(&EncodedHash{
		Subtype:     e.params.Subtype,
		CipherName:  e.cipher.Name(),
		KeyID:       e.keyID,
		Memory:      e.params.Memory,
		Iterations:  e.params.Iterations,
		Parallelism: e.params.Parallelism,
		Salt:        rec.Salt,
		Payload:     rec.Payload,
	})
	return canonical != encoded
}

// RecodeHash re-encrypts a stored hash under the active pepper key. See
// RecodeHashTo.
func (e *EncryptedHasher) RecodeHash(ctx context.Context, encoded string) (string, error) {
	return e.RecodeHashTo(ctx, encoded, e.keyID)
}

// RecodeHashTo migrates a stored hash to the target pepper key without
// needing the original password:
//
//   - an encrypted hash already under the target key and active cipher is
//     returned unchanged;
//   - any other encrypted hash has its digest decrypted under the embedded
//     cipher and key id and re-encrypted under the target, preserving
//     subtype, costs, and salt;
//   - a plain legacy hash has its digest encrypted and is repacked into the
//     encrypted grammar;
//   - anything else passes through untouched.
//
// RecodeHashTo is meant for trusted stored data: cipher failures propagate
// instead of being swallowed. Callers feeding it unverified input should
// wrap it themselves.
func (e *EncryptedHasher) RecodeHashTo(ctx context.Context, encoded, targetKeyID string) (string, error) {
	if !isToken(targetKeyID) {
		return "", fmt.Errorf("%w: invalid target key id %q", ErrInvalidConfiguration, targetKeyID)
	}

	if rec, ok := ParseEncrypted(encoded); ok {
		if rec.KeyID == targetKeyID && rec.CipherName == e.cipher.Name() {
			return encoded, nil
		}

		c, err := e.decrypterFor(rec.CipherName)
		if err != nil {
			return "", err
		}
		digest, err := c.Decrypt(ctx, rec.KeyID, rec.Salt, rec.Payload)
		if err != nil {
			return "", fmt.Errorf("recode: decrypt under key %q: %w", rec.KeyID, err)
		}

		ciphertext, err := e.cipher.Encrypt(ctx, targetKeyID, rec.Salt, digest)
		if err != nil {
			return "", fmt.Errorf("%w: recode under key %q: %w", ErrEncryptionFailed, targetKeyID, err)
		}

		rec.CipherName = e.cipher.Name()
		rec.KeyID = targetKeyID
		rec.Payload = ciphertext
		return Pack(rec), nil
	}

	if rec, ok := ParseUnencrypted(encoded); ok {
		ciphertext, err := e.cipher.Encrypt(ctx, targetKeyID, rec.Salt, rec.Payload)
		if err != nil {
			return "", fmt.Errorf("%w: recode under key %q: %w", ErrEncryptionFailed, targetKeyID, err)
		}

		rec.CipherName = e.cipher.Name()
		rec.KeyID = targetKeyID
		rec.Payload = ciphertext
		return Pack(rec), nil
	}

	return encoded, nil
}

// SupportedSubtypes implements PasswordHasher. Each computable variant is
// listed twice, plain and "-encrypted", because this hasher claims both
// grammars: the plain tag for legacy verification, the suffixed tag for
// hashes it produces.
func (e *EncryptedHasher) SupportedSubtypes() []string {
	subtypes := []Subtype{Argon2i, Argon2id}
	tags := make([]string, 0, 2*len(subtypes))
	for _, s := range subtypes {
		tags = append(tags, s.String(), s.String()+encryptedTagSuffix)
	}
	return tags
}
