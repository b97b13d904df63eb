package hashx

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// Cipher is the symmetric pepper capability consumed by EncryptedHasher.
//
// A Cipher resolves an opaque key id to key material and encrypts or
// decrypts an Argon2 digest under it. The hash salt is passed as associated
// data so a ciphertext cannot be replayed under a different salt; it is
// never used as key material.
//
// Implementations:
//   - Local AES-256-GCM keyring: hashx.Keyring
//   - HashiCorp Vault Transit: github.com/hengadev/hashx/providers/vaulttransit
//   - AWS KMS: github.com/hengadev/hashx/providers/awskms
//
// All implementations must be safe for concurrent use.
type Cipher interface {
	// Name returns the cipher tag embedded in encrypted hash strings
	// (e.g. "aes-256-gcm"). It must be a run of [A-Za-z0-9._-].
	Name() string

	// Overhead returns the number of bytes Encrypt adds to a plaintext,
	// or -1 when the ciphertext size is not a fixed function of the
	// plaintext size (remote envelope formats).
	Overhead() int

	// Encrypt encrypts plaintext under the key named by keyID, binding
	// associatedData into the authentication tag.
	Encrypt(ctx context.Context, keyID string, associatedData, plaintext []byte) ([]byte, error)

	// Decrypt reverses Encrypt. It returns an error wrapping
	// ErrKeyNotFound for an unknown key id and ErrDecryptionFailed for
	// tampered or truncated ciphertext.
	Decrypt(ctx context.Context, keyID string, associatedData, ciphertext []byte) ([]byte, error)
}

// KeyringCipherName is the cipher tag used by Keyring.
const KeyringCipherName = "aes-256-gcm"

// KeyringKeyLength is the required key material length for Keyring keys.
const KeyringKeyLength = 32

const keyringNonceSize = 12

// Keyring is a local AES-256-GCM Cipher holding one or more pepper keys by
// key id. Retired keys stay in the ring so hashes encrypted under them
// remain decryptable until RecodeHash migrates them; which key id is active
// is decided by the EncryptedHasher, not the ring.
//
// Ciphertext layout: nonce || sealed digest.
type Keyring struct {
	aeads map[string]cipher.AEAD
}

// NewKeyring builds a Keyring from raw 32-byte keys indexed by key id.
func NewKeyring(keys map[string][]byte) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: keyring needs at least one key", ErrInvalidConfiguration)
	}

	aeads := make(map[string]cipher.AEAD, len(keys))
	for id, material := range keys {
		if !isToken(id) {
			return nil, fmt.Errorf("%w: invalid key id %q", ErrInvalidConfiguration, id)
		}
		if len(material) != KeyringKeyLength {
			return nil, fmt.Errorf("%w: key %q must be %d bytes, got %d", ErrInvalidConfiguration, id, KeyringKeyLength, len(material))
		}
		block, err := aes.NewCipher(material)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %w", ErrInvalidConfiguration, id, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %w", ErrInvalidConfiguration, id, err)
		}
		aeads[id] = aead
	}

	return &Keyring{aeads: aeads}, nil
}

// ParseKeyringKeys decodes hex-encoded key material ("openssl rand -hex 32"
// output) into the raw form NewKeyring expects.
func ParseKeyringKeys(hexKeys map[string]string) (map[string][]byte, error) {
	keys := make(map[string][]byte, len(hexKeys))
	for id, h := range hexKeys {
		material, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q is not valid hex: %w", ErrInvalidConfiguration, id, err)
		}
		keys[id] = material
	}
	return keys, nil
}

// Name implements Cipher.
func (k *Keyring) Name() string { return KeyringCipherName }

// Overhead implements Cipher: 12-byte nonce plus 16-byte GCM tag.
func (k *Keyring) Overhead() int { return keyringNonceSize + 16 }

// KeyIDs returns the ids of all keys in the ring.
func (k *Keyring) KeyIDs() []string {
	ids := make([]string, 0, len(k.aeads))
	for id := range k.aeads {
		ids = append(ids, id)
	}
	return ids
}

// Encrypt implements Cipher.
func (k *Keyring) Encrypt(ctx context.Context, keyID string, associatedData, plaintext []byte) ([]byte, error) {
	aead, ok := k.aeads[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce generation failed: %w", ErrEncryptionFailed, err)
	}

	return aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

// Decrypt implements Cipher.
func (k *Keyring) Decrypt(ctx context.Context, keyID string, associatedData, ciphertext []byte) ([]byte, error) {
	aead, ok := k.aeads[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext shorter than nonce", ErrDecryptionFailed)
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
