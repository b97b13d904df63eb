package hashx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestKeyring builds a keyring with deterministic material for the given
// key ids.
func newTestKeyring(t *testing.T, ids ...string) *Keyring {
	t.Helper()
	keys := make(map[string][]byte, len(ids))
	for i, id := range ids {
		keys[id] = bytes.Repeat([]byte{byte(i + 1)}, KeyringKeyLength)
	}
	ring, err := NewKeyring(keys)
	require.NoError(t, err)
	return ring
}

func newTestEncryptedHasher(t *testing.T, c Cipher, keyID string, opts ...ParamsOption) *EncryptedHasher {
	t.Helper()
	hasher, err := NewEncryptedHasher(fastParams(t, opts...), c, keyID)
	require.NoError(t, err)
	return hasher
}

// TestEncryptedHasher_RotationFlow walks the full pepper rotation sequence:
// hash under one key, rotate the active id, detect staleness, recode, settle.
func TestEncryptedHasher_RotationFlow(t *testing.T) {
	ctx := context.Background()
	ring := newTestKeyring(t, "12", "42")

	opts := []ParamsOption{WithMemory("64M"), WithIterations(2), WithKeyLength(32)}
	oldHasher := newTestEncryptedHasher(t, ring, "12", opts...)

	encoded, err := oldHasher.HashPassword(ctx, "password")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id-encrypted$v=1,cipher=aes-256-gcm,id=12$"))

	assert.True(t, oldHasher.VerifyPassword(ctx, "password", encoded))
	assert.False(t, oldHasher.VerifyPassword(ctx, "wrong", encoded))
	assert.False(t, oldHasher.NeedsRehash(ctx, encoded))

	// Rotate: same ring, new active key id.
	newHasher := newTestEncryptedHasher(t, ring, "42", opts...)

	// The old hash still verifies (key 12 is still in the ring) but is
	// flagged stale.
	assert.True(t, newHasher.VerifyPassword(ctx, "password", encoded))
	assert.True(t, newHasher.NeedsRehash(ctx, encoded))

	recoded, err := newHasher.RecodeHash(ctx, encoded)
	require.NoError(t, err)
	assert.NotEqual(t, encoded, recoded)
	assert.Contains(t, recoded, ",id=42$")

	assert.True(t, newHasher.VerifyPassword(ctx, "password", recoded))
	assert.False(t, newHasher.NeedsRehash(ctx, recoded))

	// Recoding preserves the salt, so the digest inside is unchanged.
	oldRec, ok := ParseEncrypted(encoded)
	require.True(t, ok)
	newRec, ok := ParseEncrypted(recoded)
	require.True(t, ok)
	assert.Equal(t, oldRec.Salt, newRec.Salt)
	assert.Equal(t, oldRec.Memory, newRec.Memory)
	assert.Equal(t, oldRec.Iterations, newRec.Iterations)
	assert.Equal(t, oldRec.Parallelism, newRec.Parallelism)
}

func TestEncryptedHasher_RecodeIdempotent(t *testing.T) {
	ctx := context.Background()
	hasher := newTestEncryptedHasher(t, newTestKeyring(t, "12"), "12")

	encoded, err := hasher.HashPassword(ctx, "password")
	require.NoError(t, err)

	recoded, err := hasher.RecodeHash(ctx, encoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, recoded, "hash already under the active key must pass through byte for byte")
}

func TestEncryptedHasher_RecodeMigratesPlainHash(t *testing.T) {
	ctx := context.Background()

	plain, err := NewArgon2Hasher(fastParams(t))
	require.NoError(t, err)
	legacy, err := plain.HashPassword(ctx, "password")
	require.NoError(t, err)

	hasher := newTestEncryptedHasher(t, newTestKeyring(t, "12"), "12")

	// The plain hash verifies through the legacy path and is flagged.
	assert.True(t, hasher.VerifyPassword(ctx, "password", legacy))
	assert.True(t, hasher.NeedsRehash(ctx, legacy))

	migrated, err := hasher.RecodeHash(ctx, legacy)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(migrated, "$argon2id-encrypted$"))

	assert.True(t, hasher.VerifyPassword(ctx, "password", migrated))
	assert.False(t, hasher.NeedsRehash(ctx, migrated))

	// Same salt as the legacy hash: migration never touches the digest.
	legacyRec, ok := ParseUnencrypted(legacy)
	require.True(t, ok)
	migratedRec, ok := ParseEncrypted(migrated)
	require.True(t, ok)
	assert.Equal(t, legacyRec.Salt, migratedRec.Salt)
}

func TestEncryptedHasher_RecodePassesThroughForeignFormats(t *testing.T) {
	ctx := context.Background()
	hasher := newTestEncryptedHasher(t, newTestKeyring(t, "12"), "12")

	for _, input := range []string{
		"",
		"$2b$12$abcdefghijklmnopqrstuv",
		"plaintext-nonsense",
		"$argon2id$v=19$truncated",
	} {
		out, err := hasher.RecodeHash(ctx, input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, input, out, "unrecognized formats must pass through unchanged")
	}
}

func TestEncryptedHasher_RecodePropagatesCipherErrors(t *testing.T) {
	ctx := context.Background()
	ring := newTestKeyring(t, "12")
	hasher := newTestEncryptedHasher(t, ring, "12")

	encoded, err := hasher.HashPassword(ctx, "password")
	require.NoError(t, err)

	// Point the stored hash at a key the ring does not hold.
	stale := strings.Replace(encoded, ",id=12$", ",id=99$", 1)

	_, err = hasher.RecodeHash(ctx, stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// Tampered ciphertext surfaces a decryption error rather than false.
	rec, ok := ParseEncrypted(encoded)
	require.True(t, ok)
	rec.Payload[0] ^= 0xff
	rec.KeyID = "12"
	other := newTestEncryptedHasher(t, newTestKeyring(t, "12", "42"), "42")
	_, err = other.RecodeHash(ctx, Pack(rec))
	require.Error(t, err)
	assert.True(t, IsDecryptionError(err))
}

func TestEncryptedHasher_VerifyFailsClosed(t *testing.T) {
	ctx := context.Background()
	hasher := newTestEncryptedHasher(t, newTestKeyring(t, "12"), "12")

	encoded, err := hasher.HashPassword(ctx, "password")
	require.NoError(t, err)

	rec, ok := ParseEncrypted(encoded)
	require.True(t, ok)

	t.Run("unknown key id", func(t *testing.T) {
		stale := strings.Replace(encoded, ",id=12$", ",id=99$", 1)
		assert.False(t, hasher.VerifyPassword(ctx, "password", stale))
	})

	t.Run("unknown cipher name", func(t *testing.T) {
		foreign := strings.Replace(encoded, "cipher=aes-256-gcm", "cipher=vault-transit", 1)
		assert.False(t, hasher.VerifyPassword(ctx, "password", foreign))
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := *rec
		tampered.Payload = append([]byte(nil), rec.Payload...)
		tampered.Payload[len(tampered.Payload)-1] ^= 0x01
		assert.False(t, hasher.VerifyPassword(ctx, "password", Pack(&tampered)))
	})

	t.Run("salt swap breaks associated data", func(t *testing.T) {
		swapped := *rec
		swapped.Salt = bytes.Repeat([]byte{0xaa}, len(rec.Salt))
		assert.False(t, hasher.VerifyPassword(ctx, "password", Pack(&swapped)))
	})

	t.Run("malformed string", func(t *testing.T) {
		assert.False(t, hasher.VerifyPassword(ctx, "password", "garbage"))
	})
}

func TestEncryptedHasher_NeedsRehashSignals(t *testing.T) {
	ctx := context.Background()
	ring := newTestKeyring(t, "12")
	hasher := newTestEncryptedHasher(t, ring, "12")

	encoded, err := hasher.HashPassword(ctx, "password")
	require.NoError(t, err)

	t.Run("weaker iterations", func(t *testing.T) {
		stronger := newTestEncryptedHasher(t, ring, "12", WithIterations(2))
		assert.True(t, stronger.NeedsRehash(ctx, encoded))
	})

	t.Run("subtype change", func(t *testing.T) {
		other := newTestEncryptedHasher(t, ring, "12", WithSubtype(Argon2i))
		assert.True(t, other.NeedsRehash(ctx, encoded))
	})

	t.Run("salt length change", func(t *testing.T) {
		longer := newTestEncryptedHasher(t, ring, "12", WithSaltLength(24))
		assert.True(t, longer.NeedsRehash(ctx, encoded))
	})

	t.Run("key length change", func(t *testing.T) {
		// A longer digest changes the expected ciphertext length, caught
		// by the keyring overhead check.
		wider := newTestEncryptedHasher(t, ring, "12", WithKeyLength(32))
		assert.True(t, wider.NeedsRehash(ctx, encoded))
	})

	t.Run("plain hash", func(t *testing.T) {
		plainHasher, err := NewArgon2Hasher(fastParams(t))
		require.NoError(t, err)
		legacy, err := plainHasher.HashPassword(ctx, "password")
		require.NoError(t, err)
		assert.True(t, hasher.NeedsRehash(ctx, legacy))
	})

	t.Run("current hash is settled", func(t *testing.T) {
		assert.False(t, hasher.NeedsRehash(ctx, encoded))
	})
}

// staticCipher is a trivially reversible cipher for exercising cross-cipher
// migration without a second keyring.
type staticCipher struct {
	name string
}

func (s *staticCipher) Name() string  { return s.name }
func (s *staticCipher) Overhead() int { return 0 }

func (s *staticCipher) Encrypt(ctx context.Context, keyID string, associatedData, plaintext []byte) ([]byte, error) {
	out := make([]byte, len(plaintext))
	for i, b := range plaintext {
		out[i] = b ^ 0x5a
	}
	return out, nil
}

func (s *staticCipher) Decrypt(ctx context.Context, keyID string, associatedData, ciphertext []byte) ([]byte, error) {
	return s.Encrypt(ctx, keyID, associatedData, ciphertext)
}

func TestEncryptedHasher_RecodeAcrossCiphers(t *testing.T) {
	ctx := context.Background()
	legacyCipher := &staticCipher{name: "legacy-xor"}

	oldHasher, err := NewEncryptedHasher(fastParams(t), legacyCipher, "old")
	require.NoError(t, err)
	encoded, err := oldHasher.HashPassword(ctx, "password")
	require.NoError(t, err)

	ring := newTestKeyring(t, "12")
	newHasher, err := NewEncryptedHasher(fastParams(t), ring, "12", WithDecryptCipher(legacyCipher))
	require.NoError(t, err)

	// Decryptable through the registered legacy cipher, and flagged.
	assert.True(t, newHasher.VerifyPassword(ctx, "password", encoded))
	assert.True(t, newHasher.NeedsRehash(ctx, encoded))

	migrated, err := newHasher.RecodeHash(ctx, encoded)
	require.NoError(t, err)
	assert.Contains(t, migrated, "cipher=aes-256-gcm")
	assert.True(t, newHasher.VerifyPassword(ctx, "password", migrated))
	assert.False(t, newHasher.NeedsRehash(ctx, migrated))

	// Without the decrypt cipher the old hash is unreadable.
	bare, err := NewEncryptedHasher(fastParams(t), ring, "12")
	require.NoError(t, err)
	assert.False(t, bare.VerifyPassword(ctx, "password", encoded))
	_, err = bare.RecodeHash(ctx, encoded)
	assert.ErrorIs(t, err, ErrUnknownCipher)
}

func TestEncryptedHasher_RecodeHashToExplicitTarget(t *testing.T) {
	ctx := context.Background()
	ring := newTestKeyring(t, "12", "42")
	hasher := newTestEncryptedHasher(t, ring, "12")

	encoded, err := hasher.HashPassword(ctx, "password")
	require.NoError(t, err)

	recoded, err := hasher.RecodeHashTo(ctx, encoded, "42")
	require.NoError(t, err)
	assert.Contains(t, recoded, ",id=42$")
	assert.True(t, hasher.VerifyPassword(ctx, "password", recoded))

	_, err = hasher.RecodeHashTo(ctx, encoded, "bad key id")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewEncryptedHasher_ConfigErrors(t *testing.T) {
	ring := newTestKeyring(t, "12")

	_, err := NewEncryptedHasher(nil, nil, "12")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	_, err = NewEncryptedHasher(nil, ring, "has space")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	_, err = NewEncryptedHasher(nil, ring, "12", WithDecryptCipher(nil))
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	badParams := &Params{Subtype: Argon2id} // everything else zero
	_, err = NewEncryptedHasher(badParams, ring, "12")
	require.Error(t, err)
}

func TestEncryptedHasher_SupportedSubtypes(t *testing.T) {
	hasher := newTestEncryptedHasher(t, newTestKeyring(t, "12"), "12")
	assert.ElementsMatch(t,
		[]string{"argon2i", "argon2i-encrypted", "argon2id", "argon2id-encrypted"},
		hasher.SupportedSubtypes())
}
