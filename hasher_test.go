package hashx

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastParams returns a profile cheap enough for tests; options override the
// reduced costs.
func fastParams(t *testing.T, opts ...ParamsOption) *Params {
	t.Helper()
	base := []ParamsOption{WithMemory("8k"), WithIterations(1)}
	p, err := NewParams(append(base, opts...)...)
	require.NoError(t, err)
	return p
}

func TestArgon2Hasher_HashAndVerify(t *testing.T) {
	ctx := context.Background()

	for _, subtype := range []Subtype{Argon2i, Argon2id} {
		t.Run(subtype.String(), func(t *testing.T) {
			hasher, err := NewArgon2Hasher(fastParams(t, WithSubtype(subtype)))
			require.NoError(t, err)

			encoded, err := hasher.HashPassword(ctx, "correct horse battery staple")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(encoded, "$"+subtype.String()+"$"))

			assert.True(t, hasher.VerifyPassword(ctx, "correct horse battery staple", encoded))
			assert.False(t, hasher.VerifyPassword(ctx, "wrong password", encoded))
			assert.False(t, hasher.NeedsRehash(ctx, encoded))
		})
	}
}

func TestArgon2Hasher_FreshSaltPerHash(t *testing.T) {
	ctx := context.Background()
	hasher, err := NewArgon2Hasher(fastParams(t))
	require.NoError(t, err)

	first, err := hasher.HashPassword(ctx, "password")
	require.NoError(t, err)
	second, err := hasher.HashPassword(ctx, "password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestArgon2Hasher_VerifyDispatchesOnEmbeddedSubtype(t *testing.T) {
	ctx := context.Background()

	// Hash produced under argon2i verifies against an argon2id-configured
	// hasher because the embedded tag selects the variant.
	iHasher, err := NewArgon2Hasher(fastParams(t, WithSubtype(Argon2i)))
	require.NoError(t, err)
	idHasher, err := NewArgon2Hasher(fastParams(t, WithSubtype(Argon2id)))
	require.NoError(t, err)

	encoded, err := iHasher.HashPassword(ctx, "password")
	require.NoError(t, err)

	assert.True(t, idHasher.VerifyPassword(ctx, "password", encoded))
	assert.True(t, idHasher.NeedsRehash(ctx, encoded), "foreign subtype must be flagged for rehash")
}

func TestArgon2Hasher_VerifyFailsClosed(t *testing.T) {
	ctx := context.Background()
	hasher, err := NewArgon2Hasher(fastParams(t))
	require.NoError(t, err)

	for _, input := range []string{
		"",
		"not a hash",
		"$argon2id$v=19$m=8",
		"$argon2d$v=19$m=8,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$ZGlnZXN0",
		"$2b$12$abcdefghijklmnopqrstuv",
	} {
		assert.False(t, hasher.VerifyPassword(ctx, "password", input), "input %q", input)
		assert.True(t, hasher.NeedsRehash(ctx, input), "input %q", input)
	}
}

func TestArgon2Hasher_NeedsRehashOnWeakerParams(t *testing.T) {
	ctx := context.Background()

	weak, err := NewArgon2Hasher(fastParams(t))
	require.NoError(t, err)
	strong, err := NewArgon2Hasher(fastParams(t, WithIterations(2)))
	require.NoError(t, err)

	encoded, err := weak.HashPassword(ctx, "password")
	require.NoError(t, err)

	assert.True(t, strong.NeedsRehash(ctx, encoded), "weaker stored hash must be flagged")

	strongHash, err := strong.HashPassword(ctx, "password")
	require.NoError(t, err)
	assert.False(t, weak.NeedsRehash(ctx, strongHash), "stronger stored hash is acceptable")
}

func TestArgon2Hasher_NeedsRehashOnLengthChange(t *testing.T) {
	ctx := context.Background()

	hasher, err := NewArgon2Hasher(fastParams(t))
	require.NoError(t, err)
	longSalt, err := NewArgon2Hasher(fastParams(t, WithSaltLength(24)))
	require.NoError(t, err)

	encoded, err := hasher.HashPassword(ctx, "password")
	require.NoError(t, err)

	// Salt length is invisible in the cost segment, so only the explicit
	// length check can catch it.
	assert.True(t, longSalt.NeedsRehash(ctx, encoded))
}

func TestNewArgon2Hasher_RejectsArgon2d(t *testing.T) {
	params := &Params{
		Subtype:     Argon2d,
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		KeyLength:   16,
		SaltLength:  16,
	}

	_, err := NewArgon2Hasher(params)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedSubtype)
}

func TestNewArgon2Hasher_NilParamsUsesDefaults(t *testing.T) {
	hasher, err := NewArgon2Hasher(nil)
	require.NoError(t, err)
	assert.Equal(t, Argon2id, hasher.Params().Subtype)
	assert.Equal(t, uint32(256*1024*1024), hasher.Params().Memory)
}

func TestArgon2Hasher_SupportedSubtypes(t *testing.T) {
	hasher, err := NewArgon2Hasher(fastParams(t))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"argon2i", "argon2id"}, hasher.SupportedSubtypes())
}
