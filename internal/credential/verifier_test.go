package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// sha256("secret")
const legacySecret = "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b"

func TestLegacySHA256(t *testing.T) {
	v := LegacySHA256{}

	hash, err := v.Hash("secret")
	require.NoError(t, err)
	assert.Equal(t, legacySecret, hash)

	assert.NoError(t, v.Verify("secret", legacySecret))
	assert.ErrorIs(t, v.Verify("wrong", legacySecret), ErrMismatch)

	err = v.Verify("secret", "not-hex")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMismatch)
}

func TestBcrypt(t *testing.T) {
	v := Bcrypt{Cost: bcrypt.MinCost}

	hash, err := v.Hash("secret")
	require.NoError(t, err)
	assert.NoError(t, v.Verify("secret", hash))
	assert.ErrorIs(t, v.Verify("wrong", hash), ErrMismatch)
}

func TestFor_SelectsByFormat(t *testing.T) {
	hash, err := Bcrypt{Cost: bcrypt.MinCost}.Hash("secret")
	require.NoError(t, err)

	assert.Equal(t, "bcrypt", For(hash).Name())
	assert.Equal(t, "sha256", For(legacySecret).Name())

	assert.NoError(t, Verify("secret", hash))
	assert.NoError(t, Verify("secret", legacySecret))
	assert.ErrorIs(t, Verify("nope", legacySecret), ErrMismatch)
}

func TestNeedsRehash(t *testing.T) {
	weak, err := Bcrypt{Cost: bcrypt.MinCost}.Hash("secret")
	require.NoError(t, err)

	assert.True(t, NeedsRehash(legacySecret))
	assert.True(t, NeedsRehash(weak))
}

func TestNeedsRehash_CurrentHash(t *testing.T) {
	hash, err := Current.Hash("secret")
	require.NoError(t, err)
	assert.False(t, NeedsRehash(hash))
}
