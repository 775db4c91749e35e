package hashing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suvidha-service/internal/config"
)

func newTestHasher() *Hasher {
	cfg := &config.Config{}
	cfg.Hashing = config.HashingConfig{
		Memory:      16 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		Pepper:      "test-pepper",
	}
	return NewHasher(cfg)
}

func TestPasswordHashing(t *testing.T) {
	h := newTestHasher()

	encoded, err := h.HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := h.VerifyPassword("s3cret", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyPassword("wrong", encoded)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.VerifyPassword("s3cret", "not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestLookupHash(t *testing.T) {
	h := newTestHasher()

	a := h.LookupHash("234567890124")
	b := h.LookupHash("234567890124")
	assert.Equal(t, a, b, "lookup hash must be deterministic")
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, h.LookupHash("234567890125"))

	other := newTestHasher()
	other.pepper = "different"
	assert.NotEqual(t, a, other.LookupHash("234567890124"))
}
