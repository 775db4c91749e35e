package encryption

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suvidha-service/internal/config"
)

func TestFieldEncryptionRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&config.Config{}, nil) // KMS disabled, local keys

	encoded, err := m.EncryptField(ctx, "234567890124")
	require.NoError(t, err)
	assert.NotContains(t, encoded, "234567890124")

	plain, err := m.DecryptField(ctx, encoded)
	require.NoError(t, err)
	assert.Equal(t, "234567890124", plain)

	// each call gets a fresh data key and nonce
	again, err := m.EncryptField(ctx, "234567890124")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, again)
}

func TestDecryptFieldRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&config.Config{}, nil)

	for _, in := range []string{"", "v2$a$b", "v1$only-two", "v1$!!!$???"} {
		_, err := m.DecryptField(ctx, in)
		assert.ErrorIs(t, err, ErrDecryptionFailed, "input %q", in)
	}
}
