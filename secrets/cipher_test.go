package secrets_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenauth/go-identity-server/secrets"
)

func TestRoundTrip(t *testing.T) {
	c, err := secrets.New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	for _, plaintext := range []string{
		"",
		"pw123",
		"a longer password with spaces and symbols !@#$%",
		strings.Repeat("x", 1024),
	} {
		sealed, err := c.Encrypt(plaintext)
		require.NoError(t, err)

		opened, err := c.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestEncryptIsNotDeterministic(t *testing.T) {
	c, err := secrets.New([]byte("0123456789abcdef"))
	require.NoError(t, err)

	first, err := c.Encrypt("pw123")
	require.NoError(t, err)
	second, err := c.Encrypt("pw123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptRejectsTamperedInput(t *testing.T) {
	c, err := secrets.New([]byte("0123456789abcdef"))
	require.NoError(t, err)

	sealed, err := c.Encrypt("pw123")
	require.NoError(t, err)

	_, err = c.Decrypt("not-base64-%%%")
	assert.ErrorIs(t, err, secrets.ErrDecryption)

	_, err = c.Decrypt(sealed[:len(sealed)/2])
	assert.ErrorIs(t, err, secrets.ErrDecryption)
}

func TestDecryptRejectsForeignKey(t *testing.T) {
	a, err := secrets.New([]byte("0123456789abcdef"))
	require.NoError(t, err)
	b, err := secrets.New([]byte("fedcba9876543210"))
	require.NoError(t, err)

	sealed, err := a.Encrypt("pw123")
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	assert.ErrorIs(t, err, secrets.ErrDecryption)
}

func TestNewRejectsBadKeyLength(t *testing.T) {
	_, err := secrets.New([]byte("too-short"))
	require.Error(t, err)
}
