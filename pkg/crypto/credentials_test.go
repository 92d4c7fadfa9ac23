package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=" // 32 bytes

func TestNewCredentialEncryptor(t *testing.T) {
	_, err := NewCredentialEncryptor("")
	assert.ErrorIs(t, err, ErrInvalidKey)

	enc, err := NewCredentialEncryptor(testKey)
	require.NoError(t, err)
	assert.NotNil(t, enc)

	enc, err = NewCredentialEncryptor("a plain passphrase")
	require.NoError(t, err)
	assert.NotNil(t, enc)
}

func TestDeriveKey(t *testing.T) {
	raw, _ := base64.StdEncoding.DecodeString(testKey)
	assert.Equal(t, raw, deriveKey(testKey), "32-byte base64 keys are used directly")
	assert.Len(t, deriveKey("short"), 32, "passphrases are hashed to 32 bytes")
	assert.Equal(t, deriveKey("same"), deriveKey("same"))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	enc, err := NewCredentialEncryptor(testKey)
	require.NoError(t, err)

	for _, secret := range []string{"p", "s3cret!", "pässwörd with spaces", "with;semi=colons&amps"} {
		sealed, err := enc.Encrypt("ws-1", secret)
		require.NoError(t, err)
		assert.NotEqual(t, secret, sealed)

		opened, err := enc.Decrypt("ws-1", sealed)
		require.NoError(t, err)
		assert.Equal(t, secret, opened)
	}
}

func TestEncrypt_EmptyStaysEmpty(t *testing.T) {
	enc, err := NewCredentialEncryptor(testKey)
	require.NoError(t, err)

	sealed, err := enc.Encrypt("ws-1", "")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	opened, err := enc.Decrypt("ws-1", "")
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestEncrypt_UniqueNonces(t *testing.T) {
	enc, err := NewCredentialEncryptor(testKey)
	require.NoError(t, err)

	a, err := enc.Encrypt("ws-1", "same")
	require.NoError(t, err)
	b, err := enc.Encrypt("ws-1", "same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecrypt_BoundToOwner(t *testing.T) {
	enc, err := NewCredentialEncryptor(testKey)
	require.NoError(t, err)

	sealed, err := enc.Encrypt("ws-1", "s3cret")
	require.NoError(t, err)

	_, err = enc.Decrypt("ws-2", sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc, err := NewCredentialEncryptor(testKey)
	require.NoError(t, err)
	other, err := NewCredentialEncryptor("different passphrase")
	require.NoError(t, err)

	sealed, err := enc.Encrypt("ws-1", "s3cret")
	require.NoError(t, err)

	_, err = other.Decrypt("ws-1", sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_InvalidInput(t *testing.T) {
	enc, err := NewCredentialEncryptor(testKey)
	require.NoError(t, err)

	_, err = enc.Decrypt("ws-1", "not base64!!")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = enc.Decrypt("ws-1", base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
