package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt(`{"user":"admin","password":"secret"}`, "passphrase")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "admin")

	plain, err := Decrypt(sealed, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, `{"user":"admin","password":"secret"}`, plain)
}

func TestDecryptWrongKey(t *testing.T) {
	sealed, err := Encrypt("payload", "key-a")
	require.NoError(t, err)

	_, err = Decrypt(sealed, "key-b")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEmptyKeyRejected(t *testing.T) {
	_, err := Encrypt("payload", "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = Decrypt("payload", "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestDecryptGarbage(t *testing.T) {
	_, err := Decrypt("not base64 !!!", "key")
	assert.ErrorIs(t, err, ErrInvalidCipherText)

	_, err = Decrypt("c2hvcnQ=", "key") // valid base64, too short for a nonce
	assert.ErrorIs(t, err, ErrInvalidCipherText)
}
