package secrets

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quackback/quackback/pkg/crypto"
)

func testParams() crypto.Argon2Parameters {
	return crypto.Argon2Parameters{
		Memory:    8 * 1024,
		Time:      1,
		Threads:   1,
		KeyLength: 32,
	}
}

func TestCryptoRoundTrip(t *testing.T) {
	c, err := NewCrypto([]byte("master-key"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)

	ciphertext, err := c.Encrypt([]byte(`{"access_token":"xoxb-123"}`))
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)

	plaintext, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, `{"access_token":"xoxb-123"}`, string(plaintext))
}

func TestCryptoDeterministicKeyForSameInputs(t *testing.T) {
	first, err := NewCrypto([]byte("master-key"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)

	second, err := NewCrypto([]byte("master-key"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)

	require.Equal(t, first.Key(), second.Key())
	require.Equal(t, first.Salt(), second.Salt())
}

func TestCryptoCustomSalt(t *testing.T) {
	salt := []byte("0123456789abcdef")
	c, err := NewCrypto([]byte("master-key"), WithSalt(salt), WithArgon2Parameters(testParams()))
	require.NoError(t, err)
	require.Equal(t, salt, c.Salt())

	_, err = NewCrypto([]byte("master-key"), WithSalt([]byte("short")), WithArgon2Parameters(testParams()))
	require.Error(t, err)
}

func TestCryptoRequiresMasterKey(t *testing.T) {
	_, err := NewCrypto(nil)
	require.Error(t, err)
}

func TestDecryptWithDifferentKeyFails(t *testing.T) {
	first, err := NewCrypto([]byte("master-key"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)

	other, err := NewCrypto([]byte("other-key"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)

	ciphertext, err := first.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	require.Error(t, err)
}
