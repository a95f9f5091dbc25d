package encryption

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20poly1305"
)

func TestArgon2(t *testing.T) {
	salt, err := GenerateSalt(Argon2SaltSize)
	require.NoError(t, err)

	key1, err := Argon2KeyGen("wallet-password", salt, 32)
	assert.NoError(t, err)
	key2, err := Argon2KeyGen("wallet-password", salt, 32)
	assert.NoError(t, err)
	assert.Equal(t, key1, key2)

	_, err = Argon2KeyGen("", salt, 32)
	assert.Error(t, err)
	_, err = Argon2KeyGen("wallet-password", nil, 32)
	assert.Error(t, err)
	_, err = Argon2KeyGen("wallet-password", salt, 0)
	assert.Error(t, err)
}

func TestEncryptDecryptStoredCredential(t *testing.T) {
	key, err := GenerateSalt(chacha20poly1305.KeySize)
	require.NoError(t, err)
	encrypter := NewXChaCha20Poly1305EncrypterWithKeyResolver(func(ctx context.Context) ([]byte, error) {
		return key, nil
	})

	stored := []byte(`{"id":"cred-1","format":"vc+sd-jwt","raw":"eyJhbGciOi..."}`)
	encrypted, err := encrypter.Encrypt(context.Background(), stored, nil)
	assert.NoError(t, err)
	assert.NotEqual(t, stored, encrypted)

	decrypted, err := encrypter.Decrypt(context.Background(), encrypted, nil)
	assert.NoError(t, err)
	assert.Equal(t, stored, decrypted)

	t.Run("tampered ciphertext fails", func(tt *testing.T) {
		tampered := append([]byte{}, encrypted...)
		tampered[len(tampered)-1] ^= 0xff
		_, err := encrypter.Decrypt(context.Background(), tampered, nil)
		assert.Error(tt, err)
	})

	t.Run("associated data must match", func(tt *testing.T) {
		sealed, err := encrypter.Encrypt(context.Background(), stored, []byte("credentials"))
		require.NoError(tt, err)
		_, err = encrypter.Decrypt(context.Background(), sealed, []byte("other"))
		assert.Error(tt, err)
	})

	t.Run("nil ciphertext decrypts to nil", func(tt *testing.T) {
		out, err := encrypter.Decrypt(context.Background(), nil, nil)
		assert.NoError(tt, err)
		assert.Nil(tt, out)
	})
}

func TestPasswordEncrypter(t *testing.T) {
	salt, err := GenerateSalt(Argon2SaltSize)
	require.NoError(t, err)

	e1, err := NewPasswordEncrypter("wallet-password", salt)
	require.NoError(t, err)
	e2, err := NewPasswordEncrypter("wallet-password", salt)
	require.NoError(t, err)

	sealed, err := e1.Encrypt(context.Background(), []byte("open sesame"), nil)
	require.NoError(t, err)
	opened, err := e2.Decrypt(context.Background(), sealed, nil)
	assert.NoError(t, err)
	assert.Equal(t, []byte("open sesame"), opened)

	wrong, err := NewPasswordEncrypter("not-the-password", salt)
	require.NoError(t, err)
	_, err = wrong.Decrypt(context.Background(), sealed, nil)
	assert.Error(t, err)
}

func TestKeyResolverFailure(t *testing.T) {
	encrypter := NewXChaCha20Poly1305EncrypterWithKeyResolver(func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("keychain locked")
	})
	_, err := encrypter.Encrypt(context.Background(), []byte("data"), nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "keychain locked")
}

func TestNoop(t *testing.T) {
	out, err := NoopEncrypter.Encrypt(context.Background(), []byte("plain"), nil)
	assert.NoError(t, err)
	assert.Equal(t, []byte("plain"), out)
	out, err = NoopDecrypter.Decrypt(context.Background(), []byte("plain"), nil)
	assert.NoError(t, err)
	assert.Equal(t, []byte("plain"), out)
}
