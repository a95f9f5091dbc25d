package encryption

import (
	"context"
	"crypto/rand"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// Argon2SaltSize represents the recommended salt size for argon2, which is 16 bytes
	// https://tools.ietf.org/id/draft-irtf-cfrg-argon2-05.html#rfc.section.3.1
	Argon2SaltSize = 16

	// default parameters from https://pkg.go.dev/golang.org/x/crypto/argon2
	argon2Time   = 1
	argon2Memory = 64 * 1024
	threads      = 4
)

// Encrypter the interface for any encrypter implementation.
type Encrypter interface {
	Encrypt(ctx context.Context, plaintext, contextData []byte) ([]byte, error)
}

// Decrypter is the interface for any decrypter. The second parameter is treated as associated data.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext, contextInfo []byte) ([]byte, error)
}

// KeyResolver returns the 32 byte symmetric key used for credential storage.
type KeyResolver func(ctx context.Context) ([]byte, error)

// XChaCha20Poly1305Encrypter seals stored credentials with a key obtained from its KeyResolver.
type XChaCha20Poly1305Encrypter struct {
	keyResolver KeyResolver
}

func NewXChaCha20Poly1305EncrypterWithKey(key []byte) *XChaCha20Poly1305Encrypter {
	return &XChaCha20Poly1305Encrypter{func(ctx context.Context) ([]byte, error) {
		return key, nil
	}}
}

func NewXChaCha20Poly1305EncrypterWithKeyResolver(resolver KeyResolver) *XChaCha20Poly1305Encrypter {
	return &XChaCha20Poly1305Encrypter{resolver}
}

// NewPasswordEncrypter derives the storage key from a wallet password and salt using argon2id.
func NewPasswordEncrypter(password string, salt []byte) (*XChaCha20Poly1305Encrypter, error) {
	key, err := Argon2KeyGen(password, salt, chacha20poly1305.KeySize)
	if err != nil {
		return nil, errors.Wrap(err, "deriving storage key")
	}
	return NewXChaCha20Poly1305EncrypterWithKey(key), nil
}

func (k XChaCha20Poly1305Encrypter) Encrypt(ctx context.Context, plaintext, contextData []byte) ([]byte, error) {
	key, err := k.keyResolver(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolving key")
	}
	encrypted, err := XChaCha20Poly1305Encrypt(key, plaintext, contextData)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not encrypt value")
	}
	return encrypted, nil
}

func (k XChaCha20Poly1305Encrypter) Decrypt(ctx context.Context, ciphertext, contextInfo []byte) ([]byte, error) {
	if ciphertext == nil {
		return nil, nil
	}

	key, err := k.keyResolver(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolving key")
	}
	decrypted, err := XChaCha20Poly1305Decrypt(key, ciphertext, contextInfo)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not decrypt value")
	}
	return decrypted, nil
}

var _ Decrypter = (*XChaCha20Poly1305Encrypter)(nil)
var _ Encrypter = (*XChaCha20Poly1305Encrypter)(nil)

type noopDecrypter struct{}

func (n noopDecrypter) Decrypt(_ context.Context, ciphertext, _ []byte) ([]byte, error) {
	return ciphertext, nil
}

type noopEncrypter struct{}

func (n noopEncrypter) Encrypt(_ context.Context, plaintext, _ []byte) ([]byte, error) {
	return plaintext, nil
}

var (
	NoopDecrypter Decrypter = noopDecrypter{}
	NoopEncrypter Encrypter = noopEncrypter{}
)

// XChaCha20Poly1305Encrypt takes a 32 byte key and uses XChaCha20-Poly1305 to encrypt a piece of data.
// The random nonce is prepended to the ciphertext.
func XChaCha20Poly1305Encrypt(key, data, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "creating aead with provided key")
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err = rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "generating nonce for encryption")
	}

	return aead.Seal(nonce, nonce, data, additionalData), nil
}

// XChaCha20Poly1305Decrypt takes a 32 byte key and uses XChaCha20-Poly1305 to decrypt a piece of data
func XChaCha20Poly1305Decrypt(key, data, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "creating aead with provided key")
	}

	if len(data) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short; could not decrypt data")
	}

	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	decrypted, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, errors.Wrap(err, "decrypting data")
	}
	return decrypted, nil
}

// Argon2KeyGen derives a key of keyLen bytes from a password using Argon2id.
func Argon2KeyGen(password string, salt []byte, keyLen int) ([]byte, error) {
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, errors.New("salt cannot be empty")
	}
	if keyLen <= 0 {
		return nil, errors.New("invalid key length")
	}
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, threads, uint32(keyLen)), nil
}

// GenerateSalt generates a random salt value for a given size
func GenerateSalt(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.New("invalid size")
	}
	salt := make([]byte, size)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}
