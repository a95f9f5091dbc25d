package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-holder/internal/encryption"
)

// EncryptedWrapper encrypts values before they reach the wrapped storage. Keys and namespaces stay in the clear.
type EncryptedWrapper struct {
	s         ServiceStorage
	encrypter encryption.Encrypter
	decrypter encryption.Decrypter
}

func NewEncryptedWrapper(s ServiceStorage, encrypter encryption.Encrypter, decrypter encryption.Decrypter) *EncryptedWrapper {
	return &EncryptedWrapper{
		s:         s,
		encrypter: encrypter,
		decrypter: decrypter,
	}
}

const (
	encryptionNamespace = "encryption"
	saltKey             = "salt"
)

// NewPasswordEncryptedWrapper derives the storage key from password. The salt is generated on first use and kept
// unencrypted in the wrapped storage so the same password opens the same store again.
func NewPasswordEncryptedWrapper(ctx context.Context, s ServiceStorage, password string) (*EncryptedWrapper, error) {
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}
	salt, err := s.Read(ctx, encryptionNamespace, saltKey)
	if err != nil {
		return nil, errors.Wrap(err, "reading salt")
	}
	if len(salt) == 0 {
		if salt, err = encryption.GenerateSalt(encryption.Argon2SaltSize); err != nil {
			return nil, errors.Wrap(err, "generating salt")
		}
		if err = s.Write(ctx, encryptionNamespace, saltKey, salt); err != nil {
			return nil, errors.Wrap(err, "writing salt")
		}
	}
	enc, err := encryption.NewPasswordEncrypter(password, salt)
	if err != nil {
		return nil, err
	}
	return NewEncryptedWrapper(s, enc, enc), nil
}

func (e EncryptedWrapper) Init(opts ...Option) error {
	return e.s.Init(opts...)
}

func (e EncryptedWrapper) Type() Type {
	return e.s.Type()
}

func (e EncryptedWrapper) URI() string {
	return e.s.URI()
}

func (e EncryptedWrapper) IsOpen() bool {
	return e.s.IsOpen()
}

func (e EncryptedWrapper) Close() error {
	return e.s.Close()
}

func (e EncryptedWrapper) Write(ctx context.Context, namespace, key string, value []byte) error {
	encryptedData, err := e.encrypter.Encrypt(ctx, value, []byte(key))
	if err != nil {
		return errors.Wrap(err, "encrypting data")
	}
	return e.s.Write(ctx, namespace, key, encryptedData)
}

func (e EncryptedWrapper) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	storedBytes, err := e.s.Read(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	if storedBytes == nil {
		return nil, nil
	}
	decryptedData, err := e.decrypter.Decrypt(ctx, storedBytes, []byte(key))
	if err != nil {
		return nil, errors.Wrap(err, "decrypting data")
	}
	return decryptedData, nil
}

func (e EncryptedWrapper) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	all, err := e.s.ReadAll(ctx, namespace)
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byte, len(all))
	for k, v := range all {
		decrypted, err := e.decrypter.Decrypt(ctx, v, []byte(k))
		if err != nil {
			return nil, errors.Wrapf(err, "decrypting value for key<%s>", k)
		}
		result[k] = decrypted
	}
	return result, nil
}

func (e EncryptedWrapper) ReadAllKeys(ctx context.Context, namespace string) ([]string, error) {
	return e.s.ReadAllKeys(ctx, namespace)
}

func (e EncryptedWrapper) Delete(ctx context.Context, namespace, key string) error {
	return e.s.Delete(ctx, namespace, key)
}

func (e EncryptedWrapper) DeleteNamespace(ctx context.Context, namespace string) error {
	return e.s.DeleteNamespace(ctx, namespace)
}

var _ ServiceStorage = (*EncryptedWrapper)(nil)
