package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

type Type string

const (
	Bolt   Type = "bolt"
	Redis  Type = "redis"
	Memory Type = "memory"
)

type OptionKey string

const (
	BoltDBFilePathOption OptionKey = "boltdb-filepath-option"
	RedisAddressOption   OptionKey = "redis-address-option"
	PasswordOption       OptionKey = "storage-password-option"
	RedisDBOption        OptionKey = "redis-db-option"
)

type Option struct {
	ID     OptionKey `json:"id,omitempty"`
	Option any       `json:"option,omitempty"`
}

// ServiceStorage describes the api for storage independent of DB providers.
// Implementations must be safe for concurrent readers.
type ServiceStorage interface {
	Init(opts ...Option) error
	Type() Type
	URI() string
	IsOpen() bool
	Close() error
	Write(ctx context.Context, namespace, key string, value []byte) error
	Read(ctx context.Context, namespace, key string) ([]byte, error)
	ReadAll(ctx context.Context, namespace string) (map[string][]byte, error)
	ReadAllKeys(ctx context.Context, namespace string) ([]string, error)
	Delete(ctx context.Context, namespace, key string) error
	DeleteNamespace(ctx context.Context, namespace string) error
}

var (
	providersMu sync.RWMutex
	providers   = make(map[Type]func() ServiceStorage)
)

// RegisterStorage makes a storage provider available under its type. Registering the same type twice fails.
func RegisterStorage(t Type, provider func() ServiceStorage) error {
	providersMu.Lock()
	defer providersMu.Unlock()
	if _, ok := providers[t]; ok {
		return errors.Errorf("storage provider<%s> already registered", t)
	}
	providers[t] = provider
	return nil
}

// AvailableStorage lists the registered provider types.
func AvailableStorage() []Type {
	providersMu.RLock()
	defer providersMu.RUnlock()
	types := make([]Type, 0, len(providers))
	for t := range providers {
		types = append(types, t)
	}
	return types
}

// NewStorage instantiates and initializes a storage provider of the given type.
func NewStorage(t Type, opts ...Option) (ServiceStorage, error) {
	providersMu.RLock()
	provider, ok := providers[t]
	providersMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unsupported storage type: %s", t)
	}
	s := provider()
	if err := s.Init(opts...); err != nil {
		return nil, errors.Wrapf(err, "initializing %s storage", t)
	}
	return s, nil
}

// MakeNamespace takes a set of possible namespace values and combines them as a convention
func MakeNamespace(ns ...string) string {
	return strings.Join(ns, "-")
}

func stringOption(opts []Option, id OptionKey) (string, bool, error) {
	for _, opt := range opts {
		if opt.ID != id {
			continue
		}
		s, ok := opt.Option.(string)
		if !ok {
			return "", true, errors.Errorf("option<%s> must be a string", id)
		}
		return s, true, nil
	}
	return "", false, nil
}

func intOption(opts []Option, id OptionKey) (int, bool, error) {
	for _, opt := range opts {
		if opt.ID != id {
			continue
		}
		i, ok := opt.Option.(int)
		if !ok {
			return 0, true, errors.Errorf("option<%s> must be an int", id)
		}
		return i, true, nil
	}
	return 0, false, nil
}
