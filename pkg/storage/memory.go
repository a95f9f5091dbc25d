package storage

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

func init() {
	if err := RegisterStorage(Memory, func() ServiceStorage { return new(MemoryDB) }); err != nil {
		panic(err)
	}
}

// MemoryDB is an in memory implementation of ServiceStorage that is safe for concurrent use.
type MemoryDB struct {
	maps sync.Map
}

func (f *MemoryDB) Init(...Option) error {
	return nil
}

func (f *MemoryDB) Type() Type {
	return Memory
}

func (f *MemoryDB) URI() string {
	return "memory"
}

func (f *MemoryDB) IsOpen() bool {
	return true
}

func (f *MemoryDB) Close() error {
	return nil
}

func (f *MemoryDB) namespace(namespace string) *sync.Map {
	m, _ := f.maps.LoadOrStore(namespace, new(sync.Map))
	return m.(*sync.Map)
}

func (f *MemoryDB) Write(_ context.Context, namespace, key string, value []byte) error {
	f.namespace(namespace).Store(key, append([]byte{}, value...))
	return nil
}

func (f *MemoryDB) Read(_ context.Context, namespace, key string) ([]byte, error) {
	m, ok := f.maps.Load(namespace)
	if !ok {
		return nil, nil
	}
	v, ok := m.(*sync.Map).Load(key)
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v.([]byte)...), nil
}

func (f *MemoryDB) ReadAll(_ context.Context, namespace string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	m, ok := f.maps.Load(namespace)
	if !ok {
		return result, nil
	}
	m.(*sync.Map).Range(func(k, v any) bool {
		result[k.(string)] = append([]byte{}, v.([]byte)...)
		return true
	})
	return result, nil
}

func (f *MemoryDB) ReadAllKeys(_ context.Context, namespace string) ([]string, error) {
	var keys []string
	m, ok := f.maps.Load(namespace)
	if !ok {
		return keys, nil
	}
	m.(*sync.Map).Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	return keys, nil
}

func (f *MemoryDB) Delete(_ context.Context, namespace, key string) error {
	m, ok := f.maps.Load(namespace)
	if !ok {
		return errors.Errorf("namespace<%s> does not exist", namespace)
	}
	m.(*sync.Map).Delete(key)
	return nil
}

func (f *MemoryDB) DeleteNamespace(_ context.Context, namespace string) error {
	if _, loaded := f.maps.LoadAndDelete(namespace); !loaded {
		return errors.Errorf("could not delete namespace<%s>, namespace does not exist", namespace)
	}
	return nil
}

var _ ServiceStorage = (*MemoryDB)(nil)
