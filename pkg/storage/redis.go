package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	PONG                  = "PONG"
	RedisScanBatchSize    = 1000
	NamespaceKeySeparator = "-"
)

func init() {
	if err := RegisterStorage(Redis, func() ServiceStorage { return new(RedisDB) }); err != nil {
		panic(err)
	}
}

type RedisDB struct {
	db *goredislib.Client
}

func (b *RedisDB) Init(opts ...Option) error {
	address, found, err := stringOption(opts, RedisAddressOption)
	if err != nil {
		return err
	}
	if !found || address == "" {
		return errors.New("redis address option is required")
	}
	password, _, err := stringOption(opts, PasswordOption)
	if err != nil {
		return err
	}
	db, _, err := intOption(opts, RedisDBOption)
	if err != nil {
		return err
	}

	client := goredislib.NewClient(&goredislib.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err = redisotel.InstrumentTracing(client); err != nil {
		return errors.Wrap(err, "instrumenting redis tracing")
	}
	b.db = client
	return nil
}

func (b *RedisDB) URI() string {
	return b.db.Options().Addr
}

func (b *RedisDB) IsOpen() bool {
	pong, err := b.db.Ping(context.Background()).Result()
	if err != nil {
		logrus.WithError(err).Error("pinging redis")
		return false
	}
	return pong == PONG
}

func (b *RedisDB) Type() Type {
	return Redis
}

func (b *RedisDB) Close() error {
	return b.db.Close()
}

func (b *RedisDB) Write(ctx context.Context, namespace, key string, value []byte) error {
	return b.db.Set(ctx, getRedisKey(namespace, key), value, 0).Err()
}

func (b *RedisDB) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	res, err := b.db.Get(ctx, getRedisKey(namespace, key)).Bytes()
	if errors.Is(err, goredislib.Nil) {
		logrus.Debugf("key<%s> does not exist in namespace<%s>", key, namespace)
		return nil, nil
	}
	return res, err
}

func (b *RedisDB) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	keys, err := b.scanKeys(ctx, namespace)
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	values, err := b.db.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "reading values")
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// key removed between scan and read
			continue
		}
		result[stripNamespace(namespace, keys[i])] = []byte(s)
	}
	return result, nil
}

func (b *RedisDB) ReadAllKeys(ctx context.Context, namespace string) ([]string, error) {
	keys, err := b.scanKeys(ctx, namespace)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, stripNamespace(namespace, k))
	}
	return out, nil
}

func (b *RedisDB) Delete(ctx context.Context, namespace, key string) error {
	n, err := b.db.Del(ctx, getRedisKey(namespace, key)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Errorf("key<%s> does not exist in namespace<%s>", key, namespace)
	}
	return nil
}

func (b *RedisDB) DeleteNamespace(ctx context.Context, namespace string) error {
	keys, err := b.scanKeys(ctx, namespace)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return errors.Errorf("could not delete namespace<%s>, namespace does not exist", namespace)
	}
	return b.db.Del(ctx, keys...).Err()
}

func (b *RedisDB) scanKeys(ctx context.Context, namespace string) ([]string, error) {
	var (
		cursor uint64
		all    []string
	)
	for {
		keys, next, err := b.db.Scan(ctx, cursor, namespace+NamespaceKeySeparator+"*", RedisScanBatchSize).Result()
		if err != nil {
			return nil, errors.Wrap(err, "scanning keys")
		}
		all = append(all, keys...)
		if next == 0 {
			return all, nil
		}
		cursor = next
	}
}

func getRedisKey(namespace, key string) string {
	return namespace + NamespaceKeySeparator + key
}

func stripNamespace(namespace, key string) string {
	return strings.TrimPrefix(key, namespace+NamespaceKeySeparator)
}

var _ ServiceStorage = (*RedisDB)(nil)
