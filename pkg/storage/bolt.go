package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	DBFile = "ssi-holder.db"
)

func init() {
	if err := RegisterStorage(Bolt, func() ServiceStorage { return new(BoltDB) }); err != nil {
		panic(err)
	}
}

type BoltDB struct {
	db *bolt.DB
}

// Init instantiates a file-based storage instance for Bolt https://github.com/etcd-io/bbolt
func (b *BoltDB) Init(opts ...Option) error {
	path, found, err := stringOption(opts, BoltDBFilePathOption)
	if err != nil {
		return err
	}
	if !found || path == "" {
		path = DBFile
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return errors.Wrapf(err, "opening bolt db<%s>", path)
	}
	b.db = db
	return nil
}

func (b *BoltDB) Type() Type {
	return Bolt
}

func (b *BoltDB) URI() string {
	return b.db.Path()
}

func (b *BoltDB) IsOpen() bool {
	if b.db == nil {
		return false
	}
	return b.db.Path() != ""
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

func (b *BoltDB) Write(_ context.Context, namespace string, key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
}

func (b *BoltDB) Read(_ context.Context, namespace, key string) ([]byte, error) {
	var result []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			logrus.Debugf("namespace<%s> does not exist", namespace)
			return nil
		}
		// values are only valid for the life of the transaction
		if v := bucket.Get([]byte(key)); v != nil {
			result = append([]byte{}, v...)
		}
		return nil
	})
	return result, err
}

func (b *BoltDB) ReadAll(_ context.Context, namespace string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			logrus.Debugf("namespace<%s> does not exist", namespace)
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			result[string(k)] = append([]byte{}, v...)
			return nil
		})
	})
	return result, err
}

func (b *BoltDB) ReadAllKeys(_ context.Context, namespace string) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			logrus.Debugf("namespace<%s> does not exist", namespace)
			return nil
		}
		cursor := bucket.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

func (b *BoltDB) Delete(_ context.Context, namespace, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return errors.Errorf("namespace<%s> does not exist", namespace)
		}
		return bucket.Delete([]byte(key))
	})
}

func (b *BoltDB) DeleteNamespace(_ context.Context, namespace string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(namespace)); err != nil {
			return errors.Wrapf(err, "could not delete namespace<%s>", namespace)
		}
		return nil
	})
}

var _ ServiceStorage = (*BoltDB)(nil)
