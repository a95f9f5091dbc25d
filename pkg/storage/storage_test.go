package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-holder/internal/encryption"
	"github.com/tbd54566975/ssi-holder/pkg/storage"
	"github.com/tbd54566975/ssi-holder/pkg/testutil"
)

func TestStorage(t *testing.T) {
	for _, test := range testutil.TestDatabases {
		t.Run(test.Name, func(t *testing.T) {
			db := test.ServiceStorage(t)
			require.True(t, db.IsOpen())
			ctx := context.Background()

			namespace := storage.MakeNamespace("credentials", "test")
			team1 := "red"
			players1 := []byte("[\"Tim\", \"Jim\"]")
			team2 := "blue"
			players2 := []byte("[\"Bob\", \"Rob\"]")

			require.NoError(t, db.Write(ctx, namespace, team1, players1))
			require.NoError(t, db.Write(ctx, namespace, team2, players2))

			got, err := db.Read(ctx, namespace, team1)
			require.NoError(t, err)
			assert.Equal(t, players1, got)

			// missing keys and namespaces read as nil
			missing, err := db.Read(ctx, namespace, "green")
			require.NoError(t, err)
			assert.Nil(t, missing)
			missing, err = db.Read(ctx, "bad", team1)
			require.NoError(t, err)
			assert.Nil(t, missing)

			all, err := db.ReadAll(ctx, namespace)
			require.NoError(t, err)
			assert.Len(t, all, 2)
			assert.Equal(t, players2, all[team2])

			keys, err := db.ReadAllKeys(ctx, namespace)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{team1, team2}, keys)

			require.NoError(t, db.Delete(ctx, namespace, team1))
			got, err = db.Read(ctx, namespace, team1)
			require.NoError(t, err)
			assert.Nil(t, got)

			require.NoError(t, db.DeleteNamespace(ctx, namespace))
			all, err = db.ReadAll(ctx, namespace)
			require.NoError(t, err)
			assert.Empty(t, all)

			assert.Error(t, db.DeleteNamespace(ctx, "missing"))
		})
	}
}

func TestNewStorage(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		_, err := storage.NewStorage("bad")
		assert.ErrorContains(t, err, "unsupported storage type")
	})

	t.Run("redis without address", func(t *testing.T) {
		_, err := storage.NewStorage(storage.Redis)
		assert.ErrorContains(t, err, "address option is required")
	})

	t.Run("option with wrong type", func(t *testing.T) {
		_, err := storage.NewStorage(storage.Bolt, storage.Option{ID: storage.BoltDBFilePathOption, Option: 3})
		assert.ErrorContains(t, err, "must be a string")
	})

	t.Run("duplicate registration", func(t *testing.T) {
		err := storage.RegisterStorage(storage.Memory, func() storage.ServiceStorage { return new(storage.MemoryDB) })
		assert.ErrorContains(t, err, "already registered")
		assert.Contains(t, storage.AvailableStorage(), storage.Memory)
	})
}

func TestEncryptedWrapper(t *testing.T) {
	ctx := context.Background()
	inner, err := storage.NewStorage(storage.Memory)
	require.NoError(t, err)

	key := make([]byte, 32)
	enc := encryption.NewXChaCha20Poly1305EncrypterWithKey(key)
	wrapped := storage.NewEncryptedWrapper(inner, enc, enc)

	require.NoError(t, wrapped.Write(ctx, "ns", "k", []byte("secret")))

	raw, err := inner.Read(ctx, "ns", "k")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	got, err := wrapped.Read(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got)

	// ciphertext is bound to its key
	require.NoError(t, inner.Write(ctx, "ns", "other", raw))
	_, err = wrapped.Read(ctx, "ns", "other")
	assert.Error(t, err)
}

func TestPasswordEncryptedWrapper(t *testing.T) {
	ctx := context.Background()
	inner, err := storage.NewStorage(storage.Memory)
	require.NoError(t, err)

	_, err = storage.NewPasswordEncryptedWrapper(ctx, inner, "")
	assert.ErrorContains(t, err, "password cannot be empty")

	wrapped, err := storage.NewPasswordEncryptedWrapper(ctx, inner, "wallet-password")
	require.NoError(t, err)
	require.NoError(t, wrapped.Write(ctx, "credentials", "pid", []byte("eyJhbGciOiJFUzI1NiJ9")))

	// the persisted salt yields the same key again
	reopened, err := storage.NewPasswordEncryptedWrapper(ctx, inner, "wallet-password")
	require.NoError(t, err)
	got, err := reopened.Read(ctx, "credentials", "pid")
	require.NoError(t, err)
	assert.Equal(t, []byte("eyJhbGciOiJFUzI1NiJ9"), got)

	wrong, err := storage.NewPasswordEncryptedWrapper(ctx, inner, "not-the-password")
	require.NoError(t, err)
	_, err = wrong.Read(ctx, "credentials", "pid")
	assert.Error(t, err)
}
