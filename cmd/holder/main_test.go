package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-holder/config"
	"github.com/tbd54566975/ssi-holder/pkg/credential"
	"github.com/tbd54566975/ssi-holder/pkg/testutil"
)

func TestMaintainCredentials(t *testing.T) {
	ctx := context.Background()
	issuer := testutil.NewKeyAccess(t, "did:web:issuer.example")
	dir := t.TempDir()
	var files []string
	for _, id := range []string{"urn:uuid:degree", "urn:uuid:license"} {
		raw := testutil.IssueJWTVC(t, issuer, id, map[string]any{"id": "did:example:holder"}, time.Time{})
		path := filepath.Join(dir, filepath.Base(id)+".jwt")
		require.NoError(t, os.WriteFile(path, []byte(raw+"\n"), 0600))
		files = append(files, path)
	}

	for _, test := range testutil.TestDatabases {
		t.Run(test.Name, func(t *testing.T) {
			store, err := credential.NewStorageStore(test.ServiceStorage(t))
			require.NoError(t, err)

			require.NoError(t, maintainCredentials(ctx, store, config.StorageConfig{Import: files, List: true}))
			ids, err := store.ListIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"urn:uuid:degree", "urn:uuid:license"}, ids)

			require.NoError(t, maintainCredentials(ctx, store, config.StorageConfig{Remove: []string{"urn:uuid:degree"}, List: true}))
			ids, err = store.ListIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"urn:uuid:license"}, ids)

			// reset runs before imports
			require.NoError(t, maintainCredentials(ctx, store, config.StorageConfig{Reset: true, Import: files[:1]}))
			ids, err = store.ListIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"urn:uuid:degree"}, ids)

			require.NoError(t, maintainCredentials(ctx, store, config.StorageConfig{Reset: true}))
			ids, err = store.ListIDs(ctx)
			require.NoError(t, err)
			assert.Empty(t, ids)

			err = maintainCredentials(ctx, store, config.StorageConfig{Import: []string{filepath.Join(dir, "missing.jwt")}})
			assert.ErrorContains(t, err, "reading credential")
		})
	}
}
