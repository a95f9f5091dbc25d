package credential

import (
	"context"
	"sort"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-holder/pkg/storage"
)

const (
	namespace = "credentials"
)

// StorageStore keeps credentials in a storage.ServiceStorage namespace, keyed by credential id.
type StorageStore struct {
	db storage.ServiceStorage
}

var _ Store = (*StorageStore)(nil)

func NewStorageStore(db storage.ServiceStorage) (*StorageStore, error) {
	if db == nil {
		return nil, errors.New("db reference is nil")
	}
	return &StorageStore{db: db}, nil
}

// ListIDs returns the stored ids in lexical order, whatever order the backend keeps them in.
func (s *StorageStore) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := s.db.ReadAllKeys(ctx, namespace)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not list credential ids")
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *StorageStore) Get(ctx context.Context, id string) (*StoredCredential, error) {
	credBytes, err := s.db.Read(ctx, namespace, id)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not get credential: %s", id)
	}
	if len(credBytes) == 0 {
		return nil, nil
	}
	var stored StoredCredential
	if err = json.Unmarshal(credBytes, &stored); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling stored credential: %s", id)
	}
	return &stored, nil
}

// Parse parses the stored credential, using its storage id as the credential id.
func (s *StorageStore) Parse(stored StoredCredential) (Parsed, error) {
	return Parse(stored.Raw, stored.Format, stored.ID)
}

// Put stores a credential. The format is detected when empty. Used when importing credentials, never while
// answering a request.
func (s *StorageStore) Put(ctx context.Context, stored StoredCredential) error {
	if stored.ID == "" {
		return errors.New("credential id cannot be empty")
	}
	if stored.Format == "" {
		stored.Format = DetectFormat(stored.Raw)
	}
	credBytes, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrapf(err, "marshalling credential: %s", stored.ID)
	}
	return s.db.Write(ctx, namespace, stored.ID, credBytes)
}

// List returns every stored credential in id order.
func (s *StorageStore) List(ctx context.Context) ([]StoredCredential, error) {
	all, err := s.db.ReadAll(ctx, namespace)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not list credentials")
	}
	stored := make([]StoredCredential, 0, len(all))
	for id, credBytes := range all {
		var c StoredCredential
		if err = json.Unmarshal(credBytes, &c); err != nil {
			return nil, errors.Wrapf(err, "unmarshalling stored credential: %s", id)
		}
		stored = append(stored, c)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].ID < stored[j].ID })
	return stored, nil
}

// Location is where the backing storage keeps the credentials, e.g. a file path or redis address.
func (s *StorageStore) Location() string {
	return s.db.URI()
}

func (s *StorageStore) Delete(ctx context.Context, id string) error {
	if err := s.db.Delete(ctx, namespace, id); err != nil {
		return sdkutil.LoggingErrorMsgf(err, "could not delete credential: %s", id)
	}
	return nil
}

// Clear deletes every stored credential. Clearing an empty store is not an error.
func (s *StorageStore) Clear(ctx context.Context) error {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err = s.db.DeleteNamespace(ctx, namespace); err != nil {
		return sdkutil.LoggingErrorMsg(err, "could not clear credentials")
	}
	return nil
}
