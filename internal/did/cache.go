package did

import (
	"context"
	"time"

	didsdk "github.com/TBD54566975/ssi-sdk/did"
	"github.com/TBD54566975/ssi-sdk/did/resolution"
	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
)

const (
	cacheMaxDocuments = 1 << 10
	cacheCounters     = 10 * cacheMaxDocuments
)

// CachingResolver keeps successful resolution results in memory for a fixed time.
type CachingResolver struct {
	resolver resolution.Resolver
	cache    *ristretto.Cache
	ttl      time.Duration
}

var _ resolution.Resolver = (*CachingResolver)(nil)

func NewCachingResolver(resolver resolution.Resolver, ttl time.Duration) (*CachingResolver, error) {
	if resolver == nil {
		return nil, errors.New("resolver cannot be nil")
	}
	if ttl <= 0 {
		return nil, errors.New("cache ttl must be positive")
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheCounters,
		// each document costs 1
		MaxCost:     cacheMaxDocuments,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating resolution cache")
	}
	return &CachingResolver{resolver: resolver, cache: cache, ttl: ttl}, nil
}

func (cr *CachingResolver) Resolve(ctx context.Context, did string, opts ...resolution.Option) (*resolution.Result, error) {
	if cached, ok := cr.cache.Get(did); ok {
		if result, ok := cached.(*resolution.Result); ok {
			return result, nil
		}
	}
	result, err := cr.resolver.Resolve(ctx, did, opts...)
	if err != nil {
		return nil, err
	}
	cr.cache.SetWithTTL(did, result, 1, cr.ttl)
	return result, nil
}

func (cr *CachingResolver) Methods() []didsdk.Method {
	return cr.resolver.Methods()
}

// Wait blocks until pending cache writes are visible.
func (cr *CachingResolver) Wait() {
	cr.cache.Wait()
}

func (cr *CachingResolver) Close() {
	cr.cache.Close()
}
