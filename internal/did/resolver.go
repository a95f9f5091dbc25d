package did

import (
	"context"
	"fmt"
	"net/http"

	didsdk "github.com/TBD54566975/ssi-sdk/did"
	"github.com/TBD54566975/ssi-sdk/did/key"
	"github.com/TBD54566975/ssi-sdk/did/peer"
	"github.com/TBD54566975/ssi-sdk/did/pkh"
	"github.com/TBD54566975/ssi-sdk/did/resolution"
	"github.com/TBD54566975/ssi-sdk/did/web"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-holder/internal/util"
)

// BuildMultiMethodResolver builds a multi method DID resolver from a list of methods to support resolution for
func BuildMultiMethodResolver(methods []string) (*resolution.MultiMethodResolver, error) {
	if len(methods) == 0 {
		return nil, errors.New("no methods provided")
	}
	resolvers := make([]resolution.Resolver, 0, len(methods))
	for _, method := range methods {
		resolver, err := getKnownResolver(method)
		if err != nil {
			// not every method can be resolved locally
			logrus.WithError(err).Warnf("skipping local resolver for method %s", method)
			continue
		}
		resolvers = append(resolvers, resolver)
	}
	if len(resolvers) == 0 {
		return nil, errors.New("no resolvers created")
	}
	return resolution.NewResolver(resolvers...)
}

func getKnownResolver(method string) (resolution.Resolver, error) {
	switch didsdk.Method(method) {
	case didsdk.KeyMethod:
		return new(key.Resolver), nil
	case didsdk.WebMethod:
		return new(web.Resolver), nil
	case didsdk.PKHMethod:
		return new(pkh.Resolver), nil
	case didsdk.PeerMethod:
		return new(peer.Resolver), nil
	}
	return nil, fmt.Errorf("unsupported method: %s", method)
}

// ServiceResolver resolves DIDs with the local resolvers first and falls back to a universal resolver.
type ServiceResolver struct {
	methods []string
	lr      resolution.Resolver
	ur      *universalResolver
}

var _ resolution.Resolver = (*ServiceResolver)(nil)

// NewServiceResolver builds a resolver from the local methods and the universal resolver url. At least one of
// them must be set. client is used for universal resolution and may be nil.
func NewServiceResolver(localMethods []string, universalResolverURL string, client *http.Client) (*ServiceResolver, error) {
	if len(localMethods) == 0 && universalResolverURL == "" {
		return nil, errors.New("no local methods or universal resolver configured")
	}
	sr := ServiceResolver{methods: localMethods}
	if len(localMethods) > 0 {
		lr, err := BuildMultiMethodResolver(localMethods)
		if err != nil {
			return nil, errors.Wrap(err, "instantiating local DID resolver")
		}
		sr.lr = lr
	}
	if universalResolverURL != "" {
		ur, err := newUniversalResolver(universalResolverURL, client)
		if err != nil {
			return nil, errors.Wrap(err, "instantiating universal resolver")
		}
		sr.ur = ur
	}
	return &sr, nil
}

// Resolve tries the local resolver, then the universal resolver.
func (sr *ServiceResolver) Resolve(ctx context.Context, did string, opts ...resolution.Option) (*resolution.Result, error) {
	method, err := util.GetMethodForDID(did)
	if err != nil {
		return nil, errors.Wrap(err, "getting method DID")
	}

	if sr.lr != nil && sr.supportsLocally(method) {
		locallyResolved, err := sr.lr.Resolve(ctx, did, opts...)
		if err == nil {
			return locallyResolved, nil
		}
		logrus.WithError(err).Warnf("resolving DID<%s> locally", util.SanitizeLog(did))
	}

	if sr.ur != nil {
		universallyResolved, err := sr.ur.Resolve(ctx, did, opts...)
		if err == nil {
			return universallyResolved, nil
		}
		logrus.WithError(err).Warnf("resolving DID<%s> with universal resolver", util.SanitizeLog(did))
	}

	return nil, fmt.Errorf("unable to resolve DID %s", did)
}

func (sr *ServiceResolver) supportsLocally(method didsdk.Method) bool {
	for _, m := range sr.methods {
		if didsdk.Method(m) == method {
			return true
		}
	}
	return false
}

func (sr *ServiceResolver) Methods() []didsdk.Method {
	methods := make([]didsdk.Method, 0, len(sr.methods))
	for _, m := range sr.methods {
		methods = append(methods, didsdk.Method(m))
	}
	if sr.ur != nil {
		methods = append(methods, sr.ur.Methods()...)
	}
	return methods
}
