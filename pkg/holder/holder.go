package holder

import (
	"context"
	"net/http"

	"github.com/TBD54566975/ssi-sdk/did/resolution"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbd54566975/ssi-holder/internal/did"
	"github.com/tbd54566975/ssi-holder/internal/keyaccess"
	"github.com/tbd54566975/ssi-holder/internal/util"
	"github.com/tbd54566975/ssi-holder/pkg/credential"
	"github.com/tbd54566975/ssi-holder/pkg/oid4vp"
	"github.com/tbd54566975/ssi-holder/pkg/trust"
)

const tracerName = "github.com/tbd54566975/ssi-holder/pkg/holder"

// Holder answers OpenID4VP authorization requests with the credentials it holds. It keeps no per-request state
// and may be shared between goroutines.
type Holder struct {
	metadata  *oid4vp.WalletMetadata
	client    *http.Client
	resolver  resolution.Resolver
	policy    trust.Policy
	source    credentialSource
	holderKey *keyaccess.JWKKeyAccess
	tracer    trace.Tracer
}

// New creates a holder whose candidate credentials are everything in store. trustedDIDs seeds an allow list
// of verifiers; when empty every verifier that passes verification is trusted.
func New(ctx context.Context, store credential.Store, trustedDIDs []string, opts ...Option) (*Holder, error) {
	if store == nil {
		return nil, newErrorf(CredentialStoreAccess, "credential store cannot be nil")
	}
	return newHolder(ctx, storeBacked{store: store}, trustedDIDs, opts...)
}

// NewWithCredentials creates a holder that only ever considers creds.
func NewWithCredentials(ctx context.Context, creds []credential.Parsed, trustedDIDs []string, opts ...Option) (*Holder, error) {
	list := make(explicitList, 0, len(creds))
	for _, c := range creds {
		if c != nil {
			list = append(list, c)
		}
	}
	return newHolder(ctx, list, trustedDIDs, opts...)
}

func newHolder(ctx context.Context, source credentialSource, trustedDIDs []string, opts ...Option) (*Holder, error) {
	o := options{resolutionMethods: DefaultResolutionMethods}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := o.httpClient()
	if err != nil {
		return nil, newError(HTTPClientInitialization, err)
	}

	metadata, err := oid4vp.StaticWalletMetadata()
	if err != nil {
		return nil, newError(MetadataInitialization, err)
	}

	resolver := o.resolver
	if resolver == nil {
		sr, err := did.NewServiceResolver(o.resolutionMethods, o.universalResolverURL, client)
		if err != nil {
			return nil, newError(HTTPClientInitialization, err)
		}
		resolver = sr
	}
	if o.resolutionCacheTTL > 0 {
		cr, err := did.NewCachingResolver(resolver, o.resolutionCacheTTL)
		if err != nil {
			return nil, newError(HTTPClientInitialization, err)
		}
		resolver = cr
	}

	policy := o.policy
	if policy == nil {
		if len(trustedDIDs) > 0 {
			policy = trust.NewAllowList(trustedDIDs...)
		} else {
			policy = trust.AllowAll()
		}
	}

	logrus.WithContext(ctx).Debugf("holder created with %s credential source", source.kind())
	return &Holder{
		metadata:  metadata,
		client:    client,
		resolver:  resolver,
		policy:    policy,
		source:    source,
		holderKey: o.holderKey,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// Metadata returns the wallet metadata the holder validates requests against.
func (h *Holder) Metadata() oid4vp.WalletMetadata {
	return *h.metadata
}

// AuthorizationRequest validates the request behind url, verifies the verifier, resolves the presentation
// definition and finds the credentials that satisfy it. Nothing is sent to the verifier.
func (h *Holder) AuthorizationRequest(ctx context.Context, url string) (*PermissionRequest, error) {
	ctx, span := h.tracer.Start(ctx, "AuthorizationRequest")
	defer span.End()

	pr, err := h.authorizationRequest(ctx, url)
	if err != nil {
		span.SetStatus(codes.Error, string(KindOf(err)))
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("client_id", pr.request.ClientID),
		attribute.Int("credentials", len(pr.credentials)),
	)
	return pr, nil
}

func (h *Holder) authorizationRequest(ctx context.Context, url string) (*PermissionRequest, error) {
	logrus.Debugf("validating authorization request: %s", util.SanitizeLog(url))
	req, err := h.validateRequest(ctx, url)
	if err != nil {
		return nil, newError(RequestValidation, err)
	}

	mode := req.EffectiveResponseMode()
	if (mode != oid4vp.DirectPost && mode != oid4vp.DirectPostJWT) || !h.metadata.SupportsResponseMode(mode) {
		return nil, newErrorf(UnsupportedResponseMode, "response mode %s is not supported", mode)
	}

	logrus.Debugf("resolving presentation definition for client<%s>", util.SanitizeLog(req.ClientID))
	def, err := h.resolveDefinition(ctx, req)
	if err != nil {
		return nil, newError(PresentationDefinitionResolution, err)
	}

	logrus.Debugf("searching credentials for presentation definition<%s>", util.SanitizeLog(def.ID))
	matched, err := h.searchCredentials(ctx, def)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("%d credentials match presentation definition<%s>", len(matched), util.SanitizeLog(def.ID))
	return newPermissionRequest(def, matched, req), nil
}
