package holder

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-holder/internal/did"
	"github.com/tbd54566975/ssi-holder/internal/keyaccess"
	"github.com/tbd54566975/ssi-holder/internal/util"
	"github.com/tbd54566975/ssi-holder/pkg/oid4vp"
)

// verifyRequest moves a request from unverified to verified. Any error leaves it rejected.
func (h *Holder) verifyRequest(ctx context.Context, req *oid4vp.AuthorizationRequest, scheme oid4vp.ClientIDScheme) error {
	ctx, span := h.tracer.Start(ctx, "verifyRequest")
	defer span.End()

	switch scheme {
	case oid4vp.DID:
		return h.verifyDIDRequest(ctx, req)
	case oid4vp.RedirectURI:
		return h.verifyRedirectURIRequest(ctx, req)
	}
	return errors.Wrapf(ErrUnsupportedClientIDScheme, "no verification for client id scheme %s", scheme)
}

// verifyDIDRequest checks that the request object is signed by a key of the client's DID document.
func (h *Holder) verifyDIDRequest(ctx context.Context, req *oid4vp.AuthorizationRequest) error {
	if !req.IsSigned() {
		return errors.New("requests from did clients must be signed")
	}
	token := []byte(req.RequestObject)
	headers, err := keyaccess.GetJWTHeaders(token)
	if err != nil {
		return err
	}
	kid := headers.KeyID()
	if kid == "" {
		return errors.New("request object has no kid header")
	}
	clientDID := req.ClientIdentifier()
	if util.DIDFromKID(kid) != clientDID {
		return errors.Errorf("kid %s does not belong to client DID %s", kid, clientDID)
	}

	key, err := did.ResolveVerificationKey(ctx, h.resolver, kid)
	if err != nil {
		return err
	}
	if _, err = keyaccess.VerifyJWS(token, key, h.metadata.RequestObjectAlgorithms()...); err != nil {
		return errors.Wrap(err, "verifying request object")
	}
	logrus.Debugf("request object signature of client<%s> verified with key %s", util.SanitizeLog(clientDID), util.SanitizeLog(kid))
	return h.checkTrust(ctx, clientDID)
}

// verifyRedirectURIRequest checks that the response goes back to the client_id itself.
func (h *Holder) verifyRedirectURIRequest(ctx context.Context, req *oid4vp.AuthorizationRequest) error {
	if req.IsSigned() {
		return errors.New("requests from redirect_uri clients must not be signed")
	}
	clientURI := req.ClientIdentifier()
	if endpoint := req.ResponseEndpoint(); endpoint != clientURI {
		return errors.Errorf("client_id %s does not match response endpoint %s", clientURI, endpoint)
	}
	return h.checkTrust(ctx, clientURI)
}

func (h *Holder) checkTrust(ctx context.Context, clientID string) error {
	trusted, err := h.policy.IsTrusted(ctx, clientID)
	if err != nil {
		return errors.Wrap(err, "evaluating trust policy")
	}
	if !trusted {
		return errors.Wrapf(ErrUntrustedVerifier, "client %s", clientID)
	}
	return nil
}
