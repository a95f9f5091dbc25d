package holder

import (
	"context"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-holder/internal/util"
	"github.com/tbd54566975/ssi-holder/pkg/oid4vp"
)

// validateRequest decodes the request behind rawURL and checks it against the wallet metadata before
// establishing trust in the verifier.
func (h *Holder) validateRequest(ctx context.Context, rawURL string) (*oid4vp.AuthorizationRequest, error) {
	ref, err := oid4vp.ParseRequestURL(rawURL)
	if err != nil {
		return nil, err
	}

	var req *oid4vp.AuthorizationRequest
	switch {
	case ref.Request != "":
		req, err = decodeRequestObject(ref.Request)
	case ref.RequestURI != "":
		var requestObject string
		requestObject, err = h.fetchRequestObject(ctx, ref.RequestURI)
		if err != nil {
			return nil, err
		}
		req, err = decodeRequestObject(requestObject)
	default:
		req, err = oid4vp.RequestFromParams(ref.Params)
	}
	if err != nil {
		return nil, err
	}

	if req.ClientID == "" {
		return nil, errors.New("client_id is missing")
	}
	if ref.ClientID != "" && ref.ClientID != req.ClientID {
		return nil, errors.Errorf("client_id %s of the request url does not match client_id %s of the request", ref.ClientID, req.ClientID)
	}
	if req.ResponseType != oid4vp.ResponseTypeVPToken || !h.metadata.SupportsResponseType(req.ResponseType) {
		return nil, errors.Errorf("response_type %q is not supported", req.ResponseType)
	}

	scheme := req.EffectiveClientIDScheme()
	if !h.metadata.SupportsClientIDScheme(scheme) {
		return nil, errors.Wrapf(ErrUnsupportedClientIDScheme, "client id scheme %s", scheme)
	}

	if err = h.verifyRequest(ctx, req, scheme); err != nil {
		return nil, errors.Wrapf(err, "verifying client<%s>", req.ClientID)
	}
	return req, nil
}

// decodeRequestObject reads the claims of a request object. The signature is checked by verifyRequest once the
// client id scheme is known.
func decodeRequestObject(requestObject string) (*oid4vp.AuthorizationRequest, error) {
	msg, err := jws.Parse([]byte(requestObject))
	if err != nil {
		return nil, errors.Wrap(err, "parsing request object")
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, errors.Errorf("request object must carry one signature, got %d", len(sigs))
	}
	return oid4vp.RequestFromClaims(msg.Payload(), requestObject, sigs[0].ProtectedHeaders().Algorithm())
}

func (h *Holder) fetchRequestObject(ctx context.Context, requestURI string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURI, nil)
	if err != nil {
		return "", errors.Wrap(err, "building request_uri request")
	}
	httpReq.Header.Set("Accept", oid4vp.RequestObjectMediaType)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", errors.Wrapf(err, "fetching request object from %s", util.SanitizeLog(requestURI))
	}
	body, err := util.ReadBody(resp)
	if err != nil {
		return "", err
	}
	if !util.Is2xxResponse(resp.StatusCode) {
		return "", errors.Errorf("fetching request object from %s: status %d", util.SanitizeLog(requestURI), resp.StatusCode)
	}
	requestObject := strings.TrimSpace(string(body))
	if requestObject == "" {
		return "", errors.New("request_uri returned an empty request object")
	}
	return requestObject, nil
}
