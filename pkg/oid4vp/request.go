package oid4vp

import (
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/pkg/errors"
)

// ClientIDScheme identifies how the verifier's client_id is authenticated.
type ClientIDScheme string

const (
	PreRegistered       ClientIDScheme = "pre-registered"
	RedirectURI         ClientIDScheme = "redirect_uri"
	EntityID            ClientIDScheme = "entity_id"
	DID                 ClientIDScheme = "did"
	VerifierAttestation ClientIDScheme = "verifier_attestation"
	X509SANDNS          ClientIDScheme = "x509_san_dns"
	X509SANURI          ClientIDScheme = "x509_san_uri"
	X509Hash            ClientIDScheme = "x509_hash"
	// DecentralizedIdentifier is the newer name of the did scheme.
	DecentralizedIdentifier ClientIDScheme = "decentralized_identifier"
)

var prefixedSchemes = []ClientIDScheme{
	RedirectURI, EntityID, VerifierAttestation, X509SANDNS, X509SANURI, X509Hash, DecentralizedIdentifier,
}

// ResponseMode is how the authorization response is delivered.
type ResponseMode string

const (
	DirectPost    ResponseMode = "direct_post"
	DirectPostJWT ResponseMode = "direct_post.jwt"
	Fragment      ResponseMode = "fragment"
	Query         ResponseMode = "query"
)

const (
	ResponseTypeVPToken = "vp_token"

	// RequestObjectMediaType is sent as Accept when dereferencing request_uri.
	RequestObjectMediaType = "application/oauth-authz-req+jwt"
)

// AuthorizationRequest is a decoded OpenID4VP authorization request.
// https://openid.net/specs/openid-4-verifiable-presentations-1_0.html#section-5
type AuthorizationRequest struct {
	ClientID                  string                  `json:"client_id"`
	ClientIDScheme            ClientIDScheme          `json:"client_id_scheme,omitempty"`
	ResponseType              string                  `json:"response_type"`
	ResponseMode              ResponseMode            `json:"response_mode,omitempty"`
	ResponseURI               string                  `json:"response_uri,omitempty"`
	RedirectURI               string                  `json:"redirect_uri,omitempty"`
	Nonce                     string                  `json:"nonce,omitempty"`
	State                     string                  `json:"state,omitempty"`
	Scope                     string                  `json:"scope,omitempty"`
	PresentationDefinition    *PresentationDefinition `json:"presentation_definition,omitempty"`
	PresentationDefinitionURI string                  `json:"presentation_definition_uri,omitempty"`
	ClientMetadata            map[string]any          `json:"client_metadata,omitempty"`

	// RequestObject is the compact JWS the request was decoded from, empty for plain requests.
	RequestObject string `json:"-"`
	// RequestObjectAlg is the alg header of the request object.
	RequestObjectAlg jwa.SignatureAlgorithm `json:"-"`
}

// EffectiveClientIDScheme returns the explicit client_id_scheme, else the scheme prefix of client_id,
// else pre-registered.
func (r AuthorizationRequest) EffectiveClientIDScheme() ClientIDScheme {
	if r.ClientIDScheme != "" {
		return normalizeScheme(r.ClientIDScheme)
	}
	if strings.HasPrefix(r.ClientID, "did:") {
		return DID
	}
	for _, s := range prefixedSchemes {
		if strings.HasPrefix(r.ClientID, string(s)+":") {
			return normalizeScheme(s)
		}
	}
	return PreRegistered
}

func normalizeScheme(s ClientIDScheme) ClientIDScheme {
	if s == DecentralizedIdentifier {
		return DID
	}
	return s
}

// ClientIdentifier is client_id without a scheme prefix, e.g. the DID for did clients or the URL for
// redirect_uri clients.
func (r AuthorizationRequest) ClientIdentifier() string {
	for _, s := range prefixedSchemes {
		if rest, ok := strings.CutPrefix(r.ClientID, string(s)+":"); ok {
			return rest
		}
	}
	return r.ClientID
}

// EffectiveResponseMode defaults to fragment as in OAuth 2.0 for vp_token responses.
func (r AuthorizationRequest) EffectiveResponseMode() ResponseMode {
	if r.ResponseMode == "" {
		return Fragment
	}
	return r.ResponseMode
}

// ResponseEndpoint is where the authorization response is delivered.
func (r AuthorizationRequest) ResponseEndpoint() string {
	switch r.EffectiveResponseMode() {
	case DirectPost, DirectPostJWT:
		return r.ResponseURI
	}
	return r.RedirectURI
}

// IsSigned reports whether the request was carried in a signed request object. An alg of none counts as unsigned.
func (r AuthorizationRequest) IsSigned() bool {
	return r.RequestObject != "" && r.RequestObjectAlg != jwa.NoSignature
}

// RequestReference is what the request URL carries: the request inline as a JWT, a reference to fetch it, or
// the plain parameters.
type RequestReference struct {
	ClientID   string
	Request    string
	RequestURI string
	Params     url.Values
}

// ParseRequestURL decodes a request initiation URL such as openid4vp://?client_id=...&request_uri=...
// Any scheme is accepted as long as the parameters are in the query.
func ParseRequestURL(raw string) (*RequestReference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("request url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing request url")
	}
	params := u.Query()
	if len(params) == 0 {
		return nil, errors.New("request url has no parameters")
	}
	ref := RequestReference{
		ClientID:   params.Get("client_id"),
		Request:    params.Get("request"),
		RequestURI: params.Get("request_uri"),
		Params:     params,
	}
	if ref.Request != "" && ref.RequestURI != "" {
		return nil, errors.New("request and request_uri are mutually exclusive")
	}
	return &ref, nil
}

// RequestFromParams builds a request from plain query parameters. JSON valued parameters
// (presentation_definition, client_metadata) are decoded.
func RequestFromParams(params url.Values) (*AuthorizationRequest, error) {
	req := AuthorizationRequest{
		ClientID:                  params.Get("client_id"),
		ClientIDScheme:            ClientIDScheme(params.Get("client_id_scheme")),
		ResponseType:              params.Get("response_type"),
		ResponseMode:              ResponseMode(params.Get("response_mode")),
		ResponseURI:               params.Get("response_uri"),
		RedirectURI:               params.Get("redirect_uri"),
		Nonce:                     params.Get("nonce"),
		State:                     params.Get("state"),
		Scope:                     params.Get("scope"),
		PresentationDefinitionURI: params.Get("presentation_definition_uri"),
	}
	if pd := params.Get("presentation_definition"); pd != "" {
		var def PresentationDefinition
		if err := json.Unmarshal([]byte(pd), &def); err != nil {
			return nil, errors.Wrap(err, "decoding presentation_definition")
		}
		req.PresentationDefinition = &def
	}
	if md := params.Get("client_metadata"); md != "" {
		if err := json.Unmarshal([]byte(md), &req.ClientMetadata); err != nil {
			return nil, errors.Wrap(err, "decoding client_metadata")
		}
	}
	return &req, nil
}

// RequestFromClaims builds a request from the claims of a request object signed with alg.
func RequestFromClaims(claims []byte, requestObject string, alg jwa.SignatureAlgorithm) (*AuthorizationRequest, error) {
	var req AuthorizationRequest
	if err := json.Unmarshal(claims, &req); err != nil {
		return nil, errors.Wrap(err, "decoding request object claims")
	}
	req.RequestObject = requestObject
	req.RequestObjectAlg = alg
	return &req, nil
}
