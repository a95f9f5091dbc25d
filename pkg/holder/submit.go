package holder

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tbd54566975/ssi-holder/internal/util"
	"github.com/tbd54566975/ssi-holder/pkg/credential"
	"github.com/tbd54566975/ssi-holder/pkg/oid4vp"
)

const (
	responseJWTTyp      = "oauth-authz-resp+jwt"
	responseJWTLifetime = 10 * time.Minute
)

// authorizationResponse is the payload delivered to the verifier.
type authorizationResponse struct {
	Tokens                 []string
	PresentationSubmission *oid4vp.PresentationSubmission
	State                  string
}

// vpToken is the single presentation, or all of them as an array.
func (ar *authorizationResponse) vpToken() any {
	if len(ar.Tokens) == 1 {
		return ar.Tokens[0]
	}
	return ar.Tokens
}

// vpTokenParam is vpToken as a form parameter.
func (ar *authorizationResponse) vpTokenParam() (string, error) {
	if len(ar.Tokens) == 1 {
		return ar.Tokens[0], nil
	}
	tokensJSON, err := json.Marshal(ar.Tokens)
	if err != nil {
		return "", errors.Wrap(err, "encoding vp_token")
	}
	return string(tokensJSON), nil
}

// SubmitPermissionResponse presents the selected credentials and delivers them to the verifier's response
// endpoint in a single request. It returns the verifier's redirect, or nil when there is none.
func (h *Holder) SubmitPermissionResponse(ctx context.Context, resp *PermissionResponse) (*url.URL, error) {
	ctx, span := h.tracer.Start(ctx, "SubmitPermissionResponse")
	defer span.End()

	redirect, err := h.submit(ctx, resp)
	if err != nil {
		span.SetStatus(codes.Error, string(KindOf(err)))
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("redirect", redirect != nil))
	return redirect, nil
}

func (h *Holder) submit(ctx context.Context, resp *PermissionResponse) (*url.URL, error) {
	if resp == nil || resp.request == nil || len(resp.selections) == 0 {
		return nil, newErrorf(ResponseSubmission, "permission response is empty")
	}
	req := resp.request.request

	ar, err := h.buildAuthorizationResponse(resp)
	if err != nil {
		return nil, newError(ResponseSubmission, err)
	}

	form, err := h.encodeAuthorizationResponse(req, ar)
	if err != nil {
		return nil, newError(ResponseSubmission, err)
	}

	endpoint, err := url.Parse(req.ResponseEndpoint())
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, newErrorf(ResponseSubmission, "invalid response endpoint %q", req.ResponseEndpoint())
	}

	logrus.Debugf("submitting %d presentations to %s", len(resp.selections), util.SanitizeLog(endpoint.String()))
	redirect, err := h.post(ctx, endpoint, form)
	if err != nil {
		return nil, newError(ResponseSubmission, err)
	}
	return redirect, nil
}

// buildAuthorizationResponse presents every selected credential and describes where each one sits in the vp_token.
func (h *Holder) buildAuthorizationResponse(resp *PermissionResponse) (*authorizationResponse, error) {
	req := resp.request.request
	submission := oid4vp.NewPresentationSubmission(resp.request.definition.ID)
	tokens := make([]string, 0, len(resp.selections))
	for i, s := range resp.selections {
		presentation, err := s.credential.Present(credential.PresentOptions{
			Audience: req.ClientID,
			Nonce:    req.Nonce,
			Holder:   h.holderKey,
			Disclose: s.fields,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "presenting credential %s", s.credential.ID())
		}
		tokens = append(tokens, presentation.Token)
		submission.DescriptorMap = append(submission.DescriptorMap, oid4vp.SubmissionDescriptor{
			ID:         s.descriptorID,
			Format:     presentation.Format,
			Path:       oid4vp.VPTokenPath(i, len(resp.selections)),
			PathNested: presentation.PathNested,
		})
	}

	return &authorizationResponse{Tokens: tokens, PresentationSubmission: submission, State: req.State}, nil
}

func (h *Holder) encodeAuthorizationResponse(req *oid4vp.AuthorizationRequest, ar *authorizationResponse) (url.Values, error) {
	submissionJSON, err := json.Marshal(ar.PresentationSubmission)
	if err != nil {
		return nil, errors.Wrap(err, "encoding presentation_submission")
	}

	switch req.EffectiveResponseMode() {
	case oid4vp.DirectPost:
		vpToken, err := ar.vpTokenParam()
		if err != nil {
			return nil, err
		}
		form := url.Values{}
		form.Set("vp_token", vpToken)
		form.Set("presentation_submission", string(submissionJSON))
		if ar.State != "" {
			form.Set("state", ar.State)
		}
		return form, nil
	case oid4vp.DirectPostJWT:
		signed, err := h.signAuthorizationResponse(req, ar)
		if err != nil {
			return nil, err
		}
		return url.Values{"response": []string{signed}}, nil
	}
	return nil, errors.Errorf("response mode %s is not supported", req.EffectiveResponseMode())
}

// signAuthorizationResponse wraps the response parameters in a JWT signed by the holder key.
func (h *Holder) signAuthorizationResponse(req *oid4vp.AuthorizationRequest, ar *authorizationResponse) (string, error) {
	if h.holderKey == nil {
		return "", errors.New("direct_post.jwt requires a holder key")
	}
	now := time.Now()
	builder := jwt.NewBuilder().
		Issuer(h.holderKey.ID).
		Audience([]string{req.ClientID}).
		IssuedAt(now).
		Expiration(now.Add(responseJWTLifetime)).
		Claim("vp_token", ar.vpToken()).
		Claim("presentation_submission", ar.PresentationSubmission)
	if ar.State != "" {
		builder = builder.Claim("state", ar.State)
	}
	t, err := builder.Build()
	if err != nil {
		return "", errors.Wrap(err, "building response JWT")
	}
	signed, err := h.holderKey.SignJWT(t, responseJWTTyp)
	if err != nil {
		return "", errors.Wrap(err, "signing response JWT")
	}
	return signed.String(), nil
}

type responseBody struct {
	RedirectURI string `json:"redirect_uri"`
}

// post delivers the form once. Redirects are reported to the caller, not followed.
func (h *Holder) post(ctx context.Context, endpoint *url.URL, form url.Values) (*url.URL, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "building authorization response request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := *h.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "sending authorization response")
	}
	body, err := util.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	switch {
	case util.Is3xxResponse(resp.StatusCode):
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, nil
		}
		redirect, err := endpoint.Parse(location)
		if err != nil {
			return nil, errors.Wrap(err, "parsing redirect location")
		}
		return redirect, nil
	case util.Is2xxResponse(resp.StatusCode):
		var rb responseBody
		if len(body) == 0 || json.Unmarshal(body, &rb) != nil || rb.RedirectURI == "" {
			return nil, nil
		}
		redirect, err := url.Parse(rb.RedirectURI)
		if err != nil {
			return nil, errors.Wrap(err, "parsing redirect_uri")
		}
		return redirect, nil
	}
	return nil, errors.Errorf("verifier rejected authorization response: status %d: %s", resp.StatusCode, util.SanitizeLog(string(body)))
}
