package trust

import (
	"bytes"
	"context"
	"net/http"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbd54566975/ssi-holder/internal/util"
)

// Policy decides whether a verifier identified by clientID may receive credentials. It is consulted after the
// request's signature or redirect binding has been checked.
type Policy interface {
	IsTrusted(ctx context.Context, clientID string) (bool, error)
}

type allowAll struct{}

// AllowAll trusts every verifier whose request passed verification. It is a provisional default and logs a
// warning on each decision.
func AllowAll() Policy {
	return allowAll{}
}

func (allowAll) IsTrusted(_ context.Context, clientID string) (bool, error) {
	logrus.Warnf("trusting verifier<%s> without a trust policy", util.SanitizeLog(clientID))
	return true, nil
}

// AllowList trusts a fixed set of verifier identifiers.
type AllowList struct {
	ids map[string]struct{}
}

func NewAllowList(ids ...string) *AllowList {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &AllowList{ids: set}
}

func (a *AllowList) IsTrusted(_ context.Context, clientID string) (bool, error) {
	_, ok := a.ids[clientID]
	return ok, nil
}

// ExternalService asks a policy endpoint. The request is a POST of {"client_id": ...} and the answer
// {"trusted": bool}.
type ExternalService struct {
	url    string
	client *http.Client
}

type trustRequest struct {
	ClientID string `json:"client_id"`
}

type trustResponse struct {
	Trusted bool `json:"trusted"`
}

// NewExternalService creates a policy backed by the service at url. client may be nil.
func NewExternalService(url string, client *http.Client) (*ExternalService, error) {
	if url == "" {
		return nil, errors.New("trust service url cannot be empty")
	}
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &ExternalService{url: url, client: client}, nil
}

func (e *ExternalService) IsTrusted(ctx context.Context, clientID string) (bool, error) {
	body, err := json.Marshal(trustRequest{ClientID: clientID})
	if err != nil {
		return false, errors.Wrap(err, "marshalling trust request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return false, errors.Wrap(err, "creating trust request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return false, sdkutil.LoggingErrorMsg(err, "calling trust service")
	}
	respBody, err := util.ReadBody(resp)
	if err != nil {
		return false, err
	}
	if !util.Is2xxResponse(resp.StatusCode) {
		return false, sdkutil.LoggingNewErrorf("trust service returned status %d", resp.StatusCode)
	}
	var decision trustResponse
	if err = json.Unmarshal(respBody, &decision); err != nil {
		return false, errors.Wrap(err, "decoding trust service response")
	}
	return decision.Trusted, nil
}
