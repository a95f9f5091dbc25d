package did

import (
	"context"
	"net/http"
	"strings"

	didsdk "github.com/TBD54566975/ssi-sdk/did"
	"github.com/TBD54566975/ssi-sdk/did/resolution"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbd54566975/ssi-holder/internal/util"
)

// universalResolver calls a universal resolver endpoint to resolve any DID according to
// https://github.com/decentralized-identity/universal-resolver.
type universalResolver struct {
	client *http.Client
	url    string
}

var _ resolution.Resolver = (*universalResolver)(nil)

func newUniversalResolver(url string, client *http.Client) (*universalResolver, error) {
	if url == "" {
		return nil, errors.New("universal resolver url cannot be empty")
	}
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &universalResolver{
		client: client,
		url:    strings.TrimSuffix(url, "/"),
	}, nil
}

// Resolve does a GET on <url>/1.0/identifiers/<did>.
func (ur *universalResolver) Resolve(ctx context.Context, did string, _ ...resolution.Option) (*resolution.Result, error) {
	respBody, err := ur.get(ctx, ur.url+"/1.0/identifiers/"+did)
	if err != nil {
		return nil, err
	}
	var result resolution.Result
	if err = json.Unmarshal(respBody, &result); err != nil {
		return nil, errors.Wrap(err, "unmarshalling JSON")
	}
	return &result, nil
}

// Methods returns the methods that this resolver supports
// as per https://github.com/decentralized-identity/universal-resolver/blob/main/swagger/api.yml#L121
func (ur *universalResolver) Methods() []didsdk.Method {
	respBody, err := ur.get(context.Background(), ur.url+"/1.0/methods")
	if err != nil {
		logrus.WithError(err).Error("getting universal resolver methods")
		return nil
	}
	var methods []didsdk.Method
	if err = json.Unmarshal(respBody, &methods); err != nil {
		logrus.WithError(err).Error("unmarshalling universal resolver methods")
		return nil
	}
	return methods
}

func (ur *universalResolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	resp, err := ur.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "performing http get")
	}
	body, err := util.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	if !util.Is2xxResponse(resp.StatusCode) {
		return nil, errors.Errorf("universal resolver returned status %d", resp.StatusCode)
	}
	return body, nil
}
