package holder

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-holder/internal/util"
	"github.com/tbd54566975/ssi-holder/pkg/oid4vp"
)

// resolveDefinition returns the inline presentation definition or fetches it from presentation_definition_uri.
func (h *Holder) resolveDefinition(ctx context.Context, req *oid4vp.AuthorizationRequest) (*oid4vp.PresentationDefinition, error) {
	ctx, span := h.tracer.Start(ctx, "resolveDefinition")
	defer span.End()

	inline := req.PresentationDefinition != nil
	byReference := req.PresentationDefinitionURI != ""
	var def *oid4vp.PresentationDefinition
	switch {
	case inline && byReference:
		return nil, errors.New("presentation_definition and presentation_definition_uri are mutually exclusive")
	case inline:
		def = req.PresentationDefinition
	case byReference:
		fetched, err := h.fetchDefinition(ctx, req.PresentationDefinitionURI)
		if err != nil {
			return nil, err
		}
		def = fetched
	default:
		return nil, errors.New("request carries no presentation definition")
	}

	if err := def.IsValid(); err != nil {
		return nil, errors.Wrap(err, "invalid presentation definition")
	}
	return def, nil
}

func (h *Holder) fetchDefinition(ctx context.Context, uri string) (*oid4vp.PresentationDefinition, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building presentation definition request")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching presentation definition from %s", util.SanitizeLog(uri))
	}
	body, err := util.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	if !util.Is2xxResponse(resp.StatusCode) {
		return nil, errors.Errorf("fetching presentation definition from %s: status %d", util.SanitizeLog(uri), resp.StatusCode)
	}

	var def oid4vp.PresentationDefinition
	if err = json.Unmarshal(body, &def); err != nil {
		return nil, errors.Wrap(err, "decoding presentation definition")
	}
	return &def, nil
}
