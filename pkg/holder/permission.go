package holder

import (
	"github.com/tbd54566975/ssi-holder/pkg/credential"
	"github.com/tbd54566975/ssi-holder/pkg/oid4vp"
)

// PermissionRequest is what the user is asked to consent to: the verifier's request and the credentials that
// could answer it.
type PermissionRequest struct {
	definition  *oid4vp.PresentationDefinition
	credentials []credential.Parsed
	request     *oid4vp.AuthorizationRequest
}

func newPermissionRequest(def *oid4vp.PresentationDefinition, matched []credential.Parsed, req *oid4vp.AuthorizationRequest) *PermissionRequest {
	return &PermissionRequest{definition: def, credentials: matched, request: req}
}

func (p *PermissionRequest) Definition() oid4vp.PresentationDefinition {
	return *p.definition
}

// Credentials returns the matching credentials in source order.
func (p *PermissionRequest) Credentials() []credential.Parsed {
	creds := make([]credential.Parsed, len(p.credentials))
	copy(creds, p.credentials)
	return creds
}

func (p *PermissionRequest) Request() oid4vp.AuthorizationRequest {
	return *p.request
}

// ClientID identifies the verifier.
func (p *PermissionRequest) ClientID() string {
	return p.request.ClientID
}

// Purpose is the definition's purpose, else its name.
func (p *PermissionRequest) Purpose() string {
	if p.definition.Purpose != "" {
		return p.definition.Purpose
	}
	return p.definition.Name
}

// RequestedFields lists the claims of c the verifier asked for, ordered and without duplicates.
func (p *PermissionRequest) RequestedFields(c credential.Parsed) []credential.RequestedField {
	return c.RequestedFields(p.definition)
}

type responseOptions struct {
	selectedFields map[string][]string
}

// ResponseOption adjusts a permission response.
type ResponseOption func(*responseOptions)

// WithSelectedFields limits the optional fields disclosed from the credential with the given id to paths.
// Required fields are always disclosed. paths are matched against the requested fields' resolved paths.
func WithSelectedFields(credentialID string, paths ...string) ResponseOption {
	return func(o *responseOptions) {
		selected := append(o.selectedFields[credentialID], paths...)
		if selected == nil {
			selected = []string{}
		}
		o.selectedFields[credentialID] = selected
	}
}

// PermissionResponse is the user's consent: which credentials and fields go to the verifier.
type PermissionResponse struct {
	request    *PermissionRequest
	selections []selection
}

type selection struct {
	credential   credential.Parsed
	descriptorID string
	fields       []credential.RequestedField
}

// Credentials returns the selected credentials in selection order.
func (r *PermissionResponse) Credentials() []credential.Parsed {
	creds := make([]credential.Parsed, 0, len(r.selections))
	for _, s := range r.selections {
		creds = append(creds, s.credential)
	}
	return creds
}

// DisclosedFields returns the fields of the selected credential that will be revealed.
func (r *PermissionResponse) DisclosedFields(credentialID string) []credential.RequestedField {
	for _, s := range r.selections {
		if s.credential.ID() == credentialID {
			return append([]credential.RequestedField(nil), s.fields...)
		}
	}
	return nil
}

// CreatePermissionResponse records the user's selection. selected must be a non-empty subset of Credentials
// without duplicates.
func (p *PermissionRequest) CreatePermissionResponse(selected []credential.Parsed, opts ...ResponseOption) (*PermissionResponse, error) {
	o := responseOptions{selectedFields: make(map[string][]string)}
	for _, opt := range opts {
		opt(&o)
	}

	if len(selected) == 0 {
		return nil, newErrorf(PermissionResponseValidation, "no credentials selected")
	}

	chosen := make(map[int]struct{}, len(selected))
	chosenIDs := make(map[string]struct{}, len(selected))
	selections := make([]selection, 0, len(selected))
	for _, c := range selected {
		if c == nil {
			return nil, newErrorf(PermissionResponseValidation, "selected credential is nil")
		}
		i := p.offered(c)
		if i < 0 {
			return nil, newErrorf(PermissionResponseValidation, "credential %s was not offered for this request", c.ID())
		}
		if _, ok := chosen[i]; ok {
			return nil, newErrorf(PermissionResponseValidation, "credential %s selected more than once", c.ID())
		}
		chosen[i] = struct{}{}

		offered := p.credentials[i]
		id := offered.ID()
		chosenIDs[id] = struct{}{}
		descriptors := offered.CheckPresentationDefinition(p.definition)
		if len(descriptors) == 0 {
			return nil, newErrorf(PermissionResponseValidation, "credential %s no longer satisfies the presentation definition", id)
		}
		fields, err := disclosedFields(offered.RequestedFields(p.definition), o.selectedFields[id], id)
		if err != nil {
			return nil, err
		}
		selections = append(selections, selection{credential: offered, descriptorID: descriptors[0].ID, fields: fields})
	}

	for id := range o.selectedFields {
		if _, ok := chosenIDs[id]; !ok {
			return nil, newErrorf(PermissionResponseValidation, "fields selected for credential %s which is not selected", id)
		}
	}
	return &PermissionResponse{request: p, selections: selections}, nil
}

// offered is the index of c among the offered credentials, or -1. A different object carrying the same id is
// not the offered credential.
func (p *PermissionRequest) offered(c credential.Parsed) int {
	for i, candidate := range p.credentials {
		if sameCredential(candidate, c) {
			return i
		}
	}
	return -1
}

// disclosedFields is every requested field when paths is nil, otherwise the required fields plus those named.
func disclosedFields(requested []credential.RequestedField, paths []string, id string) ([]credential.RequestedField, error) {
	if paths == nil {
		return requested, nil
	}
	byPath := make(map[string]struct{}, len(requested))
	for _, f := range requested {
		byPath[f.ResolvedPath] = struct{}{}
	}
	want := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if _, ok := byPath[path]; !ok {
			return nil, newErrorf(PermissionResponseValidation, "field %s was not requested from credential %s", path, id)
		}
		want[path] = struct{}{}
	}
	fields := make([]credential.RequestedField, 0, len(requested))
	for _, f := range requested {
		if _, ok := want[f.ResolvedPath]; ok || f.Required {
			fields = append(fields, f)
		}
	}
	return fields, nil
}
