package credential

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-holder/internal/keyaccess"
	"github.com/tbd54566975/ssi-holder/pkg/oid4vp"
)

// Parsed is a credential held by the wallet in a form that can be tested against a presentation definition
// and turned into a presentation. There is one implementation per credential format.
type Parsed interface {
	// ID identifies the credential within the holder, e.g. its storage key.
	ID() string
	// Format is the presentation exchange format designation of the credential.
	Format() string
	// CheckPresentationDefinition returns the input descriptors the credential satisfies, in definition order.
	CheckPresentationDefinition(def *oid4vp.PresentationDefinition) []oid4vp.InputDescriptor
	// RequestedFields describes the claims the definition asks to see. It is empty when nothing matches.
	RequestedFields(def *oid4vp.PresentationDefinition) []RequestedField
	// Present builds the presentation for a verifier. It fails for expired or tampered credentials.
	Present(opts PresentOptions) (*Presentation, error)
}

// RequestedField is one claim a verifier asked for, resolved against a credential.
type RequestedField struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name,omitempty"`
	Path           []string `json:"path"`
	Purpose        string   `json:"purpose,omitempty"`
	Required       bool     `json:"required"`
	IntentToRetain bool     `json:"intent_to_retain"`
	// ResolvedPath is the entry of Path that resolved against the credential.
	ResolvedPath string `json:"resolved_path"`
	// Value is the resolved claim rendered for display.
	Value string `json:"value"`
}

// PresentOptions carries what a presentation is bound to.
type PresentOptions struct {
	Audience string
	Nonce    string
	// Holder signs the presentation or key binding. Optional for SD-JWT credentials.
	Holder *keyaccess.JWKKeyAccess
	// Disclose lists the fields to reveal. Formats without selective disclosure reveal everything.
	Disclose []RequestedField
}

// Presentation is one element of a vp_token.
type Presentation struct {
	Token string
	// Format of the presentation as written to the submission descriptor.
	Format string
	// PathNested locates the credential inside the presentation, when it is wrapped.
	PathNested *oid4vp.SubmissionDescriptor
}

// Matches reports whether the credential satisfies at least one input descriptor.
func Matches(c Parsed, def *oid4vp.PresentationDefinition) bool {
	return len(c.CheckPresentationDefinition(def)) > 0
}

// StoredCredential is the storage representation of a credential.
type StoredCredential struct {
	ID     string `json:"id"`
	Format string `json:"format,omitempty"`
	Raw    string `json:"raw"`
}

// Store is the read side of the holder's credential storage.
type Store interface {
	ListIDs(ctx context.Context) ([]string, error)
	// Get returns nil when no credential is stored under id.
	Get(ctx context.Context, id string) (*StoredCredential, error)
	Parse(stored StoredCredential) (Parsed, error)
}

// Parse parses a raw credential. When format is empty it is detected from the encoding.
// id overrides the identifier taken from the credential itself.
func Parse(raw, format, id string) (Parsed, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("credential is empty")
	}
	if format == "" {
		format = DetectFormat(raw)
	}
	switch format {
	case oid4vp.FormatJWTVCJSON, oid4vp.FormatJWTVC:
		return ParseJWTVC(raw, format, id)
	case oid4vp.FormatSDJWTVC, oid4vp.FormatDCSDJWT, oid4vp.FormatVCDM2SDJWT:
		return ParseSDJWT(raw, format, id)
	}
	return nil, errors.Errorf("unsupported credential format: %s", format)
}

// DetectFormat guesses the format of a compact credential.
func DetectFormat(raw string) string {
	if strings.Contains(raw, "~") {
		return detectSDJWTFormat(raw)
	}
	return oid4vp.FormatJWTVCJSON
}
