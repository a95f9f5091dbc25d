package oid4vp

import (
	"github.com/TBD54566975/ssi-sdk/util"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Credential format designations, as used in presentation definition "format" objects and vp_formats.
const (
	FormatJWTVCJSON  = "jwt_vc_json"
	FormatJWTVC      = "jwt_vc"
	FormatSDJWTVC    = "vc+sd-jwt"
	FormatDCSDJWT    = "dc+sd-jwt"
	FormatVCDM2SDJWT = "vcdm2_sd_jwt"
	FormatMSOMdoc    = "mso_mdoc"
	FormatLDPVC      = "ldp_vc"
)

// FormatDesignation lists the algorithms accepted for one credential format.
type FormatDesignation struct {
	Alg            []string `json:"alg,omitempty"`
	ProofType      []string `json:"proof_type,omitempty"`
	SDJWTAlgValues []string `json:"sd-jwt_alg_values,omitempty"`
	KBJWTAlgValues []string `json:"kb-jwt_alg_values,omitempty"`
}

// ClaimFormat maps a format designation (e.g. jwt_vc_json) to its algorithm constraints.
type ClaimFormat map[string]FormatDesignation

// Has reports whether the format is listed.
func (c ClaimFormat) Has(format string) bool {
	_, ok := c[format]
	return ok
}

// https://identity.foundation/presentation-exchange/#presentation-definition
type PresentationDefinition struct {
	ID               string            `json:"id" validate:"required"`
	Name             string            `json:"name,omitempty"`
	Purpose          string            `json:"purpose,omitempty"`
	Format           ClaimFormat       `json:"format,omitempty"`
	InputDescriptors []InputDescriptor `json:"input_descriptors" validate:"required,min=1,dive"`
}

type InputDescriptor struct {
	ID          string      `json:"id" validate:"required"`
	Name        string      `json:"name,omitempty"`
	Purpose     string      `json:"purpose,omitempty"`
	Format      ClaimFormat `json:"format,omitempty"`
	Constraints Constraints `json:"constraints"`
}

type Constraints struct {
	// required or preferred
	LimitDisclosure string  `json:"limit_disclosure,omitempty"`
	Fields          []Field `json:"fields,omitempty" validate:"dive"`
}

type Field struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name,omitempty"`
	Path           []string `json:"path" validate:"required,min=1"`
	Purpose        string   `json:"purpose,omitempty"`
	Optional       bool     `json:"optional,omitempty"`
	IntentToRetain bool     `json:"intent_to_retain,omitempty"`
	Filter         Filter   `json:"filter,omitempty"`
}

// Filter is a JSON Schema evaluated against a resolved field value.
type Filter map[string]any

// IsValid checks the structural requirements of a presentation definition and that descriptor ids are unique.
func (pd *PresentationDefinition) IsValid() error {
	if pd == nil {
		return errors.New("presentation definition is empty")
	}
	if err := util.IsValidStruct(*pd); err != nil {
		return errors.Wrap(err, "invalid presentation definition")
	}
	seen := make(map[string]struct{}, len(pd.InputDescriptors))
	for _, d := range pd.InputDescriptors {
		if _, ok := seen[d.ID]; ok {
			return errors.Errorf("duplicate input descriptor id<%s>", d.ID)
		}
		seen[d.ID] = struct{}{}
		for _, f := range d.Constraints.Fields {
			if len(f.Filter) == 0 {
				continue
			}
			if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(map[string]any(f.Filter))); err != nil {
				return errors.Wrapf(err, "invalid filter in input descriptor<%s>", d.ID)
			}
		}
	}
	return nil
}

// AcceptedFormats returns the descriptor's formats, falling back to the definition's. A nil result means any format.
func (pd *PresentationDefinition) AcceptedFormats(d InputDescriptor) ClaimFormat {
	if len(d.Format) > 0 {
		return d.Format
	}
	if len(pd.Format) > 0 {
		return pd.Format
	}
	return nil
}

// Accepts reports whether a credential of the given format may satisfy the descriptor.
func (pd *PresentationDefinition) Accepts(d InputDescriptor, format string) bool {
	formats := pd.AcceptedFormats(d)
	return formats == nil || formats.Has(format)
}
