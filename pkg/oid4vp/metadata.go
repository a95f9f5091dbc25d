package oid4vp

import (
	"github.com/TBD54566975/ssi-sdk/util"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/pkg/errors"
)

// WalletMetadata describes what the wallet supports.
// https://openid.net/specs/openid-4-verifiable-presentations-1_0.html#name-wallet-metadata-authorizati
type WalletMetadata struct {
	VPFormatsSupported                     ClaimFormat      `json:"vp_formats_supported" validate:"required,min=1"`
	ClientIDSchemesSupported               []ClientIDScheme `json:"client_id_schemes_supported" validate:"required,min=1"`
	ResponseModesSupported                 []ResponseMode   `json:"response_modes_supported" validate:"required,min=1"`
	ResponseTypesSupported                 []string         `json:"response_types_supported" validate:"required,min=1"`
	RequestObjectSigningAlgValuesSupported []string         `json:"request_object_signing_alg_values_supported" validate:"required,min=1"`
}

// SupportsClientIDScheme reports whether requests using the scheme are accepted.
func (m *WalletMetadata) SupportsClientIDScheme(scheme ClientIDScheme) bool {
	for _, s := range m.ClientIDSchemesSupported {
		if s == scheme {
			return true
		}
	}
	return false
}

func (m *WalletMetadata) SupportsResponseMode(mode ResponseMode) bool {
	for _, s := range m.ResponseModesSupported {
		if s == mode {
			return true
		}
	}
	return false
}

func (m *WalletMetadata) SupportsResponseType(responseType string) bool {
	for _, s := range m.ResponseTypesSupported {
		if s == responseType {
			return true
		}
	}
	return false
}

// RequestObjectAlgorithms returns the accepted request object signature algorithms.
func (m *WalletMetadata) RequestObjectAlgorithms() []jwa.SignatureAlgorithm {
	algs := make([]jwa.SignatureAlgorithm, 0, len(m.RequestObjectSigningAlgValuesSupported))
	for _, a := range m.RequestObjectSigningAlgValuesSupported {
		algs = append(algs, jwa.SignatureAlgorithm(a))
	}
	return algs
}

// WalletMetadataBuilder assembles a WalletMetadata value. Adding the same format or scheme twice is an error.
type WalletMetadataBuilder struct {
	md WalletMetadata
}

func NewWalletMetadataBuilder() *WalletMetadataBuilder {
	return &WalletMetadataBuilder{md: WalletMetadata{VPFormatsSupported: make(ClaimFormat)}}
}

func (b *WalletMetadataBuilder) AddFormat(format string, designation FormatDesignation) error {
	if format == "" {
		return errors.New("format cannot be empty")
	}
	if b.md.VPFormatsSupported.Has(format) {
		return errors.Errorf("format<%s> already present in wallet metadata", format)
	}
	b.md.VPFormatsSupported[format] = designation
	return nil
}

func (b *WalletMetadataBuilder) AddClientIDScheme(scheme ClientIDScheme) error {
	if b.md.SupportsClientIDScheme(scheme) {
		return errors.Errorf("client id scheme<%s> already present in wallet metadata", scheme)
	}
	b.md.ClientIDSchemesSupported = append(b.md.ClientIDSchemesSupported, scheme)
	return nil
}

func (b *WalletMetadataBuilder) AddResponseMode(mode ResponseMode) error {
	if b.md.SupportsResponseMode(mode) {
		return errors.Errorf("response mode<%s> already present in wallet metadata", mode)
	}
	b.md.ResponseModesSupported = append(b.md.ResponseModesSupported, mode)
	return nil
}

func (b *WalletMetadataBuilder) SetResponseTypes(types ...string) {
	b.md.ResponseTypesSupported = append([]string{}, types...)
}

func (b *WalletMetadataBuilder) SetRequestObjectAlgorithms(algs ...jwa.SignatureAlgorithm) {
	b.md.RequestObjectSigningAlgValuesSupported = make([]string, 0, len(algs))
	for _, a := range algs {
		b.md.RequestObjectSigningAlgValuesSupported = append(b.md.RequestObjectSigningAlgValuesSupported, a.String())
	}
}

// Build validates and returns the metadata. The builder must not be used afterwards.
func (b *WalletMetadataBuilder) Build() (*WalletMetadata, error) {
	if err := util.IsValidStruct(b.md); err != nil {
		return nil, errors.Wrap(err, "invalid wallet metadata")
	}
	md := b.md
	return &md, nil
}

// StaticWalletMetadata is the metadata every holder is built with: JWT VC and SD-JWT VC formats, the VCDM 2.0
// SD-JWT format, the redirect_uri and did client id schemes and the direct_post response modes.
func StaticWalletMetadata() (*WalletMetadata, error) {
	b := NewWalletMetadataBuilder()
	sdJWT := FormatDesignation{
		SDJWTAlgValues: []string{jwa.ES256.String(), jwa.ES384.String(), jwa.EdDSA.String()},
		KBJWTAlgValues: []string{jwa.ES256.String(), jwa.ES384.String(), jwa.EdDSA.String()},
	}
	formats := []struct {
		name        string
		designation FormatDesignation
	}{
		{FormatJWTVCJSON, FormatDesignation{Alg: []string{jwa.ES256.String(), jwa.ES256K.String(), jwa.EdDSA.String()}}},
		{FormatJWTVC, FormatDesignation{Alg: []string{jwa.ES256.String(), jwa.ES256K.String(), jwa.EdDSA.String()}}},
		{FormatSDJWTVC, sdJWT},
		{FormatDCSDJWT, sdJWT},
		{FormatVCDM2SDJWT, FormatDesignation{Alg: []string{jwa.ES256.String()}}},
	}
	for _, f := range formats {
		if err := b.AddFormat(f.name, f.designation); err != nil {
			return nil, err
		}
	}
	for _, s := range []ClientIDScheme{RedirectURI, DID} {
		if err := b.AddClientIDScheme(s); err != nil {
			return nil, err
		}
	}
	for _, m := range []ResponseMode{DirectPost, DirectPostJWT} {
		if err := b.AddResponseMode(m); err != nil {
			return nil, err
		}
	}
	b.SetResponseTypes(ResponseTypeVPToken)
	b.SetRequestObjectAlgorithms(jwa.ES256, jwa.ES256K, jwa.ES384, jwa.EdDSA, jwa.PS256, jwa.RS256)
	return b.Build()
}
