package oid4vp

import (
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticWalletMetadata(t *testing.T) {
	md, err := StaticWalletMetadata()
	require.NoError(t, err)

	assert.True(t, md.VPFormatsSupported.Has(FormatVCDM2SDJWT))
	assert.Equal(t, []string{"ES256"}, md.VPFormatsSupported[FormatVCDM2SDJWT].Alg)
	assert.True(t, md.VPFormatsSupported.Has(FormatSDJWTVC))
	assert.True(t, md.SupportsClientIDScheme(DID))
	assert.True(t, md.SupportsClientIDScheme(RedirectURI))
	assert.False(t, md.SupportsClientIDScheme(X509SANDNS))
	assert.True(t, md.SupportsResponseMode(DirectPost))
	assert.True(t, md.SupportsResponseMode(DirectPostJWT))
	assert.False(t, md.SupportsResponseMode(Fragment))
	assert.True(t, md.SupportsResponseType(ResponseTypeVPToken))
	assert.Contains(t, md.RequestObjectAlgorithms(), jwa.ES256)
}

func TestWalletMetadataBuilder(t *testing.T) {
	b := NewWalletMetadataBuilder()
	require.NoError(t, b.AddFormat(FormatVCDM2SDJWT, FormatDesignation{Alg: []string{"ES256"}}))
	assert.ErrorContains(t, b.AddFormat(FormatVCDM2SDJWT, FormatDesignation{}), "already present")
	assert.Error(t, b.AddFormat("", FormatDesignation{}))

	require.NoError(t, b.AddClientIDScheme(DID))
	assert.ErrorContains(t, b.AddClientIDScheme(DID), "already present")

	// incomplete metadata does not validate
	_, err := b.Build()
	assert.ErrorContains(t, err, "invalid wallet metadata")

	require.NoError(t, b.AddResponseMode(DirectPost))
	assert.Error(t, b.AddResponseMode(DirectPost))
	b.SetResponseTypes(ResponseTypeVPToken)
	b.SetRequestObjectAlgorithms(jwa.ES256)
	md, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"ES256"}, md.RequestObjectSigningAlgValuesSupported)
}

func TestVPTokenPath(t *testing.T) {
	assert.Equal(t, "$", VPTokenPath(0, 1))
	assert.Equal(t, "$[0]", VPTokenPath(0, 2))
	assert.Equal(t, "$[1]", VPTokenPath(1, 2))

	submission := NewPresentationSubmission("pd")
	assert.NotEmpty(t, submission.ID)
	assert.Equal(t, "pd", submission.DefinitionID)
	assert.Empty(t, submission.DescriptorMap)
}
