package credential_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-holder/internal/keyaccess"
	"github.com/tbd54566975/ssi-holder/pkg/credential"
	"github.com/tbd54566975/ssi-holder/pkg/oid4vp"
	"github.com/tbd54566975/ssi-holder/pkg/testutil"
)

func definition(t *testing.T, raw string) *oid4vp.PresentationDefinition {
	var pd oid4vp.PresentationDefinition
	require.NoError(t, json.Unmarshal([]byte(raw), &pd))
	require.NoError(t, pd.IsValid())
	return &pd
}

const nameDefinition = `{
	"id": "pd-name",
	"input_descriptors": [{
		"id": "pid",
		"format": {"dc+sd-jwt": {}},
		"constraints": {"fields": [{"name": "Name", "path": ["$.name"], "purpose": "greeting"}]}
	}]
}`

func TestSDJWTMatchesAndRequestedFields(t *testing.T) {
	issuer := testutil.NewKeyAccess(t, "did:web:issuer.example")
	raw := testutil.IssueSDJWT(t, issuer, testutil.SDJWTOptions{
		Plain:     map[string]any{"vct": "urn:eu.europa.ec.eudi:pid:1"},
		Disclosed: map[string]any{"name": "Erika", "birthdate": "1964-08-12"},
	})

	parsed, err := credential.Parse(raw, "", "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "cred-1", parsed.ID())
	assert.Equal(t, oid4vp.FormatDCSDJWT, parsed.Format())

	pd := definition(t, nameDefinition)
	require.True(t, credential.Matches(parsed, pd))

	fields := parsed.RequestedFields(pd)
	require.Len(t, fields, 1)
	assert.Equal(t, "Name", fields[0].Name)
	assert.Equal(t, "$.name", fields[0].ResolvedPath)
	assert.Equal(t, "Erika", fields[0].Value)
	assert.True(t, fields[0].Required)
	assert.Equal(t, "greeting", fields[0].Purpose)

	// wrong format
	other := definition(t, strings.Replace(nameDefinition, "dc+sd-jwt", "jwt_vc_json", 1))
	assert.False(t, credential.Matches(parsed, other))
	assert.Empty(t, parsed.RequestedFields(other))
}

func TestFieldFiltersAndOptionalFields(t *testing.T) {
	issuer := testutil.NewKeyAccess(t, "did:web:issuer.example")
	raw := testutil.IssueSDJWT(t, issuer, testutil.SDJWTOptions{
		Typ:       "vc+sd-jwt",
		Disclosed: map[string]any{"age_over_18": true, "nationality": "DE", "age": 42},
	})
	parsed, err := credential.Parse(raw, "", "")
	require.NoError(t, err)
	assert.Equal(t, oid4vp.FormatSDJWTVC, parsed.Format())
	assert.NotEmpty(t, parsed.ID())

	tests := []struct {
		name    string
		field   string
		matches bool
	}{
		{"const", `{"path": ["$.age_over_18"], "filter": {"type": "boolean", "const": true}}`, true},
		{"const mismatch", `{"path": ["$.age_over_18"], "filter": {"const": false}}`, false},
		{"enum", `{"path": ["$.nationality"], "filter": {"type": "string", "enum": ["AT", "DE"]}}`, true},
		{"pattern", `{"path": ["$.nationality"], "filter": {"pattern": "^[A-Z]{2}$"}}`, true},
		{"pattern mismatch", `{"path": ["$.nationality"], "filter": {"pattern": "^[a-z]+$"}}`, false},
		{"integer", `{"path": ["$.age"], "filter": {"type": "integer"}}`, true},
		{"wrong type", `{"path": ["$.age"], "filter": {"type": "string"}}`, false},
		{"minimum", `{"path": ["$.age"], "filter": {"type": "number", "minimum": 18}}`, true},
		{"exclusive maximum", `{"path": ["$.age"], "filter": {"type": "number", "exclusiveMaximum": 42}}`, false},
		{"second path", `{"path": ["$.missing", "$['nationality']"]}`, true},
		{"missing", `{"path": ["$.missing"]}`, false},
		{"missing optional", `{"path": ["$.missing"], "optional": true}`, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pd := definition(t, `{"id": "pd", "input_descriptors": [{"id": "d", "constraints": {"fields": [`+test.field+`]}}]}`)
			assert.Equal(t, test.matches, credential.Matches(parsed, pd))
		})
	}
}

func TestRequestedFieldsDeduplicated(t *testing.T) {
	issuer := testutil.NewKeyAccess(t, "did:web:issuer.example")
	raw := testutil.IssueSDJWT(t, issuer, testutil.SDJWTOptions{
		Disclosed: map[string]any{"name": "Erika", "email": "erika@example.com"},
	})
	parsed, err := credential.Parse(raw, "", "cred")
	require.NoError(t, err)

	pd := definition(t, `{"id": "pd", "input_descriptors": [
		{"id": "a", "constraints": {"fields": [{"path": ["$.name"]}, {"path": ["$.email"], "optional": true, "intent_to_retain": true}]}},
		{"id": "b", "constraints": {"fields": [{"path": ["$.name"]}, {"path": ["$.phone"], "optional": true}]}}
	]}`)
	fields := parsed.RequestedFields(pd)
	require.Len(t, fields, 2)
	assert.Equal(t, "$.name", fields[0].ResolvedPath)
	assert.Equal(t, "$.email", fields[1].ResolvedPath)
	assert.False(t, fields[1].Required)
	assert.True(t, fields[1].IntentToRetain)

	// a descriptor without fields asks for the whole credential
	whole := definition(t, `{"id": "pd", "input_descriptors": [{"id": "any"}]}`)
	fields = parsed.RequestedFields(whole)
	require.Len(t, fields, 1)
	assert.Equal(t, credential.WholeCredentialPath, fields[0].ResolvedPath)
}

func TestSDJWTPresent(t *testing.T) {
	issuer := testutil.NewKeyAccess(t, "did:web:issuer.example")
	holder := testutil.NewKeyAccess(t, "did:jwk:holder")

	streetRaw, streetDigest := testutil.Disclosure(t, "street", "Heidestraße 17")
	addressRaw, _ := testutil.Disclosure(t, "address", map[string]any{"_sd": []any{streetDigest}, "country": "DE"})
	// the address disclosure must be referenced from the payload to count as signed
	raw := testutil.IssueSDJWT(t, issuer, testutil.SDJWTOptions{
		Disclosed:    map[string]any{"name": "Erika", "birthdate": "1964-08-12"},
		Extra:        []string{addressRaw, streetRaw},
		ExtraDigests: []string{testutil.DisclosureDigest(t, addressRaw, "sha-256")},
	})

	parsed, err := credential.Parse(raw, oid4vp.FormatDCSDJWT, "cred")
	require.NoError(t, err)

	pd := definition(t, `{"id": "pd", "input_descriptors": [{"id": "d", "constraints": {"fields": [
		{"path": ["$.name"]}, {"path": ["$.address.street"]}
	]}}]}`)
	fields := parsed.RequestedFields(pd)
	require.Len(t, fields, 2)
	assert.Equal(t, "Heidestraße 17", fields[1].Value)

	t.Run("selected disclosures with key binding", func(t *testing.T) {
		presentation, err := parsed.Present(credential.PresentOptions{
			Audience: "did:web:verifier.example",
			Nonce:    "n-0S6_WzA2Mj",
			Holder:   holder,
			Disclose: fields,
		})
		require.NoError(t, err)
		assert.Equal(t, oid4vp.FormatDCSDJWT, presentation.Format)
		assert.Nil(t, presentation.PathNested)

		parts := strings.Split(presentation.Token, "~")
		// issuer jwt, name, address, street, kb-jwt
		require.Len(t, parts, 5)
		assert.Contains(t, parts, addressRaw)
		assert.Contains(t, parts, streetRaw)
		assert.NotContains(t, presentation.Token, disclosureFor(t, raw, "birthdate"))

		kb := parts[len(parts)-1]
		payload, err := keyaccess.VerifyJWS([]byte(kb), holder.PublicKey(), jwa.ES256)
		require.NoError(t, err)
		var claims map[string]any
		require.NoError(t, json.Unmarshal(payload, &claims))
		assert.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])
		sdHash := testutil.DisclosureDigest(t, strings.TrimSuffix(presentation.Token, kb), "sha-256")
		assert.Equal(t, sdHash, claims["sd_hash"])

		msg, err := jws.Parse([]byte(kb))
		require.NoError(t, err)
		assert.Equal(t, "kb+jwt", msg.Signatures()[0].ProtectedHeaders().Type())
	})

	t.Run("without holder key", func(t *testing.T) {
		presentation, err := parsed.Present(credential.PresentOptions{Disclose: fields[:1]})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(presentation.Token, "~"))
		assert.Len(t, strings.Split(presentation.Token, "~"), 3)
	})
}

func TestSDJWTDigestAlgorithms(t *testing.T) {
	issuer := testutil.NewKeyAccess(t, "did:web:issuer.example")
	holder := testutil.NewKeyAccess(t, "did:jwk:holder")
	pd := definition(t, nameDefinition)

	for _, sdAlg := range []string{"sha-256", "sha-384", "sha-512"} {
		t.Run(sdAlg, func(t *testing.T) {
			raw := testutil.IssueSDJWT(t, issuer, testutil.SDJWTOptions{
				Disclosed: map[string]any{"name": "Erika", "birthdate": "1964-08-12"},
				SDAlg:     sdAlg,
			})
			parsed, err := credential.Parse(raw, "", "cred")
			require.NoError(t, err)
			require.True(t, credential.Matches(parsed, pd))

			presentation, err := parsed.Present(credential.PresentOptions{
				Audience: "did:web:verifier.example",
				Nonce:    "nonce",
				Holder:   holder,
				Disclose: parsed.RequestedFields(pd),
			})
			require.NoError(t, err)

			parts := strings.Split(presentation.Token, "~")
			require.Len(t, parts, 3)
			assert.Equal(t, disclosureFor(t, raw, "name"), parts[1])

			kb := parts[len(parts)-1]
			payload, err := keyaccess.VerifyJWS([]byte(kb), holder.PublicKey(), jwa.ES256)
			require.NoError(t, err)
			var claims map[string]any
			require.NoError(t, json.Unmarshal(payload, &claims))
			want := testutil.DisclosureDigest(t, strings.TrimSuffix(presentation.Token, kb), sdAlg)
			assert.Equal(t, want, claims["sd_hash"])
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		raw := testutil.IssueSDJWT(t, issuer, testutil.SDJWTOptions{
			Disclosed: map[string]any{"name": "Erika"},
			Plain:     map[string]any{"_sd_alg": "md5"},
		})
		_, err := credential.Parse(raw, "", "cred")
		assert.Error(t, err)
	})
}

func TestSDJWTArrayElementDisclosures(t *testing.T) {
	issuer := testutil.NewKeyAccess(t, "did:web:issuer.example")
	deRaw, deDigest := testutil.Disclosure(t, "", "DE")
	raw := testutil.IssueSDJWT(t, issuer, testutil.SDJWTOptions{
		Plain: map[string]any{"nationalities": []any{map[string]any{"...": deDigest}, "AT"}},
		Extra: []string{deRaw},
	})
	parsed, err := credential.Parse(raw, "", "cred")
	require.NoError(t, err)

	pd := definition(t, `{"id": "pd", "input_descriptors": [{"id": "d", "constraints": {"fields": [
		{"path": ["$.nationalities[0]"], "filter": {"const": "DE"}}
	]}}]}`)
	require.True(t, credential.Matches(parsed, pd))

	presentation, err := parsed.Present(credential.PresentOptions{Disclose: parsed.RequestedFields(pd)})
	require.NoError(t, err)
	assert.Contains(t, strings.Split(presentation.Token, "~"), deRaw)
}

// disclosureFor finds the raw disclosure of a top-level claim.
func disclosureFor(t *testing.T, raw, name string) string {
	for _, part := range strings.Split(raw, "~")[1:] {
		decoded, err := base64.RawURLEncoding.DecodeString(part)
		if err != nil {
			continue
		}
		var arr []any
		if json.Unmarshal(decoded, &arr) == nil && len(arr) == 3 && arr[1] == name {
			return part
		}
	}
	t.Fatalf("no disclosure for %s", name)
	return ""
}

func TestSDJWTPresentFailures(t *testing.T) {
	issuer := testutil.NewKeyAccess(t, "did:web:issuer.example")

	t.Run("expired", func(t *testing.T) {
		raw := testutil.IssueSDJWT(t, issuer, testutil.SDJWTOptions{
			Disclosed:  map[string]any{"name": "Erika"},
			Expiration: time.Now().Add(-time.Hour),
		})
		parsed, err := credential.Parse(raw, "", "cred")
		require.NoError(t, err)
		_, err = parsed.Present(credential.PresentOptions{})
		assert.ErrorContains(t, err, "expired")
	})

	t.Run("tampered", func(t *testing.T) {
		raw := testutil.IssueSDJWT(t, issuer, testutil.SDJWTOptions{
			Disclosed: map[string]any{"name": "Erika"},
		})
		injected, _ := testutil.Disclosure(t, "admin", true)
		parsed, err := credential.Parse(raw+injected+"~", "", "cred")
		require.NoError(t, err)
		_, err = parsed.Present(credential.PresentOptions{})
		assert.ErrorContains(t, err, "did not sign")
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := credential.Parse("not-a-jwt~", "", "cred")
		assert.Error(t, err)

		_, err = credential.Parse("", "", "cred")
		assert.ErrorContains(t, err, "empty")

		_, err = credential.Parse("a.b.c", oid4vp.FormatMSOMdoc, "cred")
		assert.ErrorContains(t, err, "unsupported credential format")
	})
}

func TestJWTVC(t *testing.T) {
	issuer := testutil.NewKeyAccess(t, "did:web:issuer.example")
	holder := testutil.NewKeyAccess(t, "did:web:holder.example")
	raw := testutil.IssueJWTVC(t, issuer, "urn:uuid:diploma", map[string]any{
		"id":     holder.ID,
		"degree": map[string]any{"type": "BachelorDegree", "name": "Bachelor of Science"},
	}, time.Time{})

	parsed, err := credential.Parse(raw, "", "")
	require.NoError(t, err)
	assert.Equal(t, oid4vp.FormatJWTVCJSON, parsed.Format())
	assert.Equal(t, "urn:uuid:diploma", parsed.ID())

	pd := definition(t, `{"id": "pd", "format": {"jwt_vc_json": {"alg": ["ES256"]}}, "input_descriptors": [
		{"id": "degree", "constraints": {"fields": [
			{"path": ["$.vc.credentialSubject.degree.type"], "filter": {"const": "BachelorDegree"}},
			{"path": ["$.credentialSubject.degree.name"]}
		]}}
	]}`)
	require.True(t, credential.Matches(parsed, pd))
	fields := parsed.RequestedFields(pd)
	require.Len(t, fields, 2)
	assert.Equal(t, "BachelorDegree", fields[0].Value)

	_, err = parsed.Present(credential.PresentOptions{Audience: "did:web:verifier.example"})
	assert.ErrorContains(t, err, "holder key is required")

	presentation, err := parsed.Present(credential.PresentOptions{
		Audience: "did:web:verifier.example",
		Nonce:    "nonce-1",
		Holder:   holder,
	})
	require.NoError(t, err)
	assert.Equal(t, credential.FormatJWTVPJSON, presentation.Format)
	require.NotNil(t, presentation.PathNested)
	assert.Equal(t, oid4vp.FormatJWTVCJSON, presentation.PathNested.Format)
	assert.Equal(t, "$.vp.verifiableCredential[0]", presentation.PathNested.Path)

	payload, err := keyaccess.VerifyJWS([]byte(presentation.Token), holder.PublicKey(), jwa.ES256)
	require.NoError(t, err)
	var claims map[string]any
	require.NoError(t, json.Unmarshal(payload, &claims))
	assert.Equal(t, "nonce-1", claims["nonce"])
	assert.Equal(t, holder.ID, claims["iss"])
	vp, ok := claims["vp"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{raw}, vp["verifiableCredential"])
}

func TestPathSegments(t *testing.T) {
	assert.Empty(t, credential.PathSegments("$"))
	assert.Equal(t, []string{"address", "street"}, credential.PathSegments("$.address.street"))
	assert.Equal(t, []string{"address", "street"}, credential.PathSegments("$['address']['street']"))
	assert.Equal(t, []string{"nationalities", "0"}, credential.PathSegments("$.nationalities[0]"))
	assert.Equal(t, "$.a.b", credential.NormalizePath(`$["a"]['b']`))
}
