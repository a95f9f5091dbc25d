package testutil

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/TBD54566975/ssi-sdk/crypto"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/pkg/doc/sdjwt/common"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-holder/internal/keyaccess"
)

// NewKeyAccess generates a P-256 key for did, published as did#key-1.
func NewKeyAccess(t *testing.T, did string) *keyaccess.JWKKeyAccess {
	_, privKey, err := crypto.GenerateKeyByKeyType(crypto.P256)
	require.NoError(t, err)
	ka, err := keyaccess.NewJWKKeyAccess(did, did+"#key-1", privKey)
	require.NoError(t, err)
	return ka
}

// Disclosure encodes an SD-JWT disclosure. An empty name makes an array element disclosure.
func Disclosure(t *testing.T, name string, value any) (raw, digest string) {
	arr := []any{uuid.NewString(), name, value}
	if name == "" {
		arr = []any{uuid.NewString(), value}
	}
	b, err := json.Marshal(arr)
	require.NoError(t, err)
	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, DisclosureDigest(t, raw, "sha-256")
}

// DisclosureDigest hashes a raw disclosure with an _sd_alg value such as sha-512.
func DisclosureDigest(t *testing.T, raw, sdAlg string) string {
	hash, err := common.GetCryptoHash(sdAlg)
	require.NoError(t, err)
	digest, err := common.GetHash(hash, raw)
	require.NoError(t, err)
	return digest
}

// SDJWTOptions shapes a test SD-JWT.
type SDJWTOptions struct {
	Typ string
	// Plain claims are visible without disclosure. They are set last and may override _sd_alg.
	Plain map[string]any
	// Disclosed claims are selectively disclosable, one disclosure per top-level claim.
	Disclosed map[string]any
	// Extra disclosures are appended as is, e.g. nested ones built with Disclosure.
	Extra []string
	// ExtraDigests are added to the top-level _sd array.
	ExtraDigests []string
	Expiration   time.Time
	// SDAlg is the _sd_alg of the credential, sha-256 when empty.
	SDAlg string
}

// IssueSDJWT signs an SD-JWT with issuer and returns issuer-jwt~d1~...~dn~.
func IssueSDJWT(t *testing.T, issuer *keyaccess.JWKKeyAccess, opts SDJWTOptions) string {
	token := jwt.New()
	require.NoError(t, token.Set(jwt.IssuerKey, issuer.ID))
	require.NoError(t, token.Set(jwt.IssuedAtKey, time.Now()))
	if !opts.Expiration.IsZero() {
		require.NoError(t, token.Set(jwt.ExpirationKey, opts.Expiration))
	}
	sdAlg := opts.SDAlg
	if sdAlg == "" {
		sdAlg = "sha-256"
	}
	var (
		disclosures []string
		digests     []any
	)
	for name, value := range opts.Disclosed {
		raw, _ := Disclosure(t, name, value)
		disclosures = append(disclosures, raw)
		digests = append(digests, DisclosureDigest(t, raw, sdAlg))
	}
	for _, d := range opts.ExtraDigests {
		digests = append(digests, d)
	}
	disclosures = append(disclosures, opts.Extra...)
	require.NoError(t, token.Set("_sd", digests))
	require.NoError(t, token.Set("_sd_alg", sdAlg))
	for k, v := range opts.Plain {
		require.NoError(t, token.Set(k, v))
	}

	typ := opts.Typ
	if typ == "" {
		typ = "dc+sd-jwt"
	}
	signed, err := issuer.SignJWT(token, typ)
	require.NoError(t, err)

	var sb strings.Builder
	sb.WriteString(signed.String())
	sb.WriteString("~")
	for _, d := range disclosures {
		sb.WriteString(d)
		sb.WriteString("~")
	}
	return sb.String()
}

// IssueJWTVC signs a jwt_vc_json credential about subject.
func IssueJWTVC(t *testing.T, issuer *keyaccess.JWKKeyAccess, id string, subject map[string]any, expiration time.Time) string {
	vc := map[string]any{
		"@context":          []any{"https://www.w3.org/2018/credentials/v1"},
		"id":                id,
		"type":              []any{"VerifiableCredential", "TestCredential"},
		"issuer":            issuer.ID,
		"issuanceDate":      time.Now().UTC().Format(time.RFC3339),
		"credentialSubject": subject,
	}
	token := jwt.New()
	require.NoError(t, token.Set(jwt.IssuerKey, issuer.ID))
	require.NoError(t, token.Set(jwt.JwtIDKey, id))
	require.NoError(t, token.Set(jwt.NotBeforeKey, time.Now()))
	if !expiration.IsZero() {
		require.NoError(t, token.Set(jwt.ExpirationKey, expiration))
	}
	require.NoError(t, token.Set("vc", vc))
	signed, err := issuer.SignJWT(token, "JWT")
	require.NoError(t, err)
	return signed.String()
}
