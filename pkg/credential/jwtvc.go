package credential

import (
	"time"

	"github.com/TBD54566975/ssi-sdk/credential"
	"github.com/TBD54566975/ssi-sdk/credential/integrity"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-holder/pkg/oid4vp"
)

const (
	FormatJWTVPJSON = "jwt_vp_json"
	FormatJWTVP     = "jwt_vp"

	credentialsContext   = "https://www.w3.org/2018/credentials/v1"
	presentationType     = "VerifiablePresentation"
	presentationLifetime = 10 * time.Minute
	nestedCredentialPath = "$.vp.verifiableCredential[0]"
)

// JWTVC is a W3C verifiable credential secured as a JWT (jwt_vc_json, jwt_vc).
// Claims are the JWT payload with the members of the vc claim lifted to the top level, so both
// $.vc.credentialSubject and $.credentialSubject resolve.
type JWTVC struct {
	claimSet
	id         string
	raw        string
	expiration time.Time
	vc         *credential.VerifiableCredential
}

var _ Parsed = (*JWTVC)(nil)

// ParseJWTVC parses a JWT credential without verifying its signature. The holder accepted it at issuance.
func ParseJWTVC(raw, format, id string) (*JWTVC, error) {
	if format == "" {
		format = oid4vp.FormatJWTVCJSON
	}
	_, token, vc, err := integrity.ParseVerifiableCredentialFromJWT(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing JWT credential")
	}
	msg, err := jws.Parse([]byte(raw))
	if err != nil {
		return nil, errors.Wrap(err, "parsing JWS")
	}
	claims := make(map[string]any)
	if err = json.Unmarshal(msg.Payload(), &claims); err != nil {
		return nil, errors.Wrap(err, "decoding JWT claims")
	}
	if inner, ok := claims["vc"].(map[string]any); ok {
		for k, v := range inner {
			if _, exists := claims[k]; !exists {
				claims[k] = v
			}
		}
	}

	if id == "" {
		id = vc.ID
	}
	if id == "" {
		id = token.JwtID()
	}
	if id == "" {
		id = "urn:uuid:" + uuid.NewString()
	}
	expiration := token.Expiration()
	if expiration.IsZero() && vc.ExpirationDate != "" {
		if t, parseErr := time.Parse(time.RFC3339, vc.ExpirationDate); parseErr == nil {
			expiration = t
		}
	}
	return &JWTVC{
		claimSet:   claimSet{format: format, claims: claims},
		id:         id,
		raw:        raw,
		expiration: expiration,
		vc:         vc,
	}, nil
}

func (c *JWTVC) ID() string {
	return c.id
}

func (c *JWTVC) Format() string {
	return c.format
}

// Credential returns the decoded verifiable credential.
func (c *JWTVC) Credential() *credential.VerifiableCredential {
	return c.vc
}

// Present wraps the credential in a verifiable presentation JWT signed by the holder. JWT credentials have no
// selective disclosure so Disclose is ignored.
func (c *JWTVC) Present(opts PresentOptions) (*Presentation, error) {
	now := time.Now()
	if !c.expiration.IsZero() && now.After(c.expiration) {
		return nil, errors.Errorf("credential<%s> expired at %s", c.id, c.expiration.Format(time.RFC3339))
	}
	if opts.Holder == nil {
		return nil, errors.Errorf("a holder key is required to present credential<%s>", c.id)
	}

	vp := credential.VerifiablePresentation{
		Context:              []string{credentialsContext},
		ID:                   "urn:uuid:" + uuid.NewString(),
		Type:                 []string{presentationType},
		Holder:               opts.Holder.ID,
		VerifiableCredential: []any{c.raw},
	}
	vpJSON, err := json.Marshal(vp)
	if err != nil {
		return nil, errors.Wrap(err, "encoding presentation")
	}
	var vpClaim map[string]any
	if err = json.Unmarshal(vpJSON, &vpClaim); err != nil {
		return nil, errors.Wrap(err, "decoding presentation")
	}

	token, err := jwt.NewBuilder().
		Issuer(opts.Holder.ID).
		Audience([]string{opts.Audience}).
		JwtID(vp.ID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(presentationLifetime)).
		Claim("nonce", opts.Nonce).
		Claim("vp", vpClaim).
		Build()
	if err != nil {
		return nil, errors.Wrap(err, "building presentation JWT")
	}
	signed, err := opts.Holder.SignJWT(token, "JWT")
	if err != nil {
		return nil, errors.Wrap(err, "signing presentation")
	}

	vpFormat := FormatJWTVPJSON
	if c.format == oid4vp.FormatJWTVC {
		vpFormat = FormatJWTVP
	}
	return &Presentation{
		Token:  signed.String(),
		Format: vpFormat,
		PathNested: &oid4vp.SubmissionDescriptor{
			Format: c.format,
			Path:   nestedCredentialPath,
		},
	}, nil
}
