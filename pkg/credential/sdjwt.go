package credential

import (
	"crypto"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/pkg/doc/sdjwt/common"
	sdjwtholder "github.com/hyperledger/aries-framework-go/pkg/doc/sdjwt/holder"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-holder/pkg/oid4vp"
)

const (
	arrayDigest   = "..."
	defaultSDAlg  = "sha-256"
	keyBindingTyp = "kb+jwt"
)

// disclosure is one salted claim of an SD-JWT, https://www.ietf.org/archive/id/draft-ietf-oauth-selective-disclosure-jwt-07.html#section-5.2
type disclosure struct {
	raw    string
	digest string
	name   string
	value  any
	// path locates the disclosed claim in the resolved claims
	path []string
	// referenced is set when a digest in the payload or another disclosure points at it
	referenced bool
}

// SDJWT is an SD-JWT based credential (vc+sd-jwt, dc+sd-jwt, vcdm2_sd_jwt). The holder sees every claim;
// presentations reveal only the disclosures covering the selected fields.
type SDJWT struct {
	claimSet
	id string
	// issuance is the combined format for issuance without a key binding JWT
	issuance    *common.CombinedFormatForIssuance
	hash        crypto.Hash
	disclosures []*disclosure
	expiration  time.Time
}

var _ Parsed = (*SDJWT)(nil)

// ParseSDJWT parses issuer-jwt~disclosure~...~ without verifying the issuer signature. A trailing key
// binding JWT is dropped.
func ParseSDJWT(raw, format, id string) (*SDJWT, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, common.CombinedFormatSeparator) {
		return nil, errors.New("invalid SD-JWT: expected issuer JWT followed by ~")
	}
	cfi := common.ParseCombinedFormatForIssuance(raw)
	if cfi.SDJWT == "" {
		return nil, errors.New("invalid SD-JWT: missing issuer JWT")
	}
	msg, err := jws.Parse([]byte(cfi.SDJWT))
	if err != nil {
		return nil, errors.Wrap(err, "parsing issuer JWT")
	}
	payload := make(map[string]any)
	if err = json.Unmarshal(msg.Payload(), &payload); err != nil {
		return nil, errors.Wrap(err, "decoding issuer JWT claims")
	}
	if format == "" {
		format = formatFromHeaders(msg, payload)
	}

	sdAlg := defaultSDAlg
	if alg, err := common.GetSDAlg(payload); err == nil {
		sdAlg = alg
	}
	hash, err := common.GetCryptoHash(sdAlg)
	if err != nil {
		return nil, errors.Wrap(err, "unsupported SD-JWT digest algorithm")
	}

	issuance := &common.CombinedFormatForIssuance{SDJWT: cfi.SDJWT}
	disclosures := make(map[string]*disclosure)
	var ordered []*disclosure
	for i, part := range cfi.Disclosures {
		if part == "" {
			continue
		}
		// the last element is a key binding JWT when present
		if i == len(cfi.Disclosures)-1 && strings.Count(part, ".") == 2 {
			continue
		}
		d, err := parseDisclosure(part, hash)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing disclosure %d", i+1)
		}
		if _, dup := disclosures[d.digest]; dup {
			return nil, errors.Errorf("duplicate disclosure %s", d.digest)
		}
		disclosures[d.digest] = d
		ordered = append(ordered, d)
		issuance.Disclosures = append(issuance.Disclosures, part)
	}

	resolved, ok := resolveClaims(payload, disclosures, nil).(map[string]any)
	if !ok {
		return nil, errors.New("SD-JWT payload is not an object")
	}

	if id == "" {
		if jti, ok := payload["jti"].(string); ok {
			id = jti
		} else {
			id = "urn:uuid:" + uuid.NewString()
		}
	}
	var expiration time.Time
	if exp, ok := resolved["exp"].(float64); ok {
		expiration = time.Unix(int64(exp), 0)
	}

	return &SDJWT{
		claimSet:    claimSet{format: format, claims: resolved},
		id:          id,
		issuance:    issuance,
		hash:        hash,
		disclosures: ordered,
		expiration:  expiration,
	}, nil
}

func formatFromHeaders(msg *jws.Message, payload map[string]any) string {
	if len(msg.Signatures()) > 0 {
		switch msg.Signatures()[0].ProtectedHeaders().Type() {
		case oid4vp.FormatDCSDJWT:
			return oid4vp.FormatDCSDJWT
		case oid4vp.FormatSDJWTVC:
			return oid4vp.FormatSDJWTVC
		}
	}
	if _, ok := payload["@context"]; ok {
		return oid4vp.FormatVCDM2SDJWT
	}
	return oid4vp.FormatSDJWTVC
}

func detectSDJWTFormat(raw string) string {
	cfi := common.ParseCombinedFormatForIssuance(raw)
	msg, err := jws.Parse([]byte(cfi.SDJWT))
	if err != nil {
		return oid4vp.FormatSDJWTVC
	}
	payload := make(map[string]any)
	if err = json.Unmarshal(msg.Payload(), &payload); err != nil {
		return oid4vp.FormatSDJWTVC
	}
	return formatFromHeaders(msg, payload)
}

func parseDisclosure(raw string, hash crypto.Hash) (*disclosure, error) {
	digest, err := common.GetHash(hash, raw)
	if err != nil {
		return nil, errors.Wrap(err, "computing disclosure digest")
	}
	d := disclosure{raw: raw, digest: digest}
	claims, err := common.GetDisclosureClaims([]string{raw})
	if err == nil {
		name := claims[0].Name
		if name == common.SDKey || name == arrayDigest {
			return nil, errors.New("invalid disclosure claim name")
		}
		d.name = name
		d.value = claims[0].Value
		return &d, nil
	}
	value, ok := decodeArrayElement(raw)
	if !ok {
		return nil, errors.Wrap(err, "decoding disclosure")
	}
	d.value = value
	return &d, nil
}

// decodeArrayElement reads a [salt, value] array element disclosure, which the aries decoder does not accept.
func decodeArrayElement(raw string) (any, bool) {
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, false
	}
	var arr []any
	if err = json.Unmarshal(decoded, &arr); err != nil || len(arr) != 2 {
		return nil, false
	}
	if _, ok := arr[0].(string); !ok {
		return nil, false
	}
	return arr[1], true
}

// resolveClaims replaces digests with their disclosed values and records where each disclosure lands.
func resolveClaims(value any, disclosures map[string]*disclosure, path []string) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			if k == common.SDKey || k == common.SDAlgorithmKey {
				continue
			}
			out[k] = resolveClaims(child, disclosures, appendPath(path, k))
		}
		digests, _ := v[common.SDKey].([]any)
		for _, raw := range digests {
			digest, _ := raw.(string)
			d, ok := disclosures[digest]
			if !ok || d.name == "" || d.referenced {
				continue
			}
			if _, exists := out[d.name]; exists {
				logrus.Debugf("disclosure %s overwrites a plain claim", d.name)
				continue
			}
			d.referenced = true
			d.path = appendPath(path, d.name)
			out[d.name] = resolveClaims(d.value, disclosures, d.path)
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, elem := range v {
			if ref, ok := elem.(map[string]any); ok && len(ref) == 1 {
				if digest, ok := ref[arrayDigest].(string); ok {
					d, found := disclosures[digest]
					if !found || d.name != "" || d.referenced {
						// undisclosed array element
						continue
					}
					d.referenced = true
					d.path = appendPath(path, strconv.Itoa(len(out)))
					out = append(out, resolveClaims(d.value, disclosures, d.path))
					continue
				}
			}
			out = append(out, resolveClaims(elem, disclosures, appendPath(path, strconv.Itoa(len(out)))))
		}
		return out
	}
	return value
}

func appendPath(path []string, segment string) []string {
	out := make([]string, 0, len(path)+1)
	return append(append(out, path...), segment)
}

func (c *SDJWT) ID() string {
	return c.id
}

func (c *SDJWT) Format() string {
	return c.format
}

// Present reveals the disclosures on the path of each selected field and, when a holder key is given,
// appends a key binding JWT over the nonce, the audience and the SD-JWT digest.
func (c *SDJWT) Present(opts PresentOptions) (*Presentation, error) {
	now := time.Now()
	if !c.expiration.IsZero() && now.After(c.expiration) {
		return nil, errors.Errorf("credential<%s> expired at %s", c.id, c.expiration.Format(time.RFC3339))
	}
	for _, d := range c.disclosures {
		if !d.referenced {
			return nil, errors.Errorf("credential<%s> carries disclosure %s that the issuer did not sign", c.id, d.digest)
		}
	}

	selected := make([][]string, 0, len(opts.Disclose))
	for _, f := range opts.Disclose {
		selected = append(selected, PathSegments(f.ResolvedPath))
	}
	var disclose []string
	for _, d := range c.disclosures {
		if onSelectedPath(d.path, selected) {
			disclose = append(disclose, d.raw)
		}
	}

	presentation := c.issuance.SDJWT + common.CombinedFormatSeparator
	if len(disclose) > 0 {
		var err error
		if presentation, err = sdjwtholder.CreatePresentation(c.issuance.Serialize(), disclose); err != nil {
			return nil, errors.Wrap(err, "selecting disclosures")
		}
	}

	if opts.Holder != nil {
		sdHash, err := common.GetHash(c.hash, presentation)
		if err != nil {
			return nil, errors.Wrap(err, "computing sd_hash")
		}
		token, err := jwt.NewBuilder().
			IssuedAt(now).
			Audience([]string{opts.Audience}).
			Claim("nonce", opts.Nonce).
			Claim("sd_hash", sdHash).
			Build()
		if err != nil {
			return nil, errors.Wrap(err, "building key binding JWT")
		}
		kb, err := opts.Holder.SignJWT(token, keyBindingTyp)
		if err != nil {
			return nil, errors.Wrap(err, "signing key binding JWT")
		}
		presentation += kb.String()
	}
	return &Presentation{Token: presentation, Format: c.format}, nil
}

// onSelectedPath is true when the disclosure is an ancestor or descendant of a selected field.
func onSelectedPath(path []string, selected [][]string) bool {
	for _, s := range selected {
		if isPrefix(path, s) || isPrefix(s, path) {
			return true
		}
	}
	return false
}

func isPrefix(prefix, path []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if prefix[i] != path[i] {
			return false
		}
	}
	return true
}
