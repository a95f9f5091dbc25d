package keyaccess

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
)

// JWKKeyAccess holds a signing key together with the identifier it signs on behalf of (usually a DID)
// and the key id published for it (usually a DID URL).
type JWKKeyAccess struct {
	ID  string
	KID string

	alg        jwa.SignatureAlgorithm
	privateKey jwk.Key
	publicKey  jwk.Key
}

// NewJWKKeyAccess creates a JWKKeyAccess object from an id, key id, and private key. The signature
// algorithm is derived from the key type.
func NewJWKKeyAccess(id, kid string, key gocrypto.PrivateKey) (*JWKKeyAccess, error) {
	if id == "" {
		return nil, errors.New("id cannot be empty")
	}
	if kid == "" {
		return nil, errors.New("kid cannot be empty")
	}
	if key == nil {
		return nil, errors.New("key cannot be nil")
	}
	privateKey, err := jwk.FromRaw(normalizeKey(key))
	if err != nil {
		return nil, errors.Wrapf(err, "could not create JWK Key Access object for kid: %s", kid)
	}
	return fromJWK(id, kid, privateKey)
}

// NewJWKKeyAccessFromJSON creates a JWKKeyAccess object from a JSON encoded private JWK.
func NewJWKKeyAccessFromJSON(id, kid string, keyJSON []byte) (*JWKKeyAccess, error) {
	if id == "" {
		return nil, errors.New("id cannot be empty")
	}
	if kid == "" {
		return nil, errors.New("kid cannot be empty")
	}
	privateKey, err := jwk.ParseKey(keyJSON)
	if err != nil {
		return nil, errors.Wrap(err, "parsing private jwk")
	}
	return fromJWK(id, kid, privateKey)
}

func fromJWK(id, kid string, privateKey jwk.Key) (*JWKKeyAccess, error) {
	if _, ok := privateKey.(jwk.SymmetricKey); ok {
		return nil, errors.New("symmetric keys are not supported")
	}
	alg, err := AlgorithmForKey(privateKey)
	if err != nil {
		return nil, err
	}
	if err = privateKey.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, errors.Wrap(err, "setting kid")
	}
	publicKey, err := privateKey.PublicKey()
	if err != nil {
		return nil, errors.Wrap(err, "deriving public key")
	}
	return &JWKKeyAccess{
		ID:         id,
		KID:        kid,
		alg:        alg,
		privateKey: privateKey,
		publicKey:  publicKey,
	}, nil
}

// ssi-sdk hands out ecdsa and rsa keys by value
func normalizeKey(key gocrypto.PrivateKey) gocrypto.PrivateKey {
	switch k := key.(type) {
	case ecdsa.PrivateKey:
		return &k
	case rsa.PrivateKey:
		return &k
	}
	return key
}

// AlgorithmForKey picks the JWS algorithm for a key. An alg already set on the key wins.
func AlgorithmForKey(key jwk.Key) (jwa.SignatureAlgorithm, error) {
	if alg, ok := key.Get(jwk.AlgorithmKey); ok {
		if sigAlg, ok := alg.(jwa.SignatureAlgorithm); ok {
			return sigAlg, nil
		}
	}
	var raw any
	if err := key.Raw(&raw); err != nil {
		return "", errors.Wrap(err, "getting raw key")
	}
	switch k := raw.(type) {
	case *ecdsa.PrivateKey:
		return curveAlgorithm(k.Curve)
	case *ecdsa.PublicKey:
		return curveAlgorithm(k.Curve)
	case ed25519.PrivateKey, ed25519.PublicKey:
		return jwa.EdDSA, nil
	case *rsa.PrivateKey, *rsa.PublicKey:
		return jwa.PS256, nil
	}
	return "", fmt.Errorf("unsupported key type %T", raw)
}

func curveAlgorithm(curve elliptic.Curve) (jwa.SignatureAlgorithm, error) {
	switch curve {
	case elliptic.P256():
		return jwa.ES256, nil
	case elliptic.P384():
		return jwa.ES384, nil
	case elliptic.P521():
		return jwa.ES512, nil
	}
	return "", fmt.Errorf("unsupported curve %s", curve.Params().Name)
}

// Algorithm is the JWS algorithm used by Sign and SignJWT.
func (ka JWKKeyAccess) Algorithm() jwa.SignatureAlgorithm {
	return ka.alg
}

// PublicKey returns the public half of the signing key.
func (ka JWKKeyAccess) PublicKey() jwk.Key {
	return ka.publicKey
}

type JWT string

func (j JWT) String() string {
	return string(j)
}

func (j JWT) Ptr() *JWT {
	return &j
}

// SignJSON takes an object that is either itself json or json-serializable and signs it.
func (ka JWKKeyAccess) SignJSON(data any) (*JWT, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	payload := make(map[string]any)
	if err = json.Unmarshal(jsonBytes, &payload); err != nil {
		return nil, err
	}
	return ka.Sign(payload)
}

// Sign signs the payload as JWT claims with the key's kid in the protected header.
func (ka JWKKeyAccess) Sign(payload map[string]any) (*JWT, error) {
	if payload == nil {
		return nil, errors.New("payload cannot be nil")
	}
	t := jwt.New()
	for k, v := range payload {
		if err := t.Set(k, v); err != nil {
			return nil, errors.Wrapf(err, "setting claim<%s>", k)
		}
	}
	return ka.SignJWT(t, "")
}

// SignJWT signs a token. typ is written to the protected header when set.
func (ka JWKKeyAccess) SignJWT(t jwt.Token, typ string) (*JWT, error) {
	if ka.privateKey == nil {
		return nil, errors.New("cannot sign with nil key")
	}
	headers := jws.NewHeaders()
	if err := headers.Set(jws.KeyIDKey, ka.KID); err != nil {
		return nil, errors.Wrap(err, "setting kid header")
	}
	if typ != "" {
		if err := headers.Set(jws.TypeKey, typ); err != nil {
			return nil, errors.Wrap(err, "setting typ header")
		}
	}
	signed, err := jwt.Sign(t, jwt.WithKey(ka.alg, ka.privateKey, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return nil, errors.Wrap(err, "could not sign payload")
	}
	return JWT(signed).Ptr(), nil
}

// Verify checks a token signed by this key access.
func (ka JWKKeyAccess) Verify(token JWT) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	_, err := VerifyJWS([]byte(token), ka.publicKey, ka.alg)
	return err
}

// VerifyJWS verifies a compact JWS with key, accepting only the listed algorithms. It returns the payload.
func VerifyJWS(token []byte, key jwk.Key, algs ...jwa.SignatureAlgorithm) ([]byte, error) {
	headers, err := GetJWTHeaders(token)
	if err != nil {
		return nil, err
	}
	alg := headers.Algorithm()
	if !containsAlgorithm(algs, alg) {
		return nil, errors.Errorf("signature algorithm %s is not accepted", alg)
	}
	payload, err := jws.Verify(token, jws.WithKey(alg, key))
	if err != nil {
		return nil, errors.Wrap(err, "verifying signature")
	}
	return payload, nil
}

func containsAlgorithm(algs []jwa.SignatureAlgorithm, alg jwa.SignatureAlgorithm) bool {
	for _, a := range algs {
		if a == alg {
			return true
		}
	}
	return false
}

// GetJWTHeaders returns the headers of a JWT token, assuming there is only one signature.
func GetJWTHeaders(token []byte) (jws.Headers, error) {
	msg, err := jws.Parse(token)
	if err != nil {
		return nil, errors.Wrap(err, "invalid JWT")
	}
	if len(msg.Signatures()) != 1 {
		return nil, fmt.Errorf("expected 1 signature, got %d", len(msg.Signatures()))
	}
	return msg.Signatures()[0].ProtectedHeaders(), nil
}
