package did

import (
	"context"
	"crypto"
	"fmt"
	"strings"

	"github.com/TBD54566975/ssi-sdk/cryptosuite/jws2020"
	didsdk "github.com/TBD54566975/ssi-sdk/did"
	"github.com/TBD54566975/ssi-sdk/did/resolution"
	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-holder/internal/util"
)

// ResolveVerificationKey resolves the DID that kid belongs to and returns the public key of the matching
// verification method as a JWK. kid must be a DID URL, e.g. did:web:example.com#key-1.
func ResolveVerificationKey(ctx context.Context, resolver resolution.Resolver, kid string) (jwk.Key, error) {
	id := util.DIDFromKID(kid)
	if _, err := util.GetMethodForDID(id); err != nil {
		return nil, errors.Wrapf(err, "kid<%s> does not reference a DID", kid)
	}
	resolved, err := resolver.Resolve(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving DID: %s", id)
	}
	if resolved == nil {
		return nil, errors.Errorf("empty resolution result for DID: %s", id)
	}
	return GetVerificationKey(resolved.Document, kid)
}

// GetVerificationKey finds the verification method identified by kid in the document and converts its key
// material to a JWK. Relative method ids (#key-1) are matched against the document id.
func GetVerificationKey(doc didsdk.Document, kid string) (jwk.Key, error) {
	if doc.IsEmpty() {
		return nil, errors.New("did doc is empty")
	}
	for _, method := range doc.VerificationMethod {
		if !sameMethodID(doc.ID, method.ID, kid) {
			continue
		}
		pubKey, err := extractKeyFromVerificationMethod(method)
		if err != nil {
			return nil, errors.Wrapf(err, "extracting key from verification method<%s>", method.ID)
		}
		return pubKey, nil
	}
	return nil, errors.Errorf("did doc<%s> has no verification method<%s>", doc.ID, kid)
}

func sameMethodID(docID, methodID, kid string) bool {
	if methodID == kid {
		return true
	}
	if strings.HasPrefix(methodID, "#") {
		return docID+methodID == kid
	}
	return false
}

func extractKeyFromVerificationMethod(method didsdk.VerificationMethod) (jwk.Key, error) {
	var pubKey crypto.PublicKey
	switch {
	case method.PublicKeyJWK != nil:
		jwkBytes, err := json.Marshal(method.PublicKeyJWK)
		if err != nil {
			return nil, err
		}
		return jwk.ParseKey(jwkBytes)
	case method.PublicKeyMultibase != "":
		pubKeyBytes, err := multibaseToPubKeyBytes(method.PublicKeyMultibase)
		if err != nil {
			return nil, err
		}
		pubKey, err = jws2020.PubKeyBytesToTypedKey(pubKeyBytes, method.Type)
		if err != nil {
			return nil, err
		}
	case method.PublicKeyBase58 != "":
		pubKeyDecoded, err := base58.Decode(method.PublicKeyBase58)
		if err != nil {
			return nil, err
		}
		pubKey, err = jws2020.PubKeyBytesToTypedKey(pubKeyDecoded, method.Type)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("no public key found in verification method")
	}
	key, err := jwk.FromRaw(pubKey)
	if err != nil {
		return nil, errors.Wrap(err, "converting public key to jwk")
	}
	return key, nil
}

// multibaseToPubKeyBytes converts a multibase encoded public key to public key bytes for known multibase encodings
func multibaseToPubKeyBytes(mb string) ([]byte, error) {
	encoding, decoded, err := multibase.Decode(mb)
	if err != nil {
		logrus.WithError(err).Error("could not decode multibase key")
		return nil, err
	}
	if encoding != didsdk.Base58BTCMultiBase {
		err = fmt.Errorf("expected %d encoding but found %d", didsdk.Base58BTCMultiBase, encoding)
		logrus.WithError(err).Error()
		return nil, err
	}

	// n = # bytes for the int, which we expect to be two from our multicodec
	_, n, err := varint.FromUvarint(decoded)
	if err != nil {
		return nil, err
	}
	if n != 2 {
		return nil, errors.New("error parsing multicodec varint")
	}
	return decoded[n:], nil
}
