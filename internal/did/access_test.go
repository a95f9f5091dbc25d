package did

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"testing"

	didsdk "github.com/TBD54566975/ssi-sdk/did"
	"github.com/TBD54566975/ssi-sdk/did/resolution"
	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver map[string]didsdk.Document

func (s staticResolver) Resolve(_ context.Context, id string, _ ...resolution.Option) (*resolution.Result, error) {
	doc, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("unknown DID %s", id)
	}
	return &resolution.Result{Document: doc}, nil
}

func (s staticResolver) Methods() []didsdk.Method {
	return []didsdk.Method{didsdk.WebMethod}
}

func jwkDocument(t *testing.T, id, methodID string) (didsdk.Document, *ecdsa.PrivateKey) {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pubJWK, err := jwk.FromRaw(&privKey.PublicKey)
	require.NoError(t, err)
	pubJWKBytes, err := json.Marshal(pubJWK)
	require.NoError(t, err)

	docJSON := fmt.Sprintf(`{
		"id": %q,
		"verificationMethod": [{
			"id": %q,
			"type": "JsonWebKey2020",
			"controller": %q,
			"publicKeyJwk": %s
		}]
	}`, id, methodID, id, pubJWKBytes)
	var doc didsdk.Document
	require.NoError(t, json.Unmarshal([]byte(docJSON), &doc))
	return doc, privKey
}

func TestGetVerificationKey(t *testing.T) {
	t.Run("absolute method id", func(t *testing.T) {
		doc, privKey := jwkDocument(t, "did:web:verifier.example", "did:web:verifier.example#key-1")
		key, err := GetVerificationKey(doc, "did:web:verifier.example#key-1")
		require.NoError(t, err)

		var raw ecdsa.PublicKey
		require.NoError(t, key.Raw(&raw))
		assert.True(t, privKey.PublicKey.Equal(&raw))
	})

	t.Run("relative method id", func(t *testing.T) {
		doc, _ := jwkDocument(t, "did:web:verifier.example", "#key-1")
		key, err := GetVerificationKey(doc, "did:web:verifier.example#key-1")
		require.NoError(t, err)
		assert.Equal(t, "EC", key.KeyType().String())
	})

	t.Run("unknown kid", func(t *testing.T) {
		doc, _ := jwkDocument(t, "did:web:verifier.example", "did:web:verifier.example#key-1")
		_, err := GetVerificationKey(doc, "did:web:verifier.example#key-2")
		assert.ErrorContains(t, err, "has no verification method")
	})

	t.Run("empty document", func(t *testing.T) {
		_, err := GetVerificationKey(didsdk.Document{}, "did:web:verifier.example#key-1")
		assert.ErrorContains(t, err, "empty")
	})

	t.Run("base58 ed25519 key", func(t *testing.T) {
		var doc didsdk.Document
		require.NoError(t, json.Unmarshal([]byte(`{
			"id": "did:example:123",
			"verificationMethod": [{
				"id": "did:example:123#kid2",
				"type": "Ed25519VerificationKey2018",
				"controller": "did:example:123",
				"publicKeyBase58": "4HyjANoMdhpp952YPb4wALydQRQ7BmsXHmBdwq4YSyiR"
			}]
		}`), &doc))

		key, err := GetVerificationKey(doc, "did:example:123#kid2")
		require.NoError(t, err)
		var raw ed25519.PublicKey
		require.NoError(t, key.Raw(&raw))
		expected := ed25519.PublicKey{0x30, 0xec, 0x7e, 0xbc, 0x71, 0xf, 0x76, 0xd1, 0xad, 0x90, 0x39, 0xb9, 0x94, 0xcd, 0x80, 0x9c, 0x42, 0x72, 0x94, 0x92, 0xf1, 0x46, 0xaf, 0xcc, 0x89, 0x9e, 0x8b, 0xe5, 0xcb, 0xd2, 0x47, 0xfa}
		assert.Equal(t, expected, raw)
	})
}

func TestResolveVerificationKey(t *testing.T) {
	doc, _ := jwkDocument(t, "did:web:verifier.example", "did:web:verifier.example#key-1")
	resolver := staticResolver{"did:web:verifier.example": doc}

	key, err := ResolveVerificationKey(context.Background(), resolver, "did:web:verifier.example#key-1")
	require.NoError(t, err)
	assert.NotNil(t, key)

	_, err = ResolveVerificationKey(context.Background(), resolver, "did:web:other.example#key-1")
	assert.ErrorContains(t, err, "resolving DID")

	_, err = ResolveVerificationKey(context.Background(), resolver, "key-1")
	assert.ErrorContains(t, err, "does not reference a DID")
}
