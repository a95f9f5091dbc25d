package util

import (
	"net/http"
	"testing"

	didsdk "github.com/TBD54566975/ssi-sdk/did"
	"github.com/stretchr/testify/assert"
)

func TestGetMethodForDID(t *testing.T) {
	method, err := GetMethodForDID("did:web:verifier.example.com")
	assert.NoError(t, err)
	assert.Equal(t, didsdk.Method("web"), method)

	_, err = GetMethodForDID("did:web")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fewer than three parts")

	_, err = GetMethodForDID("web:did:example")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must start with `did`")

	_, err = GetMethodForDID("did::abcd")
	assert.Error(t, err)
}

func TestDIDFromKID(t *testing.T) {
	assert.Equal(t, "did:web:example.com", DIDFromKID("did:web:example.com#key-1"))
	assert.Equal(t, "did:web:example.com", DIDFromKID("did:web:example.com"))
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, Is2xxResponse(http.StatusOK))
	assert.True(t, Is2xxResponse(http.StatusNoContent))
	assert.False(t, Is2xxResponse(http.StatusFound))
	assert.True(t, Is3xxResponse(http.StatusFound))
	assert.False(t, Is3xxResponse(http.StatusInternalServerError))
}

func TestSanitizeLog(t *testing.T) {
	assert.Equal(t, "ab", SanitizeLog("a\r\nb"))
}
