package util

import (
	"io"
	"net/http"
	"strings"

	didsdk "github.com/TBD54566975/ssi-sdk/did"
	"github.com/pkg/errors"
)

// MaxResponseBodyBytes caps how much of a verifier or resolver response body is read into memory.
const MaxResponseBodyBytes = 1 << 20

// GetMethodForDID gets a DID method from a did, the second part of the did (e.g. did:test:abcd, the method is 'test')
func GetMethodForDID(did string) (didsdk.Method, error) {
	split := strings.Split(did, ":")
	if len(split) < 3 {
		return "", errors.New("malformed did: did has fewer than three parts")
	}
	if split[0] != "did" {
		return "", errors.New("malformed did: did must start with `did`")
	}
	if split[1] == "" || split[2] == "" {
		return "", errors.New("malformed did: empty method or method-specific identifier")
	}
	return didsdk.Method(split[1]), nil
}

// DIDFromKID strips the fragment from a verification method id, e.g. did:web:example.com#key-1 -> did:web:example.com
func DIDFromKID(kid string) string {
	if i := strings.Index(kid, "#"); i >= 0 {
		return kid[:i]
	}
	return kid
}

// SanitizeLog prevents certain classes of injection attacks before logging
// https://codeql.github.com/codeql-query-help/go/go-log-injection/
func SanitizeLog(log string) string {
	escapedLog := strings.ReplaceAll(log, "\n", "")
	return strings.ReplaceAll(escapedLog, "\r", "")
}

// Is2xxResponse returns true if the given status code is a 2xx response
func Is2xxResponse(statusCode int) bool {
	return statusCode/100 == 2
}

// Is3xxResponse returns true if the given status code is a redirection
func Is3xxResponse(statusCode int) bool {
	return statusCode/100 == 3
}

// ReadBody reads at most MaxResponseBodyBytes of the response body and closes it.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}
	return body, nil
}
