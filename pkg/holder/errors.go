package holder

import (
	"github.com/pkg/errors"
)

// ErrorKind classifies a holder failure by the pipeline stage that produced it.
type ErrorKind string

const (
	HTTPClientInitialization         ErrorKind = "HttpClientInitialization"
	MetadataInitialization           ErrorKind = "MetadataInitialization"
	RequestValidation                ErrorKind = "RequestValidation"
	UnsupportedResponseMode          ErrorKind = "UnsupportedResponseMode"
	PresentationDefinitionResolution ErrorKind = "PresentationDefinitionResolution"
	ResponseSubmission               ErrorKind = "ResponseSubmission"
	CredentialStoreAccess            ErrorKind = "CredentialStoreAccess"
	PermissionResponseValidation     ErrorKind = "PermissionResponseValidation"
)

var (
	// ErrUnsupportedClientIDScheme is wrapped by RequestValidation errors for requests whose client id scheme
	// the wallet does not handle.
	ErrUnsupportedClientIDScheme = errors.New("unsupported client id scheme")
	// ErrUntrustedVerifier is wrapped when the trust policy rejects a verifier.
	ErrUntrustedVerifier = errors.New("verifier is not trusted")
)

// Error is returned by every Holder operation.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func newErrorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

// KindOf returns the kind of the first holder Error in err's chain, or the empty kind.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
