package relay

import "fmt"

// Error carries the HTTP status and caller-facing message for a failed
// relay request. The wrapped cause, when present, is for logs only.
type Error struct {
	Status  int
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrUnauthorized is returned for a wrong or missing shared secret.
var ErrUnauthorized = &Error{Status: 401, Message: "Unauthorized"}

// ValidationError reports a malformed or incomplete request.
func ValidationError(msg string) *Error {
	return &Error{Status: 400, Message: msg}
}

// CredentialError reports missing or invalid stored token material;
// the operator has to re-authorize.
func CredentialError(msg string, err error) *Error {
	return &Error{Status: 500, Message: msg, Err: err}
}

// CompositionError reports a message-building failure, carrying the
// underlying cause.
func CompositionError(err error) *Error {
	return &Error{Status: 500, Message: fmt.Sprintf("Message composition failed: %v", err), Err: err}
}

// ProviderError surfaces a remote call failure verbatim.
func ProviderError(err error) *Error {
	return &Error{Status: 500, Message: err.Error(), Err: err}
}
