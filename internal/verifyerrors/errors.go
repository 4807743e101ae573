// Package verifyerrors provides the shared error values for the attribution
// verification packages.
package verifyerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrNoCommitment is returned when no key commitment exists for an issuer.
	// Callers treat it as "skip verification" rather than a protocol failure.
	ErrNoCommitment = errors.New("no key commitment for issuer")

	// ErrUnsupportedVersion is returned when a protocol version has no backend.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")

	// ErrMalformedKey is returned when a key does not parse for the active version.
	ErrMalformedKey = errors.New("malformed key")

	// ErrNoKeys is returned when issuance begins before any key was added.
	ErrNoKeys = errors.New("no keys added")

	// ErrSessionMisuse is the parent of every protocol-sequence error.
	ErrSessionMisuse = errors.New("session misuse")

	// ErrOutOfOrder is returned when an operation is called before its
	// prerequisite, or more than once where only one call is allowed.
	ErrOutOfOrder = errors.New("operation called out of order")

	// ErrTokenConsumed is returned when redemption is attempted again after
	// a token was already produced.
	ErrTokenConsumed = errors.New("token already consumed")

	// ErrSessionFailed is returned by every call on a session that has
	// already failed.
	ErrSessionFailed = errors.New("session already failed")

	// ErrVerificationFailed is returned when a signed response does not
	// verify under any registered key.
	ErrVerificationFailed = errors.New("signed response verification failed")

	// ErrMalformedResponse is returned when a signed response cannot be decoded.
	ErrMalformedResponse = errors.New("malformed signed response")

	// ErrMalformedHeader is returned when a structured header cannot be parsed.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrIssuanceFailed is returned when blinding fails inside the backend.
	ErrIssuanceFailed = errors.New("issuance failed")

	// ErrInvalidOrigin is returned when an issuer URL is not an http(s) origin.
	ErrInvalidOrigin = errors.New("invalid issuer origin")

	// ErrDoubleSpend is returned by issuers when a token was already redeemed.
	ErrDoubleSpend = errors.New("token already redeemed")

	// ErrRateLimited is returned when an issuer answers 429.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// SequenceError reports an operation invoked from a state that does not
// allow it. It matches ErrSessionMisuse as well as its wrapped cause.
type SequenceError struct {
	Op    string
	State string
	Err   error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%s called in state %s: %v", e.Op, e.State, e.Err)
}

// Unwrap returns the underlying error.
func (e *SequenceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *SequenceError) Is(target error) bool {
	return target == ErrSessionMisuse
}

// AttributionError implements the attribution.AttributionError interface.
func (e *SequenceError) AttributionError() {}

// IsSequenceSentinel reports whether err is one of the sentinels grouped
// under ErrSessionMisuse.
func IsSequenceSentinel(err error) bool {
	switch err {
	case ErrOutOfOrder, ErrTokenConsumed, ErrSessionFailed:
		return true
	}
	return false
}

// IsSequence reports whether err is a protocol-sequence error.
func IsSequence(err error) bool {
	return errors.Is(err, ErrSessionMisuse)
}
