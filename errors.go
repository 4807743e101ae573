package attribution

import (
	"errors"
	"fmt"

	"github.com/privatestate/attribution-go/internal/api"
	"github.com/privatestate/attribution-go/internal/crypto"
	"github.com/privatestate/attribution-go/internal/verifyerrors"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrNoCommitment is returned when the issuer has no key commitment.
	// Callers should proceed without verification.
	ErrNoCommitment = verifyerrors.ErrNoCommitment

	// ErrUnsupportedVersion is returned when the committed protocol version
	// has no Cryptographer backend.
	ErrUnsupportedVersion = verifyerrors.ErrUnsupportedVersion

	// ErrMalformedKey is returned when a committed key does not parse for
	// the active protocol version.
	ErrMalformedKey = verifyerrors.ErrMalformedKey

	// ErrNoKeys is returned when issuance begins before any key was added.
	ErrNoKeys = verifyerrors.ErrNoKeys

	// ErrSessionMisuse matches every protocol-sequence error.
	ErrSessionMisuse = verifyerrors.ErrSessionMisuse

	// ErrOutOfOrder is returned when an operation runs before its
	// prerequisite or runs twice.
	ErrOutOfOrder = verifyerrors.ErrOutOfOrder

	// ErrTokenConsumed is returned when redemption is attempted again.
	ErrTokenConsumed = verifyerrors.ErrTokenConsumed

	// ErrSessionFailed is returned by every call after a session failed.
	ErrSessionFailed = verifyerrors.ErrSessionFailed

	// ErrVerificationFailed is returned when a signed response does not
	// verify under any committed key.
	ErrVerificationFailed = verifyerrors.ErrVerificationFailed

	// ErrMalformedResponse is returned when a signed response cannot be decoded.
	ErrMalformedResponse = verifyerrors.ErrMalformedResponse

	// ErrMalformedHeader is returned when a structured header value cannot
	// be produced or parsed.
	ErrMalformedHeader = verifyerrors.ErrMalformedHeader

	// ErrIssuanceFailed is returned when blinding fails or the issuer
	// rejects an issuance request.
	ErrIssuanceFailed = verifyerrors.ErrIssuanceFailed

	// ErrInvalidOrigin is returned for issuer URLs that are not http(s) origins.
	ErrInvalidOrigin = verifyerrors.ErrInvalidOrigin

	// ErrDoubleSpend is returned when an issuer reports a token as already redeemed.
	ErrDoubleSpend = verifyerrors.ErrDoubleSpend

	// ErrRateLimited is returned when an issuer answers 429.
	ErrRateLimited = verifyerrors.ErrRateLimited

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrHeaderAlreadySet is returned by RequestHelper.Begin when the
	// request already carries a verification header.
	ErrHeaderAlreadySet = errors.New("verification header already set")
)

// AttributionError is implemented by all errors of this module.
type AttributionError interface {
	error
	AttributionError() // marker method
}

// Stage names the step of a verification cycle.
type Stage string

const (
	StageLookup           Stage = "lookup"
	StageInitialize       Stage = "initialize"
	StageAddKey           Stage = "add-key"
	StageMessage          Stage = "message"
	StageBeginIssuance    Stage = "begin-issuance"
	StageSerialize        Stage = "serialize"
	StageConfirmIssuance  Stage = "confirm-issuance"
	StageIssuerRoundTrip  Stage = "issuer-round-trip"
	StageIssuerRedemption Stage = "issuer-redemption"
)

// StageError reports the first step of a verification cycle that failed.
type StageError struct {
	Stage  Stage
	Issuer string
	Err    error
}

func (e *StageError) Error() string {
	if e.Issuer != "" {
		return fmt.Sprintf("attribution verification for %s failed at %s: %v", e.Issuer, e.Stage, e.Err)
	}
	return fmt.Sprintf("attribution verification failed at %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// AttributionError implements the AttributionError interface.
func (e *StageError) AttributionError() {}

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// APIError represents an HTTP error from an issuer.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string // if returned by the issuer
	Endpoint   string // "key-commitment", "issue" or "redeem"
}

func (e *APIError) Error() string {
	return e.internal().Error()
}

// AttributionError implements the AttributionError interface.
func (e *APIError) AttributionError() {}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	return e.internal().Is(target)
}

func (e *APIError) internal() *api.APIError {
	return &api.APIError{
		StatusCode: e.StatusCode,
		Message:    e.Message,
		RequestID:  e.RequestID,
		Endpoint:   api.Endpoint(e.Endpoint),
	}
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AttributionError implements the AttributionError interface.
func (e *NetworkError) AttributionError() {}

// backendError carries a crypto backend error while matching the public
// sentinel it maps to.
type backendError struct {
	public error
	err    error
}

func (e *backendError) Error() string {
	return e.err.Error()
}

func (e *backendError) Unwrap() error {
	return e.err
}

func (e *backendError) Is(target error) bool {
	if target == e.public {
		return true
	}
	return target == ErrSessionMisuse && verifyerrors.IsSequenceSentinel(e.public)
}

func (e *backendError) AttributionError() {}

// wrapError converts internal errors to public errors.
// This ensures that errors.Is() checks work with public sentinel errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			RequestID:  apiErr.RequestID,
			Endpoint:   string(apiErr.Endpoint),
		}
	}

	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return &NetworkError{
			Err:     netErr.Err,
			URL:     netErr.URL,
			Attempt: netErr.Attempt,
		}
	}

	var public error
	switch {
	case errors.Is(err, crypto.ErrUnsupportedVersion):
		public = ErrUnsupportedVersion
	case errors.Is(err, crypto.ErrMalformedKey):
		public = ErrMalformedKey
	case errors.Is(err, crypto.ErrNoKeys):
		public = ErrNoKeys
	case errors.Is(err, crypto.ErrNotBlinded):
		public = ErrOutOfOrder
	case errors.Is(err, crypto.ErrBlindFailed), errors.Is(err, crypto.ErrMalformedMessage):
		public = ErrIssuanceFailed
	case errors.Is(err, crypto.ErrMalformedResponse):
		public = ErrMalformedResponse
	case errors.Is(err, crypto.ErrVerificationFailed):
		public = ErrVerificationFailed
	default:
		return err
	}
	return &backendError{public: public, err: err}
}
