package api

import (
	"fmt"

	"github.com/privatestate/attribution-go/internal/verifyerrors"
)

// Endpoint identifies which issuer endpoint produced an error.
type Endpoint string

const (
	EndpointUnknown       Endpoint = ""
	EndpointKeyCommitment Endpoint = "key-commitment"
	EndpointIssue         Endpoint = "issue"
	EndpointRedeem        Endpoint = "redeem"
)

// idempotent reports whether a request to the endpoint can be repeated
// without changing its outcome. Issuing twice just signs a second blind
// message; redeeming twice spends the token.
func (e Endpoint) idempotent() bool {
	return e != EndpointRedeem
}

// APIError represents an HTTP error from an issuer.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
	Endpoint   Endpoint
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		if e.Message != "" {
			return fmt.Sprintf("API error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
		}
		return fmt.Sprintf("API error %d (request_id: %s)", e.StatusCode, e.RequestID)
	}
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// AttributionError implements the attribution.AttributionError interface.
func (e *APIError) AttributionError() {}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 400:
		switch e.Endpoint {
		case EndpointIssue:
			return target == verifyerrors.ErrIssuanceFailed
		case EndpointRedeem:
			return target == verifyerrors.ErrVerificationFailed
		}
	case 404:
		return e.Endpoint == EndpointKeyCommitment && target == verifyerrors.ErrNoCommitment
	case 409:
		return target == verifyerrors.ErrDoubleSpend
	case 429:
		return target == verifyerrors.ErrRateLimited
	}
	return false
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

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AttributionError implements the attribution.AttributionError interface.
func (e *NetworkError) AttributionError() {}
