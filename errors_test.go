package attribution

import (
	"errors"
	"fmt"
	"testing"

	"github.com/privatestate/attribution-go/internal/api"
	"github.com/privatestate/attribution-go/internal/crypto"
	"github.com/privatestate/attribution-go/internal/verifyerrors"
)

func TestSentinelErrors(t *testing.T) {
	sentinels := []struct {
		name string
		err  error
	}{
		{"ErrNoCommitment", ErrNoCommitment},
		{"ErrUnsupportedVersion", ErrUnsupportedVersion},
		{"ErrMalformedKey", ErrMalformedKey},
		{"ErrNoKeys", ErrNoKeys},
		{"ErrSessionMisuse", ErrSessionMisuse},
		{"ErrOutOfOrder", ErrOutOfOrder},
		{"ErrTokenConsumed", ErrTokenConsumed},
		{"ErrSessionFailed", ErrSessionFailed},
		{"ErrVerificationFailed", ErrVerificationFailed},
		{"ErrMalformedResponse", ErrMalformedResponse},
		{"ErrMalformedHeader", ErrMalformedHeader},
		{"ErrIssuanceFailed", ErrIssuanceFailed},
		{"ErrInvalidOrigin", ErrInvalidOrigin},
		{"ErrDoubleSpend", ErrDoubleSpend},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrClientClosed", ErrClientClosed},
		{"ErrHeaderAlreadySet", ErrHeaderAlreadySet},
	}

	for _, s := range sentinels {
		t.Run(s.name, func(t *testing.T) {
			if s.err == nil {
				t.Error("sentinel error is nil")
			}
			if s.err.Error() == "" {
				t.Error("sentinel error has empty message")
			}
		})
	}
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: StageAddKey, Issuer: "https://issuer.example", Err: ErrMalformedKey}
	want := "attribution verification for https://issuer.example failed at add-key: malformed key"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrMalformedKey) {
		t.Error("StageError does not unwrap to its cause")
	}

	noIssuer := &StageError{Stage: StageSerialize, Err: ErrMalformedHeader}
	if noIssuer.Error() != "attribution verification failed at serialize: malformed header" {
		t.Errorf("Error() = %q", noIssuer.Error())
	}

	wrapped := fmt.Errorf("outer: %w", err)
	stage, ok := FailedStage(wrapped)
	if !ok || stage != StageAddKey {
		t.Errorf("FailedStage() = %q, %v", stage, ok)
	}
	if _, ok := FailedStage(errors.New("plain")); ok {
		t.Error("FailedStage() found a stage in a plain error")
	}
}

func TestAPIError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		target error
		want   bool
	}{
		{"409 double spend", &APIError{StatusCode: 409, Endpoint: "redeem"}, ErrDoubleSpend, true},
		{"429 rate limited", &APIError{StatusCode: 429}, ErrRateLimited, true},
		{"400 on issue", &APIError{StatusCode: 400, Endpoint: "issue"}, ErrIssuanceFailed, true},
		{"400 on redeem", &APIError{StatusCode: 400, Endpoint: "redeem"}, ErrVerificationFailed, true},
		{"404 on key commitment", &APIError{StatusCode: 404, Endpoint: "key-commitment"}, ErrNoCommitment, true},
		{"404 on issue", &APIError{StatusCode: 404, Endpoint: "issue"}, ErrNoCommitment, false},
		{"500", &APIError{StatusCode: 500}, ErrRateLimited, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{StatusCode: 409, Message: "token already redeemed", RequestID: "req-1"}
	if err.Error() != "API error 409: token already redeemed (request_id: req-1)" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestNetworkError(t *testing.T) {
	inner := errors.New("connection refused")
	err := &NetworkError{Err: inner, URL: "https://issuer.example/issue", Attempt: 2}
	if err.Error() != "network error: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("NetworkError does not unwrap")
	}
}

func TestAttributionErrorMarker(t *testing.T) {
	errs := []error{
		&StageError{Stage: StageLookup, Err: ErrNoCommitment},
		&APIError{StatusCode: 500},
		&NetworkError{Err: errors.New("x")},
		&verifyerrors.SequenceError{Op: "op", State: "failed", Err: ErrSessionFailed},
	}
	for _, err := range errs {
		if _, ok := err.(AttributionError); !ok {
			t.Errorf("%T does not implement AttributionError", err)
		}
	}
}

func TestWrapError_PreservesAPIError(t *testing.T) {
	internal := &api.APIError{StatusCode: 409, Message: "spent", RequestID: "r", Endpoint: api.EndpointRedeem}
	err := wrapError(fmt.Errorf("redeem: %w", internal))

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != 409 || apiErr.Message != "spent" || apiErr.RequestID != "r" || apiErr.Endpoint != "redeem" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if !errors.Is(err, ErrDoubleSpend) {
		t.Error("wrapped APIError lost its sentinel")
	}
}

func TestWrapError_PreservesNetworkError(t *testing.T) {
	inner := errors.New("timeout")
	err := wrapError(&api.NetworkError{Err: inner, URL: "u", Attempt: 3})

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkError, got %T", err)
	}
	if netErr.Attempt != 3 || netErr.URL != "u" || !errors.Is(err, inner) {
		t.Errorf("NetworkError = %+v", netErr)
	}
}

func TestWrapError_MapsBackendErrors(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{crypto.ErrUnsupportedVersion, ErrUnsupportedVersion},
		{crypto.ErrDuplicateKeyID, ErrMalformedKey},
		{crypto.ErrKeyTooSmall, ErrMalformedKey},
		{crypto.ErrNoKeys, ErrNoKeys},
		{crypto.ErrNotBlinded, ErrOutOfOrder},
		{crypto.ErrBlindFailed, ErrIssuanceFailed},
		{crypto.ErrMalformedResponse, ErrMalformedResponse},
		{crypto.ErrUnknownKeyID, ErrVerificationFailed},
		{crypto.ErrVerificationFailed, ErrVerificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.in.Error(), func(t *testing.T) {
			err := wrapError(fmt.Errorf("backend: %w", tt.in))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, tt.in) {
				t.Error("backend error lost")
			}
		})
	}
}

func TestWrapError_SequenceBackendErrorIsSessionMisuse(t *testing.T) {
	err := wrapError(fmt.Errorf("backend: %w", crypto.ErrNotBlinded))
	if !errors.Is(err, ErrOutOfOrder) || !errors.Is(err, ErrSessionMisuse) {
		t.Errorf("wrapError(ErrNotBlinded) = %v, want ErrOutOfOrder and ErrSessionMisuse", err)
	}

	err = wrapError(crypto.ErrMalformedResponse)
	if errors.Is(err, ErrSessionMisuse) {
		t.Errorf("wrapError(ErrMalformedResponse) matched ErrSessionMisuse")
	}
}

func TestWrapError_PassesThroughOther(t *testing.T) {
	other := errors.New("other")
	if got := wrapError(other); got != other {
		t.Errorf("wrapError() = %v", got)
	}
	if wrapError(nil) != nil {
		t.Error("wrapError(nil) != nil")
	}
}
