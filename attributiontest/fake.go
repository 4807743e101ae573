// Package attributiontest provides test doubles for code that runs
// attribution verification: a deterministic Cryptographer, an HTTP handler
// that answers like an issuer, and constructors wiring them together.
package attributiontest

import (
	"fmt"
	"strings"

	"github.com/privatestate/attribution-go"
	"github.com/privatestate/attribution-go/internal/session"
)

const (
	blindPrefix   = "blind-"
	unblindPrefix = "token-for-"
)

// FakeCryptographer implements attribution.Cryptographer by string
// prefixing: the blind message of m is "blind-"+m and the token for a
// signed response r is "token-for-"+r. It follows the same call order
// rules as the real implementation.
type FakeCryptographer struct {
	// Keys holds every key added, in order.
	Keys []string

	ShouldFailInitialize      bool
	ShouldFailAddKey          bool
	ShouldFailBeginIssuance   bool
	ShouldFailConfirmIssuance bool

	InitializeCalls      int
	AddKeyCalls          int
	BeginIssuanceCalls   int
	ConfirmIssuanceCalls int

	version attribution.ProtocolVersion
	state   session.Machine
}

var _ attribution.Cryptographer = (*FakeCryptographer)(nil)

// Version returns the version passed to Initialize.
func (f *FakeCryptographer) Version() attribution.ProtocolVersion {
	return f.version
}

func (f *FakeCryptographer) Initialize(version attribution.ProtocolVersion) error {
	f.InitializeCalls++
	if err := f.state.Enter("Initialize", session.Uninitialized); err != nil {
		return err
	}
	if f.ShouldFailInitialize {
		return f.state.FailWith(fmt.Errorf("fake: %w: %s", attribution.ErrUnsupportedVersion, version))
	}
	f.version = version
	f.state.Advance(session.Initialized)
	return nil
}

func (f *FakeCryptographer) AddKey(key []byte) error {
	f.AddKeyCalls++
	if err := f.state.Enter("AddKey", session.Initialized, session.Keyed); err != nil {
		return err
	}
	if f.ShouldFailAddKey {
		return f.state.FailWith(fmt.Errorf("fake: %w", attribution.ErrMalformedKey))
	}
	f.Keys = append(f.Keys, string(key))
	f.state.Advance(session.Keyed)
	return nil
}

func (f *FakeCryptographer) BeginIssuance(message string) (string, error) {
	f.BeginIssuanceCalls++
	if f.state.State() == session.Initialized {
		return "", f.state.FailWith(fmt.Errorf("fake: %w", attribution.ErrNoKeys))
	}
	if err := f.state.Enter("BeginIssuance", session.Keyed); err != nil {
		return "", err
	}
	if f.ShouldFailBeginIssuance {
		return "", f.state.FailWith(fmt.Errorf("fake: %w", attribution.ErrIssuanceFailed))
	}
	f.state.Advance(session.Issuing)
	return blindPrefix + message, nil
}

func (f *FakeCryptographer) ConfirmIssuanceAndBeginRedemption(signedResponseHeader string) (string, error) {
	f.ConfirmIssuanceCalls++
	if err := f.state.Enter("ConfirmIssuanceAndBeginRedemption", session.Issuing); err != nil {
		return "", err
	}
	if f.ShouldFailConfirmIssuance {
		return "", f.state.FailWith(fmt.Errorf("fake: %w", attribution.ErrVerificationFailed))
	}
	f.state.Advance(session.Redeemed)
	return unblindPrefix + signedResponseHeader, nil
}

// IsBlindMessage reports whether potentialBlindMessage is the blind
// version of message.
func IsBlindMessage(potentialBlindMessage, message string) bool {
	return potentialBlindMessage == blindPrefix+message
}

// UnblindMessage returns the message blindMessage was produced from.
func UnblindMessage(blindMessage string) string {
	return strings.TrimPrefix(blindMessage, blindPrefix)
}

// IsToken reports whether potentialToken is the token for blindToken.
func IsToken(potentialToken, blindToken string) bool {
	return potentialToken == unblindPrefix+blindToken
}

// FakeFactory creates FakeCryptographers and remembers them.
type FakeFactory struct {
	// Configure, if set, is applied to every new FakeCryptographer.
	Configure func(*FakeCryptographer)
	// Created lists the cryptographers created so far.
	Created []*FakeCryptographer
}

// New implements attribution.CryptographerFactory.
func (f *FakeFactory) New() attribution.Cryptographer {
	c := &FakeCryptographer{}
	if f.Configure != nil {
		f.Configure(c)
	}
	f.Created = append(f.Created, c)
	return c
}

// Last returns the most recently created cryptographer, or nil.
func (f *FakeFactory) Last() *FakeCryptographer {
	if len(f.Created) == 0 {
		return nil
	}
	return f.Created[len(f.Created)-1]
}
