package attribution

import (
	"fmt"

	"github.com/privatestate/attribution-go/internal/crypto"
	"github.com/privatestate/attribution-go/internal/session"
	"github.com/privatestate/attribution-go/protocol"
)

// ProtocolVersion identifies the blind-signature scheme an issuer committed to.
type ProtocolVersion = protocol.Version

// Protocol versions.
const (
	VersionUnknown                     = protocol.VersionUnknown
	VersionPrivateStateTokenV1VOPRF    = protocol.VersionPrivateStateTokenV1VOPRF
	VersionPrivateStateTokenV1PMB      = protocol.VersionPrivateStateTokenV1PMB
	VersionPrivateStateTokenV1BlindRSA = protocol.VersionPrivateStateTokenV1BlindRSA
)

// Cryptographer provides the blind-signature primitives for one session.
//
// A session is used for exactly one issuance and at most one redemption:
// Initialize once, AddKey one or more times, BeginIssuance once, then
// ConfirmIssuanceAndBeginRedemption once. A call out of that order fails
// and leaves the session unusable. Sessions are never reused across
// requests.
type Cryptographer interface {
	// Initialize selects the protocol version of the session.
	Initialize(version ProtocolVersion) error

	// AddKey registers one committed issuer key.
	AddKey(key []byte) error

	// BeginIssuance blinds message and returns the blind message.
	BeginIssuance(message string) (string, error)

	// ConfirmIssuanceAndBeginRedemption verifies the issuer's signed response
	// against the pending blind message and returns the unblinded token.
	ConfirmIssuanceAndBeginRedemption(signedResponseHeader string) (string, error)
}

// CryptographerFactory creates a fresh Cryptographer session.
type CryptographerFactory func() Cryptographer

// SupportsVersion reports whether NewCryptographer can run version v.
func SupportsVersion(v ProtocolVersion) bool {
	return crypto.SupportsVersion(v)
}

// cryptographer is the Cryptographer backed by circl. Blind messages,
// signed responses and tokens are standard base64 of the backend wire
// encoding.
type cryptographer struct {
	state   session.Machine
	version ProtocolVersion
	client  crypto.Client
}

// NewCryptographer returns a Cryptographer supporting the VOPRF and
// blind RSA protocol versions.
//
// Keys are validated when added: a key that does not parse for the
// session's version fails AddKey with ErrMalformedKey.
func NewCryptographer() Cryptographer {
	return &cryptographer{}
}

func (c *cryptographer) Initialize(version ProtocolVersion) error {
	if err := c.state.Enter("Initialize", session.Uninitialized); err != nil {
		return err
	}
	client, err := crypto.NewClient(version)
	if err != nil {
		return c.state.FailWith(wrapError(err))
	}
	c.version = version
	c.client = client
	c.state.Advance(session.Initialized)
	return nil
}

func (c *cryptographer) AddKey(key []byte) error {
	if err := c.state.Enter("AddKey", session.Initialized, session.Keyed); err != nil {
		return err
	}
	if err := c.client.AddKey(key); err != nil {
		return c.state.FailWith(wrapError(err))
	}
	c.state.Advance(session.Keyed)
	return nil
}

func (c *cryptographer) BeginIssuance(message string) (string, error) {
	if c.state.State() == session.Initialized {
		return "", c.state.FailWith(fmt.Errorf("BeginIssuance: %w", ErrNoKeys))
	}
	if err := c.state.Enter("BeginIssuance", session.Keyed); err != nil {
		return "", err
	}
	blind, err := c.client.Blind([]byte(message))
	if err != nil {
		return "", c.state.FailWith(wrapError(err))
	}
	c.state.Advance(session.Issuing)
	return crypto.ToBase64(blind), nil
}

func (c *cryptographer) ConfirmIssuanceAndBeginRedemption(signedResponseHeader string) (string, error) {
	if err := c.state.Enter("ConfirmIssuanceAndBeginRedemption", session.Issuing); err != nil {
		return "", err
	}
	raw, err := crypto.FromBase64(signedResponseHeader)
	if err != nil || len(raw) == 0 {
		return "", c.state.FailWith(fmt.Errorf("%w: signed response is not base64", ErrMalformedResponse))
	}
	token, err := c.client.Finalize(raw)
	if err != nil {
		return "", c.state.FailWith(wrapError(err))
	}
	c.client = nil
	c.state.Advance(session.Redeemed)
	return crypto.ToBase64(token), nil
}
