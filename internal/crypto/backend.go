package crypto

import (
	"fmt"

	"github.com/privatestate/attribution-go/protocol"
)

// Client is the client half of one blind-signature exchange. It keeps the
// blinding secret between Blind and Finalize. Callers are responsible for
// ordering: a Client is not safe for concurrent use.
type Client interface {
	// AddKey registers one committed key, validating it for the version.
	AddKey(key []byte) error
	// KeyCount returns the number of registered keys.
	KeyCount() int
	// Blind blinds message and returns the wire-encoded blind message.
	Blind(message []byte) ([]byte, error)
	// Finalize verifies a wire-encoded signed response against the pending
	// blind message and returns the wire-encoded token.
	Finalize(response []byte) ([]byte, error)
}

// Signer is the issuer half of the exchange for one signing key.
type Signer interface {
	Version() protocol.Version
	KeyID() uint32
	// PublicKey returns the committed key: key ID followed by public material.
	PublicKey() ([]byte, error)
	// Sign evaluates a wire-encoded blind message.
	Sign(blindMessage []byte) ([]byte, error)
	// Verify checks a wire-encoded token and returns the message it covers.
	Verify(token []byte) ([]byte, error)
	// MarshalBinary serializes the private key for ParseSigner.
	MarshalBinary() ([]byte, error)
}

// NewClient returns a fresh client for version v.
func NewClient(v protocol.Version) (Client, error) {
	switch v {
	case protocol.VersionPrivateStateTokenV1VOPRF:
		return newVOPRFClient(), nil
	case protocol.VersionPrivateStateTokenV1BlindRSA:
		return newRSAClient(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}
}

// GenerateSigner creates a signing key with the given ID for version v.
func GenerateSigner(v protocol.Version, id uint32) (Signer, error) {
	switch v {
	case protocol.VersionPrivateStateTokenV1VOPRF:
		return generateVOPRFSigner(id)
	case protocol.VersionPrivateStateTokenV1BlindRSA:
		return generateRSASigner(id, RSADefaultBits)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}
}

// SupportsVersion reports whether a backend exists for v.
func SupportsVersion(v protocol.Version) bool {
	return v == protocol.VersionPrivateStateTokenV1VOPRF ||
		v == protocol.VersionPrivateStateTokenV1BlindRSA
}
