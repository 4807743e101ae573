package crypto

import (
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"github.com/privatestate/attribution-go/protocol"
)

// SignerPEMType is the PEM block type used for serialized signing keys.
const SignerPEMType = "PRIVATE STATE TOKEN SIGNING KEY"

// MarshalKey frames public key material with its key ID, producing the
// byte string published in key commitments.
func MarshalKey(id uint32, material []byte) []byte {
	var b cryptobyte.Builder
	b.AddUint32(id)
	b.AddBytes(material)
	return b.BytesOrPanic()
}

// ParseKey splits a committed key into its ID and material.
func ParseKey(key []byte) (uint32, []byte, error) {
	s := cryptobyte.String(key)
	var id uint32
	if !s.ReadUint32(&id) || s.Empty() {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrMalformedKey, len(key))
	}
	return id, []byte(s), nil
}

// KeyID returns the ID of a committed key.
func KeyID(key []byte) (uint32, error) {
	id, _, err := ParseKey(key)
	return id, err
}

// marshalSigner writes the version, ID and private material of a signer.
func marshalSigner(v protocol.Version, id uint32, material []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(v.String()))
	})
	b.AddUint32(id)
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(material)
	})
	return b.Bytes()
}

// ParseSigner restores a signer serialized with Signer.MarshalBinary.
func ParseSigner(data []byte) (Signer, error) {
	s := cryptobyte.String(data)
	var name, material cryptobyte.String
	var id uint32
	if !s.ReadUint8LengthPrefixed(&name) || !s.ReadUint32(&id) ||
		!s.ReadUint24LengthPrefixed(&material) || !s.Empty() {
		return nil, ErrMalformedSigner
	}

	v, err := protocol.ParseVersion(string(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSigner, err)
	}

	switch v {
	case protocol.VersionPrivateStateTokenV1VOPRF:
		return parseVOPRFSigner(id, material)
	case protocol.VersionPrivateStateTokenV1BlindRSA:
		return parseRSASigner(id, material)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}
}

// EncodeSignerPEM serializes a signer as a PEM block.
func EncodeSignerPEM(s Signer) ([]byte, error) {
	der, err := s.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: SignerPEMType, Bytes: der}), nil
}

// DecodeSignerPEM parses a PEM block written by EncodeSignerPEM.
func DecodeSignerPEM(data []byte) (Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != SignerPEMType {
		return nil, fmt.Errorf("%w: no %q PEM block", ErrMalformedSigner, SignerPEMType)
	}
	return ParseSigner(block.Bytes)
}
