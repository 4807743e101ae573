package crypto

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/blindsign/blindrsa"
	"golang.org/x/crypto/cryptobyte"

	"github.com/privatestate/attribution-go/protocol"
)

// Wire formats (all integers big-endian):
//
//	blind message:   u32 key_id | u16-prefixed blinded message
//	signed response: u32 key_id | u16-prefixed blind signature
//	token:           u32 key_id | u16-prefixed prepared message | u16-prefixed signature

const rsaVariant = blindrsa.SHA384PSSRandomized

type rsaClient struct {
	keys map[uint32]*rsa.PublicKey

	// pending exchange
	keyID    uint32
	client   *blindrsa.Client
	state    *blindrsa.State
	prepared []byte
}

func newRSAClient() *rsaClient {
	return &rsaClient{keys: make(map[uint32]*rsa.PublicKey)}
}

func parseRSAPublicKey(key []byte) (uint32, *rsa.PublicKey, error) {
	id, material, err := ParseKey(key)
	if err != nil {
		return 0, nil, err
	}
	parsed, err := x509.ParsePKIXPublicKey(material)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	pk, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return 0, nil, fmt.Errorf("%w: %T is not an RSA key", ErrMalformedKey, parsed)
	}
	if pk.N.BitLen() < RSAMinBits {
		return 0, nil, fmt.Errorf("%w: %d bits", ErrKeyTooSmall, pk.N.BitLen())
	}
	return id, pk, nil
}

func (c *rsaClient) AddKey(key []byte) error {
	id, pk, err := parseRSAPublicKey(key)
	if err != nil {
		return err
	}
	if _, ok := c.keys[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateKeyID, id)
	}
	c.keys[id] = pk
	return nil
}

func (c *rsaClient) KeyCount() int {
	return len(c.keys)
}

// Blind signs against the key with the highest ID, which is the newest key
// in a rotation window.
func (c *rsaClient) Blind(message []byte) ([]byte, error) {
	if len(c.keys) == 0 {
		return nil, ErrNoKeys
	}
	var id uint32
	first := true
	for k := range c.keys {
		if first || k > id {
			id, first = k, false
		}
	}

	client, err := blindrsa.NewClient(rsaVariant, c.keys[id])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlindFailed, err)
	}
	prepared, err := client.Prepare(random(), message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlindFailed, err)
	}
	blinded, state, err := client.Blind(random(), prepared)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlindFailed, err)
	}

	var b cryptobyte.Builder
	b.AddUint32(id)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(blinded)
	})
	out, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlindFailed, err)
	}

	c.keyID, c.client, c.state, c.prepared = id, &client, &state, prepared
	return out, nil
}

func (c *rsaClient) Finalize(response []byte) ([]byte, error) {
	if c.state == nil {
		return nil, ErrNotBlinded
	}
	keyID, client, state, prepared := c.keyID, c.client, c.state, c.prepared
	c.client, c.state, c.prepared = nil, nil, nil

	in := cryptobyte.String(response)
	var respID uint32
	var blindSig cryptobyte.String
	if !in.ReadUint32(&respID) || !in.ReadUint16LengthPrefixed(&blindSig) || !in.Empty() {
		return nil, fmt.Errorf("%w: bad framing", ErrMalformedResponse)
	}
	if respID != keyID {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKeyID, respID)
	}

	sig, err := client.Finalize(*state, blindSig)
	if errors.Is(err, blindrsa.ErrUnexpectedSize) {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	var b cryptobyte.Builder
	b.AddUint32(keyID)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(prepared)
	})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(sig)
	})
	return b.Bytes()
}

type rsaSigner struct {
	id uint32
	sk *rsa.PrivateKey
}

func generateRSASigner(id uint32, bits int) (*rsaSigner, error) {
	sk, err := rsa.GenerateKey(random(), bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &rsaSigner{id: id, sk: sk}, nil
}

func parseRSASigner(id uint32, material []byte) (*rsaSigner, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSigner, err)
	}
	sk, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not an RSA key", ErrMalformedSigner, parsed)
	}
	return &rsaSigner{id: id, sk: sk}, nil
}

func (s *rsaSigner) Version() protocol.Version {
	return protocol.VersionPrivateStateTokenV1BlindRSA
}

func (s *rsaSigner) KeyID() uint32 { return s.id }

func (s *rsaSigner) PublicKey() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&s.sk.PublicKey)
	if err != nil {
		return nil, err
	}
	return MarshalKey(s.id, der), nil
}

func (s *rsaSigner) MarshalBinary() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(s.sk)
	if err != nil {
		return nil, err
	}
	return marshalSigner(s.Version(), s.id, der)
}

func (s *rsaSigner) Sign(blindMessage []byte) ([]byte, error) {
	in := cryptobyte.String(blindMessage)
	var keyID uint32
	var blinded cryptobyte.String
	if !in.ReadUint32(&keyID) || !in.ReadUint16LengthPrefixed(&blinded) || !in.Empty() {
		return nil, ErrMalformedMessage
	}
	if keyID != s.id {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKeyID, keyID)
	}

	blindSig, err := blindrsa.NewSigner(s.sk).BlindSign(blinded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var b cryptobyte.Builder
	b.AddUint32(s.id)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(blindSig)
	})
	return b.Bytes()
}

func (s *rsaSigner) Verify(token []byte) ([]byte, error) {
	in := cryptobyte.String(token)
	var keyID uint32
	var prepared, sig cryptobyte.String
	if !in.ReadUint32(&keyID) || !in.ReadUint16LengthPrefixed(&prepared) ||
		!in.ReadUint16LengthPrefixed(&sig) || !in.Empty() {
		return nil, ErrMalformedToken
	}
	if keyID != s.id {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKeyID, keyID)
	}

	verifier, err := blindrsa.NewVerifier(rsaVariant, &s.sk.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := verifier.Verify(prepared, sig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return []byte(prepared), nil
}
