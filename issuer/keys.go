package issuer

import (
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/privatestate/attribution-go/internal/crypto"
	"github.com/privatestate/attribution-go/protocol"
)

// ErrMalformedKeyFile is returned when a key file does not hold a signing key.
var ErrMalformedKeyFile = errors.New("malformed signing key file")

// pemExpiresHeader carries the key expiry in RFC 3339 form.
const pemExpiresHeader = "Expires"

// SigningKey is one issuer signing key and the expiry it is committed with.
type SigningKey struct {
	signer crypto.Signer
	public []byte
	// Expiry is when the key stops being committed. The zero value never
	// expires.
	Expiry time.Time
}

// GenerateKey creates a signing key with the given ID for version v.
func GenerateKey(v protocol.Version, id uint32, expiry time.Time) (*SigningKey, error) {
	s, err := crypto.GenerateSigner(v, id)
	if err != nil {
		return nil, err
	}
	return newSigningKey(s, expiry)
}

func newSigningKey(s crypto.Signer, expiry time.Time) (*SigningKey, error) {
	pub, err := s.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("public key %d: %w", s.KeyID(), err)
	}
	return &SigningKey{signer: s, public: pub, Expiry: expiry}, nil
}

// ID returns the key ID.
func (k *SigningKey) ID() uint32 { return k.signer.KeyID() }

// Version returns the protocol version of the key.
func (k *SigningKey) Version() protocol.Version { return k.signer.Version() }

// PublicKey returns the committed form of the key.
func (k *SigningKey) PublicKey() []byte {
	return append([]byte(nil), k.public...)
}

// Expired reports whether the key is past its expiry at now.
func (k *SigningKey) Expired(now time.Time) bool {
	return !k.Expiry.IsZero() && !now.Before(k.Expiry)
}

// EncodeKeyPEM serializes k as a PEM block. The expiry travels as a block
// header.
func EncodeKeyPEM(k *SigningKey) ([]byte, error) {
	der, err := k.signer.MarshalBinary()
	if err != nil {
		return nil, err
	}
	block := &pem.Block{Type: crypto.SignerPEMType, Bytes: der}
	if !k.Expiry.IsZero() {
		block.Headers = map[string]string{pemExpiresHeader: k.Expiry.UTC().Format(time.RFC3339)}
	}
	return pem.EncodeToMemory(block), nil
}

// DecodeKeyPEM parses a key written by EncodeKeyPEM.
func DecodeKeyPEM(data []byte) (*SigningKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != crypto.SignerPEMType {
		return nil, fmt.Errorf("%w: no %q block", ErrMalformedKeyFile, crypto.SignerPEMType)
	}
	s, err := crypto.ParseSigner(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKeyFile, err)
	}

	var expiry time.Time
	if raw, ok := block.Headers[pemExpiresHeader]; ok {
		expiry, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: expiry: %v", ErrMalformedKeyFile, err)
		}
	}
	return newSigningKey(s, expiry)
}

// LoadKeyFile reads a PEM signing key from path.
func LoadKeyFile(path string) (*SigningKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	k, err := DecodeKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return k, nil
}

// LoadKeyFiles reads every key in paths.
func LoadKeyFiles(paths ...string) ([]*SigningKey, error) {
	keys := make([]*SigningKey, 0, len(paths))
	for _, p := range paths {
		k, err := LoadKeyFile(p)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// WriteKeyFile writes k to path, readable by the owner only.
func WriteKeyFile(path string, k *SigningKey) error {
	data, err := EncodeKeyPEM(k)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
