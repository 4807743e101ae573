package keycommitments

import (
	"bytes"
	"time"

	"github.com/privatestate/attribution-go/protocol"
)

// Key is one committed signing key.
type Key struct {
	// Body is the opaque key as passed to Cryptographer.AddKey.
	Body []byte
	// Expiry is when the key stops being usable. The zero value never expires.
	Expiry time.Time
}

// Expired reports whether the key is past its expiry at now.
func (k Key) Expired(now time.Time) bool {
	return !k.Expiry.IsZero() && !now.Before(k.Expiry)
}

// Commitment is an issuer's key set for one protocol version.
type Commitment struct {
	Version   protocol.Version
	ID        int
	BatchSize int
	Keys      []Key
}

// Bodies returns the key bodies in commitment order.
func (c Commitment) Bodies() [][]byte {
	out := make([][]byte, len(c.Keys))
	for i, k := range c.Keys {
		out[i] = k.Body
	}
	return out
}

// Unexpired returns a copy of c without keys that are expired at now.
func (c Commitment) Unexpired(now time.Time) Commitment {
	out := c
	out.Keys = nil
	for _, k := range c.Keys {
		if !k.Expired(now) {
			out.Keys = append(out.Keys, Key{Body: bytes.Clone(k.Body), Expiry: k.Expiry})
		}
	}
	return out
}

func (c Commitment) clone() Commitment {
	out := c
	out.Keys = make([]Key, len(c.Keys))
	for i, k := range c.Keys {
		out.Keys[i] = Key{Body: bytes.Clone(k.Body), Expiry: k.Expiry}
	}
	return out
}
