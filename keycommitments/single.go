package keycommitments

import (
	"github.com/privatestate/attribution-go/protocol"
)

// NewSingle builds a snapshot holding one issuer with one non-expiring key.
func NewSingle(key []byte, version protocol.Version, issuerURL string) (*Snapshot, error) {
	return NewSnapshot(map[string]Commitment{
		issuerURL: {
			Version:   version,
			ID:        1,
			BatchSize: 1,
			Keys:      []Key{{Body: key}},
		},
	})
}
