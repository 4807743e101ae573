package crypto

import (
	"crypto/rand"
	"io"
)

// randReader is the random source used for key generation and blinding.
// It defaults to nil (which uses crypto/rand) but can be overridden for testing.
var randReader io.Reader

func random() io.Reader {
	if randReader != nil {
		return randReader
	}
	return rand.Reader
}
