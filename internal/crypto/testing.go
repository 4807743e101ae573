package crypto

import "io"

// SetRandReaderForTesting replaces the randomness used to generate keys and
// blind messages, and returns a func that restores it. Tests use it to get
// reproducible keys.
func SetRandReaderForTesting(r io.Reader) func() {
	prev := randReader
	randReader = r
	return func() { randReader = prev }
}
