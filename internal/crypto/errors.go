package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedVersion is returned when no backend exists for a version.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")

	// ErrMalformedKey is returned when a committed key does not parse.
	ErrMalformedKey = errors.New("malformed key")

	// ErrDuplicateKeyID is returned when two keys share an ID.
	ErrDuplicateKeyID = fmt.Errorf("%w: duplicate key id", ErrMalformedKey)

	// ErrKeyTooSmall is returned for RSA keys below RSAMinBits.
	ErrKeyTooSmall = fmt.Errorf("%w: modulus too small", ErrMalformedKey)

	// ErrNoKeys is returned when blinding is attempted without keys.
	ErrNoKeys = errors.New("no keys")

	// ErrNotBlinded is returned when a response is finalized before Blind.
	ErrNotBlinded = errors.New("no pending blind message")

	// ErrBlindFailed is returned when the blinding operation itself fails.
	ErrBlindFailed = errors.New("blinding failed")

	// ErrMalformedMessage is returned when a blind message does not parse.
	ErrMalformedMessage = errors.New("malformed blind message")

	// ErrBatchUnsupported is returned for blind messages carrying more than
	// MaxBatchSize elements.
	ErrBatchUnsupported = fmt.Errorf("%w: batch issuance is not supported", ErrMalformedMessage)

	// ErrMalformedResponse is returned when a signed response does not parse.
	ErrMalformedResponse = errors.New("malformed signed response")

	// ErrVerificationFailed is returned when a signed response or token does
	// not verify.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrUnknownKeyID is returned when a response or token names a key that
	// is not registered.
	ErrUnknownKeyID = fmt.Errorf("%w: unknown key id", ErrVerificationFailed)

	// ErrMalformedToken is returned when a token does not parse.
	ErrMalformedToken = errors.New("malformed token")

	// ErrMalformedSigner is returned when serialized signing key material
	// does not parse.
	ErrMalformedSigner = errors.New("malformed signing key")
)
