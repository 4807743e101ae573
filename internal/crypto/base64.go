package crypto

import (
	"encoding/base64"
	"errors"
)

// Header values (blinded messages, signed responses, tokens) use padded
// standard base64. Derived messages use the raw URL alphabet so they can
// travel in URLs and report IDs unchanged.
var (
	headerEncoding  = base64.StdEncoding
	messageEncoding = base64.RawURLEncoding
)

// lenientEncodings are tried in order by DecodeBase64.
var lenientEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// ToBase64 encodes a header value.
func ToBase64(data []byte) string { return headerEncoding.EncodeToString(data) }

// FromBase64 decodes a header value. Only padded standard base64 is
// accepted.
func FromBase64(s string) ([]byte, error) { return headerEncoding.DecodeString(s) }

// ToBase64URL encodes a derived message.
func ToBase64URL(data []byte) string { return messageEncoding.EncodeToString(data) }

// FromBase64URL decodes a derived message.
func FromBase64URL(s string) ([]byte, error) { return messageEncoding.DecodeString(s) }

// DecodeBase64 accepts any of the four RFC 4648 forms. Issuers are not
// consistent about which one their key commitments use.
func DecodeBase64(s string) ([]byte, error) {
	var errs []error
	for _, enc := range lenientEncodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}
