package crypto

import (
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// derive expands secret into n bytes with HKDF-SHA-512 and an empty salt.
func derive(secret, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha512.New, secret, nil, info), out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}

// DeriveMessage maps a request context to the issuance message that gets
// blinded. The result is MessageSize bytes encoded as URL-safe base64, so
// the plaintext context never appears in it.
func DeriveMessage(requestContext string) (string, error) {
	msg, err := derive([]byte(requestContext), []byte(MessageContext), MessageSize)
	if err != nil {
		return "", err
	}
	return ToBase64URL(msg), nil
}
