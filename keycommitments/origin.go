package keycommitments

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/privatestate/attribution-go/internal/verifyerrors"
)

// NormalizeOrigin reduces an issuer URL to its origin,
// scheme://host[:port], lowercased, with default ports dropped. Only http
// and https URLs are accepted.
func NormalizeOrigin(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", verifyerrors.ErrInvalidOrigin, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", verifyerrors.ErrInvalidOrigin, u.Scheme)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: userinfo not allowed", verifyerrors.ErrInvalidOrigin)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host in %q", verifyerrors.ErrInvalidOrigin, rawURL)
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		return scheme + "://" + net.JoinHostPort(host, port), nil
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return scheme + "://" + host, nil
}
