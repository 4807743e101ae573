package attributiontest

import (
	"net/http"
	"strings"

	"github.com/privatestate/attribution-go/protocol"
)

const (
	// TestBlindToken is the signed response the verification handler sends.
	TestBlindToken = "blind-token"
	// VerificationPathPrefix is the path prefix the handler answers under.
	VerificationPathPrefix = "/test-verification"
	// RedirectVerificationPath answers with a redirect instead of 200.
	RedirectVerificationPath = "/test-verification/server-redirect"
)

// VerificationHandler answers requests under VerificationPathPrefix like
// an issuer would: it requires the token and crypto version headers and
// responds with TestBlindToken as the signed response. Requests to
// RedirectVerificationPath get a 302 back to VerificationPathPrefix.
// Other paths go to next, or get a 404 when next is nil.
func VerificationHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, VerificationPathPrefix) {
			if next == nil {
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get(protocol.HeaderToken) == "" || r.Header.Get(protocol.HeaderCryptoVersion) == "" {
			http.Error(w, "missing verification headers", http.StatusBadRequest)
			return
		}

		w.Header().Set(protocol.HeaderToken, TestBlindToken)
		if r.URL.Path == RedirectVerificationPath {
			w.Header().Set("Location", VerificationPathPrefix)
			w.WriteHeader(http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}
