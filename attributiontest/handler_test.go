package attributiontest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/privatestate/attribution-go/protocol"
)

func TestVerificationHandler(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		handler    http.Handler
		path       string
		headers    bool
		wantStatus int
		wantToken  bool
	}{
		{"verification", VerificationHandler(nil), VerificationPathPrefix, true, http.StatusOK, true},
		{"sub path", VerificationHandler(nil), VerificationPathPrefix + "/report", true, http.StatusOK, true},
		{"redirect", VerificationHandler(nil), RedirectVerificationPath, true, http.StatusFound, true},
		{"missing headers", VerificationHandler(nil), VerificationPathPrefix, false, http.StatusBadRequest, false},
		{"other path", VerificationHandler(nil), "/other", true, http.StatusNotFound, false},
		{"other path with next", VerificationHandler(next), "/other", true, http.StatusTeapot, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.headers {
				req.Header.Set(protocol.HeaderToken, `"blind-x"`)
				req.Header.Set(protocol.HeaderCryptoVersion, protocol.VersionPrivateStateTokenV1VOPRF.String())
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			got := rec.Header().Get(protocol.HeaderToken)
			if tt.wantToken && got != TestBlindToken {
				t.Errorf("token header = %q, want %q", got, TestBlindToken)
			}
			if !tt.wantToken && got != "" {
				t.Errorf("unexpected token header %q", got)
			}
		})
	}
}

func TestVerificationHandler_RedirectLocation(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, RedirectVerificationPath, nil)
	req.Header.Set(protocol.HeaderToken, `"blind-x"`)
	req.Header.Set(protocol.HeaderCryptoVersion, protocol.VersionPrivateStateTokenV1VOPRF.String())
	rec := httptest.NewRecorder()
	VerificationHandler(nil).ServeHTTP(rec, req)

	if loc := rec.Header().Get("Location"); loc != VerificationPathPrefix {
		t.Errorf("Location = %q", loc)
	}
}
