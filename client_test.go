package attribution_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	attribution "github.com/privatestate/attribution-go"
	"github.com/privatestate/attribution-go/issuer"
	"github.com/privatestate/attribution-go/protocol"
)

var clientVersions = []attribution.ProtocolVersion{
	attribution.VersionPrivateStateTokenV1VOPRF,
	attribution.VersionPrivateStateTokenV1BlindRSA,
}

// newIssuerServer starts an issuer whose origin is the test server's own
// URL. override, if set, handles requests before the issuer does and
// returns true when it answered.
func newIssuerServer(t *testing.T, v attribution.ProtocolVersion, override func(http.ResponseWriter, *http.Request) bool) (*httptest.Server, *issuer.Issuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if override != nil && override(w, r) {
			return
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	key, err := issuer.GenerateKey(v, 1, time.Time{})
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	iss, err := issuer.New(srv.URL, []*issuer.SigningKey{key})
	if err != nil {
		t.Fatalf("issuer.New() error = %v", err)
	}
	handler = issuer.NewServer(iss).Handler()
	return srv, iss
}

func newTestClient(t *testing.T, url string, opts ...attribution.ClientOption) *attribution.Client {
	t.Helper()
	c, err := attribution.NewClient(context.Background(), url, opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_VerifyAndRedeem(t *testing.T) {
	for _, v := range clientVersions {
		t.Run(v.String(), func(t *testing.T) {
			srv, iss := newIssuerServer(t, v, nil)
			c := newTestClient(t, srv.URL)
			ctx := context.Background()

			if _, ok := c.Commitments().Get(iss.Origin()); !ok {
				t.Fatalf("no commitment stored for %s", iss.Origin())
			}

			ver, err := c.Verify(ctx, "report-1")
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if !ver.OK() || ver.ReportID != "report-1" || ver.Version != v || ver.Issuer != iss.Origin() {
				t.Fatalf("Verify() = %+v", ver)
			}

			res, err := c.Redeem(ctx, ver)
			if err != nil {
				t.Fatalf("Redeem() error = %v", err)
			}
			if !res.Redeemed || res.Version != v || res.KeyID != 1 {
				t.Errorf("Redeem() = %+v", res)
			}

			_, err = c.Redeem(ctx, ver)
			if !errors.Is(err, attribution.ErrDoubleSpend) {
				t.Errorf("second Redeem() error = %v, want ErrDoubleSpend", err)
			}
			if stage, _ := attribution.FailedStage(err); stage != attribution.StageIssuerRedemption {
				t.Errorf("FailedStage() = %q, want %q", stage, attribution.StageIssuerRedemption)
			}
			var apiErr *attribution.APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
				t.Errorf("second Redeem() error = %v, want 409 APIError", err)
			}
		})
	}
}

func TestClient_RedeemNotRepeatedAfterGatewayError(t *testing.T) {
	var (
		inner   http.Handler
		redeems atomic.Int32
	)
	// The issuer records the redemption, then a gateway replaces its answer.
	srv, iss := newIssuerServer(t, attribution.VersionPrivateStateTokenV1VOPRF, func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path != protocol.RedeemPath {
			return false
		}
		redeems.Add(1)
		rec := httptest.NewRecorder()
		inner.ServeHTTP(rec, r)
		w.WriteHeader(http.StatusBadGateway)
		return true
	})
	inner = issuer.NewServer(iss).Handler()
	c := newTestClient(t, srv.URL, attribution.WithRetries(1))

	ver, err := c.Verify(context.Background(), "report-1")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	_, err = c.Redeem(context.Background(), ver)
	if errors.Is(err, attribution.ErrDoubleSpend) {
		t.Fatalf("Redeem() error = %v, a lost response must not turn into a double spend", err)
	}
	var apiErr *attribution.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("Redeem() error = %v, want 502 APIError", err)
	}
	if n := redeems.Load(); n != 1 {
		t.Errorf("redeem requests = %d, want 1", n)
	}
}

func TestClient_VerifyGeneratesReportID(t *testing.T) {
	srv, _ := newIssuerServer(t, attribution.VersionPrivateStateTokenV1VOPRF, nil)
	c := newTestClient(t, srv.URL)

	a, err := c.Verify(context.Background(), "")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	b, err := c.Verify(context.Background(), "")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if a.ReportID == "" || a.ReportID == b.ReportID {
		t.Errorf("report IDs = %q, %q, want distinct non-empty", a.ReportID, b.ReportID)
	}
}

func TestClient_IssuerRejectsIssuance(t *testing.T) {
	srv, _ := newIssuerServer(t, attribution.VersionPrivateStateTokenV1VOPRF, func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path != protocol.IssuePath {
			return false
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"key rotated","request_id":"req-9"}`))
		return true
	})
	c := newTestClient(t, srv.URL)

	_, err := c.Verify(context.Background(), "report")
	if !errors.Is(err, attribution.ErrIssuanceFailed) {
		t.Errorf("Verify() error = %v, want ErrIssuanceFailed", err)
	}
	if stage, _ := attribution.FailedStage(err); stage != attribution.StageIssuerRoundTrip {
		t.Errorf("FailedStage() = %q, want %q", stage, attribution.StageIssuerRoundTrip)
	}
	var apiErr *attribution.APIError
	if !errors.As(err, &apiErr) || apiErr.RequestID != "req-9" {
		t.Errorf("Verify() error = %v, want APIError with request ID", err)
	}
}

func TestClient_ForgedSignedResponse(t *testing.T) {
	srv, _ := newIssuerServer(t, attribution.VersionPrivateStateTokenV1VOPRF, func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path != protocol.IssuePath {
			return false
		}
		w.Header().Set(protocol.HeaderToken, "AAEAAAAB")
		return true
	})
	c := newTestClient(t, srv.URL)

	_, err := c.Verify(context.Background(), "report")
	if !errors.Is(err, attribution.ErrMalformedResponse) {
		t.Errorf("Verify() error = %v, want ErrMalformedResponse", err)
	}
	if stage, _ := attribution.FailedStage(err); stage != attribution.StageConfirmIssuance {
		t.Errorf("FailedStage() = %q, want %q", stage, attribution.StageConfirmIssuance)
	}
}

func notFound(w http.ResponseWriter, r *http.Request) bool {
	http.NotFound(w, r)
	return true
}

func TestNewClient_NoCommitment(t *testing.T) {
	srv, _ := newIssuerServer(t, attribution.VersionPrivateStateTokenV1VOPRF, notFound)

	_, err := attribution.NewClient(context.Background(), srv.URL)
	if !errors.Is(err, attribution.ErrNoCommitment) {
		t.Errorf("NewClient() error = %v, want ErrNoCommitment", err)
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := attribution.NewClient(context.Background(), "ftp://issuer.example")
	if !errors.Is(err, attribution.ErrInvalidOrigin) {
		t.Errorf("NewClient() error = %v, want ErrInvalidOrigin", err)
	}
}

func TestNewClient_CacheFallback(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "commitments")
	var down atomic.Bool
	srv, iss := newIssuerServer(t, attribution.VersionPrivateStateTokenV1VOPRF, func(w http.ResponseWriter, r *http.Request) bool {
		return down.Load() && notFound(w, r)
	})

	warm, err := attribution.NewClient(context.Background(), srv.URL, attribution.WithCachePath(cachePath))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if err := warm.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// The same origin now answers 404 for everything, so only the cache
	// can provide the commitment.
	down.Store(true)

	cold := newTestClient(t, srv.URL, attribution.WithCachePath(cachePath))
	c, ok := cold.Commitments().Get(iss.Origin())
	if !ok {
		t.Fatal("commitment not restored from cache")
	}
	if want := iss.Commitment().Bodies(); len(c.Keys) != len(want) {
		t.Errorf("cached keys = %d, want %d", len(c.Keys), len(want))
	}
}

func TestNewClient_CacheFallbackEmpty(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "commitments")
	srv, _ := newIssuerServer(t, attribution.VersionPrivateStateTokenV1VOPRF, notFound)

	_, err := attribution.NewClient(context.Background(), srv.URL, attribution.WithCachePath(cachePath))
	if !errors.Is(err, attribution.ErrNoCommitment) {
		t.Errorf("NewClient() error = %v, want ErrNoCommitment", err)
	}
}

func TestClient_RedeemWithoutToken(t *testing.T) {
	srv, _ := newIssuerServer(t, attribution.VersionPrivateStateTokenV1VOPRF, nil)
	c := newTestClient(t, srv.URL)

	_, err := c.Redeem(context.Background(), &attribution.Verification{Err: attribution.ErrVerificationFailed})
	if !errors.Is(err, attribution.ErrOutOfOrder) {
		t.Errorf("Redeem() error = %v, want ErrOutOfOrder", err)
	}
}

func TestClient_StartRefreshAndClose(t *testing.T) {
	srv, _ := newIssuerServer(t, attribution.VersionPrivateStateTokenV1VOPRF, nil)
	c, err := attribution.NewClient(context.Background(), srv.URL, attribution.WithRefreshInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.IssuerURL() != srv.URL {
		t.Errorf("IssuerURL() = %q, want %q", c.IssuerURL(), srv.URL)
	}

	if err := c.StartRefresh(context.Background()); err != nil {
		t.Fatalf("StartRefresh() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := c.StartRefresh(context.Background()); !errors.Is(err, attribution.ErrClientClosed) {
		t.Errorf("StartRefresh() after Close error = %v, want ErrClientClosed", err)
	}
}
