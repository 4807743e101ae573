package issuer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/privatestate/attribution-go/internal/api"
	"github.com/privatestate/attribution-go/protocol"
)

// RequestIDHeader carries the ID of a request in responses.
const RequestIDHeader = "X-Request-Id"

// HealthPath and MetricsPath are the operational endpoints.
const (
	HealthPath  = "/healthz"
	MetricsPath = "/metrics"
)

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes an Issuer over HTTP.
type Server struct {
	issuer   *Issuer
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	engine   *gin.Engine
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the request logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithGatherer serves g on MetricsPath. Without it the endpoint is absent.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewServer creates the HTTP server for iss.
func NewServer(iss *Issuer, opts ...ServerOption) *Server {
	s := &Server{issuer: iss, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestID, s.accessLog)
	s.engine = r
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET(protocol.KeyCommitmentPath, s.keyCommitment)
	s.engine.POST(protocol.IssuePath, s.issue)
	s.engine.POST(protocol.RedeemPath, s.redeem)
	s.engine.GET(HealthPath, s.health)
	if s.gatherer != nil {
		s.engine.GET(MetricsPath, gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("issuer listening", zap.String("addr", addr), zap.String("origin", s.issuer.Origin()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestID(c *gin.Context) {
	id := c.GetHeader(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	c.Header(RequestIDHeader, id)
	c.Next()
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", c.GetString("request_id")))
}

func (s *Server) keyCommitment(c *gin.Context) {
	body, err := s.issuer.CommitmentJSON()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) issue(c *gin.Context) {
	version, header, ok := s.protocolHeaders(c)
	if !ok {
		return
	}
	signed, err := s.issuer.Issue(version, header)
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	c.Header(protocol.HeaderToken, signed)
	c.Status(http.StatusOK)
}

func (s *Server) redeem(c *gin.Context) {
	version, header, ok := s.protocolHeaders(c)
	if !ok {
		return
	}
	r, err := s.issuer.Redeem(c.Request.Context(), version, header)
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, api.RedeemResult{Redeemed: true, Version: r.Version, KeyID: r.KeyID})
}

func (s *Server) health(c *gin.Context) {
	if p, ok := s.issuer.cfg.spent.(pinger); ok {
		if err := p.Ping(c.Request.Context()); err != nil {
			s.fail(c, http.StatusServiceUnavailable, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) protocolHeaders(c *gin.Context) (string, string, bool) {
	version := c.GetHeader(protocol.HeaderCryptoVersion)
	header := c.GetHeader(protocol.HeaderToken)
	if version == "" || header == "" {
		s.fail(c, http.StatusBadRequest, errors.New("missing "+protocol.HeaderCryptoVersion+" or "+protocol.HeaderToken+" header"))
		return "", "", false
	}
	return version, header, true
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), RequestID: c.GetString("request_id")})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrDoubleSpend):
		return http.StatusConflict
	case errors.Is(err, ErrSpentStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
