package attribution

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/privatestate/attribution-go/keycommitments"
	"github.com/privatestate/attribution-go/protocol"
)

// FailurePolicy decides what happens to a request when verification fails.
type FailurePolicy int

const (
	// FailOpen lets the request proceed without verification.
	FailOpen FailurePolicy = iota
	// FailClosed aborts the request.
	FailClosed
)

func (p FailurePolicy) String() string {
	switch p {
	case FailOpen:
		return "fail-open"
	case FailClosed:
		return "fail-closed"
	}
	return fmt.Sprintf("FailurePolicy(%d)", int(p))
}

// Verification is the result of one verification cycle.
type Verification struct {
	// ReportID is the request context the issuance message was derived from.
	ReportID string
	Issuer   string
	Version  ProtocolVersion
	// Header is the redemption header value. Empty when Err is set.
	Header string
	// Err is the failure of the cycle, if any.
	Err error
}

// OK reports whether the cycle produced a token.
func (v *Verification) OK() bool {
	return v != nil && v.Err == nil && v.Header != ""
}

// Apply sets the redemption headers on a follow-up request.
func (v *Verification) Apply(req *http.Request) error {
	if !v.OK() {
		return fmt.Errorf("no token to apply: %w", ErrOutOfOrder)
	}
	req.Header.Set(protocol.HeaderToken, v.Header)
	req.Header.Set(protocol.HeaderCryptoVersion, v.Version.String())
	return nil
}

type helperConfig struct {
	policy       FailurePolicy
	issuer       string
	reportID     func() string
	mediatorOpts []Option
	logger       *zap.Logger
}

// HelperOption configures a RequestHelper.
type HelperOption func(*helperConfig)

// WithFailurePolicy sets the failure policy. Default: FailOpen.
func WithFailurePolicy(p FailurePolicy) HelperOption {
	return func(c *helperConfig) {
		c.policy = p
	}
}

// WithIssuerOrigin verifies against issuer instead of the origin of the
// request URL.
func WithIssuerOrigin(issuer string) HelperOption {
	return func(c *helperConfig) {
		c.issuer = issuer
	}
}

// WithReportIDFunc sets how report IDs are generated. Default: random UUIDs.
func WithReportIDFunc(f func() string) HelperOption {
	return func(c *helperConfig) {
		c.reportID = f
	}
}

// WithMediatorOptions passes opts to the Mediator of each request.
func WithMediatorOptions(opts ...Option) HelperOption {
	return func(c *helperConfig) {
		c.mediatorOpts = append(c.mediatorOpts, opts...)
	}
}

// WithHelperLogger sets the logger.
func WithHelperLogger(l *zap.Logger) HelperOption {
	return func(c *helperConfig) {
		c.logger = l
	}
}

// RequestHelper binds one verification cycle to one HTTP request and its
// response.
type RequestHelper struct {
	commitments keycommitments.Getter
	cfg         helperConfig

	mediator *Mediator
	reportID string
	done     bool
}

// NewRequestHelper creates a helper for a single request.
func NewRequestHelper(commitments keycommitments.Getter, opts ...HelperOption) *RequestHelper {
	cfg := helperConfig{
		policy:   FailOpen,
		reportID: uuid.NewString,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RequestHelper{commitments: commitments, cfg: cfg}
}

// ReportID returns the report ID of the cycle, once Begin ran.
func (h *RequestHelper) ReportID() string {
	return h.reportID
}

// Begin prepares issuance and attaches the verification headers to req.
//
// When the issuer has no commitment the request is left untouched and Begin
// returns nil. Other failures return an error only under FailClosed.
// Begin fails with ErrHeaderAlreadySet if req already carries a token
// header.
func (h *RequestHelper) Begin(req *http.Request) error {
	if req.Header.Get(protocol.HeaderToken) != "" {
		return ErrHeaderAlreadySet
	}
	if h.mediator != nil || h.done {
		return fmt.Errorf("Begin called twice: %w", ErrOutOfOrder)
	}
	h.done = true

	issuer := h.cfg.issuer
	if issuer == "" {
		issuer = req.URL.Scheme + "://" + req.URL.Host
	}

	h.reportID = h.cfg.reportID()
	m := NewMediator(h.commitments, append([]Option{WithLogger(h.cfg.logger)}, h.cfg.mediatorOpts...)...)
	iss, err := m.PrepareIssuance(issuer, h.reportID)
	if err != nil {
		if IsNoCommitment(err) {
			return nil
		}
		h.cfg.logger.Warn("attribution verification not attached",
			zap.String("issuer", issuer),
			zap.String("report_id", h.reportID),
			zap.Error(err))
		if h.cfg.policy == FailClosed {
			return err
		}
		return nil
	}

	req.Header.Set(protocol.HeaderToken, iss.Header)
	req.Header.Set(protocol.HeaderCryptoVersion, iss.Version.String())
	h.mediator = m
	return nil
}

// Finalize consumes the signed response header of resp.
//
// It returns nil, nil when Begin attached nothing. Otherwise the returned
// Verification records the outcome; under FailClosed a failed cycle is
// also returned as the error.
func (h *RequestHelper) Finalize(resp *http.Response) (*Verification, error) {
	m := h.mediator
	if m == nil {
		return nil, nil
	}
	h.mediator = nil

	v := &Verification{ReportID: h.reportID, Issuer: m.Issuer(), Version: m.Version()}

	signed, present := signedResponse(resp.Header)
	if !present {
		m.Abort()
		v.Err = &StageError{
			Stage:  StageIssuerRoundTrip,
			Issuer: m.Issuer(),
			Err:    fmt.Errorf("%w: response has no %s header", ErrMalformedResponse, protocol.HeaderToken),
		}
	} else {
		v.Header, v.Err = m.CompleteRedemption(signed)
	}

	if v.Err != nil {
		v.Header = ""
		h.cfg.logger.Warn("attribution verification failed",
			zap.String("issuer", v.Issuer),
			zap.String("report_id", v.ReportID),
			zap.Error(v.Err))
		if h.cfg.policy == FailClosed {
			return v, v.Err
		}
	}
	return v, nil
}

// Abort discards a prepared cycle, for example when the request failed.
func (h *RequestHelper) Abort() {
	if h.mediator != nil {
		h.mediator.Abort()
		h.mediator = nil
	}
}

// signedResponse returns the token header verbatim. Only the first value
// is used.
func signedResponse(header http.Header) (string, bool) {
	values := header.Values(protocol.HeaderToken)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Transport is an http.RoundTripper that runs a verification cycle for
// every request it sends.
type Transport struct {
	// Base is the underlying transport. Nil means http.DefaultTransport.
	Base http.RoundTripper
	// Commitments provides the key commitments.
	Commitments keycommitments.Getter
	// Options are applied to the RequestHelper of each request.
	Options []HelperOption
	// OnVerification, if set, receives every completed Verification.
	OnVerification func(*Verification)
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	h := NewRequestHelper(t.Commitments, t.Options...)
	out := req.Clone(req.Context())
	if err := h.Begin(out); err != nil {
		if errors.Is(err, ErrHeaderAlreadySet) {
			return base.RoundTrip(req)
		}
		return nil, err
	}

	resp, err := base.RoundTrip(out)
	if err != nil {
		h.Abort()
		return nil, err
	}

	v, err := h.Finalize(resp)
	if v != nil && t.OnVerification != nil {
		t.OnVerification(v)
	}
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}
