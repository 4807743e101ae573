package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/privatestate/attribution-go/protocol"
)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent is sent when no other is configured.
	DefaultUserAgent = "attribution-go"

	maxCommitmentSize = 1 << 20
)

// Client talks to one issuer.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *RetryConfig
	userAgent  string
	logger     *zap.Logger
}

// Option configures the API client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryConfig replaces the default retry policy.
func WithRetryConfig(rc *RetryConfig) Option {
	return func(c *Client) {
		c.retry = rc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger. Header values are never logged.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for the issuer at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid issuer URL %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retry:      DefaultRetryConfig(),
		userAgent:  DefaultUserAgent,
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the issuer URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetKeyCommitments fetches the raw key commitment document.
func (c *Client) GetKeyCommitments(ctx context.Context) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, protocol.KeyCommitmentPath, nil, EndpointKeyCommitment)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCommitmentSize))
	if err != nil {
		return nil, &NetworkError{Err: err, URL: c.baseURL + protocol.KeyCommitmentPath}
	}
	return body, nil
}

// Issue submits an issuance header and returns the issuer's signed
// response header, verbatim.
func (c *Client) Issue(ctx context.Context, version protocol.Version, issuanceHeader string) (string, error) {
	headers := http.Header{}
	headers.Set(protocol.HeaderCryptoVersion, version.String())
	headers.Set(protocol.HeaderToken, issuanceHeader)

	resp, err := c.do(ctx, http.MethodPost, protocol.IssuePath, headers, EndpointIssue)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	signed := resp.Header.Get(protocol.HeaderToken)
	if signed == "" {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Message:    "response has no " + protocol.HeaderToken + " header",
			Endpoint:   EndpointIssue,
		}
	}
	return signed, nil
}

// RedeemResult is the issuer's answer to a redemption.
type RedeemResult struct {
	Redeemed bool             `json:"redeemed"`
	Version  protocol.Version `json:"version"`
	KeyID    uint32           `json:"key_id"`
}

// Redeem presents a redemption header to the issuer.
func (c *Client) Redeem(ctx context.Context, version protocol.Version, tokenHeader string) (*RedeemResult, error) {
	headers := http.Header{}
	headers.Set(protocol.HeaderCryptoVersion, version.String())
	headers.Set(protocol.HeaderToken, tokenHeader)

	resp, err := c.do(ctx, http.MethodPost, protocol.RedeemPath, headers, EndpointRedeem)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result RedeemResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// do sends the request, retrying per the retry policy. On success the caller
// owns resp.Body.
func (c *Client) do(ctx context.Context, method, path string, headers http.Header, ep Endpoint) (*http.Response, error) {
	target := c.baseURL + path

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range headers {
			req.Header[k] = v
		}
		req.Header.Set("User-Agent", c.userAgent)

		var retryResp *http.Response
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil || attempt >= c.retry.MaxRetries || !ep.idempotent() {
				return nil, &NetworkError{Err: err, URL: target, Attempt: attempt + 1}
			}
			c.logger.Debug("request failed, retrying",
				zap.String("endpoint", string(ep)),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		} else if resp.StatusCode < 400 {
			return resp, nil
		} else if !c.shouldRetry(ep, attempt, resp.StatusCode) {
			defer resp.Body.Close()
			return nil, parseErrorResponse(resp, ep)
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			retryResp = resp
			c.logger.Debug("retryable status, retrying",
				zap.String("endpoint", string(ep)),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1))
		}

		if err := c.retry.waitFor(ctx, attempt, retryResp); err != nil {
			return nil, &NetworkError{Err: err, URL: target, Attempt: attempt + 1}
		}
	}
}

// shouldRetry applies the retry policy. A redemption may already have been
// recorded by the issuer when the response is lost or replaced by a gateway
// error; repeating it would then be rejected as a double spend. It is only
// repeated after 429, which the issuer answers before looking at the token.
func (c *Client) shouldRetry(ep Endpoint, attempt, statusCode int) bool {
	if !ep.idempotent() && statusCode != http.StatusTooManyRequests {
		return false
	}
	return c.retry.ShouldRetry(attempt, statusCode)
}

func parseErrorResponse(resp *http.Response, ep Endpoint) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}

	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errResp.Error,
			RequestID:  errResp.RequestID,
			Endpoint:   ep,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
		Endpoint:   ep,
	}
}
