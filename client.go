package attribution

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/privatestate/attribution-go/internal/api"
	"github.com/privatestate/attribution-go/keycommitments"
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	httpClient      *http.Client
	retries         int
	retryOn         []int
	refreshInterval time.Duration
	cachePath       string
	logger          *zap.Logger
	mediatorOpts    []Option
}

// ClientOption configures the client.
type ClientOption func(*clientConfig)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithRetries sets the number of retries for issuer calls.
func WithRetries(count int) ClientOption {
	return func(c *clientConfig) {
		c.retries = count
	}
}

// WithRetryOn sets the HTTP status codes that trigger a retry.
// Default: [408, 429, 500, 502, 503, 504]
func WithRetryOn(statusCodes []int) ClientOption {
	return func(c *clientConfig) {
		c.retryOn = statusCodes
	}
}

// WithRefreshInterval sets how often key commitments are refetched once
// StartRefresh is called. Default: 1 hour.
func WithRefreshInterval(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.refreshInterval = d
	}
}

// WithCachePath persists fetched key commitments in a LevelDB database at
// path, so a restarted client can verify before its first fetch succeeds.
func WithCachePath(path string) ClientOption {
	return func(c *clientConfig) {
		c.cachePath = path
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithClientMediatorOptions passes opts to every Mediator the client creates.
func WithClientMediatorOptions(opts ...Option) ClientOption {
	return func(c *clientConfig) {
		c.mediatorOpts = append(c.mediatorOpts, opts...)
	}
}

// RedeemResult is an issuer's answer to a redemption.
type RedeemResult struct {
	Redeemed bool
	Version  ProtocolVersion
	KeyID    uint32
}

// Client runs complete verification cycles against one live issuer: it
// fetches the issuer's key commitments, sends issuance requests and
// presents tokens for redemption.
type Client struct {
	api       *api.Client
	store     *keycommitments.Store
	refresher *keycommitments.Refresher
	cache     *keycommitments.DiskCache
	cfg       *clientConfig

	mu      sync.Mutex
	started bool
	closed  bool
}

// buildAPIClient creates and configures an API client from the given config.
func buildAPIClient(issuerURL string, cfg *clientConfig) (*api.Client, error) {
	apiOpts := []api.Option{api.WithLogger(cfg.logger)}
	if cfg.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(cfg.httpClient))
	}
	if cfg.retries > 0 || len(cfg.retryOn) > 0 {
		rc := api.DefaultRetryConfig()
		if cfg.retries > 0 {
			rc.MaxRetries = cfg.retries
		}
		if len(cfg.retryOn) > 0 {
			retryOn := cfg.retryOn
			rc.RetryableOn = func(statusCode int) bool {
				return slices.Contains(retryOn, statusCode)
			}
		}
		apiOpts = append(apiOpts, api.WithRetryConfig(rc))
	}
	return api.New(issuerURL, apiOpts...)
}

// NewClient creates a client for the issuer at issuerURL and fetches its
// key commitments. If the fetch fails but a cache is configured, the
// cached commitments are used.
func NewClient(ctx context.Context, issuerURL string, opts ...ClientOption) (*Client, error) {
	if _, err := keycommitments.NormalizeOrigin(issuerURL); err != nil {
		return nil, err
	}

	cfg := &clientConfig{
		refreshInterval: keycommitments.RefreshInterval,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	apiClient, err := buildAPIClient(issuerURL, cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		api:   apiClient,
		store: keycommitments.NewStore(nil),
		cfg:   cfg,
	}

	refresherOpts := []keycommitments.RefresherOption{
		keycommitments.WithRefreshInterval(cfg.refreshInterval),
		keycommitments.WithSupportedVersions(SupportsVersion),
		keycommitments.WithRefresherLogger(cfg.logger),
	}
	if cfg.cachePath != "" {
		cache, err := keycommitments.OpenDiskCache(cfg.cachePath)
		if err != nil {
			return nil, err
		}
		c.cache = cache
		refresherOpts = append(refresherOpts, keycommitments.WithDiskCache(cache))
	}
	c.refresher = keycommitments.NewRefresher(apiClient, c.store, refresherOpts...)

	if err := c.refresher.Refresh(ctx); err != nil {
		if c.cache == nil {
			return nil, fmt.Errorf("fetch key commitments: %w", wrapError(err))
		}
		snap, cerr := c.cache.Load(time.Now())
		if cerr != nil {
			c.cache.Close()
			return nil, fmt.Errorf("fetch key commitments: %w", wrapError(err))
		}
		cfg.logger.Warn("using cached key commitments", zap.Error(err))
		c.refresher.Seed(snap)
	}

	return c, nil
}

// IssuerURL returns the issuer base URL.
func (c *Client) IssuerURL() string {
	return c.api.BaseURL()
}

// Commitments returns the store holding the issuer's key commitments.
func (c *Client) Commitments() *keycommitments.Store {
	return c.store
}

// StartRefresh refetches key commitments in the background until ctx is
// done or Close is called.
func (c *Client) StartRefresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if err := c.refresher.Start(ctx); err != nil {
		return err
	}
	c.started = true
	return nil
}

// Verify runs one issuance-then-redemption cycle with requestContext. An
// empty requestContext gets a random report ID.
func (c *Client) Verify(ctx context.Context, requestContext string) (*Verification, error) {
	if requestContext == "" {
		requestContext = uuid.NewString()
	}

	m := NewMediator(c.store, append([]Option{WithLogger(c.cfg.logger)}, c.cfg.mediatorOpts...)...)
	iss, err := m.PrepareIssuance(c.api.BaseURL(), requestContext)
	if err != nil {
		return nil, err
	}

	signed, err := c.api.Issue(ctx, iss.Version, iss.Header)
	if err != nil {
		m.Abort()
		return nil, &StageError{Stage: StageIssuerRoundTrip, Issuer: iss.Issuer, Err: wrapError(err)}
	}

	header, err := m.CompleteRedemption(signed)
	if err != nil {
		return nil, err
	}
	return &Verification{
		ReportID: requestContext,
		Issuer:   iss.Issuer,
		Version:  iss.Version,
		Header:   header,
	}, nil
}

// Redeem presents the token of v to the issuer.
func (c *Client) Redeem(ctx context.Context, v *Verification) (*RedeemResult, error) {
	if !v.OK() {
		return nil, fmt.Errorf("no token to redeem: %w", ErrOutOfOrder)
	}
	res, err := c.api.Redeem(ctx, v.Version, v.Header)
	if err != nil {
		return nil, &StageError{Stage: StageIssuerRedemption, Issuer: v.Issuer, Err: wrapError(err)}
	}
	return &RedeemResult{Redeemed: res.Redeemed, Version: res.Version, KeyID: res.KeyID}, nil
}

// Close stops background refreshing and closes the cache.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.started {
		c.refresher.Stop()
	}
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}
