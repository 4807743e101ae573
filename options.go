package attribution

import (
	"time"

	"go.uber.org/zap"

	"github.com/privatestate/attribution-go/internal/crypto"
)

// MessageFunc derives the plaintext issuance message from a request
// context. The result is blinded, so it never leaves the process in clear.
type MessageFunc func(requestContext string) (string, error)

// DefaultMessage derives a fixed-size message from requestContext with
// HKDF-SHA512.
func DefaultMessage(requestContext string) (string, error) {
	return crypto.DeriveMessage(requestContext)
}

// mediatorConfig holds configuration for a Mediator.
type mediatorConfig struct {
	newCryptographer CryptographerFactory
	message          MessageFunc
	logger           *zap.Logger
	metrics          *Metrics
	now              func() time.Time
}

// Option configures a Mediator.
type Option func(*mediatorConfig)

func defaultMediatorConfig() *mediatorConfig {
	return &mediatorConfig{
		newCryptographer: NewCryptographer,
		message:          DefaultMessage,
		logger:           zap.NewNop(),
		now:              time.Now,
	}
}

// WithCryptographerFactory sets how the Mediator creates its Cryptographer.
// Default: NewCryptographer.
func WithCryptographerFactory(f CryptographerFactory) Option {
	return func(c *mediatorConfig) {
		c.newCryptographer = f
	}
}

// WithMessageFunc sets the request context to message derivation.
// Default: DefaultMessage.
func WithMessageFunc(f MessageFunc) Option {
	return func(c *mediatorConfig) {
		c.message = f
	}
}

// WithLogger sets the logger. Messages, keys and tokens are never logged.
func WithLogger(l *zap.Logger) Option {
	return func(c *mediatorConfig) {
		c.logger = l
	}
}

// WithMetrics records verification outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(c *mediatorConfig) {
		c.metrics = m
	}
}

// WithClock sets the time source used to drop expired keys.
func WithClock(now func() time.Time) Option {
	return func(c *mediatorConfig) {
		c.now = now
	}
}
