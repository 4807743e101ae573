package issuer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/privatestate/attribution-go/internal/crypto"
	"github.com/privatestate/attribution-go/internal/verifyerrors"
	"github.com/privatestate/attribution-go/keycommitments"
	"github.com/privatestate/attribution-go/protocol"
	"github.com/privatestate/attribution-go/sfv"
)

// DefaultSpentTTL is how long a token signed by a key without expiry is
// remembered after redemption.
const DefaultSpentTTL = 7 * 24 * time.Hour

var (
	// ErrNoSigningKeys is returned by New without keys.
	ErrNoSigningKeys = errors.New("no signing keys")

	// ErrMixedVersions is returned by New when keys use different versions.
	ErrMixedVersions = errors.New("signing keys use different protocol versions")

	// ErrDuplicateKeyID is returned by New when two keys share an ID.
	ErrDuplicateKeyID = errors.New("duplicate signing key id")

	// ErrVersionMismatch is returned when a request names another version
	// than the issuer's.
	ErrVersionMismatch = fmt.Errorf("%w: version header does not match issuer", verifyerrors.ErrUnsupportedVersion)

	// ErrBatchUnsupported is returned when an issuance request does not
	// carry exactly one blind message.
	ErrBatchUnsupported = fmt.Errorf("%w: exactly one blind message per request", verifyerrors.ErrMalformedHeader)

	// ErrNoActiveKey is returned when every signing key has expired.
	ErrNoActiveKey = fmt.Errorf("%w: no unexpired signing key", verifyerrors.ErrIssuanceFailed)

	// ErrSpentStoreUnavailable is returned when the spent token store fails.
	ErrSpentStoreUnavailable = errors.New("spent token store unavailable")

	// ErrDoubleSpend is returned when a token was already redeemed.
	ErrDoubleSpend = verifyerrors.ErrDoubleSpend
)

// Redemption describes an accepted token.
type Redemption struct {
	Version protocol.Version
	KeyID   uint32
	// Message is the message the token covers.
	Message []byte
}

type config struct {
	spent        SpentStore
	logger       *zap.Logger
	metrics      *Metrics
	commitmentID int
	spentTTL     time.Duration
	now          func() time.Time
}

// Option configures an Issuer.
type Option func(*config)

// WithSpentStore sets where redeemed tokens are recorded. Default: a
// MemorySpentStore.
func WithSpentStore(s SpentStore) Option {
	return func(c *config) {
		c.spent = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics records issuance and redemption outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithCommitmentID sets the id field of the published commitment.
// Default: 1.
func WithCommitmentID(id int) Option {
	return func(c *config) {
		c.commitmentID = id
	}
}

// WithSpentTTL sets how long tokens of keys without expiry are remembered.
// Default: DefaultSpentTTL.
func WithSpentTTL(d time.Duration) Option {
	return func(c *config) {
		c.spentTTL = d
	}
}

// WithClock sets the time source for key expiry.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// Issuer signs blind messages and redeems tokens for one origin. It is
// safe for concurrent use.
type Issuer struct {
	origin  string
	version protocol.Version
	keys    []*SigningKey
	byID    map[uint32]*SigningKey
	cfg     config
}

// New creates an issuer for origin signing with keys. All keys must share
// one protocol version and have distinct IDs.
func New(origin string, keys []*SigningKey, opts ...Option) (*Issuer, error) {
	normalized, err := keycommitments.NormalizeOrigin(origin)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrNoSigningKeys
	}

	cfg := config{
		logger:       zap.NewNop(),
		commitmentID: 1,
		spentTTL:     DefaultSpentTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.spent == nil {
		cfg.spent = NewMemorySpentStore(MemorySpentStoreConfig{Now: cfg.now})
	}

	iss := &Issuer{
		origin:  normalized,
		version: keys[0].Version(),
		byID:    make(map[uint32]*SigningKey, len(keys)),
		cfg:     cfg,
	}
	for _, k := range keys {
		if k.Version() != iss.version {
			return nil, fmt.Errorf("%w: %s and %s", ErrMixedVersions, iss.version, k.Version())
		}
		if _, dup := iss.byID[k.ID()]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateKeyID, k.ID())
		}
		iss.byID[k.ID()] = k
		iss.keys = append(iss.keys, k)
	}
	sort.Slice(iss.keys, func(i, j int) bool { return iss.keys[i].ID() < iss.keys[j].ID() })
	iss.cfg.logger = iss.cfg.logger.With(zap.String("issuer", normalized), zap.Stringer("version", iss.version))
	return iss, nil
}

// Origin returns the normalized issuer origin.
func (i *Issuer) Origin() string { return i.origin }

// Version returns the protocol version of the issuer's keys.
func (i *Issuer) Version() protocol.Version { return i.version }

// Commitment returns the issuer's unexpired keys in ID order.
func (i *Issuer) Commitment() keycommitments.Commitment {
	now := i.cfg.now()
	c := keycommitments.Commitment{
		Version:   i.version,
		ID:        i.cfg.commitmentID,
		BatchSize: crypto.MaxBatchSize,
	}
	for _, k := range i.keys {
		if k.Expired(now) {
			continue
		}
		c.Keys = append(c.Keys, keycommitments.Key{Body: k.PublicKey(), Expiry: k.Expiry})
	}
	return c
}

// CommitmentJSON returns the key commitment document served by the issuer.
func (i *Issuer) CommitmentJSON() ([]byte, error) {
	return keycommitments.MarshalCommitment(i.origin, i.Commitment())
}

// Issue signs the blind message carried in issuanceHeader and returns the
// signed response header value.
func (i *Issuer) Issue(versionHeader, issuanceHeader string) (string, error) {
	if err := i.checkVersion(versionHeader); err != nil {
		i.cfg.metrics.issued(OutcomeRejected)
		return "", err
	}
	raw, err := singleItem(issuanceHeader)
	if err != nil {
		i.cfg.metrics.issued(OutcomeRejected)
		return "", err
	}

	key, err := i.signingKey(raw)
	if err != nil {
		i.cfg.metrics.issued(OutcomeRejected)
		return "", err
	}
	resp, err := key.signer.Sign(raw)
	if err != nil {
		i.cfg.metrics.issued(OutcomeRejected)
		return "", fmt.Errorf("%w: %v", verifyerrors.ErrIssuanceFailed, err)
	}

	i.cfg.metrics.issued(OutcomeSuccess)
	i.cfg.logger.Debug("issued", zap.Uint32("key_id", key.ID()))
	return crypto.ToBase64(resp), nil
}

// signingKey picks the key for a blind message. Blind RSA messages name
// their key; VOPRF messages are evaluated under the newest unexpired key.
func (i *Issuer) signingKey(blind []byte) (*SigningKey, error) {
	now := i.cfg.now()
	if i.version == protocol.VersionPrivateStateTokenV1BlindRSA {
		id, err := crypto.KeyID(blind)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", verifyerrors.ErrIssuanceFailed, err)
		}
		k, ok := i.byID[id]
		if !ok || k.Expired(now) {
			return nil, fmt.Errorf("%w: key %d is not committed", verifyerrors.ErrIssuanceFailed, id)
		}
		return k, nil
	}
	for j := len(i.keys) - 1; j >= 0; j-- {
		if !i.keys[j].Expired(now) {
			return i.keys[j], nil
		}
	}
	return nil, ErrNoActiveKey
}

// Redeem verifies the token carried in tokenHeader and records it as spent.
// A token is accepted once; later attempts fail with ErrDoubleSpend.
func (i *Issuer) Redeem(ctx context.Context, versionHeader, tokenHeader string) (*Redemption, error) {
	if err := i.checkVersion(versionHeader); err != nil {
		i.cfg.metrics.redeemed(OutcomeRejected)
		return nil, err
	}
	raw, err := singleItem(tokenHeader)
	if err != nil {
		i.cfg.metrics.redeemed(OutcomeRejected)
		return nil, err
	}

	id, err := crypto.KeyID(raw)
	if err != nil {
		i.cfg.metrics.redeemed(OutcomeRejected)
		return nil, fmt.Errorf("%w: %v", verifyerrors.ErrVerificationFailed, err)
	}
	key, ok := i.byID[id]
	if !ok || key.Expired(i.cfg.now()) {
		i.cfg.metrics.redeemed(OutcomeRejected)
		return nil, fmt.Errorf("%w: key %d is not committed", verifyerrors.ErrVerificationFailed, id)
	}
	message, err := key.signer.Verify(raw)
	if err != nil {
		i.cfg.metrics.redeemed(OutcomeRejected)
		return nil, fmt.Errorf("%w: %v", verifyerrors.ErrVerificationFailed, err)
	}

	first, err := i.cfg.spent.MarkSpent(ctx, spentID(id, message), i.spentTTL(key))
	if err != nil {
		i.cfg.metrics.redeemed(OutcomeError)
		i.cfg.logger.Error("spent token store failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSpentStoreUnavailable, err)
	}
	if !first {
		i.cfg.metrics.redeemed(OutcomeDoubleSpend)
		i.cfg.logger.Info("double spend rejected", zap.Uint32("key_id", id))
		return nil, ErrDoubleSpend
	}

	i.cfg.metrics.redeemed(OutcomeSuccess)
	i.cfg.logger.Debug("redeemed", zap.Uint32("key_id", id))
	return &Redemption{Version: i.version, KeyID: id, Message: message}, nil
}

func (i *Issuer) spentTTL(k *SigningKey) time.Duration {
	if k.Expiry.IsZero() {
		return i.cfg.spentTTL
	}
	ttl := k.Expiry.Sub(i.cfg.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (i *Issuer) checkVersion(header string) error {
	v, err := protocol.ParseVersion(header)
	if err != nil {
		return fmt.Errorf("%w: %v", verifyerrors.ErrUnsupportedVersion, err)
	}
	if v != i.version {
		return fmt.Errorf("%w: got %s, want %s", ErrVersionMismatch, v, i.version)
	}
	return nil
}

// singleItem decodes a structured list holding exactly one base64 string.
func singleItem(header string) ([]byte, error) {
	items, err := sfv.ParseList(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verifyerrors.ErrMalformedHeader, err)
	}
	if len(items) != crypto.MaxBatchSize {
		return nil, fmt.Errorf("%w: got %d", ErrBatchUnsupported, len(items))
	}
	raw, err := crypto.FromBase64(items[0])
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("%w: item is not base64", verifyerrors.ErrMalformedHeader)
	}
	return raw, nil
}

// spentID identifies a token by its key and the message it covers.
func spentID(keyID uint32, message []byte) string {
	h := sha256.New()
	var id [4]byte
	binary.BigEndian.PutUint32(id[:], keyID)
	h.Write(id[:])
	h.Write(message)
	return hex.EncodeToString(h.Sum(nil))
}
