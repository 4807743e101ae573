package attribution

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/privatestate/attribution-go/internal/session"
	"github.com/privatestate/attribution-go/keycommitments"
	"github.com/privatestate/attribution-go/sfv"
)

// Issuance is the outcome of PrepareIssuance.
type Issuance struct {
	// Issuer is the normalized issuer origin.
	Issuer string
	// Version is the protocol version the issuer committed to. It is sent
	// in the protocol.HeaderCryptoVersion header.
	Version ProtocolVersion
	// Header is the value of the protocol.HeaderToken header to attach to
	// the outgoing request.
	Header string
}

// Mediator drives one issuance-then-redemption cycle against the key
// commitments of one issuer. A Mediator is used for a single request and
// is not safe for concurrent use.
type Mediator struct {
	commitments keycommitments.Getter
	cfg         *mediatorConfig
	logger      *zap.Logger

	state   session.Machine
	crypto  Cryptographer
	issuer  string
	version ProtocolVersion
}

// NewMediator creates a Mediator reading commitments from commitments.
func NewMediator(commitments keycommitments.Getter, opts ...Option) *Mediator {
	cfg := defaultMediatorConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Mediator{
		commitments: commitments,
		cfg:         cfg,
		logger:      cfg.logger,
	}
}

// Issuer returns the issuer origin of the cycle, once PrepareIssuance ran.
func (m *Mediator) Issuer() string {
	return m.issuer
}

// Version returns the protocol version of the cycle, once PrepareIssuance
// found a commitment.
func (m *Mediator) Version() ProtocolVersion {
	return m.version
}

// PrepareIssuance looks up the commitment of issuerOrigin, blinds the
// message derived from requestContext and returns the header to attach.
//
// When the issuer has no commitment with unexpired keys the error matches
// ErrNoCommitment and no Cryptographer is created. Any other failure is a
// *StageError naming the first step that failed.
func (m *Mediator) PrepareIssuance(issuerOrigin, requestContext string) (*Issuance, error) {
	if err := m.state.Enter("PrepareIssuance", session.Uninitialized); err != nil {
		return nil, err
	}

	origin, err := keycommitments.NormalizeOrigin(issuerOrigin)
	if err != nil {
		return nil, m.fail(StageLookup, err)
	}
	m.issuer = origin
	m.logger = m.logger.With(zap.String("issuer", origin))

	var c keycommitments.Commitment
	found := false
	if m.commitments != nil {
		c, found = m.commitments.Get(origin)
	}
	if found {
		c = c.Unexpired(m.cfg.now())
	}
	if !found || len(c.Keys) == 0 {
		m.state.Fail()
		m.cfg.metrics.issuance(c.Version, OutcomeNoCommitment)
		m.logger.Debug("no key commitment, skipping verification")
		return nil, &StageError{Stage: StageLookup, Issuer: origin, Err: ErrNoCommitment}
	}
	m.version = c.Version
	m.logger = m.logger.With(zap.Stringer("version", c.Version))

	cr := m.cfg.newCryptographer()
	if err := cr.Initialize(c.Version); err != nil {
		return nil, m.failIssuance(StageInitialize, err)
	}
	for i, k := range c.Keys {
		if err := cr.AddKey(k.Body); err != nil {
			return nil, m.failIssuance(StageAddKey, fmt.Errorf("key %d: %w", i, err))
		}
	}

	message, err := m.cfg.message(requestContext)
	if err != nil {
		return nil, m.failIssuance(StageMessage, err)
	}
	blind, err := cr.BeginIssuance(message)
	if err != nil {
		return nil, m.failIssuance(StageBeginIssuance, err)
	}
	header, err := sfv.SerializeList([]string{blind})
	if err != nil {
		return nil, m.failIssuance(StageSerialize, fmt.Errorf("%w: %v", ErrMalformedHeader, err))
	}

	m.crypto = cr
	m.state.Advance(session.Issuing)
	m.cfg.metrics.issuance(c.Version, OutcomeSuccess)
	m.logger.Debug("issuance prepared", zap.Int("keys", len(c.Keys)))

	return &Issuance{Issuer: origin, Version: c.Version, Header: header}, nil
}

// CompleteRedemption verifies the issuer's signed response header, passed
// verbatim, and returns the redemption header carrying the token.
//
// It must follow a successful PrepareIssuance on the same Mediator and
// succeeds at most once. Sequence errors match ErrSessionMisuse; other
// failures are a *StageError matching ErrVerificationFailed or
// ErrMalformedResponse.
func (m *Mediator) CompleteRedemption(signedResponseHeader string) (string, error) {
	if err := m.state.Enter("CompleteRedemption", session.Issuing); err != nil {
		m.crypto = nil
		return "", err
	}

	cr := m.crypto
	m.crypto = nil
	token, err := cr.ConfirmIssuanceAndBeginRedemption(signedResponseHeader)
	if err != nil {
		return "", m.failRedemption(StageConfirmIssuance, err)
	}
	header, err := sfv.SerializeList([]string{token})
	if err != nil {
		return "", m.failRedemption(StageSerialize, fmt.Errorf("%w: %v", ErrMalformedHeader, err))
	}

	m.state.Advance(session.Redeemed)
	m.cfg.metrics.redemption(m.version, OutcomeSuccess)
	m.logger.Debug("redemption header ready")
	return header, nil
}

// Abort discards the cycle. Later calls fail with ErrSessionFailed.
func (m *Mediator) Abort() {
	m.crypto = nil
	m.state.Fail()
}

func (m *Mediator) fail(stage Stage, err error) error {
	m.crypto = nil
	m.state.Fail()
	m.cfg.metrics.failure(stage)
	m.logger.Debug("verification failed", zap.String("stage", string(stage)), zap.Error(err))
	return &StageError{Stage: stage, Issuer: m.issuer, Err: err}
}

func (m *Mediator) failIssuance(stage Stage, err error) error {
	m.cfg.metrics.issuance(m.version, OutcomeFailure)
	return m.fail(stage, err)
}

func (m *Mediator) failRedemption(stage Stage, err error) error {
	m.cfg.metrics.redemption(m.version, OutcomeFailure)
	return m.fail(stage, err)
}

// IsNoCommitment reports whether err means the issuer has no usable key
// commitment, in which case the request proceeds without verification.
func IsNoCommitment(err error) bool {
	return errors.Is(err, ErrNoCommitment)
}
