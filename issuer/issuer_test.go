package issuer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privatestate/attribution-go/internal/crypto"
	"github.com/privatestate/attribution-go/internal/verifyerrors"
	"github.com/privatestate/attribution-go/keycommitments"
	"github.com/privatestate/attribution-go/protocol"
	"github.com/privatestate/attribution-go/sfv"
)

func TestNew(t *testing.T) {
	voprf := testKeys(t, protocol.VersionPrivateStateTokenV1VOPRF)
	rsa := testKeys(t, protocol.VersionPrivateStateTokenV1BlindRSA)

	tests := []struct {
		name    string
		origin  string
		keys    []*SigningKey
		wantErr error
	}{
		{name: "no keys", origin: testOrigin, wantErr: ErrNoSigningKeys},
		{name: "mixed versions", origin: testOrigin, keys: []*SigningKey{voprf[0], rsa[1]}, wantErr: ErrMixedVersions},
		{name: "duplicate id", origin: testOrigin, keys: []*SigningKey{voprf[0], voprf[0]}, wantErr: ErrDuplicateKeyID},
		{name: "invalid origin", origin: "ftp://issuer.example", keys: voprf, wantErr: verifyerrors.ErrInvalidOrigin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.origin, tt.keys)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	iss, err := New("HTTPS://Issuer.Example:443/path", []*SigningKey{voprf[1], voprf[0]})
	require.NoError(t, err)
	assert.Equal(t, testOrigin, iss.Origin())
	assert.Equal(t, protocol.VersionPrivateStateTokenV1VOPRF, iss.Version())
}

func TestIssueRedeem(t *testing.T) {
	for _, v := range testVersions {
		t.Run(v.String(), func(t *testing.T) {
			iss := newTestIssuer(t, v)

			header, msg := tokenHeader(t, iss, "report-1")
			r, err := iss.Redeem(context.Background(), v.String(), header)
			require.NoError(t, err)
			assert.Equal(t, v, r.Version)
			assert.Equal(t, uint32(2), r.KeyID)
			assert.True(t, bytes.HasSuffix(r.Message, msg), "token covers another message")

			_, err = iss.Redeem(context.Background(), v.String(), header)
			assert.ErrorIs(t, err, ErrDoubleSpend)

			other, _ := tokenHeader(t, iss, "report-2")
			_, err = iss.Redeem(context.Background(), v.String(), other)
			assert.NoError(t, err)
		})
	}
}

func TestIssueRejects(t *testing.T) {
	iss := newTestIssuer(t, protocol.VersionPrivateStateTokenV1VOPRF)
	_, valid := blind(t, iss, "report")
	items, err := sfv.ParseList(valid)
	require.NoError(t, err)
	batch, err := sfv.SerializeList([]string{items[0], items[0]})
	require.NoError(t, err)
	notBase64, err := sfv.SerializeList([]string{"not base64!"})
	require.NoError(t, err)
	garbage, err := sfv.SerializeList([]string{crypto.ToBase64([]byte{0, 1, 2})})
	require.NoError(t, err)

	tests := []struct {
		name    string
		version string
		header  string
		wantErr error
	}{
		{"wrong version", protocol.VersionPrivateStateTokenV1BlindRSA.String(), valid, ErrVersionMismatch},
		{"unknown version", "PrivateStateTokenV9", valid, verifyerrors.ErrUnsupportedVersion},
		{"not a list", protocol.VersionPrivateStateTokenV1VOPRF.String(), "token", verifyerrors.ErrMalformedHeader},
		{"empty list", protocol.VersionPrivateStateTokenV1VOPRF.String(), "", ErrBatchUnsupported},
		{"batch", protocol.VersionPrivateStateTokenV1VOPRF.String(), batch, ErrBatchUnsupported},
		{"not base64", protocol.VersionPrivateStateTokenV1VOPRF.String(), notBase64, verifyerrors.ErrMalformedHeader},
		{"garbage blind", protocol.VersionPrivateStateTokenV1VOPRF.String(), garbage, verifyerrors.ErrIssuanceFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iss.Issue(tt.version, tt.header)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIssueRSARoutesByKeyID(t *testing.T) {
	v := protocol.VersionPrivateStateTokenV1BlindRSA
	keys := testKeys(t, v)
	full, err := New(testOrigin, keys)
	require.NoError(t, err)

	// The client blinds under key 2, which this issuer does not hold.
	_, header := blind(t, full, "report")
	partial, err := New(testOrigin, keys[:1])
	require.NoError(t, err)
	_, err = partial.Issue(v.String(), header)
	assert.ErrorIs(t, err, verifyerrors.ErrIssuanceFailed)
}

func TestIssueExpiredKeys(t *testing.T) {
	v := protocol.VersionPrivateStateTokenV1VOPRF
	expiry := time.Unix(1_700_000_000, 0)
	k1, err := GenerateKey(v, 1, time.Time{})
	require.NoError(t, err)
	k2, err := GenerateKey(v, 2, expiry)
	require.NoError(t, err)

	now := expiry.Add(-time.Minute)
	iss, err := New(testOrigin, []*SigningKey{k1, k2}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	assert.Len(t, iss.Commitment().Keys, 2)

	header, _ := tokenHeader(t, iss, "report")
	now = expiry

	// Key 2 is gone: new issuances fall back to key 1 and its tokens stop
	// redeeming.
	c := iss.Commitment()
	require.Len(t, c.Keys, 1)
	id, err := crypto.KeyID(c.Keys[0].Body)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	_, err = iss.Redeem(context.Background(), v.String(), header)
	assert.ErrorIs(t, err, verifyerrors.ErrVerificationFailed)

	header, _ = tokenHeader(t, iss, "report")
	r, err := iss.Redeem(context.Background(), v.String(), header)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), r.KeyID)
}

func TestIssueNoActiveKey(t *testing.T) {
	v := protocol.VersionPrivateStateTokenV1VOPRF
	expiry := time.Unix(1_700_000_000, 0)
	k, err := GenerateKey(v, 1, expiry)
	require.NoError(t, err)
	now := expiry.Add(-time.Minute)
	iss, err := New(testOrigin, []*SigningKey{k}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	_, header := blind(t, iss, "report")
	now = expiry
	_, err = iss.Issue(v.String(), header)
	assert.ErrorIs(t, err, ErrNoActiveKey)
}

func TestRedeemRejects(t *testing.T) {
	for _, v := range testVersions {
		t.Run(v.String(), func(t *testing.T) {
			iss := newTestIssuer(t, v)
			header, _ := tokenHeader(t, iss, "report")
			items, err := sfv.ParseList(header)
			require.NoError(t, err)
			raw, err := crypto.FromBase64(items[0])
			require.NoError(t, err)

			forged := bytes.Clone(raw)
			forged[len(forged)-1] ^= 0x01
			forgedHeader, err := sfv.SerializeList([]string{crypto.ToBase64(forged)})
			require.NoError(t, err)

			unknown := bytes.Clone(raw)
			unknown[3] = 9
			unknownHeader, err := sfv.SerializeList([]string{crypto.ToBase64(unknown)})
			require.NoError(t, err)

			_, err = iss.Redeem(context.Background(), v.String(), forgedHeader)
			assert.ErrorIs(t, err, verifyerrors.ErrVerificationFailed)
			_, err = iss.Redeem(context.Background(), v.String(), unknownHeader)
			assert.ErrorIs(t, err, verifyerrors.ErrVerificationFailed)
			_, err = iss.Redeem(context.Background(), v.String(), "?")
			assert.ErrorIs(t, err, verifyerrors.ErrMalformedHeader)

			// Failed attempts do not consume the token.
			_, err = iss.Redeem(context.Background(), v.String(), header)
			assert.NoError(t, err)
		})
	}
}

type failingStore struct{}

func (failingStore) MarkSpent(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestRedeemStoreFailure(t *testing.T) {
	v := protocol.VersionPrivateStateTokenV1VOPRF
	iss := newTestIssuer(t, v, WithSpentStore(failingStore{}))
	header, _ := tokenHeader(t, iss, "report")
	_, err := iss.Redeem(context.Background(), v.String(), header)
	assert.ErrorIs(t, err, ErrSpentStoreUnavailable)
}

func TestCommitmentJSON(t *testing.T) {
	v := protocol.VersionPrivateStateTokenV1VOPRF
	iss := newTestIssuer(t, v, WithCommitmentID(7))

	body, err := iss.CommitmentJSON()
	require.NoError(t, err)
	snap, err := keycommitments.Parse(body, keycommitments.ParseOptions{})
	require.NoError(t, err)

	c, ok := snap.Get(testOrigin)
	require.True(t, ok)
	assert.Equal(t, v, c.Version)
	assert.Equal(t, 7, c.ID)
	assert.Equal(t, crypto.MaxBatchSize, c.BatchSize)
	assert.Equal(t, iss.Commitment().Bodies(), c.Bodies())
}

func TestIssuerMetrics(t *testing.T) {
	v := protocol.VersionPrivateStateTokenV1VOPRF
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	iss := newTestIssuer(t, v, WithMetrics(m))

	header, _ := tokenHeader(t, iss, "report")
	_, _ = iss.Issue(v.String(), "garbage")
	_, err = iss.Redeem(context.Background(), v.String(), header)
	require.NoError(t, err)
	_, _ = iss.Redeem(context.Background(), v.String(), header)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Issued.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Issued.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Redeemed.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Redeemed.WithLabelValues(OutcomeDoubleSpend)))
}

func TestNewMetricsDuplicate(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func BenchmarkIssue(b *testing.B) {
	v := protocol.VersionPrivateStateTokenV1VOPRF
	iss := newTestIssuer(b, v)
	_, header := blind(b, iss, "report")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := iss.Issue(v.String(), header); err != nil {
			b.Fatal(err)
		}
	}
}
