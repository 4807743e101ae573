package attribution

import (
	"sync"
	"testing"

	"github.com/privatestate/attribution-go/internal/crypto"
	"github.com/privatestate/attribution-go/keycommitments"
	"github.com/privatestate/attribution-go/sfv"
)

const testIssuer = "https://issuer.example"

var (
	rsaSignersOnce sync.Once
	rsaSigners     [2]crypto.Signer
	rsaSignersErr  error
)

// testSigners returns two signers for v with key IDs 1 and 2. RSA keys are
// generated once per test binary.
func testSigners(t testing.TB, v ProtocolVersion) [2]crypto.Signer {
	t.Helper()
	if v == VersionPrivateStateTokenV1BlindRSA {
		rsaSignersOnce.Do(func() {
			for i := range rsaSigners {
				rsaSigners[i], rsaSignersErr = crypto.GenerateSigner(v, uint32(i+1))
				if rsaSignersErr != nil {
					return
				}
			}
		})
		if rsaSignersErr != nil {
			t.Fatalf("GenerateSigner() error = %v", rsaSignersErr)
		}
		return rsaSigners
	}

	var out [2]crypto.Signer
	for i := range out {
		s, err := crypto.GenerateSigner(v, uint32(i+1))
		if err != nil {
			t.Fatalf("GenerateSigner() error = %v", err)
		}
		out[i] = s
	}
	return out
}

func publicKey(t testing.TB, s crypto.Signer) []byte {
	t.Helper()
	pk, err := s.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey() error = %v", err)
	}
	return pk
}

// signBlind plays the issuer: it signs one base64 blind message and returns
// the signed response header value.
func signBlind(t testing.TB, s crypto.Signer, blind string) string {
	t.Helper()
	raw, err := crypto.FromBase64(blind)
	if err != nil {
		t.Fatalf("blind message is not base64: %v", err)
	}
	resp, err := s.Sign(raw)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return crypto.ToBase64(resp)
}

// signIssuance signs the single blind message carried by an issuance header.
func signIssuance(t testing.TB, s crypto.Signer, header string) string {
	t.Helper()
	blinds, err := sfv.ParseList(header)
	if err != nil || len(blinds) != 1 {
		t.Fatalf("issuance header %q: %v", header, err)
	}
	return signBlind(t, s, blinds[0])
}

func singleIssuer(t testing.TB, v ProtocolVersion, key []byte) *keycommitments.Snapshot {
	t.Helper()
	snap, err := keycommitments.NewSingle(key, v, testIssuer)
	if err != nil {
		t.Fatalf("NewSingle() error = %v", err)
	}
	return snap
}

var testVersions = []ProtocolVersion{
	VersionPrivateStateTokenV1VOPRF,
	VersionPrivateStateTokenV1BlindRSA,
}
