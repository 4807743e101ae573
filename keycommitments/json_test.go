package keycommitments

import (
	"errors"
	"testing"
	"time"

	"github.com/privatestate/attribution-go/protocol"
)

var testNow = time.UnixMicro(1_700_000_000_000_000)

func TestParse(t *testing.T) {
	doc := `{
	  "https://issuer.example": {
	    "PrivateStateTokenV1VOPRF": {
	      "protocol_version": "PrivateStateTokenV1VOPRF",
	      "id": 7,
	      "batchsize": 1,
	      "keys": {
	        "2": {"Y": "a2V5LTI=", "expiry": "1800000000000000"},
	        "1": {"Y": "a2V5LTE=", "expiry": "1800000000000000"},
	        "3": {"Y": "ZXhwaXJlZA==", "expiry": "1600000000000000"}
	      }
	    }
	  }
	}`

	snap, err := Parse([]byte(doc), ParseOptions{Now: testNow})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !snap.FetchedAt().Equal(testNow) {
		t.Errorf("FetchedAt() = %v", snap.FetchedAt())
	}

	c, ok := snap.Get("https://issuer.example")
	if !ok {
		t.Fatal("issuer not found")
	}
	if c.Version != protocol.VersionPrivateStateTokenV1VOPRF || c.ID != 7 || c.BatchSize != 1 {
		t.Errorf("commitment = %+v", c)
	}
	if len(c.Keys) != 2 {
		t.Fatalf("len(Keys) = %d, want 2 (expired key dropped)", len(c.Keys))
	}
	if string(c.Keys[0].Body) != "key-1" || string(c.Keys[1].Body) != "key-2" {
		t.Errorf("keys out of id order: %s, %s", c.Keys[0].Body, c.Keys[1].Body)
	}
	if !c.Keys[0].Expiry.Equal(time.UnixMicro(1_800_000_000_000_000)) {
		t.Errorf("Expiry = %v", c.Keys[0].Expiry)
	}
}

func TestParse_VersionPreference(t *testing.T) {
	doc := `{
	  "https://issuer.example": {
	    "PrivateStateTokenV1BlindRSA": {"id": 1, "batchsize": 1, "keys": {"1": {"Y": "cnNh"}}},
	    "PrivateStateTokenV1VOPRF": {"id": 1, "batchsize": 1, "keys": {"1": {"Y": "dm9wcmY="}}},
	    "TrustTokenV9Future": {"id": 1, "batchsize": 1, "keys": {"1": {"Y": "eA=="}}}
	  }
	}`

	tests := []struct {
		name      string
		supported func(protocol.Version) bool
		want      protocol.Version
	}{
		{"all supported", nil, protocol.VersionPrivateStateTokenV1VOPRF},
		{"rsa only", func(v protocol.Version) bool { return v == protocol.VersionPrivateStateTokenV1BlindRSA }, protocol.VersionPrivateStateTokenV1BlindRSA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Parse([]byte(doc), ParseOptions{Now: testNow, Supported: tt.supported})
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			c, ok := snap.Get("https://issuer.example")
			if !ok {
				t.Fatal("issuer not found")
			}
			if c.Version != tt.want {
				t.Errorf("Version = %v, want %v", c.Version, tt.want)
			}
		})
	}
}

func TestParse_SkipsIssuersWithoutUsableKeys(t *testing.T) {
	doc := `{
	  "https://expired.example": {
	    "PrivateStateTokenV1VOPRF": {"id": 1, "batchsize": 1, "keys": {"1": {"Y": "eA==", "expiry": "1"}}}
	  },
	  "https://empty.example": {
	    "PrivateStateTokenV1VOPRF": {"id": 1, "batchsize": 1, "keys": {}}
	  },
	  "https://unknown.example": {
	    "SomethingElse": {"id": 1, "batchsize": 1, "keys": {"1": {"Y": "eA=="}}}
	  }
	}`

	snap, err := Parse([]byte(doc), ParseOptions{Now: testNow})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if snap.Len() != 0 {
		t.Errorf("Len() = %d, want 0: %v", snap.Len(), snap.Issuers())
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"wrong shape", `{"https://a.example": []}`},
		{"bad origin", `{"ftp://a.example": {}}`},
		{"version mismatch", `{"https://a.example": {"PrivateStateTokenV1VOPRF": {"protocol_version": "PrivateStateTokenV1BlindRSA", "id": 1, "batchsize": 1, "keys": {}}}}`},
		{"zero batchsize", `{"https://a.example": {"PrivateStateTokenV1VOPRF": {"id": 1, "batchsize": 0, "keys": {}}}}`},
		{"negative id", `{"https://a.example": {"PrivateStateTokenV1VOPRF": {"id": -1, "batchsize": 1, "keys": {}}}}`},
		{"bad key label", `{"https://a.example": {"PrivateStateTokenV1VOPRF": {"id": 1, "batchsize": 1, "keys": {"one": {"Y": "eA=="}}}}}`},
		{"bad Y", `{"https://a.example": {"PrivateStateTokenV1VOPRF": {"id": 1, "batchsize": 1, "keys": {"1": {"Y": "!!"}}}}}`},
		{"empty Y", `{"https://a.example": {"PrivateStateTokenV1VOPRF": {"id": 1, "batchsize": 1, "keys": {"1": {"Y": ""}}}}}`},
		{"bad expiry", `{"https://a.example": {"PrivateStateTokenV1VOPRF": {"id": 1, "batchsize": 1, "keys": {"1": {"Y": "eA==", "expiry": "soon"}}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), ParseOptions{Now: testNow})
			if !errors.Is(err, ErrMalformedCommitment) {
				t.Errorf("expected ErrMalformedCommitment, got %v", err)
			}
		})
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	expiry := testNow.Add(24 * time.Hour)
	snap, err := NewSnapshot(map[string]Commitment{
		"https://a.example": {
			Version:   protocol.VersionPrivateStateTokenV1BlindRSA,
			ID:        3,
			BatchSize: 1,
			Keys: []Key{
				{Body: []byte{0, 0, 0, 1, 0xfb, 0xff}, Expiry: expiry},
				{Body: []byte{0, 0, 0, 2, 0x01}},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	data, err := Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	back, err := Parse(data, ParseOptions{Now: testNow})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	got, ok := back.Get("https://a.example")
	if !ok {
		t.Fatal("issuer lost in round trip")
	}
	want, _ := snap.Get("https://a.example")
	if got.Version != want.Version || got.ID != want.ID || got.BatchSize != want.BatchSize {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if len(got.Keys) != 2 {
		t.Fatalf("len(Keys) = %d", len(got.Keys))
	}
	for i := range got.Keys {
		if string(got.Keys[i].Body) != string(want.Keys[i].Body) || !got.Keys[i].Expiry.Equal(want.Keys[i].Expiry) {
			t.Errorf("key %d: got %+v, want %+v", i, got.Keys[i], want.Keys[i])
		}
	}
}

func TestMarshalCommitment(t *testing.T) {
	data, err := MarshalCommitment("https://a.example", testCommitment("k"))
	if err != nil {
		t.Fatalf("MarshalCommitment() error = %v", err)
	}
	snap, err := Parse(data, ParseOptions{Now: testNow})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := snap.Get("https://a.example"); !ok {
		t.Error("issuer missing")
	}

	if _, err := MarshalCommitment("https://a.example", Commitment{}); err == nil {
		t.Error("expected error for invalid version")
	}
}
