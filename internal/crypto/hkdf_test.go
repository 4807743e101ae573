package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestDerive(t *testing.T) {
	a, err := derive([]byte("secret"), []byte("info"), 32)
	if err != nil {
		t.Fatalf("derive() error = %v", err)
	}
	b, _ := derive([]byte("secret"), []byte("info"), 32)
	c, _ := derive([]byte("secret"), []byte("other"), 32)

	if len(a) != 32 {
		t.Errorf("len = %d, want 32", len(a))
	}
	if !bytes.Equal(a, b) {
		t.Error("derive() is not deterministic")
	}
	if bytes.Equal(a, c) {
		t.Error("different info produced the same output")
	}

	// HKDF-SHA-512 can expand to at most 255 hash blocks.
	if _, err := derive([]byte("secret"), nil, 255*64+1); err == nil {
		t.Error("derive() accepted an oversized length")
	}
}

func TestDeriveMessage(t *testing.T) {
	tests := []string{"req-123", "", "https://example.test/report?id=42"}

	for _, ctx := range tests {
		t.Run(ctx, func(t *testing.T) {
			m1, err := DeriveMessage(ctx)
			if err != nil {
				t.Fatalf("DeriveMessage() error = %v", err)
			}
			m2, _ := DeriveMessage(ctx)
			if m1 != m2 {
				t.Error("DeriveMessage() is not deterministic")
			}
			raw, err := FromBase64URL(m1)
			if err != nil {
				t.Fatalf("message is not base64url: %v", err)
			}
			if len(raw) != MessageSize {
				t.Errorf("message is %d bytes, want %d", len(raw), MessageSize)
			}
			if ctx != "" && strings.Contains(m1, ctx) {
				t.Error("message contains the request context")
			}
		})
	}
}
