package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want zapcore.Level
	}{
		{"default", Config{Service: "pst-issuer"}, zapcore.InfoLevel},
		{"debug", Config{Level: "debug"}, zapcore.DebugLevel},
		{"development", Config{Development: true, Level: "warn"}, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if !logger.Core().Enabled(tt.want) {
				t.Errorf("level %v not enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && logger.Core().Enabled(tt.want-1) {
				t.Errorf("level %v should be disabled", tt.want-1)
			}
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestWithIssuer(t *testing.T) {
	base := zap.NewNop()
	if WithIssuer(base, "") != base {
		t.Error("empty origin should return the same logger")
	}
	if WithIssuer(base, "https://issuer.example") == nil {
		t.Error("WithIssuer() returned nil")
	}
}
