package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/revstore/internal/cli/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		enabled zapcore.Level
		skipped zapcore.Level
	}{
		{"production info", config.LogConfig{Level: "info"}, zapcore.InfoLevel, zapcore.DebugLevel},
		{"development debug", config.LogConfig{Level: "debug", Development: true}, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"warn", config.LogConfig{Level: "warn"}, zapcore.WarnLevel, zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("expected %s to be enabled", tt.enabled)
			}
			if logger.Core().Enabled(tt.skipped) {
				t.Errorf("expected %s to be disabled", tt.skipped)
			}
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "verbose"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if Must(config.LogConfig{Level: "verbose"}) == nil {
		t.Error("Must should fall back to a no-op logger")
	}
}
