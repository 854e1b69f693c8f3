package logger

import (
	"path/filepath"
	"testing"

	"exam_review_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		mode    string
		want    zapcore.Level
		wantErr bool
	}{
		{name: "debug mode default", mode: "debug", want: zapcore.DebugLevel},
		{name: "release mode default", mode: "release", want: zapcore.InfoLevel},
		{name: "explicit level wins", cfg: config.LogConfig{Level: "warn"}, mode: "debug", want: zapcore.WarnLevel},
		{name: "unknown level", cfg: config.LogConfig{Level: "loud"}, mode: "debug", want: zapcore.InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Level(tt.cfg, tt.mode)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	l, err := New(config.LogConfig{
		File:  filepath.Join(t.TempDir(), "app.log"),
		Level: "warn",
	}, "debug")
	require.NoError(t, err)

	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestInitLogger_FallsBackOnBadLevel(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	cfg := &config.Config{}
	cfg.Server.Mode = "release"
	cfg.Log.Level = "loud"

	InitLogger(cfg)
	assert.True(t, Log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, Log.Core().Enabled(zapcore.DebugLevel))
}
