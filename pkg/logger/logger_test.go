package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		level   zapcore.Level
		wantErr bool
	}{
		{name: "defaults", cfg: Config{}, level: zapcore.InfoLevel},
		{name: "debug console", cfg: Config{Level: "debug", Encoding: "console"}, level: zapcore.DebugLevel},
		{name: "development", cfg: Config{Level: "warn", Development: true}, level: zapcore.WarnLevel},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.level))
			assert.False(t, l.Core().Enabled(tt.level-1))
		})
	}
}

func TestGet(t *testing.T) {
	l := Get()
	require.NotNil(t, l)
	assert.Same(t, l, Get())
	assert.NotNil(t, Component("pool"))
}

func TestInit_ReplacesGlobal(t *testing.T) {
	before := Get()
	t.Cleanup(func() {
		mu.Lock()
		globalLogger = before
		mu.Unlock()
	})

	require.NoError(t, Init(Config{Level: "error"}))
	assert.False(t, Get().Core().Enabled(zapcore.InfoLevel))

	require.NoError(t, Init(Config{Level: "debug"}))
	assert.True(t, Get().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, Component("pool").Core().Enabled(zapcore.DebugLevel))

	require.Error(t, Init(Config{Level: "loud"}))
	assert.True(t, Get().Core().Enabled(zapcore.DebugLevel))
}
