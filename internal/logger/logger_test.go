package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestToZapLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, toZapLevel(slog.LevelDebug))
	assert.Equal(t, zapcore.InfoLevel, toZapLevel(slog.LevelInfo))
	assert.Equal(t, zapcore.WarnLevel, toZapLevel(slog.LevelWarn))
	assert.Equal(t, zapcore.ErrorLevel, toZapLevel(slog.LevelError))
}

func TestNewHonorsLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	l := New(Config{Service: "condo-chat", Env: "prod", Level: "warn"})
	assert.False(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, l.Enabled(context.Background(), slog.LevelWarn))
	assert.Same(t, l, slog.Default())

	assert.False(t, Nop().Enabled(context.Background(), slog.LevelError))
}
