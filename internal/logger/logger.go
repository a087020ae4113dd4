package logger

import (
	"log/slog"
	"os"
	"strings"
	"time"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Backend string

const (
	BackendStd Backend = "std" // text in dev, JSON elsewhere
	BackendZap Backend = "zap"
)

type Config struct {
	Service string
	Version string
	Env     string // dev|stage|prod
	Level   string
	Backend Backend
}

// New builds the process logger and installs it as the slog default.
func New(cfg Config) *slog.Logger {
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Backend == "" {
		if cfg.Env == "dev" {
			cfg.Backend = BackendStd
		} else {
			cfg.Backend = BackendZap
		}
	}
	lvl := ParseLevel(cfg.Level)

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(lvl)
	default:
		opts := &slog.HandlerOptions{Level: lvl}
		if cfg.Env == "dev" {
			h = slog.NewTextHandler(os.Stdout, opts)
		} else {
			h = slog.NewJSONHandler(os.Stdout, opts)
		}
	}

	l := slog.New(h).With(
		slog.String("service", cfg.Service),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Env),
	)
	slog.SetDefault(l)
	return l
}

// Nop discards everything; handy in tests.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newZapHandler(lvl slog.Level) slog.Handler {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stdout), toZapLevel(lvl))
	// sample bursts: first 100 per second, then every 10th
	core = zapcore.NewSamplerWithOptions(core, time.Second, 100, 10)

	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return slogzap.Option{Level: lvl, Logger: z}.NewZapHandler()
}

func toZapLevel(lvl slog.Level) zapcore.Level {
	switch {
	case lvl <= slog.LevelDebug:
		return zapcore.DebugLevel
	case lvl == slog.LevelInfo:
		return zapcore.InfoLevel
	case lvl == slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
