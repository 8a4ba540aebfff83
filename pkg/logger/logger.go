// Package logger provides a structured, levelled logger built on log/slog.
//
// WithCtx returns the per-request logger injected by the Logger middleware,
// so log lines written while committing a sale carry the request ID:
//
//	log := logger.WithCtx(r.Context())
//	log.Info("sale committed", "code", sale.Code, "total", sale.Total)
//	// → time=... level=INFO msg="sale committed" request_id=a1b2c3d4 code=VEN000042 total=116
package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/shashiranjanraj/ventas/config"
)

var L *slog.Logger

var sink *MongoHandler

func init() {
	L = slog.New(baseHandler())
	slog.SetDefault(L)
}

func baseHandler() slog.Handler {
	switch config.AppEnv() {
	case "production", "prod":
		return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	case "test", "testing":
		return slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	default:
		return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
}

// Boot attaches the optional MongoDB sink when LOG_MONGO_URI is set.
// A sink that cannot connect is reported and skipped; stdout logging stays.
func Boot() {
	uri := config.LogMongoURI()
	if uri == "" || sink != nil {
		return
	}

	h, err := NewMongoHandler(uri, config.LogMongoDB(), "logs")
	if err != nil {
		L.Warn("logger: mongo sink disabled", "error", err)
		return
	}

	sink = h
	L = slog.New(NewMultiHandler(baseHandler(), h))
	slog.SetDefault(L)
}

// Shutdown flushes the MongoDB sink, if any.
func Shutdown() {
	if sink != nil {
		sink.Close()
		sink = nil
	}
}

// ─── Context-aware logger ─────────────────────────────────────────────────────

type ctxKey struct{}

// WithCtx returns the logger stored by InjectLogger, or the base logger.
func WithCtx(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return L
}

// InjectLogger stores a *slog.Logger (pre-tagged with request_id) into ctx.
func InjectLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// ─── Short-hand helpers ───────────────────────────────────────────────────────

func Debug(msg string, args ...any) { L.Debug(msg, args...) }
func Info(msg string, args ...any)  { L.Info(msg, args...) }
func Warn(msg string, args ...any)  { L.Warn(msg, args...) }
func Error(msg string, args ...any) { L.Error(msg, args...) }
