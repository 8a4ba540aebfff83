package logger_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shashiranjanraj/ventas/pkg/logger"
)

func TestWithCtxFallsBackToBase(t *testing.T) {
	assert.Same(t, logger.L, logger.WithCtx(context.Background()))
}

func TestWithCtxReturnsInjected(t *testing.T) {
	var buf bytes.Buffer
	reqLog := slog.New(slog.NewTextHandler(&buf, nil)).With("request_id", "abc")
	ctx := logger.InjectLogger(context.Background(), reqLog)

	logger.WithCtx(ctx).Info("sale committed", "code", "VEN000001")
	assert.Contains(t, buf.String(), "request_id=abc")
	assert.Contains(t, buf.String(), "code=VEN000001")
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	log := slog.New(logger.NewMultiHandler(
		slog.NewTextHandler(&a, nil),
		slog.NewJSONHandler(&b, nil),
	)).With("local_id", "LOCAL-1")

	log.Warn("draft flagged")
	assert.Contains(t, a.String(), "local_id=LOCAL-1")
	assert.Contains(t, b.String(), `"local_id":"LOCAL-1"`)
}
