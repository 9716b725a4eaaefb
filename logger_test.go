package finalize

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-logger/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFmtLoggerFormatsArgsAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := WithLoggerFields(NewFmtLogger(buf), map[string]any{"execution_id": "exec-1", "app_id": "app-1"})

	logger.Warn("dropped %d tags", 2)

	line := buf.String()
	assert.Contains(t, line, "WARN")
	assert.Contains(t, line, "dropped 2 tags")
	assert.Contains(t, line, "app_id=app-1 execution_id=exec-1")
}

func TestFmtLoggerFieldsDoNotLeak(t *testing.T) {
	buf := &bytes.Buffer{}
	base := NewFmtLogger(buf)
	_ = WithLoggerFields(base, map[string]any{"step": "tags"})

	base.Info("plain")
	assert.NotContains(t, buf.String(), "step=")
}

func TestFmtLoggerLayersFields(t *testing.T) {
	buf := &bytes.Buffer{}
	base := NewFmtLogger(buf)
	step := WithLoggerFields(base, map[string]any{"step": "tags", "app_id": "app-1"})
	step = WithLoggerFields(step, map[string]any{"step": "analytics"})

	assert.Same(t, base, WithLoggerFields(base, nil))
	step.Error("failed: %v", "boom")
	assert.Contains(t, buf.String(), "failed: boom app_id=app-1 step=analytics\n")
}

func TestNormalizeLoggerFallsBackToFmt(t *testing.T) {
	_, ok := NormalizeLogger(nil).(*FmtLogger)
	assert.True(t, ok)

	_, ok = NewGlogLogger(nil).(*FmtLogger)
	assert.True(t, ok)
}

func TestGlogLoggerWritesStructuredFields(t *testing.T) {
	buf := &bytes.Buffer{}
	base := glog.NewLogger(
		glog.WithWriter(buf),
		glog.WithLoggerTypeJSON(),
		glog.WithLevel("trace"),
	)
	logger := NewGlogLogger(base).WithContext(context.Background())
	logger = WithLoggerFields(logger, map[string]any{"execution_id": "exec-42"})

	logger.Info("execution finalized")

	logged := buf.String()
	require.NotEmpty(t, strings.TrimSpace(logged))
	assert.Contains(t, logged, "execution finalized")
	assert.Contains(t, logged, "exec-42")
}
