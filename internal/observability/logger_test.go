package observability

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/config"
)

func TestWithJobIDAttachesAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	WithJobID(logger, "job42").Info("hello")

	assert.Contains(t, buf.String(), `"job_id":"job42"`)
}

func TestWithComponentAttachesAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	WithComponent(logger, "worker").Info("hello")

	assert.Contains(t, buf.String(), `"component":"worker"`)
}

func TestTimedOperationWithErrorSuccess(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	var err error
	finish := TimedOperationWithError(context.Background(), logger, "transcribe", &err)
	finish()

	out := buf.String()
	require.Contains(t, out, "operation started")
	assert.Contains(t, out, "operation completed")
	assert.Contains(t, out, `"operation":"transcribe"`)
	assert.NotContains(t, out, "operation failed")
}

func TestTimedOperationWithErrorFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	var err error
	finish := TimedOperationWithError(context.Background(), logger, "edit", &err)
	err = fmt.Errorf("ffmpeg exited 1")
	finish()

	out := buf.String()
	assert.Contains(t, out, "operation failed")
	assert.Contains(t, out, "ffmpeg exited 1")
	assert.NotContains(t, out, "operation completed")
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "nonsense", Format: "text"}, &buf)

	logger.Debug("invisible")
	logger.Info("visible")

	assert.NotContains(t, buf.String(), "invisible")
	assert.Contains(t, buf.String(), "visible")
}
