package staticserve

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestErrorKernelLevels(t *testing.T) {
	var buf bytes.Buffer
	m := newMetrics("")
	e := newErrorKernelWriter(&buf, m, &Configuration{LogLevel: "warning"})

	e.logDebug("debug message")
	e.logInfo("info message")
	e.logWarn("warn message", "path", "/x")
	e.logError("error message")

	out := buf.String()
	assert.Check(t, !bytes.Contains(buf.Bytes(), []byte("debug message")))
	assert.Check(t, !bytes.Contains(buf.Bytes(), []byte("info message")))
	assert.Check(t, is.Contains(out, "level=WARN msg=\"warn message\" path=/x"))
	assert.Check(t, is.Contains(out, "level=ERROR msg=\"error message\""))
	assert.Check(t, !bytes.Contains(buf.Bytes(), []byte("time=")))

	assert.Equal(t, testutil.ToFloat64(m.promErrorsTotal.WithLabelValues("warning")), float64(1))
	assert.Equal(t, testutil.ToFloat64(m.promErrorsTotal.WithLabelValues("error")), float64(1))
}

func TestErrorKernelTimestamps(t *testing.T) {
	var buf bytes.Buffer
	e := newErrorKernelWriter(&buf, newMetrics(""), &Configuration{LogLevel: "debug", LogConsoleTimestamps: true})

	e.logDebug("debug message")
	assert.Check(t, is.Contains(buf.String(), "time="))
	assert.Check(t, is.Contains(buf.String(), "debug message"))
}

func TestErrorKernelNone(t *testing.T) {
	var buf bytes.Buffer
	m := newMetrics("")
	e := newErrorKernelWriter(&buf, m, &Configuration{LogLevel: "none"})

	e.logError("error message")
	assert.Equal(t, buf.Len(), 0)
	// Errors are still counted.
	assert.Equal(t, testutil.ToFloat64(m.promErrorsTotal.WithLabelValues("error")), float64(1))
}
