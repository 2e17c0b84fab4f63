package staticserve

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// logLevel is the level an error or info message is reported with.
type logLevel string

const (
	logError   logLevel = "error"
	logWarning logLevel = "warning"
	logInfo    logLevel = "info"
	logDebug   logLevel = "debug"
	logNone    logLevel = "none"
)

// errorKernel is where all the error and information reporting of the
// server ends up. Everything is written to STDERR, and every message at
// warning level or above is also counted in the metrics.
type errorKernel struct {
	logger  *slog.Logger
	metrics *metrics
}

// newErrorKernel will prepare and return an *errorKernel writing to
// STDERR with the level and timestamp settings from the configuration.
func newErrorKernel(m *metrics, c *Configuration) *errorKernel {
	return newErrorKernelWriter(os.Stderr, m, c)
}

func newErrorKernelWriter(w io.Writer, m *metrics, c *Configuration) *errorKernel {
	lvl := new(slog.LevelVar)
	out := w

	switch logLevel(strings.ToLower(c.LogLevel)) {
	case logError:
		lvl.Set(slog.LevelError)
	case logWarning:
		lvl.Set(slog.LevelWarn)
	case logInfo:
		lvl.Set(slog.LevelInfo)
	case logDebug:
		lvl.Set(slog.LevelDebug)
	case logNone:
		out = io.Discard
	default:
		lvl.Set(slog.LevelInfo)
	}

	opts := slog.HandlerOptions{
		Level: lvl,
	}
	if !c.LogConsoleTimestamps {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}
	}

	e := errorKernel{
		logger:  slog.New(slog.NewTextHandler(out, &opts)),
		metrics: m,
	}

	return &e
}

func (e *errorKernel) logError(msg string, args ...any) {
	e.count(logError)
	e.logger.Error(msg, args...)
}

func (e *errorKernel) logWarn(msg string, args ...any) {
	e.count(logWarning)
	e.logger.Warn(msg, args...)
}

func (e *errorKernel) logInfo(msg string, args ...any) {
	e.logger.Info(msg, args...)
}

func (e *errorKernel) logDebug(msg string, args ...any) {
	e.logger.Debug(msg, args...)
}

func (e *errorKernel) count(l logLevel) {
	if e.metrics == nil {
		return
	}
	e.metrics.promErrorsTotal.With(prometheus.Labels{"level": string(l)}).Inc()
}
