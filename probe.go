package staticserve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ErrServerNotAvailable is returned by WaitForServer when all the
// attempts are used without getting a 200 reply.
var ErrServerNotAvailable = errors.New("server not available")

// probeResult holds the outcome of a single GET request.
type probeResult struct {
	Status        int
	StatusText    string
	Duration      time.Duration
	ContentType   string
	ContentLength int64
}

// probe will do a single GET request to url, read the whole body, and
// return what was found.
func probe(ctx context.Context, url string, timeout time.Duration) (probeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return probeResult{}, fmt.Errorf("error: probe: NewRequest failed: %v", err)
	}
	req.Header.Set("User-Agent", "staticserve-probe/1.0")

	client := http.Client{
		Timeout: timeout,
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return probeResult{Duration: time.Since(start)}, fmt.Errorf("error: probe: client.Do failed: %v", err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	pr := probeResult{
		Status:        resp.StatusCode,
		StatusText:    http.StatusText(resp.StatusCode),
		Duration:      time.Since(start),
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: n,
	}
	if err != nil {
		return pr, fmt.Errorf("error: probe: failed to read body: %v", err)
	}

	return pr, nil
}

// startupPing will check 2 seconds after startup that the server is
// answering on its own port, and log the result. It is never fatal.
func (s *server) startupPing(port int) {
	select {
	case <-time.After(time.Second * 2):
	case <-s.ctx.Done():
		return
	}

	url := fmt.Sprintf("http://localhost:%d/", port)
	pr, err := probe(s.ctx, url, time.Second*10)
	if err != nil {
		s.errorKernel.logWarn("startup ping failed", "url", url, "error", err)
		return
	}

	if pr.Status != http.StatusOK {
		s.errorKernel.logWarn("startup ping received non ok status", "url", url, "status", pr.Status)
		return
	}

	s.errorKernel.logInfo("startup ping successful", "url", url, "status", pr.Status, "duration", pr.Duration, "contentType", pr.ContentType, "contentLength", pr.ContentLength)
}

// WaitConfig holds the options for WaitForServer.
type WaitConfig struct {
	// The url to check.
	TargetURL string
	// Time to wait between each attempt.
	CheckInterval time.Duration
	// Max number of attempts before giving up.
	MaxAttempts int
	// Timeout for each attempt.
	Timeout time.Duration
}

// WaitForServer will poll wc.TargetURL until it replies with 200, or
// until wc.MaxAttempts is reached. The number of attempts done is
// returned. If logger is nil nothing is logged.
func WaitForServer(ctx context.Context, wc WaitConfig, logger *log.Logger) (int, error) {
	if wc.MaxAttempts < 1 {
		return 0, fmt.Errorf("error: WaitForServer: max attempts must be 1 or more, got %v", wc.MaxAttempts)
	}

	logf := func(format string, v ...any) {
		if logger != nil {
			logger.Printf(format, v...)
		}
	}

	start := time.Now()

	for attempt := 1; attempt <= wc.MaxAttempts; attempt++ {
		logf("attempt %v/%v (elapsed: %v), checking: %v", attempt, wc.MaxAttempts, time.Since(start).Round(time.Second), wc.TargetURL)

		pr, err := probe(ctx, wc.TargetURL, wc.Timeout)
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}

		switch {
		case err != nil:
			logf("failed: %v, duration: %v", err, pr.Duration)
		case pr.Status == http.StatusOK:
			logf("server available, status: %v %v, response time: %v, content-type: %v, total wait: %v, attempts: %v",
				pr.Status, pr.StatusText, pr.Duration, pr.ContentType, time.Since(start).Round(time.Second), attempt)
			return attempt, nil
		default:
			logf("status: %v %v (not OK), response time: %v", pr.Status, pr.StatusText, pr.Duration)
		}

		if attempt == wc.MaxAttempts {
			break
		}

		logf("waiting %v before next attempt", wc.CheckInterval)
		select {
		case <-time.After(wc.CheckInterval):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}

	logf("server not available after %v attempts, total time: %v, target: %v", wc.MaxAttempts, time.Since(start).Round(time.Second), wc.TargetURL)
	return wc.MaxAttempts, ErrServerNotAvailable
}
