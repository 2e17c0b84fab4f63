package staticserve

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

// syncBuffer is a bytes.Buffer safe for use from several go routines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// getUntilOK will GET url until it answers, or fail the test after 5
// seconds.
func getUntilOK(t *testing.T, url string) *http.Response {
	t.Helper()

	deadline := time.Now().Add(time.Second * 5)
	for {
		resp, err := http.Get(url)
		if err == nil {
			return resp
		}
		if time.Now().After(deadline) {
			t.Fatalf("server at %v never answered: %v", url, err)
		}
		time.Sleep(time.Millisecond * 20)
	}
}

func TestServeAndStop(t *testing.T) {
	s := newTestServer(t, Configuration{}, map[string]string{
		"index.html": "<h1>Hi</h1>",
	})
	out := &syncBuffer{}
	s.stdout = out

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.serve(ln)
	}()

	resp := getUntilOK(t, fmt.Sprintf("http://127.0.0.1:%d/", port))
	b, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.NilError(t, err)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, string(b), "<h1>Hi</h1>")
	assertFixedHeaders(t, resp)

	want := fmt.Sprintf("Server running at http://localhost:%d/\nPress Ctrl+C to stop the server\n", port)
	assert.Equal(t, out.String(), want)

	s.Stop()

	select {
	case err := <-errCh:
		assert.NilError(t, err)
	case <-time.After(time.Second * 5):
		t.Fatal("serve did not return after Stop")
	}

	client := http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	_, err = client.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
	assert.Check(t, err != nil)
}

func TestStartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	assert.NilError(t, err)
	defer ln.Close()

	s := newTestServer(t, Configuration{}, nil)
	s.configuration.Port = ln.Addr().(*net.TCPAddr).Port
	out := &syncBuffer{}
	s.stdout = out

	err = s.Start()
	assert.Check(t, is.ErrorContains(err, "failed to listen"))
	// Nothing is printed when the port can't be bound.
	assert.Equal(t, out.String(), "")
}

func TestStartListensOnConfiguredPort(t *testing.T) {
	// Find a free port, and release it for the server to use.
	ln, err := net.Listen("tcp", ":0")
	assert.NilError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	assert.NilError(t, ln.Close())

	s := newTestServer(t, Configuration{Port: port}, map[string]string{
		"style.css": "body {}",
	})
	out := &syncBuffer{}
	s.stdout = out

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	resp := getUntilOK(t, fmt.Sprintf("http://localhost:%d/style.css", port))
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Check(t, is.Contains(out.String(), fmt.Sprintf("http://localhost:%d/", port)))

	s.Stop()
	assert.NilError(t, <-errCh)
}

func TestServeWithMetrics(t *testing.T) {
	s := newTestServer(t, Configuration{}, map[string]string{
		"style.css": "body {}",
	})
	s.stdout = io.Discard

	ml, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	s.addCloser(ml)
	go s.metrics.serve(ml)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	go s.serve(ln)

	resp := getUntilOK(t, fmt.Sprintf("http://%v/style.css", ln.Addr()))
	resp.Body.Close()

	resp = getUntilOK(t, fmt.Sprintf("http://%v/metrics", ml.Addr()))
	b, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.NilError(t, err)

	body := string(b)
	assert.Check(t, is.Contains(body, `staticserve_http_requests_total{code="200",method="GET"} 1`))
	assert.Check(t, is.Contains(body, `staticserve_build_version{version="test"} 1`))
	assert.Check(t, strings.Contains(body, "staticserve_http_request_duration_seconds_bucket"))
}

func TestNewServerServeFolderErrors(t *testing.T) {
	c := newConfigurationDefaults()
	c.LogLevel = "none"

	c.ServeFolder = t.TempDir() + "/missing"
	_, err := NewServer(&c, "test")
	assert.Check(t, is.ErrorContains(err, "failed to stat serve folder"))

	s := newTestServer(t, Configuration{}, map[string]string{"file.txt": "x"})
	c.ServeFolder = s.configuration.ServeFolder + "/file.txt"
	_, err = NewServer(&c, "test")
	assert.Check(t, is.ErrorContains(err, "not a directory"))
}
