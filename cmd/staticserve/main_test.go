package main

import (
	"bytes"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/postmannen/staticserve"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"
)

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

func TestStartProfilingLogsListenError(t *testing.T) {
	// Hold the port so the pprof listener fails.
	ln, err := net.Listen("tcp", "localhost:0")
	assert.NilError(t, err)
	defer ln.Close()

	var buf syncBuffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	c := &staticserve.Configuration{
		ProfilingPort: strconv.Itoa(ln.Addr().(*net.TCPAddr).Port),
		Profiling:     "block",
	}
	p := startProfiling(c)
	defer p.Stop()

	logged := func(t poll.LogT) poll.Result {
		if strings.Contains(buf.String(), "error: pprof listener on port "+c.ProfilingPort) {
			return poll.Success()
		}
		return poll.Continue("waiting for the listen error, got: %q", buf.String())
	}
	poll.WaitOn(t, logged, poll.WithTimeout(time.Second*5), poll.WithDelay(time.Millisecond*10))
}
