package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"time"

	_ "net/http/pprof"

	"github.com/pkg/profile"
	"github.com/postmannen/staticserve"
)

// Use ldflags to set version
// env PORT=3000 go run -ldflags "-X main.version=v0.1.0" --race ./cmd/staticserve/.
// or
// env GOOS=linux GOARCH=amd64 go build -ldflags "-X main.version=v0.1.0" -o staticserve ./cmd/staticserve/
var version string

func main() {
	c := staticserve.NewConfiguration()

	if c.ProfilingPort != "" {
		defer startProfiling(c).Stop()
	}

	if c.SetBlockProfileRate != 0 {
		runtime.SetBlockProfileRate(c.SetBlockProfileRate)
	}

	s, err := staticserve.NewServer(c, version)
	if err != nil {
		log.Printf("%v\n", err)
		os.Exit(1)
	}

	// Start up the server. Failing to bind the port is fatal.
	go func() {
		err := s.Start()
		if err != nil {
			log.Printf("%v\n", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	<-ctx.Done()
	log.Printf("Got exit signal, stopping the server\n")

	// Adding a safety function here so we can make sure that we exit
	// after a given time if closing the server hangs.
	go func() {
		time.Sleep(time.Second * 10)
		log.Printf("error: doing a non graceful shutdown..\n")
		os.Exit(1)
	}()

	s.Stop()
}

// startProfiling will start the profiler of the configured type, and
// expose the pprof endpoints on localhost:ProfilingPort.
func startProfiling(c *staticserve.Configuration) interface{ Stop() } {
	var p interface{ Stop() }

	switch c.Profiling {
	case "block":
		p = profile.Start(profile.BlockProfile)
	case "cpu":
		p = profile.Start(profile.CPUProfile, profile.ProfilePath("."))
	case "trace":
		p = profile.Start(profile.TraceProfile, profile.ProfilePath("."))
	case "mem":
		p = profile.Start(profile.MemProfile, profile.MemProfileRate(1))
	default:
		log.Fatalf("error: profiling port defined, but no valid profiling type defined. Check --help. Got: %v\n", c.Profiling)
	}

	go func() {
		err := http.ListenAndServe("localhost:"+c.ProfilingPort, nil)
		if err != nil {
			log.Printf("error: pprof listener on port %v stopped: %v\n", c.ProfilingPort, err)
		}
	}()

	return p
}
