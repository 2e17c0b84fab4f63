package staticserve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// server is the structure that will hold the state about the running
// file server.
type server struct {
	// The main background context
	ctx context.Context
	// The CancelFunc for the main context
	cancel context.CancelFunc
	// Configuration options used for running the server
	configuration *Configuration
	// The folder served, rooted so requests can't escape it.
	fileSystem http.FileSystem
	// The http server answering all requests on the main port.
	httpServer *http.Server
	// errorKernel is doing all the error and information logging.
	errorKernel *errorKernel
	// metric exporter
	metrics *metrics
	// Persistent hit counters, nil if not enabled.
	hits *hitStore
	// Version of package
	version string
	// Time the server was created.
	started time.Time
	// Where the startup message is printed.
	stdout io.Writer

	// mu protects closers.
	mu sync.Mutex
	// closers are the listeners and watchers started by Start that
	// should be closed by Stop.
	closers []io.Closer
}

// NewServer will prepare and return a server type
func NewServer(configuration *Configuration, version string) (*server, error) {
	// Set up the main background context.
	ctx, cancel := context.WithCancel(context.Background())

	metrics := newMetrics(configuration.PromHostAndPort)
	errorKernel := newErrorKernel(metrics, configuration)

	fi, err := os.Stat(configuration.ServeFolder)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error: NewServer: failed to stat serve folder %v: %v", configuration.ServeFolder, err)
	}
	if !fi.IsDir() {
		cancel()
		return nil, fmt.Errorf("error: NewServer: serve folder is not a directory: %v", configuration.ServeFolder)
	}

	var hits *hitStore
	if configuration.DatabaseFolder != "" {
		hits, err = openHitStore(configuration.DatabaseFolder)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	s := server{
		ctx:           ctx,
		cancel:        cancel,
		configuration: configuration,
		fileSystem:    http.Dir(configuration.ServeFolder),
		errorKernel:   errorKernel,
		metrics:       metrics,
		hits:          hits,
		version:       version,
		started:       time.Now(),
		stdout:        os.Stdout,
	}

	s.httpServer = &http.Server{
		Handler:  s.newHandler(),
		ErrorLog: slog.NewLogLogger(errorKernel.logger.Handler(), slog.LevelWarn),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	return &s, nil
}

// Start will open the listener on the configured port on all interfaces,
// and serve requests until Stop is called. Failing to open the listener
// is returned as an error.
func (s *server) Start() error {
	addr := fmt.Sprintf(":%d", s.configuration.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("error: Start: failed to listen on %v: %v", addr, err)
	}

	return s.serve(ln)
}

// serve will start the supporting services, print the startup message,
// and block serving requests on ln.
func (s *server) serve(ln net.Listener) error {
	s.errorKernel.logInfo("starting staticserve", "version", s.version, "serveFolder", s.configuration.ServeFolder)
	s.metrics.promVersion.With(prometheus.Labels{"version": s.version}).Set(1)

	ml, err := s.metrics.listen()
	if err != nil {
		ln.Close()
		return err
	}
	if ml != nil {
		s.addCloser(ml)

		go func() {
			err := s.metrics.serve(ml)
			if err != nil {
				s.errorKernel.logError("metrics listener stopped", "error", err)
			}
		}()
	}

	if s.configuration.WatchFolder {
		fw, err := newFolderWatcher(s.ctx, s.configuration.ServeFolder, s.errorKernel, s.metrics)
		if err != nil {
			ln.Close()
			return err
		}
		s.addCloser(fw)
	}

	port := s.configuration.Port
	if a, ok := ln.Addr().(*net.TCPAddr); ok {
		port = a.Port
	}

	fmt.Fprintf(s.stdout, "Server running at http://localhost:%d/\n", port)
	fmt.Fprintf(s.stdout, "Press Ctrl+C to stop the server\n")

	if s.configuration.StartupPing {
		go s.startupPing(port)
	}

	err = s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("error: serve: http.Serve failed: %v", err)
	}

	return nil
}

// addCloser will register c to be closed by Stop. If Stop is already
// done c is closed at once.
func (s *server) addCloser(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		c.Close()
		return
	}
	s.closers = append(s.closers, c)
}

// Stop will close the listeners right away without waiting for active
// connections to finish, and release the resources held by the server.
func (s *server) Stop() {
	// Stop the main context.
	s.cancel()

	err := s.httpServer.Close()
	if err != nil {
		s.errorKernel.logWarn("failed to close http server", "error", err)
	}
	s.errorKernel.logInfo("stopped the http server")

	s.mu.Lock()
	for _, c := range s.closers {
		err := c.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			s.errorKernel.logWarn("failed to close", "error", err)
		}
	}
	s.closers = nil
	s.mu.Unlock()

	if s.hits != nil {
		err := s.hits.close()
		if err != nil {
			s.errorKernel.logWarn("failed to close hit store", "error", err)
		}
	}
}
