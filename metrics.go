package staticserve

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics are generally used to hold the structure around metrics
// handling
type metrics struct {
	// The registry is used to collect all the metrics for this instance.
	promRegistry *prometheus.Registry
	// host and port where prometheus metrics will be exported.
	hostAndPort string

	// Version of the running binary.
	promVersion *prometheus.GaugeVec
	// Requests handled, labeled with method and status code.
	promHTTPRequestsTotal *prometheus.CounterVec
	// Body bytes written to clients.
	promHTTPResponseBytesTotal prometheus.Counter
	// Time spent handling each request.
	promHTTPRequestDuration prometheus.Histogram
	// Changes seen in the served folder, labeled with the fsnotify op.
	promFolderEventsTotal *prometheus.CounterVec
	// Errors and warnings reported through the errorKernel.
	promErrorsTotal *prometheus.CounterVec
}

// newMetrics will prepare the *metrics structure with all the metrics
// registered on a private registry.
func newMetrics(hostAndPort string) *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := metrics{
		promRegistry: reg,
		hostAndPort:  hostAndPort,
	}

	m.promVersion = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "staticserve_build_version",
		Help: "Build version of staticserve",
	}, []string{"version"},
	)
	m.promRegistry.MustRegister(m.promVersion)

	m.promHTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staticserve_http_requests_total",
		Help: "The total number of http requests handled",
	}, []string{"method", "code"},
	)
	m.promRegistry.MustRegister(m.promHTTPRequestsTotal)

	m.promHTTPResponseBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "staticserve_http_response_bytes_total",
		Help: "The total number of response body bytes written",
	})
	m.promRegistry.MustRegister(m.promHTTPResponseBytesTotal)

	m.promHTTPRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "staticserve_http_request_duration_seconds",
		Help:    "Time spent handling http requests",
		Buckets: prometheus.DefBuckets,
	})
	m.promRegistry.MustRegister(m.promHTTPRequestDuration)

	m.promFolderEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staticserve_folder_events_total",
		Help: "The total number of file system events seen in the served folder",
	}, []string{"op"},
	)
	m.promRegistry.MustRegister(m.promFolderEventsTotal)

	m.promErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staticserve_errors_total",
		Help: "The total number of errors and warnings reported",
	}, []string{"level"},
	)
	m.promRegistry.MustRegister(m.promErrorsTotal)

	return &m
}

// listen will open the listener for exposing the metrics. If no host
// and port is configured a nil listener is returned.
func (m *metrics) listen() (net.Listener, error) {
	if m.hostAndPort == "" {
		return nil, nil
	}

	n, err := net.Listen("tcp", m.hostAndPort)
	if err != nil {
		return nil, fmt.Errorf("error: startMetrics: failed to open prometheus listen port: %v", err)
	}

	return n, nil
}

// serve will serve the metrics on the listener, and block until the
// listener is closed.
func (m *metrics) serve(n net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.promRegistry, promhttp.HandlerOpts{}))

	err := http.Serve(n, mux)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("error: startMetrics: failed to start http.Serve: %v", err)
	}

	return nil
}
