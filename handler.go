package staticserve

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	headerAllowOrigin  = "Access-Control-Allow-Origin"
	headerCacheControl = "Cache-Control"
	headerRequestID    = "X-Request-Id"

	allowOriginAny = "*"
	cacheNoStore   = "no-store, no-cache, must-revalidate"
)

// newHandler will put together the handler chain used for all requests.
//
//	fixedHeaders -> [gzip] -> health | rootRewrite -> http.FileServer
func (s *server) newHandler() http.Handler {
	files := rootRewrite(s.fileSystem, s.configuration.IndexFile, http.FileServer(s.fileSystem))

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.configuration.HealthPath != "" && r.URL.Path == s.configuration.HealthPath {
			s.health(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})

	if s.configuration.Compression == "g" {
		h = gzhttp.GzipHandler(h)
	}

	return s.fixedHeaders(h)
}

// rootRewrite will serve the index file when the root path is requested
// with GET, and serve index files requested by name directly. All other
// requests are passed on to next untouched.
//
// http.FileServer redirects any path ending in /index.html to ./, so
// those paths are opened and served here instead of being handed to the
// file server.
func rootRewrite(root http.FileSystem, indexFile string, next http.Handler) http.Handler {
	name := path.Join("/", indexFile)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/":
			serveFile(w, r, root, name)
		case (r.Method == http.MethodGet || r.Method == http.MethodHead) && isIndexPath(r.URL.Path, name):
			serveFile(w, r, root, r.URL.Path)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// isIndexPath reports if p names an index file, either the default
// index.html or the configured one.
func isIndexPath(p string, name string) bool {
	return strings.HasSuffix(p, "/index.html") || strings.HasSuffix(p, name)
}

// serveFile will send the regular file name from root, or a 404 if it
// can't be opened or is a directory.
func serveFile(w http.ResponseWriter, r *http.Request, root http.FileSystem, name string) {
	f, err := root.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		http.NotFound(w, r)
		return
	}

	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}

// fixedHeaders will make sure the CORS, no-cache and request id headers
// are present on every response, record the metrics for the request, and
// count the hit if a hit store is in use.
func (s *server) fixedHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()

		rw := &responseWriter{
			ResponseWriter: w,
			headers: [][2]string{
				{headerAllowOrigin, allowOriginAny},
				{headerCacheControl, cacheNoStore},
				{headerRequestID, id},
			},
		}

		next.ServeHTTP(rw, r)

		// Nothing was written by the handler, so net/http would send an
		// implicit 200 without our headers.
		if !rw.wroteHeader {
			rw.WriteHeader(http.StatusOK)
		}

		d := time.Since(start)

		s.metrics.promHTTPRequestsTotal.With(prometheus.Labels{
			"method": methodLabel(r.Method),
			"code":   strconv.Itoa(rw.status),
		}).Inc()
		s.metrics.promHTTPResponseBytesTotal.Add(float64(rw.bytes))
		s.metrics.promHTTPRequestDuration.Observe(d.Seconds())

		if s.hits != nil && rw.status == http.StatusOK {
			err := s.hits.inc(r.URL.Path)
			if err != nil {
				s.errorKernel.logWarn("failed to count hit", "path", r.URL.Path, "error", err)
			}
		}

		s.errorKernel.logDebug("request", "id", id, "remote", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "status", rw.status, "bytes", rw.bytes, "duration", d)
	})
}

// methodLabel keeps the cardinality of the method label bounded.
func methodLabel(m string) string {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace:
		return m
	default:
		return "other"
	}
}

// responseWriter sets the headers right before the status line is
// written, which is the last point where they can be added. Setting
// them earlier is not enough since the net/http error replies remove
// Cache-Control.
type responseWriter struct {
	http.ResponseWriter
	headers     [][2]string
	wroteHeader bool
	status      int
	bytes       int64
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
		rw.status = code

		h := rw.ResponseWriter.Header()
		for _, kv := range rw.headers {
			h.Set(kv[0], kv[1])
		}
	}

	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}

	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}

	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap is used by http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
