package staticserve

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// healthStatus is the body returned by the health endpoint.
type healthStatus struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    string  `json:"uptime"`
	Version   string  `json:"version"`
	Hits      *uint64 `json:"hits,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// health will check that the served folder can be read, and reply with
// the status as json. 200 if all is ok, and 503 if not.
func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	hs := healthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    fmt.Sprintf("%.3fs", time.Since(s.started).Seconds()),
		Version:   s.version,
	}
	code := http.StatusOK

	err := s.checkServeFolder()
	if err != nil {
		hs.Status = "error"
		hs.Error = err.Error()
		code = http.StatusServiceUnavailable
		s.errorKernel.logWarn("health check failed", "error", err)
	}

	if s.hits != nil && err == nil {
		n, err := s.hits.total()
		if err != nil {
			s.errorKernel.logWarn("health: failed to read hit total", "error", err)
		} else {
			hs.Hits = &n
		}
	}

	b, err := json.Marshal(hs)
	if err != nil {
		er := fmt.Errorf("error: health: json marshaling: %v", err)
		s.errorKernel.logError(er.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	w.Write(b)
}

// checkServeFolder checks that the root of the served folder can be
// opened and read.
func (s *server) checkServeFolder() error {
	f, err := s.fileSystem.Open("/")
	if err != nil {
		return fmt.Errorf("error: failed to open serve folder: %v", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("error: failed to stat serve folder: %v", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("error: serve folder is not a directory: %v", s.configuration.ServeFolder)
	}

	return nil
}
