package runner

import (
	"io"
	"strings"
	"sync"
)

// connectivityPattern maps an output pattern to a human-readable reason.
type connectivityPattern struct {
	pattern string
	reason  string
}

// Patterns are matched against lowercased agent output. The first match wins.
var connectivityPatterns = []connectivityPattern{
	{"ssl certificate problem", "TLS certificate expired"},
	{"certificate has expired", "TLS certificate expired"},
	{"certificate verify failed", "TLS verification failed"},
	{"connection refused", "connection refused"},
	{"apiconnectionerror", "model endpoint unreachable"},
	{"connection error.", "model endpoint unreachable"},
	{"name or service not known", "DNS resolution failed"},
	{"could not resolve host", "DNS resolution failed"},
	{"err_name_not_resolved", "target site DNS resolution failed"},
	{"err_connection_refused", "target site refused connection"},
	{"tls handshake timeout", "TLS handshake timeout"},
	{"apitimeouterror", "model endpoint timed out"},
}

// healthWriter wraps an io.Writer and scans for known connectivity error
// patterns. All data is passed through unchanged.
type healthWriter struct {
	file     io.Writer
	detected bool
	reason   string
	mu       sync.Mutex
}

func newHealthWriter(w io.Writer) *healthWriter {
	return &healthWriter{file: w}
}

func (hw *healthWriter) Write(p []byte) (int, error) {
	n, err := hw.file.Write(p)

	hw.mu.Lock()
	if !hw.detected {
		lower := strings.ToLower(string(p))
		for _, cp := range connectivityPatterns {
			if strings.Contains(lower, cp.pattern) {
				hw.detected = true
				hw.reason = cp.reason
				break
			}
		}
	}
	hw.mu.Unlock()

	return n, err
}

// Detected returns true if a connectivity error was found.
func (hw *healthWriter) Detected() bool {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.detected
}

// Reason returns the human-readable connectivity error classification.
func (hw *healthWriter) Reason() string {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.reason
}
