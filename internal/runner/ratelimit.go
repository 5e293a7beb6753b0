package runner

import (
	"bytes"
	"io"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// rateLimitLines match whole lines the agent emits when the model endpoint
// throttles it. The agent echoes model-chosen action params on stdout, so a
// bare "rate limit" substring is not a signal; only the OpenAI client's error
// shapes are.
var rateLimitLines = []*regexp.Regexp{
	// per-step and session-level exceptions printed by the agent loop
	regexp.MustCompile(`^An error occurred in step \d+: .*(Error code: 429\b|RateLimitError)`),
	regexp.MustCompile(`^A critical error occurred during the browsing session: .*(Error code: 429\b|RateLimitError)`),
	// last line of an uncaught traceback on stderr
	regexp.MustCompile(`^(openai\.)?RateLimitError: `),
	// httpx request log under Python's default logging format
	regexp.MustCompile(`^(INFO:httpx:)?HTTP Request: [A-Z]+ \S+ "HTTP/[\d.]+ 429 `),
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry[-_ ]after["']?\s*[:=]\s*["']?(\d+)`)

// maxPendingLine bounds the partial line kept between writes.
const maxPendingLine = 64 * 1024

// rateLimitWriter scans one output stream line by line for rate limit
// signals. It passes all data through to the underlying writer unchanged.
type rateLimitWriter struct {
	file     io.Writer
	pending  []byte
	detected bool
	resetsAt time.Time
	now      func() time.Time
	mu       sync.Mutex
}

// newRateLimitWriter creates a rateLimitWriter wrapping the given writer.
func newRateLimitWriter(w io.Writer) *rateLimitWriter {
	return &rateLimitWriter{file: w, now: time.Now}
}

func (w *rateLimitWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.detected {
		return n, err
	}

	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.scanLine(w.pending[:i])
		w.pending = w.pending[i+1:]
		if w.detected {
			w.pending = nil
			return n, err
		}
	}
	if len(w.pending) > maxPendingLine {
		w.pending = w.pending[len(w.pending)-maxPendingLine:]
	}
	return n, err
}

// Flush scans a trailing line that never got its newline.
func (w *rateLimitWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.detected && len(w.pending) > 0 {
		w.scanLine(w.pending)
	}
	w.pending = nil
}

func (w *rateLimitWriter) scanLine(line []byte) {
	line = bytes.TrimRight(line, "\r")
	for _, re := range rateLimitLines {
		if !re.Match(line) {
			continue
		}
		w.detected = true
		if m := retryAfterPattern.FindSubmatch(line); len(m) == 2 {
			if secs, parseErr := strconv.Atoi(string(m[1])); parseErr == nil {
				w.resetsAt = w.now().Add(time.Duration(secs) * time.Second)
			}
		}
		return
	}
}

// Detected returns true if a rate limit signal was found.
func (w *rateLimitWriter) Detected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.detected
}

// ResetsAt returns when the endpoint asked to be retried, or zero if unknown.
func (w *rateLimitWriter) ResetsAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resetsAt
}
