package runner

import (
	"sync"
	"time"
)

// idleWatchdog is an io.Writer placed on the agent's output streams. It fires
// cancel when nothing is written for the configured timeout. Each non-empty
// Write resets the timer.
type idleWatchdog struct {
	timer   *time.Timer
	timeout time.Duration
	cancel  func()
	idled   bool
	mu      sync.Mutex
}

// newIdleWatchdog creates a watchdog that calls cancel after timeout of
// silence. Pass 0 to disable idle detection.
func newIdleWatchdog(timeout time.Duration, cancel func()) *idleWatchdog {
	if timeout <= 0 {
		return &idleWatchdog{}
	}
	w := &idleWatchdog{
		timeout: timeout,
		cancel:  cancel,
	}
	w.timer = time.AfterFunc(timeout, w.onTimeout)
	return w
}

func (w *idleWatchdog) Write(p []byte) (int, error) {
	if len(p) > 0 && w.timer != nil {
		w.timer.Reset(w.timeout)
	}
	return len(p), nil
}

func (w *idleWatchdog) onTimeout() {
	w.mu.Lock()
	w.idled = true
	w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

// Idled returns true if the idle timeout fired.
func (w *idleWatchdog) Idled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idled
}

// Stop stops the idle timer. Call in defer once the agent has exited.
func (w *idleWatchdog) Stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}
