package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterTaskDelay is the cooldown between two agent invocations.
const DefaultInterTaskDelay = 30 * time.Second

// MalformedPolicy decides what happens when a record lacks url or task.
type MalformedPolicy string

const (
	MalformedSkip     MalformedPolicy = "skip"      // warn, record SKIPPED, keep going
	MalformedFailFast MalformedPolicy = "fail-fast" // stop the batch at the first malformed record
)

// ParseMalformedPolicy validates a policy name. Empty means skip.
func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch MalformedPolicy(s) {
	case "", MalformedSkip:
		return MalformedSkip, nil
	case MalformedFailFast:
		return MalformedFailFast, nil
	default:
		return "", fmt.Errorf("unknown malformed policy %q (want %q or %q)", s, MalformedSkip, MalformedFailFast)
	}
}

// Reasons given to records the batch never reached.
const (
	ReasonInterrupted = "interrupted before start"
	ReasonStopped     = "batch stopped at malformed record"
)

// NotStarted reports whether res was skipped because the batch ended before
// reaching it, as opposed to being filtered out or malformed.
func NotStarted(res *TaskResult) bool {
	return res.State == StateSkipped && (res.Error == ReasonInterrupted || res.Error == ReasonStopped)
}

// ExecFn runs one invocation to completion and returns its result.
type ExecFn func(ctx context.Context, inv *Invocation) *TaskResult

// SleepFn waits for d or until ctx is done.
type SleepFn func(ctx context.Context, d time.Duration) error

// BatchConfig holds batch parameters. Nothing here changes during a run.
type BatchConfig struct {
	Model          string
	Endpoint       string
	MaxSteps       int
	InterTaskDelay time.Duration
	OutputDir      string
	Malformed      MalformedPolicy

	ExecFn ExecFn
	Sleep  SleepFn // default: SleepContext

	// Include filters records by index. A false return skips the record with
	// the given reason; its index is still consumed.
	Include func(e Entry) (bool, string)

	OnStart  func(inv *Invocation)     // before the agent is spawned
	OnUpdate func(result *TaskResult) // on every state change
}

// Batch executes task records one at a time, in input order.
type Batch struct {
	cfg     BatchConfig
	entries []Entry
	results []*TaskResult
	mu      sync.Mutex
}

// NewBatch creates a batch over entries. Every entry gets a PENDING result
// whose output path is fixed up front by its index.
func NewBatch(entries []Entry, cfg BatchConfig) *Batch {
	if cfg.Sleep == nil {
		cfg.Sleep = SleepContext
	}
	if cfg.Malformed == "" {
		cfg.Malformed = MalformedSkip
	}

	results := make([]*TaskResult, len(entries))
	for i, e := range entries {
		results[i] = &TaskResult{
			Index:      e.Index,
			URL:        e.Record.URL,
			Task:       e.Record.Task,
			OutputPath: OutputPath(cfg.OutputDir, e.Index),
			State:      StatePending,
		}
	}

	return &Batch{cfg: cfg, entries: entries, results: results}
}

// Run processes every entry sequentially. Agent failures never stop the
// batch; only a malformed record under MalformedFailFast or a cancelled
// context does. Results are returned in input order in every case.
func (b *Batch) Run(ctx context.Context) ([]*TaskResult, error) {
	invoked := false

	for i, e := range b.entries {
		if err := ctx.Err(); err != nil {
			b.skipRemaining(i, ReasonInterrupted)
			return b.Results(), err
		}

		if e.Malformed() {
			if b.cfg.Malformed == MalformedFailFast {
				b.setSkipped(i, e.Err.Error())
				b.skipRemaining(i+1, ReasonStopped)
				return b.Results(), fmt.Errorf("record %d: %w", e.Index, e.Err)
			}
			slog.Warn("skipping malformed record", "index", e.Index, "error", e.Err)
			b.setSkipped(i, e.Err.Error())
			continue
		}

		if b.cfg.Include != nil {
			if ok, reason := b.cfg.Include(e); !ok {
				slog.Debug("record filtered", "index", e.Index, "reason", reason)
				b.setSkipped(i, reason)
				continue
			}
		}

		// cooldown sits between invocations, so the last one is never followed by a pause
		if invoked && b.cfg.InterTaskDelay > 0 {
			slog.Debug("cooling down", "delay", b.cfg.InterTaskDelay, "next", e.Index)
			if err := b.cfg.Sleep(ctx, b.cfg.InterTaskDelay); err != nil {
				b.skipRemaining(i, ReasonInterrupted)
				return b.Results(), err
			}
		}

		b.execute(ctx, i)
		invoked = true
	}

	if err := ctx.Err(); err != nil {
		return b.Results(), err
	}
	return b.Results(), nil
}

// Results returns a copy of all results in input order.
func (b *Batch) Results() []*TaskResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]*TaskResult, len(b.results))
	for i, r := range b.results {
		cpy := *r
		cp[i] = &cpy
	}
	return cp
}

func (b *Batch) execute(ctx context.Context, i int) {
	e := b.entries[i]
	inv := &Invocation{
		Index:    e.Index,
		URL:      e.Record.URL,
		Task:     e.Record.Task,
		Model:    b.cfg.Model,
		Endpoint: b.cfg.Endpoint,
		MaxSteps: b.cfg.MaxSteps,
		Output:   OutputPath(b.cfg.OutputDir, e.Index),
	}

	b.mu.Lock()
	b.results[i].State = StateRunning
	b.results[i].StartedAt = time.Now()
	b.mu.Unlock()
	if b.cfg.OnStart != nil {
		b.cfg.OnStart(inv)
	}
	b.notify(i)

	result := b.cfg.ExecFn(ctx, inv)
	if result == nil {
		now := time.Now()
		result = &TaskResult{State: StateFailed, EndedAt: now, Error: "runner returned no result"}
	}

	// index and path belong to the batch, whatever the runner reported
	result.Index = e.Index
	result.URL = e.Record.URL
	result.Task = e.Record.Task
	result.OutputPath = inv.Output
	if result.StartedAt.IsZero() {
		result.StartedAt = b.results[i].StartedAt
	}

	b.mu.Lock()
	b.results[i] = result
	b.mu.Unlock()
	b.notify(i)
}

func (b *Batch) setSkipped(i int, reason string) {
	b.mu.Lock()
	b.results[i].State = StateSkipped
	b.results[i].Error = reason
	b.mu.Unlock()
	b.notify(i)
}

func (b *Batch) skipRemaining(from int, reason string) {
	for i := from; i < len(b.results); i++ {
		b.mu.Lock()
		pending := b.results[i].State == StatePending
		b.mu.Unlock()
		if pending {
			b.setSkipped(i, reason)
		}
	}
}

func (b *Batch) notify(i int) {
	if b.cfg.OnUpdate != nil {
		b.mu.Lock()
		cpy := *b.results[i]
		b.mu.Unlock()
		b.cfg.OnUpdate(&cpy)
	}
}

// SleepContext waits for d, returning early with ctx.Err() on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
