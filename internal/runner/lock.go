package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const lockFileName = ".trajrun.lock"

// LockInfo describes the batch that owns an output directory.
type LockInfo struct {
	PID       int       `json:"pid"`
	RunID     string    `json:"run_id"`
	TasksFile string    `json:"tasks_file,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Acquire creates a lock file in outputDir so two batches never write the
// same trajectories. If the lock exists and the owning PID is dead, the
// stale lock is reclaimed.
func Acquire(outputDir, runID, tasksFile string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	lockPath := filepath.Join(outputDir, lockFileName)

	info := LockInfo{
		PID:       os.Getpid(),
		RunID:     runID,
		TasksFile: tasksFile,
		StartedAt: time.Now(),
	}

	err := writeLock(lockPath, &info)
	if err == nil {
		return nil
	}

	if !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create lock %s: %w", lockPath, err)
	}

	existing, readErr := ReadLock(outputDir)
	if readErr != nil {
		return fmt.Errorf("output dir %s is locked (could not read lock: %v)", outputDir, readErr)
	}

	if isProcessAlive(existing.PID) {
		return fmt.Errorf("output dir %s locked by PID %d since %s (run %s)",
			outputDir, existing.PID, existing.StartedAt.Format(time.RFC3339), existing.RunID)
	}

	slog.Warn("reclaiming stale lock", "dir", outputDir, "stale_pid", existing.PID, "run", existing.RunID)
	if err := os.Remove(lockPath); err != nil {
		return fmt.Errorf("remove stale lock: %w", err)
	}

	if err := writeLock(lockPath, &info); err != nil {
		return fmt.Errorf("acquire after stale removal: %w", err)
	}

	return nil
}

// Release removes the lock file from outputDir. It is idempotent.
func Release(outputDir string) {
	lockPath := filepath.Join(outputDir, lockFileName)
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to release lock", "path", lockPath, "error", err)
	}
}

// ReadLock reads the lock file from outputDir.
func ReadLock(outputDir string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, lockFileName))
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}

	return &info, nil
}

// writeLock atomically creates the lock file using O_CREATE|O_EXCL.
func writeLock(path string, info *LockInfo) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	encErr := json.NewEncoder(f).Encode(info)
	closeErr := f.Close()
	if encErr != nil {
		return encErr
	}
	return closeErr
}

// isProcessAlive checks if a process with the given PID exists and is running.
func isProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks existence without actually sending a signal
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
