// Package runstate persists the marker that identifies the active monitor
// process. Control commands and the background loop only talk to each other
// through this file and the log.
package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	citerr "github.com/citamon/citamon/internal/citamon/errors"
)

// Status is the loop state recorded in the marker.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusChecking Status = "checking"
	StatusSleeping Status = "sleeping"
	StatusNotify   Status = "notifying"
)

// RunState is the marker content.
type RunState struct {
	PID                int       `json:"pid"`
	StartedAt          time.Time `json:"started_at"`
	Status             Status    `json:"status"`
	Location           string    `json:"location"`
	Office             string    `json:"office"`
	Procedure          string    `json:"procedure"`
	IntervalMinutes    int       `json:"interval_minutes"`
	Checks             int       `json:"checks"`
	LastCheckAt        time.Time `json:"last_check_at,omitzero"`
	LastOutcome        string    `json:"last_outcome,omitempty"`
	InconclusiveStreak int       `json:"inconclusive_streak"`
	NextCheckAt        time.Time `json:"next_check_at,omitzero"`
}

// Store reads and writes the marker at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for the marker at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path is the marker location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the marker. A missing marker yields an error satisfying
// os.IsNotExist; unparsable content yields ErrMarkerCorrupt.
func (s *Store) Read() (*RunState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, citerr.Wrapf(citerr.ErrMarkerCorrupt, "%s: %v", s.path, err)
	}
	if st.PID <= 0 {
		return nil, citerr.Wrapf(citerr.ErrMarkerCorrupt, "%s: invalid pid %d", s.path, st.PID)
	}
	return &st, nil
}

// writeTemp writes st to a temporary file next to the marker and returns its name.
func (s *Store) writeTemp(st RunState) (string, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create run state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run state: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create run state temp file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to write run state: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to sync run state: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to close run state: %w", err)
	}
	return name, nil
}

// Claim creates the marker for st.PID. The marker appears atomically with its
// full content, and only if no other marker exists. A marker left by a dead
// process, or one that cannot be parsed, is replaced.
func (s *Store) Claim(st RunState) error {
	tmp, err := s.writeTemp(st)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp) }()

	for attempt := 0; attempt < 2; attempt++ {
		err := os.Link(tmp, s.path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("failed to create run state marker: %w", err)
		}

		existing, readErr := s.Read()
		switch {
		case readErr == nil && existing.PID == st.PID:
			return os.Rename(tmp, s.path)
		case readErr == nil && ProcessAlive(existing.PID):
			return citerr.Wrapf(citerr.ErrAlreadyRunning, "pid %d", existing.PID)
		case readErr != nil && os.IsNotExist(readErr):
			// removed between Link and Read; try again
		default:
			if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove stale run state marker: %w", err)
			}
		}
	}
	return citerr.Wrap(citerr.ErrAlreadyRunning, "lost the race for the run state marker")
}

// Update rewrites the marker for its owner. It refuses to recreate a marker
// that 'stop' removed or that another process now owns.
func (s *Store) Update(st RunState) error {
	current, err := s.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return citerr.Wrap(citerr.ErrNotRunning, "run state marker was removed")
		}
		return err
	}
	if current.PID != st.PID {
		return citerr.Wrapf(citerr.ErrNotRunning, "run state marker now belongs to pid %d", current.PID)
	}

	tmp, err := s.writeTemp(st)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace run state marker: %w", err)
	}
	return nil
}

// Release removes the marker if pid still owns it.
func (s *Store) Release(pid int) error {
	current, err := s.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if !citerr.Is(err, citerr.ErrMarkerCorrupt) {
			return err
		}
	} else if current.PID != pid {
		return nil
	}
	return s.Remove()
}

// Remove deletes the marker unconditionally.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove run state marker: %w", err)
	}
	return nil
}

// ProcessAlive reports whether pid refers to a live process. A process owned
// by another user still counts as alive.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Send signal 0 to check if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Inspection is the outcome of looking at the marker.
type Inspection struct {
	State *RunState
	Alive bool
	// Stale is set when a marker existed but its process was gone or its
	// content was unreadable.
	Stale bool
	Err   error
}

// Running reports whether a live monitor owns the marker.
func (i Inspection) Running() bool {
	return i.State != nil && i.Alive
}

// Peek reads the marker and checks its process without changing anything.
func (s *Store) Peek() Inspection {
	st, err := s.Read()
	switch {
	case err == nil:
	case os.IsNotExist(err):
		return Inspection{}
	case citerr.Is(err, citerr.ErrMarkerCorrupt):
		return Inspection{Stale: true}
	default:
		return Inspection{Err: err}
	}

	if ProcessAlive(st.PID) {
		return Inspection{State: st, Alive: true}
	}
	return Inspection{State: st, Stale: true}
}

// Inspect is Peek followed by removal of a stale marker, so a crashed run
// never needs manual cleanup.
func (s *Store) Inspect() Inspection {
	insp := s.Peek()
	if insp.Stale {
		if err := s.Remove(); err != nil {
			insp.Err = err
		}
	}
	return insp
}

// Guard is the single-instance check run before a new monitor is started.
func (s *Store) Guard() (Inspection, error) {
	insp := s.Inspect()
	if insp.Err != nil {
		return insp, insp.Err
	}
	if insp.Running() {
		return insp, citerr.Wrapf(citerr.ErrAlreadyRunning, "pid %d", insp.State.PID)
	}
	return insp, nil
}

// WaitReleased blocks until the marker is gone, ctx is done or timeout passes.
// It returns true if the marker was removed.
func (s *Store) WaitReleased(ctx context.Context, timeout time.Duration) (bool, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return true, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return false, fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return false, fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}

	// The marker may have gone before the watch was in place.
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
			_, err := os.Stat(s.path)
			return os.IsNotExist(err), nil
		case event, ok := <-watcher.Events:
			if !ok {
				return false, fmt.Errorf("file watcher closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if _, err := os.Stat(s.path); os.IsNotExist(err) {
					return true, nil
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return false, fmt.Errorf("file watcher closed")
			}
			return false, fmt.Errorf("file watcher error: %w", err)
		}
	}
}
