// Package daemon detaches the monitor from the terminal and implements the
// control commands that talk to it through the run-state marker.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	godaemon "github.com/sevlyar/go-daemon"

	"github.com/citamon/citamon/internal/citamon/config"
	citerr "github.com/citamon/citamon/internal/citamon/errors"
	"github.com/citamon/citamon/internal/citamon/runstate"
	"github.com/citamon/citamon/internal/log"
)

// DefaultStartWait is how long 'start' waits for the child to claim the marker.
const DefaultStartWait = 10 * time.Second

// DefaultStopGrace is how long 'stop' waits after SIGTERM before SIGKILL.
const DefaultStopGrace = 15 * time.Second

// Context returns the go-daemon context for the background monitor. The
// child's stdout and stderr are appended to the log file.
func Context(paths config.Paths) *godaemon.Context {
	return &godaemon.Context{
		LogFileName: paths.LogFile,
		LogFilePerm: 0640,
		WorkDir:     "./",
		Umask:       027,
	}
}

// IsChild reports whether this process is the detached monitor.
func IsChild() bool {
	return godaemon.WasReborn()
}

// Start forks the background monitor with the current command line and waits
// until it has claimed the run-state marker. It returns the child's pid.
func Start(paths config.Paths, wait time.Duration) (int, error) {
	if err := EnsureDirectoriesExist(paths.StateFile, paths.LogFile, paths.HistoryDB); err != nil {
		return 0, err
	}

	child, err := Context(paths).Reborn()
	if err != nil {
		return 0, fmt.Errorf("failed to fork monitor: %w", err)
	}
	if child == nil {
		return 0, fmt.Errorf("unexpected daemon state")
	}

	return child.Pid, waitForClaim(runstate.NewStore(paths.StateFile), child, wait)
}

// Detach finishes the daemon setup inside the child. The returned release
// function must run before the process exits.
func Detach(paths config.Paths) (func(), error) {
	ctx := Context(paths)
	if _, err := ctx.Reborn(); err != nil {
		return nil, fmt.Errorf("failed to detach monitor: %w", err)
	}
	return func() { _ = ctx.Release() }, nil
}

func waitForClaim(store *runstate.Store, child *os.Process, wait time.Duration) error {
	exited := make(chan *os.ProcessState, 1)
	go func() {
		state, err := child.Wait()
		if err != nil {
			state = nil
		}
		exited <- state
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		if st, err := store.Read(); err == nil && st.PID == child.Pid {
			return nil
		}
		select {
		case state := <-exited:
			return childExitError(state)
		case <-deadline.C:
			log.Warn("Monitor (PID %d) has not reported in after %v, check the log", child.Pid, wait)
			return nil
		case <-ticker.C:
		}
	}
}

// childExitError translates the exit status of a child that quit during
// startup back into the error that made it quit.
func childExitError(state *os.ProcessState) error {
	if state == nil {
		return fmt.Errorf("monitor exited during startup")
	}
	switch state.ExitCode() {
	case citerr.ExitOK:
		return nil
	case citerr.ExitAlreadyRunning:
		return citerr.Wrap(citerr.ErrAlreadyRunning, "monitor exited during startup")
	case citerr.ExitConfig:
		return citerr.Wrap(citerr.ErrMissingConfig, "monitor exited during startup")
	default:
		return fmt.Errorf("monitor exited during startup: %s", state)
	}
}

// sendSignal delivers sig to p.
var sendSignal = func(p *os.Process, sig os.Signal) error {
	return p.Signal(sig)
}

// StopMonitor sends SIGTERM to the recorded monitor, waits up to grace for it
// to release the marker, sends SIGKILL if it is still alive, and removes the
// marker in every case, including when the process cannot be signalled. It
// returns the pid that was stopped.
func StopMonitor(ctx context.Context, store *runstate.Store, grace time.Duration) (pid int, err error) {
	insp := store.Inspect()
	if insp.Err != nil {
		return 0, insp.Err
	}
	if !insp.Running() {
		if insp.Stale && insp.State != nil {
			return 0, citerr.Wrapf(citerr.ErrNotRunning, "removed stale marker of pid %d", insp.State.PID)
		}
		return 0, citerr.Wrap(citerr.ErrNotRunning, "no monitor is running")
	}

	pid = insp.State.PID
	defer func() {
		if rmErr := store.Remove(); rmErr != nil {
			err = errors.Join(err, rmErr)
		}
	}()

	process, err := os.FindProcess(pid)
	if err != nil {
		return pid, fmt.Errorf("failed to find process: %w", err)
	}

	if err := sendSignal(process, syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return pid, fmt.Errorf("failed to send SIGTERM to process %d: %w", pid, err)
	}

	released, waitErr := store.WaitReleased(ctx, grace)
	if waitErr != nil {
		log.Debug("waiting for marker release: %v", waitErr)
	}

	if !released && runstate.ProcessAlive(pid) {
		log.Info("Process still running, sending SIGKILL...")
		if err := sendSignal(process, syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return pid, fmt.Errorf("failed to kill process %d: %w", pid, err)
		}
	}
	return pid, nil
}
