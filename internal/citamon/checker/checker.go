// Package checker runs the external availability probe and turns its exit
// status into an Outcome. Nothing outside this package looks at raw exit codes.
package checker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	shellquote "github.com/kballard/go-shellquote"
)

// Exit statuses of the probe process.
const (
	ExitFound    = 0
	ExitNotFound = 1
)

// Outcome is the tri-state result of one probe.
type Outcome int

const (
	// Inconclusive means the probe could not decide: network failure, page
	// layout change, timeout or a checker that would not start.
	Inconclusive Outcome = iota
	// NotFound means the booking page was read and showed no slot.
	NotFound
	// Found means a slot is available.
	Found
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "inconclusive"
	}
}

// ParseOutcome is the inverse of Outcome.String. Unknown text is Inconclusive.
func ParseOutcome(s string) Outcome {
	switch s {
	case "found":
		return Found
	case "not_found":
		return NotFound
	default:
		return Inconclusive
	}
}

// FromExitCode maps the probe's exit status to an Outcome.
func FromExitCode(code int) Outcome {
	switch code {
	case ExitFound:
		return Found
	case ExitNotFound:
		return NotFound
	default:
		return Inconclusive
	}
}

// Query selects what the probe looks for.
type Query struct {
	Location  string
	Office    string
	Procedure string
	NoClave   bool
}

// Result is one probe run.
type Result struct {
	Outcome  Outcome
	ExitCode int // -1 when the process did not exit normally
	Duration time.Duration
	Output   string // last lines of combined output
	Err      error  // why the run was inconclusive, if known
}

// Detail is a one-line description suitable for the monitor log.
func (r Result) Detail() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.Outcome == Inconclusive {
		return fmt.Sprintf("checker exited with status %d", r.ExitCode)
	}
	return ""
}

// Checker performs one availability probe.
type Checker interface {
	Check(ctx context.Context, q Query) Result
}

// outputTailLines is how much of the probe's output a Result keeps.
const outputTailLines = 5

// ExecChecker runs an external command as the probe.
type ExecChecker struct {
	Command string // split with shell quoting rules, e.g. "python3 /opt/cita/check-cita.py"
	Dir     string
	Timeout time.Duration
}

// NewExecChecker creates a checker for command with a per-probe timeout.
func NewExecChecker(command string, timeout time.Duration) *ExecChecker {
	return &ExecChecker{Command: command, Timeout: timeout}
}

// Args builds the probe's argument list for q.
func (c *ExecChecker) Args(q Query) ([]string, error) {
	words, err := shellquote.Split(c.Command)
	if err != nil {
		return nil, fmt.Errorf("invalid checker command %q: %w", c.Command, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("checker command is empty")
	}
	args := append(words, "-p", q.Location, "-o", q.Office, "-t", q.Procedure)
	if q.NoClave {
		args = append(args, "--no-clave")
	}
	return args, nil
}

// Check runs the probe once. It never returns an error: every failure to get
// a clear answer is an Inconclusive result carrying the reason.
func (c *ExecChecker) Check(ctx context.Context, q Query) Result {
	start := time.Now()
	res := Result{Outcome: Inconclusive, ExitCode: -1}

	args, err := c.Args(q)
	if err != nil {
		res.Err = err
		return res
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	//nolint:gosec // G204: running the configured probe is the purpose of this function
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = c.Dir
	// The probe drives a browser; kill the whole group so no driver survives a timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	res.Duration = time.Since(start)
	res.Output = tail(out.String(), outputTailLines)

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.Err = fmt.Errorf("checker timed out after %v", c.Timeout)
		} else {
			res.Err = fmt.Errorf("checker interrupted: %w", ctx.Err())
		}
	case runErr == nil:
		res.ExitCode = 0
		res.Outcome = Found
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		res.Outcome = FromExitCode(res.ExitCode)
	default:
		res.Err = fmt.Errorf("failed to run checker: %w", runErr)
	}
	return res
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
