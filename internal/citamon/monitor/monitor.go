// Package monitor runs the polling loop: probe, sleep, probe again, until a
// slot is found or the run is stopped.
package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/citamon/citamon/internal/citamon/checker"
	"github.com/citamon/citamon/internal/citamon/config"
	citerr "github.com/citamon/citamon/internal/citamon/errors"
	"github.com/citamon/citamon/internal/citamon/history"
	"github.com/citamon/citamon/internal/citamon/notify"
	"github.com/citamon/citamon/internal/citamon/runstate"
	"github.com/citamon/citamon/internal/log"
)

// Options wires a Monitor. Checker, Notifier and Store are required.
type Options struct {
	Config   config.Config
	Checker  checker.Checker
	Notifier notify.Notifier
	Store    *runstate.Store
	History  *history.DB // optional

	// PID recorded in the marker, defaults to os.Getpid().
	PID int
	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result summarizes a finished run.
type Result struct {
	Outcome   checker.Outcome // last probe outcome
	Checks    int
	Found     bool
	Stopped   bool
	Report    *notify.Report // slot notification, nil unless Found
	Escalated int
}

// Monitor is one polling run. It is not reusable.
type Monitor struct {
	opts  Options
	state runstate.RunState

	escalated bool
	result    Result
}

// New creates a monitor from opts.
func New(opts Options) *Monitor {
	if opts.PID == 0 {
		opts.PID = os.Getpid()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	return &Monitor{opts: opts}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run claims the run-state marker and polls until a slot is found, ctx is
// cancelled, or the marker is removed by 'citamon stop'. The marker is
// released on every return path.
func (m *Monitor) Run(ctx context.Context) (Result, error) {
	cfg := m.opts.Config
	if err := cfg.Validate(); err != nil {
		return m.result, err
	}

	m.state = runstate.RunState{
		PID:             m.opts.PID,
		StartedAt:       m.opts.Now(),
		Status:          runstate.StatusIdle,
		Location:        cfg.Location,
		Office:          cfg.Office,
		Procedure:       cfg.Procedure,
		IntervalMinutes: cfg.IntervalMinutes,
	}
	if err := m.opts.Store.Claim(m.state); err != nil {
		return m.result, err
	}
	defer func() {
		if err := m.opts.Store.Release(m.opts.PID); err != nil {
			log.Error("Failed to remove run-state marker: %v", err)
		}
	}()

	log.Info("Monitoring %s / %s / %s every %v", cfg.Location, cfg.Office, cfg.Procedure, cfg.Interval())

	for {
		if ctx.Err() != nil {
			return m.stop("stop requested")
		}

		res, reason := m.check(ctx)
		if reason != "" {
			return m.stop(reason)
		}

		switch res.Outcome {
		case checker.Found:
			m.found(ctx)
			return m.result, nil
		case checker.NotFound:
			log.InfoH2("[NO-SLOT] No appointments available (%v)", res.Duration.Round(time.Second))
			m.state.InconclusiveStreak = 0
			m.escalated = false
		default:
			m.state.InconclusiveStreak++
			log.Warn("[INCONCLUSIVE] Probe inconclusive: %s (streak %d)", res.Detail(), m.state.InconclusiveStreak)
			m.maybeEscalate(ctx, res)
		}

		next := m.opts.Now().Add(cfg.Interval())
		m.state.Status = runstate.StatusSleeping
		m.state.NextCheckAt = next
		if m.save() {
			return m.stop("run-state marker removed")
		}
		log.InfoH2("Next check at %s", next.Format("15:04:05"))

		if err := m.opts.Sleep(ctx, cfg.Interval()); err != nil {
			return m.stop("stop requested")
		}
	}
}

// check runs one probe and records it. A non-empty reason means the loop
// must stop; a probe cut short by a stop is not recorded.
func (m *Monitor) check(ctx context.Context) (checker.Result, string) {
	cfg := m.opts.Config

	m.state.Status = runstate.StatusChecking
	m.state.NextCheckAt = time.Time{}
	if m.save() {
		return checker.Result{}, "run-state marker removed"
	}

	log.Info("[CHECK] #%d %s / %s / %s", m.state.Checks+1, cfg.Location, cfg.Office, cfg.Procedure)
	res := m.opts.Checker.Check(ctx, checker.Query{
		Location:  cfg.Location,
		Office:    cfg.Office,
		Procedure: cfg.Procedure,
		NoClave:   cfg.NoClave,
	})
	if ctx.Err() != nil {
		return res, "stop requested during check"
	}
	at := m.opts.Now()

	m.result.Checks++
	m.result.Outcome = res.Outcome
	m.state.Checks++
	m.state.LastCheckAt = at
	m.state.LastOutcome = res.Outcome.String()

	if err := m.opts.History.RecordCheck(at, res); err != nil {
		log.Debug("history: %v", err)
	}
	if res.Output != "" {
		log.Debug("checker output:\n%s", res.Output)
	}
	return res, ""
}

func (m *Monitor) found(ctx context.Context) {
	cfg := m.opts.Config
	at := m.opts.Now()

	log.Info("[FOUND] APPOINTMENT AVAILABLE for %s at %s", cfg.Procedure, at.Format(log.TimeLayout))
	m.state.Status = runstate.StatusNotify
	m.save()

	alert := notify.NewAlert(notify.SlotFound, cfg, at)
	// Delivery must finish even if stop arrives mid-send.
	report := m.opts.Notifier.Notify(context.WithoutCancel(ctx), alert)
	m.result.Found = true
	m.result.Report = &report
	m.logReport(at, notify.SlotFound, report)

	if err := notify.WriteUrgentMarker(cfg.Paths.UrgentFile, alert); err != nil {
		log.Error("Failed to write urgent marker %s: %v", cfg.Paths.UrgentFile, err)
	} else {
		log.InfoH2("Urgent marker written: %s", cfg.Paths.UrgentFile)
	}

	log.Info("Book the appointment now:")
	if cfg.VNCURL != "" {
		log.InfoH2("Open the browser session: %s", cfg.VNCURL)
	}
	if cfg.BookingURL != "" {
		log.InfoH2("Or go straight to: %s", cfg.BookingURL)
	}
	log.InfoH2("Monitoring stopped after %d checks", m.state.Checks)
}

func (m *Monitor) maybeEscalate(ctx context.Context, res checker.Result) {
	threshold := m.opts.Config.InconclusiveThreshold
	if threshold <= 0 || m.escalated || m.state.InconclusiveStreak < threshold {
		return
	}
	m.escalated = true
	m.result.Escalated++

	at := m.opts.Now()
	log.Warn("[ESCALATE] %d inconclusive probes in a row, the checker looks broken", m.state.InconclusiveStreak)

	alert := notify.NewAlert(notify.CheckerBroken, m.opts.Config, at)
	alert.Streak = m.state.InconclusiveStreak
	alert.LastError = res.Detail()
	report := m.opts.Notifier.Notify(context.WithoutCancel(ctx), alert)
	m.logReport(at, notify.CheckerBroken, report)
}

func (m *Monitor) logReport(at time.Time, kind notify.Kind, report notify.Report) {
	for _, r := range report.Results {
		switch {
		case r.Skipped:
			log.InfoH3("[NOTIFY] %s: skipped", r.Channel)
		case r.Err != nil:
			log.ErrorH2("[NOTIFY] %s: failed: %v", r.Channel, r.Err)
		default:
			log.InfoH3("[NOTIFY] %s: sent in %v", r.Channel, r.Duration.Round(time.Millisecond))
		}
	}
	if err := report.Err(); err != nil {
		log.Error("[NOTIFY] %s: %v", report.Summary(), err)
	} else {
		log.InfoH2("[NOTIFY] %s", report.Summary())
	}
	if err := m.opts.History.RecordReport(at, kind, report); err != nil {
		log.Debug("history: %v", err)
	}
}

// save writes the marker and reports whether it was removed from under us.
func (m *Monitor) save() bool {
	err := m.opts.Store.Update(m.state)
	if err == nil {
		return false
	}
	if citerr.Is(err, citerr.ErrNotRunning) {
		return true
	}
	log.Warn("Failed to update run-state marker: %v", err)
	return false
}

func (m *Monitor) stop(reason string) (Result, error) {
	m.result.Stopped = true
	log.Info("[STOP] %s after %d checks", reason, m.state.Checks)
	return m.result, nil
}

// String is used in debug output.
func (r Result) String() string {
	return fmt.Sprintf("outcome=%s checks=%d found=%v stopped=%v", r.Outcome, r.Checks, r.Found, r.Stopped)
}
