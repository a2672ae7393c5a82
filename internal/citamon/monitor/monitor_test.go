package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/citamon/citamon/internal/citamon/checker"
	"github.com/citamon/citamon/internal/citamon/config"
	citerr "github.com/citamon/citamon/internal/citamon/errors"
	"github.com/citamon/citamon/internal/citamon/notify"
	"github.com/citamon/citamon/internal/citamon/runstate"
	"github.com/citamon/citamon/internal/log"
)

const deadPID = 1<<22 + 1000

type scriptedChecker struct {
	mu       sync.Mutex
	outcomes []checker.Outcome
	calls    int
	onCall   func(n int)
}

func (c *scriptedChecker) Check(_ context.Context, _ checker.Query) checker.Result {
	c.mu.Lock()
	c.calls++
	n := c.calls
	out := checker.NotFound
	if n <= len(c.outcomes) {
		out = c.outcomes[n-1]
	}
	hook := c.onCall
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	res := checker.Result{Outcome: out, Duration: time.Second}
	switch out {
	case checker.Found:
		res.ExitCode = checker.ExitFound
	case checker.NotFound:
		res.ExitCode = checker.ExitNotFound
	default:
		res.ExitCode = 2
		res.Err = errors.New("browser crashed")
	}
	return res
}

func (c *scriptedChecker) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
	report notify.Report
}

func (n *recordingNotifier) Notify(_ context.Context, a notify.Alert) notify.Report {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	if n.report.Results == nil {
		return notify.Report{Results: []notify.ChannelResult{{Channel: "email", Required: true}}}
	}
	return n.report
}

func (n *recordingNotifier) count(kind notify.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, a := range n.alerts {
		if a.Kind == kind {
			total++
		}
	}
	return total
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
	hook  func()
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Location = "Barcelona"
	cfg.Office = "CNP Rambla Guipuscoa"
	cfg.Procedure = "POLICIA-TOMA DE HUELLAS"
	cfg.IntervalMinutes = 1
	cfg.Email = config.Email{
		To:           "me@example.com",
		SMTPServer:   "smtp.example.com",
		SMTPPort:     587,
		SMTPUser:     "bot@example.com",
		SMTPPassword: "secret",
	}
	cfg.Paths = config.Paths{
		StateFile:  filepath.Join(dir, "run", "monitor.json"),
		LogFile:    filepath.Join(dir, "run", "monitor.log"),
		HistoryDB:  filepath.Join(dir, "run", "history.db"),
		UrgentFile: filepath.Join(dir, "CITA_AVAILABLE_NOW.txt"),
	}
	return cfg
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	oldNoColor := color.NoColor
	color.NoColor = true
	buf := &bytes.Buffer{}
	log.SetOutput(buf)
	t.Cleanup(func() {
		log.SetOutput(nil)
		color.NoColor = oldNoColor
	})
	return buf
}

func newTestMonitor(t *testing.T, cfg config.Config, chk checker.Checker, n notify.Notifier, sleep func(context.Context, time.Duration) error) (*Monitor, *runstate.Store) {
	t.Helper()
	captureLog(t)
	store := runstate.NewStore(cfg.Paths.StateFile)
	return New(Options{
		Config:   cfg,
		Checker:  chk,
		Notifier: n,
		Store:    store,
		Sleep:    sleep,
	}), store
}

func assertNoMarker(t *testing.T, store *runstate.Store) {
	t.Helper()
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Errorf("run-state marker still present at %s", store.Path())
	}
}

func TestRun_NotifiesExactlyOnce(t *testing.T) {
	cfg := testConfig(t)
	chk := &scriptedChecker{outcomes: []checker.Outcome{checker.NotFound, checker.NotFound, checker.Found, checker.Found}}
	n := &recordingNotifier{}
	sleeper := &recordingSleeper{}
	m, store := newTestMonitor(t, cfg, chk, n, sleeper.Sleep)

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if chk.Calls() != 3 {
		t.Errorf("checker called %d times, want 3", chk.Calls())
	}
	if got := n.count(notify.SlotFound); got != 1 {
		t.Errorf("slot notifications = %d, want 1", got)
	}
	if !res.Found || res.Outcome != checker.Found || res.Checks != 3 || res.Report == nil {
		t.Errorf("Run() result = %+v", res)
	}
	if _, err := os.Stat(cfg.Paths.UrgentFile); err != nil {
		t.Errorf("urgent marker missing: %v", err)
	}
	assertNoMarker(t, store)
}

func TestRun_SleepsConfiguredInterval(t *testing.T) {
	cfg := testConfig(t)
	chk := &scriptedChecker{outcomes: []checker.Outcome{checker.NotFound, checker.Inconclusive, checker.Found}}
	sleeper := &recordingSleeper{}
	m, _ := newTestMonitor(t, cfg, chk, &recordingNotifier{}, sleeper.Sleep)

	if _, err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(sleeper.waits) != 2 {
		t.Fatalf("slept %d times, want 2", len(sleeper.waits))
	}
	for i, d := range sleeper.waits {
		if d != time.Minute {
			t.Errorf("sleep %d = %v, want 1m", i, d)
		}
	}
}

func TestRun_MissingConfigTouchesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Email.SMTPPassword = ""
	chk := &scriptedChecker{}
	m, store := newTestMonitor(t, cfg, chk, &recordingNotifier{}, nil)

	_, err := m.Run(context.Background())
	if !citerr.Is(err, citerr.ErrMissingConfig) {
		t.Fatalf("Run() error = %v, want ErrMissingConfig", err)
	}
	if citerr.ExitCode(err) != citerr.ExitConfig {
		t.Errorf("ExitCode() = %d, want %d", citerr.ExitCode(err), citerr.ExitConfig)
	}
	if !strings.Contains(err.Error(), "smtp-pass") {
		t.Errorf("error %q does not name the flag to set", err)
	}
	if chk.Calls() != 0 {
		t.Error("checker ran with incomplete configuration")
	}
	assertNoMarker(t, store)
}

func TestRun_StopInterruptsSleep(t *testing.T) {
	cfg := testConfig(t)
	cfg.IntervalMinutes = 60
	chk := &scriptedChecker{}
	m, store := newTestMonitor(t, cfg, chk, &recordingNotifier{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	chk.onCall = func(int) {
		time.AfterFunc(100*time.Millisecond, cancel)
	}

	done := make(chan Result, 1)
	go func() {
		res, _ := m.Run(ctx)
		done <- res
	}()

	select {
	case res := <-done:
		if !res.Stopped {
			t.Errorf("Run() result = %+v, want stopped", res)
		}
		if res.Checks != 1 {
			t.Errorf("checks = %d, want 1", res.Checks)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation during a 60 minute sleep")
	}
	assertNoMarker(t, store)
}

func TestRun_DistinctLogMarkers(t *testing.T) {
	cfg := testConfig(t)
	chk := &scriptedChecker{outcomes: []checker.Outcome{checker.NotFound, checker.Inconclusive, checker.Found}}
	m, _ := newTestMonitor(t, cfg, chk, &recordingNotifier{}, (&recordingSleeper{}).Sleep)
	buf := captureLog(t)

	if _, err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for marker, want := range map[string]int{
		"[CHECK]":        3,
		"[NO-SLOT]":      1,
		"[INCONCLUSIVE]": 1,
		"[FOUND]":        1,
	} {
		if got := strings.Count(out, marker); got != want {
			t.Errorf("%s appears %d times, want %d\n%s", marker, got, want, out)
		}
	}
	if !strings.Contains(out, "browser crashed") {
		t.Error("inconclusive reason missing from log")
	}
	if !strings.Contains(out, "[NOTIFY]") {
		t.Error("notification result missing from log")
	}
}

func TestRun_EscalatesOncePerStreak(t *testing.T) {
	cfg := testConfig(t)
	cfg.InconclusiveThreshold = 2
	I, NF := checker.Inconclusive, checker.NotFound
	chk := &scriptedChecker{outcomes: []checker.Outcome{I, I, I, I, NF, I, I, checker.Found}}
	n := &recordingNotifier{}
	m, _ := newTestMonitor(t, cfg, chk, n, (&recordingSleeper{}).Sleep)

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if got := n.count(notify.CheckerBroken); got != 2 {
		t.Errorf("escalations = %d, want 2", got)
	}
	if res.Escalated != 2 {
		t.Errorf("Result.Escalated = %d, want 2", res.Escalated)
	}
	if got := n.count(notify.SlotFound); got != 1 {
		t.Errorf("slot notifications = %d, want 1", got)
	}
	for _, a := range n.alerts {
		if a.Kind == notify.CheckerBroken && (a.Streak != 2 || a.LastError != "browser crashed") {
			t.Errorf("escalation alert = %+v", a)
		}
	}
}

func TestRun_EscalationDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.InconclusiveThreshold = 0
	I := checker.Inconclusive
	chk := &scriptedChecker{outcomes: []checker.Outcome{I, I, I, I, I, checker.Found}}
	n := &recordingNotifier{}
	m, _ := newTestMonitor(t, cfg, chk, n, (&recordingSleeper{}).Sleep)

	if _, err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := n.count(notify.CheckerBroken); got != 0 {
		t.Errorf("escalations = %d with threshold 0", got)
	}
}

func TestRun_RefusesWhenAlreadyRunning(t *testing.T) {
	cfg := testConfig(t)
	chk := &scriptedChecker{}
	store := runstate.NewStore(cfg.Paths.StateFile)
	if err := store.Claim(runstate.RunState{PID: os.Getpid(), Status: runstate.StatusSleeping}); err != nil {
		t.Fatal(err)
	}

	captureLog(t)
	m := New(Options{Config: cfg, Checker: chk, Notifier: &recordingNotifier{}, Store: store, PID: os.Getpid() + 1})
	_, err := m.Run(context.Background())
	if !citerr.Is(err, citerr.ErrAlreadyRunning) {
		t.Fatalf("Run() error = %v, want ErrAlreadyRunning", err)
	}
	if chk.Calls() != 0 {
		t.Error("second instance ran the checker")
	}
	st, err := store.Read()
	if err != nil || st.PID != os.Getpid() {
		t.Errorf("original marker disturbed: %+v, %v", st, err)
	}
}

func TestRun_RecoversStaleMarker(t *testing.T) {
	cfg := testConfig(t)
	store := runstate.NewStore(cfg.Paths.StateFile)
	if err := store.Claim(runstate.RunState{PID: deadPID}); err != nil {
		t.Fatal(err)
	}

	chk := &scriptedChecker{outcomes: []checker.Outcome{checker.Found}}
	m, _ := newTestMonitor(t, cfg, chk, &recordingNotifier{}, (&recordingSleeper{}).Sleep)
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() over stale marker = %v", err)
	}
	if !res.Found {
		t.Errorf("Run() result = %+v", res)
	}
	assertNoMarker(t, store)
}

func TestRun_MarkerTracksProgress(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	chk := &scriptedChecker{outcomes: []checker.Outcome{checker.Inconclusive, checker.Found}}
	store := runstate.NewStore(cfg.Paths.StateFile)

	var seen *runstate.RunState
	sleeper := &recordingSleeper{hook: func() {
		seen, _ = store.Read()
	}}

	captureLog(t)
	m := New(Options{
		Config:   cfg,
		Checker:  chk,
		Notifier: &recordingNotifier{},
		Store:    store,
		Now:      func() time.Time { return now },
		Sleep:    sleeper.Sleep,
	})
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if seen == nil {
		t.Fatal("marker was not readable during sleep")
	}
	if seen.PID != os.Getpid() || seen.Status != runstate.StatusSleeping || seen.Checks != 1 {
		t.Errorf("marker during sleep = %+v", seen)
	}
	if seen.LastOutcome != checker.Inconclusive.String() || seen.InconclusiveStreak != 1 {
		t.Errorf("marker outcome = %q streak = %d", seen.LastOutcome, seen.InconclusiveStreak)
	}
	if !seen.NextCheckAt.Equal(now.Add(time.Minute)) {
		t.Errorf("next_check_at = %v, want %v", seen.NextCheckAt, now.Add(time.Minute))
	}
}

func TestRun_StopsWhenMarkerRemoved(t *testing.T) {
	cfg := testConfig(t)
	chk := &scriptedChecker{}
	store := runstate.NewStore(cfg.Paths.StateFile)
	sleeper := &recordingSleeper{hook: func() { _ = store.Remove() }}

	captureLog(t)
	m := New(Options{Config: cfg, Checker: chk, Notifier: &recordingNotifier{}, Store: store, Sleep: sleeper.Sleep})
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Stopped || chk.Calls() != 1 {
		t.Errorf("Run() result = %+v after %d checks", res, chk.Calls())
	}
	assertNoMarker(t, store)
}

func TestRun_EmailFailureStillFinishes(t *testing.T) {
	cfg := testConfig(t)
	chk := &scriptedChecker{outcomes: []checker.Outcome{checker.Found}}
	n := &recordingNotifier{report: notify.Report{Results: []notify.ChannelResult{
		{Channel: "email", Required: true, Err: errors.New("535 authentication failed")},
		{Channel: "sms"},
	}}}
	m, store := newTestMonitor(t, cfg, chk, n, (&recordingSleeper{}).Sleep)
	buf := captureLog(t)

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found || res.Report.Err() == nil {
		t.Errorf("Run() result = %+v", res)
	}
	if _, err := os.Stat(cfg.Paths.UrgentFile); err != nil {
		t.Errorf("urgent marker missing after email failure: %v", err)
	}
	if !strings.Contains(buf.String(), "535 authentication failed") {
		t.Error("email failure not logged")
	}
	assertNoMarker(t, store)
}

// blockingChecker waits for cancellation and reports it the way ExecChecker
// does.
type blockingChecker struct {
	started chan struct{}
}

func (c *blockingChecker) Check(ctx context.Context, _ checker.Query) checker.Result {
	close(c.started)
	<-ctx.Done()
	return checker.Result{
		Outcome:  checker.Inconclusive,
		ExitCode: -1,
		Err:      fmt.Errorf("checker interrupted: %w", ctx.Err()),
	}
}

func TestRun_StopDuringCheckIsNotInconclusive(t *testing.T) {
	cfg := testConfig(t)
	cfg.InconclusiveThreshold = 1
	chk := &blockingChecker{started: make(chan struct{})}
	n := &recordingNotifier{}
	m, store := newTestMonitor(t, cfg, chk, n, (&recordingSleeper{}).Sleep)
	buf := captureLog(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-chk.started
		cancel()
	}()

	res, err := m.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Stopped || res.Checks != 0 {
		t.Errorf("Run() result = %+v, want stopped with no recorded checks", res)
	}
	out := buf.String()
	for _, marker := range []string{"[INCONCLUSIVE]", "[ESCALATE]", "[NOTIFY]"} {
		if strings.Contains(out, marker) {
			t.Errorf("log contains %s after a stop during the check:\n%s", marker, out)
		}
	}
	if !strings.Contains(out, "[STOP]") {
		t.Errorf("log missing [STOP]:\n%s", out)
	}
	if got := n.count(notify.CheckerBroken); got != 0 {
		t.Errorf("checker-broken alerts = %d, want 0", got)
	}
	assertNoMarker(t, store)
}

type countingChannel struct {
	name  string
	calls atomic.Int32
}

func (c *countingChannel) Name() string   { return c.name }
func (c *countingChannel) Required() bool { return c.name == "email" }
func (c *countingChannel) Send(context.Context, notify.Alert) error {
	c.calls.Add(1)
	return nil
}

func TestRun_ExecCheckerExitCodes(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "count")
	script := filepath.Join(dir, "check.sh")
	body := fmt.Sprintf(`n=$(cat '%[1]s' 2>/dev/null || echo 0)
n=$((n + 1))
echo "$n" > '%[1]s'
[ "$n" -ge 3 ] && exit 0
exit 1
`, counter)
	if err := os.WriteFile(script, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	email := &countingChannel{name: "email"}
	discord := &countingChannel{name: "discord"}
	chk := checker.NewExecChecker(fmt.Sprintf("sh '%s'", script), 10*time.Second)
	sleeper := &recordingSleeper{}
	m, store := newTestMonitor(t, cfg, chk, notify.New(email, discord), sleeper.Sleep)

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found || res.Checks != 3 {
		t.Errorf("Run() result = %+v, want found after 3 checks", res)
	}
	if res.Report == nil || res.Report.Err() != nil {
		t.Errorf("report = %+v, want all channels delivered", res.Report)
	}
	if email.calls.Load() != 1 || discord.calls.Load() != 1 {
		t.Errorf("channel sends email=%d discord=%d, want 1 each", email.calls.Load(), discord.calls.Load())
	}
	if len(sleeper.waits) != 2 {
		t.Errorf("slept %d times, want 2", len(sleeper.waits))
	}
	if _, err := os.Stat(cfg.Paths.UrgentFile); err != nil {
		t.Errorf("urgent marker missing: %v", err)
	}
	assertNoMarker(t, store)
}
