package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/citamon/citamon/internal/citamon/config"
	citerr "github.com/citamon/citamon/internal/citamon/errors"
	"github.com/citamon/citamon/internal/citamon/runstate"
	"github.com/citamon/citamon/internal/log"
)

// Status is what 'citamon status' reports.
type Status struct {
	Running    bool               `json:"running"`
	Status     string             `json:"status"`
	Message    string             `json:"message"`
	StateFile  string             `json:"state_file"`
	LogFile    string             `json:"log_file"`
	UrgentFile string             `json:"urgent_file,omitempty"`
	State      *runstate.RunState `json:"state,omitempty"`
	RecentLog  []string           `json:"recent_log,omitempty"`
}

// GetStatus inspects the marker without modifying it.
func GetStatus(paths config.Paths, tailLines int) Status {
	st := Status{
		StateFile: paths.StateFile,
		LogFile:   paths.LogFile,
	}

	insp := runstate.NewStore(paths.StateFile).Peek()
	switch {
	case insp.Err != nil:
		st.Status = "error"
		st.Message = insp.Err.Error()
	case insp.Running():
		st.Running = true
		st.Status = "running"
		st.State = insp.State
		st.Message = "Monitor is running"
	case insp.Stale && insp.State != nil:
		st.Status = "dead"
		st.State = insp.State
		st.Message = fmt.Sprintf("Process %d is not running (stale marker)", insp.State.PID)
	case insp.Stale:
		st.Status = "dead"
		st.Message = "Marker is unreadable"
	default:
		st.Status = "stopped"
		st.Message = "No monitor is running"
	}

	if _, err := os.Stat(paths.UrgentFile); err == nil {
		st.UrgentFile = paths.UrgentFile
	}

	if lines, err := ReadTail(paths.LogFile, tailLines); err == nil {
		st.RecentLog = lines
	}
	return st
}

// ShowStatus prints the monitor status. It returns an ErrNotRunning error
// when no live monitor owns the marker.
func ShowStatus(w io.Writer, paths config.Paths, tailLines int, jsonOutput bool) error {
	st := GetStatus(paths, tailLines)

	if jsonOutput {
		if err := WriteJSON(w, st); err != nil {
			return err
		}
	} else {
		printStatus(st)
	}

	if !st.Running {
		return citerr.Wrap(citerr.ErrNotRunning, st.Message)
	}
	return nil
}

func printStatus(st Status) {
	log.Info("Cita Monitor Status")
	log.Info("==========================================")

	switch st.Status {
	case "running":
		s := st.State
		log.Info("Status: RUNNING (%s)", s.Status)
		log.InfoH2("Process ID: %d", s.PID)
		log.InfoH2("Started: %s", s.StartedAt.Local().Format(log.TimeLayout))
		log.InfoH2("Watching: %s / %s / %s every %d min", s.Location, s.Office, s.Procedure, s.IntervalMinutes)
		log.InfoH2("Checks: %d", s.Checks)
		if !s.LastCheckAt.IsZero() {
			log.InfoH2("Last check: %s (%s)", s.LastCheckAt.Local().Format(log.TimeLayout), s.LastOutcome)
		} else {
			log.InfoH2("Last check: none yet")
		}
		if s.InconclusiveStreak > 0 {
			log.Warn("Inconclusive streak: %d", s.InconclusiveStreak)
		}
		if !s.NextCheckAt.IsZero() {
			log.InfoH2("Next check: %s (in %v)", s.NextCheckAt.Local().Format("15:04:05"), time.Until(s.NextCheckAt).Round(time.Second))
		}
	case "dead":
		log.Info("Status: NOT RUNNING (stale marker)")
		log.InfoH2("%s", st.Message)
		log.InfoH2("It will be cleaned up by 'citamon start' or 'citamon stop'")
	case "stopped":
		log.Info("Status: NOT RUNNING")
		log.InfoH2("Start it with 'citamon start'")
	default:
		log.Error("Status: ERROR")
		log.ErrorH2("%s", st.Message)
	}

	log.InfoH2("State file: %s", st.StateFile)
	log.InfoH2("Log file: %s", st.LogFile)

	if st.UrgentFile != "" {
		log.Info("")
		log.Warn("A slot was found: see %s", st.UrgentFile)
	}

	if len(st.RecentLog) > 0 {
		log.Info("")
		log.Info("Recent activity (last %d lines):", len(st.RecentLog))
		for _, line := range st.RecentLog {
			log.InfoH3("%s", line)
		}
	}
}

// WriteJSON writes st as indented JSON.
func WriteJSON(w io.Writer, st Status) error {
	jsonData, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status to JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(jsonData))
	return err
}
