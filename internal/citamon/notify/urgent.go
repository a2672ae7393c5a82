package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UrgentMarkerText renders the urgent marker file for a found slot.
func UrgentMarkerText(a Alert) string {
	rule := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "🚨 CITA AVAILABLE NOW! 🚨")
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Location:  %s\n", a.Location)
	fmt.Fprintf(&b, "Office:    %s\n", a.Office)
	fmt.Fprintf(&b, "Procedure: %s\n", a.Procedure)
	fmt.Fprintf(&b, "Time:      %s\n", a.DetectedAt.Format(detectedLayout))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "VNC Browser: %s\n", a.VNCURL)
	fmt.Fprintf(&b, "Website:     %s\n", a.BookingURL)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "⚠️  ACT IMMEDIATELY - Appointments fill within minutes!")
	fmt.Fprintln(&b, rule)
	return b.String()
}

// WriteUrgentMarker writes the urgent marker file. It is never removed by the
// monitor; the operator deletes it after booking.
func WriteUrgentMarker(path string, a Alert) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create urgent marker directory: %w", err)
	}
	//nolint:gosec // G306: the marker is meant to be readable by other local users
	if err := os.WriteFile(path, []byte(UrgentMarkerText(a)), 0644); err != nil {
		return fmt.Errorf("failed to write urgent marker: %w", err)
	}
	return nil
}
