package notify

import (
	"fmt"
	"html"
	"strings"
)

const detectedLayout = "2006-01-02 15:04:05"

// Subject returns the email subject line for a.
func Subject(a Alert) string {
	switch a.Kind {
	case SlotFound:
		return "🚨 CITA AVAILABLE NOW! - Act Immediately"
	case CheckerBroken:
		return fmt.Sprintf("⚠️ citamon: checker failing (%d inconclusive probes in a row)", a.Streak)
	default:
		return "citamon: test notification"
	}
}

// ShortText is the SMS / chat body.
func ShortText(a Alert) string {
	switch a.Kind {
	case SlotFound:
		return fmt.Sprintf("🚨 CITA AVAILABLE in %s (%s)! Open %s NOW! Appointments fill in minutes!", a.Location, a.Office, a.VNCURL)
	case CheckerBroken:
		return fmt.Sprintf("citamon: %d probes in a row were inconclusive for %s. Last error: %s", a.Streak, a.Location, a.LastError)
	default:
		return fmt.Sprintf("citamon test notification for %s (%s). Delivery works.", a.Location, a.Office)
	}
}

// SpokenText is read out by the voice call.
func SpokenText(a Alert) string {
	return fmt.Sprintf("Alert! Alert! Your police appointment is now available in %s. "+
		"Open your V N C browser immediately. Appointments fill up within minutes. Act now!", a.Location)
}

// TwiML wraps the spoken text in a Twilio voice response.
func TwiML(a Alert) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Response>`)
	fmt.Fprintf(&b, `<Say voice="alice" language="en-US" loop="3">%s</Say>`, html.EscapeString(SpokenText(a)))
	b.WriteString(`<Pause length="2"/>`)
	fmt.Fprintf(&b, `<Say voice="alice" language="en-US">I repeat: your cita in %s is available. Check your V N C browser immediately.</Say>`,
		html.EscapeString(a.Location))
	b.WriteString(`</Response>`)
	return b.String()
}

// HTMLBody renders the email body for a.
func HTMLBody(a Alert) string {
	esc := html.EscapeString
	detected := a.DetectedAt.Format(detectedLayout)

	switch a.Kind {
	case CheckerBroken:
		return fmt.Sprintf(`
	<html>
	<body style="font-family: Arial, sans-serif; padding: 20px;">
		<h2 style="color: #d32f2f;">The availability checker keeps failing</h2>
		<p>The last <strong>%d</strong> probes for <strong>%s</strong> / %s / %s could not tell whether a slot is available.</p>
		<p>Last error: <code>%s</code></p>
		<p>Monitoring continues, but until the checker is fixed a free slot may go unnoticed.
		Check the monitor log with <code>citamon logs</code>.</p>
		<p style="color: #666; font-size: 13px;">Reported at %s</p>
	</body>
	</html>
	`, a.Streak, esc(a.Location), esc(a.Office), esc(a.Procedure), esc(a.LastError), detected)

	case Test:
		return fmt.Sprintf(`
	<html>
	<body style="font-family: Arial, sans-serif; padding: 20px;">
		<h2>citamon test notification</h2>
		<p>Email delivery works for <strong>%s</strong> / %s / %s.</p>
		<p style="color: #666; font-size: 13px;">Sent at %s</p>
	</body>
	</html>
	`, esc(a.Location), esc(a.Office), esc(a.Procedure), detected)
	}

	return fmt.Sprintf(`
	<html>
	<body style="font-family: Arial, sans-serif; padding: 20px; background-color: #f0f0f0;">
		<div style="background-color: #4CAF50; color: white; padding: 20px; text-align: center;">
			<h1>🎉 CITA AVAILABLE!</h1>
			<h2>Appointment found in %s</h2>
		</div>
		<div style="background-color: white; padding: 20px; margin-top: 20px; border-left: 5px solid #4CAF50;">
			<h2 style="color: #d32f2f;">⚠️ ACTION REQUIRED IMMEDIATELY</h2>
			<p style="font-size: 18px; color: #d32f2f; font-weight: bold;">Appointments fill up within MINUTES. Act NOW!</p>
			<p><strong>Office:</strong> %s<br><strong>Procedure:</strong> %s</p>
			<h3>What to do:</h3>
			<ol style="font-size: 16px; line-height: 1.8;">
				<li><strong>Open the VNC browser:</strong> <a href="%s">%s</a></li>
				<li><strong>Complete the booking</strong> in the browser session</li>
				<li><strong>Select your preferred date, time and location</strong></li>
				<li><strong>Submit immediately</strong></li>
			</ol>
			<div style="background-color: #fff3cd; padding: 15px; margin: 20px 0; border-left: 5px solid #ffc107;">
				<strong>⏰ Time is critical!</strong><br>
				Detected at: <strong>%s</strong>
			</div>
			<h3>Backup link:</h3>
			<p><a href="%s">%s</a></p>
		</div>
		<div style="background-color: #f5f5f5; padding: 15px; margin-top: 20px; text-align: center; color: #666;">
			This is an automated message from your cita monitor.<br>
			Monitoring has stopped automatically.
		</div>
	</body>
	</html>
	`,
		esc(a.Location), esc(a.Office), esc(a.Procedure),
		esc(a.VNCURL), esc(a.VNCURL), detected, esc(a.BookingURL), esc(a.BookingURL),
	)
}
