// Package notify shows desktop notifications for session lifecycle
// changes. Notification failures are ignored; they are never worth
// interrupting dictation for.
package notify

import (
	"github.com/gen2brain/beeep"
)

const appName = "Murmur"

type Notifier struct {
	enabled bool
}

func New(enabled bool) *Notifier {
	return &Notifier{enabled: enabled}
}

// Started announces a new dictation session.
func (n *Notifier) Started(language, model string) {
	label := "listening"
	if language != "" {
		label += " (" + language
		if model != "" {
			label += ", " + model
		}
		label += ")"
	}
	n.notify("", label)
}

// Stopped announces the end of a session.
func (n *Notifier) Stopped() {
	n.notify("", "stopped")
}

// Failed announces a backend failure that needs acknowledging.
func (n *Notifier) Failed(reason string) {
	if len(reason) > 100 {
		reason = reason[:100] + "..."
	}
	n.notify("failed", reason)
}

func (n *Notifier) notify(title, message string) {
	if !n.enabled {
		return
	}
	if title != "" {
		_ = beeep.Notify(appName+": "+title, message, "")
	} else {
		_ = beeep.Notify(appName, message, "")
	}
}
