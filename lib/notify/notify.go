// Package notify raises user visible alerts for failures which need
// the user to do something.
package notify

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
)

// Event is something the user should be told about
type Event int

// Events
const (
	// MissingCredentials means the Google Drive client secrets
	// file couldn't be found
	MissingCredentials Event = iota
	// AuthenticationFailed means the remote rejected the credentials
	AuthenticationFailed
	// DestinationUnreachable means the backup drive has gone,
	// usually because it was unplugged
	DestinationUnreachable
)

var eventText = []struct {
	title   string
	message string
}{
	MissingCredentials: {
		title:   "Client secrets file missing",
		message: "The Google Drive client secrets file couldn't be found. Download it from the Google Cloud console and set client_secrets_file in the settings.",
	},
	AuthenticationFailed: {
		title:   "Authentication failed",
		message: "The storage provider rejected the saved credentials. Check the username and password, or delete the token file to sign in again.",
	},
	DestinationUnreachable: {
		title:   "Backup drive not found",
		message: "The backup destination couldn't be reached. Reconnect the drive and try again.",
	},
}

// String turns an Event into a string
func (e Event) String() string {
	if e < 0 || int(e) >= len(eventText) {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return eventText[e].title
}

// Message returns the text shown to the user for e
func (e Event) Message() string {
	if e < 0 || int(e) >= len(eventText) {
		return ""
	}
	return eventText[e].message
}

// EventFor returns the event to raise for err, if any
func EventFor(err error) (Event, bool) {
	switch {
	case err == nil:
		return 0, false
	case errors.Is(err, fs.ErrorMissingCredentialsConfig):
		return MissingCredentials, true
	case errors.Is(err, fs.ErrorAuthentication):
		return AuthenticationFailed, true
	case errors.Is(err, fs.ErrorDestinationUnreachable):
		return DestinationUnreachable, true
	}
	return 0, false
}

// Sink delivers alerts
type Sink interface {
	Alert(title, message string) error
}

// LogSink writes alerts to the log at NOTICE level so they are
// seen without -v
type LogSink struct{}

// Alert logs the alert
func (LogSink) Alert(title, message string) error {
	fs.Logf(nil, "%s: %s", title, message)
	return nil
}

// Notifier sends Events to a Sink
type Notifier struct {
	mu   sync.Mutex
	sink Sink
}

// New makes a Notifier which sends to sink
func New(sink Sink) *Notifier {
	return &Notifier{sink: sink}
}

// Default is the Notifier used when none is supplied
var Default = New(LogSink{})

// Notify raises ev if enabled is set. Delivery failures are logged
// and otherwise ignored.
func (n *Notifier) Notify(enabled bool, ev Event) {
	if !enabled {
		fs.Debugf(nil, "Notifications disabled, not sending %q", ev)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.sink.Alert(ev.String(), ev.Message()); err != nil {
		fs.Errorf(nil, "Failed to send notification %q: %v", ev, err)
	}
}

// NotifyError raises the event for err, if there is one
func (n *Notifier) NotifyError(enabled bool, err error) {
	if ev, ok := EventFor(err); ok {
		n.Notify(enabled, ev)
	}
}
