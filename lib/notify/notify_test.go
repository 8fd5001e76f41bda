package notify

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
	"github.com/stretchr/testify/assert"
)

type recordSink struct {
	titles []string
	err    error
}

func (r *recordSink) Alert(title, message string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func TestNotify(t *testing.T) {
	sink := &recordSink{}
	n := New(sink)

	n.Notify(false, AuthenticationFailed)
	assert.Empty(t, sink.titles)

	n.Notify(true, AuthenticationFailed)
	n.Notify(true, DestinationUnreachable)
	assert.Equal(t, []string{"Authentication failed", "Backup drive not found"}, sink.titles)

	// a failing sink doesn't panic
	sink.err = errors.New("no display")
	n.Notify(true, MissingCredentials)
	assert.Len(t, sink.titles, 3)
}

func TestEventFor(t *testing.T) {
	for _, test := range []struct {
		err  error
		want Event
		ok   bool
	}{
		{nil, 0, false},
		{errors.New("boom"), 0, false},
		{fs.TransferError(errors.New("boom")), 0, false},
		{fs.Categorize(fs.ErrorMissingCredentialsConfig, errors.New("no file")), MissingCredentials, true},
		{fs.AuthenticationError(errors.New("530")), AuthenticationFailed, true},
		{errors.Wrap(fs.ErrorDestinationUnreachable, "/media/usb"), DestinationUnreachable, true},
	} {
		got, ok := EventFor(test.err)
		assert.Equal(t, test.ok, ok, test.err)
		assert.Equal(t, test.want, got, test.err)
	}
}

func TestNotifyError(t *testing.T) {
	sink := &recordSink{}
	n := New(sink)
	n.NotifyError(true, fs.ConnectivityError(errors.New("timeout")))
	assert.Empty(t, sink.titles)
	n.NotifyError(true, fs.AuthenticationError(errors.New("530")))
	assert.Equal(t, []string{"Authentication failed"}, sink.titles)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "Client secrets file missing", MissingCredentials.String())
	assert.Equal(t, "Event(42)", Event(42).String())
	assert.Equal(t, "", Event(42).Message())
	assert.NotEmpty(t, DestinationUnreachable.Message())
}
