package sync

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
	"github.com/safearchive/safearchive/fstest/mockremote"
	"github.com/safearchive/safearchive/lib/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	titles []string
}

func (r *recordSink) Alert(title, message string) error {
	r.titles = append(r.titles, title)
	return nil
}

// makeSource makes a folder called name holding files
func makeSource(t *testing.T, name string, files map[string]string) string {
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.Mkdir(dir, 0700))
	for leaf, content := range files {
		require.NoError(t, ioutil.WriteFile(filepath.Join(dir, leaf), []byte(content), 0600))
	}
	return dir
}

func newTestEngine(remote fs.Remote, sink *recordSink) *Engine {
	return New(remote, Notifier(notify.New(sink), true))
}

func TestRunCreatesNewFile(t *testing.T) {
	ctx := context.Background()
	remote := mockremote.New()
	src := makeSource(t, "Documents", map[string]string{"x.txt": "hello"})

	stats, err := newTestEngine(remote, &recordSink{}).Run(ctx, []string{src})
	require.NoError(t, err)
	assert.Equal(t, &Stats{Folders: 1, Created: 1, Bytes: 5}, stats)
	assert.Equal(t, []string{"x.txt"}, remote.Children("/SafeArchive/Documents"))
	data, err := remote.Get("/SafeArchive/Documents/x.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.False(t, remote.Connected())
}

func TestRunRemovesOrphans(t *testing.T) {
	ctx := context.Background()
	remote := mockremote.New()
	remote.Put("/SafeArchive/Documents/a", []byte("old a"))
	remote.Put("/SafeArchive/Documents/b", []byte("old b"))
	remote.Put("/SafeArchive/Documents/c", []byte("old c"))
	src := makeSource(t, "Documents", map[string]string{"a": "new a", "c": "new c"})

	stats, err := newTestEngine(remote, &recordSink{}).Run(ctx, []string{src})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Updated)
	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, []string{"a", "c"}, remote.Children("/SafeArchive/Documents"))
	data, err := remote.Get("/SafeArchive/Documents/a")
	require.NoError(t, err)
	assert.Equal(t, "new a", string(data))
}

func TestRunIdempotent(t *testing.T) {
	ctx := context.Background()
	remote := mockremote.New()
	src := makeSource(t, "Documents", map[string]string{"a": "1", "b": "22"})
	e := newTestEngine(remote, &recordSink{})

	_, err := e.Run(ctx, []string{src})
	require.NoError(t, err)
	first := remote.Children("/SafeArchive/Documents")

	stats, err := e.Run(ctx, []string{src})
	require.NoError(t, err)
	assert.Equal(t, first, remote.Children("/SafeArchive/Documents"))
	assert.Equal(t, &Stats{Folders: 1, Updated: 2, Bytes: 3}, stats)
	assert.Equal(t, []string{"Documents"}, remote.Children("/SafeArchive"))
}

func TestRunConverges(t *testing.T) {
	ctx := context.Background()
	for _, test := range []struct {
		remote []string
		local  []string
	}{
		{nil, nil},
		{nil, []string{"a"}},
		{[]string{"a", "b"}, nil},
		{[]string{"a", "b", "c"}, []string{"b", "d"}},
		{[]string{"x"}, []string{"x"}},
	} {
		remote := mockremote.New()
		for _, name := range test.remote {
			remote.Put("/SafeArchive/src/"+name, []byte("remote"))
		}
		files := map[string]string{}
		for _, name := range test.local {
			files[name] = "local " + name
		}
		src := makeSource(t, "src", files)

		_, err := newTestEngine(remote, &recordSink{}).Run(ctx, []string{src})
		require.NoError(t, err)
		assert.Equal(t, test.local, remote.Children("/SafeArchive/src"))
		for _, name := range test.local {
			data, err := remote.Get("/SafeArchive/src/" + name)
			require.NoError(t, err)
			assert.Equal(t, "local "+name, string(data))
		}
	}
}

func TestRunSweepScopedToFolder(t *testing.T) {
	ctx := context.Background()
	remote := mockremote.New()
	remote.Put("/SafeArchive/Pictures/cat.jpg", []byte("meow"))
	remote.Put("/SafeArchive/stray", []byte("x"))
	remote.Put("/elsewhere/keep", []byte("x"))
	docs := makeSource(t, "Documents", map[string]string{"a": "1"})

	_, err := newTestEngine(remote, &recordSink{}).Run(ctx, []string{docs})
	require.NoError(t, err)
	assert.Equal(t, []string{"cat.jpg"}, remote.Children("/SafeArchive/Pictures"))
	assert.Equal(t, []string{"keep"}, remote.Children("/elsewhere"))
	assert.Equal(t, []string{"Documents", "Pictures", "stray"}, remote.Children("/SafeArchive"))
}

func TestRunMultipleSources(t *testing.T) {
	ctx := context.Background()
	remote := mockremote.New()
	docs := makeSource(t, "Documents", map[string]string{"a": "1"})
	pics := makeSource(t, "Pictures", map[string]string{"b": "2", "c": "3"})

	stats, err := newTestEngine(remote, &recordSink{}).Run(ctx, []string{docs, pics + "/"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Folders)
	assert.Equal(t, 3, stats.Created)
	assert.Equal(t, []string{"a"}, remote.Children("/SafeArchive/Documents"))
	assert.Equal(t, []string{"b", "c"}, remote.Children("/SafeArchive/Pictures"))
}

func TestRunDuplicateSourceNames(t *testing.T) {
	ctx := context.Background()
	remote := mockremote.New()
	remote.Put("/SafeArchive/Documents/keep.txt", []byte("keep"))
	work := makeSource(t, "Documents", map[string]string{"report.txt": "report"})
	home := makeSource(t, "Documents", map[string]string{"photo.jpg": "photo"})

	_, err := newTestEngine(remote, &recordSink{}).Run(ctx, []string{work, home})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrorDuplicateSource))
	assert.Empty(t, remote.Calls())
	assert.Equal(t, []string{"keep.txt"}, remote.Children("/SafeArchive/Documents"))
}

func TestRunArchiveFolder(t *testing.T) {
	remote := mockremote.New()
	src := makeSource(t, "Documents", map[string]string{"a": "1"})
	e := New(remote, ArchiveFolder("Backups"), Notifier(notify.New(&recordSink{}), false))
	_, err := e.Run(context.Background(), []string{src})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, remote.Children("/Backups/Documents"))
}

func TestRunDryRun(t *testing.T) {
	ctx := context.Background()
	remote := mockremote.New()
	remote.Put("/SafeArchive/Documents/old", []byte("old"))
	src := makeSource(t, "Documents", map[string]string{"new": "new"})

	fs.Config.DryRun = true
	defer func() { fs.Config.DryRun = false }()
	stats, err := newTestEngine(remote, &recordSink{}).Run(ctx, []string{src})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 0, remote.Uploads)
	assert.Equal(t, []string{"old"}, remote.Children("/SafeArchive/Documents"))
}

func TestRunStates(t *testing.T) {
	remote := mockremote.New()
	src := makeSource(t, "Documents", map[string]string{"a": "1"})
	e := newTestEngine(remote, &recordSink{})
	seen := map[string]State{}
	remote.Hook = func(call string) {
		seen[call] = e.State()
	}
	_, err := e.Run(context.Background(), []string{src})
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, seen["Connect"])
	assert.Equal(t, StateUploading, seen["Upload"])
	assert.Equal(t, StateUploading, seen["Sweep"])
	assert.Equal(t, StateSwept, seen["Disconnect"])
	assert.Equal(t, StateDisconnected, e.State())
	assert.Equal(t, "FolderResolved", StateFolderResolved.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestRunInProgress(t *testing.T) {
	remote := mockremote.New()
	src := makeSource(t, "Documents", map[string]string{"a": "1"})
	e := newTestEngine(remote, &recordSink{})
	var nestedErr error
	remote.Hook = func(call string) {
		if call == "Upload" {
			_, nestedErr = e.Run(context.Background(), []string{src})
		}
	}
	_, err := e.Run(context.Background(), []string{src})
	require.NoError(t, err)
	assert.Equal(t, fs.ErrorRunInProgress, nestedErr)
	assert.Equal(t, 1, remote.Connects)

	// free again afterwards
	remote.Hook = nil
	_, err = e.Run(context.Background(), []string{src})
	assert.NoError(t, err)
}

func TestRunAuthFailureNotifies(t *testing.T) {
	remote := mockremote.New()
	remote.ConnectErr = fs.AuthenticationError(errors.New("530 Login incorrect"))
	sink := &recordSink{}
	_, err := newTestEngine(remote, sink).Run(context.Background(), nil)
	assert.True(t, errors.Is(err, fs.ErrorAuthentication))
	assert.Equal(t, []string{"Authentication failed"}, sink.titles)
	assert.Equal(t, 1, remote.Disconnects)

	remote.ConnectErr = fs.Categorize(fs.ErrorMissingCredentialsConfig, errors.New("no client_secrets.json"))
	sink.titles = nil
	_, err = New(remote, Notifier(notify.New(sink), false)).Run(context.Background(), nil)
	assert.True(t, errors.Is(err, fs.ErrorMissingCredentialsConfig))
	assert.Empty(t, sink.titles)
}

func TestRunTransferErrorDisconnects(t *testing.T) {
	remote := mockremote.New()
	remote.UploadErr = errors.New("552 quota exceeded")
	remote.DisconnectErr = errors.New("quit failed")
	src := makeSource(t, "Documents", map[string]string{"a": "1"})
	sink := &recordSink{}

	_, err := newTestEngine(remote, sink).Run(context.Background(), []string{src})
	require.Error(t, err)
	// the run error wins over the disconnect error
	assert.True(t, errors.Is(err, fs.ErrorTransfer))
	assert.Equal(t, 1, remote.Disconnects)
	assert.Empty(t, sink.titles)
	assert.NotContains(t, remote.Calls(), "Sweep")
}

func TestRunDisconnectError(t *testing.T) {
	remote := mockremote.New()
	remote.DisconnectErr = errors.New("quit failed")
	_, err := newTestEngine(remote, &recordSink{}).Run(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "quit failed", err.Error())
}

func TestRunMissingSource(t *testing.T) {
	remote := mockremote.New()
	_, err := newTestEngine(remote, &recordSink{}).Run(context.Background(), []string{filepath.Join(t.TempDir(), "gone")})
	require.Error(t, err)
	assert.Equal(t, 1, remote.Disconnects)
	assert.Equal(t, []string{"Connect", "ResolveOrCreateFolder", "Disconnect"}, remote.Calls())
}

func TestRunCancelled(t *testing.T) {
	remote := mockremote.New()
	src := makeSource(t, "Documents", map[string]string{"a": "1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestEngine(remote, &recordSink{}).Run(ctx, []string{src})
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 0, remote.Uploads)
	assert.Equal(t, 1, remote.Disconnects)
}
