// Package sync mirrors local folders onto a remote
package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
	"github.com/safearchive/safearchive/lib/notify"
)

// State is the position of an Engine in a sync run
type State int

// States of a sync run
const (
	StateDisconnected State = iota
	StateConnected
	StateFolderResolved
	StateUploading
	StateSwept
)

var stateToString = []string{
	StateDisconnected:   "Disconnected",
	StateConnected:      "Connected",
	StateFolderResolved: "FolderResolved",
	StateUploading:      "Uploading",
	StateSwept:          "Swept",
}

// String turns a State into a string
func (s State) String() string {
	if s < 0 || int(s) >= len(stateToString) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateToString[s]
}

// Stats counts what a run did
type Stats struct {
	Folders int   // source folders synced
	Created int   // files uploaded which weren't on the remote
	Updated int   // files uploaded over existing ones
	Deleted int   // orphans removed by the sweep
	Bytes   int64 // bytes uploaded
}

// String returns a one line summary
func (s *Stats) String() string {
	return fmt.Sprintf("%d folders, %d created, %d updated, %d deleted, %d bytes",
		s.Folders, s.Created, s.Updated, s.Deleted, s.Bytes)
}

// Option configures an Engine
type Option func(*Engine)

// ArchiveFolder sets the top level folder on the remote
func ArchiveFolder(name string) Option {
	return func(e *Engine) {
		e.archiveFolder = name
	}
}

// Notifier sets where alerts go and whether they are enabled
func Notifier(n *notify.Notifier, enabled bool) Option {
	return func(e *Engine) {
		e.notifier = n
		e.notify = enabled
	}
}

// Engine runs syncs against a single remote, one at a time
type Engine struct {
	remote        fs.Remote
	archiveFolder string
	notifier      *notify.Notifier
	notify        bool

	runMu   sync.Mutex // held while running is changed
	running bool

	stateMu sync.Mutex
	state   State
}

// New makes an Engine for remote
func New(remote fs.Remote, opts ...Option) *Engine {
	e := &Engine{
		remote:        remote,
		archiveFolder: fs.Config.ArchiveFolder,
		notifier:      notify.Default,
		notify:        true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.archiveFolder == "" {
		e.archiveFolder = fs.DefaultArchiveFolder
	}
	return e
}

// State returns where the current run is up to
func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) setState(state State) {
	e.stateMu.Lock()
	old := e.state
	e.state = state
	e.stateMu.Unlock()
	fs.Debugf(e.remote, "%v -> %v", old, state)
}

// start claims the engine for a run
func (e *Engine) start() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return false
	}
	e.running = true
	return true
}

func (e *Engine) finish() {
	e.runMu.Lock()
	e.running = false
	e.runMu.Unlock()
}

// Run mirrors the top level files of each of sources into a folder
// named after the source inside the archive folder on the remote.
//
// The remote is always disconnected before Run returns. A failure
// aborts the rest of the run, leaving anything already uploaded in
// place for the next run to reconcile.
func (e *Engine) Run(ctx context.Context, sources []string) (stats *Stats, err error) {
	if !e.start() {
		return nil, fs.ErrorRunInProgress
	}
	defer e.finish()
	stats = new(Stats)
	if err = fs.CheckSources(sources); err != nil {
		return stats, err
	}

	defer func() {
		if err != nil {
			e.notifier.NotifyError(e.notify, err)
		}
	}()
	defer func() {
		disconnectErr := e.remote.Disconnect(ctx)
		e.setState(StateDisconnected)
		if disconnectErr == nil {
			return
		}
		if err == nil {
			err = disconnectErr
		} else {
			fs.Errorf(e.remote, "Failed to disconnect: %v", disconnectErr)
		}
	}()

	if err = e.remote.Connect(ctx); err != nil {
		return stats, err
	}
	e.setState(StateConnected)

	root, err := e.remote.ResolveOrCreateFolder(ctx, e.archiveFolder, nil)
	if err != nil {
		return stats, errors.Wrapf(err, "couldn't resolve %q", e.archiveFolder)
	}
	for _, source := range sources {
		if err = ctx.Err(); err != nil {
			return stats, err
		}
		if err = e.syncFolder(ctx, root, source, stats); err != nil {
			return stats, err
		}
		stats.Folders++
	}
	fs.Infof(e.remote, "Sync complete: %v", stats)
	return stats, nil
}

// syncFolder mirrors one source folder into root
func (e *Engine) syncFolder(ctx context.Context, root *fs.Folder, source string, stats *Stats) error {
	entries, err := fs.ListLocal(source)
	if err != nil {
		return err
	}
	// the same snapshot drives the uploads and the sweep
	names := fs.NewNameSet(entries)
	name := fs.SourceName(source)

	folder, err := e.remote.ResolveOrCreateFolder(ctx, name, root)
	if err != nil {
		return errors.Wrapf(err, "couldn't resolve %q", name)
	}
	e.setState(StateFolderResolved)

	e.setState(StateUploading)
	for _, entry := range entries {
		if err = ctx.Err(); err != nil {
			return err
		}
		file, err := e.remote.ResolveOrCreateFile(ctx, entry.Name, folder)
		if err != nil {
			return errors.Wrapf(err, "couldn't resolve %q", entry.Name)
		}
		existed := file.Exists
		if fs.Config.DryRun {
			fs.Logf(file, "Not uploading as --dry-run")
		} else {
			if err = e.remote.Upload(ctx, file, entry.Path); err != nil {
				return err
			}
			fs.Infof(file, "Uploaded %d bytes", entry.Size)
		}
		if existed {
			stats.Updated++
		} else {
			stats.Created++
		}
		stats.Bytes += entry.Size
	}

	deleted, err := e.remote.Sweep(ctx, folder, names)
	stats.Deleted += len(deleted)
	if err != nil {
		return err
	}
	e.setState(StateSwept)
	return nil
}
