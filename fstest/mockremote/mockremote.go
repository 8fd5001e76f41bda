// Package mockremote provides an in memory fs.Remote for testing
package mockremote

import (
	"context"
	"io/ioutil"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
)

// Remote is an in memory fs.Remote. Folders and files are keyed by
// their absolute path.
//
// Set the Err fields to make the matching call fail.
type Remote struct {
	mu      sync.Mutex
	folders map[string]bool
	files   map[string][]byte
	calls   []string

	ConnectErr    error
	DisconnectErr error
	UploadErr     error
	SweepErr      error

	// Hook, if set, is called at the start of every call with its name
	Hook func(call string)

	connected   bool
	Connects    int
	Disconnects int
	Uploads     int
}

// New makes an empty Remote
func New() *Remote {
	return &Remote{
		folders: map[string]bool{},
		files:   map[string][]byte{},
	}
}

func (r *Remote) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	hook := r.Hook
	r.mu.Unlock()
	if hook != nil {
		hook(call)
	}
}

// Calls returns the names of the calls made so far
func (r *Remote) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Name of the remote
func (r *Remote) Name() string {
	return "mock"
}

// String returns a description of the remote
func (r *Remote) String() string {
	return "mock remote"
}

// Connect marks the remote connected
func (r *Remote) Connect(ctx context.Context) error {
	r.record("Connect")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Connects++
	if r.ConnectErr != nil {
		return r.ConnectErr
	}
	r.connected = true
	return nil
}

// Disconnect marks the remote disconnected
func (r *Remote) Disconnect(ctx context.Context) error {
	r.record("Disconnect")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Disconnects++
	r.connected = false
	return r.DisconnectErr
}

// Connected returns whether the remote is connected
func (r *Remote) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// ResolveOrCreateFolder makes the folder if needed
func (r *Remote) ResolveOrCreateFolder(ctx context.Context, name string, parent *fs.Folder) (*fs.Folder, error) {
	r.record("ResolveOrCreateFolder")
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return nil, fs.ErrorNotConnected
	}
	dir := parent.Child(name)
	r.folders[dir] = true
	parentID := ""
	if parent != nil {
		parentID = parent.ID
	}
	return &fs.Folder{ID: dir, Name: name, ParentID: parentID, Path: dir}, nil
}

// ResolveOrCreateFile looks up the file
func (r *Remote) ResolveOrCreateFile(ctx context.Context, name string, parent *fs.Folder) (*fs.File, error) {
	r.record("ResolveOrCreateFile")
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return nil, fs.ErrorNotConnected
	}
	file := &fs.File{Name: name, Parent: parent, Size: -1}
	if data, ok := r.files[parent.Child(name)]; ok {
		file.Exists = true
		file.ID = parent.Child(name)
		file.Size = int64(len(data))
	}
	return file, nil
}

// Upload copies the local file in
func (r *Remote) Upload(ctx context.Context, file *fs.File, localPath string) error {
	r.record("Upload")
	data, err := ioutil.ReadFile(localPath)
	if err != nil {
		return fs.TransferError(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return fs.ErrorNotConnected
	}
	r.Uploads++
	if r.UploadErr != nil {
		return fs.TransferError(r.UploadErr)
	}
	p := file.Parent.Child(file.Name)
	r.files[p] = data
	file.ID = p
	file.Size = int64(len(data))
	file.Exists = true
	return nil
}

// Sweep deletes the children of scope not in names
func (r *Remote) Sweep(ctx context.Context, scope *fs.Folder, names fs.NameSet) (deleted []string, err error) {
	r.record("Sweep")
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return nil, fs.ErrorNotConnected
	}
	if scope == nil || scope.ID == "" {
		return nil, fs.ErrorUnresolvedScope
	}
	if r.SweepErr != nil {
		return nil, fs.TransferError(r.SweepErr)
	}
	for _, name := range r.children(scope.Path) {
		if names.Has(name) {
			continue
		}
		p := path.Join(scope.Path, name)
		if fs.Config.DryRun {
			deleted = append(deleted, name)
			continue
		}
		delete(r.files, p)
		for dir := range r.folders {
			if dir == p || strings.HasPrefix(dir, p+"/") {
				delete(r.folders, dir)
			}
		}
		for f := range r.files {
			if strings.HasPrefix(f, p+"/") {
				delete(r.files, f)
			}
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// children returns the sorted names directly inside dir, call with
// the lock held
func (r *Remote) children(dir string) (names []string) {
	for p := range r.files {
		if path.Dir(p) == dir {
			names = append(names, path.Base(p))
		}
	}
	for p := range r.folders {
		if path.Dir(p) == dir && p != dir {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)
	return names
}

// Children returns the sorted names directly inside dir
func (r *Remote) Children(dir string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.children(dir)
}

// Put stores a file directly, making its folders
func (r *Remote) Put(p string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p = path.Clean("/" + p)
	for dir := path.Dir(p); dir != "/"; dir = path.Dir(dir) {
		r.folders[dir] = true
	}
	r.files[p] = data
}

// Get returns the content of a file
func (r *Remote) Get(p string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[path.Clean("/"+p)]
	if !ok {
		return nil, errors.Errorf("%q not found", p)
	}
	return data, nil
}

// Check the interfaces are satisfied
var _ fs.Remote = (*Remote)(nil)
