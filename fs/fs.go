// Package fs defines the interface between the sync engine and the
// remotes it backs up to
package fs

import (
	"context"
	"io"
	"path"
)

// Constants
const (
	// DefaultArchiveFolder is the top level folder created on every remote
	DefaultArchiveFolder = "SafeArchive"
)

// Folder is a handle to a directory on a remote.
//
// For hierarchical remotes ID and ParentID are the remote's opaque
// identifiers. For flat remotes they are empty and Path holds the
// absolute directory on the server.
type Folder struct {
	ID       string // remote ID, "" for flat remotes
	Name     string // leaf name
	ParentID string // remote ID of the parent, "" for the root or flat remotes
	Path     string // slash separated path from the remote root
}

// String returns a description of the folder for logging
func (f *Folder) String() string {
	if f == nil {
		return "<nil>"
	}
	return f.Path
}

// Child returns the path of leaf inside f
func (f *Folder) Child(leaf string) string {
	if f == nil {
		return path.Join("/", leaf)
	}
	return path.Join(f.Path, leaf)
}

// File is a handle to a file on a remote.
//
// A File with Exists false has been constructed in memory only. It
// becomes true once Upload has succeeded.
type File struct {
	Name   string  // leaf name
	Parent *Folder // folder containing the file
	ID     string  // remote ID, "" for flat remotes or files not uploaded yet
	Size   int64   // size in bytes as last seen on the remote, -1 if unknown
	Exists bool    // whether the file exists on the remote
}

// String returns a description of the file for logging
func (f *File) String() string {
	if f == nil {
		return "<nil>"
	}
	return f.Parent.Child(f.Name)
}

// Remote is the capability every backup destination implements.
//
// A Remote is used by one sync run at a time: calls are made
// sequentially in the order Connect, ResolveOrCreateFolder, then
// ResolveOrCreateFile and Upload for every local file, then Sweep,
// and finally Disconnect.
type Remote interface {
	// Name of the remote as registered
	Name() string

	// String returns a description of the remote
	String() string

	// Connect establishes the session with the remote
	Connect(ctx context.Context) error

	// Disconnect releases the session. It is safe to call on a
	// Remote which was never connected.
	Disconnect(ctx context.Context) error

	// ResolveOrCreateFolder finds the folder called name inside
	// parent, creating it if it doesn't exist. A nil parent means
	// the root of the remote.
	ResolveOrCreateFolder(ctx context.Context, name string, parent *Folder) (*Folder, error)

	// ResolveOrCreateFile finds the file called name in parent. If
	// it doesn't exist a handle with Exists false is returned.
	// Nothing is uploaded.
	ResolveOrCreateFile(ctx context.Context, name string, parent *Folder) (*File, error)

	// Upload replaces the content of file with the local file at
	// localPath unconditionally.
	Upload(ctx context.Context, file *File, localPath string) error

	// Sweep removes every child of scope whose name isn't in
	// names, returning the names removed. It must never touch
	// entries outside scope.
	Sweep(ctx context.Context, scope *Folder, names NameSet) (deleted []string, err error)
}

// Usage describes the storage quota of a remote
type Usage struct {
	Used  int64 // bytes in use
	Total int64 // quota in bytes, 0 if unlimited or unknown
}

// Percent returns the used fraction of the quota as a percentage
func (u *Usage) Percent() float64 {
	if u == nil || u.Total <= 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Total) * 100
}

// Abouter is an optional interface for Remote
type Abouter interface {
	// About returns the quota of the connected remote
	About(ctx context.Context) (*Usage, error)
}

// CheckClose is a utility function used to check the return from
// Close in a defer statement.
func CheckClose(c io.Closer, err *error) {
	cerr := c.Close()
	if *err == nil {
		*err = cerr
	}
}
