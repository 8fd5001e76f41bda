// Package dircache caches the IDs of folders found or made on a
// hierarchical remote during a sync run
package dircache

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
)

// DirCacher describes an interface for doing the low level directory work
type DirCacher interface {
	// FindLeaf looks for leaf in the folder with ID pathID
	FindLeaf(ctx context.Context, pathID, leaf string) (pathIDOut string, found bool, err error)
	// CreateDir makes leaf in the folder with ID pathID
	CreateDir(ctx context.Context, pathID, leaf string) (newID string, err error)
}

// key identifies a folder by its parent and name
type key struct {
	parentID string
	leaf     string
}

// DirCache caches (parent ID, leaf) to folder ID lookups
type DirCache struct {
	mu    sync.Mutex
	cache map[key]string
	fs    DirCacher // Interface to find and make stuff
}

// New makes a DirCache using f to find and make folders
//
// The cache is safe for concurrent use
func New(f DirCacher) *DirCache {
	dc := &DirCache{fs: f}
	dc.Flush()
	return dc
}

// Flush the cache of all data
func (dc *DirCache) Flush() {
	dc.mu.Lock()
	dc.cache = make(map[key]string)
	dc.mu.Unlock()
}

// Len returns the number of cached folders
func (dc *DirCache) Len() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return len(dc.cache)
}

// FindOrCreate returns the ID of leaf in parentID.
//
// The cache is checked first, then the remote is searched and, if
// create is set and the folder isn't there, it is made. created
// reports whether a new folder was made.
//
// The lock is held for the whole lookup so two callers can't both
// create the same folder.
func (dc *DirCache) FindOrCreate(ctx context.Context, parentID, leaf string, create bool) (id string, created bool, err error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if id, ok := dc.cache[key{parentID, leaf}]; ok {
		return id, false, nil
	}
	id, found, err := dc.fs.FindLeaf(ctx, parentID, leaf)
	if err != nil {
		return "", false, errors.Wrapf(err, "couldn't find folder %q", leaf)
	}
	if !found {
		if !create {
			return "", false, fs.ErrorDirNotFound
		}
		id, err = dc.fs.CreateDir(ctx, parentID, leaf)
		if err != nil {
			return "", false, errors.Wrapf(err, "couldn't create folder %q", leaf)
		}
		created = true
	}
	dc.cache[key{parentID, leaf}] = id
	return id, created, nil
}
