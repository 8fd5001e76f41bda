// Registry of remotes

package fs

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs/config/configmap"
)

// Registry of remotes
var Registry []*RegInfo

// RegInfo provides information about a remote
type RegInfo struct {
	// Name of this remote, eg "drive"
	Name string
	// Description of this remote as stored in the settings
	// storage_provider key, eg "Google Drive"
	Description string
	// NewRemote makes a new, not yet connected, Remote
	NewRemote func(name string, m configmap.Getter) (Remote, error) `json:"-"`
	// Options for the remote
	Options []Option
}

// Option describes an option for a remote
type Option struct {
	Name       string // key used in the configmap
	Help       string
	Default    string
	IsPassword bool // stored obscured
}

// Register a remote
//
// Remotes should call this in an init() function
func Register(info *RegInfo) {
	Registry = append(Registry, info)
}

// Find looks for a RegInfo object for the name or description passed
// in.  The comparison is case insensitive so "Google Drive", "google
// drive" and "drive" all find the drive remote.
func Find(name string) (*RegInfo, error) {
	for _, item := range Registry {
		if strings.EqualFold(item.Name, name) || strings.EqualFold(item.Description, name) {
			return item, nil
		}
	}
	return nil, errors.Wrapf(ErrorRemoteNotFound, "didn't find storage provider %q (known: %s)", name, strings.Join(Names(), ", "))
}

// Names returns the sorted descriptions of the registered remotes
func Names() []string {
	names := make([]string, 0, len(Registry))
	for _, item := range Registry {
		names = append(names, item.Description)
	}
	sort.Strings(names)
	return names
}

// NewRemote makes the remote described by provider, configured from m
func NewRemote(provider string, m configmap.Getter) (Remote, error) {
	info, err := Find(provider)
	if err != nil {
		return nil, err
	}
	return info.NewRemote(info.Name, m)
}
