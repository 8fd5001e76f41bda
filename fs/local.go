// Enumeration of the local side of a sync

package fs

import (
	"io/ioutil"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// LocalEntry is a file in a local source folder
type LocalEntry struct {
	Name    string    // leaf name
	Path    string    // absolute path
	Size    int64     // size in bytes
	ModTime time.Time // modification time
}

// ListLocal returns the regular files directly inside dir sorted by
// name. Sub directories, symlinks to directories and other special
// files are skipped.
//
// The result is read from the disk on every call and never cached.
func ListLocal(dir string) (entries []LocalEntry, err error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't make %q absolute", dir)
	}
	infos, err := ioutil.ReadDir(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't list %q", abs)
	}
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			Debugf(abs, "Skipping non regular file %q", info.Name())
			continue
		}
		entries = append(entries, LocalEntry{
			Name:    info.Name(),
			Path:    filepath.Join(abs, info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// SourceName returns the name of the archive folder for source
func SourceName(source string) string {
	return filepath.Base(filepath.Clean(source))
}

// CheckSources returns ErrorDuplicateSource if two different sources
// would be archived into the same folder.
func CheckSources(sources []string) error {
	seen := make(map[string]string, len(sources))
	clashes := make(NameSet)
	for _, source := range sources {
		clean, name := filepath.Clean(source), SourceName(source)
		if prev, ok := seen[name]; ok && prev != clean {
			clashes.Add(name)
			continue
		}
		seen[name] = clean
	}
	if len(clashes) > 0 {
		return errors.Wrapf(ErrorDuplicateSource, "rename one of the folders called %s", strings.Join(clashes.Sorted(), ", "))
	}
	return nil
}

// NameSet is a set of file names
type NameSet map[string]struct{}

// NewNameSet makes a NameSet from the names of entries
func NewNameSet(entries []LocalEntry) NameSet {
	names := make(NameSet, len(entries))
	for _, entry := range entries {
		names.Add(entry.Name)
	}
	return names
}

// Add name to the set.
//
// Names are compared in Unicode NFC so a name read from a disk that
// stores decomposed names (macOS) matches the composed remote one.
func (s NameSet) Add(name string) {
	s[norm.NFC.String(name)] = struct{}{}
}

// Has returns whether name is in the set
func (s NameSet) Has(name string) bool {
	_, ok := s[norm.NFC.String(name)]
	return ok
}

// Sorted returns the names in the set in order
func (s NameSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
