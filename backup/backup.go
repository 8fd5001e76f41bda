// Package backup keeps a copy of the source folders on a local
// destination such as a removable drive.
package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
	"github.com/shirou/gopsutil/v3/disk"
)

// Archive is the backup folder on a destination
type Archive struct {
	destination string // where the drive is mounted
	root        string // destination/archive folder
}

// New makes an Archive in folder on destination
func New(destination, folder string) *Archive {
	if folder == "" {
		folder = fs.DefaultArchiveFolder
	}
	return &Archive{
		destination: destination,
		root:        filepath.Join(destination, folder),
	}
}

// Root returns the folder holding the backups
func (a *Archive) Root() string {
	return a.root
}

// String returns a description of the Archive
func (a *Archive) String() string {
	return a.root
}

// Stats counts what a Copy or Restore did
type Stats struct {
	Copied  int   // files written
	Skipped int   // files already up to date
	Removed int   // files removed from the backup
	Bytes   int64 // bytes written
}

// Folder returns the backup copy of source
func (a *Archive) Folder(source string) string {
	return filepath.Join(a.root, fs.SourceName(source))
}

// Folders returns the backup copies of sources
func (a *Archive) Folders(sources []string) []string {
	out := make([]string, 0, len(sources))
	for _, source := range sources {
		out = append(out, a.Folder(source))
	}
	return out
}

// checkDestination returns ErrorDestinationUnreachable if the
// destination has gone away
func (a *Archive) checkDestination() error {
	info, err := os.Stat(a.destination)
	if err != nil {
		return errors.Wrapf(fs.ErrorDestinationUnreachable, "%q: %v", a.destination, err)
	}
	if !info.IsDir() {
		return errors.Wrapf(fs.ErrorDestinationUnreachable, "%q is not a directory", a.destination)
	}
	return nil
}

// Copy mirrors each source tree into its backup folder. Files are
// copied when their size or modification time differ and files no
// longer in the source are removed from the backup.
func (a *Archive) Copy(ctx context.Context, sources []string) (*Stats, error) {
	if err := fs.CheckSources(sources); err != nil {
		return nil, err
	}
	if err := a.checkDestination(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(a.root, 0777); err != nil {
		return nil, errors.Wrapf(err, "failed to make %q", a.root)
	}
	stats := new(Stats)
	for _, source := range sources {
		dst := a.Folder(source)
		fs.Infof(a, "Backing up %q to %q", source, dst)
		if err := mirror(ctx, source, dst, true, stats); err != nil {
			return stats, err
		}
	}
	if fs.Config.DryRun {
		return stats, nil
	}
	now := time.Now()
	if err := os.Chtimes(a.root, now, now); err != nil {
		fs.Debugf(a, "Failed to stamp backup time: %v", err)
	}
	return stats, nil
}

// Restore copies each backup folder back over its source. Nothing is
// removed from the sources.
func (a *Archive) Restore(ctx context.Context, sources []string) (*Stats, error) {
	if err := fs.CheckSources(sources); err != nil {
		return nil, err
	}
	if err := a.checkDestination(); err != nil {
		return nil, err
	}
	stats := new(Stats)
	for _, source := range sources {
		src := a.Folder(source)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			fs.Logf(a, "No backup of %q to restore", source)
			continue
		}
		fs.Infof(a, "Restoring %q to %q", src, source)
		if err := mirror(ctx, src, source, false, stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// Size returns the total size of the files in the backup
func (a *Archive) Size() (size int64, err error) {
	err = filepath.Walk(a.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			size += info.Size()
		}
		return nil
	})
	if os.IsNotExist(errors.Cause(err)) {
		return 0, nil
	}
	return size, err
}

// LastBackup returns when Copy last completed, or the zero time if
// there hasn't been a backup
func (a *Archive) LastBackup() (time.Time, error) {
	info, err := os.Stat(a.root)
	if os.IsNotExist(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// FreeSpace returns the bytes free on the destination
func (a *Archive) FreeSpace() (uint64, error) {
	if err := a.checkDestination(); err != nil {
		return 0, err
	}
	usage, err := disk.Usage(a.destination)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read usage of %q", a.destination)
	}
	return usage.Free, nil
}

// mirror copies the tree at src into dst. If purge is set then
// files in dst which aren't in src are removed.
func mirror(ctx context.Context, src, dst string, purge bool, stats *Stats) error {
	seen := map[string]struct{}{}
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		seen[rel] = struct{}{}
		target := filepath.Join(dst, rel)
		switch {
		case info.IsDir():
			if fs.Config.DryRun {
				return nil
			}
			return os.MkdirAll(target, 0777)
		case !info.Mode().IsRegular():
			fs.Debugf(path, "Skipping non regular file")
			return nil
		case upToDate(info, target):
			stats.Skipped++
			return nil
		}
		if fs.Config.DryRun {
			fs.Logf(target, "Not copying as --dry-run")
			return nil
		}
		n, err := copyFile(path, target, info)
		if err != nil {
			return err
		}
		fs.Debugf(target, "Copied %d bytes", n)
		stats.Copied++
		stats.Bytes += n
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to copy %q", src)
	}
	if !purge {
		return nil
	}
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		return nil
	}
	var orphans []string
	err = filepath.Walk(dst, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dst, path)
		if err != nil {
			return err
		}
		if _, ok := seen[rel]; ok {
			return nil
		}
		orphans = append(orphans, path)
		if info.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to list %q", dst)
	}
	for _, orphan := range orphans {
		if fs.Config.DryRun {
			fs.Logf(orphan, "Not removing as --dry-run")
			continue
		}
		if err := os.RemoveAll(orphan); err != nil {
			return errors.Wrapf(err, "failed to remove %q", orphan)
		}
		fs.Infof(orphan, "Removed from backup")
		stats.Removed++
	}
	return nil
}

// upToDate returns whether target has the same size and modification
// time as info
func upToDate(info os.FileInfo, target string) bool {
	dstInfo, err := os.Stat(target)
	if err != nil || !dstInfo.Mode().IsRegular() {
		return false
	}
	return dstInfo.Size() == info.Size() && dstInfo.ModTime().Equal(info.ModTime())
}

// copyFile copies src to dst via a temporary file, preserving the
// modification time
func copyFile(src, dst string, info os.FileInfo) (n int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer fs.CheckClose(in, &err)
	tmp := dst + ".partial"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0200)
	if err != nil {
		return 0, err
	}
	n, err = io.Copy(out, in)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chtimes(tmp, info.ModTime(), info.ModTime())
	}
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, nil
}
