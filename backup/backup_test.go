package backup

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0600))
}

func readFile(t *testing.T, path string) string {
	b, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "Documents")
	writeFile(t, filepath.Join(src, "a.txt"), "hello")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "world!")
	dest := t.TempDir()
	a := New(dest, "")
	assert.Equal(t, filepath.Join(dest, "SafeArchive"), a.Root())
	assert.Equal(t, filepath.Join(dest, "SafeArchive", "Documents"), a.Folder(src+"/"))

	stats, err := a.Copy(ctx, []string{src})
	require.NoError(t, err)
	assert.Equal(t, &Stats{Copied: 2, Bytes: 11}, stats)
	assert.Equal(t, "hello", readFile(t, filepath.Join(a.Folder(src), "a.txt")))
	assert.Equal(t, "world!", readFile(t, filepath.Join(a.Folder(src), "sub", "b.txt")))

	// second copy has nothing to do
	stats, err = a.Copy(ctx, []string{src})
	require.NoError(t, err)
	assert.Equal(t, &Stats{Skipped: 2}, stats)

	// changes and removals are mirrored
	writeFile(t, filepath.Join(src, "a.txt"), "hello again")
	require.NoError(t, os.RemoveAll(filepath.Join(src, "sub")))
	stats, err = a.Copy(ctx, []string{src})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, "hello again", readFile(t, filepath.Join(a.Folder(src), "a.txt")))
	_, err = os.Stat(filepath.Join(a.Folder(src), "sub"))
	assert.True(t, os.IsNotExist(err))

	size, err := a.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	last, err := a.LastBackup()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), last, time.Minute)
}

func TestCopyDryRun(t *testing.T) {
	src := filepath.Join(t.TempDir(), "Documents")
	writeFile(t, filepath.Join(src, "sub", "a.txt"), "hello")
	a := New(t.TempDir(), "SafeArchive")

	fs.Config.DryRun = true
	defer func() { fs.Config.DryRun = false }()
	stats, err := a.Copy(context.Background(), []string{src})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Copied)
	_, err = os.Stat(a.Folder(src))
	assert.True(t, os.IsNotExist(err))
}

func TestCopyDestinationUnreachable(t *testing.T) {
	src := filepath.Join(t.TempDir(), "Documents")
	writeFile(t, filepath.Join(src, "a.txt"), "hello")
	a := New(filepath.Join(t.TempDir(), "unplugged"), "")

	_, err := a.Copy(context.Background(), []string{src})
	assert.True(t, errors.Is(err, fs.ErrorDestinationUnreachable))
	_, err = a.Restore(context.Background(), []string{src})
	assert.True(t, errors.Is(err, fs.ErrorDestinationUnreachable))
	_, err = a.FreeSpace()
	assert.True(t, errors.Is(err, fs.ErrorDestinationUnreachable))
}

func TestCopyMissingSource(t *testing.T) {
	a := New(t.TempDir(), "")
	_, err := a.Copy(context.Background(), []string{filepath.Join(t.TempDir(), "gone")})
	assert.Error(t, err)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "Documents")
	writeFile(t, filepath.Join(src, "a.txt"), "hello")
	a := New(t.TempDir(), "")
	_, err := a.Copy(ctx, []string{src})
	require.NoError(t, err)

	// lose a file and add one which isn't backed up
	require.NoError(t, os.Remove(filepath.Join(src, "a.txt")))
	writeFile(t, filepath.Join(src, "new.txt"), "new")

	other := filepath.Join(t.TempDir(), "Pictures")
	stats, err := a.Restore(ctx, []string{src, other})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, "hello", readFile(t, filepath.Join(src, "a.txt")))
	assert.Equal(t, "new", readFile(t, filepath.Join(src, "new.txt")))
	_, err = os.Stat(other)
	assert.True(t, os.IsNotExist(err))
}

func TestNoBackupYet(t *testing.T) {
	a := New(t.TempDir(), "")
	size, err := a.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
	last, err := a.LastBackup()
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestFreeSpace(t *testing.T) {
	a := New(t.TempDir(), "")
	free, err := a.FreeSpace()
	require.NoError(t, err)
	assert.True(t, free > 0)
}

func TestFolders(t *testing.T) {
	a := New("/mnt/usb", "SafeArchive")
	assert.Equal(t, []string{
		filepath.Join("/mnt/usb", "SafeArchive", "Documents"),
		filepath.Join("/mnt/usb", "SafeArchive", "Pictures"),
	}, a.Folders([]string{"/home/user/Documents/", "/home/user/Pictures"}))
}

func TestCopyDuplicateSourceNames(t *testing.T) {
	ctx := context.Background()
	work := filepath.Join(t.TempDir(), "Documents")
	home := filepath.Join(t.TempDir(), "Documents")
	writeFile(t, filepath.Join(work, "report.txt"), "report")
	writeFile(t, filepath.Join(home, "photo.jpg"), "photo")
	dest := t.TempDir()
	a := New(dest, "")

	_, err := a.Copy(ctx, []string{work, home})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrorDuplicateSource))
	_, err = os.Stat(a.Root())
	assert.True(t, os.IsNotExist(err))

	_, err = a.Restore(ctx, []string{work, home})
	assert.True(t, errors.Is(err, fs.ErrorDuplicateSource))
}
