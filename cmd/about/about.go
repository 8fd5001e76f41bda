// Package about provides the about command.
package about

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/backup"
	"github.com/safearchive/safearchive/cmd"
	"github.com/safearchive/safearchive/fs"
	"github.com/safearchive/safearchive/fs/config"
	"github.com/safearchive/safearchive/fs/config/flags"
	"github.com/spf13/cobra"
)

var (
	fullOutput = false
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
	cmdFlags := commandDefinition.Flags()
	flags.BoolVarP(cmdFlags, &fullOutput, "full", "", fullOutput, "Full numbers instead of human-readable")
}

var commandDefinition = &cobra.Command{
	Use:   "about",
	Short: `Show the state of the backup.`,
	Long: `
Prints the size of the backup, the free space on the destination and
when the last backup was made.

If backup_to_cloud is set and the storage provider supports it, the
percentage of the cloud quota in use is printed too.

    $ safearchive about
    Backup folder:   /media/usb/SafeArchive
    Size of backup:  1.2 GB
    Free space:      250 GB (/media/usb)
    Last backup:     3 hours ago
    Cloud usage:     12.5%
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 0, command, args)
		cmd.Run(command, func() error {
			ctx, cancel := cmd.Context()
			defer cancel()
			_, st, err := cmd.LoadSettings()
			if err != nil {
				return err
			}
			info, err := gather(ctx, st, cmd.NewArchive(st))
			if err != nil {
				return err
			}
			return info.print(os.Stdout, st.DestinationPath, fullOutput)
		})
	},
}

// info is what about prints
type info struct {
	root       string
	size       int64
	free       uint64
	freeErr    error
	lastBackup time.Time
	usage      *fs.Usage
}

// gather collects the info for st
func gather(ctx context.Context, st *config.Settings, archive *backup.Archive) (*info, error) {
	var (
		in  = info{root: st.BackupRoot()}
		err error
	)
	if in.size, err = archive.Size(); err != nil {
		return nil, errors.Wrap(err, "failed to read backup size")
	}
	in.free, in.freeErr = archive.FreeSpace()
	if in.lastBackup, err = archive.LastBackup(); err != nil {
		return nil, errors.Wrap(err, "failed to read last backup time")
	}
	if st.BackupToCloud {
		remote, err := cmd.NewRemote(st)
		if err != nil {
			return nil, err
		}
		in.usage, err = cloudUsage(ctx, remote)
		if err != nil {
			fs.Errorf(remote, "Failed to read cloud usage: %v", err)
		}
	}
	return &in, nil
}

// cloudUsage returns the quota of remote or nil if it doesn't have one
func cloudUsage(ctx context.Context, remote fs.Remote) (usage *fs.Usage, err error) {
	abouter, ok := remote.(fs.Abouter)
	if !ok {
		fs.Debugf(remote, "Doesn't support about")
		return nil, nil
	}
	if err = remote.Connect(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if disconnectErr := remote.Disconnect(ctx); err == nil {
			err = disconnectErr
		}
	}()
	return abouter.About(ctx)
}

func (in *info) print(out io.Writer, destination string, full bool) error {
	size := humanize.Bytes(uint64(in.size))
	free := humanize.Bytes(in.free)
	if full {
		size = fmt.Sprint(in.size)
		free = fmt.Sprint(in.free)
	}
	if in.freeErr != nil {
		free = "unavailable"
	}
	last := "never"
	if !in.lastBackup.IsZero() {
		last = humanize.Time(in.lastBackup)
	}
	_, err := fmt.Fprintf(out, "Backup folder:   %s\nSize of backup:  %s\nFree space:      %s (%s)\nLast backup:     %s\n", in.root, size, free, destination, last)
	if err != nil {
		return err
	}
	if in.usage != nil {
		_, err = fmt.Fprintf(out, "Cloud usage:     %.1f%%\n", in.usage.Percent())
	}
	return err
}
