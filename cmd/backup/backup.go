// Package backup provides the backup command.
package backup

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/safearchive/safearchive/cmd"
	"github.com/safearchive/safearchive/fs"
	"github.com/safearchive/safearchive/fs/config"
	"github.com/safearchive/safearchive/fs/config/flags"
	"github.com/safearchive/safearchive/lib/notify"
	"github.com/spf13/cobra"
)

var (
	localOnly = false
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
	cmdFlags := commandDefinition.Flags()
	flags.BoolVarP(cmdFlags, &localOnly, "local-only", "", localOnly, "Don't sync to the cloud even if backup_to_cloud is set")
}

var commandDefinition = &cobra.Command{
	Use:   "backup",
	Short: `Back up the source folders to the destination.`,
	Long: `
Copies each of the source folders into SafeArchive/<folder name> on the
destination. Files are copied if their size or modification time has
changed and files deleted from a source are deleted from its backup.

If backup_to_cloud is set, the backups are then mirrored to the
storage provider, see "safearchive sync".
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
			return Backup(ctx, st, !localOnly)
		})
	},
}

// Backup copies the sources in st to the destination then, if cloud
// is set and st asks for it, syncs the copies to the storage provider.
func Backup(ctx context.Context, st *config.Settings, cloud bool) error {
	archive := cmd.NewArchive(st)
	stats, err := archive.Copy(ctx, st.SourcePaths)
	if err != nil {
		notify.Default.NotifyError(st.Notifications, err)
		return err
	}
	fs.Logf(archive, "Backed up %d files (%s), %d unchanged, %d removed",
		stats.Copied, humanize.Bytes(uint64(stats.Bytes)), stats.Skipped, stats.Removed)
	if !cloud || !st.BackupToCloud {
		return nil
	}
	engine, err := cmd.NewEngine(st)
	if err != nil {
		return err
	}
	syncStats, err := engine.Run(ctx, archive.Folders(st.SourcePaths))
	if err != nil {
		return err
	}
	fs.Logf(nil, "Synced to %s: %v", st.StorageProvider, syncStats)
	return nil
}
