// Package restore provides the restore command.
package restore

import (
	"github.com/dustin/go-humanize"
	"github.com/safearchive/safearchive/cmd"
	"github.com/safearchive/safearchive/fs"
	"github.com/safearchive/safearchive/lib/notify"
	"github.com/spf13/cobra"
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
}

var commandDefinition = &cobra.Command{
	Use:   "restore",
	Short: `Copy the backups back to the source folders.`,
	Long: `
Copies the backup of each source folder from the destination back over
the source. Files which differ in size or modification time are
overwritten, nothing is deleted from the sources.
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
			archive := cmd.NewArchive(st)
			stats, err := archive.Restore(ctx, st.SourcePaths)
			if err != nil {
				notify.Default.NotifyError(st.Notifications, err)
				return err
			}
			fs.Logf(archive, "Restored %d files (%s), %d unchanged",
				stats.Copied, humanize.Bytes(uint64(stats.Bytes)), stats.Skipped)
			return nil
		})
	},
}
