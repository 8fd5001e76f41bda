// Package sync provides the sync command.
package sync

import (
	"github.com/safearchive/safearchive/cmd"
	"github.com/safearchive/safearchive/fs"
	"github.com/spf13/cobra"
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
}

var commandDefinition = &cobra.Command{
	Use:   "sync [folder]*",
	Short: `Mirror folders to the storage provider.`,
	Long: `
Mirrors the top level files of each folder into SafeArchive/<folder name>
on the storage provider set by storage_provider in the settings.
Remote files which aren't in the local folder are deleted (or trashed
on Google Drive).

With no arguments the local backups of the source folders are synced.

Use --dry-run to see what would be uploaded and deleted.
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, -1, command, args)
		cmd.Run(command, func() error {
			ctx, cancel := cmd.Context()
			defer cancel()
			_, st, err := cmd.LoadSettings()
			if err != nil {
				return err
			}
			folders := args
			if len(folders) == 0 {
				folders = cmd.NewArchive(st).Folders(st.SourcePaths)
			}
			engine, err := cmd.NewEngine(st)
			if err != nil {
				return err
			}
			stats, err := engine.Run(ctx, folders)
			if err != nil {
				return err
			}
			fs.Logf(nil, "Synced to %s: %v", st.StorageProvider, stats)
			return nil
		})
	},
}
