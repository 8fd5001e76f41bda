// Package schedule provides the schedule command.
package schedule

import (
	"context"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/backup"
	"github.com/safearchive/safearchive/cmd"
	cmdbackup "github.com/safearchive/safearchive/cmd/backup"
	"github.com/safearchive/safearchive/fs"
	"github.com/safearchive/safearchive/fs/config/flags"
	"github.com/spf13/cobra"
)

var (
	cronSpec = ""
	watch    = false
	settle   = backup.DefaultSettle
	atStart  = false
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
	cmdFlags := commandDefinition.Flags()
	flags.StringVarP(cmdFlags, &cronSpec, "cron", "", cronSpec, "Run a backup on this cron schedule, eg \"0 3 * * *\"")
	flags.BoolVarP(cmdFlags, &watch, "watch", "", watch, "Run a backup when the source folders change")
	flags.DurationVarP(cmdFlags, &settle, "settle", "", settle, "Wait this long after the last change before running")
	flags.BoolVarP(cmdFlags, &atStart, "now", "", atStart, "Run a backup straight away too")
}

var commandDefinition = &cobra.Command{
	Use:   "schedule",
	Short: `Run backups on a schedule or when sources change.`,
	Long: `
Runs "safearchive backup" on a cron schedule, when the source folders
change, or both, until interrupted. Only one backup runs at a time; any
triggers arriving during a backup cause a single backup afterwards.

The settings file is re-read before every backup so changes made with
"safearchive config" are picked up.

    safearchive schedule --cron "0 3 * * *" --watch
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 0, command, args)
		cmd.Run(command, func() error {
			if cronSpec == "" && !watch {
				return errors.New("need --cron, --watch or both")
			}
			ctx, cancel := cmd.Context()
			defer cancel()
			_, st, err := cmd.LoadSettings()
			if err != nil {
				return err
			}
			s := backup.NewScheduler(runBackup)
			s.SetSettle(settle)
			if cronSpec != "" {
				if err := s.AddCron(cronSpec); err != nil {
					return err
				}
			}
			if watch {
				if err := s.Watch(st.SourcePaths); err != nil {
					return err
				}
			}
			if atStart {
				s.Trigger("--now")
			}
			fs.Logf(nil, "Waiting for triggers")
			err = s.Run(ctx)
			if errors.Is(err, context.Canceled) {
				fs.Logf(nil, "Interrupted, exiting")
				return nil
			}
			return err
		})
	},
}

// runBackup reloads the settings and runs a backup
func runBackup(ctx context.Context) error {
	_, st, err := cmd.LoadSettings()
	if err != nil {
		return err
	}
	return cmdbackup.Backup(ctx, st, true)
}
