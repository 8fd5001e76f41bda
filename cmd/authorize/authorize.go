// Package authorize provides the authorize command.
package authorize

import (
	"github.com/safearchive/safearchive/backend/drive"
	"github.com/safearchive/safearchive/cmd"
	"github.com/safearchive/safearchive/fs/config/flags"
	"github.com/spf13/cobra"
)

var (
	noAutoBrowser bool
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
	cmdFlags := commandDefinition.Flags()
	flags.BoolVarP(cmdFlags, &noAutoBrowser, "auth-no-open-browser", "", false, "Do not automatically open auth link in default browser")
}

var commandDefinition = &cobra.Command{
	Use:   "authorize",
	Short: `Sign in to Google Drive.`,
	Long: `Sign in to Google Drive and save the token to token_file, replacing
any token already saved. Needs the client secrets file named by
client_secrets_file in the settings.

The sign in normally happens on the first sync. Use this to sign in
again with a different account or after revoking access.

Use --auth-no-open-browser to print the link instead of opening it in
the default browser.`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 0, command, args)
		cmd.Run(command, func() error {
			ctx, cancel := cmd.Context()
			defer cancel()
			_, st, err := cmd.LoadSettings()
			if err != nil {
				return err
			}
			m := st.RemoteConfig()
			if noAutoBrowser {
				m["no_browser"] = "true"
			}
			return drive.Authorize(ctx, m)
		})
	},
}
