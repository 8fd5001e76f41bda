// Package obscure provides the obscure command.
package obscure

import (
	"fmt"

	"github.com/safearchive/safearchive/cmd"
	"github.com/safearchive/safearchive/fs/config/obscure"
	"github.com/spf13/cobra"
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
}

var commandDefinition = &cobra.Command{
	Use:   "obscure password",
	Short: `Obscure an FTP password for the settings file.`,
	Long: `Print the password in the obscured form stored in the settings file.

"safearchive config password" does this for you, use this when editing
the settings file by hand.`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(1, 1, command, args)
		cmd.Run(command, func() error {
			fmt.Println(obscure.MustObscure(args[0]))
			return nil
		})
	},
}
