// Package reveal provides the reveal command.
package reveal

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
	Use:   "reveal password",
	Short: `Reveal an obscured password from the settings file.`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(1, 1, command, args)
		cmd.Run(command, func() error {
			revealed, err := obscure.Reveal(args[0])
			if err != nil {
				return err
			}
			fmt.Println(revealed)
			return nil
		})
	},
	Hidden: true,
}
