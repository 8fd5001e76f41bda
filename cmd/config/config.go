// Package config provides the config command.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/cmd"
	"github.com/safearchive/safearchive/fs/config"
	"github.com/safearchive/safearchive/fs/config/obscure"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"
)

func init() {
	cmd.Root.AddCommand(configCommand)
	configCommand.AddCommand(configShowCommand)
	configCommand.AddCommand(configFileCommand)
	configCommand.AddCommand(configGetCommand)
	configCommand.AddCommand(configSetCommand)
	configCommand.AddCommand(configDeleteCommand)
	configCommand.AddCommand(configPasswordCommand)
}

var configCommand = &cobra.Command{
	Use:   "config",
	Short: `Show and edit the settings file.`,
	Long: `
Show and edit the JSON settings file. Every change is written to the
file straight away.

Values are parsed as JSON where possible, so

    safearchive config set backup_to_cloud true source_path '["/home/me/Documents"]'

stores a boolean and a list. Anything else is stored as a string.
`,
}

var configShowCommand = &cobra.Command{
	Use:   "show",
	Short: `Print the settings, hiding the FTP password.`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 0, command, args)
		cmd.Run(command, func() error {
			store, _, err := cmd.LoadSettings()
			if err != nil {
				return err
			}
			for _, key := range store.Keys() {
				value, _ := store.Get(key)
				text := config.FormatValue(value)
				if key == config.KeyPassword && text != "" {
					text = "*** ENCRYPTED ***"
				}
				fmt.Printf("%s = %s\n", key, text)
			}
			return nil
		})
	},
}

var configFileCommand = &cobra.Command{
	Use:   "file",
	Short: `Show path of the settings file in use.`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 0, command, args)
		cmd.Run(command, func() error {
			store, _, err := cmd.LoadSettings()
			if err != nil {
				return err
			}
			fmt.Printf("Settings file is stored at:\n%s\n", store.Path())
			return nil
		})
	},
}

var configGetCommand = &cobra.Command{
	Use:   "get key",
	Short: `Print the value of a setting.`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(1, 1, command, args)
		cmd.Run(command, func() error {
			store, _, err := cmd.LoadSettings()
			if err != nil {
				return err
			}
			value, ok := store.Get(args[0])
			if !ok {
				return errors.Wrap(config.ErrorKeyNotFound, args[0])
			}
			fmt.Println(config.FormatValue(value))
			return nil
		})
	},
}

var configSetCommand = &cobra.Command{
	Use:   "set key value [key value]*",
	Short: `Change settings.`,
	Long: `
Change one or more settings. The arguments can be given as pairs
"key value" or as "key=value".

Use "safearchive config password" to set the FTP password.
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(1, -1, command, args)
		cmd.Run(command, func() error {
			in, err := argsToMap(args)
			if err != nil {
				return err
			}
			store, _, err := cmd.LoadSettings()
			if err != nil {
				return err
			}
			return setValues(store, in)
		})
	},
}

var configDeleteCommand = &cobra.Command{
	Use:   "delete key",
	Short: `Remove a setting, restoring its default.`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(1, 1, command, args)
		cmd.Run(command, func() error {
			store, _, err := cmd.LoadSettings()
			if err != nil {
				return err
			}
			return store.Delete(args[0])
		})
	},
}

var configPasswordCommand = &cobra.Command{
	Use:   "password [password]",
	Short: `Set the FTP password, stored obscured.`,
	Long: `
Set the FTP password. If it isn't given on the command line it is
asked for without echo on a terminal, or read from the first line of
standard input otherwise.

The password is obscured in the settings file, not encrypted.
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 1, command, args)
		cmd.Run(command, func() error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				var err error
				if password, err = readPassword(os.Stdin); err != nil {
					return err
				}
			}
			store, _, err := cmd.LoadSettings()
			if err != nil {
				return err
			}
			return setPassword(store, password)
		})
	},
}

// readPassword asks for the password without echo if in is a
// terminal, otherwise it reads the first line of in
func readPassword(in *os.File) (string, error) {
	fd := int(in.Fd())
	if terminal.IsTerminal(fd) {
		_, _ = fmt.Fprint(os.Stderr, "FTP password: ")
		b, err := terminal.ReadPassword(fd)
		_, _ = fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", errors.Wrap(err, "failed to read password")
		}
		return string(b), nil
	}
	return readLine(in)
}

// readLine returns the first line of in without the line ending
func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.Wrap(err, "failed to read password")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// argsToMap parses "key value" pairs or "key=value" arguments
func argsToMap(args []string) (out map[string]string, err error) {
	out = map[string]string{}
	for len(args) > 0 {
		key := args[0]
		args = args[1:]
		if equals := strings.IndexByte(key, '='); equals >= 0 {
			out[key[:equals]] = key[equals+1:]
			continue
		}
		if len(args) == 0 {
			return nil, errors.Errorf("found key %q without value", key)
		}
		out[key] = args[0]
		args = args[1:]
	}
	return out, nil
}

// setValues sets each key in store to its parsed value
func setValues(store *config.Store, in map[string]string) error {
	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := in[key]
		if key == config.KeyPassword {
			if err := setPassword(store, value); err != nil {
				return err
			}
			continue
		}
		if err := store.Set(key, config.ParseValue(value)); err != nil {
			return err
		}
	}
	return nil
}

// setPassword stores password obscured
func setPassword(store *config.Store, password string) error {
	if password == "" {
		return store.Set(config.KeyPassword, "")
	}
	obscured, err := obscure.Obscure(password)
	if err != nil {
		return err
	}
	return store.Set(config.KeyPassword, obscured)
}
