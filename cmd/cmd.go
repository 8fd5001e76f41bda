// Package cmd implements the safearchive command
//
// It is in a sub package so it's internals can be re-used elsewhere
package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/backup"
	"github.com/safearchive/safearchive/fs"
	"github.com/safearchive/safearchive/fs/config"
	"github.com/safearchive/safearchive/fs/config/configflags"
	"github.com/safearchive/safearchive/fs/sync"
	"github.com/safearchive/safearchive/lib/notify"
	"github.com/spf13/cobra"
)

// Globals
var (
	// Errors
	errorNotEnoughArguments = errors.New("not enough arguments")
	errorTooManyArguments   = errors.New("too many arguments")

	// logCloser closes the --log-file if open
	logCloser io.Closer
)

const (
	exitCodeSuccess = iota
	exitCodeUsageError
	exitCodeUncategorizedError
	exitCodeAuthenticationError
	exitCodeMissingCredentials
	exitCodeConnectivityError
	exitCodeTransferError
	exitCodeDestinationUnreachable
	exitCodeRunInProgress
	exitCodeDirNotFound
)

// exitCodePermissionDenied is EX_NOPERM from sysexits.h
const exitCodePermissionDenied = 77

// Root is the main safearchive command
var Root = &cobra.Command{
	Use:   "safearchive",
	Short: "Back up folders to a local drive, Google Drive or FTP",
	Long: `
SafeArchive copies a set of source folders to a backup destination,
usually a removable drive, and can keep a mirror of those backups on
Google Drive or an FTP server.

Settings are read from a JSON file, see "safearchive config".
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	configflags.AddFlags(Root.PersistentFlags())
	cobra.OnInitialize(initConfig)
}

// ShowVersion prints the version to stdout
func ShowVersion() {
	fmt.Printf("safearchive %s\n", fs.Version)
	fmt.Printf("- os/type: %s\n", runtime.GOOS)
	fmt.Printf("- os/arch: %s\n", runtime.GOARCH)
	fmt.Printf("- go/version: %s\n", runtime.Version())
}

// initConfig is run by cobra after initialising the flags
func initConfig() {
	if err := configflags.SetFlags(Root.PersistentFlags()); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}

	// Start the logger
	closer, err := fs.InitLogging()
	if err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
	logCloser = closer

	// Write the args for debug purposes
	fs.Debugf("safearchive", "Version %q starting with parameters %q", fs.Version, os.Args)
}

// LoadSettings loads the settings file named by --config, writing
// the defaults if it doesn't exist
func LoadSettings() (*config.Store, *config.Settings, error) {
	store := config.NewStore(configflags.ConfigPath)
	if err := store.Load(); err != nil {
		return nil, nil, err
	}
	st, err := config.LoadSettings(store)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "bad settings in %q", store.Path())
	}
	return store, st, nil
}

// NewArchive returns the local backup described by st
func NewArchive(st *config.Settings) *backup.Archive {
	return backup.New(st.DestinationPath, st.ArchiveFolder)
}

// NewRemote makes the storage provider configured in st
func NewRemote(st *config.Settings) (fs.Remote, error) {
	return fs.NewRemote(st.StorageProvider, st.RemoteConfig())
}

// NewEngine makes a sync engine for the storage provider in st
func NewEngine(st *config.Settings) (*sync.Engine, error) {
	remote, err := NewRemote(st)
	if err != nil {
		return nil, err
	}
	return sync.New(remote,
		sync.ArchiveFolder(st.ArchiveFolder),
		sync.Notifier(notify.Default, st.Notifications),
	), nil
}

// Context returns a context cancelled by SIGINT or SIGTERM
func Context() (context.Context, func()) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Run the function and exit with a code describing its error
func Run(cmd *cobra.Command, f func() error) {
	err := f()
	if err != nil {
		log.Printf("Failed to %s: %v", cmd.Name(), err)
	}
	resolveExitCode(err)
}

// CheckArgs checks there are enough arguments and prints a message if not
func CheckArgs(MinArgs, MaxArgs int, cmd *cobra.Command, args []string) {
	if len(args) < MinArgs {
		_ = cmd.Usage()
		_, _ = fmt.Fprintf(os.Stderr, "Command %s needs %d arguments minimum: you provided %d non flag arguments: %q\n", cmd.Name(), MinArgs, len(args), args)
		resolveExitCode(errorNotEnoughArguments)
	} else if MaxArgs >= 0 && len(args) > MaxArgs {
		_ = cmd.Usage()
		_, _ = fmt.Fprintf(os.Stderr, "Command %s needs %d arguments maximum: you provided %d non flag arguments: %q\n", cmd.Name(), MaxArgs, len(args), args)
		resolveExitCode(errorTooManyArguments)
	}
}

// exitCode returns the process exit code for err
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitCodeSuccess
	case errors.Is(err, fs.ErrorMissingCredentialsConfig):
		return exitCodeMissingCredentials
	case errors.Is(err, fs.ErrorAuthentication):
		return exitCodeAuthenticationError
	case errors.Is(err, fs.ErrorConnectivity):
		return exitCodeConnectivityError
	case errors.Is(err, fs.ErrorTransfer):
		return exitCodeTransferError
	case errors.Is(err, fs.ErrorDestinationUnreachable):
		return exitCodeDestinationUnreachable
	case errors.Is(err, fs.ErrorRunInProgress):
		return exitCodeRunInProgress
	case errors.Is(err, fs.ErrorDirNotFound), os.IsNotExist(errors.Cause(err)):
		return exitCodeDirNotFound
	case os.IsPermission(errors.Cause(err)):
		return exitCodePermissionDenied
	case errors.Is(err, errorNotEnoughArguments), errors.Is(err, errorTooManyArguments), errors.Is(err, fs.ErrorRemoteNotFound), errors.Is(err, fs.ErrorDuplicateSource):
		return exitCodeUsageError
	}
	return exitCodeUncategorizedError
}

func resolveExitCode(err error) {
	if logCloser != nil {
		_ = logCloser.Close()
	}
	os.Exit(exitCode(err))
}

// Main runs safearchive interpreting flags and commands out of os.Args
func Main() {
	if err := Root.Execute(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}
