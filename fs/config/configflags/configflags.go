// Package configflags defines the global flags of safearchive
package configflags

import (
	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
	"github.com/safearchive/safearchive/fs/config"
	"github.com/safearchive/safearchive/fs/config/flags"
	"github.com/spf13/pflag"
)

var (
	// these will get interpreted into fs.Config via SetFlags() below
	verbose int
	quiet   bool

	// ConfigPath is the path to the settings file
	ConfigPath = config.DefaultPath
)

// AddFlags adds the global flags to flagSet
func AddFlags(flagSet *pflag.FlagSet) {
	// NB defaults which aren't the zero for the type should be set in fs/config.go NewConfig
	flags.CountVarP(flagSet, &verbose, "verbose", "v", "Print lots more stuff (repeat for more)")
	flags.BoolVarP(flagSet, &quiet, "quiet", "q", false, "Print as little stuff as possible")
	flags.FVarP(flagSet, &fs.Config.LogLevel, "log-level", "", "Log level DEBUG|INFO|NOTICE|ERROR")
	flags.BoolVarP(flagSet, &fs.Config.UseJSONLog, "use-json-log", "", fs.Config.UseJSONLog, "Use json log format.")
	flags.StringVarP(flagSet, &fs.Config.LogFile, "log-file", "", fs.Config.LogFile, "Log everything to this file")
	flags.StringVarP(flagSet, &ConfigPath, "config", "", ConfigPath, "Settings file.")
	flags.BoolVarP(flagSet, &fs.Config.DryRun, "dry-run", "n", fs.Config.DryRun, "Do a trial run with no permanent changes")
	flags.IntVarP(flagSet, &fs.Config.LowLevelRetries, "low-level-retries", "", fs.Config.LowLevelRetries, "Number of low level retries to do.")
	flags.DurationVarP(flagSet, &fs.Config.ConnectTimeout, "contimeout", "", fs.Config.ConnectTimeout, "Connect timeout")
	flags.DurationVarP(flagSet, &fs.Config.Timeout, "timeout", "", fs.Config.Timeout, "IO idle timeout")
	flags.Float64VarP(flagSet, &fs.Config.TPSLimit, "tpslimit", "", fs.Config.TPSLimit, "Limit Google Drive API calls per second to this.")
	flags.IntVarP(flagSet, &fs.Config.TPSLimitBurst, "tpslimit-burst", "", fs.Config.TPSLimitBurst, "Max burst of API calls for --tpslimit.")
}

// SetFlags converts any flags into config which weren't straight forward
func SetFlags(flagSet *pflag.FlagSet) error {
	if verbose >= 2 {
		fs.Config.LogLevel = fs.LogLevelDebug
	} else if verbose >= 1 {
		fs.Config.LogLevel = fs.LogLevelInfo
	}
	if quiet {
		if verbose > 0 {
			return errors.New("can't set -v and -q")
		}
		fs.Config.LogLevel = fs.LogLevelError
	}
	logLevelFlag := flagSet.Lookup("log-level")
	if logLevelFlag != nil && logLevelFlag.Changed {
		if verbose > 0 {
			return errors.New("can't set -v and --log-level")
		}
		if quiet {
			return errors.New("can't set -q and --log-level")
		}
	}
	if fs.Config.TPSLimit < 0 {
		return errors.Errorf("--tpslimit can't be negative, got %g", fs.Config.TPSLimit)
	}
	if fs.Config.LowLevelRetries < 1 {
		return errors.Errorf("--low-level-retries must be at least 1, got %d", fs.Config.LowLevelRetries)
	}
	return nil
}
