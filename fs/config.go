package fs

import (
	"strings"
	"time"
)

// Global
var (
	// Config is the global config
	Config = NewConfig()

	// Version of safearchive
	Version = "v1.3.0-DEV"
)

// ConfigInfo is the run wide config
type ConfigInfo struct {
	LogLevel        LogLevel
	UseJSONLog      bool
	LogFile         string
	DryRun          bool
	LowLevelRetries int
	ConnectTimeout  time.Duration // Connect timeout
	Timeout         time.Duration // Data channel timeout
	TPSLimit        float64       // API calls per second, 0 for no limit
	TPSLimitBurst   int
	ArchiveFolder   string        // Name of the top level folder on the remote
}

// NewConfig creates a new config with everything set to the default
// value.  These are the ultimate defaults and are overridden by the
// command line flags.
func NewConfig() *ConfigInfo {
	c := new(ConfigInfo)

	// Set any values which aren't the zero for the type
	c.LogLevel = LogLevelNotice
	c.LowLevelRetries = 10
	c.ConnectTimeout = 60 * time.Second
	c.Timeout = 5 * 60 * time.Second
	c.TPSLimitBurst = 1
	c.ArchiveFolder = DefaultArchiveFolder

	return c
}

// OptionToEnv converts an option name, eg "log-level" into an
// environment name "SAFEARCHIVE_LOG_LEVEL"
func OptionToEnv(name string) string {
	return "SAFEARCHIVE_" + strings.ToUpper(strings.Replace(name, "-", "_", -1))
}
