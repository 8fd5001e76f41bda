package fs

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LogLevel orders the log messages, lower is more important
type LogLevel byte

// Log levels, a subset of the syslog ones.
const (
	LogLevelEmergency LogLevel = iota
	LogLevelAlert
	LogLevelCritical
	LogLevelError // Error - can't be suppressed
	LogLevelWarning
	LogLevelNotice // Normal logging, -q suppresses
	LogLevelInfo   // Transfers, needs -v
	LogLevelDebug  // Debug level, needs -vv
)

var logLevelToString = []string{
	LogLevelEmergency: "EMERGENCY",
	LogLevelAlert:     "ALERT",
	LogLevelCritical:  "CRITICAL",
	LogLevelError:     "ERROR",
	LogLevelWarning:   "WARNING",
	LogLevelNotice:    "NOTICE",
	LogLevelInfo:      "INFO",
	LogLevelDebug:     "DEBUG",
}

// logrus has no notice level so notices go out as warnings
var logLevelToLogrus = []logrus.Level{
	LogLevelEmergency: logrus.PanicLevel,
	LogLevelAlert:     logrus.PanicLevel,
	LogLevelCritical:  logrus.FatalLevel,
	LogLevelError:     logrus.ErrorLevel,
	LogLevelWarning:   logrus.WarnLevel,
	LogLevelNotice:    logrus.WarnLevel,
	LogLevelInfo:      logrus.InfoLevel,
	LogLevelDebug:     logrus.DebugLevel,
}

// String turns a LogLevel into a string
func (l LogLevel) String() string {
	if l >= LogLevel(len(logLevelToString)) {
		return fmt.Sprintf("LogLevel(%d)", l)
	}
	return logLevelToString[l]
}

// Set a LogLevel from its name, ignoring case
func (l *LogLevel) Set(s string) error {
	s = strings.ToUpper(s)
	for n, name := range logLevelToString {
		if s != "" && name == s {
			*l = LogLevel(n)
			return nil
		}
	}
	return errors.Errorf("Unknown log level %q", s)
}

// Type of the value
func (l *LogLevel) Type() string {
	return "string"
}

// LogPrint sends the text to the logger of level
var LogPrint = func(level LogLevel, text string) {
	text = fmt.Sprintf("%-6s: %s", level, text)
	_ = log.Output(4, text)
}

// logJSON sends out as a logrus entry carrying o as fields
func logJSON(level LogLevel, o interface{}, out string) {
	entry := logrus.NewEntry(logrus.StandardLogger())
	if o != nil {
		entry = entry.WithFields(logrus.Fields{
			"object":     fmt.Sprintf("%+v", o),
			"objectType": fmt.Sprintf("%T", o),
		})
	}
	lvl := logrus.DebugLevel
	if level < LogLevel(len(logLevelToLogrus)) {
		lvl = logLevelToLogrus[level]
	}
	switch lvl {
	case logrus.PanicLevel:
		entry.Panic(out)
	case logrus.FatalLevel:
		entry.Fatal(out)
	default:
		entry.Log(lvl, out)
	}
}

// LogPrintf produces a log string from the arguments passed in
func LogPrintf(level LogLevel, o interface{}, text string, args ...interface{}) {
	out := fmt.Sprintf(text, args...)
	if Config.UseJSONLog {
		logJSON(level, o, out)
		return
	}
	if o != nil {
		out = fmt.Sprintf("%v: %s", o, out)
	}
	LogPrint(level, out)
}

// Errorf writes error log output for this Object or Remote.  It
// should always be seen by the user.
func Errorf(o interface{}, text string, args ...interface{}) {
	if Config.LogLevel >= LogLevelError {
		LogPrintf(LogLevelError, o, text, args...)
	}
}

// Logf writes log output for this Object or Remote.  This should be
// considered to be Notice level logging.  It is the default level.
// Only use this for important things the user should see.  The user
// can filter these out with the -q flag.
func Logf(o interface{}, text string, args ...interface{}) {
	if Config.LogLevel >= LogLevelNotice {
		LogPrintf(LogLevelNotice, o, text, args...)
	}
}

// Infof writes info on transfers for this Object or Remote.  Use this
// level for logging uploads, deletions and things which should
// appear with the -v flag.
func Infof(o interface{}, text string, args ...interface{}) {
	if Config.LogLevel >= LogLevelInfo {
		LogPrintf(LogLevelInfo, o, text, args...)
	}
}

// Debugf writes debugging output for this Object or Remote.  Use this for
// debug only.  The user must have to specify -vv to see this.
func Debugf(o interface{}, text string, args ...interface{}) {
	if Config.LogLevel >= LogLevelDebug {
		LogPrintf(LogLevelDebug, o, text, args...)
	}
}

// InitLogging sets up the logging output from Config
//
// It opens LogFile if set, in which case the returned io.Closer
// should be closed on exit.
func InitLogging() (io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer
	if Config.LogFile != "" {
		f, err := os.OpenFile(Config.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open log file")
		}
		out, closer = f, f
	}
	log.SetOutput(out)
	logrus.SetOutput(out)
	if Config.UseJSONLog {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.DebugLevel)
	}
	return closer, nil
}
