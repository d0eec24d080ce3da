package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Settings controls where logs go.
//
// Modes:
// - NoFile=true  => console-only (stderr). No log files are created.
// - NoFile=false => also write logs to a rotating file under Dir.
type Settings struct {
	NoFile bool
	Dir    string
	Level  string

	// MaxSizeMB and MaxBackups bound the rotating log file. Zero values
	// fall back to the defaults below.
	MaxSizeMB  int
	MaxBackups int
}

const (
	defaultMaxSizeMB  = 20
	defaultMaxBackups = 5
)

// New initializes the shared logger.
//
// Behavior:
// - Level defaults to "info"; unknown level strings are an error.
// - If file logging is enabled, Dir must be set and is created if needed.
//   Failing early here is deliberate: for unattended runs, a missing or
//   unwritable log directory should abort at startup, not lose logs later.
func New(s Settings) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level := s.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", level)
	}
	log.SetLevel(parsed)

	if s.NoFile {
		log.SetOutput(os.Stderr)
		return log, nil
	}

	if s.Dir == "" {
		return nil, errors.New("log dir is empty (Settings.Dir)")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create log directory")
	}

	maxSize := s.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	maxBackups := s.MaxBackups
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}

	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(s.Dir, "disksync.log"),
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotating))
	return log, nil
}

// Discard returns a logger that drops everything. Used by tests and as a
// safe default when callers pass no logger.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
