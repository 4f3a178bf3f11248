// Package log carries the leveled diagnostic events emitted while parsing
// and rewriting containers. Events never abort an operation.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Levels accepted by SetLevel, in the order used by the command line.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelMute
)

var levelMap = [...]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
	LevelMute:  zerolog.Disabled,
}

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr).Level(zerolog.WarnLevel)
)

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true, PartsExclude: []string{zerolog.TimestampFieldName}})
}

// SetLevel maps 0..4 (debug, info, warn, error, mute) onto the logger.
// Out-of-range values are clamped.
func SetLevel(level int) {
	if level < LevelDebug {
		level = LevelDebug
	}
	if level > LevelMute {
		level = LevelMute
	}
	mu.Lock()
	logger = logger.Level(levelMap[level])
	mu.Unlock()
}

// GetLevel returns the active zerolog level.
func GetLevel() zerolog.Level {
	mu.RLock()
	defer mu.RUnlock()
	return logger.GetLevel()
}

// SetOutput redirects events to w, keeping the current level.
func SetOutput(w io.Writer) {
	mu.Lock()
	logger = newLogger(w).Level(logger.GetLevel())
	mu.Unlock()
}

// Logger returns the shared logger.
func Logger() *zerolog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	return &l
}

func Debug() *zerolog.Event { return Logger().Debug() }
func Info() *zerolog.Event  { return Logger().Info() }
func Warn() *zerolog.Event  { return Logger().Warn() }
func Error() *zerolog.Event { return Logger().Error() }
