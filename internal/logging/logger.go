package logging

import (
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is satisfied by *slog.Logger. Packages that only emit logs accept
// it so tests can pass a discarding logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config selects the output format, the default level and per-module
// overrides keyed by module name.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type moduleLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var (
	mutex       sync.RWMutex
	current     = Config{Level: "info", Format: "text"}
	globalLevel = new(slog.LevelVar)
	modules     = make(map[string]*moduleLogger)
	logBuffer   *RingBuffer
	logCallback LogCallback
)

// Initialize applies config and starts buffering entries for the log
// stream. Module loggers handed out earlier follow the new levels; the
// format applies from the next GetLogger call.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	current = Config{Level: config.Level, Format: config.Format, Modules: maps.Clone(config.Modules)}
	logBuffer = NewRingBuffer(defaultBufferSize)

	globalLevel.Set(levelFor(""))
	for name, m := range modules {
		m.level.Set(levelFor(name))
		m.logger = slog.New(createHandler(current.Format, m.level)).With("module", name)
	}
	slog.SetDefault(slog.New(createHandler(current.Format, globalLevel)))
}

// levelFor resolves the configured level of module, falling back to the
// global level and then to info. Callers hold mutex.
func levelFor(module string) slog.Level {
	if override, ok := current.Modules[module]; ok && module != "" {
		if l, valid := parseLevel(override); valid {
			return l
		}
	}
	if l, valid := parseLevel(current.Level); valid {
		return l
	}
	return slog.LevelInfo
}

// GetBuffer returns the ring buffer behind the log stream, nil before
// Initialize.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback registers a function receiving every buffered entry.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

// GetLogger returns the logger for module, creating it on first use. The
// same logger is returned for the life of the process.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	m, ok := modules[module]
	mutex.RUnlock()
	if ok {
		return m.logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	return loggerLocked(module).logger
}

func loggerLocked(module string) *moduleLogger {
	if m, ok := modules[module]; ok {
		return m
	}
	level := new(slog.LevelVar)
	level.Set(levelFor(module))
	m := &moduleLogger{
		logger: slog.New(createHandler(current.Format, level)).With("module", module),
		level:  level,
	}
	modules[module] = m
	return m
}

// createHandler fans out to stdout, the journal when present and the ring
// buffer. level is shared so runtime changes apply to every output.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redactAttr}

	var stdout slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	if len(handlers) == 0 {
		// The buffer alone would hide logs from anyone reading the process.
		handlers = append(handlers, stdout)
	}
	return NewMultiHandler(append(handlers, NewBufferHandler(level))...)
}

// isStdoutAvailable reports whether stdout goes somewhere readable. It is
// false when stdout is closed or points at /dev/null.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode.IsRegular() || mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0
}

// parseLevel accepts debug, info, warn (or warning) and error in any case.
func parseLevel(s string) (slog.Level, bool) {
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	var l slog.Level
	if s == "" || l.UnmarshalText([]byte(s)) != nil {
		return 0, false
	}
	return l, true
}

// SetModuleLevel changes a module's level at runtime and reports whether
// level was valid. An empty module changes the global level, which every
// module without its own override follows.
func SetModuleLevel(module, level string) bool {
	l, ok := parseLevel(level)
	if !ok {
		return false
	}

	mutex.Lock()
	defer mutex.Unlock()

	if module == "" {
		current.Level = level
		globalLevel.Set(l)
		for name, m := range modules {
			if _, overridden := current.Modules[name]; !overridden {
				m.level.Set(l)
			}
		}
		return true
	}

	if current.Modules == nil {
		current.Modules = make(map[string]string)
	}
	current.Modules[module] = level
	loggerLocked(module).level.Set(l)
	return true
}

// ModuleLevels returns the effective level of every module logger created so far.
func ModuleLevels() map[string]string {
	mutex.RLock()
	defer mutex.RUnlock()
	levels := make(map[string]string, len(modules))
	for name, m := range modules {
		levels[name] = strings.ToLower(m.level.Level().String())
	}
	return levels
}
