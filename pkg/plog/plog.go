// Package plog provides the structured logger handed to every component of a
// series run. Console output is split by level: notices and infos go to
// stdout, warnings and errors to stderr. A per-run log file can be attached on
// top of the console output, and every warning and error is recorded so the
// run can end with a summary.
package plog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/paulschiretz/pgl-series/pkg/util"
)

// Log levels. Notice sits between Debug and Info and carries the verbose
// per-file output of the sync tool.
const (
	LevelDebug  = slog.LevelDebug
	LevelNotice = slog.Level(-2)
	LevelInfo   = slog.LevelInfo
	LevelWarn   = slog.LevelWarn
	LevelError  = slog.LevelError
)

var levelNames = map[slog.Level]string{
	LevelDebug:  "debug",
	LevelNotice: "notice",
	LevelInfo:   "info",
	LevelWarn:   "warn",
	LevelError:  "error",
}

var levelsByName = util.InvertMap(levelNames)

// ParseLevel converts a level name ("debug", "notice", "info", "warn", "error")
// into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	if l, ok := levelsByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return 0, fmt.Errorf("invalid log level %q: must be one of debug, notice, info, warn, error", s)
}

// LevelName returns the lowercase name of a level known to plog.
func LevelName(l slog.Level) string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return l.String()
}

// ErrRunLogExists is returned by AttachRunLog when the target log file is
// already present.
var ErrRunLogExists = errors.New("run log file already exists")

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
	quiet         *atomic.Bool
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < LevelWarn && h.quiet.Load() {
		return false
	}
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
		quiet:         h.quiet,
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
		quiet:         h.quiet,
	}
}

// tally collects warnings and errors across a Logger and everything derived from it.
type tally struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
}

func (t *tally) add(level slog.Level, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case level >= LevelError:
		t.errors = append(t.errors, msg)
	case level >= LevelWarn:
		t.warnings = append(t.warnings, msg)
	}
}

// sink is the shared, swappable output state of a Logger family.
type sink struct {
	console slog.Handler
	file    atomic.Pointer[fileSink]
}

type fileSink struct {
	handler slog.Handler
}

// teeHandler records warnings and errors and fans each record out to the
// console handler and, when attached, the run log handler.
type teeHandler struct {
	sink  *sink
	tally *tally
	attrs []slog.Attr
	group string
}

func (h *teeHandler) console() slog.Handler { return h.derive(h.sink.console) }

func (h *teeHandler) file() slog.Handler {
	fs := h.sink.file.Load()
	if fs == nil {
		return nil
	}
	return h.derive(fs.handler)
}

func (h *teeHandler) derive(base slog.Handler) slog.Handler {
	if len(h.attrs) > 0 {
		base = base.WithAttrs(h.attrs)
	}
	if h.group != "" {
		base = base.WithGroup(h.group)
	}
	return base
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// Warnings and errors always reach Handle so they are recorded.
	if level >= LevelWarn || h.sink.console.Enabled(ctx, level) {
		return true
	}
	fs := h.sink.file.Load()
	return fs != nil && fs.handler.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	h.tally.add(r.Level, r.Message)
	return h.fanout(ctx, r)
}

func (h *teeHandler) fanout(ctx context.Context, r slog.Record) error {
	var errs []error
	if c := h.console(); c.Enabled(ctx, r.Level) {
		errs = append(errs, c.Handle(ctx, r.Clone()))
	}
	if f := h.file(); f != nil && f.Enabled(ctx, r.Level) {
		errs = append(errs, f.Handle(ctx, r.Clone()))
	}
	return errors.Join(errs...)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &n
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	n := *h
	n.group = name
	return &n
}

// replaceLevel renders the custom NOTICE level by name instead of "DEBUG+2".
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if l, ok := a.Value.Any().(slog.Level); ok && l == LevelNotice {
		a.Value = slog.StringValue("NOTICE")
	}
	return a
}

// Logger is the logging capability passed into each component of a run.
type Logger struct {
	slog  *slog.Logger
	level *slog.LevelVar
	quiet *atomic.Bool
	sink  *sink
	tally *tally
}

// New returns a Logger writing records below WARN to stdout and the rest to stderr.
func New(stdout, stderr io.Writer, level slog.Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level)
	quiet := new(atomic.Bool)
	opts := &slog.HandlerOptions{Level: lv, ReplaceAttr: replaceLevel}

	s := &sink{console: &LevelDispatchHandler{
		stdoutHandler: slog.NewTextHandler(stdout, opts),
		stderrHandler: slog.NewTextHandler(stderr, opts),
		quiet:         quiet,
	}}
	t := &tally{}
	return &Logger{
		slog:  slog.New(&teeHandler{sink: s, tally: t}),
		level: lv,
		quiet: quiet,
		sink:  s,
		tally: t,
	}
}

// NewConsole returns a Logger on the process's stdout and stderr.
func NewConsole(level slog.Level) *Logger {
	return New(os.Stdout, os.Stderr, level)
}

// Discard returns a Logger that drops everything. Warnings and errors are still counted.
func Discard() *Logger {
	return New(io.Discard, io.Discard, LevelError+1)
}

// With returns a Logger that adds args to every record. It shares level,
// outputs and counters with l.
func (l *Logger) With(args ...any) *Logger {
	n := *l
	n.slog = l.slog.With(args...)
	return &n
}

// SetLevel sets the minimum level for both console and run log output.
func (l *Logger) SetLevel(level slog.Level) { l.level.Set(level) }

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level { return l.level.Level() }

// SetQuiet enables or disables quiet mode.
// In quiet mode, console output below WARN is suppressed. The run log is not affected.
func (l *Logger) SetQuiet(quiet bool) { l.quiet.Store(quiet) }

// AttachRunLog creates the log file at path and mirrors every record into it
// in addition to the console. The file must not exist yet. The returned
// function detaches and closes the file.
func (l *Logger) AttachRunLog(path string, maxSizeMB int) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunLogExists, path)
		}
		return nil, fmt.Errorf("could not create run log %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("could not close run log %s: %w", path, err)
	}

	w := &lumberjack.Logger{
		Filename: path,
		MaxSize:  maxSizeMB,
	}
	opts := &slog.HandlerOptions{Level: l.level, ReplaceAttr: replaceLevel}
	fs := &fileSink{handler: slog.NewTextHandler(w, opts)}
	if !l.sink.file.CompareAndSwap(nil, fs) {
		w.Close()
		return nil, errors.New("a run log is already attached")
	}

	return func() error {
		l.sink.file.CompareAndSwap(fs, nil)
		return w.Close()
	}, nil
}

// Counts returns the number of warnings and errors logged so far.
func (l *Logger) Counts() (warnings, errs int) {
	l.tally.mu.Lock()
	defer l.tally.mu.Unlock()
	return len(l.tally.warnings), len(l.tally.errors)
}

// Summary logs every error and warning message recorded during the run,
// followed by a closing line with both counts. The summary records themselves
// are not counted.
func (l *Logger) Summary(outcome string) {
	l.tally.mu.Lock()
	errs := append([]string(nil), l.tally.errors...)
	warns := append([]string(nil), l.tally.warnings...)
	l.tally.mu.Unlock()

	h := l.slog.Handler().(*teeHandler)
	emit := func(level slog.Level, msg string, args ...any) {
		r := slog.NewRecord(time.Now(), level, msg, 0)
		r.Add(args...)
		_ = h.fanout(context.Background(), r)
	}

	if len(errs) > 0 {
		emit(LevelError, "The following ERRORS were encountered")
		for _, m := range errs {
			emit(LevelError, "  "+m)
		}
	}
	if len(warns) > 0 {
		emit(LevelWarn, "The following WARNINGS were encountered")
		for _, m := range warns {
			emit(LevelWarn, "  "+m)
		}
	}
	emit(LevelInfo, fmt.Sprintf("%s, %d warnings and %d errors.", outcome, len(warns), len(errs)))
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Log(context.Background(), LevelDebug, msg, args...)
}

// Notice logs a verbose informational message.
func (l *Logger) Notice(msg string, args ...any) {
	l.slog.Log(context.Background(), LevelNotice, msg, args...)
}

// Info logs an informational message.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}
