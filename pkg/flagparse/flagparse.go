package flagparse

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/pflag"

	"github.com/paulschiretz/pgl-series/pkg/buildinfo"
)

// UsageOutput receives help and usage text.
var UsageOutput io.Writer = os.Stderr

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	LogLevel *string
	Quiet    *bool

	// Shared: Backup / Status
	Destination *string
	SeriesName  *string

	// Backup specific
	Sources     *[]string
	Incremental *bool
	Cont        *bool
	Remove      *bool
	RsyncFlags  *[]string
	Checksum    *bool
	Delete      *bool
	Cwd         *string
	LinkPath    *string

	LogDestination   *string
	LogArchiveFormat *string
	LogArchiveLevel  *string

	Lock         *bool
	LockWait     *int
	RequireMount *bool

	PreRunHooks  *string
	PostRunHooks *string
	FailFast     *bool
}

func registerGlobalFlags(fs *pflag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.Quiet = fs.BoolP("quiet", "q", false, "Only print warnings and errors to the console.")
}

func registerSeriesFlags(fs *pflag.FlagSet, f *cliFlags) {
	f.Destination = fs.StringP("destination", "d", "", "Destination directory holding the backup series. (Required)")
	f.SeriesName = fs.String("series-name", "", "Name of the series slot inside the destination (default 'active_series').")
}

func registerBackupFlags(fs *pflag.FlagSet, f *cliFlags) {
	f.Sources = fs.StringArrayP("source", "s", nil, "Source to back up. Repeat for several sources. A trailing separator copies the directory contents. (Required)")
	f.Incremental = fs.BoolP("incremental", "i", false, "Hard-link the previous snapshot and only transfer changes.")
	f.Cont = fs.BoolP("cont", "c", false, "Continue an interrupted run in its snapshot directory.")
	f.Remove = fs.BoolP("remove", "r", false, "Remove an interrupted run and start clean.")
	f.RsyncFlags = fs.StringArrayP("flag", "f", nil, "Flag passed through to rsync. Repeatable; quoted values are split shell-style.")
	f.Checksum = fs.Bool("checksum", false, "Compare files by checksum (rsync -c). Significant slow down.")
	f.Delete = fs.Bool("delete", true, "Remove files from the snapshot that no longer exist in the sources.")
	f.Cwd = fs.StringP("cwd", "w", "", "Working directory to change into before the run.")
	f.LinkPath = fs.String("link-path", "", "Symlink to point at the most recent completed snapshot.")

	f.LogDestination = fs.StringP("log-destination", "l", "", "Directory for run log files (default 'logs').")
	f.LogArchiveFormat = fs.String("log-archive-format", "", "Format for archiving previous run logs: 'zip', 'gz', or 'zst'.")
	f.LogArchiveLevel = fs.String("log-archive-level", "", "Compression level: 'default', 'fastest', 'better', 'best'.")

	f.Lock = fs.Bool("lock", false, "Take an advisory lock on the destination for the duration of the run.")
	f.LockWait = fs.Int("lock-wait", 0, "Seconds to wait for the destination lock (0 fails immediately).")
	f.RequireMount = fs.Bool("require-mount", false, "Refuse destinations on the system disk or on a missing volume.")

	f.PreRunHooks = fs.String("pre-run-hooks", "", "Comma-separated list of commands to run before the run.")
	f.PostRunHooks = fs.String("post-run-hooks", "", "Comma-separated list of commands to run after the run.")
	f.FailFast = fs.Bool("fail-fast", false, "Abort on the first failing hook command.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the command and
// a map holding only the flags that were explicitly set.
func Parse(args []string) (Command, map[string]any, error) {
	if len(args) == 0 {
		printTopLevelUsage()
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])
	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		printTopLevelUsage()
		return None, nil, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}

	f := &cliFlags{}
	fs := pflag.NewFlagSet(command.String(), pflag.ContinueOnError)
	fs.SetOutput(UsageOutput)
	fs.SortFlags = false

	var desc string
	switch command {
	case Backup:
		desc = "Run one backup of the sources into the series."
		registerGlobalFlags(fs, f)
		registerSeriesFlags(fs, f)
		registerBackupFlags(fs, f)
	case Status:
		desc = "Show the series slot, the ACTIVE marker and the completed snapshots."
		registerGlobalFlags(fs, f)
		registerSeriesFlags(fs, f)
	case Version:
		return command, nil, nil
	default:
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}

	fs.Usage = func() { printSubcommandUsage(command, desc, fs) }

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return None, nil, nil
		}
		return command, nil, err
	}
	if fs.NArg() > 0 {
		return command, nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	flagMap, err := flagsToMap(fs, f)
	return command, flagMap, err
}

func flagsToMap(fs *pflag.FlagSet, f *cliFlags) (map[string]any, error) {
	flagMap := make(map[string]any)

	addIfUsed(flagMap, fs, "log-level", f.LogLevel)
	addIfUsed(flagMap, fs, "quiet", f.Quiet)

	addIfUsed(flagMap, fs, "destination", f.Destination)
	addIfUsed(flagMap, fs, "series-name", f.SeriesName)

	addIfUsed(flagMap, fs, "source", f.Sources)
	addIfUsed(flagMap, fs, "incremental", f.Incremental)
	addIfUsed(flagMap, fs, "cont", f.Cont)
	addIfUsed(flagMap, fs, "remove", f.Remove)
	addIfUsed(flagMap, fs, "checksum", f.Checksum)
	addIfUsed(flagMap, fs, "delete", f.Delete)
	addIfUsed(flagMap, fs, "cwd", f.Cwd)
	addIfUsed(flagMap, fs, "link-path", f.LinkPath)

	addIfUsed(flagMap, fs, "log-destination", f.LogDestination)
	addIfUsed(flagMap, fs, "log-archive-format", f.LogArchiveFormat)
	addIfUsed(flagMap, fs, "log-archive-level", f.LogArchiveLevel)

	addIfUsed(flagMap, fs, "lock", f.Lock)
	addIfUsed(flagMap, fs, "lock-wait", f.LockWait)
	addIfUsed(flagMap, fs, "require-mount", f.RequireMount)
	addIfUsed(flagMap, fs, "fail-fast", f.FailFast)

	addParsedIfUsed(flagMap, fs, "pre-run-hooks", f.PreRunHooks, ParseCmdList)
	addParsedIfUsed(flagMap, fs, "post-run-hooks", f.PostRunHooks, ParseCmdList)

	if f.RsyncFlags != nil && fs.Changed("flag") {
		split, err := ParseRsyncFlags(*f.RsyncFlags)
		if err != nil {
			return nil, err
		}
		flagMap["flag"] = split
	}
	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, fs *pflag.FlagSet, name string, ptr *T) {
	if ptr != nil && fs.Changed(name) {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]any, fs *pflag.FlagSet, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && fs.Changed(name) {
		flagMap[name] = parser(*ptr)
	}
}

// ParseRsyncFlags splits each pass-through value shell-style, so
// -f "--exclude 'My Files'" yields two rsync arguments.
func ParseRsyncFlags(values []string) ([]string, error) {
	var out []string
	for _, v := range values {
		words, err := shellquote.Split(v)
		if err != nil {
			return nil, fmt.Errorf("invalid rsync flag %q: %w", v, err)
		}
		out = append(out, words...)
	}
	return out, nil
}

func printTopLevelUsage() {
	w := UsageOutput
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(w, "Rolling full and incremental rsync snapshots with crash recovery.\n\n")
	fmt.Fprintf(w, "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  backup      Run one backup into the series\n")
	fmt.Fprintf(w, "  status      Show the state of a series\n")
	fmt.Fprintf(w, "  version     Print the application version\n")
	fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", execName)
}

func printSubcommandUsage(command Command, desc string, fs *pflag.FlagSet) {
	w := UsageOutput
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(w, "Rolling full and incremental rsync snapshots with crash recovery.\n\n")
	fmt.Fprintf(w, "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(w, "%s\n\n", desc)
	fmt.Fprintf(w, "Flags:\n")
	fmt.Fprint(w, fs.FlagUsages())
}

// ParseCmdList parses a comma-separated list of shell-like commands.
// It preserves quotes and handles backslash escapes so they can be interpreted by the shell.
func ParseCmdList(s string) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	appendItem := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	var isEscaped bool
	for _, r := range s {
		if isEscaped {
			current.WriteRune(r)
			isEscaped = false
			continue
		}

		switch {
		case r == '\\':
			isEscaped = true
			current.WriteRune(r)
		case r == '\'' || r == '"':
			if quoteChar == 0 {
				quoteChar = r
			} else if quoteChar == r {
				quoteChar = 0
			}
			current.WriteRune(r)
		case r == ',' && quoteChar == 0:
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
