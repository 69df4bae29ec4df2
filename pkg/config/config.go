package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-series/pkg/buildinfo"
	"github.com/paulschiretz/pgl-series/pkg/flagparse"
	"github.com/paulschiretz/pgl-series/pkg/logarchive"
	"github.com/paulschiretz/pgl-series/pkg/placement"
	"github.com/paulschiretz/pgl-series/pkg/plog"
	"github.com/paulschiretz/pgl-series/pkg/runerr"
	"github.com/paulschiretz/pgl-series/pkg/syncexec"
	"github.com/paulschiretz/pgl-series/pkg/util"
)

// ConfigFileName is the name of the optional configuration file in the destination root.
const ConfigFileName = "pgl-series.config.json"

type SyncConfig struct {
	// Checksum makes rsync compare file checksums (-avc). Significant slow down.
	Checksum bool `json:"checksum"`
	Delete   bool `json:"delete"`
	// Note: omitempty is intentionally not used so the field shows up in hand-written config files.
	Flags []string `json:"flags"`
}

type LogsConfig struct {
	Directory      string `json:"directory"`
	MaxSizeMB      int    `json:"maxSizeMB"`
	ArchiveFormat  string `json:"archiveFormat"`
	ArchiveLevel   string `json:"archiveLevel"`
	ArchiveWorkers int    `json:"archiveWorkers"`
}

type LockConfig struct {
	Enabled     bool `json:"enabled"`
	WaitSeconds int  `json:"waitSeconds"`
}

type PreflightConfig struct {
	RequireMount bool `json:"requireMount"`
}

type HooksConfig struct {
	// PreRun and PostRun are executed through the platform shell.
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PreRun   []string `json:"preRun"`
	PostRun  []string `json:"postRun"`
	FailFast bool     `json:"failFast"`
}

// RuntimeConfig holds per-invocation settings that never come from the config file.
type RuntimeConfig struct {
	Incremental      bool
	Continue         bool
	Discard          bool
	WorkingDirectory string
	Quiet            bool
}

type Config struct {
	Version     string          `json:"version"`
	Destination string          `json:"-"` // Never added to config file
	Runtime     RuntimeConfig   `json:"-"` // Never added to config file
	Sources     []string        `json:"sources"`
	SeriesName  string          `json:"seriesName"`
	LogLevel    string          `json:"logLevel"`
	LinkPath    string          `json:"linkPath"`
	Sync        SyncConfig      `json:"sync"`
	Logs        LogsConfig      `json:"logs"`
	Lock        LockConfig      `json:"lock"`
	Preflight   PreflightConfig `json:"preflight"`
	Hooks       HooksConfig     `json:"hooks"`
}

// NewDefault returns a Config with the defaults of a plain full run.
func NewDefault() Config {
	return Config{
		Version:    buildinfo.Version,
		Sources:    []string{}, // Intentionally empty to force user configuration.
		SeriesName: placement.DefaultSeriesName,
		LogLevel:   "info",
		Sync: SyncConfig{
			Checksum: false,
			Delete:   true, // Snapshots mirror the sources.
			Flags:    []string{},
		},
		Logs: LogsConfig{
			Directory:      "logs", // Relative to the working directory.
			MaxSizeMB:      100,
			ArchiveFormat:  logarchive.Zip.String(),
			ArchiveLevel:   logarchive.Default.String(),
			ArchiveWorkers: 1,
		},
		Lock: LockConfig{
			Enabled:     false,
			WaitSeconds: 0,
		},
		Hooks: HooksConfig{
			PreRun:  []string{},
			PostRun: []string{},
		},
	}
}

// Load reads "pgl-series.config.json" from the destination root.
// A missing file (or a destination that does not exist yet) yields the defaults.
func Load(log *plog.Logger, destination string) (Config, error) {
	absDestination, err := util.ExpandedAbsPath(destination)
	if err != nil {
		return Config{}, runerr.New(runerr.InvalidRequest, "load config", fmt.Errorf("could not determine absolute path for destination %s: %w", destination, err))
	}

	configPath := filepath.Join(absDestination, ConfigFileName)
	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := NewDefault()
			cfg.Destination = absDestination
			return cfg, nil
		}
		return Config{}, runerr.New(runerr.FilesystemError, "load config", fmt.Errorf("error opening config file %s: %w", configPath, err))
	}
	defer file.Close()

	log.Info("Loading configuration", "path", configPath)
	config := NewDefault()
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return Config{}, runerr.New(runerr.InvalidRequest, "load config", fmt.Errorf("error parsing config file %s: %w", configPath, err))
	}
	config.Destination = absDestination
	config.Version = buildinfo.Version
	return config, nil
}

// Validate normalizes paths and rejects inconsistent settings with runerr.InvalidRequest.
// Source paths keep a trailing separator since rsync copies the directory contents
// rather than the directory itself in that case.
func (c *Config) Validate() error {
	invalid := func(format string, a ...any) error {
		return runerr.Newf(runerr.InvalidRequest, "validate config", format, a...)
	}

	if c.Destination == "" {
		return invalid("destination path cannot be empty")
	}
	if len(c.Sources) == 0 {
		return invalid("at least one source is required")
	}
	if c.Runtime.Continue && c.Runtime.Discard {
		return invalid("continue and remove cannot both be requested")
	}

	var err error
	if c.Runtime.WorkingDirectory != "" {
		if c.Runtime.WorkingDirectory, err = util.ExpandedAbsPath(c.Runtime.WorkingDirectory); err != nil {
			return invalid("could not expand working directory: %v", err)
		}
	}
	if c.Destination, err = util.ExpandedAbsPath(c.Destination); err != nil {
		return invalid("could not expand destination path: %v", err)
	}

	sources := make([]string, 0, len(c.Sources))
	for _, src := range c.Sources {
		if strings.TrimSpace(src) == "" {
			return invalid("source path cannot be empty")
		}
		norm, err := normalizeSource(src)
		if err != nil {
			return invalid("could not expand source path %q: %v", src, err)
		}
		sources = append(sources, norm)
	}
	c.Sources = sources

	if c.SeriesName == "" {
		return invalid("seriesName cannot be empty")
	}
	if strings.ContainsAny(c.SeriesName, `\/`) || c.SeriesName == "." || c.SeriesName == ".." {
		return invalid("seriesName cannot contain path separators ('/' or '\\')")
	}

	if _, err := plog.ParseLevel(c.LogLevel); err != nil {
		return invalid("%v", err)
	}
	if _, err := logarchive.ParseFormat(c.Logs.ArchiveFormat); err != nil {
		return invalid("%v", err)
	}
	if _, err := logarchive.ParseLevel(c.Logs.ArchiveLevel); err != nil {
		return invalid("%v", err)
	}
	if c.Logs.ArchiveWorkers < 1 {
		return invalid("logs.archiveWorkers must be at least 1")
	}
	if c.Logs.MaxSizeMB < 1 {
		return invalid("logs.maxSizeMB must be at least 1")
	}
	if c.Lock.WaitSeconds < 0 {
		return invalid("lock.waitSeconds cannot be negative")
	}

	if err := c.SyncPolicy().Validate(); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// normalizeSource expands and absolutizes a source path without dropping a trailing separator.
func normalizeSource(src string) (string, error) {
	trailing := strings.HasSuffix(src, "/") || strings.HasSuffix(src, string(filepath.Separator))
	abs, err := util.ExpandedAbsPath(src)
	if err != nil {
		return "", err
	}
	if trailing && !strings.HasSuffix(abs, string(filepath.Separator)) {
		abs += string(filepath.Separator)
	}
	return abs, nil
}

// SyncPolicy returns the rsync policy described by the config.
func (c *Config) SyncPolicy() syncexec.Policy {
	return syncexec.Policy{
		Checksum:   c.Sync.Checksum,
		Delete:     c.Sync.Delete,
		ExtraFlags: c.Sync.Flags,
	}
}

// LogDirectory resolves the run log directory against the working directory.
func (c *Config) LogDirectory() string {
	dir := c.Logs.Directory
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	base := c.Runtime.WorkingDirectory
	if base == "" {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		}
	}
	return filepath.Join(base, dir)
}

// LockWait is the configured lock wait as a duration.
func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Lock.WaitSeconds) * time.Second
}

// LogSummary logs the effective configuration.
func (c *Config) LogSummary(log *plog.Logger) {
	runType := "full"
	if c.Runtime.Incremental {
		runType = "incremental"
	}
	logArgs := []any{
		"type", runType,
		"log_level", c.LogLevel,
		"destination", c.Destination,
		"series", c.SeriesName,
		"sources", strings.Join(c.Sources, ", "),
		"rsync_flags", strings.Join(c.SyncPolicy().Flags(), " "),
		"log_dir", c.LogDirectory(),
	}
	if c.Runtime.Continue {
		logArgs = append(logArgs, "continue", true)
	}
	if c.Runtime.Discard {
		logArgs = append(logArgs, "remove_failed", true)
	}
	if c.Runtime.WorkingDirectory != "" {
		logArgs = append(logArgs, "cwd", c.Runtime.WorkingDirectory)
	}
	if c.LinkPath != "" {
		logArgs = append(logArgs, "link_path", c.LinkPath)
	}
	logArgs = append(logArgs, "log_archive", fmt.Sprintf("%s (l:%s w:%d)", c.Logs.ArchiveFormat, c.Logs.ArchiveLevel, c.Logs.ArchiveWorkers))
	if c.Lock.Enabled {
		logArgs = append(logArgs, "lock", fmt.Sprintf("enabled (wait:%ds)", c.Lock.WaitSeconds))
	}
	if c.Preflight.RequireMount {
		logArgs = append(logArgs, "require_mount", true)
	}
	if len(c.Hooks.PreRun) > 0 {
		logArgs = append(logArgs, "pre_run_hooks", strings.Join(c.Hooks.PreRun, "; "))
	}
	if len(c.Hooks.PostRun) > 0 {
		logArgs = append(logArgs, "post_run_hooks", strings.Join(c.Hooks.PostRun, "; "))
	}
	log.Info("Configuration loaded", logArgs...)
}

// MergeConfigWithFlags overlays the flags explicitly provided on the command line
// on top of a base configuration.
func MergeConfigWithFlags(log *plog.Logger, command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "destination":
			merged.Destination = value.(string)
		case "source":
			merged.Sources = value.([]string)
		case "incremental":
			merged.Runtime.Incremental = value.(bool)
		case "cont":
			merged.Runtime.Continue = value.(bool)
		case "remove":
			merged.Runtime.Discard = value.(bool)
		case "cwd":
			merged.Runtime.WorkingDirectory = value.(string)
		case "quiet":
			merged.Runtime.Quiet = value.(bool)
		case "series-name":
			merged.SeriesName = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "link-path":
			merged.LinkPath = value.(string)
		case "flag":
			merged.Sync.Flags = value.([]string)
		case "checksum":
			merged.Sync.Checksum = value.(bool)
		case "delete":
			merged.Sync.Delete = value.(bool)
		case "log-destination":
			merged.Logs.Directory = value.(string)
		case "log-archive-format":
			merged.Logs.ArchiveFormat = value.(string)
		case "log-archive-level":
			merged.Logs.ArchiveLevel = value.(string)
		case "lock":
			merged.Lock.Enabled = value.(bool)
		case "lock-wait":
			merged.Lock.WaitSeconds = value.(int)
		case "require-mount":
			merged.Preflight.RequireMount = value.(bool)
		case "pre-run-hooks":
			merged.Hooks.PreRun = value.([]string)
		case "post-run-hooks":
			merged.Hooks.PostRun = value.([]string)
		case "fail-fast":
			merged.Hooks.FailFast = value.(bool)
		default:
			log.Debug("unhandled flag in MergeConfigWithFlags", "flag", name, "command", command)
		}
	}
	return merged
}
