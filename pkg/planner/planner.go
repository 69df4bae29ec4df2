package planner

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-series/pkg/config"
	"github.com/paulschiretz/pgl-series/pkg/hook"
	"github.com/paulschiretz/pgl-series/pkg/logarchive"
	"github.com/paulschiretz/pgl-series/pkg/placement"
	"github.com/paulschiretz/pgl-series/pkg/preflight"
	"github.com/paulschiretz/pgl-series/pkg/recovery"
	"github.com/paulschiretz/pgl-series/pkg/runerr"
	"github.com/paulschiretz/pgl-series/pkg/seriesindex"
	"github.com/paulschiretz/pgl-series/pkg/syncexec"
)

// RunPlan is everything the runner needs for one backup attempt.
type RunPlan struct {
	Destination      string
	SeriesName       string
	SeriesPath       string
	Timestamp        string
	Type             seriesindex.RunType
	Sources          []string
	WorkingDirectory string

	Recovery  recovery.Request
	Preflight *preflight.Plan
	Policy    syncexec.Policy
	Hooks     *hook.Plan

	LogDir       string
	LogFile      string
	LogMaxSizeMB int
	LogArchive   logarchive.Plan

	LinkPath string
	Lock     bool
	LockWait time.Duration
}

// StatusPlan locates the series inspected by the status command.
type StatusPlan struct {
	Destination string
	SeriesName  string
	SeriesPath  string
}

// GenerateRunPlan derives a run plan from a validated config. now is the
// run's start time; its second-resolution timestamp names the snapshot and the log file.
func GenerateRunPlan(cfg config.Config, now time.Time) (*RunPlan, error) {
	ts := seriesindex.FormatTimestamp(now)

	runType := seriesindex.Full
	if cfg.Runtime.Incremental {
		runType = seriesindex.Incremental
	}

	format, err := logarchive.ParseFormat(cfg.Logs.ArchiveFormat)
	if err != nil {
		return nil, runerr.New(runerr.InvalidRequest, "plan run", err)
	}
	level, err := logarchive.ParseLevel(cfg.Logs.ArchiveLevel)
	if err != nil {
		return nil, runerr.New(runerr.InvalidRequest, "plan run", err)
	}

	p := &RunPlan{
		Destination:      cfg.Destination,
		SeriesName:       cfg.SeriesName,
		SeriesPath:       placement.SeriesPath(cfg.Destination, cfg.SeriesName),
		Timestamp:        ts,
		Type:             runType,
		Sources:          append([]string(nil), cfg.Sources...),
		WorkingDirectory: cfg.Runtime.WorkingDirectory,

		Recovery: recovery.Request{
			Timestamp: ts,
			Type:      runType,
			Continue:  cfg.Runtime.Continue,
			Discard:   cfg.Runtime.Discard,
		},
		Preflight: &preflight.Plan{
			DestinationAccessible: true,
			DestinationWritable:   true,
			RequireMount:          cfg.Preflight.RequireMount,
		},
		Policy: cfg.SyncPolicy(),
		Hooks: &hook.Plan{
			Enabled:         len(cfg.Hooks.PreRun) > 0 || len(cfg.Hooks.PostRun) > 0,
			PreRunCommands:  cfg.Hooks.PreRun,
			PostRunCommands: cfg.Hooks.PostRun,
			FailFast:        cfg.Hooks.FailFast,
		},

		LogDir:       cfg.LogDirectory(),
		LogMaxSizeMB: cfg.Logs.MaxSizeMB,
		LogArchive: logarchive.Plan{
			Format:  format,
			Level:   level,
			Workers: cfg.Logs.ArchiveWorkers,
		},

		LinkPath: cfg.LinkPath,
		Lock:     cfg.Lock.Enabled,
		LockWait: cfg.LockWait(),
	}
	if p.LogDir != "" {
		p.LogFile = filepath.Join(p.LogDir, ts+".log")
	}
	if err := recovery.ValidateRequest(p.Recovery); err != nil {
		return nil, err
	}
	if err := p.Policy.Validate(); err != nil {
		return nil, runerr.New(runerr.InvalidRequest, "plan run", err)
	}
	return p, nil
}

// GenerateStatusPlan derives the status plan from a config.
func GenerateStatusPlan(cfg config.Config) (*StatusPlan, error) {
	if cfg.Destination == "" {
		return nil, runerr.New(runerr.InvalidRequest, "plan status", fmt.Errorf("destination path cannot be empty"))
	}
	return &StatusPlan{
		Destination: cfg.Destination,
		SeriesName:  cfg.SeriesName,
		SeriesPath:  placement.SeriesPath(cfg.Destination, cfg.SeriesName),
	}, nil
}
