package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/paulschiretz/pgl-series/pkg/hints"
	"github.com/paulschiretz/pgl-series/pkg/hook"
	"github.com/paulschiretz/pgl-series/pkg/latestlink"
	"github.com/paulschiretz/pgl-series/pkg/logarchive"
	"github.com/paulschiretz/pgl-series/pkg/materialize"
	"github.com/paulschiretz/pgl-series/pkg/placement"
	"github.com/paulschiretz/pgl-series/pkg/planner"
	"github.com/paulschiretz/pgl-series/pkg/plog"
	"github.com/paulschiretz/pgl-series/pkg/preflight"
	"github.com/paulschiretz/pgl-series/pkg/recovery"
	"github.com/paulschiretz/pgl-series/pkg/runerr"
	"github.com/paulschiretz/pgl-series/pkg/seriesindex"
	"github.com/paulschiretz/pgl-series/pkg/serieslock"
	"github.com/paulschiretz/pgl-series/pkg/syncexec"
	"github.com/paulschiretz/pgl-series/pkg/util"
)

// --- ARCHITECTURAL OVERVIEW: One Run ---
//
// A run walks the series through a fixed sequence. Each step that changes the
// filesystem happens only after every step before it succeeded:
//
//  1. Validate the request and the destination, and check the sources. Nothing is touched yet.
//  2. Load the series index and resolve recovery from a previous failed run.
//     Only the discard policy mutates here (it removes the failed snapshot).
//  3. Place the run: full runs retire the current series slot, incremental runs
//     find their base snapshot.
//  4. Record the ACTIVE marker with status failed and commit the index. From
//     here on a crash leaves a marker the next run must resolve.
//  5. Materialize the target (hard-link clone of the base for incremental runs).
//  6. Sync the sources into the target.
//  7. Promote the marker to a completed record and commit.
//
// Only step 7 makes a snapshot count as complete. The latest link, hooks and
// log archival are convenience steps whose failures never fail the run.

// Syncer mirrors sources into a snapshot directory.
type Syncer interface {
	Sync(ctx context.Context, sources []string, destination string, policy syncexec.Policy) (syncexec.Result, error)
}

// Materializer prepares the snapshot directory before the sync.
type Materializer interface {
	Materialize(ctx context.Context, target, base string, continuing bool) (materialize.Stats, error)
}

// HookRunner runs the pre and post run hooks.
type HookRunner interface {
	RunPreHook(ctx context.Context, p *hook.Plan, env hook.Env) error
	RunPostHook(ctx context.Context, p *hook.Plan, env hook.Env) error
}

// LogArchiver compresses previous run logs.
type LogArchiver interface {
	Archive(ctx context.Context, logDir, exclude string, p logarchive.Plan) (int, error)
}

// Result is the outcome of one backup run.
type Result struct {
	Success    bool
	Timestamp  string
	Type       seriesindex.RunType
	Snapshot   string
	Retired    string
	Discarded  string
	Summary    syncexec.ChangeSummary
	Diagnostic string
	Err        error
}

// Runner orchestrates a backup run over its leaf workers.
type Runner struct {
	log          *plog.Logger
	syncer       Syncer
	materializer Materializer
	hooks        HookRunner
	archiver     LogArchiver
	resolver     *recovery.Resolver
	placer       *placement.Planner
	now          func() time.Time
}

// NewRunner creates a Runner. The recovery and placement steps are built from log.
func NewRunner(log *plog.Logger, syncer Syncer, materializer Materializer, hooks HookRunner, archiver LogArchiver) *Runner {
	return &Runner{
		log:          log,
		syncer:       syncer,
		materializer: materializer,
		hooks:        hooks,
		archiver:     archiver,
		resolver:     recovery.New(log),
		placer:       placement.New(log),
		now:          time.Now,
	}
}

// ExecuteBackup runs one backup described by p and reports a single outcome.
// The error is logged with context, and a closing summary of all warnings and
// errors of the run is written before it returns.
func (r *Runner) ExecuteBackup(ctx context.Context, p *planner.RunPlan) Result {
	res := Result{Timestamp: p.Timestamp, Type: p.Type}
	startTime := r.now()

	closeRunLog, err := r.attachRunLog(p)
	if err == nil {
		defer func() {
			if cerr := closeRunLog(); cerr != nil {
				r.log.Warn("Could not close run log", "error", cerr)
			}
		}()
		r.archivePreviousLogs(ctx, p)
		err = r.executeBackup(ctx, p, &res)
	}

	duration := r.now().Sub(startTime).Round(time.Millisecond)
	if err != nil {
		res.Err = err
		res.Diagnostic = fmt.Sprintf("%s: %v", runerr.KindOf(err), err)
		r.log.Error("Backup failed", "kind", runerr.KindOf(err), "error", err, "duration", duration)
		r.log.Summary("Backup failed")
		return res
	}

	res.Success = true
	r.log.Info("Backup completed", "snapshot", res.Snapshot, "duration", duration)
	r.log.Summary("Backup terminated successfully")
	return res
}

func (r *Runner) attachRunLog(p *planner.RunPlan) (func() error, error) {
	if p.LogFile == "" {
		return func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(p.LogFile), util.UserWritableDirPerms); err != nil {
		return nil, runerr.New(runerr.FilesystemError, "create log directory", err)
	}
	closeLog, err := r.log.AttachRunLog(p.LogFile, p.LogMaxSizeMB)
	if err != nil {
		if errors.Is(err, plog.ErrRunLogExists) {
			return nil, runerr.Newf(runerr.InvalidRequest, "attach run log",
				"a run with timestamp %s already wrote %s; wait at least a second between runs", p.Timestamp, p.LogFile)
		}
		return nil, runerr.New(runerr.FilesystemError, "attach run log", err)
	}
	r.log.Info("Writing log", "path", p.LogFile)
	return closeLog, nil
}

func (r *Runner) archivePreviousLogs(ctx context.Context, p *planner.RunPlan) {
	if p.LogDir == "" {
		return
	}
	n, err := r.archiver.Archive(ctx, p.LogDir, p.LogFile, p.LogArchive)
	switch {
	case hints.IsHint(err):
		r.log.Debug("Skipping log archival", "reason", err)
	case err != nil:
		r.log.Warn("Could not archive previous run logs", "error", err)
	default:
		r.log.Info("Archived previous run logs", "count", n, "format", p.LogArchive.Format)
	}
}

func (r *Runner) executeBackup(ctx context.Context, p *planner.RunPlan, res *Result) (retErr error) {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := recovery.ValidateRequest(p.Recovery); err != nil {
		return err
	}
	if err := preflight.Run(*p.Preflight, p.Destination); err != nil {
		return err
	}
	// Checked again by the syncer; failing here leaves the series untouched.
	if err := syncexec.CheckSources(p.Sources); err != nil {
		return err
	}

	if p.Lock {
		release, err := r.acquireDestinationLock(ctx, p)
		if err != nil {
			return err
		}
		defer release()
	}

	env := hook.Env{Destination: p.Destination, Timestamp: p.Timestamp}
	if err := r.hooks.RunPreHook(ctx, p.Hooks, env); err != nil {
		if !hints.IsHint(err) {
			return fmt.Errorf("pre-run hook failed: %w", err)
		}
		r.log.Debug("Skipping pre-run hooks", "reason", err)
	}
	defer func() {
		env.Snapshot = res.Snapshot
		env.Timestamp = res.Timestamp
		env.Success = retErr == nil
		if err := r.hooks.RunPostHook(ctx, p.Hooks, env); err != nil {
			switch {
			case hints.IsHint(err):
				r.log.Debug("Skipping post-run hooks", "reason", err)
			case errors.Is(err, context.Canceled):
				r.log.Info("Post-run hooks skipped due to cancellation")
			default:
				r.log.Warn("Post-run hook failed", "error", err)
			}
		}
	}()

	r.log.Info("Starting backup", "destination", p.Destination, "series", p.SeriesPath, "type", p.Type, "timestamp", p.Timestamp)

	idx, err := seriesindex.Load(p.SeriesPath)
	if err != nil {
		return err
	}

	decision, err := r.resolver.Resolve(idx, p.SeriesPath, p.Recovery)
	if err != nil {
		return err
	}
	res.Discarded = decision.Discarded

	plan, err := r.placer.Plan(idx, placement.Request{
		Destination: p.Destination,
		SeriesName:  p.SeriesName,
		Timestamp:   decision.Timestamp,
		Type:        decision.Type,
		Continuing:  decision.Continuing,
	})
	if err != nil {
		return err
	}
	idx = plan.Index
	res.Timestamp = decision.Timestamp
	res.Type = plan.Type
	res.Retired = plan.Retired
	res.Snapshot = plan.Target

	cwd := p.WorkingDirectory
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	idx.BeginActive(seriesindex.Record{
		Timestamp:        decision.Timestamp,
		Type:             plan.Type,
		Sources:          p.Sources,
		BackupRoot:       p.Destination,
		WorkingDirectory: cwd,
		RunID:            uuid.NewString(),
		Started:          r.now(),
	})
	if err := idx.Commit(); err != nil {
		return err
	}
	r.log.Debug("Recorded ACTIVE marker", "index", idx.Path(), "timestamp", decision.Timestamp)

	stats, err := r.materializer.Materialize(ctx, plan.Target, plan.Base, decision.Continuing)
	if err != nil {
		return err
	}
	if plan.Base != "" && !decision.Continuing {
		r.log.Info("Seeded snapshot from base", "base", plan.BaseTimestamp, "dirs", stats.Dirs, "files", stats.Files, "symlinks", stats.Symlinks)
	}

	syncResult, err := r.syncer.Sync(ctx, p.Sources, plan.Target, p.Policy)
	if err != nil {
		return err
	}
	res.Summary = syncResult.Summary

	if _, err := idx.PromoteActive(syncResult.Command, r.now()); err != nil {
		return err
	}
	if err := idx.Commit(); err != nil {
		return err
	}
	r.log.Info("Snapshot complete", "timestamp", decision.Timestamp, "type", plan.Type)
	r.log.Info("Changes", syncResult.Summary.LogArgs()...)

	if err := latestlink.Update(p.LinkPath, plan.Target); err != nil {
		if hints.IsHint(err) {
			r.log.Debug("Skipping latest link", "reason", err)
		} else {
			r.log.Warn("Could not update latest link", "link", p.LinkPath, "error", err)
		}
	} else {
		r.log.Info("Updated latest link", "link", p.LinkPath, "target", plan.Target)
	}
	return nil
}

// acquireDestinationLock creates the destination and takes the advisory lock inside it.
func (r *Runner) acquireDestinationLock(ctx context.Context, p *planner.RunPlan) (func(), error) {
	if err := os.MkdirAll(p.Destination, util.UserWritableDirPerms); err != nil {
		return nil, runerr.New(runerr.FilesystemError, "create destination", err)
	}
	r.log.Debug("Attempting to acquire lock", "path", p.Destination)
	lock, err := serieslock.Acquire(ctx, p.Destination, p.LockWait)
	if err != nil {
		if errors.Is(err, serieslock.ErrLocked) {
			return nil, runerr.New(runerr.ConflictingActiveRun, "lock destination", err)
		}
		return nil, runerr.New(runerr.FilesystemError, "lock destination", err)
	}
	r.log.Debug("Lock acquired successfully", "path", lock.Path())
	return func() {
		if err := lock.Release(); err != nil {
			r.log.Warn("Could not release lock", "path", lock.Path(), "error", err)
		}
	}, nil
}
