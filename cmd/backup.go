package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/paulschiretz/pgl-series/pkg/buildinfo"
	"github.com/paulschiretz/pgl-series/pkg/config"
	"github.com/paulschiretz/pgl-series/pkg/engine"
	"github.com/paulschiretz/pgl-series/pkg/flagparse"
	"github.com/paulschiretz/pgl-series/pkg/hook"
	"github.com/paulschiretz/pgl-series/pkg/logarchive"
	"github.com/paulschiretz/pgl-series/pkg/materialize"
	"github.com/paulschiretz/pgl-series/pkg/planner"
	"github.com/paulschiretz/pgl-series/pkg/plog"
	"github.com/paulschiretz/pgl-series/pkg/runerr"
	"github.com/paulschiretz/pgl-series/pkg/syncexec"
	"github.com/paulschiretz/pgl-series/pkg/util"
)

// RunBackup handles the logic for the main backup execution.
func RunBackup(ctx context.Context, log *plog.Logger, flagMap map[string]any) error {
	// For backup, the destination flag is mandatory.
	destination, ok := flagMap["destination"].(string)
	if !ok || destination == "" {
		return runerr.Newf(runerr.InvalidRequest, "backup", "the --destination flag is required to run a backup")
	}

	// The working directory changes first so relative paths resolve against it.
	workingDirectory, err := changeWorkingDirectory(flagMap)
	if err != nil {
		return err
	}

	// Load config from the destination, or use defaults if not found.
	loadedConfig, err := config.Load(log, destination)
	if err != nil {
		return fmt.Errorf("failed to load configuration from destination: %w", err)
	}

	// Merge the flag values over the loaded config to get the final run config.
	runConfig := config.MergeConfigWithFlags(log, flagparse.Backup, loadedConfig, flagMap)
	if workingDirectory != "" {
		runConfig.Runtime.WorkingDirectory = workingDirectory
	}

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(); err != nil {
		return err
	}

	applyLogSettings(log, runConfig)
	runConfig.LogSummary(log)

	// Create the runner and feed it with our leaf workers
	runner := engine.NewRunner(
		log,
		syncexec.New(log, nil, exec.CommandContext),
		materialize.New(log),
		hook.NewHookExecutor(log, exec.CommandContext, os.Environ()),
		logarchive.New(log),
	)

	// Get the Plan
	runPlan, err := planner.GenerateRunPlan(runConfig, time.Now())
	if err != nil {
		return err
	}

	// Execute the plan. The runner logs the failure and the run summary itself.
	res := runner.ExecuteBackup(ctx, runPlan)
	if !res.Success {
		return res.Err
	}
	log.Info(buildinfo.Name+" finished successfully.", "snapshot", res.Snapshot)
	return nil
}

// changeWorkingDirectory switches to the --cwd directory when one was given and
// returns its absolute path.
func changeWorkingDirectory(flagMap map[string]any) (string, error) {
	cwd, ok := flagMap["cwd"].(string)
	if !ok || cwd == "" {
		return "", nil
	}
	abs, err := util.ExpandedAbsPath(cwd)
	if err != nil {
		return "", runerr.New(runerr.InvalidRequest, "change working directory", err)
	}
	if err := os.Chdir(abs); err != nil {
		return "", runerr.New(runerr.InvalidRequest, "change working directory", err)
	}
	return abs, nil
}

// applyLogSettings sets the log level and quiet mode. The level was checked by Validate.
func applyLogSettings(log *plog.Logger, cfg config.Config) {
	if level, err := plog.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	log.SetQuiet(cfg.Runtime.Quiet)
}
