package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulschiretz/pgl-series/cmd"
	"github.com/paulschiretz/pgl-series/pkg/buildinfo"
	"github.com/paulschiretz/pgl-series/pkg/flagparse"
	"github.com/paulschiretz/pgl-series/pkg/plog"
)

// run encapsulates the main application logic and returns an error if something
// goes wrong, allowing the main function to handle exit codes.
func run(ctx context.Context, log *plog.Logger, args []string) error {
	command, flagMap, err := flagparse.Parse(args)
	if err != nil {
		return err
	}

	switch command {
	case flagparse.None:
		return nil
	case flagparse.Backup:
		log.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())
		return cmd.RunBackup(ctx, log, flagMap)
	case flagparse.Status:
		return cmd.RunStatus(ctx, log, flagMap, os.Stdout)
	case flagparse.Version:
		return cmd.RunVersion(buildinfo.Name, buildinfo.Version)
	default:
		return fmt.Errorf("internal error: unknown command %s", command)
	}
}

func main() {
	// The context is canceled on an interrupt, which stops rsync and running hooks.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := plog.NewConsole(plog.LevelInfo)
	if err := run(ctx, log, os.Args[1:]); err != nil {
		log.Error(buildinfo.Name+" exited with error", "error", err)
		stop()
		os.Exit(1)
	}
}
