// Package syncexec runs the external rsync tool that mirrors the sources into
// a snapshot directory and derives a change summary from its output.
package syncexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"
	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-series/pkg/plog"
	"github.com/paulschiretz/pgl-series/pkg/runerr"
)

// DefaultTool is the sync program the executor runs.
const DefaultTool = "rsync"

// stderrTail is how many stderr lines are kept for the failure diagnostic.
const stderrTail = 10

// Result is the outcome of a successful sync.
type Result struct {
	Summary ChangeSummary
	// Command is the literal invocation, recorded for audit purposes.
	Command string
}

// Executor runs the sync tool.
type Executor struct {
	log            *plog.Logger
	translator     PathTranslator
	commandContext CommandContext
	tool           string
}

// New returns an Executor. A nil translator selects DefaultTranslator.
func New(log *plog.Logger, translator PathTranslator, commandContext CommandContext) *Executor {
	if commandContext == nil {
		commandContext = exec.CommandContext
	}
	if translator == nil {
		translator = DefaultTranslator(commandContext)
	}
	return &Executor{
		log:            log,
		translator:     translator,
		commandContext: commandContext,
		tool:           DefaultTool,
	}
}

// Command returns the program and arguments that mirror sources into destination.
func (e *Executor) Command(ctx context.Context, sources []string, destination string, policy Policy) (string, []string, error) {
	args := policy.Flags()
	for _, src := range sources {
		p, err := e.translator.Translate(ctx, src)
		if err != nil {
			return "", nil, runerr.New(runerr.SyncFailure, "translate source", err)
		}
		args = append(args, p)
	}
	dst, err := e.translator.Translate(ctx, destination)
	if err != nil {
		return "", nil, runerr.New(runerr.SyncFailure, "translate destination", err)
	}
	args = append(args, dst)

	name, args := e.translator.Wrap(e.tool, args)
	return name, args, nil
}

// Sync mirrors sources into destination. It fails with EmptySource before
// running anything when a source is missing or empty, and with SyncFailure
// when the tool exits non-zero or prints nothing.
func (e *Executor) Sync(ctx context.Context, sources []string, destination string, policy Policy) (Result, error) {
	if err := policy.Validate(); err != nil {
		return Result{}, runerr.New(runerr.InvalidRequest, "sync", err)
	}
	if err := CheckSources(sources); err != nil {
		return Result{}, err
	}

	name, args, err := e.Command(ctx, sources, destination, policy)
	if err != nil {
		return Result{}, err
	}
	literal := shellquote.Join(append([]string{name}, args...)...)
	e.log.Info("Mirroring sources", "sources", sources, "destination", destination, "translator", e.translator.Name())
	e.log.Info("Sync command", "command", literal)

	cmd := e.createCommand(ctx, name, args)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, runerr.New(runerr.SyncFailure, "sync", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, runerr.New(runerr.SyncFailure, "sync", err)
	}
	if err := cmd.Start(); err != nil {
		return Result{}, runerr.New(runerr.SyncFailure, "sync", fmt.Errorf("could not start %s: %w", name, err))
	}

	var (
		summary   ChangeSummary
		outLines  int
		mu        sync.Mutex
		errLines  []string
		readGroup errgroup.Group
	)
	readGroup.Go(func() error {
		return scanLines(stdout, func(line string) {
			outLines++
			summary.AddLine(line)
			e.log.Notice(line)
		})
	})
	readGroup.Go(func() error {
		return scanLines(stderr, func(line string) {
			mu.Lock()
			errLines = append(errLines, line)
			if len(errLines) > stderrTail {
				errLines = errLines[1:]
			}
			mu.Unlock()
			e.log.Warn("rsync: " + line)
		})
	})
	readErr := readGroup.Wait()
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, runerr.New(runerr.SyncFailure, "sync", ctxErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return Result{}, runerr.New(runerr.SyncFailure, "sync",
				fmt.Errorf("%s exited with status %d: %s", name, exitErr.ExitCode(), strings.Join(errLines, "; ")))
		}
		return Result{}, runerr.New(runerr.SyncFailure, "sync", waitErr)
	}
	if readErr != nil {
		return Result{}, runerr.New(runerr.SyncFailure, "sync", fmt.Errorf("reading %s output: %w", name, readErr))
	}
	if outLines == 0 {
		return Result{}, runerr.Newf(runerr.SyncFailure, "sync", "%s produced no output", name)
	}

	e.log.Info("Sync finished", summary.LogArgs()...)
	return Result{Summary: summary, Command: literal}, nil
}

func scanLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r"); line != "" {
			fn(line)
		}
	}
	return scanner.Err()
}
