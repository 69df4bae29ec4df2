package hook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/paulschiretz/pgl-series/pkg/hints"
	"github.com/paulschiretz/pgl-series/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")
var ErrDisabled = hints.New("hook execution is disabled")

// Env is exported to every hook command so it can find the run's snapshot.
type Env struct {
	Stage       string
	Destination string
	Snapshot    string
	Timestamp   string
	Success     bool
}

func (e Env) vars() []string {
	success := "0"
	if e.Success {
		success = "1"
	}
	return []string{
		"PGL_SERIES_STAGE=" + e.Stage,
		"PGL_SERIES_DESTINATION=" + e.Destination,
		"PGL_SERIES_SNAPSHOT=" + e.Snapshot,
		"PGL_SERIES_TIMESTAMP=" + e.Timestamp,
		"PGL_SERIES_SUCCESS=" + success,
	}
}

type HookExecutor struct {
	log *plog.Logger
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
	baseEnv        []string
}

// NewHookExecutor creates a new HookExecutor. baseEnv is the environment the
// hook variables are appended to, usually os.Environ().
func NewHookExecutor(log *plog.Logger, commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd, baseEnv []string) *HookExecutor {
	return &HookExecutor{
		log:            log,
		commandContext: commandContext,
		baseEnv:        baseEnv,
	}
}

// RunPreHook runs the pre-run commands. A failing command aborts the run only with FailFast.
func (e *HookExecutor) RunPreHook(ctx context.Context, p *Plan, env Env) error {
	env.Stage = "pre"
	return e.run(ctx, "Pre-run", p.PreRunCommands, p, env)
}

// RunPostHook runs the post-run commands.
func (e *HookExecutor) RunPostHook(ctx context.Context, p *Plan, env Env) error {
	env.Stage = "post"
	return e.run(ctx, "Post-run", p.PostRunCommands, p, env)
}

func (e *HookExecutor) run(ctx context.Context, hookName string, commands []string, p *Plan, env Env) error {
	if !p.Enabled {
		return ErrDisabled
	}

	if len(commands) <= 0 {
		return ErrNothingToExecute
	}

	e.log.Info(fmt.Sprintf("Running %s hook commands", hookName))

	for _, hookCommand := range commands {

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		e.log.Info("Executing command", "command", hookCommand)

		cmd := e.createCommand(ctx, hookCommand)
		cmd.Env = append(append([]string{}, e.baseEnv...), env.vars()...)

		// Pipe output to our logger for visibility
		cmd.Stdout = &lineWriter{log: e.log.Info, prefix: hookCommand}
		cmd.Stderr = &lineWriter{log: e.log.Warn, prefix: hookCommand}

		if err := cmd.Run(); err != nil {
			// Check if the context was canceled, which can cause cmd.Wait() to return an error.
			// If so, we should return the context's error to be more specific.
			if errors.Is(ctx.Err(), context.Canceled) {
				return context.Canceled
			}
			if p.FailFast {
				return fmt.Errorf("command '%s' failed: %w", hookCommand, err)
			}
			e.log.Warn("Hook command failed", "command", hookCommand, "error", err)
		}
	}
	return nil
}

// lineWriter forwards complete lines of command output to a log function.
type lineWriter struct {
	log    func(msg string, args ...any)
	prefix string
	buf    []byte
}

var _ io.Writer = (*lineWriter)(nil)

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := strings.IndexByte(string(w.buf), '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimRight(string(w.buf[:i]), "\r"); line != "" {
			w.log(line, "hook", w.prefix)
		}
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}
