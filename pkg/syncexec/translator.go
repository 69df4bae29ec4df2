package syncexec

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-series/pkg/util"
)

// CommandContext creates the commands the executor runs. exec.CommandContext
// in production, a helper process in tests.
type CommandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd

// PathTranslator maps host paths to the paths the sync tool sees and wraps the
// tool invocation accordingly.
type PathTranslator interface {
	// Name identifies the translator in logs.
	Name() string
	// Translate converts a host path into a path the sync tool understands.
	Translate(ctx context.Context, path string) (string, error)
	// Wrap returns the program and arguments that run tool with args.
	Wrap(tool string, args []string) (string, []string)
}

// Identity passes paths and the tool invocation through unchanged.
type Identity struct{}

func (Identity) Name() string { return "identity" }

func (Identity) Translate(_ context.Context, path string) (string, error) { return path, nil }

func (Identity) Wrap(tool string, args []string) (string, []string) { return tool, args }

// WSL runs the sync tool inside the Windows Subsystem for Linux and converts
// Windows paths with wslpath.
type WSL struct {
	commandContext CommandContext
}

// NewWSL returns a WSL translator that runs wsl through commandContext.
func NewWSL(commandContext CommandContext) *WSL {
	return &WSL{commandContext: commandContext}
}

func (w *WSL) Name() string { return "wsl" }

func (w *WSL) Translate(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("could not determine absolute path for %s: %w", path, err)
	}
	out, err := w.commandContext(ctx, "wsl", "wslpath", filepath.ToSlash(abs)).Output()
	if err != nil {
		return "", fmt.Errorf("wslpath failed for %s: %w", path, err)
	}
	translated := strings.TrimRight(string(out), "\r\n")
	if translated == "" {
		return "", fmt.Errorf("wslpath returned no path for %s", path)
	}
	// A trailing separator changes what rsync copies, keep it.
	if hasTrailingSeparator(path) && !strings.HasSuffix(translated, "/") {
		translated += "/"
	}
	return translated, nil
}

func (w *WSL) Wrap(tool string, args []string) (string, []string) {
	return "wsl", append([]string{tool}, args...)
}

// DefaultTranslator selects the translator for the host once at startup.
func DefaultTranslator(commandContext CommandContext) PathTranslator {
	if util.IsWindows() {
		return NewWSL(commandContext)
	}
	return Identity{}
}

func hasTrailingSeparator(path string) bool {
	return strings.HasSuffix(path, "/") || strings.HasSuffix(path, `\`)
}
