//go:build !windows

package hook

import (
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// createCommand creates an exec.Cmd for a hook on Unix-like systems.
func (e *HookExecutor) createCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := e.commandContext(ctx, "/bin/sh", "-c", command)
	// Run the hook in its own process group and kill the whole group when the
	// context is canceled, so commands started by the hook do not outlive it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	return cmd
}
