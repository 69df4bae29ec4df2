//go:build !windows

package syncexec

import (
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// createCommand creates the sync command in its own process group, so that a
// cancelled run terminates rsync together with the helpers it forks.
func (e *Executor) createCommand(ctx context.Context, name string, args []string) *exec.Cmd {
	cmd := e.commandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	return cmd
}
