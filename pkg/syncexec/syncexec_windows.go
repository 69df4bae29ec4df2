//go:build windows

package syncexec

import (
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// createCommand creates the sync command in a new process group.
func (e *Executor) createCommand(ctx context.Context, name string, args []string) *exec.Cmd {
	cmd := e.commandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	return cmd
}
