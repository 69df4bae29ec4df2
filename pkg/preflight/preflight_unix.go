//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// platformValidateMountPoint treats a path on the root device as an unmounted
// target, unless it lives under the user's home directory.
func platformValidateMountPoint(path string) error {
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		if path == homeDir || strings.HasPrefix(path, homeDir+string(filepath.Separator)) {
			return nil
		}
	}

	var rootStat, pathStat unix.Stat_t
	if err := unix.Stat("/", &rootStat); err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}
	if err := unix.Stat(path, &pathStat); err != nil {
		return fmt.Errorf("failed to stat destination path: %w", err)
	}

	if pathStat.Dev == rootStat.Dev && path != "/" {
		return fmt.Errorf("path '%s' is on the root filesystem (system disk). "+
			"Ensure your external drive is mounted", path)
	}
	return nil
}

// isUnsafeRoot reports the filesystem root and the bare current directory.
func isUnsafeRoot(path string) bool {
	return path == "/" || path == "."
}
