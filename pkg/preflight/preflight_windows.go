//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// platformValidateMountPoint verifies that the drive or network share root for a path exists.
// For "Z:\series" it checks "Z:\".
func platformValidateMountPoint(path string) error {
	volume := filepath.VolumeName(path)
	if volume == "" {
		return nil // Not a path with a volume name (e.g., relative path), so nothing to check.
	}

	checkVol := volume
	if !strings.HasSuffix(checkVol, string(filepath.Separator)) {
		checkVol += string(filepath.Separator)
	}
	checkVol = filepath.Clean(checkVol)

	if _, err := os.Stat(checkVol); os.IsNotExist(err) {
		return fmt.Errorf("volume root does not exist: %s. Ensure the drive is connected", checkVol)
	}
	return nil
}

// isUnsafeRoot checks if the given path is the current directory or a bare drive letter (e.g., "C:").
func isUnsafeRoot(path string) bool {
	if path == "." || path == string(filepath.Separator) {
		return true
	}

	// filepath.Clean("C:") produces "C:.".
	vol := filepath.VolumeName(path)
	isBareDrive := vol != "" && path == vol && !strings.Contains(vol, string(filepath.Separator))
	isCleanedBareDrive := vol != "" && path == vol+"."
	return isBareDrive || isCleanedBareDrive
}
