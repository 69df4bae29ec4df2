//go:build !windows

package materialize

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// sameDevice fails when a and b live on different filesystems, where hard links are impossible.
func sameDevice(a, b string) error {
	var sa, sb unix.Stat_t
	if err := unix.Stat(a, &sa); err != nil {
		return fmt.Errorf("failed to stat %s: %w", a, err)
	}
	if err := unix.Stat(b, &sb); err != nil {
		return fmt.Errorf("failed to stat %s: %w", b, err)
	}
	if sa.Dev != sb.Dev {
		return fmt.Errorf("%s and %s are on different filesystems, cannot hard link", a, b)
	}
	return nil
}
