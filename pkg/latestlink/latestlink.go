// Package latestlink maintains a symlink that points at the most recent
// completed snapshot.
package latestlink

import (
	"errors"
	"fmt"
	"os"

	"github.com/paulschiretz/pgl-series/pkg/hints"
)

// ErrDisabled is returned when no link path is configured.
var ErrDisabled = hints.New("latest link is disabled")

// ErrOccupied is returned when the link path holds a regular file or directory.
var ErrOccupied = errors.New("link path is occupied")

// Update points the symlink at linkPath to target, replacing a previous link.
// A regular file or directory at linkPath is never removed.
func Update(linkPath, target string) error {
	if linkPath == "" {
		return ErrDisabled
	}

	info, err := os.Lstat(linkPath)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		if err := os.Remove(linkPath); err != nil {
			return fmt.Errorf("could not remove previous link %s: %w", linkPath, err)
		}
	case err == nil && info.IsDir():
		return fmt.Errorf("%w: %s is a directory", ErrOccupied, linkPath)
	case err == nil:
		return fmt.Errorf("%w: %s is a file", ErrOccupied, linkPath)
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("could not inspect link path %s: %w", linkPath, err)
	}

	if err := os.Symlink(target, linkPath); err != nil {
		return fmt.Errorf("could not link %s to %s: %w", linkPath, target, err)
	}
	return nil
}
