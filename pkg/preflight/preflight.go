// Package preflight provides the checks that run before a series run begins.
// They are stateless apart from the write probe, which creates and removes a
// single temporary file inside the destination.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-series/pkg/runerr"
)

const writeProbeName = ".pgl-series-writetest.tmp"

// Run executes the checks selected by p against the destination root.
// All failures are reported as runerr.FilesystemError, except an unsafe
// destination which is an InvalidRequest.
func Run(p Plan, destination string) error {
	if isUnsafeRoot(filepath.Clean(destination)) {
		return runerr.Newf(runerr.InvalidRequest, "preflight", "refusing unsafe destination %q", destination)
	}
	if p.DestinationAccessible {
		if err := CheckDestinationAccessible(destination, p.RequireMount); err != nil {
			return runerr.New(runerr.FilesystemError, "preflight", err)
		}
	}
	if p.DestinationWritable {
		if err := CheckDestinationWritable(destination); err != nil {
			return runerr.New(runerr.FilesystemError, "preflight", err)
		}
	}
	return nil
}

// CheckDestinationAccessible makes sure the destination is a directory, or that
// the deepest existing ancestor is one so it can be created later.
//
// With requireMount set, the deepest existing directory must not be a "ghost"
// directory on the system disk (unix) and its volume must exist (windows).
func CheckDestinationAccessible(destination string, requireMount bool) error {
	info, err := os.Stat(destination)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("destination exists but is not a directory: %s", destination)
		}
		if requireMount {
			return platformValidateMountPoint(destination)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("cannot access destination: %w", err)
	}

	ancestor, err := deepestExistingAncestor(destination)
	if err != nil {
		return err
	}
	if requireMount {
		if err := platformValidateMountPoint(ancestor); err != nil {
			return err
		}
	}
	return nil
}

// CheckDestinationWritable probes the destination, or its deepest existing
// ancestor when the destination has not been created yet.
func CheckDestinationWritable(destination string) error {
	dir := destination
	info, err := os.Stat(destination)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("destination exists but is not a directory: %s", destination)
	case os.IsNotExist(err):
		if dir, err = deepestExistingAncestor(destination); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("cannot access destination: %w", err)
	}

	probe := filepath.Join(dir, writeProbeName)
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	f.Close()
	_ = os.Remove(probe)
	return nil
}

func deepestExistingAncestor(path string) (string, error) {
	ancestor := filepath.Clean(path)
	for {
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			return "", fmt.Errorf("no existing ancestor directory for %s", path)
		}
		info, err := os.Stat(parent)
		if err == nil {
			if !info.IsDir() {
				return "", fmt.Errorf("ancestor %s is not a directory", parent)
			}
			return parent, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("cannot access ancestor directory %s: %w", parent, err)
		}
		ancestor = parent
	}
}
