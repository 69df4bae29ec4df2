package syncexec

import (
	"fmt"
	"strings"
)

// Policy assembles the flags of the rsync call.
type Policy struct {
	// Checksum makes rsync compare checksums instead of size and mtime. Significant slow down.
	Checksum bool
	// Delete removes files from the snapshot that no longer exist in the sources.
	Delete bool
	// ExtraFlags are passed through to rsync after the policy's own flags.
	ExtraFlags []string
}

// Flags returns the rsync flags of the policy in call order.
// --itemize-changes is always present, the change summary is parsed from it.
func (p Policy) Flags() []string {
	base := "-av"
	if p.Checksum {
		base += "c"
	}
	flags := []string{base, "--itemize-changes"}
	if p.Delete {
		flags = append(flags, "--delete")
	}
	return append(flags, p.ExtraFlags...)
}

// Validate rejects pass-through arguments that are not flags. Sources and the
// destination are owned by the executor.
func (p Policy) Validate() error {
	for _, f := range p.ExtraFlags {
		if !strings.HasPrefix(f, "-") {
			return fmt.Errorf("invalid rsync flag %q: pass-through flags must start with '-'", f)
		}
	}
	return nil
}
