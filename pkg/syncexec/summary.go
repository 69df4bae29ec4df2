package syncexec

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ChangeSummary counts what a sync changed in the snapshot. It is derived
// from rsync's --itemize-changes output.
type ChangeSummary struct {
	Added         int
	Changed       int
	Removed       int
	DirsCreated   int
	LinksCreated  int
	TotalSize     uint64
	SentBytes     uint64
	ReceivedBytes uint64
}

// ParseChangeSummary builds a summary from the complete rsync output.
func ParseChangeSummary(output string) ChangeSummary {
	var s ChangeSummary
	for _, line := range strings.Split(output, "\n") {
		s.AddLine(line)
	}
	return s
}

// AddLine accounts for one line of rsync output.
func (s *ChangeSummary) AddLine(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}

	switch {
	case strings.HasPrefix(line, "*deleting"):
		s.Removed++
		return
	case strings.HasPrefix(line, "total size is "):
		s.TotalSize = parseBytes(strings.TrimPrefix(line, "total size is "))
		return
	case strings.HasPrefix(line, "sent "):
		// sent 1,234 bytes  received 56 bytes  2,580.00 bytes/sec
		fields := strings.Fields(line)
		if len(fields) >= 5 && fields[3] == "received" {
			s.SentBytes = parseBytes(fields[1])
			s.ReceivedBytes = parseBytes(fields[4])
		}
		return
	}

	code, _, ok := strings.Cut(line, " ")
	if !ok || len(code) < 3 {
		return
	}
	update, kind, attrs := code[0], code[1], code[2:]
	if !strings.ContainsRune("<>ch", rune(update)) {
		return
	}
	created := strings.Trim(attrs, "+") == ""

	switch kind {
	case 'f':
		if created {
			s.Added++
		} else {
			s.Changed++
		}
	case 'd':
		if created {
			s.DirsCreated++
		}
	case 'L':
		s.LinksCreated++
	}
}

// Files returns the number of files added, changed or removed.
func (s ChangeSummary) Files() int {
	return s.Added + s.Changed + s.Removed
}

func (s ChangeSummary) String() string {
	return fmt.Sprintf("%d added, %d changed, %d removed, %d directories created, total size %s, transferred %s",
		s.Added, s.Changed, s.Removed, s.DirsCreated,
		humanize.Bytes(s.TotalSize), humanize.Bytes(s.SentBytes+s.ReceivedBytes))
}

// LogArgs returns the summary as structured log attributes.
func (s ChangeSummary) LogArgs() []any {
	return []any{
		"added", s.Added,
		"changed", s.Changed,
		"removed", s.Removed,
		"dirsCreated", s.DirsCreated,
		"totalSize", humanize.Bytes(s.TotalSize),
	}
}

// parseBytes reads the leading number of s, which may carry thousands
// separators or a human-readable suffix.
func parseBytes(s string) uint64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	n, err := humanize.ParseBytes(fields[0])
	if err != nil {
		return 0
	}
	return n
}
