package seriesindex

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-series/pkg/util"
)

// TimestampLayout is the canonical run timestamp. It sorts lexicographically
// in chronological order and names both index sections and snapshot directories.
const TimestampLayout = "2006-01-02_15:04:05"

// FormatTimestamp renders t in the canonical run timestamp layout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseTimestamp parses a canonical run timestamp in the local time zone.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.Local)
}

// Status is the state of a SnapshotRecord.
type Status int

const (
	// StatusActive is reserved for a run that is in flight. Runs are started as StatusFailed.
	StatusActive Status = iota
	// StatusFailed marks a run that has not yet been proven complete.
	StatusFailed
	// StatusComplete marks a run whose sync reported success.
	StatusComplete
)

var statusToString = map[Status]string{
	StatusActive:   "active",
	StatusFailed:   "failed",
	StatusComplete: "complete",
}

var stringToStatus = util.InvertMap(statusToString)

// String returns the string representation of a Status.
func (s Status) String() string {
	if str, ok := statusToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_status(%d)", s)
}

// ParseStatus parses a string into a Status.
func ParseStatus(s string) (Status, error) {
	if st, ok := stringToStatus[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return 0, fmt.Errorf("invalid status: %q", s)
}

// MarshalJSON implements the json.Marshaler interface.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// RunType is the kind of snapshot a run produces.
type RunType int

const (
	// Full copies the sources into an empty snapshot directory.
	Full RunType = iota
	// Incremental seeds the snapshot with hard links to its base and syncs on top.
	Incremental
)

var runTypeToString = map[RunType]string{Full: "full", Incremental: "incremental"}

var stringToRunType = util.InvertMap(runTypeToString)

// String returns the string representation of a RunType.
func (r RunType) String() string {
	if str, ok := runTypeToString[r]; ok {
		return str
	}
	return fmt.Sprintf("unknown_type(%d)", r)
}

// ParseRunType parses a string into a RunType.
func ParseRunType(s string) (RunType, error) {
	if rt, ok := stringToRunType[strings.ToLower(strings.TrimSpace(s))]; ok {
		return rt, nil
	}
	return 0, fmt.Errorf("invalid run type: %q", s)
}

// MarshalJSON implements the json.Marshaler interface.
func (r RunType) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// Record is one snapshot run as persisted in the index.
type Record struct {
	Timestamp        string
	Status           Status
	Type             RunType
	Sources          []string
	BackupRoot       string // destination root the run was written to
	WorkingDirectory string // diagnostic only
	SyncCommand      string // set on promotion
	RunID            string
	Started          time.Time
	Finished         time.Time
}
