// Package runerr defines the tagged error kinds a series run can fail with.
// Callers branch on the Kind instead of matching message text.
package runerr

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulschiretz/pgl-series/pkg/util"
)

// Kind classifies why a run failed.
type Kind int

const (
	// KindUnknown is reported for errors that carry no kind.
	KindUnknown Kind = iota
	// InvalidRequest: contradictory flags, missing destination or sources.
	InvalidRequest
	// EmptySource: a source path is missing or is an empty directory.
	EmptySource
	// ConflictingActiveRun: a prior run failed and no recovery policy was given.
	ConflictingActiveRun
	// IndexCorruption: the series index holds an unparseable key or an inconsistent ACTIVE marker.
	IndexCorruption
	// FilesystemError: a rename, link or mkdir failed.
	FilesystemError
	// SyncFailure: the sync tool exited non-zero or produced no output.
	SyncFailure
)

var kindToString = map[Kind]string{
	KindUnknown:          "Unknown",
	InvalidRequest:       "InvalidRequest",
	EmptySource:          "EmptySource",
	ConflictingActiveRun: "ConflictingActiveRun",
	IndexCorruption:      "IndexCorruption",
	FilesystemError:      "FilesystemError",
	SyncFailure:          "SyncFailure",
}

var stringToKind = util.InvertMap(kindToString)

// String returns the name of the kind.
func (k Kind) String() string {
	if str, ok := kindToString[k]; ok {
		return str
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	if k, ok := stringToKind[s]; ok {
		return k, nil
	}
	return KindUnknown, fmt.Errorf("invalid error kind: %q", s)
}

// MarshalJSON implements the json.Marshaler interface.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Error is a failure tagged with its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf returns an Error of the given kind with a formatted cause.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
