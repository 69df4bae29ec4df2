// Package recovery inspects the ACTIVE marker of a series at the start of a
// run and decides how the run proceeds: as a fresh run, by continuing the
// interrupted run, by discarding it, or not at all.
package recovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-series/pkg/plog"
	"github.com/paulschiretz/pgl-series/pkg/runerr"
	"github.com/paulschiretz/pgl-series/pkg/seriesindex"
	"github.com/paulschiretz/pgl-series/pkg/util"
)

// State classifies a series by its ACTIVE marker.
type State int

const (
	// Clean: no ACTIVE marker.
	Clean State = iota
	// ActiveFailed: a previous run did not complete.
	ActiveFailed
	// ActiveComplete: the marker reports success but was never promoted.
	ActiveComplete
)

var stateToString = map[State]string{
	Clean:          "clean",
	ActiveFailed:   "active-failed",
	ActiveComplete: "active-complete",
}

var stringToState = util.InvertMap(stateToString)

// String returns the string representation of a State.
func (s State) String() string {
	if str, ok := stateToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_state(%d)", s)
}

// ParseState parses a string into a State.
func ParseState(s string) (State, error) {
	if st, ok := stringToState[s]; ok {
		return st, nil
	}
	return 0, fmt.Errorf("invalid recovery state: %q", s)
}

// Request is what the caller asked for.
type Request struct {
	Timestamp string
	Type      seriesindex.RunType
	Continue  bool
	Discard   bool
}

// Decision is the outcome of Resolve.
type Decision struct {
	State      State
	Timestamp  string              // timestamp the run writes to
	Type       seriesindex.RunType // effective run type
	Continuing bool
	Discarded  string // timestamp of a discarded run, if any
}

// Classify returns the recovery state of idx.
func Classify(idx *seriesindex.Index) (State, error) {
	active, ok := idx.Active()
	if !ok {
		return Clean, nil
	}
	switch active.Status {
	case seriesindex.StatusFailed:
		return ActiveFailed, nil
	case seriesindex.StatusComplete:
		return ActiveComplete, nil
	default:
		return 0, runerr.Newf(runerr.IndexCorruption, "classify series",
			"ACTIVE marker in %s has unexpected status %s", idx.Path(), active.Status)
	}
}

// ValidateRequest checks the request flags against each other.
func ValidateRequest(req Request) error {
	if req.Continue && req.Discard {
		return runerr.New(runerr.InvalidRequest, "resolve recovery",
			errors.New("continue and discard of a failed run exclude each other; use only one"))
	}
	if _, err := seriesindex.ParseTimestamp(req.Timestamp); err != nil {
		return runerr.New(runerr.InvalidRequest, "resolve recovery", fmt.Errorf("invalid run timestamp: %w", err))
	}
	return nil
}

// Resolver applies the recovery policy to a loaded index.
type Resolver struct {
	log *plog.Logger
}

// New returns a Resolver logging to log.
func New(log *plog.Logger) *Resolver {
	return &Resolver{log: log}
}

// Resolve decides how the run described by req proceeds against the series at
// seriesPath whose index is idx. Under the discard policy the failed snapshot
// directory is removed and the index is committed before Resolve returns; in
// every other case nothing on disk is touched.
func (r *Resolver) Resolve(idx *seriesindex.Index, seriesPath string, req Request) (Decision, error) {
	if err := ValidateRequest(req); err != nil {
		return Decision{}, err
	}

	state, err := Classify(idx)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{State: state, Timestamp: req.Timestamp, Type: req.Type}

	switch state {
	case Clean:
		if req.Continue || req.Discard {
			r.log.Info("No failed run to recover, starting a fresh run", "series", seriesPath)
		}
		return d, nil

	case ActiveComplete:
		active, _ := idx.Active()
		return Decision{}, runerr.Newf(runerr.IndexCorruption, "resolve recovery",
			"ACTIVE marker for %s is complete but was never promoted; resolve manually, e.g. by renaming the series directory %s",
			active.Timestamp, seriesPath)
	}

	active, _ := idx.Active()
	if _, err := seriesindex.ParseTimestamp(active.Timestamp); err != nil {
		return Decision{}, runerr.Newf(runerr.IndexCorruption, "resolve recovery",
			"ACTIVE marker in %s has invalid timestamp %q", idx.Path(), active.Timestamp)
	}

	switch {
	case req.Continue:
		d.Timestamp = active.Timestamp
		d.Continuing = true
		if idx.Len() == 1 && d.Type == seriesindex.Incremental {
			r.log.Warn("Failed run is the first of the series, cannot continue it as incremental; falling back to full")
			d.Type = seriesindex.Full
		}
		r.log.Warn("Continuing failed run", "timestamp", d.Timestamp, "type", d.Type)
		return d, nil

	case req.Discard:
		failedPath := filepath.Join(seriesPath, active.Timestamp)
		r.log.Warn("Removing failed run", "timestamp", active.Timestamp, "path", failedPath)
		if err := os.RemoveAll(failedPath); err != nil {
			r.log.Warn("Could not fully remove failed run, continuing", "path", failedPath, "error", err)
		}
		idx.RemoveActive()
		if err := idx.Commit(); err != nil {
			return Decision{}, fmt.Errorf("could not persist index after discarding %s: %w", active.Timestamp, err)
		}
		d.Discarded = active.Timestamp
		if idx.Len() == 0 {
			r.log.Warn("The discarded run was the only run of the series, recreating it as a full backup")
			if d.Type == seriesindex.Incremental {
				r.log.Warn("Falling back from incremental to full backup")
			}
			d.Type = seriesindex.Full
		}
		return d, nil

	default:
		return Decision{}, runerr.Newf(runerr.ConflictingActiveRun, "resolve recovery",
			"previous run %s failed; run again with --cont to continue it, with --remove to discard it, or clean up %s manually",
			active.Timestamp, seriesPath)
	}
}
