package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/paulschiretz/pgl-series/pkg/planner"
	"github.com/paulschiretz/pgl-series/pkg/recovery"
	"github.com/paulschiretz/pgl-series/pkg/runerr"
	"github.com/paulschiretz/pgl-series/pkg/seriesindex"
)

// Status describes a series as found on disk.
type Status struct {
	SeriesPath string
	Exists     bool
	Schema     int
	State      recovery.State
	Active     *seriesindex.Record
	// Records holds the snapshots of the current slot in chronological order.
	Records []seriesindex.Record
	// Retired holds the directories of earlier series, named after their last snapshot.
	Retired []string
}

// ExecuteStatus reads the series described by p. It never modifies the destination.
func (r *Runner) ExecuteStatus(ctx context.Context, p *planner.StatusPlan) (Status, error) {
	st := Status{SeriesPath: p.SeriesPath}

	info, err := os.Stat(p.SeriesPath)
	switch {
	case err == nil && info.IsDir():
		st.Exists = true
	case err == nil:
		return st, runerr.Newf(runerr.FilesystemError, "status", "series path %s is not a directory", p.SeriesPath)
	case !errors.Is(err, os.ErrNotExist):
		return st, runerr.New(runerr.FilesystemError, "status", err)
	}

	if st.Exists {
		idx, err := seriesindex.Load(p.SeriesPath)
		if err != nil {
			return st, err
		}
		st.Schema = idx.Schema()
		if st.State, err = recovery.Classify(idx); err != nil {
			return st, err
		}
		if active, ok := idx.Active(); ok {
			st.Active = &active
		}
		keys, err := idx.Timestamps()
		if err != nil {
			return st, err
		}
		for _, key := range keys {
			rec, _ := idx.Record(key)
			st.Records = append(st.Records, rec)
		}
	}

	retired, err := r.fetchRetiredSeries(ctx, p.Destination)
	if err != nil {
		return st, err
	}
	st.Retired = retired

	r.log.Debug("Read series status", "series", p.SeriesPath, "records", len(st.Records), "retired", len(st.Retired))
	return st, nil
}

// fetchRetiredSeries lists the directories of the destination root whose names
// are run timestamps, oldest first.
func (r *Runner) fetchRetiredSeries(ctx context.Context, destination string) ([]string, error) {
	entries, err := os.ReadDir(destination)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, runerr.New(runerr.FilesystemError, "status", fmt.Errorf("failed to read destination %s: %w", destination, err))
	}

	var retired []string
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if !entry.IsDir() {
			continue
		}
		if _, err := seriesindex.ParseTimestamp(entry.Name()); err != nil {
			continue
		}
		retired = append(retired, filepath.Join(destination, entry.Name()))
	}
	sort.Strings(retired)
	return retired, nil
}
