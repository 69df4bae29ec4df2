// Package placement decides where a run's snapshot goes. A full run retires
// the current series slot by renaming it after its latest snapshot and
// starts a fresh slot; an incremental run is placed next to its base inside
// the current slot.
package placement

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

// DefaultSeriesName is the directory name of the current series slot.
const DefaultSeriesName = "active_series"

// Request describes the run to place.
type Request struct {
	Destination string // destination root
	SeriesName  string
	Timestamp   string
	Type        seriesindex.RunType
	Continuing  bool
}

// Plan is where the run writes and what it builds on.
type Plan struct {
	SeriesPath    string
	Target        string
	Type          seriesindex.RunType // effective run type
	Base          string              // base snapshot directory, empty for a full run
	BaseTimestamp string
	Retired       string // where the previous series was moved, if it was

	// Index is the index of the slot the run writes to. After a rotation it is a
	// fresh index for the new slot.
	Index *seriesindex.Index
}

// SeriesPath returns the path of the current series slot below destination.
func SeriesPath(destination, seriesName string) string {
	if seriesName == "" {
		seriesName = DefaultSeriesName
	}
	return filepath.Join(destination, seriesName)
}

// Planner places runs inside a destination root.
type Planner struct {
	log *plog.Logger
}

// New returns a Planner logging to log.
func New(log *plog.Logger) *Planner {
	return &Planner{log: log}
}

// Plan decides the target directory of the run. It creates the destination
// root and the series slot, and performs the rotation of a full run; it does
// not create the target directory itself.
func (p *Planner) Plan(idx *seriesindex.Index, req Request) (Plan, error) {
	seriesPath := SeriesPath(req.Destination, req.SeriesName)
	plan := Plan{
		SeriesPath: seriesPath,
		Target:     filepath.Join(seriesPath, req.Timestamp),
		Type:       req.Type,
		Index:      idx,
	}

	if err := os.MkdirAll(req.Destination, util.UserWritableDirPerms); err != nil {
		return Plan{}, runerr.New(runerr.FilesystemError, "create destination", err)
	}

	slotExists, err := isDir(seriesPath)
	if err != nil {
		return Plan{}, runerr.New(runerr.FilesystemError, "inspect series", err)
	}
	if !slotExists && plan.Type == seriesindex.Incremental {
		p.log.Warn("No full backup to build on, running a full backup first", "expected", seriesPath)
		plan.Type = seriesindex.Full
	}

	if plan.Type == seriesindex.Incremental {
		base, ok, err := idx.MostRecentComplete()
		if err != nil {
			return Plan{}, err
		}
		if !ok {
			p.log.Warn("Series holds no completed snapshot to build on, running a full backup first", "series", seriesPath)
			plan.Type = seriesindex.Full
		} else {
			plan.BaseTimestamp = base.Timestamp
			plan.Base = filepath.Join(seriesPath, base.Timestamp)
			if found, err := isDir(plan.Base); !req.Continuing && (err != nil || !found) {
				return Plan{}, runerr.Newf(runerr.FilesystemError, "locate base",
					"base snapshot %s recorded in %s is missing", plan.Base, idx.Path())
			}
			p.log.Info("Making incremental backup", "base", base.Timestamp, "target", plan.Target)
		}
	}

	if plan.Type == seriesindex.Full && slotExists && !req.Continuing {
		if err := p.rotate(&plan, req.Destination); err != nil {
			return Plan{}, err
		}
	}

	if err := os.MkdirAll(seriesPath, util.UserWritableDirPerms); err != nil {
		return Plan{}, runerr.New(runerr.FilesystemError, "create series", err)
	}
	if !req.Continuing {
		if ok, _ := isDir(plan.Target); ok {
			p.log.Warn("Target directory already exists, filling it", "target", plan.Target)
		}
	}
	return plan, nil
}

// rotate moves a slot that holds completed snapshots to destination/<latest>.
func (p *Planner) rotate(plan *Plan, destination string) error {
	latest, ok, err := plan.Index.MostRecentTimestamp()
	if err != nil {
		return err
	}
	if !ok {
		p.log.Info("Series slot holds no completed snapshot, reusing it", "series", plan.SeriesPath)
		return nil
	}

	retired := filepath.Join(destination, latest)
	if _, err := os.Lstat(retired); err == nil {
		return runerr.Newf(runerr.FilesystemError, "rotate series",
			"cannot retire %s: %s already exists", plan.SeriesPath, retired)
	} else if !errors.Is(err, os.ErrNotExist) {
		return runerr.New(runerr.FilesystemError, "rotate series", err)
	}

	p.log.Info("Moving previous full backup series", "from", plan.SeriesPath, "to", retired)
	if err := os.Rename(plan.SeriesPath, retired); err != nil {
		return runerr.New(runerr.FilesystemError, "rotate series", fmt.Errorf("rename %s: %w", plan.SeriesPath, err))
	}
	plan.Retired = retired
	plan.Index = seriesindex.New(plan.SeriesPath)
	return nil
}

func isDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
