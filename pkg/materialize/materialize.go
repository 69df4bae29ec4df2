// Package materialize prepares the snapshot directory of a run before the
// sync tool writes into it. A fresh incremental snapshot is seeded with hard
// links to every file of its base, so it starts out as a complete copy that
// shares storage with the base until the sync tool replaces a changed file.
package materialize

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-series/pkg/plog"
	"github.com/paulschiretz/pgl-series/pkg/runerr"
	"github.com/paulschiretz/pgl-series/pkg/util"
)

// Stats counts what a clone created.
type Stats struct {
	Dirs     int
	Files    int
	Symlinks int
	Skipped  int
}

// Materializer creates snapshot target directories.
type Materializer struct {
	log  *plog.Logger
	link func(oldname, newname string) error
}

// New returns a Materializer logging to log.
func New(log *plog.Logger) *Materializer {
	return &Materializer{log: log, link: os.Link}
}

// Materialize prepares target for the sync tool.
//
//   - continuing: target is left as the interrupted run left it (created if it is missing).
//   - base set: target is created and the base tree is cloned into it with hard links.
//   - otherwise: target is created empty.
//
// An error leaves a partially cloned target in place for a later continuing run.
func (m *Materializer) Materialize(ctx context.Context, target, base string, continuing bool) (Stats, error) {
	if continuing {
		m.log.Info("Continuing into existing snapshot, skipping hard link seeding", "target", target)
		if err := os.MkdirAll(target, util.UserWritableDirPerms); err != nil {
			return Stats{}, runerr.New(runerr.FilesystemError, "create target", err)
		}
		return Stats{}, nil
	}

	if base == "" {
		if err := os.MkdirAll(target, util.UserWritableDirPerms); err != nil {
			return Stats{}, runerr.New(runerr.FilesystemError, "create target", err)
		}
		if empty, err := util.IsDirEmpty(target); err == nil && !empty {
			m.log.Warn("Target of full backup is not empty, this is probably a filling run", "target", target)
		}
		return Stats{}, nil
	}

	return m.clone(ctx, base, target)
}

func (m *Materializer) clone(ctx context.Context, base, target string) (Stats, error) {
	var stats Stats

	baseInfo, err := os.Stat(base)
	if err != nil {
		return stats, runerr.New(runerr.FilesystemError, "stat base", err)
	}
	if !baseInfo.IsDir() {
		return stats, runerr.Newf(runerr.FilesystemError, "stat base", "base %s is not a directory", base)
	}
	if err := sameDevice(base, filepath.Dir(target)); err != nil {
		return stats, runerr.New(runerr.FilesystemError, "clone base", err)
	}
	if err := os.Mkdir(target, util.WithUserWritePermission(baseInfo.Mode().Perm())); err != nil {
		return stats, runerr.New(runerr.FilesystemError, "create target", err)
	}

	m.log.Info("Seeding snapshot with hard links", "base", base, "target", target)

	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dst := filepath.Join(target, rel)

		switch t := d.Type(); {
		case t.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := os.Mkdir(dst, util.WithUserWritePermission(info.Mode().Perm())); err != nil {
				return err
			}
			stats.Dirs++
		case t.IsRegular():
			if err := m.link(path, dst); err != nil {
				return err
			}
			stats.Files++
		case t&fs.ModeSymlink != 0:
			dest, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.Symlink(dest, dst); err != nil {
				return err
			}
			stats.Symlinks++
		default:
			m.log.Warn("Skipping special file while seeding snapshot", "path", path, "type", t.String())
			stats.Skipped++
		}
		return nil
	})
	if err != nil {
		return stats, runerr.New(runerr.FilesystemError, "clone base", fmt.Errorf("seeding %s from %s: %w", target, base, err))
	}

	m.log.Info("Snapshot seeded", "files", stats.Files, "dirs", stats.Dirs, "symlinks", stats.Symlinks)
	return stats, nil
}
