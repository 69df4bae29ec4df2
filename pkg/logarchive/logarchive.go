// Package logarchive compresses the log files of previous runs so the log
// directory only holds one plain text log: the current run's.
package logarchive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-series/pkg/hints"
	"github.com/paulschiretz/pgl-series/pkg/plog"
)

// ErrNothingToArchive is returned when the log directory holds no previous run logs.
var ErrNothingToArchive = hints.New("no previous run logs to archive")

const ioBufferSize = 256 * 1024

// Plan configures an archive pass.
type Plan struct {
	Format  Format
	Level   Level
	Workers int
}

// Archiver compresses previous run logs.
type Archiver struct {
	log *plog.Logger
}

// New returns an Archiver logging to log.
func New(log *plog.Logger) *Archiver {
	return &Archiver{log: log}
}

// Archive compresses every *.log file in logDir except exclude into
// <name>.log.<format> and removes the original. It returns the number of
// archived files.
func (a *Archiver) Archive(ctx context.Context, logDir, exclude string, p Plan) (int, error) {
	matches, err := filepath.Glob(filepath.Join(logDir, "*.log"))
	if err != nil {
		return 0, fmt.Errorf("could not list log files in %s: %w", logDir, err)
	}

	var pending []string
	for _, m := range matches {
		if exclude != "" && filepath.Clean(m) == filepath.Clean(exclude) {
			continue
		}
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return 0, ErrNothingToArchive
	}

	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}

	var archived atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, src := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dst := src + p.Format.Extension()
			if err := compressFile(src, dst, p.Format, p.Level); err != nil {
				return fmt.Errorf("could not archive %s: %w", src, err)
			}
			if err := os.Remove(src); err != nil {
				return fmt.Errorf("could not remove archived log %s: %w", src, err)
			}
			a.log.Debug("Archived log file", "file", src, "archive", dst)
			archived.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(archived.Load()), err
}

// compressFile writes src into dst through a temp file and a rename.
func compressFile(src, dst string, format Format, level Level) (retErr error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "pgl-series-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	bufWriter := bufio.NewWriterSize(tmp, ioBufferSize)
	if err := encode(bufWriter, in, info, format, level); err != nil {
		return err
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("buffer flush failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp archive: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("failed to rename temp archive to final path: %w", err)
	}
	return nil
}

func encode(w io.Writer, r io.Reader, info os.FileInfo, format Format, level Level) error {
	switch format {
	case Zip:
		zw := zip.NewWriter(w)
		lvl := level.flate()
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, lvl)
		})
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Method = zip.Deflate
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if _, err := io.Copy(fw, r); err != nil {
			return err
		}
		return zw.Close()

	case Gz:
		gw, err := pgzip.NewWriterLevel(w, level.gzip())
		if err != nil {
			return fmt.Errorf("failed to create gzip writer: %w", err)
		}
		gw.Name = info.Name()
		gw.ModTime = info.ModTime()
		if _, err := io.Copy(gw, r); err != nil {
			gw.Close()
			return err
		}
		return gw.Close()

	case Zst:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level.zstd()))
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		if _, err := io.Copy(zw, r); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()

	default:
		return fmt.Errorf("unsupported log archive format %q", format)
	}
}
