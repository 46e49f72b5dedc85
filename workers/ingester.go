package workers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/facette/natsort"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camden-git/photodb/geocode"
	"github.com/camden-git/photodb/journal"
	"github.com/camden-git/photodb/media"
	"github.com/camden-git/photodb/repository"
)

// Enricher turns coordinates into place names. *geocode.Enricher implements it.
type Enricher interface {
	Lookup(ctx context.Context, lat, lon float64) (geocode.Location, error)
}

// ScanStats summarizes one directory scan.
type ScanStats struct {
	Visited  int
	Inserted int
	Skipped  int
	Failed   int
	// Stopped is set when the geocoding quota ran out. Files after the
	// stopping point were not visited and stay eligible for a later run.
	Stopped bool
}

// Ingester drives the per-file pipeline: dedup, extract, enrich, persist and
// journal. Files are processed one at a time.
type Ingester struct {
	Store    repository.RecordStore
	Enricher Enricher
	Journal  *journal.Journal
	Log      *zap.Logger
	RunID    string
}

func NewIngester(store repository.RecordStore, enricher Enricher, j *journal.Journal, log *zap.Logger) *Ingester {
	runID := uuid.NewString()
	return &Ingester{
		Store:    store,
		Enricher: enricher,
		Journal:  j,
		Log:      log.With(zap.String("run_id", runID)),
		RunID:    runID,
	}
}

// ArchivalPathname returns the key a file is stored under: its slash
// separated path relative to root, or the path as given when root is empty.
func ArchivalPathname(path, root string) (string, error) {
	if root == "" {
		return filepath.ToSlash(path), nil
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("failed to make %s relative to %s: %w", path, root, err)
	}
	return filepath.ToSlash(rel), nil
}

// IngestFile imports one picture. It returns false with a nil error when the
// archival pathname is already stored. A refused lookup yields an error
// wrapping geocode.ErrQuotaExceeded.
func (in *Ingester) IngestFile(ctx context.Context, path, root string) (bool, error) {
	pathname, err := ArchivalPathname(path, root)
	if err != nil {
		return false, err
	}

	exists, err := in.Store.Exists(ctx, pathname)
	if err != nil {
		return false, err
	}
	if exists {
		in.Log.Info("record pathname already in database", zap.String("pathname", pathname))
		return false, nil
	}

	rec, err := media.ProcessPictureFile(path, in.Log)
	if err != nil {
		return false, err
	}
	rec.Pathname = pathname

	if in.Enricher != nil && rec.ShouldEnrich() {
		loc, err := in.Enricher.Lookup(ctx, rec.Latitude, rec.Longitude)
		if err != nil {
			return false, fmt.Errorf("failed to geocode %s: %w", pathname, err)
		}
		rec.City = loc.City
		rec.Region = loc.Region
		rec.Country = loc.Country
		rec.ExtraData = loc.Raw
	}

	inserted, err := in.Store.Insert(ctx, rec)
	if err != nil {
		return false, err
	}
	if !inserted {
		in.Log.Info("record pathname already in database", zap.String("pathname", pathname))
		return false, nil
	}

	in.Journal.Add(rec)
	in.Log.Info("picture stored",
		zap.String("pathname", pathname),
		zap.Int64("picture_id", *rec.PictureID),
		zap.String("city", rec.City),
	)
	return true, nil
}

// ScanDirectory walks root depth first, ingesting every picture file. Files of
// a directory are handled before its subdirectories, both in natural order.
// Per-file failures are logged and counted; running out of geocoding quota
// stops the scan without an error. Only an unreadable root is returned.
func (in *Ingester) ScanDirectory(ctx context.Context, root string) (ScanStats, error) {
	var stats ScanStats
	in.Log.Info("scanning directory", zap.String("root", root))

	if _, err := os.ReadDir(root); err != nil {
		return stats, fmt.Errorf("failed to read scan root %s: %w", root, err)
	}
	if err := in.scanDir(ctx, root, root, &stats); err != nil {
		return stats, err
	}

	in.Log.Info("scan finished",
		zap.String("root", root),
		zap.Int("visited", stats.Visited),
		zap.Int("inserted", stats.Inserted),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Bool("stopped", stats.Stopped),
	)
	return stats, nil
}

// isRegularFile reports whether e is a regular file or a symlink to one.
// FIFOs and devices would block the open.
func isRegularFile(dir string, e fs.DirEntry) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.Mode().IsRegular()
}

func (in *Ingester) scanDir(ctx context.Context, dir, root string, stats *ScanStats) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		in.Log.Error("failed to read directory", zap.String("dir", dir), zap.Error(err))
		return nil
	}

	var files, dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		} else if media.IsPictureFile(e.Name()) && isRegularFile(dir, e) {
			files = append(files, e.Name())
		}
	}
	natsort.Sort(files)
	natsort.Sort(dirs)

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(dir, name)
		stats.Visited++

		inserted, err := in.IngestFile(ctx, path, root)
		switch {
		case errors.Is(err, geocode.ErrQuotaExceeded):
			in.Log.Warn("too many requests, stopping", zap.String("path", path))
			stats.Stopped = true
			return nil
		case err != nil:
			stats.Failed++
			in.Log.Error("failed to ingest file", zap.String("path", path), zap.Error(err))
		case inserted:
			stats.Inserted++
		default:
			stats.Skipped++
		}
	}

	for _, name := range dirs {
		if err := in.scanDir(ctx, filepath.Join(dir, name), root, stats); err != nil {
			return err
		}
		if stats.Stopped {
			return nil
		}
	}
	return nil
}
