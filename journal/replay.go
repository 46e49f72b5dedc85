package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/camden-git/photodb/repository"
)

// ReplayStats summarizes a replay run.
type ReplayStats struct {
	Read     int
	Inserted int
	Skipped  int
	Failed   int
}

// Replay inserts the records of a journal file into the store without calling
// the geocoder again: place names and extra data are taken as saved. Records
// whose pathname is already stored are skipped. Inserted records are added to
// j. A record that fails to insert is logged and left out; only an unreadable
// file or a cancelled context aborts the replay.
func Replay(ctx context.Context, path string, store repository.RecordStore, j *Journal, log *zap.Logger) (ReplayStats, error) {
	var stats ReplayStats

	records, err := ReadRecords(path)
	if err != nil {
		return stats, err
	}
	stats.Read = len(records)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		exists, err := store.Exists(ctx, rec.Pathname)
		if err != nil {
			stats.Failed++
			log.Error("replay: failed to check record", zap.String("pathname", rec.Pathname), zap.Error(err))
			continue
		}
		if exists {
			stats.Skipped++
			log.Info("replay: skipping record", zap.String("pathname", rec.Pathname))
			continue
		}

		// ids belong to the store the record came from
		rec.PictureID, rec.BlobID = nil, nil

		log.Info("replay: inserting record", zap.String("pathname", rec.Pathname))
		inserted, err := store.Insert(ctx, rec)
		if err != nil {
			stats.Failed++
			log.Error("replay: failed to insert record", zap.String("pathname", rec.Pathname), zap.Error(err))
			continue
		}
		if !inserted {
			stats.Skipped++
			continue
		}
		stats.Inserted++
		j.Add(rec)
	}

	log.Info("replay: finished",
		zap.String("path", path),
		zap.Int("read", stats.Read),
		zap.Int("inserted", stats.Inserted),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// Extract dumps every stored record to path, in journal format or, when path
// ends in .csv, as a flat CSV table. It returns the number of records written.
func Extract(ctx context.Context, store repository.RecordStore, path string, log *zap.Logger) (int, error) {
	log.Info("extract: dumping store", zap.String("path", path))

	records, err := store.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read records for extract: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		f, err := os.Create(path)
		if err != nil {
			return 0, fmt.Errorf("failed to create CSV file %s: %w", path, err)
		}
		if err := ExportCSV(f, records); err != nil {
			f.Close()
			return 0, err
		}
		if err := f.Close(); err != nil {
			return 0, fmt.Errorf("failed to close CSV file %s: %w", path, err)
		}
	} else if err := SaveRecords(path, records); err != nil {
		return 0, err
	}

	log.Info("extract: done", zap.String("path", path), zap.Int("records", len(records)))
	return len(records), nil
}
