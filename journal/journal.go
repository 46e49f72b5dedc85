// Package journal keeps the recovery journal: the file-backed list of records
// inserted or replayed by a run, plus the replay and extract operations that
// move records between a journal file and the store.
package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/camden-git/photodb/models"
)

const journalFilePerm = 0o644

// Journal is an ordered mapping from archival pathname to record. Records keep
// the position of their first insertion; adding a known pathname replaces it.
type Journal struct {
	mu      sync.Mutex
	order   []string
	records map[string]*models.PictureRecord
}

func New() *Journal {
	return &Journal{records: make(map[string]*models.PictureRecord)}
}

// Load restores the journal saved by a previous run. A missing file is only
// a warning and yields an empty journal; any other read or decode failure is
// returned because the recovery state can no longer be trusted.
func Load(path string, log *zap.Logger) (*Journal, error) {
	j := New()
	records, err := ReadRecords(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("journal: file not found, starting empty", zap.String("path", path))
		return j, nil
	}
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		j.Add(rec)
	}
	log.Info("journal: loaded", zap.String("path", path), zap.Int("records", j.Len()))
	return j, nil
}

func (j *Journal) Add(rec *models.PictureRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.records[rec.Pathname]; !ok {
		j.order = append(j.order, rec.Pathname)
	}
	j.records[rec.Pathname] = rec
}

// Get returns the record stored under pathname, if any.
func (j *Journal) Get(pathname string) (*models.PictureRecord, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.records[pathname]
	return rec, ok
}

// Records returns a snapshot of the journal in insertion order.
func (j *Journal) Records() []*models.PictureRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*models.PictureRecord, 0, len(j.order))
	for _, p := range j.order {
		out = append(out, j.records[p])
	}
	return out
}

func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.order)
}

// Save writes every record of the journal to path, overwriting it.
func (j *Journal) Save(path string) error {
	return SaveRecords(path, j.Records())
}

// SaveRecords writes records to path as a JSON array, one indented object per
// record.
func SaveRecords(path string, records []*models.PictureRecord) error {
	var buf bytes.Buffer
	buf.WriteString("[\n")
	for i, rec := range records {
		if i > 0 {
			buf.WriteString(",\n")
		}
		data, err := json.MarshalIndent(rec, "", "   ")
		if err != nil {
			return fmt.Errorf("failed to encode journal record %s: %w", rec.Pathname, err)
		}
		buf.Write(data)
	}
	buf.WriteString("\n]\n")

	if err := os.WriteFile(path, buf.Bytes(), journalFilePerm); err != nil {
		return fmt.Errorf("failed to write journal %s: %w", path, err)
	}
	return nil
}

// ReadRecords decodes a journal file. The returned error wraps fs.ErrNotExist
// when the file is missing.
func ReadRecords(path string) ([]*models.PictureRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal %s: %w", path, err)
	}
	var records []*models.PictureRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode journal %s: %w", path, err)
	}
	return records, nil
}
