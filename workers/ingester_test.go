package workers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/camden-git/photodb/config"
	"github.com/camden-git/photodb/database"
	"github.com/camden-git/photodb/geocode"
	"github.com/camden-git/photodb/journal"
	"github.com/camden-git/photodb/media/exiftest"
	"github.com/camden-git/photodb/repository"
)

// fakeEnricher answers lookups from a function and counts calls
type fakeEnricher struct {
	calls  int
	lookup func(lat, lon float64) (geocode.Location, error)
}

func (f *fakeEnricher) Lookup(_ context.Context, lat, lon float64) (geocode.Location, error) {
	f.calls++
	return f.lookup(lat, lon)
}

func paris(float64, float64) (geocode.Location, error) {
	return geocode.Location{
		City:    "Paris",
		Region:  "Ile-de-France",
		Country: "France",
		Raw:     map[string]any{"status": map[string]any{"code": float64(200)}},
	}, nil
}

func newStore(t *testing.T) *repository.PictureRepository {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	cfg := config.DatabaseConfig{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "photodb.sqlite"),
	}
	db, dialect, err := database.Open(ctx, cfg, log)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gdb, err := database.OpenGorm(db, dialect, log)
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	if err := database.ResetSchema(gdb); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return repository.NewPictureRepository(db, dialect)
}

var (
	withGPS = exiftest.Fixture{
		DateTime:    "2021:06:15 10:30:00",
		LatitudeRef: "N", Latitude: exiftest.DMS(48, 51, 0),
		LongitudeRef: "E", Longitude: exiftest.DMS(2, 21, 0),
	}
	withoutGPS = exiftest.Fixture{DateTime: "2021:06:15 10:30:00"}
)

func writePicture(t *testing.T, root, rel string, f exiftest.Fixture) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	exiftest.WriteFile(t, path, f)
}

func pathnames(t *testing.T, store repository.RecordStore) []string {
	t.Helper()
	recs, err := store.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	var out []string
	for _, r := range recs {
		out = append(out, r.Pathname)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestArchivalPathname(t *testing.T) {
	root := filepath.Join("photos", "2021")
	got, err := ArchivalPathname(filepath.Join(root, "june", "a.jpg"), root)
	if err != nil {
		t.Fatal(err)
	}
	if got != "june/a.jpg" {
		t.Errorf("pathname = %q, want june/a.jpg", got)
	}

	got, err = ArchivalPathname(filepath.Join("x", "b.jpg"), "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "x/b.jpg" {
		t.Errorf("pathname without root = %q", got)
	}
}

func TestScanDirectoryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writePicture(t, root, "a.jpg", withGPS)
	writePicture(t, root, "b.JPEG", withoutGPS)
	writePicture(t, root, "sub/c.jpg", withGPS)
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newStore(t)
	enricher := &fakeEnricher{lookup: paris}
	j := journal.New()
	in := NewIngester(store, enricher, j, zap.NewNop())

	stats, err := in.ScanDirectory(ctx, root)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if stats != (ScanStats{Visited: 3, Inserted: 3}) {
		t.Errorf("first scan stats = %+v", stats)
	}
	if enricher.calls != 2 {
		t.Errorf("enricher calls = %d, want 2", enricher.calls)
	}
	if j.Len() != 3 {
		t.Errorf("journal has %d records, want 3", j.Len())
	}
	rec, ok := j.Get("sub/c.jpg")
	if !ok || rec.City != "Paris" || rec.ExtraData == nil || rec.BlobID == nil {
		t.Errorf("journaled record = %+v", rec)
	}

	stats, err = in.ScanDirectory(ctx, root)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if stats != (ScanStats{Visited: 3, Skipped: 3}) {
		t.Errorf("second scan stats = %+v", stats)
	}
	if enricher.calls != 2 {
		t.Errorf("second scan called the enricher: %d calls", enricher.calls)
	}
	if got := pathnames(t, store); len(got) != 3 {
		t.Errorf("store holds %v", got)
	}
}

func TestScanDirectoryOrder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"10.jpg", "2.jpg", "1.jpg", "b/1.jpg", "a/1.jpg"} {
		writePicture(t, root, name, withoutGPS)
	}

	store := newStore(t)
	in := NewIngester(store, &fakeEnricher{lookup: paris}, journal.New(), zap.NewNop())
	if _, err := in.ScanDirectory(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	want := []string{"1.jpg", "2.jpg", "10.jpg", "a/1.jpg", "b/1.jpg"}
	if got := pathnames(t, store); !equalStrings(got, want) {
		t.Errorf("insert order = %v, want %v", got, want)
	}
}

func TestScanDirectoryStopsWhenQuotaRunsOut(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"status": {"code": 200}, "results": []}`)
	}))
	defer srv.Close()

	root := t.TempDir()
	writePicture(t, root, "1.jpg", withoutGPS)
	writePicture(t, root, "2.jpg", withGPS)
	writePicture(t, root, "3.jpg", withoutGPS)
	writePicture(t, root, "sub/4.jpg", withoutGPS)

	quota := geocode.NewQuotaLimiter("key", geocode.SafetyThreshold-1)
	enricher := geocode.NewEnricher(srv.URL, quota, time.Second, zap.NewNop())
	store := newStore(t)
	j := journal.New()
	in := NewIngester(store, enricher, j, zap.NewNop())

	stats, err := in.ScanDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("ScanDirectory: %v", err)
	}
	if !stats.Stopped {
		t.Error("scan did not stop")
	}
	if stats.Inserted != 1 || stats.Visited != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("provider called %d times", n)
	}
	if got := pathnames(t, store); !equalStrings(got, []string{"1.jpg"}) {
		t.Errorf("stored = %v, want [1.jpg]", got)
	}
	if j.Len() != 1 {
		t.Errorf("journal has %d records, want 1", j.Len())
	}
}

func TestInvalidLongitudeSkipsEnrichment(t *testing.T) {
	root := t.TempDir()
	writePicture(t, root, "far.jpg", exiftest.Fixture{
		LatitudeRef: "N", Latitude: exiftest.DMS(10, 0, 0),
		LongitudeRef: "E", Longitude: exiftest.DMS(200, 0, 0),
	})

	store := newStore(t)
	enricher := &fakeEnricher{lookup: paris}
	in := NewIngester(store, enricher, journal.New(), zap.NewNop())

	inserted, err := in.IngestFile(context.Background(), filepath.Join(root, "far.jpg"), root)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if !inserted {
		t.Fatal("file not inserted")
	}
	if enricher.calls != 0 {
		t.Errorf("enricher called %d times", enricher.calls)
	}
	recs, err := store.ReadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].City != "" || recs[0].Country != "" || recs[0].BlobID != nil {
		t.Errorf("stored record was enriched: %+v", recs[0])
	}
}

func TestScanDirectoryIsolatesFailures(t *testing.T) {
	root := t.TempDir()
	writePicture(t, root, "1.jpg", withGPS)
	writePicture(t, root, "2.jpg", withoutGPS)

	store := newStore(t)
	enricher := &fakeEnricher{lookup: func(float64, float64) (geocode.Location, error) {
		return geocode.Location{}, errors.New("connection reset")
	}}
	j := journal.New()
	in := NewIngester(store, enricher, j, zap.NewNop())

	stats, err := in.ScanDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("ScanDirectory: %v", err)
	}
	if stats != (ScanStats{Visited: 2, Inserted: 1, Failed: 1}) {
		t.Errorf("stats = %+v", stats)
	}
	if got := pathnames(t, store); !equalStrings(got, []string{"2.jpg"}) {
		t.Errorf("stored = %v, want [2.jpg]", got)
	}
	if _, ok := j.Get("1.jpg"); ok {
		t.Error("failed file was journaled")
	}
}

func TestScanDirectoryMissingRoot(t *testing.T) {
	in := NewIngester(newStore(t), &fakeEnricher{lookup: paris}, journal.New(), zap.NewNop())
	if _, err := in.ScanDirectory(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("scan of a missing root succeeded")
	}
}

func TestScanDirectoryFollowsFileSymlinks(t *testing.T) {
	root := t.TempDir()
	elsewhere := t.TempDir()
	writePicture(t, elsewhere, "target.jpg", withoutGPS)
	if err := os.Symlink(filepath.Join(elsewhere, "target.jpg"), filepath.Join(root, "link.jpg")); err != nil {
		t.Skipf("symlinks not available: %v", err)
	}
	if err := os.Symlink(filepath.Join(elsewhere, "gone.jpg"), filepath.Join(root, "dangling.jpg")); err != nil {
		t.Fatal(err)
	}

	store := newStore(t)
	in := NewIngester(store, &fakeEnricher{lookup: paris}, journal.New(), zap.NewNop())
	stats, err := in.ScanDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("ScanDirectory: %v", err)
	}
	if stats != (ScanStats{Visited: 1, Inserted: 1}) {
		t.Errorf("stats = %+v", stats)
	}
	if got := pathnames(t, store); !equalStrings(got, []string{"link.jpg"}) {
		t.Errorf("stored = %v, want [link.jpg]", got)
	}
}

func TestScanDirectoryRollsBackFailedWrite(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writePicture(t, root, "1.jpg", withGPS)
	writePicture(t, root, "2.jpg", withoutGPS)

	store := newStore(t)
	// the payload insert of the enriched file fails after its picture row
	if _, err := store.DB.ExecContext(ctx, "DROP TABLE extra_data"); err != nil {
		t.Fatalf("drop extra_data: %v", err)
	}
	j := journal.New()
	in := NewIngester(store, &fakeEnricher{lookup: paris}, j, zap.NewNop())

	stats, err := in.ScanDirectory(ctx, root)
	if err != nil {
		t.Fatalf("ScanDirectory: %v", err)
	}
	if stats != (ScanStats{Visited: 2, Inserted: 1, Failed: 1}) {
		t.Errorf("stats = %+v", stats)
	}
	exists, err := store.Exists(ctx, "1.jpg")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("picture row of the failed file was committed")
	}
	// ReadAll joins extra_data, so check the surviving file directly
	exists, err = store.Exists(ctx, "2.jpg")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("file after the failed one was not stored")
	}
	if _, ok := j.Get("1.jpg"); ok {
		t.Error("failed file was journaled")
	}
	if _, ok := j.Get("2.jpg"); !ok {
		t.Error("stored file missing from the journal")
	}
}
