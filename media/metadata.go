package media

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/camden-git/photodb/models"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
)

// DateTimeLayout is the textual format of the EXIF DateTime tag.
const DateTimeLayout = "2006:01:02 15:04:05"

// default hemisphere references used when the GPS ref tags are missing
const (
	defaultLatitudeRef  = "N"
	defaultLongitudeRef = "W"
	aboveSeaLevel       = 0
)

// helper to safely get a string tag, trimming null terminators
func getString(exifData *exif.Exif, tagName exif.FieldName, def string) string {
	if exifData == nil {
		return def
	}
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return def
	}
	val, err := tag.StringVal()
	if err != nil {
		return def
	}
	val = strings.TrimSpace(strings.TrimRight(val, "\x00"))
	if val == "" {
		return def
	}
	return val
}

// helper to get the i'th rational of a tag as a float
func ratAt(exifData *exif.Exif, tagName exif.FieldName, i int) (float64, bool) {
	if exifData == nil {
		return 0, false
	}
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return 0, false
	}
	num, den, err := tag.Rat2(i)
	if err != nil || den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

// getDMS reads a degrees/minutes/seconds triple. a missing or malformed
// tag is (0, 0, 0).
func getDMS(exifData *exif.Exif, tagName exif.FieldName) [3]float64 {
	var dms [3]float64
	for i := range dms {
		v, ok := ratAt(exifData, tagName, i)
		if !ok {
			return [3]float64{}
		}
		dms[i] = v
	}
	return dms
}

func getInt(exifData *exif.Exif, tagName exif.FieldName, def int) int {
	if exifData == nil {
		return def
	}
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return def
	}
	val, err := tag.Int(0)
	if err != nil {
		return def
	}
	return val
}

func decimalDegrees(dms [3]float64) float64 {
	return dms[0] + dms[1]/60.0 + dms[2]/3600.0
}

// ExtractMetadata reads capture date and GPS position from an image stream.
// It never fails: missing or unreadable tags fall back to their defaults.
// The returned record has no pathname and no place names.
func ExtractMetadata(r io.Reader, log *zap.Logger) *models.PictureRecord {
	exifData, err := exif.Decode(r)
	if err != nil {
		// not fatal, the file might just lack EXIF data
		log.Debug("metadata: no EXIF data found", zap.Error(err))
		exifData = nil
	}

	rec := &models.PictureRecord{}

	if dt := getString(exifData, exif.DateTime, ""); dt != "" {
		log.Debug("metadata: datetime field present", zap.String("datetime", dt))
		t, err := time.ParseInLocation(DateTimeLayout, dt, time.Local)
		if err == nil {
			rec.SetDateTaken(t)
		} else {
			log.Debug("metadata: malformed datetime field", zap.String("datetime", dt), zap.Error(err))
		}
	} else {
		log.Debug("metadata: datetime field not present")
	}

	lat := getDMS(exifData, exif.GPSLatitude)
	latVal := decimalDegrees(lat)
	latRef := getString(exifData, exif.GPSLatitudeRef, defaultLatitudeRef)
	if latRef == "S" {
		latVal = -latVal
	}

	long := getDMS(exifData, exif.GPSLongitude)
	longVal := decimalDegrees(long)
	longRef := getString(exifData, exif.GPSLongitudeRef, defaultLongitudeRef)
	if longRef == "W" {
		longVal = -longVal
	}
	log.Debug("metadata: GPS position",
		zap.Float64s("latitude_dms", lat[:]), zap.String("latitude_ref", latRef),
		zap.Float64s("longitude_dms", long[:]), zap.String("longitude_ref", longRef))

	alt, _ := ratAt(exifData, exif.GPSAltitude, 0)
	altRef := getInt(exifData, exif.GPSAltitudeRef, aboveSeaLevel)
	if altRef != aboveSeaLevel {
		alt = -alt
	}
	log.Debug("metadata: GPS altitude", zap.Float64("altitude", alt), zap.Int("altitude_ref", altRef))

	rec.Latitude = latVal
	rec.Longitude = longVal
	rec.Altitude = alt
	return rec
}

// ProcessPictureFile extracts the metadata of a picture file, falling back
// to the file modification time when no capture date is recorded.
func ProcessPictureFile(path string, log *zap.Logger) (*models.PictureRecord, error) {
	log.Info("processing picture", zap.String("path", path))

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to stat file %s: %w", path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to open file %s: %w", path, err)
	}
	defer file.Close()

	rec := ExtractMetadata(file, log.With(zap.String("path", path)))
	if rec.DateTaken == nil {
		rec.SetDateTaken(info.ModTime())
	}
	return rec, nil
}
