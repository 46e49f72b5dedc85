package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// maximum place-name lengths, matching the picture table columns
const (
	MaxCountryLen = 20
	MaxRegionLen  = 20
	MaxCityLen    = 30
)

// naive ISO timestamps written without a zone offset
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// PictureRecord is a picture as it flows through the ingestion pipeline.
// PictureID and BlobID are set by the store once the record is persisted.
type PictureRecord struct {
	DateTaken  *time.Time
	WeekNumber int
	Latitude   float64
	Longitude  float64
	Altitude   float64
	Country    string
	Region     string
	City       string
	Pathname   string
	ExtraData  map[string]any

	PictureID *int64
	BlobID    *int64
}

// SetDateTaken sets the capture date and derives the week number from it.
func (p *PictureRecord) SetDateTaken(t time.Time) {
	p.DateTaken = &t
	p.WeekNumber = WeekNumber(t)
}

// ShouldEnrich reports whether the coordinates are worth a reverse lookup.
func (p *PictureRecord) ShouldEnrich() bool {
	if p.Latitude == 0 && p.Longitude == 0 {
		return false
	}
	return p.Longitude <= 180 && p.Longitude >= -180
}

// HasExtraData reports whether a raw payload row must be written.
func (p *PictureRecord) HasExtraData() bool {
	return len(p.ExtraData) > 0
}

// Truncated returns a copy with place names clipped to their column sizes.
func (p PictureRecord) Truncated() PictureRecord {
	p.Country = clip(p.Country, MaxCountryLen)
	p.Region = clip(p.Region, MaxRegionLen)
	p.City = clip(p.City, MaxCityLen)
	return p
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// WeekNumber returns the week of the year with Monday as the first day of
// the week. Days before the first Monday of the year are in week 0.
func WeekNumber(t time.Time) int {
	yday := t.YearDay() - 1
	wday := (int(t.Weekday()) + 6) % 7 // monday = 0
	return (yday + 7 - wday) / 7
}

// journalRecord is the portable on-disk form of a PictureRecord.
type journalRecord struct {
	DateTaken string         `json:"date_taken"`
	Week      int            `json:"week"`
	LatVal    float64        `json:"latval"`
	LongVal   float64        `json:"longval"`
	Alt       float64        `json:"alt"`
	Country   string         `json:"country"`
	Region    string         `json:"region"`
	City      string         `json:"city"`
	Pathname  string         `json:"pathname"`
	ExtraData map[string]any `json:"extra_data"`

	// only read; store-local ids are never written out
	PictureID *int64 `json:"picture_id,omitempty"`
	BlobID    *int64 `json:"blob_id,omitempty"`
}

// MarshalJSON writes the journal form. Store ids are omitted.
func (p PictureRecord) MarshalJSON() ([]byte, error) {
	rec := journalRecord{
		Week:      p.WeekNumber,
		LatVal:    p.Latitude,
		LongVal:   p.Longitude,
		Alt:       p.Altitude,
		Country:   p.Country,
		Region:    p.Region,
		City:      p.City,
		Pathname:  p.Pathname,
		ExtraData: p.ExtraData,
	}
	if p.DateTaken != nil {
		rec.DateTaken = p.DateTaken.Format(time.RFC3339Nano)
	}
	return json.Marshal(rec)
}

// UnmarshalJSON reads the journal form, including ids if an older file has them.
func (p *PictureRecord) UnmarshalJSON(data []byte) error {
	var rec journalRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	*p = PictureRecord{
		WeekNumber: rec.Week,
		Latitude:   rec.LatVal,
		Longitude:  rec.LongVal,
		Altitude:   rec.Alt,
		Country:    rec.Country,
		Region:     rec.Region,
		City:       rec.City,
		Pathname:   rec.Pathname,
		ExtraData:  rec.ExtraData,
		PictureID:  rec.PictureID,
		BlobID:     rec.BlobID,
	}
	if rec.DateTaken != "" {
		t, err := parseJournalTime(rec.DateTaken)
		if err != nil {
			return fmt.Errorf("invalid date_taken for %s: %w", rec.Pathname, err)
		}
		p.DateTaken = &t
	}
	return nil
}

func parseJournalTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Row converts the record into its picture table row, truncating place names.
func (p *PictureRecord) Row() Picture {
	t := p.Truncated()
	row := Picture{
		BlobID:     p.BlobID,
		DateTaken:  p.DateTaken,
		WeekNumber: p.WeekNumber,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Altitude:   p.Altitude,
		Country:    t.Country,
		Region:     t.Region,
		City:       t.City,
		Pathname:   p.Pathname,
	}
	if p.PictureID != nil {
		row.PictureID = *p.PictureID
	}
	return row
}

// RecordFromRow rebuilds a record from a stored row and its optional payload.
func RecordFromRow(row Picture, extra map[string]any) *PictureRecord {
	id := row.PictureID
	return &PictureRecord{
		DateTaken:  row.DateTaken,
		WeekNumber: row.WeekNumber,
		Latitude:   row.Latitude,
		Longitude:  row.Longitude,
		Altitude:   row.Altitude,
		Country:    row.Country,
		Region:     row.Region,
		City:       row.City,
		Pathname:   row.Pathname,
		ExtraData:  extra,
		PictureID:  &id,
		BlobID:     row.BlobID,
	}
}
