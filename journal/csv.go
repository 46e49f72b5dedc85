package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/camden-git/photodb/models"
)

// CSVRow is the flat CSV form of a stored record. Extra data is not exported.
type CSVRow struct {
	PictureID  int64   `csv:"picture_id"`
	DateTaken  string  `csv:"date_taken"`
	WeekNumber int     `csv:"week"`
	Latitude   float64 `csv:"latval"`
	Longitude  float64 `csv:"longval"`
	Altitude   float64 `csv:"alt"`
	Country    string  `csv:"country"`
	Region     string  `csv:"region"`
	City       string  `csv:"city"`
	Pathname   string  `csv:"pathname"`
}

func csvRowFromRecord(rec *models.PictureRecord) CSVRow {
	row := CSVRow{
		WeekNumber: rec.WeekNumber,
		Latitude:   rec.Latitude,
		Longitude:  rec.Longitude,
		Altitude:   rec.Altitude,
		Country:    rec.Country,
		Region:     rec.Region,
		City:       rec.City,
		Pathname:   rec.Pathname,
	}
	if rec.PictureID != nil {
		row.PictureID = *rec.PictureID
	}
	if rec.DateTaken != nil {
		row.DateTaken = rec.DateTaken.Format(time.RFC3339)
	}
	return row
}

// ExportCSV writes records as CSV with a header line.
func ExportCSV(w io.Writer, records []*models.PictureRecord) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if len(records) == 0 {
		if err := enc.EncodeHeader(CSVRow{}); err != nil {
			return fmt.Errorf("failed to encode CSV header: %w", err)
		}
	}
	for _, rec := range records {
		if err := enc.Encode(csvRowFromRecord(rec)); err != nil {
			return fmt.Errorf("failed to encode CSV row for %s: %w", rec.Pathname, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}
