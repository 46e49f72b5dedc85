package models

import "time"

// Picture represents a row of the 'picture' table.
// Pathname is the archival identity of the file and is unique.
type Picture struct {
	PictureID  int64      `gorm:"column:picture_id;primaryKey;autoIncrement" json:"picture_id"`
	BlobID     *int64     `gorm:"column:blob_id" json:"blob_id,omitempty"` // Nullable, set only when extra data exists
	DateTaken  *time.Time `gorm:"column:date_taken" json:"date_taken,omitempty"`
	WeekNumber int        `gorm:"column:week_number" json:"week_number"`
	Latitude   float64    `gorm:"column:latitude" json:"latitude"`
	Longitude  float64    `gorm:"column:longitude" json:"longitude"`
	Altitude   float64    `gorm:"column:altitude" json:"altitude"`
	Country    string     `gorm:"column:country;size:20" json:"country"`
	Region     string     `gorm:"column:region;size:20" json:"region"`
	City       string     `gorm:"column:city;size:30" json:"city"`
	Pathname   string     `gorm:"column:pathname;size:128;uniqueIndex" json:"pathname"`
}

// TableName explicitly sets the table name for GORM.
func (Picture) TableName() string {
	return "picture"
}

// ExtraData holds the raw geocoding response captured for a picture.
// PictureID is a back-reference; the picture row owns the blob.
type ExtraData struct {
	BlobID    int64  `gorm:"column:blob_id;primaryKey;autoIncrement" json:"blob_id"`
	PictureID int64  `gorm:"column:picture_id;index" json:"picture_id"`
	JSONData  []byte `gorm:"column:jsondata" json:"-"`
}

func (ExtraData) TableName() string {
	return "extra_data"
}
