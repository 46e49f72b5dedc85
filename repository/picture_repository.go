package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/camden-git/photodb/database"
	"github.com/camden-git/photodb/models"
)

// PictureRepository handles database operations for picture records
type PictureRepository struct {
	DB      *sql.DB
	Dialect database.Dialect
}

// NewPictureRepository creates a new instance of PictureRepository
func NewPictureRepository(db *sql.DB, dialect database.Dialect) *PictureRepository {
	return &PictureRepository{DB: db, Dialect: dialect}
}

// Exists reports whether a picture with this pathname is already stored
func (r *PictureRepository) Exists(ctx context.Context, pathname string) (bool, error) {
	return database.PictureExists(ctx, r.DB, r.Dialect, pathname)
}

// Insert stores the picture row and, when present, its raw payload, then
// links the two. Everything happens in one transaction; on error nothing is
// written and rec is left unchanged.
func (r *PictureRepository) Insert(ctx context.Context, rec *models.PictureRecord) (bool, error) {
	var payload []byte
	if rec.HasExtraData() {
		var err error
		payload, err = json.MarshalIndent(rec.ExtraData, "", "   ")
		if err != nil {
			return false, fmt.Errorf("failed to encode extra data for %s: %w", rec.Pathname, err)
		}
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction for %s: %w", rec.Pathname, err)
	}
	defer tx.Rollback()

	exists, err := database.PictureExists(ctx, tx, r.Dialect, rec.Pathname)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	row := rec.Row()
	pictureID, err := database.InsertPicture(ctx, tx, r.Dialect, row)
	if err != nil {
		return false, err
	}

	var blobID *int64
	if payload != nil {
		id, err := database.InsertExtraData(ctx, tx, r.Dialect, pictureID, payload)
		if err != nil {
			return false, err
		}
		if err := database.SetPictureBlob(ctx, tx, r.Dialect, pictureID, id); err != nil {
			return false, err
		}
		blobID = &id
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit insert transaction for %s: %w", rec.Pathname, err)
	}

	rec.PictureID = &pictureID
	rec.BlobID = blobID
	return true, nil
}

// ReadAll returns every stored picture with its decoded raw payload
func (r *PictureRepository) ReadAll(ctx context.Context) ([]*models.PictureRecord, error) {
	rows, err := database.ListPictures(ctx, r.DB, r.Dialect)
	if err != nil {
		return nil, err
	}

	records := make([]*models.PictureRecord, 0, len(rows))
	for _, row := range rows {
		var extra map[string]any
		if len(row.JSONData) > 0 {
			if err := json.Unmarshal(row.JSONData, &extra); err != nil {
				return nil, fmt.Errorf("failed to decode extra data of picture %d (%s): %w",
					row.Picture.PictureID, row.Picture.Pathname, err)
			}
		}
		records = append(records, models.RecordFromRow(row.Picture, extra))
	}
	return records, nil
}
