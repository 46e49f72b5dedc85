package repository

import (
	"context"

	"github.com/camden-git/photodb/models"
)

// DuplicateChecker decides whether an archival pathname was already imported
type DuplicateChecker interface {
	Exists(ctx context.Context, pathname string) (bool, error)
}

// RecordStore defines the persistence operations of the ingestion pipeline
type RecordStore interface {
	DuplicateChecker
	// Insert persists rec in one transaction and fills in its ids. it returns
	// false without error when the pathname is already stored.
	Insert(ctx context.Context, rec *models.PictureRecord) (bool, error)
	// ReadAll returns every stored record in picture_id order
	ReadAll(ctx context.Context) ([]*models.PictureRecord, error)
}
