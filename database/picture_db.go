package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/camden-git/photodb/models"
)

// PictureRow is a picture row joined with its optional raw payload.
type PictureRow struct {
	Picture  models.Picture
	JSONData []byte
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// insertReturning runs an insert and returns the generated key, using
// RETURNING where the dialect has it and LastInsertId otherwise.
func insertReturning(ctx context.Context, db Querier, d Dialect, qb sq.InsertBuilder, key string) (int64, error) {
	if d.returning {
		sqlStr, args, err := qb.Suffix("RETURNING " + key).ToSql()
		if err != nil {
			return 0, err
		}
		var id int64
		if err := db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return 0, err
	}
	result, err := db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// PictureExists reports whether a picture with the given pathname is stored
func PictureExists(ctx context.Context, db Querier, d Dialect, pathname string) (bool, error) {
	queryBuilder := d.sql().Select("1").
		From("picture").
		Where(sq.Eq{"pathname": pathname}).
		Limit(1)

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build SQL query for PictureExists: %w", err)
	}

	var one int
	err = db.QueryRowContext(ctx, sqlStr, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query picture existence for %s: %w", pathname, err)
	}
	return true, nil
}

// InsertPicture inserts a picture row and returns its generated picture_id.
// blob_id is left NULL; see SetPictureBlob.
func InsertPicture(ctx context.Context, db Querier, d Dialect, p models.Picture) (int64, error) {
	queryBuilder := d.sql().Insert("picture").
		Columns("date_taken", "week_number", "latitude", "longitude", "altitude",
			"country", "region", "city", "pathname").
		Values(nullTime(p.DateTaken), p.WeekNumber, p.Latitude, p.Longitude, p.Altitude,
			p.Country, p.Region, p.City, p.Pathname)

	id, err := insertReturning(ctx, db, d, queryBuilder, "picture_id")
	if err != nil {
		return 0, fmt.Errorf("failed to insert picture %s: %w", p.Pathname, err)
	}
	return id, nil
}

// InsertExtraData stores a raw payload for a picture and returns its blob_id
func InsertExtraData(ctx context.Context, db Querier, d Dialect, pictureID int64, payload []byte) (int64, error) {
	queryBuilder := d.sql().Insert("extra_data").
		Columns("picture_id", "jsondata").
		Values(pictureID, payload)

	id, err := insertReturning(ctx, db, d, queryBuilder, "blob_id")
	if err != nil {
		return 0, fmt.Errorf("failed to insert extra data for picture %d: %w", pictureID, err)
	}
	return id, nil
}

// SetPictureBlob links a picture row to its raw payload row
func SetPictureBlob(ctx context.Context, db Querier, d Dialect, pictureID, blobID int64) error {
	queryBuilder := d.sql().Update("picture").
		Set("blob_id", blobID).
		Where(sq.Eq{"picture_id": pictureID})

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for SetPictureBlob: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to set blob %d on picture %d: %w", blobID, pictureID, err)
	}
	return nil
}

// ListPictures returns every picture joined with its raw payload, in
// picture_id order.
func ListPictures(ctx context.Context, db Querier, d Dialect) ([]PictureRow, error) {
	queryBuilder := d.sql().Select(
		"p.picture_id", "p.blob_id", "p.date_taken", "p.week_number",
		"p.latitude", "p.longitude", "p.altitude",
		"p.country", "p.region", "p.city", "p.pathname",
		"e.jsondata",
	).From("picture p").
		LeftJoin("extra_data e ON e.picture_id = p.picture_id").
		OrderBy("p.picture_id ASC")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for ListPictures: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute ListPictures query: %w", err)
	}
	defer rows.Close()

	result := []PictureRow{}
	for rows.Next() {
		var (
			r                     PictureRow
			blobID                sql.NullInt64
			dateTaken             sql.NullTime
			week                  sql.NullInt64
			lat, lon, alt         sql.NullFloat64
			country, region, city sql.NullString
			pathname              sql.NullString
		)
		err := rows.Scan(&r.Picture.PictureID, &blobID, &dateTaken, &week,
			&lat, &lon, &alt,
			&country, &region, &city, &pathname,
			&r.JSONData)
		if err != nil {
			return nil, fmt.Errorf("failed to scan picture row: %w", err)
		}

		if blobID.Valid {
			id := blobID.Int64
			r.Picture.BlobID = &id
		}
		if dateTaken.Valid {
			t := dateTaken.Time
			r.Picture.DateTaken = &t
		}
		r.Picture.WeekNumber = int(week.Int64)
		r.Picture.Latitude = lat.Float64
		r.Picture.Longitude = lon.Float64
		r.Picture.Altitude = alt.Float64
		r.Picture.Country = country.String
		r.Picture.Region = region.String
		r.Picture.City = city.String
		r.Picture.Pathname = pathname.String
		result = append(result, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating picture rows: %w", err)
	}
	return result, nil
}
