package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sentinal-media/internal/domain/media"
	"sentinal-media/internal/domain/outbox"
	sentinal_errors "sentinal-media/pkg/errors"

	"github.com/google/uuid"
)

const mediaFileColumns = `id, upload_id, uploader_id, original_file_name, storage_path, mime_type, size_bytes, media_type, status, created_at, updated_at`

type mediaFileRepository struct {
	db DBTX
}

func NewMediaFileRepository(db DBTX) MediaFileRepository {
	return &mediaFileRepository{db: db}
}

func (r *mediaFileRepository) Create(ctx context.Context, tx DBTX, f *media.MediaFile) (bool, error) {
	execDB := executor(r.db, tx)
	err := execDB.QueryRowContext(ctx, `
        INSERT INTO media_files (upload_id, uploader_id, original_file_name, storage_path, mime_type, size_bytes, media_type, status, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (upload_id) DO NOTHING
        RETURNING id
    `,
		f.UploadID,
		f.UploaderID,
		f.OriginalFileName,
		f.StoragePath,
		f.MimeType,
		f.SizeBytes,
		string(f.MediaType),
		string(f.Status),
		f.CreatedAt,
		f.UpdatedAt,
	).Scan(&f.ID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) && !isUniqueViolation(err) {
		return false, fmt.Errorf("insert media file: %w", err)
	}

	existing, err := scanMediaFile(execDB.QueryRowContext(ctx,
		`SELECT `+mediaFileColumns+` FROM media_files WHERE upload_id = $1`, f.UploadID))
	if err != nil {
		return false, fmt.Errorf("load existing media file: %w", err)
	}
	*f = existing
	return false, nil
}

func (r *mediaFileRepository) GetByID(ctx context.Context, id int64) (media.MediaFile, error) {
	return scanMediaFile(r.db.QueryRowContext(ctx,
		`SELECT `+mediaFileColumns+` FROM media_files WHERE id = $1`, id))
}

func (r *mediaFileRepository) GetByUploadID(ctx context.Context, uploadID uuid.UUID) (media.MediaFile, error) {
	return scanMediaFile(r.db.QueryRowContext(ctx,
		`SELECT `+mediaFileColumns+` FROM media_files WHERE upload_id = $1`, uploadID))
}

func (r *mediaFileRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]media.MediaFile, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+mediaFileColumns+`
        FROM media_files
        WHERE status = $1 AND created_at < $2
          AND NOT EXISTS (
              SELECT 1 FROM outbox_events o
              WHERE o.aggregate_type = $4
                AND o.aggregate_id = media_files.id::text
                AND o.status <> $5
          )
        ORDER BY created_at ASC
        LIMIT $3
    `, string(media.StatusPending), cutoff, limit, media.AggregateTypeFile, string(outbox.StatusCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []media.MediaFile
	for rows.Next() {
		f, err := scanMediaFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// MarkDeleted only transitions files that are still PENDING, so a file the
// worker activated in the meantime is left alone.
func (r *mediaFileRepository) MarkDeleted(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE media_files
        SET status = $1, updated_at = $2
        WHERE id = $3 AND status = $4
    `, string(media.StatusDeleted), time.Now().UTC(), id, string(media.StatusPending))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sentinal_errors.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMediaFile(row rowScanner) (media.MediaFile, error) {
	var (
		f         media.MediaFile
		mediaType string
		status    string
	)
	err := row.Scan(
		&f.ID,
		&f.UploadID,
		&f.UploaderID,
		&f.OriginalFileName,
		&f.StoragePath,
		&f.MimeType,
		&f.SizeBytes,
		&mediaType,
		&status,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return media.MediaFile{}, sentinal_errors.ErrNotFound
		}
		return media.MediaFile{}, err
	}
	f.MediaType = media.MediaType(mediaType)
	f.Status = media.Status(status)
	return f, nil
}
