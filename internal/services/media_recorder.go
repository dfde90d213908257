package services

import (
	"context"

	"sentinal-media/internal/domain/media"
	"sentinal-media/internal/repository"

	"github.com/google/uuid"
)

// TxMediaRecorder stores the media file and its processing message in one
// transaction.
type TxMediaRecorder struct {
	db        repository.DBTX
	files     repository.MediaFileRepository
	publisher *EventPublisher
}

func NewTxMediaRecorder(db repository.DBTX, files repository.MediaFileRepository, publisher *EventPublisher) *TxMediaRecorder {
	return &TxMediaRecorder{db: db, files: files, publisher: publisher}
}

// Record inserts f. When another completion already recorded the upload f is
// replaced by the stored row, created is false and no message is queued.
func (r *TxMediaRecorder) Record(ctx context.Context, f *media.MediaFile) (bool, error) {
	var created bool
	err := repository.WithTx(ctx, r.db, func(tx repository.DBTX) error {
		var err error
		created, err = r.files.Create(ctx, tx, f)
		if err != nil || !created {
			return err
		}
		return r.publisher.PublishFileUploaded(ctx, tx, f)
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *TxMediaRecorder) FindByUploadID(ctx context.Context, uploadID uuid.UUID) (media.MediaFile, error) {
	return r.files.GetByUploadID(ctx, uploadID)
}
