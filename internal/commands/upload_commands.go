package commands

import (
	"fmt"
	"io"

	"sentinal-media/internal/domain/media"
	sentinal_errors "sentinal-media/pkg/errors"

	"github.com/google/uuid"
)

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", sentinal_errors.ErrInvalidUploadRequest, reason)
}

// StartUploadCommand declares a new chunked upload
type StartUploadCommand struct {
	UploaderID      uuid.UUID
	FileName        string
	MimeType        string
	TotalSizeBytes  int64
	TotalChunkCount int
	MediaType       string
}

func (StartUploadCommand) CommandType() string { return "upload.start" }

func (c StartUploadCommand) Validate() error {
	if c.UploaderID == uuid.Nil {
		return sentinal_errors.ErrUnauthorized
	}
	if _, ok := media.CleanFileName(c.FileName); !ok {
		return invalid("fileName is required")
	}
	if c.TotalSizeBytes <= 0 {
		return invalid("totalSizeBytes must be positive")
	}
	if c.TotalChunkCount <= 0 {
		return invalid("totalChunkCount must be positive")
	}
	if int64(c.TotalChunkCount) > c.TotalSizeBytes {
		return invalid("totalChunkCount exceeds totalSizeBytes")
	}
	if c.MimeType == "" {
		return invalid("mimeType is required")
	}
	mediaType, ok := media.ParseMediaType(c.MediaType)
	if !ok {
		return invalid(fmt.Sprintf("unknown mediaType %q", c.MediaType))
	}
	if !mediaType.AcceptsMime(c.MimeType) {
		return fmt.Errorf("%w: %s is not a valid %s mime type", sentinal_errors.ErrUnsupportedMediaType, c.MimeType, mediaType)
	}
	return nil
}

func (c StartUploadCommand) ActorID() uuid.UUID { return c.UploaderID }

// ReceiveChunkCommand carries one chunk body
type ReceiveChunkCommand struct {
	UploadID    uuid.UUID
	UploaderID  uuid.UUID
	ChunkNumber int
	Body        io.Reader
}

func (ReceiveChunkCommand) CommandType() string { return "upload.chunk" }

func (c ReceiveChunkCommand) Validate() error {
	if c.UploaderID == uuid.Nil {
		return sentinal_errors.ErrUnauthorized
	}
	if c.UploadID == uuid.Nil {
		return invalid("uploadId is required")
	}
	if c.Body == nil {
		return invalid("chunk body is required")
	}
	return nil
}

func (c ReceiveChunkCommand) ActorID() uuid.UUID { return c.UploaderID }

// CompleteUploadCommand finalizes an upload
type CompleteUploadCommand struct {
	UploadID   uuid.UUID
	UploaderID uuid.UUID
}

func (CompleteUploadCommand) CommandType() string { return "upload.complete" }

func (c CompleteUploadCommand) Validate() error {
	if c.UploaderID == uuid.Nil {
		return sentinal_errors.ErrUnauthorized
	}
	if c.UploadID == uuid.Nil {
		return invalid("uploadId is required")
	}
	return nil
}

func (c CompleteUploadCommand) ActorID() uuid.UUID { return c.UploaderID }

// GetUploadStatusCommand reads the progress of an upload
type GetUploadStatusCommand struct {
	UploadID   uuid.UUID
	UploaderID uuid.UUID
}

func (GetUploadStatusCommand) CommandType() string { return "upload.status" }

func (c GetUploadStatusCommand) Validate() error {
	if c.UploaderID == uuid.Nil {
		return sentinal_errors.ErrUnauthorized
	}
	if c.UploadID == uuid.Nil {
		return invalid("uploadId is required")
	}
	return nil
}

func (c GetUploadStatusCommand) ActorID() uuid.UUID { return c.UploaderID }
