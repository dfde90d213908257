package media

import "github.com/google/uuid"

const (
	DefaultExchange = "media.exchange"

	RoutingKeyImage = "media.image.process"
	RoutingKeyVideo = "media.video.process"
	RoutingKeyFile  = "media.file.process"

	EventTypeFileUploaded = "media.file_uploaded"
	AggregateTypeFile     = "media_file"
)

// ProcessingMessage is handed to the downstream worker once per completed upload.
type ProcessingMessage struct {
	FileID      int64     `json:"file_id"`
	UploadID    uuid.UUID `json:"upload_id"`
	MediaType   MediaType `json:"media_type"`
	StoragePath string    `json:"storage_path"`
	UploaderID  uuid.UUID `json:"uploader_id"`
	FileName    string    `json:"file_name"`
	MimeType    string    `json:"mime_type"`
}

func NewProcessingMessage(f *MediaFile) ProcessingMessage {
	return ProcessingMessage{
		FileID:      f.ID,
		UploadID:    f.UploadID,
		MediaType:   f.MediaType,
		StoragePath: f.StoragePath,
		UploaderID:  f.UploaderID,
		FileName:    f.OriginalFileName,
		MimeType:    f.MimeType,
	}
}

// RoutingKey selects the processing queue for a media type.
func RoutingKey(t MediaType) string {
	switch t {
	case MediaTypeImage:
		return RoutingKeyImage
	case MediaTypeVideo:
		return RoutingKeyVideo
	default:
		return RoutingKeyFile
	}
}
