package media

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MediaType string

const (
	MediaTypeImage MediaType = "IMAGE"
	MediaTypeVideo MediaType = "VIDEO"
	MediaTypeOther MediaType = "OTHER"
)

// ParseMediaType accepts the declared type case-insensitively.
func ParseMediaType(value string) (MediaType, bool) {
	switch MediaType(strings.ToUpper(strings.TrimSpace(value))) {
	case MediaTypeImage:
		return MediaTypeImage, true
	case MediaTypeVideo:
		return MediaTypeVideo, true
	case MediaTypeOther:
		return MediaTypeOther, true
	default:
		return "", false
	}
}

// AcceptsMime reports whether the declared mime type is consistent with t.
func (t MediaType) AcceptsMime(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch t {
	case MediaTypeImage:
		return strings.HasPrefix(mimeType, "image/")
	case MediaTypeVideo:
		return strings.HasPrefix(mimeType, "video/")
	default:
		return mimeType != ""
	}
}

// CleanFileName reduces name to its last path element. It reports false when
// nothing usable remains.
func CleanFileName(name string) (string, bool) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return "", false
	}
	base := path.Base(name)
	switch base {
	case ".", "..", "/":
		return "", false
	}
	return base, true
}

type Status string

// PENDING is the only status set here; ACTIVE and FAILED are written by the
// processing worker, DELETED by the orphan sweeper.
const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
	StatusFailed  Status = "FAILED"
	StatusDeleted Status = "DELETED"
)

// MediaFile is the durable record of an assembled upload (media_files).
type MediaFile struct {
	ID               int64
	UploadID         uuid.UUID
	UploaderID       uuid.UUID
	OriginalFileName string
	StoragePath      string
	MimeType         string
	SizeBytes        int64
	MediaType        MediaType
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPendingFile builds the record for a freshly assembled session.
func NewPendingFile(s *UploadSession, storagePath string, now time.Time) *MediaFile {
	return &MediaFile{
		UploadID:         s.UploadID,
		UploaderID:       s.UploaderID,
		OriginalFileName: s.FileName,
		StoragePath:      storagePath,
		MimeType:         s.MimeType,
		SizeBytes:        s.TotalSizeBytes,
		MediaType:        s.MediaType,
		Status:           StatusPending,
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}
}
