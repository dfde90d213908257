package media

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// UploadSession tracks one in-flight chunked upload. It lives only in the
// session store and disappears on completion or TTL expiry.
type UploadSession struct {
	UploadID        uuid.UUID
	UploaderID      uuid.UUID
	FileName        string
	MimeType        string
	TotalSizeBytes  int64
	TotalChunkCount int
	MediaType       MediaType
	CreatedAt       time.Time

	receivedChunks map[int]struct{}
}

func NewUploadSession(uploaderID uuid.UUID, fileName, mimeType string, totalSize int64, totalChunks int, mediaType MediaType, now time.Time) *UploadSession {
	return &UploadSession{
		UploadID:        uuid.New(),
		UploaderID:      uploaderID,
		FileName:        fileName,
		MimeType:        mimeType,
		TotalSizeBytes:  totalSize,
		TotalChunkCount: totalChunks,
		MediaType:       mediaType,
		CreatedAt:       now.UTC(),
		receivedChunks:  make(map[int]struct{}),
	}
}

// InRange reports whether chunkNumber belongs to this upload.
func (s *UploadSession) InRange(chunkNumber int) bool {
	return chunkNumber >= 0 && chunkNumber < s.TotalChunkCount
}

// AddChunk records chunkNumber. It returns false when the number is out of
// range or already recorded.
func (s *UploadSession) AddChunk(chunkNumber int) bool {
	if !s.InRange(chunkNumber) {
		return false
	}
	if s.receivedChunks == nil {
		s.receivedChunks = make(map[int]struct{})
	}
	if _, ok := s.receivedChunks[chunkNumber]; ok {
		return false
	}
	s.receivedChunks[chunkNumber] = struct{}{}
	return true
}

func (s *UploadSession) HasChunk(chunkNumber int) bool {
	_, ok := s.receivedChunks[chunkNumber]
	return ok
}

func (s *UploadSession) ReceivedCount() int {
	return len(s.receivedChunks)
}

func (s *UploadSession) IsComplete() bool {
	return s.TotalChunkCount > 0 && len(s.receivedChunks) == s.TotalChunkCount
}

func (s *UploadSession) MissingCount() int {
	return s.TotalChunkCount - len(s.receivedChunks)
}

// ReceivedChunks returns the recorded chunk numbers in ascending order.
func (s *UploadSession) ReceivedChunks() []int {
	out := make([]int, 0, len(s.receivedChunks))
	for n := range s.receivedChunks {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// MissingChunks returns the chunk numbers not yet recorded, ascending.
func (s *UploadSession) MissingChunks() []int {
	out := make([]int, 0, s.MissingCount())
	for n := 0; n < s.TotalChunkCount; n++ {
		if !s.HasChunk(n) {
			out = append(out, n)
		}
	}
	return out
}
