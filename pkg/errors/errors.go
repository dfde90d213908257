package sentinal_errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Upload errors. Each maps to exactly one stable code, see Code.
var (
	ErrInvalidUploadRequest  = errors.New("invalid upload request")
	ErrUploadSessionNotFound = errors.New("upload session not found")
	ErrInvalidChunkNumber    = errors.New("invalid chunk number")
	ErrUploadIncomplete      = errors.New("upload incomplete")
	ErrAssemblyFailure       = errors.New("assembly failure")
	ErrAccessDenied          = fmt.Errorf("access denied: %w", ErrForbidden)
	ErrChunkTooLarge         = errors.New("chunk too large")
	ErrUnsupportedMediaType  = fmt.Errorf("unsupported media type: %w", ErrInvalidUploadRequest)
)

// IncompleteError reports how many chunks are still missing when completion
// is requested early.
type IncompleteError struct {
	Missing int
	Total   int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("upload incomplete: %d of %d chunks missing", e.Missing, e.Total)
}

func (e *IncompleteError) Unwrap() error {
	return ErrUploadIncomplete
}

// MissingChunks extracts the missing chunk count from err, if it carries one.
func MissingChunks(err error) (int, bool) {
	var incomplete *IncompleteError
	if errors.As(err, &incomplete) {
		return incomplete.Missing, true
	}
	return 0, false
}

const (
	CodeInvalidUploadRequest  = "INVALID_UPLOAD_REQUEST"
	CodeUploadSessionNotFound = "UPLOAD_SESSION_NOT_FOUND"
	CodeInvalidChunkNumber    = "INVALID_CHUNK_NUMBER"
	CodeUploadIncomplete      = "UPLOAD_INCOMPLETE"
	CodeAssemblyFailure       = "ASSEMBLY_FAILURE"
	CodeAccessDenied          = "ACCESS_DENIED"
	CodeChunkTooLarge         = "CHUNK_TOO_LARGE"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeInternal              = "INTERNAL_ERROR"
)

// Code returns the client facing code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidUploadRequest), errors.Is(err, ErrInvalidInput):
		return CodeInvalidUploadRequest
	case errors.Is(err, ErrUploadSessionNotFound):
		return CodeUploadSessionNotFound
	case errors.Is(err, ErrInvalidChunkNumber):
		return CodeInvalidChunkNumber
	case errors.Is(err, ErrUploadIncomplete):
		return CodeUploadIncomplete
	case errors.Is(err, ErrAssemblyFailure):
		return CodeAssemblyFailure
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrForbidden):
		return CodeAccessDenied
	case errors.Is(err, ErrChunkTooLarge):
		return CodeChunkTooLarge
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeInternal
	}
}
