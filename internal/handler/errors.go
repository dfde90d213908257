package handler

import (
	"net/http"

	"sentinal-media/internal/transport/httpdto"
	sentinal_errors "sentinal-media/pkg/errors"

	"github.com/gin-gonic/gin"
)

var statusByCode = map[string]int{
	sentinal_errors.CodeInvalidUploadRequest:  http.StatusBadRequest,
	sentinal_errors.CodeUploadSessionNotFound: http.StatusNotFound,
	sentinal_errors.CodeInvalidChunkNumber:    http.StatusBadRequest,
	sentinal_errors.CodeUploadIncomplete:      http.StatusConflict,
	sentinal_errors.CodeAssemblyFailure:       http.StatusInternalServerError,
	sentinal_errors.CodeAccessDenied:          http.StatusForbidden,
	sentinal_errors.CodeChunkTooLarge:         http.StatusRequestEntityTooLarge,
	sentinal_errors.CodeUnauthorized:          http.StatusUnauthorized,
	sentinal_errors.CodeInternal:              http.StatusInternalServerError,
}

// HTTPStatus returns the response status for err.
func HTTPStatus(err error) int {
	if status, ok := statusByCode[sentinal_errors.Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError renders err in the response envelope. Server side failures are
// attached to the gin context so ErrorHandler logs them, and their detail is
// not echoed to the client.
func writeError(c *gin.Context, err error) {
	code := sentinal_errors.Code(err)
	status := HTTPStatus(err)

	if missing, ok := sentinal_errors.MissingChunks(err); ok {
		c.JSON(status, httpdto.NewIncompleteUploadResponse(err.Error(), code, missing))
		return
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		message = http.StatusText(status)
		if code == sentinal_errors.CodeAssemblyFailure {
			message = "assembly failure"
		}
	}
	c.JSON(status, httpdto.NewErrorResponse(message, code))
}
