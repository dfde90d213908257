package handler_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sentinal-media/internal/commands"
	"sentinal-media/internal/domain/media"
	"sentinal-media/internal/handler"
	"sentinal-media/internal/services"
	sentinal_errors "sentinal-media/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success       bool            `json:"success"`
	Data          json.RawMessage `json:"data"`
	Error         string          `json:"error"`
	Code          string          `json:"code"`
	MissingChunks int             `json:"missing_chunks"`
}

func newRouter(svc handler.UploadCoordinator, uploaderID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if uploaderID != uuid.Nil {
			c.Request = c.Request.WithContext(services.WithUploaderContext(c.Request.Context(), uploaderID))
		}
		c.Next()
	})
	h := handler.NewUploadHandler(svc)
	r.POST("/v1/uploads", h.Start)
	r.PUT("/v1/uploads/:id/chunks/:number", h.ReceiveChunk)
	r.POST("/v1/uploads/:id/complete", h.Complete)
	r.GET("/v1/uploads/:id", h.Status)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body io.Reader) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestStartUpload_Created(t *testing.T) {
	uploaderID := uuid.New()
	uploadID := uuid.New()
	svc := handler.NewMockUploadCoordinator()
	svc.On("StartUpload", mock.Anything, commands.StartUploadCommand{
		UploaderID:      uploaderID,
		FileName:        "cat.png",
		MimeType:        "image/png",
		TotalSizeBytes:  1024,
		TotalChunkCount: 2,
		MediaType:       "IMAGE",
	}).Return(services.StartUploadResult{UploadID: uploadID, ExpiresIn: time.Hour}, nil)

	body := `{"fileName":"cat.png","mimeType":"image/png","totalSizeBytes":1024,"totalChunkCount":2,"mediaType":"IMAGE"}`
	w, env := do(t, newRouter(svc, uploaderID), http.MethodPost, "/v1/uploads", strings.NewReader(body))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	var data struct {
		UploadID  string `json:"uploadId"`
		ExpiresIn int64  `json:"expiresIn"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, uploadID.String(), data.UploadID)
	assert.Equal(t, int64(3600), data.ExpiresIn)
	svc.AssertExpectations(t)
}

func TestStartUpload_MalformedBody(t *testing.T) {
	svc := handler.NewMockUploadCoordinator()

	w, env := do(t, newRouter(svc, uuid.New()), http.MethodPost, "/v1/uploads", strings.NewReader(`{"fileName":`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, sentinal_errors.CodeInvalidUploadRequest, env.Code)
	svc.AssertNotCalled(t, "StartUpload", mock.Anything, mock.Anything)
}

func TestStartUpload_RequiresIdentity(t *testing.T) {
	svc := handler.NewMockUploadCoordinator()

	w, env := do(t, newRouter(svc, uuid.Nil), http.MethodPost, "/v1/uploads", strings.NewReader(`{}`))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, sentinal_errors.CodeUnauthorized, env.Code)
}

func TestReceiveChunk_PassesRawBody(t *testing.T) {
	uploaderID := uuid.New()
	uploadID := uuid.New()
	svc := handler.NewMockUploadCoordinator()
	svc.On("ReceiveChunk", mock.Anything, mock.MatchedBy(func(cmd commands.ReceiveChunkCommand) bool {
		if cmd.UploadID != uploadID || cmd.UploaderID != uploaderID || cmd.ChunkNumber != 3 {
			return false
		}
		raw, err := io.ReadAll(cmd.Body)
		return err == nil && string(raw) == "chunk-bytes"
	})).Return(services.ChunkReceipt{
		UploadID:        uploadID,
		ChunkNumber:     3,
		ReceivedCount:   4,
		TotalChunkCount: 4,
		Complete:        true,
	}, nil)

	w, env := do(t, newRouter(svc, uploaderID), http.MethodPut, "/v1/uploads/"+uploadID.String()+"/chunks/3", strings.NewReader("chunk-bytes"))

	assert.Equal(t, http.StatusOK, w.Code)
	var data struct {
		ReceivedCount int  `json:"receivedCount"`
		Complete      bool `json:"complete"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 4, data.ReceivedCount)
	assert.True(t, data.Complete)
	svc.AssertExpectations(t)
}

func TestReceiveChunk_BadPathParams(t *testing.T) {
	svc := handler.NewMockUploadCoordinator()
	r := newRouter(svc, uuid.New())

	w, env := do(t, r, http.MethodPut, "/v1/uploads/not-a-uuid/chunks/0", strings.NewReader("x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, sentinal_errors.CodeInvalidUploadRequest, env.Code)

	w, env = do(t, r, http.MethodPut, "/v1/uploads/"+uuid.NewString()+"/chunks/first", strings.NewReader("x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, sentinal_errors.CodeInvalidChunkNumber, env.Code)

	svc.AssertNotCalled(t, "ReceiveChunk", mock.Anything, mock.Anything)
}

func TestCompleteUpload_Success(t *testing.T) {
	uploaderID := uuid.New()
	uploadID := uuid.New()
	svc := handler.NewMockUploadCoordinator()
	svc.On("CompleteUpload", mock.Anything, commands.CompleteUploadCommand{UploadID: uploadID, UploaderID: uploaderID}).
		Return(services.CompleteUploadResult{
			FileID:      42,
			UploadID:    uploadID,
			StoragePath: "origin/" + uploadID.String() + "_cat.png",
			MediaType:   media.MediaTypeImage,
		}, nil)

	w, env := do(t, newRouter(svc, uploaderID), http.MethodPost, "/v1/uploads/"+uploadID.String()+"/complete", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var data struct {
		FileID    int64  `json:"fileId"`
		MediaType string `json:"mediaType"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, int64(42), data.FileID)
	assert.Equal(t, "IMAGE", data.MediaType)
}

func TestCompleteUpload_IncompleteCarriesMissingCount(t *testing.T) {
	uploadID := uuid.New()
	svc := handler.NewMockUploadCoordinator()
	svc.On("CompleteUpload", mock.Anything, mock.Anything).
		Return(services.CompleteUploadResult{}, &sentinal_errors.IncompleteError{Missing: 2, Total: 5})

	w, env := do(t, newRouter(svc, uuid.New()), http.MethodPost, "/v1/uploads/"+uploadID.String()+"/complete", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, sentinal_errors.CodeUploadIncomplete, env.Code)
	assert.Equal(t, 2, env.MissingChunks)
}

func TestUploadStatus_Success(t *testing.T) {
	uploadID := uuid.New()
	svc := handler.NewMockUploadCoordinator()
	svc.On("GetUploadStatus", mock.Anything, mock.Anything).Return(services.UploadStatus{
		UploadID:        uploadID,
		FileName:        "clip.mp4",
		MediaType:       media.MediaTypeVideo,
		TotalChunkCount: 3,
		ReceivedChunks:  []int{0, 2},
		MissingCount:    1,
		ExpiresIn:       90 * time.Second,
	}, nil)

	w, env := do(t, newRouter(svc, uuid.New()), http.MethodGet, "/v1/uploads/"+uploadID.String(), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var data struct {
		ReceivedChunks []int `json:"receivedChunks"`
		MissingCount   int   `json:"missingCount"`
		ExpiresIn      int64 `json:"expiresIn"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, []int{0, 2}, data.ReceivedChunks)
	assert.Equal(t, 1, data.MissingCount)
	assert.Equal(t, int64(90), data.ExpiresIn)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid request", sentinal_errors.ErrInvalidUploadRequest, http.StatusBadRequest, sentinal_errors.CodeInvalidUploadRequest},
		{"unsupported media type", sentinal_errors.ErrUnsupportedMediaType, http.StatusBadRequest, sentinal_errors.CodeInvalidUploadRequest},
		{"session not found", sentinal_errors.ErrUploadSessionNotFound, http.StatusNotFound, sentinal_errors.CodeUploadSessionNotFound},
		{"invalid chunk number", sentinal_errors.ErrInvalidChunkNumber, http.StatusBadRequest, sentinal_errors.CodeInvalidChunkNumber},
		{"incomplete", sentinal_errors.ErrUploadIncomplete, http.StatusConflict, sentinal_errors.CodeUploadIncomplete},
		{"assembly failure", sentinal_errors.ErrAssemblyFailure, http.StatusInternalServerError, sentinal_errors.CodeAssemblyFailure},
		{"access denied", sentinal_errors.ErrAccessDenied, http.StatusForbidden, sentinal_errors.CodeAccessDenied},
		{"chunk too large", sentinal_errors.ErrChunkTooLarge, http.StatusRequestEntityTooLarge, sentinal_errors.CodeChunkTooLarge},
		{"unauthorized", sentinal_errors.ErrUnauthorized, http.StatusUnauthorized, sentinal_errors.CodeUnauthorized},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, sentinal_errors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := handler.NewMockUploadCoordinator()
			svc.On("GetUploadStatus", mock.Anything, mock.Anything).Return(services.UploadStatus{}, tt.err)

			w, env := do(t, newRouter(svc, uuid.New()), http.MethodGet, "/v1/uploads/"+uuid.NewString(), nil)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, env.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestInternalErrorsAreNotEchoed(t *testing.T) {
	svc := handler.NewMockUploadCoordinator()
	svc.On("GetUploadStatus", mock.Anything, mock.Anything).
		Return(services.UploadStatus{}, errors.New("dial tcp 10.0.0.7:6379: connection refused"))

	_, env := do(t, newRouter(svc, uuid.New()), http.MethodGet, "/v1/uploads/"+uuid.NewString(), nil)

	assert.NotContains(t, env.Error, "10.0.0.7")
}
