package handler

import (
	"context"
	"net/http"
	"strconv"

	"sentinal-media/internal/commands"
	"sentinal-media/internal/services"
	"sentinal-media/internal/transport/httpdto"
	sentinal_errors "sentinal-media/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UploadCoordinator is the part of services.UploadService the handler drives.
type UploadCoordinator interface {
	StartUpload(ctx context.Context, cmd commands.StartUploadCommand) (services.StartUploadResult, error)
	ReceiveChunk(ctx context.Context, cmd commands.ReceiveChunkCommand) (services.ChunkReceipt, error)
	CompleteUpload(ctx context.Context, cmd commands.CompleteUploadCommand) (services.CompleteUploadResult, error)
	GetUploadStatus(ctx context.Context, cmd commands.GetUploadStatusCommand) (services.UploadStatus, error)
}

type UploadHandler struct {
	service UploadCoordinator
}

func NewUploadHandler(service UploadCoordinator) *UploadHandler {
	return &UploadHandler{service: service}
}

// Start handles POST /v1/uploads
func (h *UploadHandler) Start(c *gin.Context) {
	uploaderID, ok := services.UploaderIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", sentinal_errors.CodeUnauthorized))
		return
	}

	var req httpdto.StartUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", sentinal_errors.CodeInvalidUploadRequest))
		return
	}

	result, err := h.service.StartUpload(c.Request.Context(), commands.StartUploadCommand{
		UploaderID:      uploaderID,
		FileName:        req.FileName,
		MimeType:        req.MimeType,
		TotalSizeBytes:  req.TotalSizeBytes,
		TotalChunkCount: req.TotalChunkCount,
		MediaType:       req.MediaType,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.StartUploadResponse{
		UploadID:  result.UploadID.String(),
		ExpiresIn: int64(result.ExpiresIn.Seconds()),
	}))
}

// ReceiveChunk handles PUT /v1/uploads/:id/chunks/:number. The request body
// is the raw chunk.
func (h *UploadHandler) ReceiveChunk(c *gin.Context) {
	uploaderID, ok := services.UploaderIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", sentinal_errors.CodeUnauthorized))
		return
	}
	uploadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid upload id", sentinal_errors.CodeInvalidUploadRequest))
		return
	}
	chunkNumber, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid chunk number", sentinal_errors.CodeInvalidChunkNumber))
		return
	}

	receipt, err := h.service.ReceiveChunk(c.Request.Context(), commands.ReceiveChunkCommand{
		UploadID:    uploadID,
		UploaderID:  uploaderID,
		ChunkNumber: chunkNumber,
		Body:        c.Request.Body,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ChunkReceiptResponse{
		UploadID:        receipt.UploadID.String(),
		ChunkNumber:     receipt.ChunkNumber,
		ReceivedCount:   receipt.ReceivedCount,
		TotalChunkCount: receipt.TotalChunkCount,
		Complete:        receipt.Complete,
	}))
}

// Complete handles POST /v1/uploads/:id/complete
func (h *UploadHandler) Complete(c *gin.Context) {
	uploaderID, ok := services.UploaderIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", sentinal_errors.CodeUnauthorized))
		return
	}
	uploadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid upload id", sentinal_errors.CodeInvalidUploadRequest))
		return
	}

	result, err := h.service.CompleteUpload(c.Request.Context(), commands.CompleteUploadCommand{
		UploadID:   uploadID,
		UploaderID: uploaderID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.CompleteUploadResponse{
		FileID:      result.FileID,
		UploadID:    result.UploadID.String(),
		StoragePath: result.StoragePath,
		MediaType:   string(result.MediaType),
		Replayed:    result.Replayed,
	}))
}

// Status handles GET /v1/uploads/:id
func (h *UploadHandler) Status(c *gin.Context) {
	uploaderID, ok := services.UploaderIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", sentinal_errors.CodeUnauthorized))
		return
	}
	uploadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid upload id", sentinal_errors.CodeInvalidUploadRequest))
		return
	}

	status, err := h.service.GetUploadStatus(c.Request.Context(), commands.GetUploadStatusCommand{
		UploadID:   uploadID,
		UploaderID: uploaderID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	received := status.ReceivedChunks
	if received == nil {
		received = []int{}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UploadStatusResponse{
		UploadID:        status.UploadID.String(),
		FileName:        status.FileName,
		MediaType:       string(status.MediaType),
		TotalChunkCount: status.TotalChunkCount,
		ReceivedChunks:  received,
		MissingCount:    status.MissingCount,
		Complete:        status.Complete,
		ExpiresIn:       int64(status.ExpiresIn.Seconds()),
	}))
}
