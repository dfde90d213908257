package httpdto

// StartUploadRequest is used for POST /v1/uploads
type StartUploadRequest struct {
	FileName        string `json:"fileName" binding:"required"`
	MimeType        string `json:"mimeType" binding:"required"`
	TotalSizeBytes  int64  `json:"totalSizeBytes" binding:"required"`
	TotalChunkCount int    `json:"totalChunkCount" binding:"required"`
	MediaType       string `json:"mediaType" binding:"required"`
}

// StartUploadResponse is returned after a session is opened
type StartUploadResponse struct {
	UploadID  string `json:"uploadId"`
	ExpiresIn int64  `json:"expiresIn"`
}

// ChunkReceiptResponse is returned for every accepted chunk
type ChunkReceiptResponse struct {
	UploadID        string `json:"uploadId"`
	ChunkNumber     int    `json:"chunkNumber"`
	ReceivedCount   int    `json:"receivedCount"`
	TotalChunkCount int    `json:"totalChunkCount"`
	Complete        bool   `json:"complete"`
}

// CompleteUploadResponse is returned once the file is assembled and recorded
type CompleteUploadResponse struct {
	FileID      int64  `json:"fileId"`
	UploadID    string `json:"uploadId"`
	StoragePath string `json:"storagePath"`
	MediaType   string `json:"mediaType"`
	Replayed    bool   `json:"replayed,omitempty"`
}

// UploadStatusResponse describes an in-flight upload
type UploadStatusResponse struct {
	UploadID        string `json:"uploadId"`
	FileName        string `json:"fileName"`
	MediaType       string `json:"mediaType"`
	TotalChunkCount int    `json:"totalChunkCount"`
	ReceivedChunks  []int  `json:"receivedChunks"`
	MissingCount    int    `json:"missingCount"`
	Complete        bool   `json:"complete"`
	ExpiresIn       int64  `json:"expiresIn"`
}

// IncompleteUploadResponse is the error body for UPLOAD_INCOMPLETE
type IncompleteUploadResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	Code          string `json:"code"`
	MissingChunks int    `json:"missing_chunks"`
}

func NewIncompleteUploadResponse(err string, code string, missing int) IncompleteUploadResponse {
	return IncompleteUploadResponse{
		Success:       false,
		Error:         err,
		Code:          code,
		MissingChunks: missing,
	}
}
