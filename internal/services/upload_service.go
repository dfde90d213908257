package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"sentinal-media/internal/commands"
	"sentinal-media/internal/domain/media"
	"sentinal-media/internal/metrics"
	sentinal_errors "sentinal-media/pkg/errors"
	"sentinal-media/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionStore keeps in-flight upload sessions. AddChunk must record the
// chunk and refresh the session lifetime atomically.
type SessionStore interface {
	Create(ctx context.Context, session *media.UploadSession) error
	Get(ctx context.Context, uploadID uuid.UUID) (*media.UploadSession, error)
	AddChunk(ctx context.Context, uploadID uuid.UUID, chunkNumber int) (int, error)
	Delete(ctx context.Context, uploadID uuid.UUID) (bool, error)
	ExpiresIn(ctx context.Context, uploadID uuid.UUID) (time.Duration, error)
}

// ChunkStore holds chunk bytes until assembly.
type ChunkStore interface {
	Store(ctx context.Context, uploadID uuid.UUID, chunkNumber int, body io.Reader) (int64, error)
	Assemble(ctx context.Context, uploadID uuid.UUID, chunkNumbers []int, fileName string) (string, error)
	Discard(ctx context.Context, uploadID uuid.UUID) error
}

// MediaRecorder persists completed uploads together with their processing message.
type MediaRecorder interface {
	Record(ctx context.Context, f *media.MediaFile) (created bool, err error)
	FindByUploadID(ctx context.Context, uploadID uuid.UUID) (media.MediaFile, error)
}

type UploadConfig struct {
	SessionTTL    time.Duration
	MaxChunkBytes int64
	MaxFileBytes  int64
	MaxChunkCount int
}

func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		SessionTTL:    time.Hour,
		MaxChunkBytes: 16 << 20,
		MaxFileBytes:  4 << 30,
		MaxChunkCount: 10000,
	}
}

type UploadService struct {
	sessions SessionStore
	chunks   ChunkStore
	recorder MediaRecorder
	config   UploadConfig
	logger   *logger.Logger
	clock    func() time.Time
}

func NewUploadService(sessions SessionStore, chunks ChunkStore, recorder MediaRecorder, config UploadConfig, l *logger.Logger) *UploadService {
	def := DefaultUploadConfig()
	if config.SessionTTL <= 0 {
		config.SessionTTL = def.SessionTTL
	}
	if config.MaxChunkBytes <= 0 {
		config.MaxChunkBytes = def.MaxChunkBytes
	}
	if config.MaxFileBytes <= 0 {
		config.MaxFileBytes = def.MaxFileBytes
	}
	if config.MaxChunkCount <= 0 {
		config.MaxChunkCount = def.MaxChunkCount
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &UploadService{
		sessions: sessions,
		chunks:   chunks,
		recorder: recorder,
		config:   config,
		logger:   l,
		clock:    time.Now,
	}
}

type StartUploadResult struct {
	UploadID  uuid.UUID
	ExpiresIn time.Duration
}

type ChunkReceipt struct {
	UploadID        uuid.UUID
	ChunkNumber     int
	ReceivedCount   int
	TotalChunkCount int
	Complete        bool
}

type CompleteUploadResult struct {
	FileID      int64
	UploadID    uuid.UUID
	StoragePath string
	MediaType   media.MediaType
	Replayed    bool
}

type UploadStatus struct {
	UploadID        uuid.UUID
	FileName        string
	MediaType       media.MediaType
	TotalChunkCount int
	ReceivedChunks  []int
	MissingCount    int
	Complete        bool
	ExpiresIn       time.Duration
}

// StartUpload opens a session. Nothing is written when validation fails.
func (s *UploadService) StartUpload(ctx context.Context, cmd commands.StartUploadCommand) (StartUploadResult, error) {
	if err := cmd.Validate(); err != nil {
		return StartUploadResult{}, err
	}
	if cmd.TotalSizeBytes > s.config.MaxFileBytes {
		return StartUploadResult{}, fmt.Errorf("%w: totalSizeBytes exceeds %d", sentinal_errors.ErrInvalidUploadRequest, s.config.MaxFileBytes)
	}
	if cmd.TotalChunkCount > s.config.MaxChunkCount {
		return StartUploadResult{}, fmt.Errorf("%w: totalChunkCount exceeds %d", sentinal_errors.ErrInvalidUploadRequest, s.config.MaxChunkCount)
	}

	fileName, _ := media.CleanFileName(cmd.FileName)
	mediaType, _ := media.ParseMediaType(cmd.MediaType)
	session := media.NewUploadSession(cmd.UploaderID, fileName, cmd.MimeType, cmd.TotalSizeBytes, cmd.TotalChunkCount, mediaType, s.clock())

	if err := s.sessions.Create(ctx, session); err != nil {
		return StartUploadResult{}, err
	}
	metrics.SessionsStarted.Inc()

	s.logger.With(ctx,
		zap.String("upload_id", session.UploadID.String()),
		zap.String("media_type", string(mediaType)),
		zap.Int("total_chunks", session.TotalChunkCount),
		zap.Int64("total_size", session.TotalSizeBytes),
	).Info("upload session created")

	return StartUploadResult{UploadID: session.UploadID, ExpiresIn: s.config.SessionTTL}, nil
}

// ReceiveChunk stores one chunk and marks it received. Repeating a chunk
// overwrites its bytes and leaves the received set unchanged.
func (s *UploadService) ReceiveChunk(ctx context.Context, cmd commands.ReceiveChunkCommand) (ChunkReceipt, error) {
	if err := cmd.Validate(); err != nil {
		return ChunkReceipt{}, err
	}
	log := s.logger.With(ctx, zap.String("upload_id", cmd.UploadID.String()), zap.Int("chunk_number", cmd.ChunkNumber))

	session, err := s.sessions.Get(ctx, cmd.UploadID)
	if err != nil {
		return ChunkReceipt{}, err
	}
	if session.UploaderID != cmd.UploaderID {
		metrics.ChunksReceived.WithLabelValues(metrics.ResultRejected).Inc()
		return ChunkReceipt{}, sentinal_errors.ErrAccessDenied
	}
	if !session.InRange(cmd.ChunkNumber) {
		metrics.ChunksReceived.WithLabelValues(metrics.ResultRejected).Inc()
		return ChunkReceipt{}, fmt.Errorf("%w: %d not in [0, %d)", sentinal_errors.ErrInvalidChunkNumber, cmd.ChunkNumber, session.TotalChunkCount)
	}

	body := bufio.NewReader(cmd.Body)
	if _, err := body.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return ChunkReceipt{}, fmt.Errorf("%w: empty chunk body", sentinal_errors.ErrInvalidUploadRequest)
		}
		return ChunkReceipt{}, err
	}

	written, err := s.chunks.Store(ctx, cmd.UploadID, cmd.ChunkNumber, newChunkLimitReader(body, s.config.MaxChunkBytes))
	if err != nil {
		metrics.ChunksReceived.WithLabelValues(metrics.ResultError).Inc()
		if errors.Is(err, sentinal_errors.ErrChunkTooLarge) {
			return ChunkReceipt{}, fmt.Errorf("%w: limit is %d bytes", sentinal_errors.ErrChunkTooLarge, s.config.MaxChunkBytes)
		}
		log.Error("failed to store chunk", zap.Error(err))
		return ChunkReceipt{}, fmt.Errorf("store chunk: %w", err)
	}
	metrics.ChunkBytes.Add(float64(written))

	received, err := s.sessions.AddChunk(ctx, cmd.UploadID, cmd.ChunkNumber)
	if err != nil {
		metrics.ChunksReceived.WithLabelValues(metrics.ResultError).Inc()
		return ChunkReceipt{}, err
	}

	result := metrics.ResultOK
	if session.HasChunk(cmd.ChunkNumber) {
		result = metrics.ResultDuplicate
	}
	metrics.ChunksReceived.WithLabelValues(result).Inc()
	log.Debug("chunk accepted", zap.Int64("bytes", written), zap.Int("received", received), zap.Int("total", session.TotalChunkCount))

	return ChunkReceipt{
		UploadID:        cmd.UploadID,
		ChunkNumber:     cmd.ChunkNumber,
		ReceivedCount:   received,
		TotalChunkCount: session.TotalChunkCount,
		Complete:        received == session.TotalChunkCount,
	}, nil
}

// CompleteUpload assembles the chunks, records the file with its processing
// message and removes the session. A failed assembly leaves the session in
// place so the call can be retried.
func (s *UploadService) CompleteUpload(ctx context.Context, cmd commands.CompleteUploadCommand) (CompleteUploadResult, error) {
	if err := cmd.Validate(); err != nil {
		return CompleteUploadResult{}, err
	}
	log := s.logger.With(ctx, zap.String("upload_id", cmd.UploadID.String()))

	session, err := s.sessions.Get(ctx, cmd.UploadID)
	if err != nil {
		if errors.Is(err, sentinal_errors.ErrUploadSessionNotFound) {
			return s.replayCompletion(ctx, cmd, err)
		}
		return CompleteUploadResult{}, err
	}
	if session.UploaderID != cmd.UploaderID {
		metrics.Completions.WithLabelValues(metrics.ResultRejected).Inc()
		return CompleteUploadResult{}, sentinal_errors.ErrAccessDenied
	}
	if !session.IsComplete() {
		metrics.Completions.WithLabelValues(metrics.ResultRejected).Inc()
		return CompleteUploadResult{}, &sentinal_errors.IncompleteError{
			Missing: session.MissingCount(),
			Total:   session.TotalChunkCount,
		}
	}

	started := s.clock()
	storagePath, err := s.chunks.Assemble(ctx, session.UploadID, session.ReceivedChunks(), session.FileName)
	metrics.AssemblyDuration.Observe(s.clock().Sub(started).Seconds())
	if err != nil {
		// A concurrent completion may have finished and discarded the chunks.
		if replay, replayErr := s.replayCompletion(ctx, cmd, nil); replayErr == nil {
			return replay, nil
		}
		metrics.Completions.WithLabelValues(metrics.ResultError).Inc()
		log.Error("chunk assembly failed", zap.Error(err))
		return CompleteUploadResult{}, fmt.Errorf("%w: %v", sentinal_errors.ErrAssemblyFailure, err)
	}

	file := media.NewPendingFile(session, storagePath, s.clock())
	created, err := s.recorder.Record(ctx, file)
	if err != nil {
		metrics.Completions.WithLabelValues(metrics.ResultError).Inc()
		log.Error("failed to record media file", zap.Error(err))
		return CompleteUploadResult{}, fmt.Errorf("record media file: %w", err)
	}

	deleted, err := s.sessions.Delete(ctx, session.UploadID)
	if err != nil {
		// The file is recorded; a retry finds it through the replay path.
		log.Error("failed to delete upload session", zap.Error(err))
	}
	if deleted {
		if err := s.chunks.Discard(ctx, session.UploadID); err != nil {
			log.Warn("failed to discard chunks", zap.Error(err))
		}
	}

	result := metrics.ResultOK
	if !created {
		result = metrics.ResultReplay
	}
	metrics.Completions.WithLabelValues(result).Inc()
	log.Info("upload completed",
		zap.Int64("file_id", file.ID),
		zap.String("storage_path", file.StoragePath),
		zap.Bool("created", created),
	)

	return CompleteUploadResult{
		FileID:      file.ID,
		UploadID:    file.UploadID,
		StoragePath: file.StoragePath,
		MediaType:   file.MediaType,
		Replayed:    !created,
	}, nil
}

// replayCompletion answers a completion whose session is gone with the
// recorded file, if the caller owns it. Otherwise notFound is returned, or
// ErrUploadSessionNotFound when notFound is nil.
func (s *UploadService) replayCompletion(ctx context.Context, cmd commands.CompleteUploadCommand, notFound error) (CompleteUploadResult, error) {
	if notFound == nil {
		notFound = sentinal_errors.ErrUploadSessionNotFound
	}
	file, err := s.recorder.FindByUploadID(ctx, cmd.UploadID)
	if err != nil {
		if errors.Is(err, sentinal_errors.ErrNotFound) {
			return CompleteUploadResult{}, notFound
		}
		return CompleteUploadResult{}, err
	}
	if file.UploaderID != cmd.UploaderID {
		return CompleteUploadResult{}, notFound
	}

	metrics.Completions.WithLabelValues(metrics.ResultReplay).Inc()
	s.logger.With(ctx, zap.String("upload_id", cmd.UploadID.String()), zap.Int64("file_id", file.ID)).
		Info("completion replayed for recorded upload")

	return CompleteUploadResult{
		FileID:      file.ID,
		UploadID:    file.UploadID,
		StoragePath: file.StoragePath,
		MediaType:   file.MediaType,
		Replayed:    true,
	}, nil
}

// GetUploadStatus reports which chunks arrived so a client can resume.
func (s *UploadService) GetUploadStatus(ctx context.Context, cmd commands.GetUploadStatusCommand) (UploadStatus, error) {
	if err := cmd.Validate(); err != nil {
		return UploadStatus{}, err
	}
	session, err := s.sessions.Get(ctx, cmd.UploadID)
	if err != nil {
		return UploadStatus{}, err
	}
	if session.UploaderID != cmd.UploaderID {
		return UploadStatus{}, sentinal_errors.ErrAccessDenied
	}
	expiresIn, err := s.sessions.ExpiresIn(ctx, cmd.UploadID)
	if err != nil {
		return UploadStatus{}, err
	}

	return UploadStatus{
		UploadID:        session.UploadID,
		FileName:        session.FileName,
		MediaType:       session.MediaType,
		TotalChunkCount: session.TotalChunkCount,
		ReceivedChunks:  session.ReceivedChunks(),
		MissingCount:    session.MissingCount(),
		Complete:        session.IsComplete(),
		ExpiresIn:       expiresIn,
	}, nil
}

// chunkLimitReader fails with ErrChunkTooLarge once more than limit bytes
// were read, so the chunk store never commits an oversized chunk.
type chunkLimitReader struct {
	r         io.Reader
	remaining int64
}

func newChunkLimitReader(r io.Reader, limit int64) io.Reader {
	return &chunkLimitReader{r: r, remaining: limit}
}

func (l *chunkLimitReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, sentinal_errors.ErrChunkTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, sentinal_errors.ErrChunkTooLarge
	}
	return n, err
}
