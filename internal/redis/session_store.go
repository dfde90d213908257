package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sentinal-media/internal/domain/media"
	sentinal_errors "sentinal-media/pkg/errors"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Session key patterns, where <id> is the upload id:
// - uploads:{<id>}        hash with the declared upload metadata
// - uploads:{<id>}:chunks set of received chunk numbers
// The braces are a cluster hash tag so both keys land in one slot and the
// add-chunk script and MULTI blocks never fail with CROSSSLOT.
// Both keys share one TTL, refreshed on every accepted chunk.

// SessionStoreConfig contains configuration for upload sessions
type SessionStoreConfig struct {
	TTL time.Duration
}

// DefaultSessionStoreConfig returns sensible defaults
func DefaultSessionStoreConfig() SessionStoreConfig {
	return SessionStoreConfig{TTL: time.Hour}
}

// addChunkScript records a chunk number and refreshes the TTL in one step.
// Returns the received count, -1 when the session is gone and -2 when the
// chunk number is outside [0, total_chunks).
var addChunkScript = goredis.NewScript(`
	local total = redis.call('HGET', KEYS[1], 'total_chunks')
	if not total then
		return -1
	end

	local n = tonumber(ARGV[1])
	if n == nil or n < 0 or n >= tonumber(total) then
		return -2
	end

	redis.call('SADD', KEYS[2], n)
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	redis.call('PEXPIRE', KEYS[2], ARGV[2])
	return redis.call('SCARD', KEYS[2])
`)

// SessionStore keeps upload sessions in Redis
type SessionStore struct {
	client *goredis.Client
	config SessionStoreConfig
}

func NewSessionStore(client *goredis.Client, config SessionStoreConfig) *SessionStore {
	if config.TTL <= 0 {
		config.TTL = DefaultSessionStoreConfig().TTL
	}
	return &SessionStore{
		client: client,
		config: config,
	}
}

func sessionKey(uploadID uuid.UUID) string {
	return fmt.Sprintf("uploads:{%s}", uploadID.String())
}

func chunksKey(uploadID uuid.UUID) string {
	return fmt.Sprintf("uploads:{%s}:chunks", uploadID.String())
}

// TTL returns the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.config.TTL
}

// Create stores a new session with an empty chunk set.
func (s *SessionStore) Create(ctx context.Context, session *media.UploadSession) error {
	key := sessionKey(session.UploadID)
	fields := map[string]interface{}{
		"upload_id":    session.UploadID.String(),
		"uploader_id":  session.UploaderID.String(),
		"file_name":    session.FileName,
		"mime_type":    session.MimeType,
		"total_size":   session.TotalSizeBytes,
		"total_chunks": session.TotalChunkCount,
		"media_type":   string(session.MediaType),
		"created_at":   session.CreatedAt.UnixMilli(),
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, chunksKey(session.UploadID))
		pipe.HSet(ctx, key, fields)
		pipe.PExpire(ctx, key, s.config.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create upload session: %w", err)
	}
	return nil
}

// Get loads the session and its received chunks as one consistent snapshot.
func (s *SessionStore) Get(ctx context.Context, uploadID uuid.UUID) (*media.UploadSession, error) {
	var (
		meta   *goredis.MapStringStringCmd
		chunks *goredis.StringSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, sessionKey(uploadID))
		chunks = pipe.SMembers(ctx, chunksKey(uploadID))
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("load upload session: %w", err)
	}

	fields := meta.Val()
	if len(fields) == 0 {
		return nil, sentinal_errors.ErrUploadSessionNotFound
	}

	session, err := decodeSession(fields)
	if err != nil {
		return nil, fmt.Errorf("decode upload session %s: %w", uploadID, err)
	}
	for _, member := range chunks.Val() {
		n, err := strconv.Atoi(member)
		if err != nil {
			return nil, fmt.Errorf("decode chunk number %q: %w", member, err)
		}
		session.AddChunk(n)
	}
	return session, nil
}

// AddChunk atomically records chunkNumber and returns the number of distinct
// chunks received so far.
func (s *SessionStore) AddChunk(ctx context.Context, uploadID uuid.UUID, chunkNumber int) (int, error) {
	keys := []string{sessionKey(uploadID), chunksKey(uploadID)}
	result, err := addChunkScript.Run(ctx, s.client, keys, chunkNumber, s.config.TTL.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("add chunk: %w", err)
	}

	switch result {
	case -1:
		return 0, sentinal_errors.ErrUploadSessionNotFound
	case -2:
		return 0, sentinal_errors.ErrInvalidChunkNumber
	}
	return int(result), nil
}

// Delete removes the session. It reports false when the session was already gone.
func (s *SessionStore) Delete(ctx context.Context, uploadID uuid.UUID) (bool, error) {
	var del *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, sessionKey(uploadID))
		pipe.Del(ctx, chunksKey(uploadID))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete upload session: %w", err)
	}
	return del.Val() > 0, nil
}

// ExpiresIn returns the remaining lifetime of the session.
func (s *SessionStore) ExpiresIn(ctx context.Context, uploadID uuid.UUID) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, sessionKey(uploadID)).Result()
	if err != nil {
		return 0, fmt.Errorf("session ttl: %w", err)
	}
	if ttl < 0 {
		return 0, sentinal_errors.ErrUploadSessionNotFound
	}
	return ttl, nil
}

func decodeSession(fields map[string]string) (*media.UploadSession, error) {
	uploadID, err := uuid.Parse(fields["upload_id"])
	if err != nil {
		return nil, fmt.Errorf("upload_id: %w", err)
	}
	uploaderID, err := uuid.Parse(fields["uploader_id"])
	if err != nil {
		return nil, fmt.Errorf("uploader_id: %w", err)
	}
	totalSize, err := strconv.ParseInt(fields["total_size"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("total_size: %w", err)
	}
	totalChunks, err := strconv.Atoi(fields["total_chunks"])
	if err != nil {
		return nil, fmt.Errorf("total_chunks: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}

	return &media.UploadSession{
		UploadID:        uploadID,
		UploaderID:      uploaderID,
		FileName:        fields["file_name"],
		MimeType:        fields["mime_type"],
		TotalSizeBytes:  totalSize,
		TotalChunkCount: totalChunks,
		MediaType:       media.MediaType(fields["media_type"]),
		CreatedAt:       time.UnixMilli(createdAt).UTC(),
	}, nil
}
