package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"

	"sentinal-media/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 client used by S3ChunkStore.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	UploadPartCopy(ctx context.Context, in *s3.UploadPartCopyInput, optFns ...func(*s3.Options)) (*s3.UploadPartCopyOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// minPartSize is the S3 lower bound for every multipart part except the last.
const minPartSize = 5 * 1024 * 1024

// S3ChunkStore keeps chunks under {chunkPrefix}/{uploadId}/chunk_N and
// assembles them into {mediaPrefix}/{uploadId}_{fileName}.
type S3ChunkStore struct {
	client      S3API
	bucket      string
	chunkPrefix string
	mediaPrefix string
	minPartSize int64
	logger      *logger.Logger
}

func NewS3ChunkStore(client S3API, cfg S3Config, l *logger.Logger) *S3ChunkStore {
	if cfg.ChunkPrefix == "" {
		cfg.ChunkPrefix = defaultChunkPrefix
	}
	if cfg.MediaPrefix == "" {
		cfg.MediaPrefix = defaultMediaPrefix
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &S3ChunkStore{
		client:      client,
		bucket:      cfg.Bucket,
		chunkPrefix: cfg.ChunkPrefix,
		mediaPrefix: cfg.MediaPrefix,
		minPartSize: minPartSize,
		logger:      l,
	}
}

func (s *S3ChunkStore) uploadPrefix(uploadID uuid.UUID) string {
	return path.Join(s.chunkPrefix, uploadID.String()) + "/"
}

func (s *S3ChunkStore) chunkKey(uploadID uuid.UUID, chunkNumber int) string {
	return path.Join(s.chunkPrefix, uploadID.String(), chunkName(chunkNumber))
}

// Store writes one chunk. Repeating the call overwrites the same key.
func (s *S3ChunkStore) Store(ctx context.Context, uploadID uuid.UUID, chunkNumber int, body io.Reader) (int64, error) {
	// Bodies handed to the SDK are always seekable so the payload can be
	// signed on a plain-HTTP endpoint.
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}

	key := s.chunkKey(uploadID, chunkNumber)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return 0, fmt.Errorf("put chunk %s: %w", key, err)
	}
	return int64(len(data)), nil
}

type chunkObject struct {
	key  string
	size int64
}

// Assemble merges the chunks in ascending order into the final object. The
// final key becomes visible only when the copy or multipart upload completes.
func (s *S3ChunkStore) Assemble(ctx context.Context, uploadID uuid.UUID, chunkNumbers []int, fileName string) (string, error) {
	if len(chunkNumbers) == 0 {
		return "", fmt.Errorf("no chunks to assemble for upload %s", uploadID)
	}
	ordered := append([]int(nil), chunkNumbers...)
	sort.Ints(ordered)

	chunks := make([]chunkObject, 0, len(ordered))
	var totalSize int64
	for _, n := range ordered {
		key := s.chunkKey(uploadID, n)
		head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				return "", fmt.Errorf("%w: %s", ErrChunkMissing, key)
			}
			return "", fmt.Errorf("head chunk %s: %w", key, err)
		}
		size := aws.ToInt64(head.ContentLength)
		chunks = append(chunks, chunkObject{key: key, size: size})
		totalSize += size
	}

	finalKey := path.Join(s.mediaPrefix, finalName(uploadID, fileName))
	log := s.logger.With(ctx, zap.String("upload_id", uploadID.String()), zap.String("final_key", finalKey))

	var err error
	switch {
	case len(chunks) == 1:
		log.Debug("single chunk upload, using copy")
		err = s.copySingleChunk(ctx, chunks[0], finalKey)
	case s.partsCopyable(chunks):
		log.Debug("using multipart copy", zap.Int("chunk_count", len(chunks)))
		err = s.multipartCopy(ctx, chunks, finalKey)
	default:
		log.Debug("using buffered merge", zap.Int64("total_size", totalSize))
		err = s.bufferedMerge(ctx, chunks, finalKey, totalSize)
	}
	if err != nil {
		return "", err
	}
	return finalKey, nil
}

// partsCopyable reports whether every chunk except the last meets the
// multipart minimum so the merge can stay server side.
func (s *S3ChunkStore) partsCopyable(chunks []chunkObject) bool {
	for _, c := range chunks[:len(chunks)-1] {
		if c.size < s.minPartSize {
			return false
		}
	}
	return true
}

func (s *S3ChunkStore) copySource(key string) string {
	return s.bucket + "/" + key
}

func (s *S3ChunkStore) copySingleChunk(ctx context.Context, chunk chunkObject, finalKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(finalKey),
		CopySource: aws.String(s.copySource(chunk.key)),
	})
	if err != nil {
		return fmt.Errorf("copy object: %w", err)
	}
	return nil
}

// withMultipart runs upload between CreateMultipartUpload and
// CompleteMultipartUpload, aborting the upload if anything fails.
func (s *S3ChunkStore) withMultipart(ctx context.Context, finalKey string, upload func(multipartID string) ([]types.CompletedPart, error)) (err error) {
	createOut, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(finalKey),
	})
	if err != nil {
		return fmt.Errorf("create multipart upload: %w", err)
	}
	multipartID := aws.ToString(createOut.UploadId)

	defer func() {
		if err == nil {
			return
		}
		_, abortErr := s.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(finalKey),
			UploadId: aws.String(multipartID),
		})
		if abortErr != nil {
			s.logger.With(ctx).Error("failed to abort multipart upload", zap.String("final_key", finalKey), zap.Error(abortErr))
		}
	}()

	parts, err := upload(multipartID)
	if err != nil {
		return err
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(finalKey),
		UploadId:        aws.String(multipartID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	return nil
}

func (s *S3ChunkStore) multipartCopy(ctx context.Context, chunks []chunkObject, finalKey string) error {
	return s.withMultipart(ctx, finalKey, func(multipartID string) ([]types.CompletedPart, error) {
		parts := make([]types.CompletedPart, 0, len(chunks))
		for i, chunk := range chunks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			partNumber := int32(i + 1)
			out, err := s.client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
				Bucket:     aws.String(s.bucket),
				Key:        aws.String(finalKey),
				UploadId:   aws.String(multipartID),
				PartNumber: aws.Int32(partNumber),
				CopySource: aws.String(s.copySource(chunk.key)),
			})
			if err != nil {
				return nil, fmt.Errorf("upload part %d: %w", partNumber, err)
			}
			var etag *string
			if out.CopyPartResult != nil {
				etag = out.CopyPartResult.ETag
			}
			parts = append(parts, types.CompletedPart{ETag: etag, PartNumber: aws.Int32(partNumber)})
		}
		return parts, nil
	})
}

// bufferedMerge pulls the chunks in order and re-uploads them from memory,
// one PutObject when the whole file fits in a part, otherwise one UploadPart
// per block of at least minPartSize. At most one block is held at a time.
func (s *S3ChunkStore) bufferedMerge(ctx context.Context, chunks []chunkObject, finalKey string, totalSize int64) error {
	if totalSize <= s.minPartSize {
		var buf bytes.Buffer
		buf.Grow(int(totalSize))
		for _, chunk := range chunks {
			if err := s.readChunk(ctx, chunk, &buf); err != nil {
				return err
			}
		}
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(finalKey),
			Body:          bytes.NewReader(buf.Bytes()),
			ContentLength: aws.Int64(int64(buf.Len())),
		})
		if err != nil {
			return fmt.Errorf("put merged object: %w", err)
		}
		return nil
	}

	return s.withMultipart(ctx, finalKey, func(multipartID string) ([]types.CompletedPart, error) {
		var (
			parts []types.CompletedPart
			buf   bytes.Buffer
		)
		flush := func() error {
			partNumber := int32(len(parts) + 1)
			out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:        aws.String(s.bucket),
				Key:           aws.String(finalKey),
				UploadId:      aws.String(multipartID),
				PartNumber:    aws.Int32(partNumber),
				Body:          bytes.NewReader(buf.Bytes()),
				ContentLength: aws.Int64(int64(buf.Len())),
			})
			if err != nil {
				return fmt.Errorf("upload part %d: %w", partNumber, err)
			}
			parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(partNumber)})
			buf.Reset()
			return nil
		}

		for _, chunk := range chunks {
			if err := s.readChunk(ctx, chunk, &buf); err != nil {
				return nil, err
			}
			if int64(buf.Len()) >= s.minPartSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
		if buf.Len() > 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		return parts, nil
	})
}

func (s *S3ChunkStore) readChunk(ctx context.Context, chunk chunkObject, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(chunk.key),
	})
	if err != nil {
		return fmt.Errorf("get chunk %s: %w", chunk.key, err)
	}
	defer out.Body.Close()
	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("copy chunk %s: %w", chunk.key, err)
	}
	return nil
}

// Discard removes every chunk stored for the upload.
func (s *S3ChunkStore) Discard(ctx context.Context, uploadID uuid.UUID) error {
	return s.deletePrefix(ctx, s.uploadPrefix(uploadID))
}

// Delete removes an assembled object.
func (s *S3ChunkStore) Delete(ctx context.Context, storagePath string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storagePath),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object %s: %w", storagePath, err)
	}
	return nil
}

func (s *S3ChunkStore) deletePrefix(ctx context.Context, prefix string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects for deletion: %w", err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete objects under %s: %w", prefix, err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
